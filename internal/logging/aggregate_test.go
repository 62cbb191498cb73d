package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeLog(t *testing.T, dir string) {
	t.Helper()
	logger, err := New(Options{Dir: dir, Level: LevelDebug})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c := logger.WithRun("r1").WithContainer("test")
	c.Info("container started", "addresses", []string{"10.0.3.15"})
	c.WithPipeline("provision").WithStep("apt-get update").Warn("step failed", "exit_code", 100)
	c.WithPipeline("run_tests").Debug("pipeline started")
	logger.WithContainer("other").Error("destroy failed")
	_ = logger.Close()
}

func TestReadEntries(t *testing.T) {
	t.Run("parses scoped fields", func(t *testing.T) {
		dir := t.TempDir()
		writeLog(t, dir)

		entries, err := ReadEntries(dir)
		if err != nil {
			t.Fatalf("ReadEntries failed: %v", err)
		}
		if len(entries) != 4 {
			t.Fatalf("got %d entries, want 4", len(entries))
		}
		e := entries[1]
		if e.Container != "test" || e.Pipeline != "provision" || e.Step != "apt-get update" || e.RunID != "r1" {
			t.Errorf("scope = %+v", e)
		}
		if e.Attrs["exit_code"] != float64(100) {
			t.Errorf("exit_code = %v", e.Attrs["exit_code"])
		}
		if _, ok := e.Attrs["msg"]; ok {
			t.Error("standard fields should not be copied into attrs")
		}
	})

	t.Run("missing log file", func(t *testing.T) {
		_, err := ReadEntries(t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "no log file found") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("skips malformed lines", func(t *testing.T) {
		dir := t.TempDir()
		content := "not json\n" + `{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"ok"}` + "\n\n"
		if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		entries, err := ReadEntries(dir)
		if err != nil {
			t.Fatalf("ReadEntries failed: %v", err)
		}
		if len(entries) != 1 || entries[0].Message != "ok" {
			t.Errorf("entries = %+v", entries)
		}
	})

	t.Run("includes compressed backups in order", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, FileName)
		old := `{"time":"2026-01-01T10:00:00Z","level":"INFO","msg":"older"}` + "\n"
		if err := os.WriteFile(path+".1", []byte(old), 0644); err != nil {
			t.Fatal(err)
		}
		if err := compressFile(path + ".1"); err != nil {
			t.Fatal(err)
		}
		current := `{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"newer"}` + "\n"
		if err := os.WriteFile(path, []byte(current), 0644); err != nil {
			t.Fatal(err)
		}

		entries, err := ReadEntries(dir)
		if err != nil {
			t.Fatalf("ReadEntries failed: %v", err)
		}
		if len(entries) != 2 || entries[0].Message != "older" || entries[1].Message != "newer" {
			t.Errorf("entries = %+v", entries)
		}
	})
}

func TestFilterEntries(t *testing.T) {
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Time: base, Level: LevelDebug, Message: "pipeline started", Container: "test", Pipeline: "provision"},
		{Time: base.Add(time.Minute), Level: LevelWarn, Message: "step failed", Container: "test", Pipeline: "provision"},
		{Time: base.Add(2 * time.Minute), Level: LevelInfo, Message: "step finished", Container: "test", Pipeline: "run_tests"},
		{Time: base.Add(3 * time.Minute), Level: LevelError, Message: "destroy failed", Container: "other"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"empty filter", Filter{}, 4},
		{"level floor", Filter{Level: "warn"}, 2},
		{"container", Filter{Container: "test"}, 3},
		{"pipeline", Filter{Pipeline: "provision"}, 2},
		{"since", Filter{Since: base.Add(90 * time.Second)}, 2},
		{"contains", Filter{Contains: "failed"}, 2},
		{"combined", Filter{Container: "test", Level: LevelInfo}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FilterEntries(entries, tt.filter); len(got) != tt.want {
				t.Errorf("FilterEntries() returned %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestWriteText(t *testing.T) {
	entries := []Entry{{
		Time:      time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
		Level:     LevelWarn,
		Message:   "step failed",
		Container: "test",
		Pipeline:  "provision",
		Attrs:     map[string]any{"exit_code": 100},
	}}

	var buf bytes.Buffer
	if err := WriteText(&buf, entries); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	want := `[2026-01-02 10:00:00.000] WARN  step failed (container=test pipeline=provision) {"exit_code":100}` + "\n"
	if buf.String() != want {
		t.Errorf("WriteText() =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, []Entry{{Level: LevelInfo, Message: "hi"}}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"msg": "hi"`) {
		t.Errorf("WriteJSON() = %s", buf.String())
	}
}
