package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNew(t *testing.T) {
	t.Run("creates cibox.log in dir", func(t *testing.T) {
		dir := t.TempDir()
		logger, err := New(Options{Dir: dir, Level: LevelDebug, Rotation: DefaultRotationConfig()})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		logger.Info("hello")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		data, err := os.ReadFile(filepath.Join(dir, FileName))
		if err != nil {
			t.Fatalf("log file missing: %v", err)
		}
		if !strings.Contains(string(data), `"msg":"hello"`) {
			t.Errorf("log content = %q", data)
		}
	})

	t.Run("stderr when dir is empty", func(t *testing.T) {
		logger, err := New(Options{})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if logger.closer != nil {
			t.Error("stderr logger should have nothing to close")
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, LevelWarn)

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (WARN and ERROR)", len(lines))
	}
	if lines[0]["level"] != "WARN" || lines[1]["level"] != "ERROR" {
		t.Errorf("levels = %v, %v", lines[0]["level"], lines[1]["level"])
	}
}

func TestLogger_ChildAttributes(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter(&buf, LevelDebug)

	step := root.WithRun("r1").WithContainer("test").WithPipeline("provision").WithStep("apt-get update")
	step.Info("step finished", "exit_code", 0)
	root.Info("root only")

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	want := map[string]any{
		KeyRun:       "r1",
		KeyContainer: "test",
		KeyPipeline:  "provision",
		KeyStep:      "apt-get update",
		"exit_code":  float64(0),
	}
	for k, v := range want {
		if lines[0][k] != v {
			t.Errorf("%s = %v, want %v", k, lines[0][k], v)
		}
	}
	if _, ok := lines[1][KeyContainer]; ok {
		t.Error("child attributes leaked into the parent logger")
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, LevelInfo).With("driver", "lxc", 42, "ignored")
	logger.Info("opened")

	lines := decodeLines(t, buf.Bytes())
	if lines[0]["driver"] != "lxc" {
		t.Errorf("driver = %v", lines[0]["driver"])
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Error("discarded")
	if err := logger.WithContainer("test").Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"debug", LevelDebug},
		{"WARN", LevelWarn},
		{"Error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if len(ValidLevels()) != 4 {
		t.Errorf("ValidLevels() = %v", ValidLevels())
	}
}

func TestLogger_ReplacesAttribute(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter(&buf, LevelInfo).WithRun("r1").WithContainer("test")
	root.WithContainer("test").WithPipeline("provision").WithPipeline("run_tests").Info("tagged twice")

	line := buf.String()
	if n := strings.Count(line, `"container":`); n != 1 {
		t.Errorf("container key appears %d times in %s", n, line)
	}
	lines := decodeLines(t, buf.Bytes())
	if lines[0][KeyPipeline] != "run_tests" {
		t.Errorf("pipeline = %v, want the latest value", lines[0][KeyPipeline])
	}
	if lines[0][KeyRun] != "r1" {
		t.Errorf("run_id = %v", lines[0][KeyRun])
	}
}

func TestStderrLevel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"debug", LevelWarn},
		{"info", LevelWarn},
		{"", LevelWarn},
		{"warn", "warn"},
		{"error", "error"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := stderrLevel(tt.in); got != tt.want {
				t.Errorf("stderrLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
