package lifecycle

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Iron-Ham/cibox/internal/container"
)

func TestSpinner_CyclesFourGlyphs(t *testing.T) {
	var buf bytes.Buffer
	s := newSpinner(&buf)

	for i := 0; i < 5; i++ {
		s.Tick("test", container.StateStarting)
	}

	var glyphs []string
	for _, frame := range strings.Split(buf.String(), "\r")[1:] {
		glyphs = append(glyphs, strings.Fields(frame)[0])
	}
	want := []string{"|", "/", "-", "\\", "|"}
	if strings.Join(glyphs, "") != strings.Join(want, "") {
		t.Errorf("glyphs = %q, want %q", glyphs, want)
	}
	if !strings.Contains(buf.String(), "waiting for test (starting)") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSpinner_DoneClearsLine(t *testing.T) {
	var buf bytes.Buffer
	s := newSpinner(&buf)

	s.Done()
	if buf.Len() != 0 {
		t.Errorf("Done without ticks wrote %q", buf.String())
	}

	s.Tick("test", container.StateStarting)
	buf.Reset()
	s.Done()
	if buf.String() != "\r\033[K" {
		t.Errorf("Done wrote %q", buf.String())
	}
}

func TestNewSpinner_NonTerminal(t *testing.T) {
	if _, ok := NewSpinner(&bytes.Buffer{}).(NopProgress); !ok {
		t.Error("NewSpinner should return NopProgress for non-terminal writers")
	}
}
