package lifecycle

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	"golang.org/x/term"

	"github.com/Iron-Ham/cibox/internal/container"
)

// Progress receives one tick per state poll while a container boots.
// It is for humans only; nothing reads it back.
type Progress interface {
	Tick(name string, state container.State)
	Done()
}

// NopProgress discards ticks.
type NopProgress struct{}

// Tick implements Progress.
func (NopProgress) Tick(string, container.State) {}

// Done implements Progress.
func (NopProgress) Done() {}

// Spinner draws a rotating glyph on a single terminal line, one frame per tick.
type Spinner struct {
	w      io.Writer
	frames []string
	frame  int
	drawn  bool
}

// NewSpinner returns a Spinner writing to w, or a NopProgress when w is not
// a terminal.
func NewSpinner(w io.Writer) Progress {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return NopProgress{}
	}
	return newSpinner(w)
}

func newSpinner(w io.Writer) *Spinner {
	return &Spinner{w: w, frames: spinner.Line.Frames}
}

// Tick implements Progress.
func (s *Spinner) Tick(name string, state container.State) {
	fmt.Fprintf(s.w, "\r%s waiting for %s (%s)", s.frames[s.frame], name, state)
	s.frame = (s.frame + 1) % len(s.frames)
	s.drawn = true
}

// Done implements Progress by clearing the line.
func (s *Spinner) Done() {
	if s.drawn {
		fmt.Fprint(s.w, "\r\033[K")
		s.drawn = false
	}
	s.frame = 0
}
