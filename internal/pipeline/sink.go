package pipeline

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/cibox/internal/styles"
)

// Sink receives step progress for humans. Callers that need to inspect
// outcomes should use the Result returned by Executor.Run instead.
type Sink interface {
	StepStarted(pipeline string, step Step, index, total int)
	StepFinished(pipeline string, res StepResult, index, total int)
	StepSkipped(pipeline string, step Step, index, total int)
	PipelineFinished(res Result)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) StepStarted(string, Step, int, int)        {}
func (NopSink) StepFinished(string, StepResult, int, int) {}
func (NopSink) StepSkipped(string, Step, int, int)        {}
func (NopSink) PipelineFinished(Result)                   {}

// TextSink writes one status line per step event. Failures go to errOut.
// Colors are applied only when the writer is a color-capable terminal.
type TextSink struct {
	out, errOut io.Writer

	header, ok, failed, skipped lipgloss.Style
}

// NewTextSink creates a TextSink writing status lines to out and failure
// lines to errOut.
func NewTextSink(out, errOut io.Writer) *TextSink {
	r := lipgloss.NewRenderer(out)
	er := lipgloss.NewRenderer(errOut)
	return &TextSink{
		out:     out,
		errOut:  errOut,
		header:  r.NewStyle().Bold(true).Foreground(styles.PrimaryColor),
		ok:      r.NewStyle().Foreground(styles.SuccessColor),
		failed:  er.NewStyle().Foreground(styles.ErrorColor),
		skipped: r.NewStyle().Foreground(styles.MutedColor),
	}
}

func (s *TextSink) prefix(pipeline string, index, total int) string {
	return s.header.Render(fmt.Sprintf("[%s %d/%d]", pipeline, index+1, total))
}

// StepStarted implements Sink.
func (s *TextSink) StepStarted(pipeline string, step Step, index, total int) {
	fmt.Fprintf(s.out, "%s %s ...\n", s.prefix(pipeline, index, total), step.Label)
}

// StepFinished implements Sink.
func (s *TextSink) StepFinished(pipeline string, res StepResult, index, total int) {
	if res.Outcome == OutcomeSuccess {
		fmt.Fprintf(s.out, "%s %s returned %d: %s\n",
			s.prefix(pipeline, index, total), res.Label, res.ExitCode, s.ok.Render("success"))
		return
	}
	fmt.Fprintf(s.errOut, "%s %s returned %d: %s\n",
		s.prefix(pipeline, index, total), res.Label, res.ExitCode, s.failed.Render("failed"))
	if res.Err != nil {
		fmt.Fprintf(s.errOut, "  %v\n", res.Err)
	}
}

// StepSkipped implements Sink.
func (s *TextSink) StepSkipped(pipeline string, step Step, index, total int) {
	fmt.Fprintf(s.out, "%s %s: %s\n", s.prefix(pipeline, index, total), step.Label, s.skipped.Render("skipped"))
}

// PipelineFinished implements Sink.
func (s *TextSink) PipelineFinished(res Result) {
	summary := fmt.Sprintf("%s: %d ok, %d failed, %d skipped",
		res.Pipeline, res.Count(OutcomeSuccess), res.Count(OutcomeFailure), res.Count(OutcomeSkipped))
	if res.OK() {
		fmt.Fprintln(s.out, s.ok.Render(summary))
		return
	}
	fmt.Fprintln(s.errOut, s.failed.Render(summary))
}
