package theme

import (
	"fmt"
	"strings"

	"git.lost.host/meutraa/bmspreview/internal/batch"
)

type Color struct {
	R, G, B uint8
}

// DefaultTheme writes one line per chart, coloured when Color is set.
type DefaultTheme struct {
	Color bool
}

const (
	successSym = "✓"
	failureSym = "✗"
	skippedSym = "-"
	warningSym = "!"
)

var (
	successColor = Color{0, 236, 128}   // green
	failureColor = Color{236, 30, 0}    // red
	skippedColor = Color{106, 106, 106} // grey
	warningColor = Color{236, 195, 0}   // yellow
)

func (t *DefaultTheme) paint(c Color, s string) string {
	if !t.Color {
		return s
	}
	return fmt.Sprintf("\033[38;2;%v;%v;%vm%v\033[0m", c.R, c.G, c.B, s)
}

func (t *DefaultTheme) RenderResult(r batch.Result) string {
	var b strings.Builder
	switch r.Outcome {
	case batch.Success:
		b.WriteString(t.paint(successColor, successSym))
		fmt.Fprintf(&b, " %v -> %v", r.Path, r.Output)
	case batch.Failure:
		b.WriteString(t.paint(failureColor, failureSym))
		fmt.Fprintf(&b, " %v: %v error: %v", r.Path, r.Kind, r.Message)
	case batch.Skipped:
		b.WriteString(t.paint(skippedColor, skippedSym))
		fmt.Fprintf(&b, " %v: %v", r.Path, r.Message)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "\n  %v %v", t.paint(warningColor, warningSym), w)
	}
	return b.String()
}

func (t *DefaultTheme) RenderSummary(s batch.Summary) string {
	return fmt.Sprintf("%v rendered, %v failed, %v skipped, %v warnings",
		t.paint(successColor, fmt.Sprint(s.Success)),
		t.paint(failureColor, fmt.Sprint(s.Failure)),
		t.paint(skippedColor, fmt.Sprint(s.Skipped)),
		t.paint(warningColor, fmt.Sprint(s.Warnings)),
	)
}
