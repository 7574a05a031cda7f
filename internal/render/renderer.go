package render

import (
	"context"

	"git.lost.host/meutraa/bmspreview/internal/mix"
	"git.lost.host/meutraa/bmspreview/internal/preview"
)

// Renderer turns one chart into a preview clip.
type Renderer interface {
	// Target is the preview file the chart renders to
	Target(chart string) string
	Render(ctx context.Context, chart string) (*Report, error)
}

type Report struct {
	Chart  string
	Output string
	Window preview.Window
	Stats  mix.Stats
	// Set with a reason when the chart was left alone
	Skipped bool
	Reason  string
	// Non-fatal problems, one line each
	Warnings []string
}
