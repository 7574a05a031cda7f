package theme

import "git.lost.host/meutraa/bmspreview/internal/batch"

type Theme interface {
	RenderResult(r batch.Result) string
	RenderSummary(s batch.Summary) string
}
