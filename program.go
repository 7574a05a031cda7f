package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"git.lost.host/meutraa/bmspreview/internal/batch"
	"git.lost.host/meutraa/bmspreview/internal/config"
	"git.lost.host/meutraa/bmspreview/internal/encode"
	"git.lost.host/meutraa/bmspreview/internal/ledger"
	"git.lost.host/meutraa/bmspreview/internal/mix"
	"git.lost.host/meutraa/bmspreview/internal/parser"
	"git.lost.host/meutraa/bmspreview/internal/preview"
	"git.lost.host/meutraa/bmspreview/internal/render"
	"git.lost.host/meutraa/bmspreview/internal/theme"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

type Program struct {
	Config   *config.Config
	Parser   *parser.DefaultParser
	Ledger   *ledger.DefaultLedger
	Theme    *theme.DefaultTheme
	Renderer *render.DefaultRenderer
	Logger   *slog.Logger

	// Draw a progress bar on stderr instead of printing results as they come
	Progress bool
}

func (p *Program) Init(c *config.Config) error {
	p.Config = c
	if nil == p.Logger {
		p.Logger = slog.Default()
	}
	p.Parser = &parser.DefaultParser{}
	if nil == p.Theme {
		p.Theme = &theme.DefaultTheme{}
	}

	if c.Ledger != "" {
		l, err := ledger.Open(c.Ledger)
		if nil != err {
			return err
		}
		p.Ledger = l
		p.Logger.Debug("opened ledger", "path", c.Ledger, "run", l.Run())
	}

	options := mix.DefaultOptions()
	options.Workers = c.MixWorkers
	options.PeakCeiling = c.PeakCeiling
	options.FadeIn = c.FadeIn
	options.FadeOut = c.FadeOut
	options.Volume = c.Volume
	options.Logger = p.Logger

	p.Renderer = &render.DefaultRenderer{
		Parsers: []parser.Parser{p.Parser},
		Selector: preview.NewSelector(preview.Settings{
			Duration:         c.Duration,
			MinNoteDensity:   c.MinNoteDensity,
			FallbackFraction: c.Fallback,
			ForcedStart:      c.ForcedStart(),
			StartPercent:     c.ForcedPercent(),
		}),
		Compositor: mix.NewCompositor(options),
		Vorbis:     encode.NewVorbis(c.Encoder, c.Quality),
		Logger:     p.Logger,
		Settings: render.Settings{
			OutputName:      c.OutputName,
			OutputDir:       c.OutputDir,
			Roots:           c.Paths,
			Overwrite:       c.Overwrite,
			ReplaceDeclared: c.ReplaceDeclared,
			SampleRate:      c.SampleRate,
			Channels:        c.Channels(),
		},
	}
	if nil != p.Ledger {
		p.Renderer.Ledger = p.Ledger
	}
	return nil
}

func (p *Program) Deinit() {
	if nil != p.Ledger {
		if err := p.Ledger.Close(); nil != err {
			p.Logger.Warn("unable to close ledger", "error", err)
		}
	}
}

// Run renders every chart under the configured paths and writes one line
// per chart to out.
func (p *Program) Run(ctx context.Context, out io.Writer) (batch.Summary, error) {
	var summary batch.Summary
	charts, err := batch.Discover(p.Config.Paths, parser.Extensions(p.Renderer.Parsers))
	if nil != err {
		return summary, fmt.Errorf("unable to find charts: %w", err)
	}
	p.Logger.Info("found charts", "count", len(charts))

	var (
		progress *mpb.Progress
		bar      *mpb.Bar
		lines    []string
	)
	if p.Progress {
		progress = mpb.NewWithContext(ctx, mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
		bar = progress.AddBar(int64(len(charts)),
			mpb.PrependDecorators(
				decor.Name("Rendering: "),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(
				decor.Percentage(),
				decor.AverageETA(decor.ET_STYLE_GO),
			),
		)
	}

	dispatcher := batch.NewDispatcher(p.Renderer, p.Config.Workers, batch.WithLogger(p.Logger))
	for result := range dispatcher.Run(ctx, charts) {
		summary.Add(result)
		line := p.Theme.RenderResult(result)
		if nil == bar {
			fmt.Fprintln(out, line)
			continue
		}
		lines = append(lines, line)
		bar.Increment()
	}

	if nil != progress {
		progress.Wait()
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
	}
	fmt.Fprintln(out, p.Theme.RenderSummary(summary))
	return summary, nil
}
