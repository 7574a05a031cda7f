package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"git.lost.host/meutraa/bmspreview/internal/encode"
	"git.lost.host/meutraa/bmspreview/internal/game"
	"git.lost.host/meutraa/bmspreview/internal/keysound"
	"git.lost.host/meutraa/bmspreview/internal/ledger"
	"git.lost.host/meutraa/bmspreview/internal/mix"
	"git.lost.host/meutraa/bmspreview/internal/parser"
	"git.lost.host/meutraa/bmspreview/internal/preview"
	"git.lost.host/meutraa/bmspreview/internal/timing"
)

const fallbackSampleRate = 44100

type DefaultRenderer struct {
	Parsers    []parser.Parser
	Selector   *preview.Selector
	Compositor *mix.Compositor
	Vorbis     *encode.Vorbis
	// Optional
	Ledger   ledger.Ledger
	Logger   *slog.Logger
	Settings Settings
}

func (r *DefaultRenderer) logger() *slog.Logger {
	if nil == r.Logger {
		return slog.Default()
	}
	return r.Logger
}

func (r *DefaultRenderer) Target(chart string) string {
	return r.Settings.target(chart)
}

func (r *DefaultRenderer) Render(ctx context.Context, path string) (*Report, error) {
	log := r.logger().With("chart", path)
	report := &Report{Chart: path, Output: r.Target(path)}
	skip := func(reason string) (*Report, error) {
		log.DebugContext(ctx, "skipping", "reason", reason)
		report.Skipped = true
		report.Reason = reason
		return report, nil
	}

	p, ok := parser.For(r.Parsers, path)
	if !ok {
		return nil, &parser.ParseError{Path: path, Err: errors.New("unsupported chart format")}
	}
	chart, err := p.Parse(path)
	if nil != err {
		return nil, err
	}
	log.DebugContext(ctx, "parsed chart",
		"title", chart.Title,
		"artist", chart.Artist,
		"genre", chart.Genre,
		"notes", chart.NoteCount,
		"background", chart.BackgroundCount,
		"mines", chart.MineCount,
	)

	if chart.PreviewMusic != "" && !r.Settings.ReplaceDeclared {
		return skip("chart declares preview " + chart.PreviewMusic)
	}
	if !r.Settings.Overwrite {
		if _, err := os.Stat(report.Output); nil == err {
			return skip("output exists")
		}
	}

	var sum string
	if nil != r.Ledger {
		if sum, err = ledger.Sum(path); nil != err {
			return nil, err
		}
		unchanged, err := r.Ledger.Unchanged(path, sum, report.Output)
		if nil != err {
			log.WarnContext(ctx, "unable to read ledger", "error", err)
		} else if unchanged {
			return skip("chart unchanged since the last run")
		}
	}

	m, err := timing.Build(chart.Tempos, chart.Pauses, chart.Resolution)
	if nil != err {
		return nil, err
	}
	engine := timing.NewEngine(m)
	notes, err := engine.Time(chart.Notes)
	if nil != err {
		return nil, err
	}
	duration, err := chartDuration(engine, chart, notes)
	if nil != err {
		return nil, err
	}
	measures := make([]float64, 0, len(chart.Measures))
	for _, measure := range chart.Measures {
		s, err := engine.ToSeconds(measure.Pulse)
		if nil != err {
			return nil, err
		}
		measures = append(measures, s)
	}

	report.Window = r.Selector.Select(notes, duration, preview.Marks{
		Declared: chart.PreviewStart,
		Measures: measures,
	})
	log.DebugContext(ctx, "selected window",
		"start", report.Window.Start,
		"duration", report.Window.Duration,
		"policy", report.Window.Policy,
		"length", duration,
	)

	registry := keysound.NewRegistry(chart.BaseDir, chart.Keysounds, keysound.WithLogger(log))
	defer registry.Release()

	format := mix.Format{SampleRate: r.Settings.SampleRate, Channels: r.Settings.Channels}
	if format.Channels == 0 {
		format.Channels = 2
	}
	if format.SampleRate == 0 {
		format.SampleRate = commonRate(notes, report.Window, registry)
	}

	buffer, stats, err := r.Compositor.Mix(notes, report.Window, registry, format)
	if nil != err {
		return nil, err
	}
	report.Stats = stats
	if stats.Missing > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d notes skipped: missing samples", stats.Missing))
	}
	if stats.Undecodable > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d notes skipped: undecodable samples", stats.Undecodable))
	}

	if err := os.MkdirAll(filepath.Dir(report.Output), 0o755); nil != err {
		return nil, &encode.EncodeError{Path: report.Output, Err: err}
	}
	if err := encode.ForPath(report.Output, r.Vorbis).Encode(buffer, report.Output); nil != err {
		return nil, err
	}
	log.InfoContext(ctx, "rendered preview", "title", chart.Title, "artist", chart.Artist, "output", report.Output, "notes", stats.Mixed, "dropped", stats.Dropped())

	if nil != r.Ledger {
		if err := r.Ledger.Record(path, sum, report.Output); nil != err {
			log.WarnContext(ctx, "unable to update ledger", "error", err)
		}
	}
	return report, nil
}

// chartDuration is the later of the chart end and the last note.
func chartDuration(engine *timing.Engine, chart *game.Chart, notes []timing.TimedNote) (float64, error) {
	end, err := engine.ToSeconds(chart.EndPulse)
	if nil != err {
		return 0, err
	}
	for _, n := range notes {
		end = math.Max(end, n.Seconds)
	}
	return end, nil
}

// commonRate is the most frequent sample rate among the keysounds
// sounding in the window, the higher rate on ties.
func commonRate(notes []timing.TimedNote, w preview.Window, src mix.SampleSource) int {
	counts := map[int]int{}
	seen := map[string]bool{}
	for _, n := range notes {
		if !n.Kind.Audible() || n.Keysound == "" || seen[n.Keysound] {
			continue
		}
		if n.Seconds < w.Start || n.Seconds >= w.End() {
			continue
		}
		seen[n.Keysound] = true
		if sample, err := src.Resolve(n.Keysound); nil == err {
			counts[sample.SampleRate]++
		}
	}

	rate, best := fallbackSampleRate, 0
	for r, c := range counts {
		if c > best || (c == best && r > rate) {
			rate, best = r, c
		}
	}
	return rate
}
