package preview

import (
	"sort"

	"git.lost.host/meutraa/bmspreview/internal/game"
	"git.lost.host/meutraa/bmspreview/internal/timing"
)

// Policy names the rule that placed a window.
type Policy int

const (
	Declared Policy = iota // The chart declares a start
	Forced                 // The configuration forces a start
	Percent                // The configuration places the start relative to the chart length
	Density                // The densest run of playable notes
	Fallback               // Too few notes, a fixed fraction into the chart
)

func (p Policy) String() string {
	switch p {
	case Declared:
		return "declared"
	case Forced:
		return "forced"
	case Percent:
		return "percent"
	case Density:
		return "density"
	case Fallback:
		return "fallback"
	}
	return "unknown"
}

// Window is the [Start, Start+Duration) range of the chart, in seconds,
// rendered into the preview.
type Window struct {
	Start    float64
	Duration float64
	Policy   Policy
}

func (w Window) End() float64 {
	return w.Start + w.Duration
}

// Settings are the selection parameters. A nil ForcedStart or StartPercent
// is unset.
type Settings struct {
	Duration         float64
	MinNoteDensity   int
	FallbackFraction float64
	ForcedStart      *float64
	StartPercent     *float64
}

// Marks are chart level hints for the selector.
type Marks struct {
	Declared *float64  // Declared start in seconds
	Measures []float64 // Start time of every measure, ascending
}

type Selector struct {
	settings Settings
}

func NewSelector(settings Settings) *Selector {
	return &Selector{settings: settings}
}

// Select picks the preview window of a chart lasting chartDuration seconds.
// The window always lies within the chart, unless the chart has no length
// at all, in which case the configured duration of silence is selected.
func (s *Selector) Select(notes []timing.TimedNote, chartDuration float64, marks Marks) Window {
	d := s.settings.Duration
	if chartDuration <= 0 {
		return Window{Start: 0, Duration: d, Policy: Fallback}
	}
	if chartDuration < d {
		d = chartDuration
	}
	place := func(start float64, policy Policy) Window {
		if start > chartDuration-d {
			start = chartDuration - d
		}
		if start < 0 {
			start = 0
		}
		return Window{Start: start, Duration: d, Policy: policy}
	}

	switch {
	case marks.Declared != nil:
		return place(*marks.Declared, Declared)
	case nil != s.settings.ForcedStart:
		return place(*s.settings.ForcedStart, Forced)
	case nil != s.settings.StartPercent:
		return place(*s.settings.StartPercent/100*chartDuration, Percent)
	}

	times := make([]float64, 0, len(notes))
	for _, n := range notes {
		if n.Kind == game.Playable {
			times = append(times, n.Seconds)
		}
	}
	sort.Float64s(times)

	// Sliding window over [times[i], times[i]+d), the earliest of equal
	// counts wins
	best, count := 0, 0
	j := 0
	for i := range times {
		if j < i {
			j = i
		}
		for j < len(times) && times[j] < times[i]+d {
			j++
		}
		if j-i > count {
			best, count = i, j-i
		}
	}
	if count == 0 || count < s.settings.MinNoteDensity {
		return place(s.settings.FallbackFraction*chartDuration, Fallback)
	}

	start := times[best]
	if m := sort.SearchFloat64s(marks.Measures, start); m < len(marks.Measures) && marks.Measures[m] == start {
		start = marks.Measures[m]
	} else if m > 0 {
		start = marks.Measures[m-1]
	}
	return place(start, Density)
}
