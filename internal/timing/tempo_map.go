package timing

import (
	"iter"
	"math"
	"sort"

	"git.lost.host/meutraa/bmspreview/internal/game"
)

// DefaultBPM is used when a chart declares no tempo at pulse 0.
const DefaultBPM = 130.0

// Segment is a constant tempo interval [Start, End) in pulse space.
type Segment struct {
	Start int64
	End   int64 // math.MaxInt64 for the last segment
	BPM   float64
	Pause float64 // Seconds of stop applied at Start
}

// TempoMap is the normalized, immutable tempo and pause data of one chart.
type TempoMap struct {
	resolution int64
	tempos     []game.TempoEvent
	pauses     []game.PauseEvent
}

// Build validates and normalizes tempo and pause events. Events at the same
// pulse collapse: the last declared tempo wins, pause durations add up.
func Build(tempos []game.TempoEvent, pauses []game.PauseEvent, resolution int64) (*TempoMap, error) {
	if resolution <= 0 {
		return nil, &MalformedTimingError{Reason: "resolution must be positive"}
	}

	ts := make([]game.TempoEvent, len(tempos))
	copy(ts, tempos)
	for _, t := range ts {
		if t.Pulse < 0 {
			return nil, &MalformedTimingError{Pulse: t.Pulse, Reason: "negative tempo position"}
		}
		if math.IsNaN(t.BPM) || math.IsInf(t.BPM, 0) || t.BPM <= 0 {
			return nil, &MalformedTimingError{Pulse: t.Pulse, Reason: "bpm must be positive"}
		}
	}
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].Pulse < ts[j].Pulse })

	normalized := make([]game.TempoEvent, 0, len(ts)+1)
	if len(ts) == 0 || ts[0].Pulse != 0 {
		normalized = append(normalized, game.TempoEvent{Pulse: 0, BPM: DefaultBPM})
	}
	for _, t := range ts {
		if n := len(normalized); n > 0 && normalized[n-1].Pulse == t.Pulse {
			normalized[n-1] = t
			continue
		}
		normalized = append(normalized, t)
	}

	ps := make([]game.PauseEvent, len(pauses))
	copy(ps, pauses)
	for _, p := range ps {
		if p.Pulse < 0 {
			return nil, &MalformedTimingError{Pulse: p.Pulse, Reason: "negative pause position"}
		}
		if math.IsNaN(p.Seconds) || math.IsInf(p.Seconds, 0) || p.Seconds < 0 {
			return nil, &MalformedTimingError{Pulse: p.Pulse, Reason: "pause duration must not be negative"}
		}
	}
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Pulse < ps[j].Pulse })

	merged := make([]game.PauseEvent, 0, len(ps))
	for _, p := range ps {
		if p.Seconds == 0 {
			continue
		}
		if n := len(merged); n > 0 && merged[n-1].Pulse == p.Pulse {
			merged[n-1].Seconds += p.Seconds
			continue
		}
		merged = append(merged, p)
	}

	return &TempoMap{
		resolution: resolution,
		tempos:     normalized,
		pauses:     merged,
	}, nil
}

// Resolution returns the pulses per beat.
func (m *TempoMap) Resolution() int64 {
	return m.resolution
}

// Segments yields the map as constant tempo intervals in increasing pulse
// order. A new segment starts at every tempo change and every pause.
func (m *TempoMap) Segments() iter.Seq[Segment] {
	return func(yield func(Segment) bool) {
		ti, pi := 0, 0
		bpm := m.tempos[0].BPM
		var start int64
		for {
			seg := Segment{Start: start, BPM: bpm}
			for ti < len(m.tempos) && m.tempos[ti].Pulse == start {
				seg.BPM = m.tempos[ti].BPM
				ti++
			}
			if pi < len(m.pauses) && m.pauses[pi].Pulse == start {
				seg.Pause = m.pauses[pi].Seconds
				pi++
			}
			bpm = seg.BPM

			next := int64(math.MaxInt64)
			if ti < len(m.tempos) {
				next = m.tempos[ti].Pulse
			}
			if pi < len(m.pauses) && m.pauses[pi].Pulse < next {
				next = m.pauses[pi].Pulse
			}
			seg.End = next
			if !yield(seg) {
				return
			}
			if next == math.MaxInt64 {
				return
			}
			start = next
		}
	}
}
