package timing

import (
	"math"
	"sort"

	"git.lost.host/meutraa/bmspreview/internal/game"
)

// TimedNote is a note with its absolute time.
type TimedNote struct {
	*game.Note
	Seconds float64
}

type checkpoint struct {
	Segment
	elapsed float64 // Seconds at Start, before the pause
}

// Engine converts pulse positions into elapsed seconds.
type Engine struct {
	resolution  float64
	checkpoints []checkpoint
}

func NewEngine(m *TempoMap) *Engine {
	e := &Engine{resolution: float64(m.Resolution())}
	elapsed := 0.0
	for seg := range m.Segments() {
		e.checkpoints = append(e.checkpoints, checkpoint{Segment: seg, elapsed: elapsed})
		elapsed += seg.Pause
		if seg.End != math.MaxInt64 {
			elapsed += e.span(seg.End-seg.Start, seg.BPM)
		}
	}
	return e
}

func (e *Engine) span(pulses int64, bpm float64) float64 {
	return float64(pulses) / e.resolution * (60 / bpm)
}

func (e *Engine) find(pulse int64) *checkpoint {
	i := sort.Search(len(e.checkpoints), func(i int) bool {
		return e.checkpoints[i].Start > pulse
	})
	return &e.checkpoints[i-1]
}

// ToSeconds returns the elapsed time at pulse. A note on a pause plays
// before the pause.
func (e *Engine) ToSeconds(pulse int64) (float64, error) {
	if pulse < 0 {
		return 0, &OutOfRangeError{Pulse: pulse}
	}
	c := e.find(pulse)
	elapsed := c.elapsed
	if pulse > c.Start {
		elapsed += c.Pause + e.span(pulse-c.Start, c.BPM)
	}
	return elapsed, nil
}

// TempoAt returns the tempo in effect at pulse.
func (e *Engine) TempoAt(pulse int64) (float64, error) {
	if pulse < 0 {
		return 0, &OutOfRangeError{Pulse: pulse}
	}
	return e.find(pulse).BPM, nil
}

// Time resolves the absolute time of every note.
func (e *Engine) Time(notes []*game.Note) ([]TimedNote, error) {
	timed := make([]TimedNote, len(notes))
	for i, n := range notes {
		s, err := e.ToSeconds(n.Pulse)
		if nil != err {
			return nil, err
		}
		timed[i] = TimedNote{Note: n, Seconds: s}
	}
	return timed, nil
}
