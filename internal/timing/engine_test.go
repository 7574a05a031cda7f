package timing

import (
	"errors"
	"math"
	"testing"

	"git.lost.host/meutraa/bmspreview/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func mustEngine(t testing.TB, tempos []game.TempoEvent, pauses []game.PauseEvent, resolution int64) *Engine {
	m, err := Build(tempos, pauses, resolution)
	require.NoError(t, err)
	return NewEngine(m)
}

func TestConstantTempo(t *testing.T) {
	for _, bpm := range []float64{60, 120, 133.5, 222} {
		e := mustEngine(t, []game.TempoEvent{{Pulse: 0, BPM: bpm}}, nil, 240)
		for p := int64(0); p < 240*64; p += 37 {
			s, err := e.ToSeconds(p)
			require.NoError(t, err)
			expected := float64(p) / 240 * 60 / bpm
			if math.Abs(s-expected) > epsilon {
				t.Log("bpm     ", bpm)
				t.Log("pulse   ", p)
				t.Log("got     ", s)
				t.Log("expected", expected)
				t.Fail()
			}
		}
	}
}

func TestOneBeat(t *testing.T) {
	e := mustEngine(t, []game.TempoEvent{{Pulse: 0, BPM: 120}}, nil, 240)
	s, err := e.ToSeconds(240)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s, epsilon)
}

func TestPause(t *testing.T) {
	e := mustEngine(t,
		[]game.TempoEvent{{Pulse: 0, BPM: 120}},
		[]game.PauseEvent{{Pulse: 240, Seconds: 2}},
		240,
	)

	at, err := e.ToSeconds(240)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, at, epsilon, "a note on the pause plays before it")

	after, err := e.ToSeconds(241)
	require.NoError(t, err)
	assert.InDelta(t, 0.5+2.0+(1.0/240)*0.5, after, epsilon)
}

func TestTempoChange(t *testing.T) {
	e := mustEngine(t,
		[]game.TempoEvent{{Pulse: 0, BPM: 120}, {Pulse: 960, BPM: 240}},
		nil,
		240,
	)
	s, err := e.ToSeconds(960 + 480)
	require.NoError(t, err)
	// 4 beats at 120 then 2 beats at 240
	assert.InDelta(t, 2.0+0.5, s, epsilon)

	bpm, err := e.TempoAt(959)
	require.NoError(t, err)
	assert.Equal(t, 120.0, bpm)
	bpm, err = e.TempoAt(960)
	require.NoError(t, err)
	assert.Equal(t, 240.0, bpm)
}

func TestMonotonic(t *testing.T) {
	e := mustEngine(t,
		[]game.TempoEvent{{Pulse: 0, BPM: 150}, {Pulse: 100, BPM: 75}, {Pulse: 333, BPM: 300}, {Pulse: 1000, BPM: 1}},
		[]game.PauseEvent{{Pulse: 0, Seconds: 1}, {Pulse: 100, Seconds: 0.25}, {Pulse: 500, Seconds: 3}},
		48,
	)
	previous := -1.0
	for p := int64(0); p < 2000; p++ {
		s, err := e.ToSeconds(p)
		require.NoError(t, err)
		if s < previous {
			t.Fatalf("time went backwards at pulse %d: %v < %v", p, s, previous)
		}
		previous = s
	}
}

func TestCallOrderIndependent(t *testing.T) {
	e := mustEngine(t,
		[]game.TempoEvent{{Pulse: 0, BPM: 150}, {Pulse: 700, BPM: 90}},
		[]game.PauseEvent{{Pulse: 300, Seconds: 0.5}},
		96,
	)
	pulses := []int64{900, 0, 300, 301, 699, 700, 5000, 12}
	first := make([]float64, len(pulses))
	for i, p := range pulses {
		first[i], _ = e.ToSeconds(p)
	}
	for i := len(pulses) - 1; i >= 0; i-- {
		s, _ := e.ToSeconds(pulses[i])
		assert.Equal(t, first[i], s)
	}
}

func TestOutOfRange(t *testing.T) {
	e := mustEngine(t, []game.TempoEvent{{Pulse: 0, BPM: 120}}, nil, 240)
	_, err := e.ToSeconds(-1)
	var oor *OutOfRangeError
	require.True(t, errors.As(err, &oor))
	assert.Equal(t, int64(-1), oor.Pulse)
}

func TestTime(t *testing.T) {
	e := mustEngine(t, []game.TempoEvent{{Pulse: 0, BPM: 60}}, nil, 4)
	notes := []*game.Note{{Pulse: 4, Keysound: "01"}, {Pulse: 4, Keysound: "02"}, {Pulse: 8}}
	timed, err := e.Time(notes)
	require.NoError(t, err)
	require.Len(t, timed, 3)
	assert.Equal(t, timed[0].Seconds, timed[1].Seconds)
	assert.InDelta(t, 1.0, timed[0].Seconds, epsilon)
	assert.InDelta(t, 2.0, timed[2].Seconds, epsilon)
	assert.Same(t, notes[1], timed[1].Note)
}

var result float64

func BenchmarkToSeconds(b *testing.B) {
	tempos := make([]game.TempoEvent, 0, 512)
	for i := 0; i < 512; i++ {
		tempos = append(tempos, game.TempoEvent{Pulse: int64(i) * 960, BPM: float64(100 + i%80)})
	}
	e := mustEngine(b, tempos, nil, 240)
	total := 0.0
	b.ResetTimer()

	for n := 0; n < b.N; n++ {
		s, _ := e.ToSeconds(int64(n % (512 * 960)))
		total += s
	}

	result = total
}
