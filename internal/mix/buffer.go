package mix

import (
	"fmt"
	"math"

	"github.com/faiface/beep"
	"gonum.org/v1/gonum/floats"
)

// Format of a rendered buffer.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	return nil
}

// Beep is the equivalent beep format at 16 bit precision.
func (f Format) Beep() beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(f.SampleRate),
		NumChannels: f.Channels,
		Precision:   2,
	}
}

// Frames is the number of whole frames in the given duration.
func (f Format) Frames(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds * float64(f.SampleRate)))
}

// Buffer holds interleaved PCM.
type Buffer struct {
	Format
	Data []float64
}

func NewBuffer(f Format, seconds float64) *Buffer {
	return &Buffer{
		Format: f,
		Data:   make([]float64, f.Frames(seconds)*f.Channels),
	}
}

func (b *Buffer) Frames() int {
	return len(b.Data) / b.Channels
}

func (b *Buffer) Seconds() float64 {
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Peak is the largest absolute sample value.
func (b *Buffer) Peak() float64 {
	if len(b.Data) == 0 {
		return 0
	}
	return math.Max(floats.Max(b.Data), -floats.Min(b.Data))
}

// Streamer plays the buffer from the start. Mono buffers play the same
// signal on both sides.
func (b *Buffer) Streamer() beep.StreamSeeker {
	return &streamer{buffer: b}
}

type streamer struct {
	buffer *Buffer
	pos    int
}

func (s *streamer) Stream(samples [][2]float64) (n int, ok bool) {
	frames := s.buffer.Frames()
	if s.pos >= frames {
		return 0, false
	}
	ch := s.buffer.Channels
	for n < len(samples) && s.pos < frames {
		left := s.buffer.Data[s.pos*ch]
		right := left
		if ch == 2 {
			right = s.buffer.Data[s.pos*ch+1]
		}
		samples[n] = [2]float64{left, right}
		n++
		s.pos++
	}
	return n, true
}

func (s *streamer) Err() error {
	return nil
}

func (s *streamer) Len() int {
	return s.buffer.Frames()
}

func (s *streamer) Position() int {
	return s.pos
}

func (s *streamer) Seek(p int) error {
	if p < 0 || p > s.buffer.Frames() {
		return fmt.Errorf("seek position %d out of range [0, %d]", p, s.buffer.Frames())
	}
	s.pos = p
	return nil
}
