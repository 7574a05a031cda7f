package mix

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"git.lost.host/meutraa/bmspreview/internal/keysound"
	"git.lost.host/meutraa/bmspreview/internal/preview"
	"git.lost.host/meutraa/bmspreview/internal/timing"
	"gonum.org/v1/gonum/floats"
)

// Frames guarded by one lock when accumulating in parallel.
const stripeFrames = 1 << 12

// SampleSource provides decoded keysounds by id.
type SampleSource interface {
	Resolve(id string) (*keysound.Sample, error)
	Probe(id string) (float64, error)
}

type Options struct {
	Workers     int
	PeakCeiling float64
	FadeIn      float64
	FadeOut     float64
	Volume      float64
	Logger      *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Workers:     1,
		PeakCeiling: 0.98,
		FadeIn:      2,
		FadeOut:     2,
		Volume:      1,
	}
}

// Stats counts the notes that could not be mixed.
type Stats struct {
	Mixed       int
	Missing     int
	Undecodable int
	// One error per keysound id that failed
	Errors []error
}

func (s Stats) Dropped() int {
	return s.Missing + s.Undecodable
}

type Compositor struct {
	options Options
	logger  *slog.Logger
}

func NewCompositor(options Options) *Compositor {
	if options.Workers < 1 {
		options.Workers = 1
	}
	logger := options.Logger
	if nil == logger {
		logger = slog.Default()
	}
	return &Compositor{options: options, logger: logger}
}

// group is every selected note of one keysound, in time order.
type group struct {
	id    string
	times []float64
}

// Mix sums the keysounds of the audible notes sounding within w into a
// buffer of format f, then applies fades, volume and peak normalization.
// Samples that fail to resolve are counted in Stats and skipped.
func (c *Compositor) Mix(notes []timing.TimedNote, w preview.Window, src SampleSource, f Format) (*Buffer, Stats, error) {
	var stats Stats
	if err := f.Validate(); nil != err {
		return nil, stats, err
	}
	if w.Duration < 0 || math.IsNaN(w.Start) {
		return nil, stats, errors.New("invalid window")
	}

	buffer := NewBuffer(f, w.Duration)
	groups := c.gather(notes, w, src)

	failed := make([]error, len(groups))
	if c.options.Workers == 1 || len(groups) < 2 {
		for i, g := range groups {
			failed[i] = c.accumulate(buffer, g, w.Start, src, nil)
		}
	} else {
		locks := make([]sync.Mutex, buffer.Frames()/stripeFrames+1)
		jobs := make(chan int)
		var wg sync.WaitGroup
		for i := 0; i < c.options.Workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := range jobs {
					failed[j] = c.accumulate(buffer, groups[j], w.Start, src, locks)
				}
			}()
		}
		for j := range groups {
			jobs <- j
		}
		close(jobs)
		wg.Wait()
	}

	for i, g := range groups {
		err := failed[i]
		if nil == err {
			stats.Mixed += len(g.times)
			continue
		}
		c.logger.Debug("dropping keysound", "keysound", g.id, "notes", len(g.times), "err", err)
		stats.Errors = append(stats.Errors, err)
		var missing *keysound.MissingSampleError
		if errors.As(err, &missing) {
			stats.Missing += len(g.times)
		} else {
			stats.Undecodable += len(g.times)
		}
	}

	c.finish(buffer)
	return buffer, stats, nil
}

// gather groups the audible notes inside the window, and the earlier notes
// still ringing at its start, by keysound id. Groups are ordered by id.
func (c *Compositor) gather(notes []timing.TimedNote, w preview.Window, src SampleSource) []group {
	end := w.End()
	byID := map[string]*group{}
	lengths := map[string]float64{}
	for _, n := range notes {
		if !n.Kind.Audible() || n.Keysound == "" || n.Seconds >= end {
			continue
		}
		if n.Seconds < w.Start {
			length, ok := lengths[n.Keysound]
			if !ok {
				var err error
				if length, err = src.Probe(n.Keysound); nil != err {
					length = 0
				}
				lengths[n.Keysound] = length
			}
			if n.Seconds+length <= w.Start {
				continue
			}
		}
		g, ok := byID[n.Keysound]
		if !ok {
			g = &group{id: n.Keysound}
			byID[n.Keysound] = g
		}
		g.times = append(g.times, n.Seconds)
	}

	groups := make([]group, 0, len(byID))
	for _, g := range byID {
		sort.Float64s(g.times)
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].id < groups[j].id
	})
	return groups
}

// accumulate conforms the group's sample once and adds it at every note.
// With locks set, each stripe of frames is locked while it is written.
func (c *Compositor) accumulate(b *Buffer, g group, start float64, src SampleSource, locks []sync.Mutex) error {
	sample, err := src.Resolve(g.id)
	if nil != err {
		return err
	}
	if sample.SampleRate <= 0 || sample.Channels < 1 {
		return &keysound.DecodeError{
			ID:   g.id,
			Path: sample.Path,
			Err:  fmt.Errorf("invalid format %d Hz %d channels", sample.SampleRate, sample.Channels),
		}
	}
	pcm := conform(sample, b.Format)
	ch := b.Channels
	sampleFrames := len(pcm) / ch
	bufferFrames := b.Frames()

	for _, t := range g.times {
		offset := int(math.Round((t - start) * float64(b.SampleRate)))
		from := 0
		if offset < 0 {
			from = -offset
			offset = 0
		}
		count := sampleFrames - from
		if bufferFrames-offset < count {
			count = bufferFrames - offset
		}
		if count <= 0 {
			continue
		}
		if nil == locks {
			floats.Add(b.Data[offset*ch:(offset+count)*ch], pcm[from*ch:(from+count)*ch])
			continue
		}
		for done := 0; done < count; {
			frame := offset + done
			stripe := frame / stripeFrames
			n := (stripe+1)*stripeFrames - frame
			if count-done < n {
				n = count - done
			}
			locks[stripe].Lock()
			floats.Add(b.Data[frame*ch:(frame+n)*ch], pcm[(from+done)*ch:(from+done+n)*ch])
			locks[stripe].Unlock()
			done += n
		}
	}
	return nil
}

// finish applies the fades and volume, then attenuates to the peak ceiling.
func (c *Compositor) finish(b *Buffer) {
	frames := b.Frames()
	if frames == 0 {
		return
	}
	ch := b.Channels

	fadeIn := b.Format.Frames(c.options.FadeIn)
	if fadeIn > frames {
		fadeIn = frames
	}
	for i := 0; i < fadeIn; i++ {
		gain := float64(i) / float64(fadeIn)
		floats.Scale(gain, b.Data[i*ch:(i+1)*ch])
	}

	fadeOut := b.Format.Frames(c.options.FadeOut)
	if fadeOut > frames {
		fadeOut = frames
	}
	for i := 0; i < fadeOut; i++ {
		frame := frames - 1 - i
		gain := float64(i) / float64(fadeOut)
		floats.Scale(gain, b.Data[frame*ch:(frame+1)*ch])
	}

	if c.options.Volume != 1 {
		floats.Scale(c.options.Volume, b.Data)
	}

	if ceiling := c.options.PeakCeiling; ceiling > 0 {
		if peak := b.Peak(); peak > ceiling {
			floats.Scale(ceiling/peak, b.Data)
		}
	}
}
