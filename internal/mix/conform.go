package mix

import (
	"git.lost.host/meutraa/bmspreview/internal/keysound"
	"github.com/faiface/beep"
)

const resampleQuality = 4

// sampleStreamer plays a decoded keysound as beep samples.
type sampleStreamer struct {
	sample *keysound.Sample
	pos    int
}

func (s *sampleStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	frames := s.sample.Frames()
	if s.pos >= frames {
		return 0, false
	}
	ch := s.sample.Channels
	for n < len(samples) && s.pos < frames {
		left := float64(s.sample.PCM[s.pos*ch])
		right := left
		if ch > 1 {
			right = float64(s.sample.PCM[s.pos*ch+1])
		}
		samples[n] = [2]float64{left, right}
		n++
		s.pos++
	}
	return n, true
}

func (s *sampleStreamer) Err() error {
	return nil
}

// conform converts a sample to the interleaved layout of f, resampling when
// the rates differ. Stereo folds to mono by averaging.
func conform(sample *keysound.Sample, f Format) []float64 {
	var s beep.Streamer = &sampleStreamer{sample: sample}
	expected := sample.Frames()
	if sample.SampleRate != f.SampleRate {
		s = beep.Resample(resampleQuality, beep.SampleRate(sample.SampleRate), beep.SampleRate(f.SampleRate), s)
		expected = int(int64(expected) * int64(f.SampleRate) / int64(sample.SampleRate))
	}

	out := make([]float64, 0, (expected+1)*f.Channels)
	buf := make([][2]float64, 512)
	for {
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			if f.Channels == 1 {
				out = append(out, (frame[0]+frame[1])/2)
			} else {
				out = append(out, frame[0], frame[1])
			}
		}
		if !ok {
			break
		}
	}
	return out
}
