// Package testdata writes charts and keysounds for tests.
package testdata

import (
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Chart is a two measure chart at 120 BPM with a background loop, a keysound
// per beat, a pause and a tempo change.
const Chart = `*---------------------- HEADER FIELD
#PLAYER 1
#GENRE Test
#TITLE Fixture
#ARTIST eotw
#BPM 120
#BPM01 240
#STOP01 96
#WAV01 kick.wav
#WAV02 snare.wav
#WAV03 missing.wav

*---------------------- MAIN DATA FIELD
#00101:01000000
#00111:01020102
#00112:00000003
#00109:00000100
#00208:01
#00211:0202
`

// WriteChart writes text as name inside dir and returns its path.
func WriteChart(dir, name, text string) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); nil != err {
		return "", err
	}
	return path, os.WriteFile(path, []byte(text), 0644)
}

// Tone describes a sine keysound.
type Tone struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Seconds    float64
	Frequency  float64
	Amplitude  float64 // Relative to full scale
}

// DefaultTone is a quarter second 440Hz stereo tone at half scale.
var DefaultTone = Tone{
	SampleRate: 44100,
	Channels:   2,
	BitDepth:   16,
	Seconds:    0.25,
	Frequency:  440,
	Amplitude:  0.5,
}

// WriteTone writes a PCM WAV file.
func WriteTone(path string, tone Tone) error {
	frames := int(math.Round(tone.Seconds * float64(tone.SampleRate)))
	full := float64(int(1)<<(tone.BitDepth-1) - 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: tone.Channels,
			SampleRate:  tone.SampleRate,
		},
		Data:           make([]int, frames*tone.Channels),
		SourceBitDepth: tone.BitDepth,
	}
	for i := 0; i < frames; i++ {
		v := tone.Amplitude * math.Sin(2*math.Pi*tone.Frequency*float64(i)/float64(tone.SampleRate))
		for c := 0; c < tone.Channels; c++ {
			buf.Data[i*tone.Channels+c] = int(math.Round(v * full))
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); nil != err {
		return err
	}
	out, err := os.Create(path)
	if nil != err {
		return err
	}
	defer out.Close()

	e := wav.NewEncoder(out, tone.SampleRate, tone.BitDepth, tone.Channels, 1)
	if err := e.Write(buf); nil != err {
		return err
	}
	return e.Close()
}

// ZeroSampleRate overwrites the sample rate in the fmt chunk of a WAV
// written by WriteTone with 0.
func ZeroSampleRate(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if nil != err {
		return err
	}
	if _, err := f.WriteAt(make([]byte, 4), 24); nil != err {
		f.Close()
		return err
	}
	return f.Close()
}
