package keysound

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
	gowav "github.com/go-audio/wav"
)

var errUnknownFormat = errors.New("unknown audio format")

func checkRate(rate int) error {
	if rate <= 0 {
		return fmt.Errorf("invalid sample rate %d", rate)
	}
	return nil
}

type container int

const (
	unknown container = iota
	riff
	ogg
	mpeg
)

// sniff identifies the container from magic bytes. Keysounds are often
// renamed without being re-encoded, so the extension is only a hint.
func sniff(f *os.File) (container, error) {
	head := make([]byte, 12)
	n, err := io.ReadFull(f, head)
	if nil != err && err != io.ErrUnexpectedEOF && err != io.EOF {
		return unknown, err
	}
	head = head[:n]
	if _, err := f.Seek(0, io.SeekStart); nil != err {
		return unknown, err
	}

	switch {
	case bytes.HasPrefix(head, []byte("RIFF")):
		return riff, nil
	case bytes.HasPrefix(head, []byte("OggS")):
		return ogg, nil
	case bytes.HasPrefix(head, []byte("ID3")), len(head) > 1 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return mpeg, nil
	}

	switch strings.ToLower(filepath.Ext(f.Name())) {
	case ".wav":
		return riff, nil
	case ".ogg":
		return ogg, nil
	case ".mp3":
		return mpeg, nil
	}
	return unknown, nil
}

func open(path string) (beep.StreamSeekCloser, beep.Format, container, error) {
	f, err := os.Open(path)
	if nil != err {
		return nil, beep.Format{}, unknown, err
	}
	c, err := sniff(f)
	if nil != err {
		f.Close()
		return nil, beep.Format{}, c, err
	}

	var s beep.StreamSeekCloser
	var format beep.Format
	switch c {
	case riff:
		s, format, err = wav.Decode(f)
	case ogg:
		s, format, err = vorbis.Decode(f)
	case mpeg:
		s, format, err = mp3.Decode(f)
	default:
		err = errUnknownFormat
	}
	if nil != err {
		f.Close()
		return nil, format, c, err
	}
	return s, format, c, nil
}

func decode(path string) (*Sample, error) {
	s, format, c, err := open(path)
	if nil != err {
		if c == riff && !errors.Is(err, os.ErrNotExist) {
			// beep only reads 8 and 16 bit PCM
			return decodeWide(path)
		}
		return nil, err
	}
	defer s.Close()
	if err := checkRate(int(format.SampleRate)); nil != err {
		return nil, err
	}

	channels := format.NumChannels
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}

	pcm := make([]float32, 0, s.Len()*channels)
	buf := make([][2]float64, 1024)
	for {
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			pcm = append(pcm, float32(frame[0]))
			if channels == 2 {
				pcm = append(pcm, float32(frame[1]))
			}
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); nil != err {
		return nil, err
	}

	return &Sample{
		Path:       path,
		PCM:        pcm,
		SampleRate: int(format.SampleRate),
		Channels:   channels,
	}, nil
}

// decodeWide reads 24 and 32 bit PCM wav files.
func decodeWide(path string) (*Sample, error) {
	f, err := os.Open(path)
	if nil != err {
		return nil, err
	}
	defer f.Close()

	d := gowav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	if err := checkRate(int(d.SampleRate)); nil != err {
		return nil, err
	}
	buf, err := d.FullPCMBuffer()
	if nil != err {
		return nil, err
	}
	channels := int(d.NumChans)
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
	if d.BitDepth < 8 {
		return nil, fmt.Errorf("unsupported bit depth %d", d.BitDepth)
	}

	full := float32(int64(1) << (d.BitDepth - 1))
	pcm := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		pcm[i] = float32(v) / full
	}
	return &Sample{
		Path:       path,
		PCM:        pcm,
		SampleRate: int(d.SampleRate),
		Channels:   channels,
	}, nil
}

// length reads the duration of an audio file without decoding it.
func length(path string) (float64, error) {
	s, format, c, err := open(path)
	if nil != err {
		if c != riff || errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
		f, err := os.Open(path)
		if nil != err {
			return 0, err
		}
		defer f.Close()
		d := gowav.NewDecoder(f)
		d.ReadInfo()
		if err := d.Err(); nil != err {
			return 0, err
		}
		if err := checkRate(int(d.SampleRate)); nil != err {
			return 0, err
		}
		duration, err := d.Duration()
		if nil != err {
			return 0, err
		}
		return duration.Seconds(), nil
	}
	defer s.Close()
	if err := checkRate(int(format.SampleRate)); nil != err {
		return 0, err
	}
	return float64(s.Len()) / float64(format.SampleRate), nil
}
