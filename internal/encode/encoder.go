package encode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.lost.host/meutraa/bmspreview/internal/mix"
	"github.com/faiface/beep/wav"
)

// Encoder writes a rendered buffer to dst. Output is written beside dst
// and moved into place only once complete.
type Encoder interface {
	Encode(buf *mix.Buffer, dst string) error
}

type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// ForPath picks the encoder for the extension of dst, Vorbis for anything
// other than .wav.
func ForPath(dst string, vorbis *Vorbis) Encoder {
	if strings.EqualFold(filepath.Ext(dst), ".wav") {
		return Wav{}
	}
	return vorbis
}

func partial(dst string) string {
	return dst + ".partial"
}

// writeWav writes buf as 16 bit PCM.
func writeWav(buf *mix.Buffer, path string) error {
	f, err := os.Create(path)
	if nil != err {
		return err
	}
	if err := wav.Encode(f, buf.Streamer(), buf.Format.Beep()); nil != err {
		f.Close()
		return err
	}
	return f.Close()
}

// Wav writes the buffer directly.
type Wav struct{}

func (Wav) Encode(buf *mix.Buffer, dst string) error {
	tmp := partial(dst)
	if err := writeWav(buf, tmp); nil != err {
		os.Remove(tmp)
		return &EncodeError{Path: dst, Err: err}
	}
	if err := os.Rename(tmp, dst); nil != err {
		os.Remove(tmp)
		return &EncodeError{Path: dst, Err: err}
	}
	return nil
}
