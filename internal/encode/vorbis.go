package encode

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"git.lost.host/meutraa/bmspreview/internal/mix"
	"github.com/google/uuid"
)

const (
	DefaultCommand = "oggenc"
	DefaultQuality = 5.0
)

// Vorbis hands a temporary WAV to an external oggenc compatible command.
type Vorbis struct {
	Command string
	Quality float64
}

func NewVorbis(command string, quality float64) *Vorbis {
	if command == "" {
		command = DefaultCommand
	}
	return &Vorbis{Command: command, Quality: quality}
}

func (v *Vorbis) command(quality, out, in string) *exec.Cmd {
	cmd := exec.Command(v.Command, "-Q", "-q", quality, "-o", out, in)
	detach(cmd)
	return cmd
}

func (v *Vorbis) Encode(buf *mix.Buffer, dst string) error {
	fail := func(err error) error {
		return &EncodeError{Path: dst, Err: err}
	}

	// The temporary file sits next to the output so that it shares a device
	tmp := filepath.Join(filepath.Dir(dst), "."+uuid.NewString()+".wav")
	defer os.Remove(tmp)
	if err := writeWav(buf, tmp); nil != err {
		return fail(err)
	}

	out := partial(dst)
	quality := strconv.FormatFloat(v.Quality, 'f', -1, 64)
	cmd := v.command(quality, out, tmp)
	if output, err := cmd.CombinedOutput(); nil != err {
		os.Remove(out)
		return fail(fmt.Errorf("%s: %w: %s", v.Command, err, strings.TrimSpace(string(output))))
	}

	if err := os.Rename(out, dst); nil != err {
		os.Remove(out)
		return fail(err)
	}
	return nil
}
