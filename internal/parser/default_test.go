package parser

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"git.lost.host/meutraa/bmspreview/internal/game"
	"git.lost.host/meutraa/bmspreview/internal/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

func parse(t *testing.T, text string) *game.Chart {
	t.Helper()
	path, err := testdata.WriteChart(t.TempDir(), "chart.bms", text)
	require.NoError(t, err)
	var p Parser = &DefaultParser{}
	chart, err := p.Parse(path)
	require.NoError(t, err)
	return chart
}

func TestParseFixture(t *testing.T) {
	chart := parse(t, testdata.Chart)

	assert.Equal(t, "Fixture", chart.Title)
	assert.Equal(t, "eotw", chart.Artist)
	assert.Equal(t, "Test", chart.Genre)
	assert.Equal(t, int64(1), chart.Resolution)
	assert.Equal(t, int64(12), chart.EndPulse)
	require.Len(t, chart.Measures, 3)
	assert.Equal(t, int64(4), chart.Measures[1].Pulse)

	assert.Equal(t, []game.TempoEvent{{Pulse: 0, BPM: 120}, {Pulse: 8, BPM: 240}}, chart.Tempos)
	require.Len(t, chart.Pauses, 1)
	assert.Equal(t, int64(6), chart.Pauses[0].Pulse)
	assert.InDelta(t, 1.0, chart.Pauses[0].Seconds, 1e-9)

	assert.Equal(t, int64(7), chart.NoteCount)
	assert.Equal(t, int64(1), chart.BackgroundCount)
	assert.Equal(t, "kick.wav", chart.Keysounds["01"])
	assert.Equal(t, "missing.wav", chart.Keysounds["03"])
	assert.Equal(t, filepath.Dir(chart.Path), chart.BaseDir)

	for i := 1; i < len(chart.Notes); i++ {
		assert.LessOrEqual(t, chart.Notes[i-1].Pulse, chart.Notes[i].Pulse)
	}
}

func TestParseResolution(t *testing.T) {
	chart := parse(t, "#BPM 120\n#00011:0101010101\n#00012:010101\n")
	// fifths and thirds of a four beat measure
	assert.Equal(t, int64(15), chart.Resolution)
	pulses := []int64{}
	for _, n := range chart.Notes {
		if n.Channel == "12" {
			pulses = append(pulses, n.Pulse)
		}
	}
	assert.Equal(t, []int64{0, 20, 40}, pulses)
}

func TestParseMeasureLength(t *testing.T) {
	chart := parse(t, "#00002:0.75\n#00111:01\n")
	require.Len(t, chart.Measures, 2)
	assert.Equal(t, 0, chart.Measures[0].Length.Cmp(big.NewRat(3, 4)))
	require.Len(t, chart.Notes, 1)
	assert.Equal(t, chart.Measures[1].Pulse, chart.Notes[0].Pulse)
	assert.Equal(t, int64(3)*chart.Resolution, chart.Notes[0].Pulse)
}

func TestParseRandom(t *testing.T) {
	chart := parse(t, `#RANDOM 2
#IF 1
#00111:01
#ENDIF
#IF 2
#00112:01
#ENDIF
#ENDRANDOM
`)
	require.Len(t, chart.Notes, 1)
	assert.Equal(t, "11", chart.Notes[0].Channel)
}

func TestParseKinds(t *testing.T) {
	chart := parse(t, `#LNOBJ ZZ
#00101:AA
#00111:01ZZ
#00131:02
#000D1:03
#00151:0405
#00126:06
`)
	kinds := map[string]game.NoteKind{}
	for _, n := range chart.Notes {
		kinds[n.Keysound] = n.Kind
	}
	assert.Equal(t, map[string]game.NoteKind{
		"AA": game.Background,
		"01": game.Playable,
		"02": game.Invisible,
		"":   game.Mine,
		"04": game.Playable,
		"06": game.Playable,
	}, kinds)
	assert.Equal(t, int64(1), chart.MineCount)
}

func TestParseLastObjectWins(t *testing.T) {
	chart := parse(t, "#00111:01\n#00111:02\n#00101:03\n#00101:04\n")
	var lane, bgm []string
	for _, n := range chart.Notes {
		if n.Kind == game.Background {
			bgm = append(bgm, n.Keysound)
		} else {
			lane = append(lane, n.Keysound)
		}
	}
	assert.Equal(t, []string{"02"}, lane)
	assert.ElementsMatch(t, []string{"03", "04"}, bgm)
}

func TestParseShiftJIS(t *testing.T) {
	text, err := japanese.ShiftJIS.NewEncoder().String("#TITLE テスト\n#00111:01\n")
	require.NoError(t, err)
	chart := parse(t, text)
	assert.Equal(t, "テスト", chart.Title)
}

func TestParsePreviewHeaders(t *testing.T) {
	chart := parse(t, "#PREVIEW preview.ogg\n#PREVIEWSTART 12.5\n")
	assert.Equal(t, "preview.ogg", chart.PreviewMusic)
	require.NotNil(t, chart.PreviewStart)
	assert.Equal(t, 12.5, *chart.PreviewStart)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"bpm":            "#BPM fast\n",
		"infinite bpm":   "#BPM inf\n#00111:01\n",
		"nan stop":       "#BPM 120\n#STOP01 NaN\n#00111:01\n",
		"nan start":      "#PREVIEWSTART nan\n#00111:01\n",
		"infinite start": "#PREVIEWSTART +Inf\n#00111:01\n",
		"infinite exbpm": "#EXBPM01 -inf\n#00111:01\n",
		"measure length": "#00102:zero\n",
		"odd data":       "#00111:010\n",
		"hex tempo":      "#00103:GG\n",
		"no commands":    "\x00\x01binary",
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			path, err := testdata.WriteChart(t.TempDir(), "chart.bms", text)
			require.NoError(t, err)
			_, err = (&DefaultParser{}).Parse(path)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, path, pe.Path)
		})
	}
}

func TestParseMissingFile(t *testing.T) {
	_, err := (&DefaultParser{}).Parse(filepath.Join(t.TempDir(), "none.bms"))
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFor(t *testing.T) {
	parsers := []Parser{&DefaultParser{}}
	p, ok := For(parsers, "song/HYPER.BME")
	assert.True(t, ok)
	assert.NotNil(t, p)
	_, ok = For(parsers, "song/readme.txt")
	assert.False(t, ok)
	assert.Contains(t, Extensions(parsers), ".pms")
}
