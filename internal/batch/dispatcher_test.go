package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"git.lost.host/meutraa/bmspreview/internal/encode"
	"git.lost.host/meutraa/bmspreview/internal/game"
	"git.lost.host/meutraa/bmspreview/internal/mix"
	"git.lost.host/meutraa/bmspreview/internal/parser"
	"git.lost.host/meutraa/bmspreview/internal/preview"
	"git.lost.host/meutraa/bmspreview/internal/render"
	"git.lost.host/meutraa/bmspreview/internal/testdata"
	"git.lost.host/meutraa/bmspreview/internal/timing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fake renders by looking up the chart name
type fake struct {
	delay time.Duration
	calls atomic.Int32
}

func (f *fake) Target(chart string) string {
	return filepath.Join(filepath.Dir(chart), "preview.ogg")
}

func (f *fake) Render(ctx context.Context, chart string) (*render.Report, error) {
	f.calls.Add(1)
	time.Sleep(f.delay)

	switch filepath.Base(chart) {
	case "corrupt.bms":
		return nil, &parser.ParseError{Path: chart, Err: errors.New("corrupt header")}
	case "panic.bms":
		panic("boom")
	case "declared.bms":
		return &render.Report{Chart: chart, Skipped: true, Reason: "chart declares preview"}, nil
	}
	return &render.Report{Chart: chart, Output: f.Target(chart), Warnings: []string{"1 notes skipped: missing samples"}}, nil
}

func collect(ctx context.Context, d *Dispatcher, paths []string) []Result {
	results := []Result{}
	for r := range d.Run(ctx, paths) {
		results = append(results, r)
	}
	return results
}

func TestRunOrder(t *testing.T) {
	paths := []string{"a/one.bms", "b/corrupt.bms", "c/three.bms"}
	for _, workers := range []int{1, 2, 8} {
		results := collect(context.Background(), NewDispatcher(&fake{}, workers), paths)
		require.Len(t, results, 3)
		assert.Equal(t, Success, results[0].Outcome)
		assert.Equal(t, Failure, results[1].Outcome)
		assert.Equal(t, Parse, results[1].Kind)
		assert.Contains(t, results[1].Message, "corrupt header")
		assert.Equal(t, Success, results[2].Outcome)
		for i, r := range results {
			assert.Equal(t, paths[i], r.Path)
		}
	}
}

func TestRunOrderManyFiles(t *testing.T) {
	paths := []string{}
	for i := 0; i < 100; i++ {
		paths = append(paths, fmt.Sprintf("song%03d/chart.bms", i))
	}
	results := collect(context.Background(), NewDispatcher(&fake{}, 7), paths)
	require.Len(t, results, len(paths))
	for i, r := range results {
		assert.Equal(t, paths[i], r.Path)
		assert.Equal(t, Success, r.Outcome)
	}
}

func TestRunIsolation(t *testing.T) {
	paths := []string{"a/panic.bms", "b/declared.bms", "c/ok.bms"}
	results := collect(context.Background(), NewDispatcher(&fake{}, 2), paths)
	require.Len(t, results, 3)
	assert.Equal(t, Failure, results[0].Outcome)
	assert.Equal(t, Internal, results[0].Kind)
	assert.Equal(t, "panic: boom", results[0].Message)
	assert.Equal(t, Skipped, results[1].Outcome)
	assert.Equal(t, Success, results[2].Outcome)
	assert.Equal(t, []string{"1 notes skipped: missing samples"}, results[2].Warnings)
}

func TestRunSharedOutput(t *testing.T) {
	f := &fake{}
	paths := []string{"song/normal.bms", "song/hyper.bms", "other/chart.bms"}
	results := collect(context.Background(), NewDispatcher(f, 1), paths)
	assert.Equal(t, Success, results[0].Outcome)
	assert.Equal(t, Skipped, results[1].Outcome)
	assert.Contains(t, results[1].Message, "song/normal.bms")
	assert.Equal(t, Success, results[2].Outcome)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestRunAbort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fake{}
	results := collect(ctx, NewDispatcher(f, 2), []string{"a/x.bms", "b/y.bms"})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, Failure, r.Outcome)
		assert.Equal(t, Aborted, r.Kind)
	}
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestRunAbortMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &fake{delay: 20 * time.Millisecond}
	paths := []string{}
	for i := 0; i < 20; i++ {
		paths = append(paths, fmt.Sprintf("song%02d/chart.bms", i))
	}

	results := []Result{}
	for r := range NewDispatcher(f, 1).Run(ctx, paths) {
		results = append(results, r)
		if len(results) == 2 {
			cancel()
		}
	}
	require.Len(t, results, 20)
	assert.Equal(t, Success, results[0].Outcome)
	assert.Equal(t, Aborted, results[19].Kind)
	// Every started chart finished
	for _, r := range results {
		if r.Outcome == Success {
			continue
		}
		assert.Equal(t, Aborted, r.Kind)
	}
	assert.Less(t, int(f.calls.Load()), 20)
}

func TestRunStopEarly(t *testing.T) {
	f := &fake{delay: 5 * time.Millisecond}
	paths := []string{"a/1.bms", "b/2.bms", "c/3.bms", "d/4.bms", "e/5.bms", "f/6.bms"}
	for r := range NewDispatcher(f, 1).Run(context.Background(), paths) {
		assert.Equal(t, "a/1.bms", r.Path)
		break
	}
	assert.Less(t, int(f.calls.Load()), len(paths))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
	}{
		{nil, None},
		{&parser.ParseError{Path: "a"}, Parse},
		{fmt.Errorf("wrapped: %w", &timing.MalformedTimingError{Reason: "negative tempo"}), MalformedTiming},
		{&timing.OutOfRangeError{Pulse: -1}, OutOfRange},
		{&encode.EncodeError{Path: "a", Err: errors.New("oggenc missing")}, Encode},
		{context.Canceled, Aborted},
		{&os.PathError{Op: "open", Path: "a", Err: os.ErrNotExist}, IO},
		{errors.New("other"), Internal},
	}
	for _, test := range tests {
		if kind := Classify(test.err); kind != test.kind {
			t.Log("error   ", test.err)
			t.Log("expected", test.kind)
			t.Log("got     ", kind)
			t.Fail()
		}
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"b/hyper.BME", "a/normal.bms", "a/notes.txt", "c/d/deep.pms", "a/kick.wav"} {
		_, err := testdata.WriteChart(root, name, "")
		require.NoError(t, err)
	}
	direct, err := testdata.WriteChart(t.TempDir(), "direct.txt", "")
	require.NoError(t, err)

	charts, err := Discover([]string{root, direct, root}, (&parser.DefaultParser{}).Extensions())
	require.NoError(t, err)
	expected := []string{
		filepath.Join(root, "a", "normal.bms"),
		filepath.Join(root, "b", "hyper.BME"),
		filepath.Join(root, "c", "d", "deep.pms"),
		direct,
	}
	assert.ElementsMatch(t, expected, charts)
	assert.Len(t, charts, 4)
	for i := 1; i < len(charts); i++ {
		assert.True(t, strings.Compare(charts[i-1], charts[i]) < 0)
	}

	_, err = Discover([]string{filepath.Join(root, "missing")}, nil)
	assert.Error(t, err)
}

// stepmania reads a dialect the default parser does not
type stepmania struct{}

func (stepmania) Extensions() []string {
	return []string{".sm"}
}

func (stepmania) Parse(file string) (*game.Chart, error) {
	return &game.Chart{Path: file}, nil
}

func TestDiscoverDialects(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a/chart.bms", "b/song.sm", "b/song.ssc"} {
		_, err := testdata.WriteChart(root, name, "")
		require.NoError(t, err)
	}

	parsers := []parser.Parser{&parser.DefaultParser{}, stepmania{}}
	charts, err := Discover([]string{root}, parser.Extensions(parsers))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a", "chart.bms"),
		filepath.Join(root, "b", "song.sm"),
	}, charts)

	charts, err = Discover([]string{root}, parser.Extensions(parsers[1:]))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "b", "song.sm")}, charts)
}

// The three file scenario through the real pipeline
func TestRunPipeline(t *testing.T) {
	root := t.TempDir()
	one, err := testdata.WriteChart(root, "one/chart.bms", testdata.Chart)
	require.NoError(t, err)
	two, err := testdata.WriteChart(root, "two/chart.bms", "#BPM 120\n#00111:0\n")
	require.NoError(t, err)
	three, err := testdata.WriteChart(root, "three/chart.bms", testdata.Chart)
	require.NoError(t, err)

	r := &render.DefaultRenderer{
		Parsers: []parser.Parser{&parser.DefaultParser{}},
		Selector: preview.NewSelector(preview.Settings{
			Duration: 30, MinNoteDensity: 8, FallbackFraction: 0.25,
		}),
		Compositor: mix.NewCompositor(mix.DefaultOptions()),
		Vorbis:     encode.NewVorbis("", encode.DefaultQuality),
		Settings:   render.Settings{OutputName: "preview.wav"},
	}
	results := collect(context.Background(), NewDispatcher(r, 0), []string{one, two, three})
	require.Len(t, results, 3)
	assert.Equal(t, Success, results[0].Outcome)
	assert.Equal(t, Failure, results[1].Outcome)
	assert.Equal(t, Parse, results[1].Kind)
	assert.Equal(t, Success, results[2].Outcome)
	_, err = os.Stat(filepath.Join(root, "three", "preview.wav"))
	assert.NoError(t, err)
}
