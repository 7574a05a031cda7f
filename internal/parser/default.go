package parser

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"git.lost.host/meutraa/bmspreview/internal/game"
	"git.lost.host/meutraa/bmspreview/internal/timing"
)

// Pulses per beat used when the exact resolution of a chart grows too large.
const (
	maxResolution      = 1 << 16
	fallbackResolution = 3840
)

// DefaultParser reads the Be-Music Source family: .bms, .bme, .bml and .pms.
type DefaultParser struct{}

func (p *DefaultParser) Extensions() []string {
	return []string{".bms", ".bme", ".bml", ".pms"}
}

// number parses a finite header value.
func number(value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if nil != err {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not finite", value)
	}
	return v, nil
}

// object is a channel event before pulse positions are known.
type object struct {
	measure int
	channel string
	beat    *big.Rat // Beats from the start of the chart
	value   string
}

type state struct {
	path  string
	chart *game.Chart

	baseBPM  float64
	bpms     map[string]float64
	stops    map[string]float64
	lnobj    string
	lengths  map[int]*big.Rat
	objects  []object
	measures int

	randoms []int
	ifs     []bool
	skip    map[int]bool // Channel lines inside an unselected #IF branch
}

func (s *state) fail(line int, format string, args ...interface{}) error {
	return &ParseError{Path: s.path, Line: line, Err: fmt.Errorf(format, args...)}
}

func (s *state) active() bool {
	for _, b := range s.ifs {
		if !b {
			return false
		}
	}
	return true
}

func (p *DefaultParser) Parse(file string) (*game.Chart, error) {
	data, err := os.ReadFile(file)
	if nil != err {
		return nil, &ParseError{Path: file, Err: err}
	}
	text, err := decodeText(data)
	if nil != err {
		return nil, &ParseError{Path: file, Err: fmt.Errorf("unable to decode text: %w", err)}
	}

	s := &state{
		path: file,
		chart: &game.Chart{
			Path:      file,
			BaseDir:   filepath.Dir(file),
			Keysounds: map[string]string{},
		},
		bpms:    map[string]float64{},
		stops:   map[string]float64{},
		lengths: map[int]*big.Rat{},
		skip:    map[int]bool{},
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r", ""), "\n")
	found := false
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		found = true
		if err := s.control(i+1, line); nil != err {
			return nil, err
		}
	}
	if !found {
		return nil, &ParseError{Path: file, Err: errors.New("no chart commands found")}
	}

	// Deferred so that headers declared after channel lines still apply
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") || !isChannelLine(line) {
			continue
		}
		if s.skip[i+1] {
			continue
		}
		if err := s.channel(i+1, line); nil != err {
			return nil, err
		}
	}

	return s.finish()
}

// control handles headers and #RANDOM blocks. Channel lines are collected in
// a second pass once every header is known.
func (s *state) control(n int, line string) error {
	if isChannelLine(line) {
		if !s.active() {
			s.skip[n] = true
		}
		return nil
	}

	key, value := splitHeader(line[1:])
	switch key {
	case "RANDOM", "SETRANDOM":
		v, err := strconv.Atoi(value)
		if nil != err {
			return s.fail(n, "invalid #%s %q", key, value)
		}
		if key == "RANDOM" {
			// Previews must be reproducible, always take the first branch
			v = 1
		}
		s.randoms = append(s.randoms, v)
	case "ENDRANDOM":
		if len(s.randoms) > 0 {
			s.randoms = s.randoms[:len(s.randoms)-1]
		}
	case "IF":
		v, err := strconv.Atoi(value)
		if nil != err {
			return s.fail(n, "invalid #IF %q", value)
		}
		current := 0
		if len(s.randoms) > 0 {
			current = s.randoms[len(s.randoms)-1]
		}
		s.ifs = append(s.ifs, v == current)
	case "ELSE":
		if len(s.ifs) > 0 {
			s.ifs[len(s.ifs)-1] = !s.ifs[len(s.ifs)-1]
		}
	case "ENDIF", "END":
		if len(s.ifs) > 0 {
			s.ifs = s.ifs[:len(s.ifs)-1]
		}
	default:
		if !s.active() {
			return nil
		}
		return s.header(n, key, value)
	}
	return nil
}

func (s *state) header(n int, key, value string) error {
	switch {
	case key == "TITLE":
		s.chart.Title = value
	case key == "ARTIST":
		s.chart.Artist = value
	case key == "GENRE":
		s.chart.Genre = value
	case key == "PREVIEW":
		s.chart.PreviewMusic = value
	case key == "PREVIEWSTART":
		v, err := number(value)
		if nil != err || v < 0 {
			return s.fail(n, "invalid #PREVIEWSTART %q", value)
		}
		s.chart.PreviewStart = &v
	case key == "LNOBJ":
		s.lnobj = strings.ToUpper(value)
	case key == "BPM":
		v, err := number(value)
		if nil != err {
			return s.fail(n, "invalid #BPM %q", value)
		}
		s.baseBPM = v
	case len(key) == 5 && strings.HasPrefix(key, "BPM"):
		v, err := number(value)
		if nil != err {
			return s.fail(n, "invalid #%s %q", key, value)
		}
		s.bpms[key[3:]] = v
	case len(key) == 7 && strings.HasPrefix(key, "EXBPM"):
		v, err := number(value)
		if nil != err {
			return s.fail(n, "invalid #%s %q", key, value)
		}
		s.bpms[key[5:]] = v
	case len(key) == 6 && strings.HasPrefix(key, "STOP"):
		v, err := number(value)
		if nil != err {
			return s.fail(n, "invalid #%s %q", key, value)
		}
		s.stops[key[4:]] = v
	case len(key) == 5 && strings.HasPrefix(key, "WAV"):
		if value == "" {
			return nil
		}
		s.chart.Keysounds[key[3:]] = filepath.FromSlash(strings.ReplaceAll(value, `\`, "/"))
	}
	return nil
}

func (s *state) channel(n int, line string) error {
	measure, _ := strconv.Atoi(line[1:4])
	channel := strings.ToUpper(line[4:6])
	data := strings.TrimSpace(line[7:])

	if measure+1 > s.measures {
		s.measures = measure + 1
	}

	if channel == "02" {
		length, ok := new(big.Rat).SetString(data)
		if !ok || length.Sign() <= 0 {
			return s.fail(n, "invalid measure length %q", data)
		}
		s.lengths[measure] = length
		return nil
	}

	data = strings.ReplaceAll(data, " ", "")
	if len(data)%2 != 0 {
		return s.fail(n, "odd length object data in channel %s", channel)
	}
	count := len(data) / 2
	for i := 0; i < count; i++ {
		value := strings.ToUpper(data[i*2 : i*2+2])
		if value == "00" {
			continue
		}
		if channel == "03" {
			if _, err := strconv.ParseUint(value, 16, 8); nil != err {
				return s.fail(n, "invalid hex tempo %q", value)
			}
		}
		s.objects = append(s.objects, object{
			measure: measure,
			channel: channel,
			beat:    big.NewRat(int64(i), int64(count)),
			value:   value,
		})
	}
	return nil
}

func (s *state) finish() (*game.Chart, error) {
	chart := s.chart

	// Beat at which each measure starts, one past the end included
	starts := make([]*big.Rat, s.measures+1)
	starts[0] = new(big.Rat)
	lengths := make([]*big.Rat, s.measures)
	for m := 0; m < s.measures; m++ {
		length, ok := s.lengths[m]
		if !ok {
			length = big.NewRat(1, 1)
		}
		lengths[m] = length
		beats := new(big.Rat).Mul(length, big.NewRat(4, 1))
		starts[m+1] = new(big.Rat).Add(starts[m], beats)
	}

	// Object fractions become beats from the start of the chart
	for i := range s.objects {
		o := &s.objects[i]
		beats := new(big.Rat).Mul(lengths[o.measure], big.NewRat(4, 1))
		o.beat.Mul(o.beat, beats)
		o.beat.Add(o.beat, starts[o.measure])
	}

	rats := append([]*big.Rat{}, starts...)
	for _, o := range s.objects {
		rats = append(rats, o.beat)
	}
	chart.Resolution = resolution(rats)
	toPulse := func(beat *big.Rat) int64 {
		return pulse(beat, chart.Resolution)
	}

	for m := 0; m < s.measures; m++ {
		chart.Measures = append(chart.Measures, game.Measure{
			Index:  m,
			Pulse:  toPulse(starts[m]),
			Length: lengths[m],
		})
	}
	chart.EndPulse = toPulse(starts[s.measures])

	if s.baseBPM != 0 {
		chart.Tempos = append(chart.Tempos, game.TempoEvent{Pulse: 0, BPM: s.baseBPM})
	}
	for _, o := range s.objects {
		switch o.channel {
		case "03":
			v, _ := strconv.ParseUint(o.value, 16, 8)
			chart.Tempos = append(chart.Tempos, game.TempoEvent{Pulse: toPulse(o.beat), BPM: float64(v)})
		case "08":
			bpm, ok := s.bpms[o.value]
			if !ok {
				continue
			}
			chart.Tempos = append(chart.Tempos, game.TempoEvent{Pulse: toPulse(o.beat), BPM: bpm})
		}
	}
	// Tempo events keep their declaration order within a pulse, last wins
	sort.SliceStable(chart.Tempos, func(i, j int) bool { return chart.Tempos[i].Pulse < chart.Tempos[j].Pulse })

	if err := s.pauses(toPulse); nil != err {
		return nil, err
	}
	s.notes(toPulse)

	return chart, nil
}

// pauses converts #STOP objects, measured in 192nds of a whole note at the
// tempo in effect, into seconds.
func (s *state) pauses(toPulse func(*big.Rat) int64) error {
	chart := s.chart
	var stops []object
	for _, o := range s.objects {
		if o.channel == "09" {
			if _, ok := s.stops[o.value]; ok {
				stops = append(stops, o)
			}
		}
	}
	if len(stops) == 0 {
		return nil
	}

	m, err := timing.Build(chart.Tempos, nil, chart.Resolution)
	if nil != err {
		return err
	}
	engine := timing.NewEngine(m)
	for _, o := range stops {
		p := toPulse(o.beat)
		bpm, err := engine.TempoAt(p)
		if nil != err {
			return err
		}
		beats := s.stops[o.value] / 48
		chart.Pauses = append(chart.Pauses, game.PauseEvent{Pulse: p, Seconds: beats * 60 / bpm})
	}
	return nil
}

func (s *state) notes(toPulse func(*big.Rat) int64) {
	chart := s.chart
	type slot struct {
		channel string
		pulse   int64
	}
	seen := map[slot]int{}
	longOpen := map[string]bool{}

	sorted := make([]object, len(s.objects))
	copy(sorted, s.objects)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].beat.Cmp(sorted[j].beat) < 0 })

	for _, o := range sorted {
		kind, lane, ok := classify(o.channel)
		if !ok {
			continue
		}
		if kind == game.Playable && s.lnobj != "" && o.value == s.lnobj && o.channel[0] != '5' && o.channel[0] != '6' {
			// The release of a long note
			continue
		}
		if o.channel[0] == '5' || o.channel[0] == '6' {
			// Long note heads and tails alternate, only heads sound
			longOpen[o.channel] = !longOpen[o.channel]
			if !longOpen[o.channel] {
				continue
			}
		}

		note := &game.Note{
			Pulse:    toPulse(o.beat),
			Channel:  o.channel,
			Lane:     lane,
			Keysound: o.value,
			Kind:     kind,
		}
		if kind == game.Mine {
			note.Keysound = ""
		}

		// One object per lane and pulse, the later one wins
		key := slot{channel: o.channel, pulse: note.Pulse}
		if kind != game.Background {
			if i, ok := seen[key]; ok {
				chart.Notes[i] = note
				continue
			}
			seen[key] = len(chart.Notes)
		}
		chart.Notes = append(chart.Notes, note)
	}

	for _, n := range chart.Notes {
		switch n.Kind {
		case game.Playable:
			chart.NoteCount++
		case game.Background:
			chart.BackgroundCount++
		case game.Mine:
			chart.MineCount++
		}
	}
}

// classify maps a channel to a note kind and lane.
//
// 01 – Background
// 1x 2x – Player 1 and 2 notes
// 3x 4x – Invisible notes
// 5x 6x – Long notes
// Dx Ex – Mines
func classify(channel string) (game.NoteKind, int, bool) {
	if channel == "01" {
		return game.Background, 0, true
	}
	lane, err := strconv.ParseInt(channel[1:], 36, 64)
	if nil != err || lane == 0 {
		return 0, 0, false
	}
	switch channel[0] {
	case '1', '5':
		return game.Playable, int(lane), true
	case '2', '6':
		return game.Playable, 36 + int(lane), true
	case '3':
		return game.Invisible, int(lane), true
	case '4':
		return game.Invisible, 36 + int(lane), true
	case 'D':
		return game.Mine, int(lane), true
	case 'E':
		return game.Mine, 36 + int(lane), true
	}
	return 0, 0, false
}

func isChannelLine(line string) bool {
	if len(line) < 7 || line[6] != ':' {
		return false
	}
	for _, c := range line[1:4] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func splitHeader(line string) (string, string) {
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return strings.ToUpper(line), ""
	}
	return strings.ToUpper(line[:i]), strings.TrimSpace(line[i+1:])
}

// resolution returns the smallest pulses per beat that places every beat
// exactly, or fallbackResolution when that exceeds maxResolution.
func resolution(beats []*big.Rat) int64 {
	lcm := big.NewInt(1)
	limit := big.NewInt(maxResolution)
	gcd := new(big.Int)
	for _, b := range beats {
		d := b.Denom()
		gcd.GCD(nil, nil, lcm, d)
		lcm.Mul(lcm, new(big.Int).Quo(d, gcd))
		if lcm.Cmp(limit) > 0 {
			return fallbackResolution
		}
	}
	return lcm.Int64()
}

func pulse(beat *big.Rat, resolution int64) int64 {
	p := new(big.Rat).Mul(beat, big.NewRat(resolution, 1))
	if p.IsInt() {
		return p.Num().Int64()
	}
	f, _ := p.Float64()
	return int64(f + 0.5)
}
