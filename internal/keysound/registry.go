package keysound

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Extensions tried in order when a declared keysound file does not exist.
var Extensions = []string{".wav", ".ogg", ".mp3"}

// Option configures a Registry.
type Option interface {
	apply(*Registry)
}

type loggerOption struct {
	logger *slog.Logger
}

func (o loggerOption) apply(r *Registry) {
	r.logger = o.logger
}

// WithLogger sets the logger used for decode diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return loggerOption{logger: logger}
}

type decoderOption struct {
	decode func(path string) (*Sample, error)
}

func (o decoderOption) apply(r *Registry) {
	r.decode = o.decode
}

// WithDecoder replaces the audio decoder.
func WithDecoder(decode func(path string) (*Sample, error)) Option {
	return decoderOption{decode: decode}
}

// call is one decode or probe, shared by every caller asking for the same id.
type call struct {
	done    chan struct{}
	sample  *Sample
	seconds float64
	err     error
}

// Registry owns the decoded keysounds of one chart. Every id is decoded at
// most once, concurrent callers wait for the same decode.
//
// It is safe to call methods on Registry from multiple goroutines.
type Registry struct {
	baseDir string
	paths   map[string]string
	logger  *slog.Logger
	decode  func(path string) (*Sample, error)

	mu      sync.Mutex
	samples map[string]*call
	probes  map[string]*call
	dirs    map[string]map[string]string // lower case name to name, per directory
}

// NewRegistry creates a registry for keysounds declared relative to baseDir.
func NewRegistry(baseDir string, paths map[string]string, opts ...Option) *Registry {
	r := &Registry{
		baseDir: baseDir,
		paths:   paths,
		logger:  slog.Default(),
		decode:  decode,
		samples: map[string]*call{},
		probes:  map[string]*call{},
		dirs:    map[string]map[string]string{},
	}
	for _, opt := range opts {
		opt.apply(r)
	}
	return r
}

// Resolve returns the decoded keysound for id, decoding it on first use.
func (r *Registry) Resolve(id string) (*Sample, error) {
	c, owner := r.start(r.samples, id)
	if !owner {
		<-c.done
		return c.sample, c.err
	}
	defer close(c.done)

	path, err := r.locate(id)
	if nil != err {
		c.err = err
		return nil, err
	}
	s, err := r.decode(path)
	if nil != err {
		c.err = &DecodeError{ID: id, Path: path, Err: err}
		return nil, c.err
	}
	s.ID = id
	c.sample = s
	r.logger.Debug("decoded keysound", "id", id, "path", path, "rate", s.SampleRate, "channels", s.Channels, "frames", s.Frames())
	return s, nil
}

// Probe returns the length of a keysound in seconds, without decoding it
// unless it has been decoded already.
func (r *Registry) Probe(id string) (float64, error) {
	r.mu.Lock()
	if c, ok := r.samples[id]; ok {
		r.mu.Unlock()
		<-c.done
		if nil != c.err {
			return 0, c.err
		}
		return c.sample.Seconds(), nil
	}
	r.mu.Unlock()

	c, owner := r.start(r.probes, id)
	if !owner {
		<-c.done
		return c.seconds, c.err
	}
	defer close(c.done)

	path, err := r.locate(id)
	if nil != err {
		c.err = err
		return 0, err
	}
	seconds, err := length(path)
	if nil != err {
		c.err = &DecodeError{ID: id, Path: path, Err: err}
		return 0, c.err
	}
	c.seconds = seconds
	return seconds, nil
}

// start returns the call for id in calls, creating it when the caller is
// the first to ask.
func (r *Registry) start(calls map[string]*call, id string) (*call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := calls[id]; ok {
		return c, false
	}
	c := &call{done: make(chan struct{})}
	calls[id] = c
	return c, true
}

// Release drops every decoded keysound.
func (r *Registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = map[string]*call{}
	r.probes = map[string]*call{}
	r.dirs = map[string]map[string]string{}
}

// locate finds the file of a keysound. Charts are often authored on case
// insensitive file systems and reference .wav files that were later
// converted, so other cases and extensions are accepted.
func (r *Registry) locate(id string) (string, error) {
	rel, ok := r.paths[id]
	if !ok {
		return "", &MissingSampleError{ID: id}
	}
	path := filepath.Join(r.baseDir, rel)
	if _, err := os.Stat(path); nil == err {
		return path, nil
	}

	dir := filepath.Dir(path)
	names := r.listing(dir)
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	candidates := []string{filepath.Base(path)}
	for _, ext := range Extensions {
		candidates = append(candidates, stem+ext)
	}
	for _, candidate := range candidates {
		if name, ok := names[strings.ToLower(candidate)]; ok {
			return filepath.Join(dir, name), nil
		}
	}
	return "", &MissingSampleError{ID: id, Path: path}
}

func (r *Registry) listing(dir string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if names, ok := r.dirs[dir]; ok {
		return names
	}
	names := map[string]string{}
	entries, err := os.ReadDir(dir)
	if nil != err && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("unable to list keysound directory", "dir", dir, "err", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			names[strings.ToLower(e.Name())] = e.Name()
		}
	}
	r.dirs[dir] = names
	return names
}
