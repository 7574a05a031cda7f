package render

import (
	"path/filepath"
	"strings"
)

const DefaultOutputName = "preview_auto_generated.ogg"

type Settings struct {
	OutputName string
	// Mirrors the chart directories relative to Roots when set, otherwise
	// previews are written next to their chart
	OutputDir string
	Roots     []string
	Overwrite bool
	// Render charts that already declare a preview file
	ReplaceDeclared bool
	// 0 picks the most common keysound rate
	SampleRate int
	Channels   int
}

func (s Settings) target(chart string) string {
	name := s.OutputName
	if name == "" {
		name = DefaultOutputName
	}
	dir := filepath.Dir(chart)
	if s.OutputDir == "" {
		return filepath.Join(dir, name)
	}

	abs, err := filepath.Abs(dir)
	if nil != err {
		abs = dir
	}
	for _, root := range s.Roots {
		r, err := filepath.Abs(root)
		if nil != err {
			continue
		}
		rel, err := filepath.Rel(r, abs)
		if nil != err || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return filepath.Join(s.OutputDir, filepath.Base(r), rel, name)
	}
	return filepath.Join(s.OutputDir, filepath.Base(abs), name)
}
