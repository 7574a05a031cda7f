package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"git.lost.host/meutraa/bmspreview/internal/game"
)

// Parser reads one chart dialect into the shared event model.
type Parser interface {
	// Extensions lists the lower case file extensions this dialect reads.
	Extensions() []string
	Parse(file string) (*game.Chart, error)
}

// ParseError reports a chart that could not be read.
type ParseError struct {
	Path string
	Line int // 0 when the error is not tied to a line
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("unable to parse %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("unable to parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// For returns the first parser that reads the extension of file.
func For(parsers []Parser, file string) (Parser, bool) {
	ext := strings.ToLower(filepath.Ext(file))
	for _, p := range parsers {
		for _, e := range p.Extensions() {
			if e == ext {
				return p, true
			}
		}
	}
	return nil, false
}

// Extensions returns every extension the parsers read.
func Extensions(parsers []Parser) []string {
	exts := []string{}
	for _, p := range parsers {
		exts = append(exts, p.Extensions()...)
	}
	return exts
}
