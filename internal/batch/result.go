package batch

import (
	"context"
	"errors"
	"io/fs"

	"git.lost.host/meutraa/bmspreview/internal/encode"
	"git.lost.host/meutraa/bmspreview/internal/parser"
	"git.lost.host/meutraa/bmspreview/internal/timing"
)

type Outcome int

const (
	Success Outcome = iota
	Failure
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Kind classifies a failure.
type Kind int

const (
	None Kind = iota
	Parse
	MalformedTiming
	OutOfRange
	Encode
	IO
	Aborted
	Internal
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Parse:
		return "parse"
	case MalformedTiming:
		return "malformed timing"
	case OutOfRange:
		return "out of range"
	case Encode:
		return "encode"
	case IO:
		return "io"
	case Aborted:
		return "aborted"
	case Internal:
		return "internal"
	}
	return "unknown"
}

type Result struct {
	Path     string
	Outcome  Outcome
	Kind     Kind
	Message  string
	Output   string
	Warnings []string
}

func Classify(err error) Kind {
	var (
		parse     *parser.ParseError
		malformed *timing.MalformedTimingError
		rng       *timing.OutOfRangeError
		enc       *encode.EncodeError
		path      *fs.PathError
	)
	switch {
	case nil == err:
		return None
	case errors.As(err, &parse):
		return Parse
	case errors.As(err, &malformed):
		return MalformedTiming
	case errors.As(err, &rng):
		return OutOfRange
	case errors.As(err, &enc):
		return Encode
	case errors.Is(err, context.Canceled):
		return Aborted
	case errors.As(err, &path):
		return IO
	}
	return Internal
}

// Summary tallies results.
type Summary struct {
	Success  int
	Failure  int
	Skipped  int
	Warnings int
}

func (s *Summary) Add(r Result) {
	switch r.Outcome {
	case Success:
		s.Success++
	case Failure:
		s.Failure++
	case Skipped:
		s.Skipped++
	}
	s.Warnings += len(r.Warnings)
}

func (s Summary) Total() int {
	return s.Success + s.Failure + s.Skipped
}
