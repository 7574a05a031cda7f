package keysound

import "fmt"

// Sample is a decoded keysound. It is shared by every note that plays it
// and must not be modified.
type Sample struct {
	ID         string
	Path       string
	PCM        []float32 // Interleaved, full scale is 1.0
	SampleRate int
	Channels   int
}

// Frames returns the number of samples per channel.
func (s *Sample) Frames() int {
	return len(s.PCM) / s.Channels
}

// Seconds returns the playback length.
func (s *Sample) Seconds() float64 {
	return float64(s.Frames()) / float64(s.SampleRate)
}

// MissingSampleError reports a keysound that could not be located.
type MissingSampleError struct {
	ID   string
	Path string // Empty when the chart never declared the keysound
}

func (e *MissingSampleError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("keysound %s is not declared", e.ID)
	}
	return fmt.Sprintf("keysound %s not found at %s", e.ID, e.Path)
}

// DecodeError reports a keysound file in an unsupported or broken encoding.
type DecodeError struct {
	ID   string
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unable to decode keysound %s (%s): %v", e.ID, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
