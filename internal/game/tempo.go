package game

// TempoEvent sets the tempo from Pulse onwards.
type TempoEvent struct {
	Pulse int64
	BPM   float64
}

// PauseEvent stops the chart for Seconds at Pulse.
type PauseEvent struct {
	Pulse   int64
	Seconds float64
}
