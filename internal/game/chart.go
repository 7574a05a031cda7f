package game

// Chart is the dialect independent event model every parser produces.
type Chart struct {
	Path    string
	BaseDir string // Keysound paths are relative to this directory

	Title  string
	Artist string
	Genre  string

	// Resolution is the number of pulses per beat.
	Resolution int64
	// EndPulse is the first pulse after the last measure.
	EndPulse int64

	Tempos   []TempoEvent
	Pauses   []PauseEvent
	Notes    []*Note
	Measures []Measure

	// Keysounds maps keysound identifiers to paths relative to BaseDir.
	Keysounds map[string]string

	// PreviewMusic is a declared preview file, the chart needs no generated one.
	PreviewMusic string
	// PreviewStart is a declared preview start in seconds.
	PreviewStart *float64

	NoteCount       int64
	BackgroundCount int64
	MineCount       int64
}
