package game

// NoteKind classifies a note by how it sounds during playback.
type NoteKind uint8

const (
	// Playable notes are hit by the player and sound their keysound.
	Playable NoteKind = iota
	// Background notes sound automatically.
	Background
	// Invisible notes carry a keysound that only sounds when hit.
	Invisible
	// Mine notes damage the player and never sound.
	Mine
)

func (k NoteKind) String() string {
	switch k {
	case Playable:
		return "playable"
	case Background:
		return "background"
	case Invisible:
		return "invisible"
	case Mine:
		return "mine"
	}
	return "unknown"
}

// Audible reports whether an autoplayed preview sounds this kind of note.
func (k NoteKind) Audible() bool {
	return k == Playable || k == Background
}

type Note struct {
	Pulse    int64  // Position in pulses from the start of the chart
	Channel  string // The source channel, "11", "01" etc
	Lane     int    // The column, 0 for background notes
	Keysound string // Keysound identifier, empty when silent
	Kind     NoteKind
}
