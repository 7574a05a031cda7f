package ledger

// Ledger remembers which chart contents produced which preview, so that
// unchanged charts can be skipped on later runs.
type Ledger interface {
	// Unchanged reports whether the chart with this content sum last
	// rendered to output.
	Unchanged(chart, sum, output string) (bool, error)

	// Record a successful render
	Record(chart, sum, output string) error

	Close() error
}

type Entry struct {
	Run    string
	Chart  string
	Sum    string
	Output string
}
