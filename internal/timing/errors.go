package timing

import "fmt"

// MalformedTimingError reports tempo or pause data that cannot form a tempo map.
type MalformedTimingError struct {
	Pulse  int64
	Reason string
}

func (e *MalformedTimingError) Error() string {
	return fmt.Sprintf("malformed timing at pulse %d: %s", e.Pulse, e.Reason)
}

// OutOfRangeError reports a query outside of the tempo map.
type OutOfRangeError struct {
	Pulse int64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("pulse %d is before the start of the tempo map", e.Pulse)
}
