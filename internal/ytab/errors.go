package ytab

import "fmt"

// FormatError reports a structurally malformed line: a data row with no
// governing header, a field count that does not match the header, or a
// header missing a column an entity schema requires.
type FormatError struct {
	Line   int    // 1-based line number within the blob
	Raw    string // the offending line as read
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Raw)
}

// DecodeError reports a field value that failed to convert to its
// declared type.
type DecodeError struct {
	Entity string // entity type, e.g. "disk"
	Column string
	Line   int
	Value  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d: decoding %s.%s: %s: %q", e.Line, e.Entity, e.Column, e.Reason, e.Value)
}
