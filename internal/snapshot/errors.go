package snapshot

import "fmt"

// Format error reasons.
const (
	ReasonEmpty             = "no data lines"
	ReasonCommentPlacement  = "comment line found outside header/footer position"
	ReasonHeaderPosition    = "unsupported header position"
	ReasonUnknownColumns    = "unknown columns"
	ReasonInconsistentWidth = "inconsistent column numbers"
	ReasonMalformedCSV      = "malformed csv"
)

// FormatError reports a structural problem with a snapshot document.
type FormatError struct {
	Reason string
	Line   int    // 1-based line in the trimmed text, 0 when not line-specific
	Detail string // optional
	Err    error
}

func (e *FormatError) Error() string {
	msg := e.Reason
	if e.Line > 0 {
		msg = fmt.Sprintf("%s (line %d)", msg, e.Line)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// HeadingError is returned when a declared heading is missing from the
// header a row is mapped against.
type HeadingError struct {
	Heading string
}

func (e *HeadingError) Error() string {
	return fmt.Sprintf("required heading %q not found", e.Heading)
}
