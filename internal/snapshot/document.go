package snapshot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

const (
	commentPrefix = "*"
	headerPrefix  = "#"
)

// Document is a parsed snapshot: a header and equal-width rows.
type Document struct {
	ColumnCount int
	Header      []string
	Rows        [][]string
}

// Parse parses snapshot text against the recognized heading set.
func Parse(text string) (*Document, error) {
	return ParseWithHeadings(text, RecognizedHeadings())
}

// ParseWithHeadings parses snapshot text whose header must consist of
// exactly the given headings (in any order).
//
// Layout: optional leading/trailing "*" comment lines, then a single "#"
// header line, then comma-separated data rows. Rows shorter than the header
// are right-padded with empty cells; longer rows are rejected.
func ParseWithHeadings(text string, headings []string) (*Document, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &FormatError{Reason: ReasonEmpty}
	}

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	// Strip leading and trailing comment runs.
	start, stop := 0, len(lines)
	for start < stop && strings.HasPrefix(lines[start], commentPrefix) {
		start++
	}
	for stop > start && strings.HasPrefix(lines[stop-1], commentPrefix) {
		stop--
	}
	if start == stop {
		return nil, &FormatError{Reason: ReasonEmpty}
	}

	var headerLines []int
	for i := start; i < stop; i++ {
		switch {
		case strings.HasPrefix(lines[i], commentPrefix):
			return nil, &FormatError{Reason: ReasonCommentPlacement, Line: i + 1}
		case strings.HasPrefix(lines[i], headerPrefix):
			headerLines = append(headerLines, i)
		}
	}
	if len(headerLines) != 1 || headerLines[0] != start {
		return nil, &FormatError{
			Reason: ReasonHeaderPosition,
			Detail: fmt.Sprintf("header lines at %v, expected exactly one at line %d", oneBased(headerLines), start+1),
		}
	}

	header, err := readLine(strings.TrimPrefix(lines[start], headerPrefix))
	if err != nil {
		return nil, &FormatError{Reason: ReasonMalformedCSV, Line: start + 1, Err: err}
	}
	if err := checkColumns(header, headings); err != nil {
		return nil, err
	}

	n := len(header)
	doc := &Document{ColumnCount: n, Header: header}

	body := strings.Join(lines[start+1:stop], "\n")
	r := csv.NewReader(strings.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true // operator messages carry bare quotes
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &FormatError{Reason: ReasonMalformedCSV, Err: err}
		}
		if len(row) > n {
			line, _ := r.FieldPos(0)
			return nil, &FormatError{
				Reason: ReasonInconsistentWidth,
				Line:   start + 1 + line,
				Detail: fmt.Sprintf("found %d columns, header has %d", len(row), n),
			}
		}
		for len(row) < n {
			row = append(row, "")
		}
		doc.Rows = append(doc.Rows, row)
	}

	return doc, nil
}

// Index returns the column of heading, or -1.
func (d *Document) Index(heading string) int {
	for i, h := range d.Header {
		if h == heading {
			return i
		}
	}
	return -1
}

func readLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rec, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []string{}, nil
	}
	return rec, err
}

// checkColumns requires header to be exactly the expected heading set.
func checkColumns(header, expected []string) error {
	want := make(map[string]bool, len(expected))
	for _, h := range expected {
		want[h] = true
	}

	seen := make(map[string]bool, len(header))
	var unknown, duplicate []string
	for _, h := range header {
		if seen[h] {
			duplicate = append(duplicate, h)
		}
		seen[h] = true
		if !want[h] {
			unknown = append(unknown, h)
		}
	}

	var missing []string
	for h := range want {
		if !seen[h] {
			missing = append(missing, h)
		}
	}
	sort.Strings(missing)

	if len(unknown) == 0 && len(missing) == 0 && len(duplicate) == 0 {
		return nil
	}

	var parts []string
	if len(unknown) > 0 {
		parts = append(parts, "unexpected "+strings.Join(unknown, ","))
	}
	if len(missing) > 0 {
		parts = append(parts, "missing "+strings.Join(missing, ","))
	}
	if len(duplicate) > 0 {
		parts = append(parts, "duplicate "+strings.Join(duplicate, ","))
	}
	return &FormatError{Reason: ReasonUnknownColumns, Detail: strings.Join(parts, "; ")}
}

func oneBased(idx []int) []int {
	out := make([]int, len(idx))
	for i, v := range idx {
		out[i] = v + 1
	}
	return out
}
