// Package ytab parses the colon-delimited machine-readable output that
// Spectrum Scale administrative commands emit under the -Y flag.
//
// Every line carries the same fixed prefix: the command identifier, a
// section tag (empty for single-section commands), a HEADER marker on
// header rows, a format version and two reserved fields. Named columns
// start at field seven and line up by absolute position between a
// header row and the data rows that follow it in the same section.
package ytab

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	idxCommand = 0
	idxSection = 1
	idxMarker  = 2
	idxVersion = 3

	// Named columns begin after the version and two reserved fields.
	idxFirstColumn = 6

	headerMarker = "HEADER"
)

// Header describes one HEADER row: which command and section it belongs
// to and where each named column sits in the raw field list.
type Header struct {
	Command string
	Section string
	Version string
	Line    int

	raw   string
	names []string       // declared column names in field order
	index map[string]int // column name -> absolute field index
	width int            // total field count of the header row
}

// Columns returns the declared column names in field order.
func (h *Header) Columns() []string { return h.names }

// Index returns the absolute field index of a named column.
func (h *Header) Index(name string) (int, bool) {
	i, ok := h.index[name]
	return i, ok
}

// Row is one data row together with the header that governs it.
type Row struct {
	Line   int // 1-based line number within the blob
	Header *Header

	raw    string
	fields []string
}

// Raw returns the row exactly as read, byte for byte.
func (r Row) Raw() string { return r.raw }

// Field returns the unescaped value of a named column. The second
// result is false when the governing header does not declare the
// column.
func (r Row) Field(name string) (string, bool) {
	i, ok := r.Header.index[name]
	if !ok {
		return "", false
	}
	return Unescape(r.fields[i]), true
}

// Scanner walks a -Y blob line by line, tracking the most recent header
// per section and yielding one Item per data row. It consumes its
// reader as it goes: a fully scanned blob cannot be rescanned.
//
// Blank lines are skipped, as are the "***" report banners that the
// quota report command interleaves with its records.
type Scanner struct {
	sc      *bufio.Scanner
	line    int
	headers map[string]*Header
	item    Item
}

// Item is the outcome of scanning one data line: either a well-formed
// Row or a *FormatError describing why the line could not be framed.
type Item struct {
	Row Row
	Err error
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Scanner{sc: sc, headers: make(map[string]*Header)}
}

// Scan advances to the next data row, skipping header rows after
// recording them. It returns false when the blob is exhausted.
func (s *Scanner) Scan() bool {
	for s.sc.Scan() {
		s.line++
		line := s.sc.Text()
		if line == "" || strings.HasPrefix(line, "***") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) <= idxFirstColumn {
			s.item = Item{Err: &FormatError{Line: s.line, Raw: line, Reason: "too few fields for a record"}}
			return true
		}
		if fields[idxMarker] == headerMarker {
			s.recordHeader(line, fields)
			continue
		}
		section := fields[idxSection]
		h, ok := s.headers[section]
		if !ok {
			s.item = Item{Err: &FormatError{Line: s.line, Raw: line, Reason: fmt.Sprintf("data row before any header for section %q", section)}}
			return true
		}
		if len(fields) != h.width {
			s.item = Item{Err: &FormatError{
				Line:   s.line,
				Raw:    line,
				Reason: fmt.Sprintf("field count %d does not match header field count %d", len(fields), h.width),
			}}
			return true
		}
		s.item = Item{Row: Row{Line: s.line, Header: h, raw: line, fields: fields}}
		return true
	}
	return false
}

// Item returns the row or error produced by the last successful Scan.
func (s *Scanner) Item() Item { return s.item }

// Err returns the first error encountered while reading the underlying
// source, if any.
func (s *Scanner) Err() error { return s.sc.Err() }

func (s *Scanner) recordHeader(line string, fields []string) {
	h := &Header{
		Command: fields[idxCommand],
		Section: fields[idxSection],
		Version: fields[idxVersion],
		Line:    s.line,
		raw:     line,
		names:   fields[idxFirstColumn:],
		index:   make(map[string]int, len(fields)-idxFirstColumn),
		width:   len(fields),
	}
	for i := idxFirstColumn; i < len(fields); i++ {
		if fields[i] == "" {
			continue
		}
		h.index[fields[i]] = i
	}
	s.headers[h.Section] = h
}

// Escape applies the %xx encoding to the delimiter and escape bytes so
// a value can be embedded in a -Y field. Values free of both bytes,
// identifiers in particular, pass through unchanged.
func Escape(s string) string {
	if !strings.ContainsAny(s, ":%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ':':
			b.WriteString("%3A")
		case '%':
			b.WriteString("%25")
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Unescape reverses the %xx encoding -Y output applies to characters
// that would collide with the field delimiter. Sequences that are not
// two hex digits are preserved literally.
func Unescape(s string) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if ok1 && ok2 {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
