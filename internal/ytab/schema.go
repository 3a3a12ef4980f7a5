package ytab

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind declares how a column's raw text converts to a Go value.
type Kind uint8

const (
	String  Kind = iota // unescaped text
	Uint                // unsigned decimal
	Int                 // signed decimal
	Bool                // yes/no/1/0
	Size                // kilobyte count on the wire, exposed in bytes
	SizeInt             // signed kilobyte count, exposed in bytes
	List                // comma-separated names
	Grace               // quota grace period
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Uint:
		return "uint"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Size:
		return "size"
	case SizeInt:
		return "sizeint"
	case List:
		return "list"
	case Grace:
		return "grace"
	}
	return "unknown"
}

// Column is one declared column of an entity schema.
type Column struct {
	Name     string
	Kind     Kind
	Required bool
}

// Schema declares the columns an entity type reads from its rows.
// Columns the schema does not declare are ignored, which is what lets
// newer command versions add fields without breaking older readers.
type Schema struct {
	Entity  string
	Columns []Column
}

func (s *Schema) column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Bind resolves the schema's columns against a concrete header. Every
// required column must be present; the result maps column names to
// their absolute field positions for the rows that follow this header.
func (s *Schema) Bind(h *Header) (*Binding, error) {
	b := &Binding{schema: s, header: h, idx: make(map[string]int, len(s.Columns))}
	for _, c := range s.Columns {
		i, ok := h.index[c.Name]
		if !ok {
			if c.Required {
				return nil, &FormatError{
					Line:   h.Line,
					Raw:    h.raw,
					Reason: fmt.Sprintf("header is missing required %s column %q", s.Entity, c.Name),
				}
			}
			continue
		}
		b.idx[c.Name] = i
	}
	return b, nil
}

// Binding is a schema resolved against one header.
type Binding struct {
	schema *Schema
	header *Header
	idx    map[string]int
}

// Row pairs a data row with the binding so its fields can be read by
// column name.
func (b *Binding) Row(r Row) BoundRow { return BoundRow{b: b, row: r} }

// BoundRow reads typed values out of one data row.
type BoundRow struct {
	b   *Binding
	row Row
}

// Line returns the row's 1-based line number within the blob.
func (r BoundRow) Line() int { return r.row.Line }

// Has reports whether the column was declared by the schema and present
// in the header.
func (r BoundRow) Has(name string) bool {
	_, ok := r.b.idx[name]
	return ok
}

func (r BoundRow) raw(name string, want Kind) (string, *DecodeError) {
	c, ok := r.b.schema.column(name)
	if !ok {
		return "", r.decodeErr(name, "", "column not declared by schema")
	}
	if c.Kind != want {
		return "", r.decodeErr(name, "", fmt.Sprintf("column declared %s, read as %s", c.Kind, want))
	}
	i, ok := r.b.idx[name]
	if !ok {
		return "", r.decodeErr(name, "", "column not present in header")
	}
	return r.row.fields[i], nil
}

// String returns the unescaped text of a column, or "" when the column
// is absent from the header.
func (r BoundRow) String(name string) string {
	i, ok := r.b.idx[name]
	if !ok {
		return ""
	}
	return Unescape(r.row.fields[i])
}

// Uint converts a column to an unsigned 64-bit integer. Overflow is an
// error, never a silent wraparound.
func (r BoundRow) Uint(name string) (uint64, error) {
	raw, derr := r.raw(name, Uint)
	if derr != nil {
		return 0, derr
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, r.decodeErr(name, raw, uintReason(err))
	}
	return v, nil
}

// Int converts a column to a signed 64-bit integer.
func (r BoundRow) Int(name string) (int64, error) {
	raw, derr := r.raw(name, Int)
	if derr != nil {
		return 0, derr
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, r.decodeErr(name, raw, intReason(err))
	}
	return v, nil
}

// Bool converts a column using the yes/no convention of -Y output:
// "yes" and "1" are true, "no" and "0" are false, anything else is a
// decode error.
func (r BoundRow) Bool(name string) (bool, error) {
	raw, derr := r.raw(name, Bool)
	if derr != nil {
		return false, derr
	}
	switch raw {
	case "yes", "1":
		return true, nil
	case "no", "0":
		return false, nil
	}
	return false, r.decodeErr(name, raw, "not a yes/no value")
}

// Size converts a kilobyte column to bytes.
func (r BoundRow) Size(name string) (uint64, error) {
	raw, derr := r.raw(name, Size)
	if derr != nil {
		return 0, derr
	}
	kb, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, r.decodeErr(name, raw, uintReason(err))
	}
	if kb > math.MaxUint64/1024 {
		return 0, r.decodeErr(name, raw, "kilobyte count overflows a byte count")
	}
	return kb * 1024, nil
}

// SizeInt converts a signed kilobyte column to bytes. Quota usage can
// legitimately go negative while the server reconciles in-doubt space.
func (r BoundRow) SizeInt(name string) (int64, error) {
	raw, derr := r.raw(name, SizeInt)
	if derr != nil {
		return 0, derr
	}
	kb, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, r.decodeErr(name, raw, intReason(err))
	}
	if kb > math.MaxInt64/1024 || kb < math.MinInt64/1024 {
		return 0, r.decodeErr(name, raw, "kilobyte count overflows a byte count")
	}
	return kb * 1024, nil
}

// List splits a comma-separated column into its elements. An empty
// column yields nil.
func (r BoundRow) List(name string) ([]string, error) {
	raw, derr := r.raw(name, List)
	if derr != nil {
		return nil, derr
	}
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, Unescape(p))
	}
	return out, nil
}

// Grace converts a quota grace column.
func (r BoundRow) Grace(name string) (GracePeriod, error) {
	raw, derr := r.raw(name, Grace)
	if derr != nil {
		return GracePeriod{}, derr
	}
	g, err := ParseGrace(raw)
	if err != nil {
		return GracePeriod{}, r.decodeErr(name, raw, err.Error())
	}
	return g, nil
}

func (r BoundRow) decodeErr(name, value, reason string) *DecodeError {
	return &DecodeError{
		Entity: r.b.schema.Entity,
		Column: name,
		Line:   r.row.Line,
		Value:  value,
		Reason: reason,
	}
}

func uintReason(err error) string {
	if errors.Is(err, strconv.ErrRange) {
		return "value out of unsigned 64-bit range"
	}
	return "not an unsigned integer"
}

func intReason(err error) string {
	if errors.Is(err, strconv.ErrRange) {
		return "value out of signed 64-bit range"
	}
	return "not an integer"
}

// GraceState classifies a quota grace period.
type GraceState uint8

const (
	GraceNone    GraceState = iota // no soft limit exceeded
	GraceExpired                   // grace ran out, soft limit now enforced
	GraceRunning                   // time remaining before enforcement
)

func (s GraceState) String() string {
	switch s {
	case GraceNone:
		return "none"
	case GraceExpired:
		return "expired"
	case GraceRunning:
		return "running"
	}
	return "unknown"
}

// GracePeriod is a decoded quota grace value. Remaining is zero unless
// State is GraceRunning.
type GracePeriod struct {
	State     GraceState
	Remaining time.Duration
}

// ParseGrace decodes the grace column of quota records: "none",
// "expired", or a count with a unit suffix such as "6days" or
// "2hours".
func ParseGrace(s string) (GracePeriod, error) {
	switch s {
	case "none":
		return GracePeriod{State: GraceNone}, nil
	case "expired":
		return GracePeriod{State: GraceExpired}, nil
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) {
		return GracePeriod{}, fmt.Errorf("not a grace period")
	}
	n, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil {
		return GracePeriod{}, fmt.Errorf("not a grace period")
	}
	var unit time.Duration
	switch strings.TrimSpace(s[i:]) {
	case "day", "days":
		unit = 24 * time.Hour
	case "hour", "hours":
		unit = time.Hour
	case "min", "mins", "minute", "minutes":
		unit = time.Minute
	case "sec", "secs", "second", "seconds":
		unit = time.Second
	default:
		return GracePeriod{}, fmt.Errorf("unknown grace unit %q", s[i:])
	}
	if n > uint64(math.MaxInt64/unit) {
		return GracePeriod{}, fmt.Errorf("grace period out of range")
	}
	return GracePeriod{State: GraceRunning, Remaining: time.Duration(n) * unit}, nil
}
