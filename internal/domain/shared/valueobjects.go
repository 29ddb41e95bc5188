// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Identifiers are opaque strings issued by the collaborator that owns registration
// (UUIDs in practice); the engine only checks their shape.
var idRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-:.]{0,127}$`)

// ValidateID checks that an identifier is non-empty and well formed.
func ValidateID(domain, field, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return NewDomainError(domain, "Validate", ErrEmptyValue, field+" is required")
	}
	if !idRegex.MatchString(id) {
		return NewDomainError(domain, "Validate", ErrInvalidID, "invalid "+field)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Date Value Object
// ═══════════════════════════════════════════════════════════════════════════

// DateFormat is the canonical text form of a Date.
const DateFormat = "2006-01-02"

// Date is a calendar day with no time-of-day or zone. The zero value means
// "no date" (e.g. a habit that was never completed).
type Date struct {
	t time.Time // always midnight UTC
}

// NewDate creates a date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t as observed in loc (nil means t's own zone).
func DateOf(t time.Time, loc *time.Location) Date {
	if t.IsZero() {
		return Date{}
	}
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, WrapError("shared", "ParseDate", ErrInvalidInput, "invalid date", err)
	}
	return Date{t: t}, nil
}

// IsZero reports whether the date is absent.
func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return d.t
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	if d.IsZero() {
		return d
	}
	return Date{t: d.t.AddDate(0, 0, n)}
}

// DaysSince returns the number of calendar days from earlier to d.
func (d Date) DaysSince(earlier Date) int {
	return int(d.t.Sub(earlier.t).Hours() / 24)
}

// Equal reports whether both dates denote the same day.
func (d Date) Equal(other Date) bool {
	return d.t.Equal(other.t)
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	return d.t.Before(other.t)
}

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool {
	return d.t.After(other.t)
}

// String returns YYYY-MM-DD, or an empty string for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateFormat)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Rank Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Rank represents a position on a leaderboard.
type Rank int

const (
	MinRank  Rank = 1
	Unranked Rank = 0 // Not yet ranked
)

// IsValid checks if the rank is valid.
func (r Rank) IsValid() bool {
	return r >= MinRank
}

// Int returns the underlying int value.
func (r Rank) Int() int {
	return int(r)
}

// IsUnranked checks if the entry has no position yet.
func (r Rank) IsUnranked() bool {
	return r == Unranked
}

// IsTop returns true if the rank is in the top N.
func (r Rank) IsTop(n int) bool {
	return r.IsValid() && int(r) <= n
}

// NewRank creates a new Rank with validation.
func NewRank(position int) (Rank, error) {
	if position < 0 {
		return Unranked, NewDomainError("shared", "NewRank", ErrNegativeValue, "rank cannot be negative")
	}
	return Rank(position), nil
}
