package domain

import (
	"fmt"
	"time"
	_ "time/tzdata" // zone database for hosts without one
)

// DateKeyLayout is the canonical cash day key format.
const DateKeyLayout = "2006-01-02"

// DefaultTimeZone anchors "today" for every operator regardless of the
// device or server zone.
const DefaultTimeZone = "America/Mexico_City"

// DateKey returns the calendar date of t in loc as YYYY-MM-DD.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateKeyLayout)
}

// ValidateDateKey rejects empty keys and anything that is not a real
// calendar date in canonical form.
func ValidateDateKey(key string) error {
	if key == "" {
		return &ErrValidation{Field: "dateKey", Message: "date key is required"}
	}
	t, err := time.Parse(DateKeyLayout, key)
	if err != nil || t.Format(DateKeyLayout) != key {
		return &ErrValidation{Field: "dateKey", Message: fmt.Sprintf("invalid date key %q, expected YYYY-MM-DD", key)}
	}
	return nil
}

// LoadTimeZone resolves the configured zone name, falling back to
// DefaultTimeZone when name is empty.
func LoadTimeZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimeZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return loc, nil
}
