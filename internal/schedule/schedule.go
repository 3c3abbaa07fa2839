// Package schedule decides which distribution start dates are allowed and
// which of them require the express surcharge.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTimezone is the reference timezone for "today".
const DefaultTimezone = "Europe/Zurich"

// DefaultStandardLeadDays is the lead time of the standard start date.
const DefaultStandardLeadDays = 10

const layout = "2006-01-02"

// ErrInvalidDate is returned when a date cannot be parsed.
var ErrInvalidDate = errors.New("schedule: invalid date")

// Date is a calendar date without time of day. The zero value means unset.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD value. An empty value yields the zero Date.
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Date{}, nil
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d == Date{} }

// AddDays returns the date n days later, normalising overflow.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.compare(other) < 0
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return d.compare(other) > 0
}

func (d Date) compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return d.Year - other.Year
	case d.Month != other.Month:
		return int(d.Month) - int(other.Month)
	default:
		return d.Day - other.Day
	}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// MarshalJSON encodes the date as "YYYY-MM-DD" or null when unset.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD", "" or null.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, data)
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML encodes the date as a plain string.
func (d Date) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts "YYYY-MM-DD" scalars.
func (d *Date) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Calendar derives the allowed and standard start dates relative to "today"
// in a fixed reference timezone.
type Calendar struct {
	Location         *time.Location
	StandardLeadDays int
}

// NewCalendar loads the named timezone.
func NewCalendar(timezone string, leadDays int) (Calendar, error) {
	if strings.TrimSpace(timezone) == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Calendar{}, fmt.Errorf("schedule: load timezone %q: %w", timezone, err)
	}
	return Calendar{Location: loc, StandardLeadDays: leadDays}, nil
}

// Today returns the calendar date of now in the reference timezone.
func (c Calendar) Today(now time.Time) Date {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(now.In(loc))
}

// MinDate is the earliest allowed start date: the next calendar day.
func (c Calendar) MinDate(now time.Time) Date {
	return c.Today(now).AddDays(1)
}

// StandardDate is the default start date that needs no express surcharge.
func (c Calendar) StandardDate(now time.Time) Date {
	lead := c.StandardLeadDays
	if lead <= 0 {
		lead = DefaultStandardLeadDays
	}
	return c.Today(now).AddDays(lead)
}

// Allowed reports whether start is on or after the minimum date.
func (c Calendar) Allowed(start Date, now time.Time) bool {
	return !start.IsZero() && !start.Before(c.MinDate(now))
}

// ExpressApplicable reports whether start falls strictly before the standard
// date while still being an allowed date.
func (c Calendar) ExpressApplicable(start Date, now time.Time) bool {
	return c.Allowed(start, now) && start.Before(c.StandardDate(now))
}
