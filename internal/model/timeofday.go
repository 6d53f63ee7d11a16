package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical calendar date format ("YYYY-MM-DD") used for
// reservation dates, waitlist preferences and grid day keys.
const DateLayout = "2006-01-02"

// ErrInvalidTime is returned when a time-of-day string is not HH:MM or HH:MM:SS.
var ErrInvalidTime = errors.New("invalid time of day")

// ErrInvalidDate is returned when a date string cannot be normalized.
var ErrInvalidDate = errors.New("invalid date")

// MinutesPerDay is the number of minutes in a calendar day.
const MinutesPerDay = 24 * 60

// ParseMinutes converts "HH:MM" or "HH:MM:SS" into a minute-of-day value.
// Single digit hours ("9:30") are accepted. Seconds are validated and dropped.
func ParseMinutes(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 || len(parts[0]) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 || len(parts[2]) != 2 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
	}
	return h*60 + m, nil
}

// ParseEndMinutes parses the exclusive end of a range. Besides what
// ParseMinutes accepts it allows "24:00" (or "24:00:00") for the end of the
// day, so a range can cover the last minute.
func ParseEndMinutes(s string) (int, error) {
	switch strings.TrimSpace(s) {
	case "24:00", "24:00:00":
		return MinutesPerDay, nil
	}
	return ParseMinutes(s)
}

// FormatMinutes renders a minute-of-day as "HH:MM". Values outside a day are
// wrapped so that 25:00 renders as 01:00.
func FormatMinutes(minutes int) string {
	minutes = ((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeTime returns the wire form "HH:MM:SS" of a time-of-day string.
func NormalizeTime(s string) (string, error) {
	m, err := ParseMinutes(s)
	if err != nil {
		return "", err
	}
	return FormatMinutes(m) + ":00", nil
}

// SlotKey strips seconds and zero-pads a time so "19:00:00", "19:00" and
// "9:00" compare equal to their canonical "HH:MM" slot. Invalid input yields "".
func SlotKey(s string) string {
	m, err := ParseMinutes(s)
	if err != nil {
		return ""
	}
	return FormatMinutes(m)
}

// NormalizeDate accepts "YYYY-MM-DD" or an RFC 3339 timestamp such as
// "2025-09-10T00:00:00Z" and returns the calendar part. The timestamp is not
// shifted between zones: the date written before the "T" is the date kept.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "T "); i >= 0 {
		s = s[:i]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t.Format(DateLayout), nil
}

// ParseDate normalizes s and returns it as a UTC midnight time.Time.
func ParseDate(s string) (time.Time, error) {
	d, err := NormalizeDate(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(DateLayout, d)
}
