// Package policy holds the per-establishment rules the availability engine
// applies: operating windows, the sub-area catalog, seating turns, full-day
// blocks and the tunable durations used for overlap and waitlist promotion.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// Window is an operating window in minutes of the day. End < Start means the
// window crosses midnight (18:00–01:00).
type Window struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label,omitempty"`
}

// CrossesMidnight reports whether the window ends on the next day.
func (w Window) CrossesMidnight() bool { return w.End < w.Start }

// Contains reports whether minute falls inside the window, bounds included.
func (w Window) Contains(minute int) bool {
	if w.CrossesMidnight() {
		return minute >= w.Start || minute <= w.End
	}
	return w.Start <= minute && minute <= w.End
}

// String renders the window as "HH:MM-HH:MM".
func (w Window) String() string {
	return model.FormatMinutes(w.Start) + "-" + model.FormatMinutes(w.End)
}

// IsWithinWindows reports whether minute is inside any window. An empty list
// means closed all day and always returns false.
func IsWithinWindows(minute int, windows []Window) bool {
	for _, w := range windows {
		if w.Contains(minute) {
			return true
		}
	}
	return false
}

// IsWithin is IsWithinWindows for an "HH:MM[:SS]" time string.
func IsWithin(hhmm string, windows []Window) (bool, error) {
	m, err := model.ParseMinutes(hhmm)
	if err != nil {
		return false, err
	}
	return IsWithinWindows(m, windows), nil
}

// WindowRule is the configuration form of a weekday window. Families limits
// the rule to sub-areas of those families; an empty list applies to all.
type WindowRule struct {
	Days     []string `yaml:"days" json:"days"`
	Start    string   `yaml:"start" json:"start"`
	End      string   `yaml:"end" json:"end"`
	Label    string   `yaml:"label,omitempty" json:"label,omitempty"`
	Families []string `yaml:"families,omitempty" json:"families,omitempty"`
}

func (r WindowRule) window() (Window, error) {
	start, err := model.ParseMinutes(r.Start)
	if err != nil {
		return Window{}, err
	}
	end, err := model.ParseMinutes(r.End)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: start, End: end, Label: r.Label}, nil
}

func (r WindowRule) appliesTo(day time.Weekday, family string) bool {
	if !containsDay(r.Days, day) {
		return false
	}
	if len(r.Families) == 0 || family == "" {
		return true
	}
	for _, f := range r.Families {
		if strings.EqualFold(f, family) {
			return true
		}
	}
	return false
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return d, nil
}

func containsDay(days []string, day time.Weekday) bool {
	for _, s := range days {
		if d, err := parseWeekday(s); err == nil && d == day {
			return true
		}
	}
	return false
}
