package policy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// Defaults applied to profiles that leave the tunables unset.
const (
	DefaultOverlapMinutes         = 120
	DefaultPromotionWindowMinutes = 60
	DefaultLargePartySize         = 4
)

// Turn is a named seating shift starting at From ("HH:MM"). A turn lasts
// until the next turn starts.
type Turn struct {
	Name string `yaml:"name" json:"name"`
	From string `yaml:"from" json:"from"`
}

// BlockRule forces every table of the listed areas (all areas when empty)
// to read as reserved for times in [Start, End) on the listed weekdays.
// End may be "24:00"; a whole-day block is 00:00 to 24:00.
// Bookings in that window go to the early-waitlist flow with no table.
type BlockRule struct {
	Days    []string `yaml:"days" json:"days"`
	Start   string   `yaml:"start" json:"start"`
	End     string   `yaml:"end" json:"end"`
	AreaIDs []int64  `yaml:"area_ids,omitempty" json:"area_ids,omitempty"`
	Label   string   `yaml:"label,omitempty" json:"label,omitempty"`
}

// Profile is the rule set of one kind of establishment.
type Profile struct {
	Key                    string           `yaml:"key" json:"key"`
	Name                   string           `yaml:"name" json:"name"`
	Windows                []WindowRule     `yaml:"windows,omitempty" json:"windows,omitempty"`
	SubAreas               []SubArea        `yaml:"subareas,omitempty" json:"subareas,omitempty"`
	AreaLabels             map[int64]string `yaml:"area_labels,omitempty" json:"area_labels,omitempty"`
	Turns                  []Turn           `yaml:"turns,omitempty" json:"turns,omitempty"`
	ConfirmedLockAreas     []int64          `yaml:"confirmed_lock_areas,omitempty" json:"confirmed_lock_areas,omitempty"`
	Blocks                 []BlockRule      `yaml:"blocks,omitempty" json:"blocks,omitempty"`
	OverlapMinutes         int              `yaml:"overlap_minutes,omitempty" json:"overlap_minutes"`
	PromotionWindowMinutes int              `yaml:"promotion_window_minutes,omitempty" json:"promotion_window_minutes"`
	LargePartySize         int              `yaml:"large_party_size,omitempty" json:"large_party_size"`
}

// withDefaults fills unset tunables and sorts turns by start.
func (p Profile) withDefaults() Profile {
	if p.OverlapMinutes <= 0 {
		p.OverlapMinutes = DefaultOverlapMinutes
	}
	if p.PromotionWindowMinutes <= 0 {
		p.PromotionWindowMinutes = DefaultPromotionWindowMinutes
	}
	if p.LargePartySize <= 0 {
		p.LargePartySize = DefaultLargePartySize
	}
	if len(p.Turns) > 1 {
		turns := append([]Turn(nil), p.Turns...)
		sort.SliceStable(turns, func(i, j int) bool {
			a, _ := model.ParseMinutes(turns[i].From)
			b, _ := model.ParseMinutes(turns[j].From)
			return a < b
		})
		p.Turns = turns
	}
	return p
}

// Validate checks every time, weekday and key in the profile.
func (p Profile) Validate() error {
	if p.Key == "" {
		return errors.New("profile key is required")
	}
	for i, r := range p.Windows {
		if len(r.Days) == 0 {
			return fmt.Errorf("profile %s: window %d has no days", p.Key, i)
		}
		for _, d := range r.Days {
			if _, err := parseWeekday(d); err != nil {
				return fmt.Errorf("profile %s: window %d: %w", p.Key, i, err)
			}
		}
		if _, err := r.window(); err != nil {
			return fmt.Errorf("profile %s: window %d: %w", p.Key, i, err)
		}
	}
	for i, b := range p.Blocks {
		for _, d := range b.Days {
			if _, err := parseWeekday(d); err != nil {
				return fmt.Errorf("profile %s: block %d: %w", p.Key, i, err)
			}
		}
		start, err := model.ParseMinutes(b.Start)
		if err != nil {
			return fmt.Errorf("profile %s: block %d: %w", p.Key, i, err)
		}
		end, err := model.ParseEndMinutes(b.End)
		if err != nil {
			return fmt.Errorf("profile %s: block %d: %w", p.Key, i, err)
		}
		if end <= start {
			return fmt.Errorf("profile %s: block %d: end %s must be after start %s", p.Key, i, b.End, b.Start)
		}
	}
	for i, t := range p.Turns {
		if _, err := model.ParseMinutes(t.From); err != nil {
			return fmt.Errorf("profile %s: turn %d: %w", p.Key, i, err)
		}
	}
	seen := map[string]bool{}
	for _, s := range p.SubAreas {
		if s.Key == "" || seen[s.Key] {
			return fmt.Errorf("profile %s: sub-area key %q is empty or duplicated", p.Key, s.Key)
		}
		seen[s.Key] = true
		if s.AreaID <= 0 {
			return fmt.Errorf("profile %s: sub-area %s has no area id", p.Key, s.Key)
		}
	}
	return nil
}

// Restricted reports whether the profile enforces operating windows at all.
// A profile without window rules accepts any time.
func (p Profile) Restricted() bool { return len(p.Windows) > 0 }

// WindowsFor returns the operating windows of the weekday of date for the
// given sub-area family ("" for every family). A restricted profile with no
// rule for that weekday returns an empty list: closed all day.
func (p Profile) WindowsFor(date string, family string) ([]Window, error) {
	d, err := model.ParseDate(date)
	if err != nil {
		return nil, err
	}
	windows := []Window{}
	for _, r := range p.Windows {
		if !r.appliesTo(d.Weekday(), family) {
			continue
		}
		w, err := r.window()
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// Allows reports whether a booking at date/time is inside the operating
// windows for the family. Unrestricted profiles allow everything.
func (p Profile) Allows(date, hhmm, family string) (bool, error) {
	if !p.Restricted() {
		if _, err := model.ParseMinutes(hhmm); err != nil {
			return false, err
		}
		return true, nil
	}
	windows, err := p.WindowsFor(date, family)
	if err != nil {
		return false, err
	}
	return IsWithin(hhmm, windows)
}

// FamilyOf returns the family of the sub-area with the given key, or "".
func (p Profile) FamilyOf(subAreaKey string) string {
	if s, ok := p.SubArea(subAreaKey); ok {
		return s.Family
	}
	return ""
}

// HasTurns reports whether the establishment splits evenings into turns.
func (p Profile) HasTurns() bool { return len(p.Turns) > 0 }

// TurnOf returns the index of the turn minute falls in. Minutes before the
// first turn start belong to the first turn.
func (p Profile) TurnOf(minute int) int {
	idx := 0
	for i, t := range p.Turns {
		from, err := model.ParseMinutes(t.From)
		if err != nil {
			continue
		}
		if minute >= from {
			idx = i
		}
	}
	return idx
}

// SameTurn reports whether two minute-of-day values share a turn.
func (p Profile) SameTurn(a, b int) bool {
	return p.TurnOf(a) == p.TurnOf(b)
}

// ConfirmedLock reports whether areaID uses the area-wide confirmed lock:
// a table with any confirmed booking that day is unavailable all day.
func (p Profile) ConfirmedLock(areaID int64) bool {
	for _, id := range p.ConfirmedLockAreas {
		if id == areaID {
			return true
		}
	}
	return false
}

// BlockFor returns the full-day block rule covering areaID at date/time.
// Without a time no block applies.
func (p Profile) BlockFor(date, hhmm string, areaID int64) (BlockRule, bool) {
	if hhmm == "" || len(p.Blocks) == 0 {
		return BlockRule{}, false
	}
	d, err := model.ParseDate(date)
	if err != nil {
		return BlockRule{}, false
	}
	minute, err := model.ParseMinutes(hhmm)
	if err != nil {
		return BlockRule{}, false
	}
	for _, b := range p.Blocks {
		if !b.covers(d.Weekday(), minute, areaID) {
			continue
		}
		return b, true
	}
	return BlockRule{}, false
}

// Blocked is BlockFor without the rule.
func (p Profile) Blocked(date, hhmm string, areaID int64) bool {
	_, ok := p.BlockFor(date, hhmm, areaID)
	return ok
}

func (b BlockRule) covers(day time.Weekday, minute int, areaID int64) bool {
	if !containsDay(b.Days, day) {
		return false
	}
	start, err := model.ParseMinutes(b.Start)
	if err != nil {
		return false
	}
	end, err := model.ParseEndMinutes(b.End)
	if err != nil {
		return false
	}
	if minute < start || minute >= end {
		return false
	}
	if len(b.AreaIDs) == 0 || areaID == 0 {
		return true
	}
	for _, id := range b.AreaIDs {
		if id == areaID {
			return true
		}
	}
	return false
}

// IsLargeParty reports whether a party may book without choosing a table.
func (p Profile) IsLargeParty(size int) bool {
	return size >= p.withDefaults().LargePartySize
}

// OverlapWindow is the span within which two bookings of a table conflict.
func (p Profile) OverlapWindow() int {
	return p.withDefaults().OverlapMinutes
}

// PromotionWindow is the distance between a freed slot and a waitlist
// preference within which the entry is offered the table.
func (p Profile) PromotionWindow() int {
	return p.withDefaults().PromotionWindowMinutes
}
