// Package grid builds the weekly occupancy view: seven days by a fixed list
// of half-hour slots.
package grid

import (
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// DefaultSlots are the evening half hours shown on the grid.
var DefaultSlots = []string{
	"18:00", "18:30", "19:00", "19:30", "20:00", "20:30",
	"21:00", "21:30", "22:00", "22:30", "23:00", "23:30",
}

// Cell aggregates the reservations of one day and slot.
type Cell struct {
	Date         string              `json:"date"`
	Slot         string              `json:"slot"`
	Reservations []model.Reservation `json:"reservations"`
	Guests       int                 `json:"guests"`
}

// Day is one row of the grid.
type Day struct {
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
	Cells   []Cell `json:"cells"`
}

// Week is the 7 x len(Slots) matrix, Sunday first.
type Week struct {
	Start string   `json:"start"`
	End   string   `json:"end"`
	Slots []string `json:"slots"`
	Days  []Day    `json:"days"`
}

// WeekBounds returns the Sunday and Saturday around anchor.
func WeekBounds(anchor time.Time) (time.Time, time.Time) {
	d := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, time.UTC)
	start := d.AddDate(0, 0, -int(d.Weekday()))
	return start, start.AddDate(0, 0, 6)
}

// BuildWeek places every reservation whose normalized date and slot fall in
// the week of anchor. Reservations outside the week or off the slot list are
// ignored. The input slice and its elements are not modified. A nil slots
// list uses DefaultSlots.
func BuildWeek(anchor string, reservations []model.Reservation, slots []string) (Week, error) {
	a, err := model.ParseDate(anchor)
	if err != nil {
		return Week{}, err
	}
	if slots == nil {
		slots = DefaultSlots
	}
	keys := make([]string, len(slots))
	slotIndex := make(map[string]int, len(slots))
	for i, s := range slots {
		keys[i] = model.SlotKey(s)
		if keys[i] == "" {
			return Week{}, model.ErrInvalidTime
		}
		slotIndex[keys[i]] = i
	}

	start, end := WeekBounds(a)
	w := Week{
		Start: start.Format(model.DateLayout),
		End:   end.Format(model.DateLayout),
		Slots: keys,
		Days:  make([]Day, 7),
	}
	dayIndex := make(map[string]int, 7)
	for i := range w.Days {
		d := start.AddDate(0, 0, i)
		date := d.Format(model.DateLayout)
		dayIndex[date] = i
		cells := make([]Cell, len(keys))
		for j, k := range keys {
			cells[j] = Cell{Date: date, Slot: k, Reservations: []model.Reservation{}}
		}
		w.Days[i] = Day{Date: date, Weekday: d.Weekday().String(), Cells: cells}
	}

	for _, r := range reservations {
		date, err := model.NormalizeDate(r.Date)
		if err != nil {
			continue
		}
		di, ok := dayIndex[date]
		if !ok {
			continue
		}
		si, ok := slotIndex[model.SlotKey(r.Time)]
		if !ok {
			continue
		}
		cell := &w.Days[di].Cells[si]
		cell.Reservations = append(cell.Reservations, r.Clone())
		cell.Guests += r.PartySize
	}
	return w, nil
}

// Cell returns the cell for date and slot, if it is on the grid.
func (w Week) Cell(date, slot string) (Cell, bool) {
	key := model.SlotKey(slot)
	for _, d := range w.Days {
		if d.Date != date {
			continue
		}
		for _, c := range d.Cells {
			if c.Slot == key {
				return c, true
			}
		}
	}
	return Cell{}, false
}

// Range returns the first and last dates of the week around anchor, in the
// form a reservation filter expects.
func Range(anchor string) (string, string, error) {
	a, err := model.ParseDate(anchor)
	if err != nil {
		return "", "", err
	}
	start, end := WeekBounds(a)
	return start.Format(model.DateLayout), end.Format(model.DateLayout), nil
}
