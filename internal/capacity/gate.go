// Package capacity decides whether a new booking fits the establishment and
// picks waitlist entries to seat when a table frees up.
package capacity

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// Rejection reasons.
const (
	ReasonWaitlistConflict = "waitlist_conflict"
	ReasonCapacityExceeded = "capacity_exceeded"
)

// Request is a capacity question for one establishment and date.
type Request struct {
	EstablishmentID      int64
	Date                 string
	Time                 string // optional
	PartySize            int
	ExcludeReservationID int64 // booking being edited; its party is not double counted
}

// Decision is the gate's answer.
type Decision struct {
	OK                 bool                 `json:"ok"`
	Reason             string               `json:"reason,omitempty"`
	TotalCapacity      int                  `json:"total_capacity"`
	ReservedTotal      int                  `json:"reserved_total"`
	BlockingEntry      *model.WaitlistEntry `json:"blocking_entry,omitempty"`
	RedirectToWaitlist bool                 `json:"redirect_to_waitlist"`
}

// Evaluate is the pure gate. A waiting entry for the exact slot wins over
// the capacity check; a capacity rejection redirects to the waitlist.
func Evaluate(areas []model.Area, reservations []model.Reservation, waitlist []model.WaitlistEntry, req Request) (Decision, error) {
	date, err := model.NormalizeDate(req.Date)
	if err != nil {
		return Decision{}, err
	}
	slot := ""
	if req.Time != "" {
		if slot = model.SlotKey(req.Time); slot == "" {
			return Decision{}, fmt.Errorf("%w: %q", model.ErrInvalidTime, req.Time)
		}
	}

	var d Decision
	for _, a := range areas {
		if req.EstablishmentID != 0 && a.EstablishmentID != 0 && a.EstablishmentID != req.EstablishmentID {
			continue
		}
		d.TotalCapacity += a.DinnerCapacity
	}
	for _, r := range reservations {
		if !r.Status.CountsTowardCapacity() {
			continue
		}
		if req.ExcludeReservationID != 0 && r.ID == req.ExcludeReservationID {
			continue
		}
		if req.EstablishmentID != 0 && r.EstablishmentID != 0 && r.EstablishmentID != req.EstablishmentID {
			continue
		}
		if rd, err := model.NormalizeDate(r.Date); err != nil || rd != date {
			continue
		}
		d.ReservedTotal += r.PartySize
	}

	if slot != "" {
		for i := range waitlist {
			e := waitlist[i]
			if e.Status != model.WaitlistWaiting {
				continue
			}
			if req.EstablishmentID != 0 && e.EstablishmentID != req.EstablishmentID {
				continue
			}
			if ed, err := model.NormalizeDate(e.PreferredDate); err != nil || ed != date {
				continue
			}
			if model.SlotKey(e.PreferredTime) != slot {
				continue
			}
			d.Reason = ReasonWaitlistConflict
			d.BlockingEntry = &e
			return d, nil
		}
	}

	if d.ReservedTotal+req.PartySize > d.TotalCapacity {
		d.Reason = ReasonCapacityExceeded
		d.RedirectToWaitlist = true
		return d, nil
	}
	d.OK = true
	return d, nil
}

// Gate fetches the inputs of Evaluate from the backend.
type Gate struct {
	areas        source.AreaSource
	reservations source.ReservationSource
	waitlist     source.WaitlistSource
}

func NewGate(areas source.AreaSource, reservations source.ReservationSource, waitlist source.WaitlistSource) *Gate {
	return &Gate{areas: areas, reservations: reservations, waitlist: waitlist}
}

// CanReserve loads areas, the day's reservations and the waitlist
// concurrently and evaluates req.
func (g *Gate) CanReserve(ctx context.Context, req Request) (Decision, error) {
	date, err := model.NormalizeDate(req.Date)
	if err != nil {
		return Decision{}, err
	}
	var (
		areas        []model.Area
		reservations []model.Reservation
		waitlist     []model.WaitlistEntry
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		areas, err = g.areas.ListAreas(ctx, req.EstablishmentID)
		if err != nil {
			return fmt.Errorf("list areas: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		reservations, err = g.reservations.ListReservations(ctx, source.ReservationFilter{
			EstablishmentID: req.EstablishmentID,
			Date:            date,
		})
		if err != nil {
			return fmt.Errorf("list reservations: %w", err)
		}
		return nil
	})
	if req.Time != "" {
		eg.Go(func() error {
			var err error
			waitlist, err = g.waitlist.ListWaitlist(ctx, req.EstablishmentID)
			if err != nil {
				return fmt.Errorf("list waitlist: %w", err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Decision{}, err
	}
	return Evaluate(areas, reservations, waitlist, req)
}
