// Package availability decides which tables of an area can be offered for a
// date and, optionally, a time.
package availability

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/policy"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// ErrUnknownSubArea is returned when the query names a sub-area the
// establishment's catalog does not have.
var ErrUnknownSubArea = errors.New("unknown sub-area")

// ErrInvalidQuery is returned for a query without area or with a malformed
// date or time.
var ErrInvalidQuery = errors.New("invalid availability query")

// Query describes one availability question.
type Query struct {
	EstablishmentID      int64
	AreaID               int64
	Date                 string
	Time                 string // optional; empty means the whole day
	PartySize            int
	SubArea              string // optional sub-area key
	ExcludeReservationID int64  // the reservation being edited, if any
}

func (q Query) normalize() (Query, error) {
	if q.AreaID <= 0 {
		return q, fmt.Errorf("%w: area id is required", ErrInvalidQuery)
	}
	d, err := model.NormalizeDate(q.Date)
	if err != nil {
		return q, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	q.Date = d
	if q.Time != "" {
		t, err := model.NormalizeTime(q.Time)
		if err != nil {
			return q, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		q.Time = t
	}
	return q, nil
}

// Resolver annotates the tables of an area with their reserved state.
type Resolver struct {
	tables       source.TableSource
	reservations source.ReservationSource
	profiles     *policy.Registry
	logger       *log.Logger
}

// NewResolver wires a resolver. tables is usually a WithFallback combinator
// over the primary source and a CatalogSource.
func NewResolver(tables source.TableSource, reservations source.ReservationSource, profiles *policy.Registry, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New("availability")
		logger.SetOutput(io.Discard)
	}
	return &Resolver{tables: tables, reservations: reservations, profiles: profiles, logger: logger}
}

// Profiles exposes the registry the resolver reads rules from.
func (r *Resolver) Profiles() *policy.Registry { return r.profiles }

// Resolve fetches the day's reservations of the establishment and answers q.
func (r *Resolver) Resolve(ctx context.Context, q Query) ([]model.Table, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	reservations, err := r.reservations.ListReservations(ctx, source.ReservationFilter{
		EstablishmentID: q.EstablishmentID,
		Date:            q.Date,
	})
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return r.ResolveWith(ctx, q, reservations)
}

// ResolveWith answers q against a reservation set the caller already holds.
func (r *Resolver) ResolveWith(ctx context.Context, q Query, reservations []model.Reservation) ([]model.Table, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	profile := r.profiles.ForEstablishment(q.EstablishmentID)

	var subArea *policy.SubArea
	if q.SubArea != "" {
		sa, ok := profile.SubArea(q.SubArea)
		if !ok || sa.AreaID != q.AreaID {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSubArea, q.SubArea)
		}
		subArea = &sa
	}

	tables, err := r.tables.ListTables(ctx, source.TableQuery{
		EstablishmentID: q.EstablishmentID,
		AreaID:          q.AreaID,
		Date:            q.Date,
	})
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables = mergeCatalog(tables, profile, q.AreaID)

	if subArea != nil {
		filtered := tables[:0:0]
		for _, t := range tables {
			if subArea.HasTable(t.Number) {
				filtered = append(filtered, t)
			}
		}
		tables = filtered
	}

	out := Annotate(profile, q, tables, reservations)
	r.logger.Debugf("resolved %d tables for establishment %d area %d on %s %s", len(out), q.EstablishmentID, q.AreaID, q.Date, q.Time)
	return out, nil
}

// Annotate recomputes IsReserved on a copy of tables. q must be normalized.
//
// Precedence: a full-day block marks every table; otherwise a table is
// reserved when an active booking sharing it occupies the queried time (any
// time when q has none), when an area-blocking booking occupies the time, or
// when the area uses the confirmed lock and the table has a confirmed
// booking that day. The source's own flag is trusted only without a time.
func Annotate(profile policy.Profile, q Query, tables []model.Table, reservations []model.Reservation) []model.Table {
	out := make([]model.Table, len(tables))
	copy(out, tables)

	if profile.Blocked(q.Date, q.Time, q.AreaID) {
		for i := range out {
			out[i].IsReserved = true
		}
		return out
	}

	relevant := inScope(q, reservations)
	occupies := occupancyFunc(profile, q)

	areaBlocked := false
	for _, res := range relevant {
		if res.BlocksArea && occupies(res) {
			areaBlocked = true
			break
		}
	}
	confirmedLock := profile.ConfirmedLock(q.AreaID)

	for i := range out {
		t := &out[i]
		reserved := q.Time == "" && t.IsReserved
		if areaBlocked {
			reserved = true
		}
		for _, res := range relevant {
			if reserved {
				break
			}
			if !res.HasTable(t.Number) {
				continue
			}
			if occupies(res) {
				reserved = true
			}
			if confirmedLock && res.Status == model.StatusConfirmed {
				reserved = true
			}
		}
		t.IsReserved = reserved
	}
	return out
}

// inScope keeps the active reservations of the queried day and area.
func inScope(q Query, reservations []model.Reservation) []model.Reservation {
	var out []model.Reservation
	for _, res := range reservations {
		if !res.Status.Active() {
			continue
		}
		if res.ID != 0 && res.ID == q.ExcludeReservationID {
			continue
		}
		if q.EstablishmentID != 0 && res.EstablishmentID != 0 && res.EstablishmentID != q.EstablishmentID {
			continue
		}
		if res.AreaID != q.AreaID {
			continue
		}
		if d, err := model.NormalizeDate(res.Date); err != nil || d != q.Date {
			continue
		}
		out = append(out, res)
	}
	return out
}

// occupancyFunc returns the rule deciding whether an in-scope reservation
// occupies the queried time: any time of day without a query time, the same
// turn for turn-based profiles, otherwise the overlap window.
func occupancyFunc(profile policy.Profile, q Query) func(model.Reservation) bool {
	if q.Time == "" {
		return func(model.Reservation) bool { return true }
	}
	minute, _ := model.ParseMinutes(q.Time)
	window := profile.OverlapWindow()
	return func(res model.Reservation) bool {
		m, err := res.Minutes()
		if err != nil {
			// a booking with an unreadable time blocks the table
			return true
		}
		if profile.HasTurns() {
			return profile.SameTurn(m, minute)
		}
		return Overlaps(m, minute, window)
	}
}

// Overlaps reports whether two minute-of-day values lie less than window
// minutes apart. It is symmetric and does not wrap around midnight.
func Overlaps(a, b, window int) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < window
}

// Free returns the unreserved tables that seat partySize. Tables without a
// declared capacity are assumed to fit.
func Free(tables []model.Table, partySize int) []model.Table {
	var out []model.Table
	for _, t := range tables {
		if t.IsReserved {
			continue
		}
		if t.Capacity > 0 && partySize > 0 && t.Capacity < partySize {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Check reports which of the requested table numbers are occupied and which
// are not part of the annotated list at all.
func Check(tables []model.Table, numbers []string) (occupied, unknown []string) {
	index := make(map[string]model.Table, len(tables))
	for _, t := range tables {
		index[t.Number] = t
	}
	for _, n := range numbers {
		t, ok := index[n]
		switch {
		case !ok:
			unknown = append(unknown, n)
		case t.IsReserved:
			occupied = append(occupied, n)
		}
	}
	return occupied, unknown
}
