package source

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// Memory is an in-process Backend. It serves local development
// (SOURCE_BACKEND=memory) and tests.
type Memory struct {
	mu           sync.Mutex
	areas        []model.Area
	tables       []model.Table
	reservations map[int64]model.Reservation
	waitlist     map[int64]model.WaitlistEntry
	guestLists   []GuestListRequest
	keys         map[string]int64
	waitlistKeys map[string]int64
	nextID       int64

	// CheckConflict, when set, is consulted on every reservation write with
	// the other active reservations of the same day; a non-nil result
	// rejects the write.
	CheckConflict func(existing []model.Reservation, r model.Reservation) error
}

func NewMemory() *Memory {
	return &Memory{
		reservations: map[int64]model.Reservation{},
		waitlist:     map[int64]model.WaitlistEntry{},
		keys:         map[string]int64{},
		waitlistKeys: map[string]int64{},
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// AddArea registers an area.
func (m *Memory) AddArea(a model.Area) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.areas = append(m.areas, a)
}

// AddTable registers a table.
func (m *Memory) AddTable(t model.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = append(m.tables, t)
}

// Seed stores reservations as-is, assigning ids to those without one.
func (m *Memory) Seed(rs ...model.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rs {
		if r.ID == 0 {
			r.ID = m.id()
		} else if r.ID > m.nextID {
			m.nextID = r.ID
		}
		if r.Version == 0 {
			r.Version = 1
		}
		m.reservations[r.ID] = r.Clone()
	}
}

// SeedWaitlist stores waitlist entries as-is.
func (m *Memory) SeedWaitlist(es ...model.WaitlistEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range es {
		if e.ID == 0 {
			e.ID = m.id()
		} else if e.ID > m.nextID {
			m.nextID = e.ID
		}
		m.waitlist[e.ID] = e
	}
}

// GuestLists returns the guest-list requests received so far.
func (m *Memory) GuestLists() []GuestListRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GuestListRequest(nil), m.guestLists...)
}

func (m *Memory) ListAreas(_ context.Context, establishmentID int64) ([]model.Area, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Area
	for _, a := range m.areas {
		if establishmentID == 0 || a.EstablishmentID == establishmentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) ListTables(_ context.Context, q TableQuery) ([]model.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Table
	for _, t := range m.tables {
		if t.AreaID == q.AreaID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) ListReservations(_ context.Context, f ReservationFilter) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Reservation
	for _, r := range m.reservations {
		if matches(f, r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matches(f ReservationFilter, r model.Reservation) bool {
	if f.EstablishmentID != 0 && r.EstablishmentID != f.EstablishmentID {
		return false
	}
	if f.AreaID != 0 && r.AreaID != f.AreaID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	date, err := model.NormalizeDate(r.Date)
	if err != nil {
		return f.Date == "" && f.DateFrom == "" && f.DateTo == ""
	}
	if f.Date != "" && date != f.Date {
		return false
	}
	if f.DateFrom != "" && date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && date > f.DateTo {
		return false
	}
	return true
}

func (m *Memory) GetReservation(_ context.Context, id int64) (model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return model.Reservation{}, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	return r.Clone(), nil
}

func (m *Memory) checkConflict(r model.Reservation) error {
	if m.CheckConflict == nil || !r.Status.Active() {
		return nil
	}
	date, _ := model.NormalizeDate(r.Date)
	var day []model.Reservation
	for _, other := range m.reservations {
		if other.ID == r.ID || !other.Status.Active() || other.EstablishmentID != r.EstablishmentID {
			continue
		}
		if d, _ := model.NormalizeDate(other.Date); d == date {
			day = append(day, other.Clone())
		}
	}
	return m.CheckConflict(day, r)
}

func (m *Memory) CreateReservation(_ context.Context, r model.Reservation, opts WriteOptions) (model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if opts.IdempotencyKey != "" {
		if id, ok := m.keys[opts.IdempotencyKey]; ok {
			return m.reservations[id].Clone(), nil
		}
	}
	r.ID = 0
	if err := m.checkConflict(r); err != nil {
		return model.Reservation{}, err
	}
	r.ID = m.id()
	r.Version = 1
	r.UpdatedAt = time.Now().UTC()
	m.reservations[r.ID] = r.Clone()
	if opts.IdempotencyKey != "" {
		m.keys[opts.IdempotencyKey] = r.ID
	}
	return r, nil
}

func (m *Memory) UpdateReservation(_ context.Context, r model.Reservation, _ WriteOptions) (model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.reservations[r.ID]
	if !ok {
		return model.Reservation{}, fmt.Errorf("reservation %d: %w", r.ID, ErrNotFound)
	}
	if err := m.checkConflict(r); err != nil {
		return model.Reservation{}, err
	}
	r.Version = prev.Version + 1
	r.UpdatedAt = time.Now().UTC()
	m.reservations[r.ID] = r.Clone()
	return r, nil
}

func (m *Memory) ListWaitlist(_ context.Context, establishmentID int64) ([]model.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.WaitlistEntry
	for _, e := range m.waitlist {
		if establishmentID == 0 || e.EstablishmentID == establishmentID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateWaitlistEntry(_ context.Context, e model.WaitlistEntry, opts WriteOptions) (model.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if opts.IdempotencyKey != "" {
		if id, ok := m.waitlistKeys[opts.IdempotencyKey]; ok {
			return m.waitlist[id], nil
		}
	}
	e.ID = m.id()
	if e.Status == "" {
		e.Status = model.WaitlistWaiting
	}
	if e.Position == 0 {
		pos := 0
		for _, other := range m.waitlist {
			if other.EstablishmentID == e.EstablishmentID && other.Position > pos {
				pos = other.Position
			}
		}
		e.Position = pos + 1
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.waitlist[e.ID] = e
	if opts.IdempotencyKey != "" {
		m.waitlistKeys[opts.IdempotencyKey] = e.ID
	}
	return e, nil
}

func (m *Memory) UpdateWaitlistStatus(_ context.Context, id int64, status model.WaitlistStatus) (model.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.waitlist[id]
	if !ok {
		return model.WaitlistEntry{}, fmt.Errorf("waitlist entry %d: %w", id, ErrNotFound)
	}
	if !e.Status.CanTransition(status) {
		return model.WaitlistEntry{}, fmt.Errorf("waitlist entry %d is %s, cannot become %s: %w", id, e.Status, status, ErrConflict)
	}
	e.Status = status
	m.waitlist[id] = e
	return e, nil
}

func (m *Memory) CreateGuestList(_ context.Context, req GuestListRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.guestLists {
		if l.ReservationID == req.ReservationID {
			return nil
		}
	}
	m.guestLists = append(m.guestLists, req)
	return nil
}
