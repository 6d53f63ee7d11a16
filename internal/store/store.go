// Package store keeps the authoritative in-memory copy of reservations the
// service answers reads from. Writes patch it optimistically; the poller
// reconciles it with the backend without letting a stale snapshot undo a
// newer patch.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// Change tells listeners which establishment and dates were touched.
type Change struct {
	EstablishmentID int64
	Dates           []string
}

// Scope is the slice of data one snapshot covers. Dates are inclusive.
type Scope struct {
	EstablishmentID int64
	From            string
	To              string
}

func (sc Scope) covers(r model.Reservation) bool {
	if r.EstablishmentID != sc.EstablishmentID {
		return false
	}
	d, err := model.NormalizeDate(r.Date)
	if err != nil {
		return false
	}
	return (sc.From == "" || d >= sc.From) && (sc.To == "" || d <= sc.To)
}

type entry struct {
	r         model.Reservation
	patchedAt time.Time
}

// Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	byID      map[int64]entry
	listeners map[int]func(Change)
	nextSub   int
	now       func() time.Time
}

func New() *Store {
	return &Store{
		byID:      map[int64]entry{},
		listeners: map[int]func(Change){},
		now:       time.Now,
	}
}

// Subscribe registers fn for every change. Listeners run on the writer's
// goroutine after the store lock is released. The returned func removes fn.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(changes map[int64]map[string]bool) {
	if len(changes) == 0 {
		return
	}
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for est, dates := range changes {
		c := Change{EstablishmentID: est}
		for d := range dates {
			c.Dates = append(c.Dates, d)
		}
		sort.Strings(c.Dates)
		for _, fn := range fns {
			fn(c)
		}
	}
}

func mark(changes map[int64]map[string]bool, r model.Reservation) {
	d, err := model.NormalizeDate(r.Date)
	if err != nil {
		d = r.Date
	}
	if changes[r.EstablishmentID] == nil {
		changes[r.EstablishmentID] = map[string]bool{}
	}
	changes[r.EstablishmentID][d] = true
}

// Upsert inserts r or replaces the stored copy with the same id. A copy
// carrying a higher version than r is kept. It reports whether r was applied.
func (s *Store) Upsert(r model.Reservation) bool {
	changes := map[int64]map[string]bool{}
	s.mu.Lock()
	prev, ok := s.byID[r.ID]
	if ok && prev.r.Version > 0 && r.Version > 0 && prev.r.Version > r.Version {
		s.mu.Unlock()
		return false
	}
	if ok {
		mark(changes, prev.r)
	}
	s.byID[r.ID] = entry{r: r.Clone(), patchedAt: s.now()}
	mark(changes, r)
	s.mu.Unlock()
	s.notify(changes)
	return true
}

// ApplySnapshot reconciles scope with rs, a listing fetched at fetchedAt.
// An incoming record replaces the stored one when its version is higher,
// or, without versions on both sides, when the stored copy was not patched
// after the fetch began. Stored records of the scope missing from rs are
// dropped unless they were patched after the fetch began. It returns the
// number of records added, replaced or dropped.
func (s *Store) ApplySnapshot(scope Scope, rs []model.Reservation, fetchedAt time.Time) int {
	changes := map[int64]map[string]bool{}
	n := 0
	s.mu.Lock()
	seen := make(map[int64]bool, len(rs))
	for _, r := range rs {
		seen[r.ID] = true
		prev, ok := s.byID[r.ID]
		if ok && !newer(prev, r, fetchedAt) {
			continue
		}
		if ok {
			mark(changes, prev.r)
		}
		s.byID[r.ID] = entry{r: r.Clone(), patchedAt: fetchedAt}
		mark(changes, r)
		n++
	}
	for id, e := range s.byID {
		if seen[id] || !scope.covers(e.r) || e.patchedAt.After(fetchedAt) {
			continue
		}
		delete(s.byID, id)
		mark(changes, e.r)
		n++
	}
	s.mu.Unlock()
	s.notify(changes)
	return n
}

func newer(prev entry, r model.Reservation, fetchedAt time.Time) bool {
	if prev.r.Version > 0 && r.Version > 0 {
		return r.Version > prev.r.Version
	}
	if prev.patchedAt.After(fetchedAt) {
		return false
	}
	return !sameContent(prev.r, r)
}

func sameContent(a, b model.Reservation) bool {
	return a.Status == b.Status && a.Date == b.Date && a.Time == b.Time &&
		a.PartySize == b.PartySize && a.AreaID == b.AreaID &&
		model.JoinTables(a.TableNumbers) == model.JoinTables(b.TableNumbers) &&
		a.Notes == b.Notes && a.Client == b.Client && a.BlocksArea == b.BlocksArea &&
		a.EventTag == b.EventTag
}

// Get returns the stored reservation with id.
func (s *Store) Get(id int64) (model.Reservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return model.Reservation{}, false
	}
	return e.r.Clone(), true
}

// List returns the stored reservations matching f, ordered by date, time and id.
func (s *Store) List(f source.ReservationFilter) []model.Reservation {
	s.mu.RLock()
	out := make([]model.Reservation, 0)
	for _, e := range s.byID {
		if filterMatches(f, e.r) {
			out = append(out, e.r.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of stored reservations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func filterMatches(f source.ReservationFilter, r model.Reservation) bool {
	if f.EstablishmentID != 0 && r.EstablishmentID != f.EstablishmentID {
		return false
	}
	if f.AreaID != 0 && r.AreaID != f.AreaID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Date == "" && f.DateFrom == "" && f.DateTo == "" {
		return true
	}
	d, err := model.NormalizeDate(r.Date)
	if err != nil {
		return false
	}
	return (f.Date == "" || d == f.Date) &&
		(f.DateFrom == "" || d >= f.DateFrom) &&
		(f.DateTo == "" || d <= f.DateTo)
}
