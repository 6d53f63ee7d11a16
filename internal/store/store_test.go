package store

import (
	"context"
	"testing"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

func res(id int64, version int64, status model.Status) model.Reservation {
	return model.Reservation{ID: id, EstablishmentID: 1, AreaID: 1, Date: "2025-09-10", Time: "19:00:00", PartySize: 2, Status: status, Version: version}
}

var wholeYear = Scope{EstablishmentID: 1, From: "2025-01-01", To: "2025-12-31"}

func TestStaleSnapshotKeepsNewerPatch(t *testing.T) {
	s := New()
	fetchedAt := time.Now()
	s.Upsert(res(1, 3, model.StatusCancelled))

	s.ApplySnapshot(wholeYear, []model.Reservation{res(1, 2, model.StatusConfirmed)}, fetchedAt)
	got, _ := s.Get(1)
	if got.Status != model.StatusCancelled {
		t.Errorf("older snapshot overwrote patch: %s", got.Status)
	}

	s.ApplySnapshot(wholeYear, []model.Reservation{res(1, 4, model.StatusCompleted)}, time.Now())
	got, _ = s.Get(1)
	if got.Status != model.StatusCompleted {
		t.Errorf("newer snapshot not applied: %s", got.Status)
	}
}

func TestSnapshotWithoutVersions(t *testing.T) {
	s := New()
	base := time.Now()
	s.now = func() time.Time { return base }
	s.Upsert(res(1, 0, model.StatusCheckedIn))

	// fetched before the patch landed
	s.ApplySnapshot(wholeYear, []model.Reservation{res(1, 0, model.StatusConfirmed)}, base.Add(-time.Second))
	if got, _ := s.Get(1); got.Status != model.StatusCheckedIn {
		t.Errorf("stale unversioned snapshot overwrote patch: %s", got.Status)
	}

	s.ApplySnapshot(wholeYear, []model.Reservation{res(1, 0, model.StatusCompleted)}, base.Add(time.Second))
	if got, _ := s.Get(1); got.Status != model.StatusCompleted {
		t.Errorf("fresh snapshot should win: %s", got.Status)
	}
}

func TestSnapshotDropsMissingButKeepsFreshInserts(t *testing.T) {
	s := New()
	base := time.Now()
	s.ApplySnapshot(wholeYear, []model.Reservation{res(1, 1, model.StatusConfirmed), res(2, 1, model.StatusConfirmed)}, base)

	s.now = func() time.Time { return base.Add(2 * time.Second) }
	s.Upsert(res(3, 1, model.StatusPending))

	outOfScope := res(4, 1, model.StatusPending)
	outOfScope.EstablishmentID = 2
	s.Upsert(outOfScope)

	s.ApplySnapshot(wholeYear, []model.Reservation{res(1, 1, model.StatusConfirmed)}, base.Add(time.Second))
	if _, ok := s.Get(2); ok {
		t.Error("reservation missing from the snapshot should be dropped")
	}
	if _, ok := s.Get(3); !ok {
		t.Error("insert patched after the fetch began must survive")
	}
	if _, ok := s.Get(4); !ok {
		t.Error("records outside the scope are untouched")
	}
}

func TestSubscribeReportsDates(t *testing.T) {
	s := New()
	var got []Change
	cancel := s.Subscribe(func(c Change) { got = append(got, c) })

	moved := res(1, 1, model.StatusConfirmed)
	s.Upsert(moved)
	moved.Date = "2025-09-12T00:00:00Z"
	moved.Version = 2
	s.Upsert(moved)

	if len(got) != 2 {
		t.Fatalf("changes = %d, want 2", len(got))
	}
	last := got[1]
	if last.EstablishmentID != 1 || len(last.Dates) != 2 || last.Dates[0] != "2025-09-10" || last.Dates[1] != "2025-09-12" {
		t.Errorf("moving a booking should touch both days: %+v", last)
	}

	cancel()
	s.Upsert(res(9, 1, model.StatusNew))
	if len(got) != 2 {
		t.Error("cancelled listener still called")
	}
	if s.Upsert(res(1, 1, model.StatusNew)) {
		t.Error("lower version must not replace")
	}
}

func TestPollerRefresh(t *testing.T) {
	m := source.NewMemory()
	m.Seed(
		model.Reservation{ID: 1, EstablishmentID: 1, Date: "2025-09-10", Time: "19:00", Status: model.StatusConfirmed},
		model.Reservation{ID: 2, EstablishmentID: 1, Date: "2024-01-01", Time: "19:00", Status: model.StatusConfirmed},
		model.Reservation{ID: 3, EstablishmentID: 5, Date: "2025-09-10", Time: "19:00", Status: model.StatusConfirmed},
	)
	s := New()
	p := &Poller{Store: s, Source: m, Establishments: []int64{1}, now: func() time.Time {
		return time.Date(2025, 9, 8, 12, 0, 0, 0, time.UTC)
	}}
	p.RefreshAll(context.Background())

	if s.Len() != 1 {
		t.Fatalf("store holds %d reservations, want 1", s.Len())
	}
	list := s.List(source.ReservationFilter{EstablishmentID: 1, Date: "2025-09-10"})
	if len(list) != 1 || list[0].ID != 1 {
		t.Errorf("List() = %+v", list)
	}
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	p := &Poller{Store: New(), Source: source.NewMemory(), Establishments: []int64{1}, Interval: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
