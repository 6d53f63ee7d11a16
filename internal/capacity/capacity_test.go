package capacity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/policy"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

const est = 7

func seededBackend() *source.Memory {
	m := source.NewMemory()
	m.AddArea(model.Area{ID: 1, EstablishmentID: est, Name: "Salão", DinnerCapacity: 30, LunchCapacity: 99})
	m.AddArea(model.Area{ID: 2, EstablishmentID: est, Name: "Jardim", DinnerCapacity: 20})
	m.AddArea(model.Area{ID: 3, EstablishmentID: est + 1, Name: "Other", DinnerCapacity: 500})
	m.Seed(
		model.Reservation{EstablishmentID: est, AreaID: 1, Date: "2025-09-10", Time: "19:00:00", PartySize: 10, Status: model.StatusConfirmed},
		model.Reservation{EstablishmentID: est, AreaID: 2, Date: "2025-09-10T00:00:00Z", Time: "20:00:00", PartySize: 5, Status: model.StatusCheckedIn},
		model.Reservation{EstablishmentID: est, AreaID: 2, Date: "2025-09-10", Time: "20:00:00", PartySize: 8, Status: model.StatusPending},
		model.Reservation{EstablishmentID: est, AreaID: 2, Date: "2025-09-11", Time: "20:00:00", PartySize: 8, Status: model.StatusConfirmed},
	)
	return m
}

func TestCapacityBoundary(t *testing.T) {
	m := seededBackend()
	gate := NewGate(m, m, m)
	// C = 50, R = 15
	d, err := gate.CanReserve(context.Background(), Request{EstablishmentID: est, Date: "2025-09-10", PartySize: 35})
	if err != nil {
		t.Fatalf("CanReserve() error: %v", err)
	}
	if !d.OK || d.TotalCapacity != 50 || d.ReservedTotal != 15 {
		t.Errorf("party of C-R should fit: %+v", d)
	}

	d, _ = gate.CanReserve(context.Background(), Request{EstablishmentID: est, Date: "2025-09-10", PartySize: 36})
	if d.OK || d.Reason != ReasonCapacityExceeded || !d.RedirectToWaitlist {
		t.Errorf("party of C-R+1 should be rejected for capacity: %+v", d)
	}

	// waiting entries for other slots do not change the capacity answer
	m.SeedWaitlist(model.WaitlistEntry{EstablishmentID: est, PreferredDate: "2025-09-10", PreferredTime: "22:00", Status: model.WaitlistWaiting, Position: 1})
	d, _ = gate.CanReserve(context.Background(), Request{EstablishmentID: est, Date: "2025-09-10", Time: "19:00", PartySize: 35})
	if !d.OK {
		t.Errorf("waitlist for another slot should not block: %+v", d)
	}
}

func TestWaitlistPrecedesCapacity(t *testing.T) {
	m := seededBackend()
	m.SeedWaitlist(model.WaitlistEntry{ID: 90, EstablishmentID: est, PreferredDate: "2025-09-10", PreferredTime: "19:30:00", Status: model.WaitlistWaiting, Position: 1})
	gate := NewGate(m, m, m)

	d, err := gate.CanReserve(context.Background(), Request{EstablishmentID: est, Date: "2025-09-10", Time: "19:30", PartySize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if d.OK || d.Reason != ReasonWaitlistConflict {
		t.Fatalf("waiting entry should block the slot: %+v", d)
	}
	if d.BlockingEntry == nil || d.BlockingEntry.ID != 90 || d.RedirectToWaitlist {
		t.Errorf("blocking entry not reported: %+v", d)
	}

	d, _ = gate.CanReserve(context.Background(), Request{EstablishmentID: est, Date: "2025-09-10", PartySize: 2})
	if !d.OK {
		t.Error("without a time only capacity applies")
	}
}

func TestEvaluateExcludesEditedReservation(t *testing.T) {
	areas := []model.Area{{ID: 1, DinnerCapacity: 10}}
	rs := []model.Reservation{{ID: 5, Date: "2025-09-10", PartySize: 8, Status: model.StatusConfirmed}}
	d, err := Evaluate(areas, rs, nil, Request{Date: "2025-09-10", PartySize: 9, ExcludeReservationID: 5})
	if err != nil {
		t.Fatal(err)
	}
	if !d.OK {
		t.Errorf("editing a booking should not count it twice: %+v", d)
	}
	if _, err := Evaluate(areas, rs, nil, Request{Date: "2025-09-10", Time: "7pm"}); !errors.Is(err, model.ErrInvalidTime) {
		t.Errorf("expected ErrInvalidTime, got %v", err)
	}
}

func promotionFixture(t *testing.T) (*source.Memory, *Promoter, Freed) {
	t.Helper()
	m := source.NewMemory()
	area := int64(4)
	other := int64(9)
	m.SeedWaitlist(
		model.WaitlistEntry{ID: 13, EstablishmentID: est, PreferredDate: "2025-09-10", PreferredTime: "19:30", Status: model.WaitlistWaiting, Position: 3, Client: model.Client{Name: "C"}, PartySize: 2},
		model.WaitlistEntry{ID: 11, EstablishmentID: est, PreferredDate: "2025-09-10", Status: model.WaitlistWaiting, Position: 1, Client: model.Client{Name: "A"}, PartySize: 4, Notes: "cadeira de bebê"},
		model.WaitlistEntry{ID: 12, EstablishmentID: est, PreferredDate: "2025-09-10", PreferredTime: "18:00", PreferredAreaID: &area, Status: model.WaitlistWaiting, Position: 2, Client: model.Client{Name: "B"}, PartySize: 3},
		model.WaitlistEntry{ID: 14, EstablishmentID: est, PreferredDate: "2025-09-10", PreferredTime: "21:00", Status: model.WaitlistWaiting, Position: 0},
		model.WaitlistEntry{ID: 15, EstablishmentID: est, PreferredDate: "2025-09-10", PreferredAreaID: &other, Status: model.WaitlistWaiting, Position: 0},
		model.WaitlistEntry{ID: 16, EstablishmentID: est, PreferredDate: "2025-09-10", Status: model.WaitlistCancelled, Position: 0},
		model.WaitlistEntry{ID: 17, EstablishmentID: est, PreferredDate: "2025-09-11", Status: model.WaitlistWaiting, Position: 0},
	)
	p := NewPromoter(m, m, m, policy.NewBuiltinRegistry(), nil)
	freed := FreedBy(model.Reservation{ID: 100, EstablishmentID: est, AreaID: area, Date: "2025-09-10T00:00:00Z", Time: "19:00:00", TableNumbers: []string{"12"}})
	return m, p, freed
}

func TestPromotionOrdering(t *testing.T) {
	_, p, freed := promotionFixture(t)
	ctx := context.Background()

	var order []int64
	for {
		offer, err := p.Offer(ctx, freed, order...)
		if errors.Is(err, ErrNoCandidate) {
			break
		}
		if err != nil {
			t.Fatalf("Offer() error: %v", err)
		}
		order = append(order, offer.Entry.ID)
	}
	want := []int64{11, 12, 13}
	if len(order) != len(want) {
		t.Fatalf("offer order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("offer order = %v, want %v", order, want)
		}
	}
}

func TestPromotionAccept(t *testing.T) {
	m, p, freed := promotionFixture(t)
	ctx := context.Background()

	offer, err := p.Offer(ctx, freed)
	if err != nil {
		t.Fatal(err)
	}
	r, err := p.Accept(ctx, offer, source.WriteOptions{IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("Accept() error: %v", err)
	}
	if r.Status != model.StatusConfirmed || r.Origin != model.OriginWaitlist {
		t.Errorf("promoted reservation = %+v", r)
	}
	if r.WaitlistEntryID == nil || *r.WaitlistEntryID != 11 {
		t.Error("waitlist entry id should be preserved")
	}
	if !strings.Contains(r.Notes, ConversionNote(11)) || !strings.Contains(r.Notes, "cadeira de bebê") {
		t.Errorf("notes = %q", r.Notes)
	}
	if r.Time != "19:00:00" || r.Date != "2025-09-10" || !r.HasTable("12") || r.PartySize != 4 {
		t.Errorf("reservation should take the freed slot: %+v", r)
	}

	// served entries are never offered again
	next, err := p.Offer(ctx, freed)
	if err != nil {
		t.Fatal(err)
	}
	if next.Entry.ID != 12 {
		t.Errorf("next offer = %d, want 12", next.Entry.ID)
	}
	if _, err := p.Accept(ctx, offer, source.WriteOptions{}); !errors.Is(err, ErrStaleOffer) {
		t.Errorf("accepting a served entry again: %v", err)
	}
	entries, _ := m.ListWaitlist(ctx, est)
	for _, e := range entries {
		if e.ID == 11 && e.Status != model.WaitlistServed {
			t.Errorf("entry 11 status = %s", e.Status)
		}
	}
}

func TestPromotionTurns(t *testing.T) {
	reg := policy.NewBuiltinRegistry()
	if err := reg.Bind(est, policy.KeyPracinha); err != nil {
		t.Fatal(err)
	}
	p := reg.ForEstablishment(est)
	freed := Freed{EstablishmentID: est, AreaID: 10, Date: "2025-09-10", Time: "18:00"}

	sameTurn := model.WaitlistEntry{EstablishmentID: est, PreferredDate: "2025-09-10", PreferredTime: "19:55", Status: model.WaitlistWaiting}
	if !Compatible(p, freed, sameTurn) {
		t.Error("same turn should be compatible even beyond the promotion window")
	}
	nextTurn := sameTurn
	nextTurn.PreferredTime = "20:10"
	if Compatible(p, freed, nextTurn) {
		t.Error("the second turn is a different bucket")
	}
}

func TestPromotionSkipsPartiesLargerThanFreedTables(t *testing.T) {
	m, p, freed := promotionFixture(t)
	m.AddTable(model.Table{ID: 1, AreaID: 4, Number: "12", Capacity: 2})
	m.AddTable(model.Table{ID: 2, AreaID: 4, Number: "14", Capacity: 6})
	ctx := context.Background()

	offer, err := p.Offer(ctx, freed)
	if err != nil {
		t.Fatal(err)
	}
	// 11 (four guests) and 12 (three) do not fit the two-seat table
	if offer.Entry.ID != 13 || offer.Freed.Seats != 2 {
		t.Errorf("offer = entry %d, seats %d; want entry 13 on 2 seats", offer.Entry.ID, offer.Freed.Seats)
	}
	if _, err := p.OfferEntry(ctx, freed, 11); !errors.Is(err, ErrStaleOffer) {
		t.Errorf("offering entry 11 on two seats: %v", err)
	}

	joined := freed
	joined.TableNumbers = []string{"12", "14"}
	offer, err = p.Offer(ctx, joined)
	if err != nil {
		t.Fatal(err)
	}
	if offer.Entry.ID != 11 || offer.Freed.Seats != 8 {
		t.Errorf("joined tables offer = entry %d, seats %d", offer.Entry.ID, offer.Freed.Seats)
	}
}

func TestCompatibleSeats(t *testing.T) {
	p, _ := policy.NewBuiltinRegistry().Profile(policy.KeyHighline)
	freed := Freed{EstablishmentID: est, AreaID: 4, Date: "2025-09-10", Time: "19:00:00", TableNumbers: []string{"2"}, Seats: 2}
	cases := []struct {
		party int
		seats int
		want  bool
	}{
		{2, 2, true},
		{8, 2, false},
		{8, 0, true},
	}
	for _, tc := range cases {
		f := freed
		f.Seats = tc.seats
		e := model.WaitlistEntry{EstablishmentID: est, PreferredDate: "2025-09-10", Status: model.WaitlistWaiting, PartySize: tc.party}
		if got := Compatible(p, f, e); got != tc.want {
			t.Errorf("party %d on %d seats: Compatible = %v", tc.party, tc.seats, got)
		}
	}
}
