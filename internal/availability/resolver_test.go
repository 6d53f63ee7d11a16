package availability

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/policy"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

type fakeTables struct {
	tables []model.Table
	err    error
	calls  int
}

func (f *fakeTables) ListTables(_ context.Context, q source.TableQuery) ([]model.Table, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Table
	for _, t := range f.tables {
		if t.AreaID == q.AreaID {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeReservations struct {
	list []model.Reservation
}

func (f *fakeReservations) ListReservations(_ context.Context, _ source.ReservationFilter) ([]model.Reservation, error) {
	return f.list, nil
}

func (f *fakeReservations) GetReservation(_ context.Context, id int64) (model.Reservation, error) {
	for _, r := range f.list {
		if r.ID == id {
			return r, nil
		}
	}
	return model.Reservation{}, source.ErrNotFound
}

// establishment ids bound to builtin profiles in these tests
const (
	estDefault  = 1
	estJustino  = 2
	estPracinha = 3
	estHighline = 4
)

func testRegistry(t *testing.T) *policy.Registry {
	t.Helper()
	reg := policy.NewBuiltinRegistry()
	for id, key := range map[int64]string{
		estJustino:  policy.KeyJustino,
		estPracinha: policy.KeyPracinha,
		estHighline: policy.KeyHighline,
	} {
		if err := reg.Bind(id, key); err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func table(area int64, number string) model.Table {
	return model.Table{ID: int64(len(number)) + area*100, AreaID: area, Number: number, Capacity: 4}
}

func booking(est, area int64, tables, date, at string, status model.Status) model.Reservation {
	return model.Reservation{
		ID:              int64(len(tables) + len(at)),
		EstablishmentID: est,
		AreaID:          area,
		TableNumbers:    model.SplitTables(tables),
		Date:            date,
		Time:            at,
		PartySize:       2,
		Status:          status,
	}
}

func reservedSet(tables []model.Table) map[string]bool {
	out := map[string]bool{}
	for _, t := range tables {
		if t.IsReserved {
			out[t.Number] = true
		}
	}
	return out
}

func TestOverlapsIsSymmetric(t *testing.T) {
	base := 19 * 60
	tests := []struct {
		other int
		want  bool
	}{
		{base, true},
		{base + 119, true},
		{base + 120, false},
		{base + 121, false},
		{base - 119, true},
		{base - 121, false},
	}
	for _, tt := range tests {
		if got := Overlaps(base, tt.other, 120); got != tt.want {
			t.Errorf("Overlaps(%d, %d) = %v, want %v", base, tt.other, got, tt.want)
		}
		if Overlaps(base, tt.other, 120) != Overlaps(tt.other, base, 120) {
			t.Errorf("Overlaps not symmetric for %d/%d", base, tt.other)
		}
	}
}

func TestResolveRecomputesWithTime(t *testing.T) {
	tables := &fakeTables{tables: []model.Table{table(5, "1"), table(5, "2"), table(5, "3")}}
	tables.tables[2].IsReserved = true // stale day flag from the source
	res := &fakeReservations{list: []model.Reservation{
		booking(estDefault, 5, "1", "2025-09-10", "19:00:00", model.StatusConfirmed),
		booking(estDefault, 5, "2", "2025-09-10T00:00:00Z", "22:00:00", model.StatusPending),
		booking(estDefault, 5, "3", "2025-09-10", "19:30", model.StatusCancelled),
	}}
	r := NewResolver(tables, res, testRegistry(t), nil)

	got, err := r.Resolve(context.Background(), Query{EstablishmentID: estDefault, AreaID: 5, Date: "2025-09-10", Time: "20:30"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	set := reservedSet(got)
	if !set["1"] {
		t.Error("table 1 booked at 19:00 overlaps 20:30")
	}
	if !set["2"] {
		t.Error("table 2 booked at 22:00 overlaps 20:30")
	}
	if set["3"] {
		t.Error("cancelled booking must not reserve; source flag is ignored with a time")
	}

	got, _ = r.Resolve(context.Background(), Query{EstablishmentID: estDefault, AreaID: 5, Date: "2025-09-10", Time: "17:30"})
	set = reservedSet(got)
	if !set["1"] || set["2"] {
		t.Errorf("at 17:30 only table 1 should be reserved, got %v", set)
	}
}

func TestResolveWithoutTimeUsesWholeDay(t *testing.T) {
	tables := &fakeTables{tables: []model.Table{table(5, "1"), table(5, "2"), table(5, "3")}}
	tables.tables[2].IsReserved = true
	res := &fakeReservations{list: []model.Reservation{
		booking(estDefault, 5, "1", "2025-09-10", "12:00", model.StatusNew),
		booking(estDefault, 5, "2", "2025-09-11", "12:00", model.StatusConfirmed),
	}}
	r := NewResolver(tables, res, testRegistry(t), nil)

	got, err := r.Resolve(context.Background(), Query{EstablishmentID: estDefault, AreaID: 5, Date: "2025-09-10"})
	if err != nil {
		t.Fatal(err)
	}
	set := reservedSet(got)
	if !set["1"] || set["2"] || !set["3"] {
		t.Errorf("whole-day reserved set = %v, want tables 1 and 3", set)
	}
}

func TestResolveTurns(t *testing.T) {
	tables := &fakeTables{tables: []model.Table{table(10, "1")}}
	res := &fakeReservations{list: []model.Reservation{
		booking(estPracinha, 10, "1", "2025-09-10", "18:00", model.StatusConfirmed),
	}}
	r := NewResolver(tables, res, testRegistry(t), nil)

	got, _ := r.Resolve(context.Background(), Query{EstablishmentID: estPracinha, AreaID: 10, Date: "2025-09-10", Time: "19:50"})
	if !reservedSet(got)["1"] {
		t.Error("same turn should conflict")
	}
	got, _ = r.Resolve(context.Background(), Query{EstablishmentID: estPracinha, AreaID: 10, Date: "2025-09-10", Time: "20:00"})
	if reservedSet(got)["1"] {
		t.Error("second turn should reuse the table")
	}
}

func TestResolveFullDayBlock(t *testing.T) {
	for _, est := range []int64{estJustino, estPracinha} {
		tables := &fakeTables{tables: []model.Table{table(1, "101"), table(10, "1")}}
		r := NewResolver(tables, &fakeReservations{}, testRegistry(t), nil)
		area := int64(1)
		if est == estPracinha {
			area = 10
		}
		for _, at := range []string{"15:00", "18:30", "20:59"} {
			got, err := r.Resolve(context.Background(), Query{EstablishmentID: est, AreaID: area, Date: "2025-09-13", Time: at})
			if err != nil {
				t.Fatal(err)
			}
			if len(got) == 0 {
				t.Fatal("no tables resolved")
			}
			for _, tb := range got {
				if !tb.IsReserved {
					t.Errorf("establishment %d saturday %s: table %s should be blocked", est, at, tb.Number)
				}
			}
		}
		got, _ := r.Resolve(context.Background(), Query{EstablishmentID: est, AreaID: area, Date: "2025-09-13", Time: "21:00"})
		if len(reservedSet(got)) != 0 {
			t.Errorf("establishment %d: 21:00 is past the block", est)
		}
	}
}

func TestResolveConfirmedLock(t *testing.T) {
	tables := &fakeTables{tables: []model.Table{table(20, "301"), table(20, "302")}}
	res := &fakeReservations{list: []model.Reservation{
		booking(estHighline, 20, "301", "2025-09-12", "18:00", model.StatusConfirmed),
		booking(estHighline, 20, "302", "2025-09-12", "18:00", model.StatusPending),
	}}
	r := NewResolver(tables, res, testRegistry(t), nil)

	got, _ := r.Resolve(context.Background(), Query{EstablishmentID: estHighline, AreaID: 20, Date: "2025-09-12", Time: "23:30"})
	set := reservedSet(got)
	if !set["301"] {
		t.Error("confirmed booking locks the rooftop table all day")
	}
	if set["302"] {
		t.Error("pending booking outside the overlap does not lock")
	}
}

func TestResolveBlocksAreaAndExclude(t *testing.T) {
	tables := &fakeTables{tables: []model.Table{table(5, "1"), table(5, "2")}}
	event := booking(estDefault, 5, "", "2025-09-10", "19:00", model.StatusConfirmed)
	event.ID = 77
	event.BlocksArea = true
	r := NewResolver(tables, &fakeReservations{list: []model.Reservation{event}}, testRegistry(t), nil)

	got, _ := r.Resolve(context.Background(), Query{EstablishmentID: estDefault, AreaID: 5, Date: "2025-09-10", Time: "20:00"})
	if len(reservedSet(got)) != 2 {
		t.Error("area-blocking booking should reserve every table")
	}
	got, _ = r.Resolve(context.Background(), Query{EstablishmentID: estDefault, AreaID: 5, Date: "2025-09-10", Time: "20:00", ExcludeReservationID: 77})
	if len(reservedSet(got)) != 0 {
		t.Error("the edited reservation must not block itself")
	}
}

func TestResolveSubAreaAndCatalogMerge(t *testing.T) {
	tables := &fakeTables{tables: []model.Table{table(3, "200"), table(3, "204")}}
	r := NewResolver(tables, &fakeReservations{}, testRegistry(t), nil)

	got, err := r.Resolve(context.Background(), Query{EstablishmentID: estJustino, AreaID: 3, Date: "2025-09-10", Time: "20:00", SubArea: "lounge-palco"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("lounge palco should list 204 and 206, got %v", got)
	}
	for _, tb := range got {
		if tb.Number == "206" && !tb.Virtual {
			t.Error("206 has no physical record and should be virtual")
		}
		if tb.Number == "204" && tb.Virtual {
			t.Error("204 exists physically")
		}
	}

	_, err = r.Resolve(context.Background(), Query{EstablishmentID: estJustino, AreaID: 1, Date: "2025-09-10", SubArea: "lounge-palco"})
	if !errors.Is(err, ErrUnknownSubArea) {
		t.Errorf("sub-area of another area should be rejected, got %v", err)
	}
}

func TestWithFallback(t *testing.T) {
	reg := testRegistry(t)
	primary := &fakeTables{err: errors.New("connection refused")}
	src := WithFallback(primary, CatalogSource{Profiles: reg}, nil)

	got, err := src.ListTables(context.Background(), source.TableQuery{EstablishmentID: estJustino, AreaID: 2})
	if err != nil {
		t.Fatalf("fallback should hide the primary failure: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("jardim catalog has 4 tables, got %d", len(got))
	}
	for _, tb := range got {
		if !tb.Virtual || tb.IsReserved || tb.ID >= 0 {
			t.Errorf("virtual table malformed: %+v", tb)
		}
	}

	if _, err := src.ListTables(context.Background(), source.TableQuery{EstablishmentID: estDefault, AreaID: 9}); err == nil {
		t.Error("without catalog tables the primary error should surface")
	}
}

func TestFreeAndCheck(t *testing.T) {
	tables := []model.Table{
		{Number: "1", Capacity: 2},
		{Number: "2", Capacity: 6},
		{Number: "3", Capacity: 6, IsReserved: true},
		{Number: "4"},
	}
	free := Free(tables, 4)
	if len(free) != 2 || free[0].Number != "2" || free[1].Number != "4" {
		t.Errorf("Free() = %v", free)
	}
	occupied, unknown := Check(tables, []string{"2", "3", "9"})
	if len(occupied) != 1 || occupied[0] != "3" {
		t.Errorf("occupied = %v", occupied)
	}
	if len(unknown) != 1 || unknown[0] != "9" {
		t.Errorf("unknown = %v", unknown)
	}
}

func TestResolveRejectsBadQuery(t *testing.T) {
	r := NewResolver(&fakeTables{}, &fakeReservations{}, testRegistry(t), nil)
	for _, q := range []Query{
		{AreaID: 0, Date: "2025-09-10"},
		{AreaID: 1, Date: "10/09/2025"},
		{AreaID: 1, Date: "2025-09-10", Time: "25:00"},
	} {
		if _, err := r.Resolve(context.Background(), q); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("Resolve(%+v) error = %v, want ErrInvalidQuery", q, err)
		}
	}
}
