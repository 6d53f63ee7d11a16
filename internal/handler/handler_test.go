package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/availability"
	"github.com/iliyamo/restaurant-reservation/internal/capacity"
	"github.com/iliyamo/restaurant-reservation/internal/form"
	"github.com/iliyamo/restaurant-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/policy"
	"github.com/iliyamo/restaurant-reservation/internal/remote"
	"github.com/iliyamo/restaurant-reservation/internal/source"
	"github.com/iliyamo/restaurant-reservation/internal/store"
)

const (
	estPlain   = 1
	estJustino = 2
	wednesday  = "2025-09-10"
	monday     = "2025-09-08"
)

type fakePurger struct {
	mu    sync.Mutex
	calls []int64
}

func (p *fakePurger) Purge(_ context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, id)
	return nil
}

type fixture struct {
	e      *echo.Echo
	mem    *source.Memory
	h      *Handler
	purger *fakePurger
}

func as(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(middleware.CtxUserID, "op-1")
			c.Set(middleware.CtxRole, role)
			return next(c)
		}
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := source.NewMemory()
	mem.AddArea(model.Area{ID: 5, EstablishmentID: estPlain, Name: "Salão", DinnerCapacity: 40})
	for i, n := range []string{"1", "2", "3"} {
		mem.AddTable(model.Table{ID: int64(i + 1), AreaID: 5, Number: n, Capacity: 4})
	}
	mem.AddArea(model.Area{ID: 3, EstablishmentID: estJustino, Name: "Lounges", DinnerCapacity: 40})

	reg := policy.NewBuiltinRegistry()
	if err := reg.Bind(estJustino, policy.KeyJustino); err != nil {
		t.Fatal(err)
	}
	mem.CheckConflict = availability.ConflictCheck(reg)
	tables := availability.WithFallback(mem, availability.CatalogSource{Profiles: reg}, nil)
	resolver := availability.NewResolver(tables, mem, reg, nil)
	gate := capacity.NewGate(mem, mem, mem)
	st := store.New()
	n := 0
	ctrl := form.New(form.Config{
		Backend:  mem,
		Resolver: resolver,
		Gate:     gate,
		Promoter: capacity.NewPromoter(mem, mem, mem, reg, nil),
		Profiles: reg,
		Store:    st,
		NewKey: func() string {
			n++
			return fmt.Sprintf("key-%d", n)
		},
	})
	f := &fixture{e: echo.New(), mem: mem, purger: &fakePurger{}}
	f.h = New(Config{
		Controller: ctrl,
		Resolver:   resolver,
		Gate:       gate,
		Profiles:   reg,
		Backend:    mem,
		Store:      st,
		Purger:     f.purger,
	})

	g := f.e.Group("/v1/establishments/:id", as(form.RoleOperator))
	g.GET("/areas/:area_id/tables", f.h.Tables)
	g.GET("/capacity", f.h.Capacity)
	g.GET("/windows", f.h.Windows)
	g.GET("/subareas", f.h.SubAreas)
	g.GET("/week", f.h.Week)
	g.GET("/reservations", f.h.ListReservations)
	g.POST("/reservations", f.h.CreateReservation)
	g.PUT("/reservations/:rid", f.h.UpdateReservation)
	g.POST("/reservations/:rid/cancel", f.h.ChangeStatus(form.ActionCancel))
	g.GET("/reservations/:rid/offer", f.h.Offer)
	g.POST("/waitlist", f.h.SubmitWaitlist)
	g.POST("/waitlist/:wid/promote", f.h.Promote)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	out := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, target, rec.Body.String(), err)
	}
	return rec.Code, out
}

func reservationBody(at, table string, party int) string {
	return fmt.Sprintf(`{"client":{"name":"Ana"},"date":%q,"time":%q,"party_size":%d,"area_id":5,"table_number":%q}`, wednesday, at, party, table)
}

func TestCreateListAndResolve(t *testing.T) {
	f := newFixture(t)
	base := "/v1/establishments/1"

	code, body := f.do(t, http.MethodPost, base+"/reservations", reservationBody("19:00", "2", 2))
	if code != http.StatusCreated {
		t.Fatalf("create = %d %v", code, body)
	}
	res := body["reservation"].(map[string]any)
	if res["time"] != "19:00:00" || res["status"] != string(model.StatusConfirmed) {
		t.Errorf("reservation = %v", res)
	}
	if len(f.purger.calls) != 1 || f.purger.calls[0] != estPlain {
		t.Errorf("purges = %v", f.purger.calls)
	}

	code, body = f.do(t, http.MethodGet, base+"/reservations?date="+wednesday, "")
	if code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("list = %d %v", code, body)
	}
	item := body["items"].([]any)[0].(map[string]any)
	if item["location"] != "Salão" {
		t.Errorf("location = %v", item["location"])
	}

	code, body = f.do(t, http.MethodGet, base+"/areas/5/tables?date="+wednesday+"&time=19:30&party_size=2", "")
	if code != http.StatusOK {
		t.Fatalf("tables = %d %v", code, body)
	}
	reserved := map[string]bool{}
	for _, raw := range body["items"].([]any) {
		tb := raw.(map[string]any)
		reserved[tb["table_number"].(string)] = tb["is_reserved"].(bool)
	}
	if !reserved["2"] || reserved["1"] || reserved["3"] {
		t.Errorf("reserved = %v", reserved)
	}
	if body["free"] != float64(2) {
		t.Errorf("free = %v", body["free"])
	}

	code, body = f.do(t, http.MethodPost, base+"/reservations", reservationBody("20:00", "2", 2))
	if code != http.StatusConflict || body["reason"] != form.ReasonTableOccupied || body["redirect"] != "waitlist" {
		t.Errorf("double booking = %d %v", code, body)
	}
}

func TestCreateReservationValidation(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodPost, "/v1/establishments/1/reservations", `{"date":"10/09/2025","time":"19h","area_id":"salão"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d %v", code, body)
	}
	fields := body["fields"].(map[string]any)
	for _, k := range []string{"client.name", "date", "time", "party_size", "area_id"} {
		if fields[k] == nil {
			t.Errorf("missing field error %s in %v", k, fields)
		}
	}
	if len(f.purger.calls) != 0 {
		t.Error("rejected submissions must not purge")
	}

	code, _ = f.do(t, http.MethodPost, "/v1/establishments/x/reservations", reservationBody("19:00", "1", 2))
	if code != http.StatusBadRequest {
		t.Errorf("bad establishment id = %d", code)
	}
}

func TestUpdateReservationNotFound(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodPut, "/v1/establishments/1/reservations/999", reservationBody("19:00", "1", 2))
	if code != http.StatusNotFound {
		t.Errorf("status = %d %v", code, body)
	}
}

func TestCancelOfferAndPromote(t *testing.T) {
	f := newFixture(t)
	f.mem.Seed(model.Reservation{ID: 50, EstablishmentID: estPlain, AreaID: 5, TableNumbers: []string{"2"}, Date: wednesday, Time: "19:00:00", PartySize: 2, Status: model.StatusConfirmed})
	f.mem.SeedWaitlist(model.WaitlistEntry{ID: 70, EstablishmentID: estPlain, Client: model.Client{Name: "Hugo"}, PartySize: 3, PreferredDate: wednesday, Status: model.WaitlistWaiting, Position: 1})
	base := "/v1/establishments/1"

	code, body := f.do(t, http.MethodPost, base+"/reservations/50/cancel", "")
	if code != http.StatusOK {
		t.Fatalf("cancel = %d %v", code, body)
	}
	offer, ok := body["offer"].(map[string]any)
	if !ok || offer["entry"].(map[string]any)["id"] != float64(70) {
		t.Fatalf("offer = %v", body["offer"])
	}

	if code, body = f.do(t, http.MethodGet, base+"/reservations/50/offer?skip=70", ""); code != http.StatusNotFound {
		t.Errorf("declined offer = %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, base+"/waitlist/70/promote", `{"freed_reservation_id":50}`)
	if code != http.StatusCreated || body["waitlist_entry_id"] != float64(70) {
		t.Fatalf("promote = %d %v", code, body)
	}
	code, body = f.do(t, http.MethodPost, base+"/waitlist/70/promote", `{"freed_reservation_id":50}`)
	if code != http.StatusConflict || body["reason"] != "stale_offer" {
		t.Errorf("second promote = %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, base+"/reservations/50/cancel", "")
	if code != http.StatusConflict || body["reason"] != "invalid_transition" {
		t.Errorf("cancel twice = %d %v", code, body)
	}
	if code, _ = f.do(t, http.MethodPost, base+"/waitlist/70/promote", `{}`); code != http.StatusBadRequest {
		t.Errorf("promote without freed id = %d", code)
	}
}

func TestSubmitWaitlist(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodPost, "/v1/establishments/1/waitlist", fmt.Sprintf(`{"client":{"name":"Rui"},"date":%q,"party_size":2}`, wednesday))
	if code != http.StatusCreated {
		t.Fatalf("waitlist = %d %v", code, body)
	}
	entry := body["waitlist_entry"].(map[string]any)
	if entry["position"] != float64(1) || body["reservation"] != nil {
		t.Errorf("result = %v", body)
	}

	code, body = f.do(t, http.MethodPost, "/v1/establishments/1/waitlist", fmt.Sprintf(`{"client":{"name":"Rui"},"date":%q,"time":"19:00","party_size":2,"area_id":5,"table_number":"1"}`, wednesday))
	if code != http.StatusCreated || body["converted"] != true || body["reservation"] == nil {
		t.Errorf("conversion = %d %v", code, body)
	}
}

func TestCapacityWindowsAndSubAreas(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/v1/establishments/1/capacity?date="+wednesday+"&party_size=41", "")
	if code != http.StatusOK || body["ok"] != false || body["reason"] != capacity.ReasonCapacityExceeded {
		t.Errorf("capacity = %d %v", code, body)
	}
	if code, _ = f.do(t, http.MethodGet, "/v1/establishments/1/capacity?date="+wednesday, ""); code != http.StatusBadRequest {
		t.Errorf("missing party = %d", code)
	}

	code, body = f.do(t, http.MethodGet, "/v1/establishments/2/windows?date="+monday, "")
	if code != http.StatusOK || body["restricted"] != true || len(body["windows"].([]any)) != 0 {
		t.Errorf("monday windows = %d %v", code, body)
	}
	code, body = f.do(t, http.MethodGet, "/v1/establishments/2/windows?date="+wednesday, "")
	if code != http.StatusOK || len(body["labels"].([]any)) != 1 || body["labels"].([]any)[0] != "18:00-01:00" {
		t.Errorf("wednesday windows = %d %v", code, body)
	}

	code, body = f.do(t, http.MethodGet, "/v1/establishments/2/subareas?area_id=3", "")
	if code != http.StatusOK || body["profile"] != policy.KeyJustino || len(body["items"].([]any)) != 3 {
		t.Errorf("subareas = %d %v", code, body)
	}
	code, body = f.do(t, http.MethodGet, "/v1/establishments/1/subareas", "")
	if code != http.StatusOK || len(body["items"].([]any)) != 0 {
		t.Errorf("plain subareas = %d %v", code, body)
	}

	code, body = f.do(t, http.MethodGet, "/v1/establishments/2/areas/3/tables?date="+wednesday+"&subarea=varanda", "")
	if code != http.StatusBadRequest {
		t.Errorf("sub-area of another area = %d %v", code, body)
	}
}

func TestWeek(t *testing.T) {
	f := newFixture(t)
	if code, body := f.do(t, http.MethodPost, "/v1/establishments/1/reservations", reservationBody("19:00", "1", 3)); code != http.StatusCreated {
		t.Fatalf("create = %d %v", code, body)
	}
	code, body := f.do(t, http.MethodGet, "/v1/establishments/1/week?date="+wednesday, "")
	if code != http.StatusOK || body["start"] != "2025-09-07" || body["end"] != "2025-09-13" {
		t.Fatalf("week = %d %v", code, body)
	}
	day := body["days"].([]any)[3].(map[string]any)
	if day["date"] != wednesday {
		t.Fatalf("day 3 = %v", day["date"])
	}
	cell := day["cells"].([]any)[2].(map[string]any)
	if cell["slot"] != "19:00" || cell["guests"] != float64(3) {
		t.Errorf("cell = %v", cell)
	}
	if code, _ = f.do(t, http.MethodGet, "/v1/establishments/1/week?date=soon", ""); code != http.StatusBadRequest {
		t.Errorf("bad anchor = %d", code)
	}
}

func TestFailReportsUnreachableAPI(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	client := remote.New(srv.URL)
	srv.Close()

	_, err := client.ListReservations(context.Background(), source.ReservationFilter{EstablishmentID: 2})
	rec := httptest.NewRecorder()
	c := f.e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := f.h.fail(c, err); err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	msg, _ := body["error"].(string)
	if rec.Code != http.StatusBadGateway || !strings.HasPrefix(msg, "GET /reservations: ") {
		t.Errorf("got %d %v", rec.Code, body)
	}
}

func TestFailTransportErrors(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{&remote.Error{Method: "POST", Path: "/reservations", Status: 502, Message: "upstream down"}, http.StatusBadGateway, "upstream down"},
		{fmt.Errorf("save: %w", &remote.Error{Status: 409, Message: "mesa ocupada"}), http.StatusConflict, "save: mesa ocupada"},
		{fmt.Errorf("list reservations: %w", &remote.Error{Method: "GET", Path: "/reservations", Err: errors.New("dial tcp 127.0.0.1:1: connection refused")}), http.StatusBadGateway, "GET /reservations: dial tcp 127.0.0.1:1: connection refused"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := f.e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
		if err := f.h.fail(c, tc.err); err != nil {
			t.Fatal(err)
		}
		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if rec.Code != tc.status || body["error"] != tc.msg {
			t.Errorf("%v: got %d %v", tc.err, rec.Code, body)
		}
	}
}
