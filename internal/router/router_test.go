package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-reservation/internal/availability"
	"github.com/iliyamo/restaurant-reservation/internal/capacity"
	"github.com/iliyamo/restaurant-reservation/internal/form"
	"github.com/iliyamo/restaurant-reservation/internal/handler"
	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/policy"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

const secret = "router-secret"

func newEcho(t *testing.T) *echo.Echo {
	t.Helper()
	mem := source.NewMemory()
	mem.AddArea(model.Area{ID: 5, EstablishmentID: 1, Name: "Salão", DinnerCapacity: 40})
	reg := policy.NewBuiltinRegistry()
	resolver := availability.NewResolver(mem, mem, reg, nil)
	gate := capacity.NewGate(mem, mem, mem)
	h := handler.New(handler.Config{
		Controller: form.New(form.Config{Backend: mem, Resolver: resolver, Gate: gate, Profiles: reg}),
		Resolver:   resolver,
		Gate:       gate,
		Profiles:   reg,
		Backend:    mem,
	})
	e := echo.New()
	RegisterRoutes(e)
	Register(e, Deps{Handler: h, JWTSecret: secret})
	return e
}

func token(t *testing.T, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "op-1",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRoutesRequireOperatorRole(t *testing.T) {
	e := newEcho(t)
	cases := []struct {
		name   string
		target string
		role   string
		status int
	}{
		{"health is public", "/healthz", "", http.StatusOK},
		{"no token", "/v1/establishments/1/subareas", "", http.StatusUnauthorized},
		{"customer role", "/v1/establishments/1/subareas", "CUSTOMER", http.StatusForbidden},
		{"operator", "/v1/establishments/1/subareas", form.RoleOperator, http.StatusOK},
		{"admin", "/v1/establishments/1/windows?date=2025-09-10", form.RoleAdmin, http.StatusOK},
		{"unknown route", "/v1/establishments/1/nothing", form.RoleAdmin, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.role != "" {
				req.Header.Set("Authorization", "Bearer "+token(t, tc.role))
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
		})
	}
}
