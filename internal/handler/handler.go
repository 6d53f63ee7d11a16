// Package handler exposes the availability engine over HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

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

// Purger drops cached responses of an establishment after a write.
type Purger interface {
	Purge(ctx context.Context, establishmentID int64) error
}

// Config wires a Handler. Store and Purger are optional; without a store,
// listings read the backend directly.
type Config struct {
	Controller *form.Controller
	Resolver   *availability.Resolver
	Gate       *capacity.Gate
	Profiles   *policy.Registry
	Backend    source.Backend
	Store      *store.Store
	Purger     Purger
	Logger     *log.Logger
}

// Handler serves the /v1/establishments routes.
type Handler struct {
	ctrl     *form.Controller
	resolver *availability.Resolver
	gate     *capacity.Gate
	profiles *policy.Registry
	backend  source.Backend
	store    *store.Store
	purger   Purger
	logger   *log.Logger
}

// New builds a Handler. Controller, Resolver, Gate, Profiles and Backend
// are required.
func New(cfg Config) *Handler {
	if cfg.Controller == nil || cfg.Resolver == nil || cfg.Gate == nil || cfg.Profiles == nil || cfg.Backend == nil {
		panic("handler: missing dependency")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New("handler")
		logger.SetOutput(io.Discard)
	}
	return &Handler{
		ctrl:     cfg.Controller,
		resolver: cfg.Resolver,
		gate:     cfg.Gate,
		profiles: cfg.Profiles,
		backend:  cfg.Backend,
		store:    cfg.Store,
		purger:   cfg.Purger,
		logger:   logger,
	}
}

func actor(c echo.Context) form.Actor {
	return form.Actor{Subject: middleware.UserID(c), Role: middleware.Role(c)}
}

func idempotencyKey(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(middleware.HeaderIdempotencyKey))
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (int64, bool) {
	n, err := strconv.ParseInt(c.Param(name), 10, 64)
	return n, err == nil && n > 0
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(c echo.Context, name string) (int, bool) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil && n >= 0
}

// purge drops the establishment's cached reads after a successful write.
func (h *Handler) purge(ctx context.Context, establishmentID int64) {
	if h.purger == nil {
		return
	}
	if err := h.purger.Purge(ctx, establishmentID); err != nil {
		h.logger.Warnf("purge cache of establishment %d: %v", establishmentID, err)
	}
}

// fail translates an engine error into the JSON error response.
func (h *Handler) fail(c echo.Context, err error) error {
	var (
		verr *form.ValidationError
		cerr *form.ConflictError
		rerr *remote.Error
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": verr.Fields})
	case errors.As(err, &cerr):
		body := echo.Map{"error": cerr.Error(), "reason": cerr.Reason}
		if len(cerr.Tables) > 0 {
			body["tables"] = cerr.Tables
		}
		if cerr.Decision != nil {
			body["decision"] = cerr.Decision
		}
		if cerr.RedirectToWaitlist {
			body["redirect"] = "waitlist"
		}
		return c.JSON(http.StatusConflict, body)
	case errors.Is(err, form.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "reason": "invalid_transition"})
	case errors.Is(err, capacity.ErrStaleOffer):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "reason": "stale_offer"})
	case errors.Is(err, capacity.ErrNoCandidate):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no waiting guest fits the freed tables"})
	case errors.Is(err, availability.ErrInvalidQuery),
		errors.Is(err, availability.ErrUnknownSubArea),
		errors.Is(err, model.ErrInvalidDate),
		errors.Is(err, model.ErrInvalidTime):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, source.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, source.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "redirect": "waitlist"})
	case errors.As(err, &rerr):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": rerr.Error()})
	}
	h.logger.Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
