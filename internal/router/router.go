// Package router registers the HTTP routes and their middleware chains.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/restaurant-reservation/internal/config"
	"github.com/iliyamo/restaurant-reservation/internal/form"
	"github.com/iliyamo/restaurant-reservation/internal/handler"
	"github.com/iliyamo/restaurant-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-reservation/internal/realtime"
)

// Deps carries what the route groups need. Redis is optional; without it
// the cache, rate limit and idempotency middlewares pass through.
type Deps struct {
	Handler     *handler.Handler
	Hub         *realtime.Hub
	JWTSecret   string
	Redis       *redis.Client
	Cache       config.CacheConfig
	RateLimit   config.RateLimitConfig
	Idempotency config.IdempotencyConfig
}

// RegisterRoutes registers the routes that need no authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// Register mounts the operator API under /v1. Every route requires a JWT
// with an ADMIN or OPERATOR role.
func Register(e *echo.Echo, d Deps) {
	g := e.Group("/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(form.RoleAdmin, form.RoleOperator),
		middleware.NewFixedWindow(d.RateLimit, d.Redis),
	)
	est := g.Group("/establishments/:id")
	registerReads(est, d)
	registerWrites(est, d)
	if d.Hub != nil {
		est.GET("/week/stream", d.Hub.Serve)
	}
}

func registerReads(g *echo.Group, d Deps) {
	h := d.Handler
	cache := middleware.NewRedisCache(d.Cache, d.Redis)
	g.GET("/areas/:area_id/tables", h.Tables, cache)
	g.GET("/capacity", h.Capacity, cache)
	g.GET("/windows", h.Windows, cache)
	g.GET("/subareas", h.SubAreas, cache)
	g.GET("/week", h.Week, cache)
	g.GET("/reservations", h.ListReservations, cache)
	// offers depend on the live waitlist and are never cached
	g.GET("/reservations/:rid/offer", h.Offer)
}

func registerWrites(g *echo.Group, d Deps) {
	h := d.Handler
	idem := middleware.NewIdempotency(d.Idempotency, d.Redis)
	g.POST("/reservations", h.CreateReservation, idem)
	g.PUT("/reservations/:rid", h.UpdateReservation, idem)
	g.POST("/reservations/:rid/check-in", h.ChangeStatus(form.ActionCheckIn), idem)
	g.POST("/reservations/:rid/check-out", h.ChangeStatus(form.ActionCheckOut), idem)
	g.POST("/reservations/:rid/cancel", h.ChangeStatus(form.ActionCancel), idem)
	g.POST("/waitlist", h.SubmitWaitlist, idem)
	g.POST("/waitlist/:wid/promote", h.Promote, idem)
}
