package middleware

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/restaurant-reservation/internal/config"
)

// HeaderIdempotencyKey carries the client's key for a mutating request.
const HeaderIdempotencyKey = "Idempotency-Key"

const inFlight = "pending"

func idempotencyKey(cfg config.IdempotencyConfig, c echo.Context, key string) string {
	sum := sha1.Sum([]byte(c.Request().Method + " " + c.Request().URL.Path + " " + key))
	return fmt.Sprintf("%s:%s:%x", cfg.Prefix, UserID(c), sum[:])
}

// NewIdempotency replays the stored response of a mutating request whose
// Idempotency-Key was already seen. The key is claimed with SETNX before
// the handler runs; a second request arriving while the first is still in
// flight gets 409. Responses other than 5xx are kept for cfg.TTL.
func NewIdempotency(cfg config.IdempotencyConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method == http.MethodGet || req.Method == http.MethodHead || req.Method == http.MethodOptions {
				return next(c)
			}
			raw := strings.TrimSpace(req.Header.Get(HeaderIdempotencyKey))
			if raw == "" {
				return next(c)
			}
			ctx := req.Context()
			key := idempotencyKey(cfg, c, raw)

			claimed, err := rdb.SetNX(ctx, key, inFlight, cfg.Lock).Result()
			if err != nil {
				c.Logger().Warnf("[idempotency] redis error for key=%s: %v", key, err)
				return next(c)
			}
			if !claimed {
				stored, err := rdb.Get(ctx, key).Bytes()
				if err == nil && string(stored) != inFlight && writeStored(c, stored, "Idempotent-Replayed", "true") {
					return nil
				}
				return c.JSON(http.StatusConflict, echo.Map{"error": "request with this idempotency key is in progress"})
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = cw
			herr := next(c)

			// store after the handler so retries see the final answer; a
			// failed attempt releases the key for a retry
			bg := context.Background()
			if herr != nil || cw.status >= http.StatusInternalServerError {
				_ = rdb.Del(bg, key).Err()
				return herr
			}
			if payload, err := encodePayload(cw.status, cloneHeader(c.Response().Header()), cw.buf.Bytes()); err == nil {
				_ = rdb.Set(bg, key, payload, cfg.TTL).Err()
			}
			return nil
		}
	}
}
