package config

import "time"

// RateLimitConfig configures the fixed-window limiter: at most Limit
// requests per key in every Window.
type RateLimitConfig struct {
	Enabled     bool
	Limit       int
	Window      time.Duration
	KeyStrategy string // ip, user, ip_user or user_route (default)
	Prefix      string
	Debug       bool
}

func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:     envBool("RATE_LIMIT_ENABLED", true),
		Limit:       envInt("RATE_LIMIT_LIMIT", 120),
		Window:      envDur("RATE_LIMIT_WINDOW", time.Minute),
		KeyStrategy: envStr("RATE_LIMIT_KEY_STRATEGY", "user_route"),
		Prefix:      envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:       envBool("RATE_LIMIT_DEBUG", false),
	}
	if cfg.Limit < 1 {
		cfg.Limit = 1
	}
	if cfg.Window < time.Second {
		cfg.Window = time.Second
	}
	return cfg
}

// IdempotencyConfig configures replay of mutating requests that carry an
// Idempotency-Key header. Responses are kept for TTL; Lock bounds how long a
// key stays claimed by a request still in flight.
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
	Lock    time.Duration
	Prefix  string
}

func LoadIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		Enabled: envBool("IDEMPOTENCY_ENABLED", true),
		TTL:     envDur("IDEMPOTENCY_TTL", 24*time.Hour),
		Lock:    envDur("IDEMPOTENCY_LOCK", 30*time.Second),
		Prefix:  envStr("IDEMPOTENCY_PREFIX", "idem"),
	}
}
