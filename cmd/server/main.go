package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/restaurant-reservation/internal/availability"
	"github.com/iliyamo/restaurant-reservation/internal/capacity"
	"github.com/iliyamo/restaurant-reservation/internal/config"
	"github.com/iliyamo/restaurant-reservation/internal/database"
	"github.com/iliyamo/restaurant-reservation/internal/form"
	"github.com/iliyamo/restaurant-reservation/internal/handler"
	"github.com/iliyamo/restaurant-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-reservation/internal/policy"
	"github.com/iliyamo/restaurant-reservation/internal/realtime"
	"github.com/iliyamo/restaurant-reservation/internal/remote"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
	"github.com/iliyamo/restaurant-reservation/internal/router"
	"github.com/iliyamo/restaurant-reservation/internal/service"
	"github.com/iliyamo/restaurant-reservation/internal/source"
	"github.com/iliyamo/restaurant-reservation/internal/store"
)

func main() {
	cfg := config.Load()

	logger := log.New("reservations")
	logger.SetHeader(`${time_rfc3339} ${level} ${prefix} ${short_file}:${line}`)
	if cfg.Env == "dev" {
		logger.SetLevel(log.DEBUG)
	} else {
		logger.SetLevel(log.INFO)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profiles := policy.NewBuiltinRegistry()
	if cfg.PolicyFile != "" {
		if err := profiles.LoadFile(cfg.PolicyFile); err != nil {
			logger.Fatalf("policy file: %v", err)
		}
	}

	backend, closeBackend := openBackend(ctx, cfg, profiles, logger)
	defer closeBackend()

	ests := cfg.EstablishmentIDs
	if len(ests) == 0 {
		ests = profiles.Establishments()
	}
	st := store.New()
	poller := &store.Poller{
		Store:          st,
		Source:         backend,
		Establishments: ests,
		Interval:       cfg.PollInterval,
		Logger:         logger,
	}

	var publisher form.Publisher
	if cfg.RabbitURL != "" {
		p := service.NewPublisher(cfg.RabbitURL)
		defer p.Close()
		publisher = p
	}

	tables := availability.WithFallback(backend, availability.CatalogSource{Profiles: profiles}, logger)
	resolver := availability.NewResolver(tables, backend, profiles, logger)
	gate := capacity.NewGate(backend, backend, backend)
	ctrl := form.New(form.Config{
		Backend:   backend,
		Resolver:  resolver,
		Gate:      gate,
		Promoter:  capacity.NewPromoter(backend, backend, tables, profiles, logger),
		Profiles:  profiles,
		Store:     st,
		Publisher: publisher,
		Reloader:  poller,
		Logger:    logger,
	})

	cacheCfg := config.LoadCacheConfig()
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
	}
	h := handler.New(handler.Config{
		Controller: ctrl,
		Resolver:   resolver,
		Gate:       gate,
		Profiles:   profiles,
		Backend:    backend,
		Store:      st,
		Purger:     purger(middleware.NewCachePurger(cacheCfg, rdb)),
		Logger:     logger,
	})
	hub := realtime.New(st, h, logger)
	defer hub.Close()

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	router.RegisterRoutes(e)
	router.Register(e, router.Deps{
		Handler:     h,
		Hub:         hub,
		JWTSecret:   cfg.JWTSecret,
		Redis:       rdb,
		Cache:       cacheCfg,
		RateLimit:   config.LoadRateLimitConfig(),
		Idempotency: config.LoadIdempotencyConfig(),
	})

	go poller.Run(ctx)

	addr := ":" + cfg.Port
	go func() {
		logger.Infof("listening on %s (env=%s, backend=%s)", addr, cfg.Env, cfg.Backend)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	ctrl.Wait()
}

// purger keeps a nil *CachePurger from turning into a non-nil interface.
func purger(p *middleware.CachePurger) handler.Purger {
	if p == nil {
		return nil
	}
	return p
}

// openBackend builds the data source selected by SOURCE_BACKEND and binds
// the establishments it knows about to their policy profiles.
func openBackend(ctx context.Context, cfg config.Config, profiles *policy.Registry, logger *log.Logger) (source.Backend, func()) {
	switch cfg.Backend {
	case config.BackendMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		if cfg.DBMigrate {
			if err := repository.Migrate(ctx, db); err != nil {
				logger.Fatalf("migrate: %v", err)
			}
		}
		b := repository.NewBackend(db, availability.ConflictCheck(profiles))
		ests, err := b.ListEstablishments(ctx)
		if err != nil {
			logger.Fatalf("list establishments: %v", err)
		}
		for _, est := range ests {
			if err := profiles.BindEstablishment(est); err != nil {
				logger.Warnf("establishment %d: %v", est.ID, err)
			}
		}
		return b, func() { _ = db.Close() }

	case config.BackendMemory:
		mem := source.NewMemory()
		mem.CheckConflict = availability.ConflictCheck(profiles)
		logger.Warn("using the in-memory backend; data is lost on restart")
		return mem, func() {}
	}

	client := remote.New(cfg.RemoteBaseURL,
		remote.WithToken(cfg.RemoteToken),
		remote.WithHTTPClient(&http.Client{Timeout: cfg.RemoteTimeout}),
	)
	return client, func() {}
}
