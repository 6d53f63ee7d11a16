package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/restaurant-reservation/internal/config"
	"github.com/iliyamo/restaurant-reservation/internal/database"
	"github.com/iliyamo/restaurant-reservation/internal/queue"
	"github.com/iliyamo/restaurant-reservation/internal/remote"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

func main() {
	cfg := config.LoadWorker()
	logger := log.New("eventworker")
	logger.SetHeader(`${time_rfc3339} ${level} ${prefix}`)
	logger.SetLevel(log.INFO)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var guests source.GuestListSource
	switch cfg.Backend {
	case config.BackendMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		defer db.Close()
		guests = repository.NewGuestListRepo(db)
	case config.BackendRemote:
		guests = remote.New(cfg.RemoteBaseURL,
			remote.WithToken(cfg.RemoteToken),
			remote.WithHTTPClient(&http.Client{Timeout: cfg.RemoteTimeout}),
		)
	default:
		logger.Warn("no guest-list backend; events are only logged")
	}

	c := &queue.Consumer{URL: cfg.RabbitURL, Guests: guests, LogPath: cfg.EventLogPath, Logger: logger}
	logger.Infof("consuming %s, logging to %s", queue.QueueName, cfg.EventLogPath)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal(err)
	}
}
