package store

import (
	"context"
	"io"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// DefaultPollInterval is the refresh cadence when none is configured.
const DefaultPollInterval = 30 * time.Second

// Poller periodically reloads reservations of the configured establishments
// into a Store.
type Poller struct {
	Store          *Store
	Source         source.ReservationSource
	Establishments []int64
	Interval       time.Duration
	// DaysBack and DaysAhead bound the reloaded date range around today.
	DaysBack  int
	DaysAhead int
	Logger    *log.Logger

	now func() time.Time
}

func (p *Poller) logger() *log.Logger {
	if p.Logger == nil {
		p.Logger = log.New("poller")
		p.Logger.SetOutput(io.Discard)
	}
	return p.Logger
}

func (p *Poller) scope(est int64) Scope {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	today := now().UTC()
	back, ahead := p.DaysBack, p.DaysAhead
	if back <= 0 {
		back = 7
	}
	if ahead <= 0 {
		ahead = 60
	}
	return Scope{
		EstablishmentID: est,
		From:            today.AddDate(0, 0, -back).Format(model.DateLayout),
		To:              today.AddDate(0, 0, ahead).Format(model.DateLayout),
	}
}

// Refresh reloads one establishment once.
func (p *Poller) Refresh(ctx context.Context, est int64) error {
	sc := p.scope(est)
	fetchedAt := p.Store.now()
	rs, err := p.Source.ListReservations(ctx, source.ReservationFilter{
		EstablishmentID: est,
		DateFrom:        sc.From,
		DateTo:          sc.To,
	})
	if err != nil {
		return err
	}
	if n := p.Store.ApplySnapshot(sc, rs, fetchedAt); n > 0 {
		p.logger().Debugf("establishment %d: %d reservations reconciled", est, n)
	}
	return nil
}

// RefreshAll reloads every configured establishment, logging failures.
func (p *Poller) RefreshAll(ctx context.Context) {
	for _, est := range p.Establishments {
		if ctx.Err() != nil {
			return
		}
		if err := p.Refresh(ctx, est); err != nil {
			p.logger().Warnf("refresh establishment %d: %v", est, err)
		}
	}
}

// Run refreshes immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	p.RefreshAll(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger().Info("poller stopped")
			return
		case <-ticker.C:
			p.RefreshAll(ctx)
		}
	}
}
