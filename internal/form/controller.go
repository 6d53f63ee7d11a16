package form

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/restaurant-reservation/internal/availability"
	"github.com/iliyamo/restaurant-reservation/internal/capacity"
	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/policy"
	"github.com/iliyamo/restaurant-reservation/internal/queue"
	"github.com/iliyamo/restaurant-reservation/internal/source"
	"github.com/iliyamo/restaurant-reservation/internal/store"
)

// Publisher delivers reservation events. Failures are logged, never
// returned to the operator.
type Publisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// Reloader refreshes the store from the backend after a write so derived
// server fields (guest-list links and the like) show up.
type Reloader interface {
	Refresh(ctx context.Context, establishmentID int64) error
}

// Config wires a Controller. Publisher, Reloader, Store and Logger are
// optional.
type Config struct {
	Backend   source.Backend
	Resolver  *availability.Resolver
	Gate      *capacity.Gate
	Promoter  *capacity.Promoter
	Profiles  *policy.Registry
	Store     *store.Store
	Publisher Publisher
	Reloader  Reloader
	Logger    *log.Logger
	NewKey    func() string
}

// Controller runs form submissions and operator status changes.
type Controller struct {
	backend   source.Backend
	resolver  *availability.Resolver
	gate      *capacity.Gate
	promoter  *capacity.Promoter
	profiles  *policy.Registry
	store     *store.Store
	publisher Publisher
	reloader  Reloader
	logger    *log.Logger
	newKey    func() string

	reloads       sync.WaitGroup
	reloadTimeout time.Duration
}

func New(cfg Config) *Controller {
	c := &Controller{
		backend:       cfg.Backend,
		resolver:      cfg.Resolver,
		gate:          cfg.Gate,
		promoter:      cfg.Promoter,
		profiles:      cfg.Profiles,
		store:         cfg.Store,
		publisher:     cfg.Publisher,
		reloader:      cfg.Reloader,
		logger:        cfg.Logger,
		newKey:        cfg.NewKey,
		reloadTimeout: 15 * time.Second,
	}
	if c.logger == nil {
		c.logger = log.New("form")
		c.logger.SetOutput(io.Discard)
	}
	if c.newKey == nil {
		c.newKey = uuid.NewString
	}
	return c
}

// Wait blocks until background reloads triggered by writes have finished.
func (c *Controller) Wait() { c.reloads.Wait() }

// Result describes a finished submission.
type Result struct {
	Submission       *Submission          `json:"submission"`
	Reservation      *model.Reservation   `json:"reservation,omitempty"`
	WaitlistEntry    *model.WaitlistEntry `json:"waitlist_entry,omitempty"`
	Converted        bool                 `json:"converted,omitempty"`
	EarlyWaitlist    bool                 `json:"early_waitlist,omitempty"`
	WindowOverridden bool                 `json:"window_overridden,omitempty"`
}

// StatusResult is the outcome of a status change. Offer is set when the
// change freed tables and a waiting guest fits them.
type StatusResult struct {
	Reservation model.Reservation `json:"reservation"`
	Offer       *capacity.Offer   `json:"offer,omitempty"`
}

func (c *Controller) key(k string) string {
	if strings.TrimSpace(k) != "" {
		return k
	}
	return c.newKey()
}

// SubmitReservation validates and writes a reservation form. With in.ID set
// the existing reservation is edited and ignored by the availability and
// capacity checks.
func (c *Controller) SubmitReservation(ctx context.Context, actor Actor, in ReservationInput) (Result, error) {
	sub := newSubmission(c.key(in.IdempotencyKey))
	res := Result{Submission: sub}
	sub.step(StateValidating)

	var prev *model.Reservation
	if in.ID != 0 {
		p, err := c.lookup(ctx, in.EstablishmentID, in.ID)
		if err != nil {
			sub.step(StateRejectedLocally)
			return res, err
		}
		prev = &p
	}

	r, profile, verr := c.validateReservation(actor, in, &res)
	if !verr.empty() {
		sub.step(StateRejectedLocally)
		return res, verr
	}

	if _, blocked := profile.BlockFor(r.Date, r.Time, r.AreaID); blocked && r.Status.Active() {
		r.Status = model.StatusEarlyWaitlist
		r.TableNumbers = nil
		res.EarlyWaitlist = true
	} else if r.Status.Active() {
		if err := c.checkTables(ctx, profile, r, strings.TrimSpace(in.SubArea)); err != nil {
			sub.step(StateRejectedLocally)
			return res, err
		}
		if prev == nil || prev.Date != r.Date || prev.Time != r.Time || prev.PartySize != r.PartySize {
			if err := c.checkCapacity(ctx, r); err != nil {
				sub.step(StateRejectedLocally)
				return res, err
			}
		}
	}

	sub.step(StateSubmitting)
	opts := source.WriteOptions{IdempotencyKey: sub.Key}
	var (
		saved model.Reservation
		err   error
		typ   = queue.TypeReservationCreated
		was   model.Status
	)
	if prev == nil {
		saved, err = c.backend.CreateReservation(ctx, r, opts)
	} else {
		r.ID = prev.ID
		r.Version = prev.Version
		r.WaitlistEntryID = prev.WaitlistEntryID
		if r.EventID == nil {
			r.EventID = prev.EventID
		}
		typ, was = queue.TypeReservationUpdated, prev.Status
		saved, err = c.backend.UpdateReservation(ctx, r, opts)
	}
	if err != nil {
		sub.step(StateServerError)
		return res, c.writeError(err, r.TableNumbers)
	}
	sub.step(StateSuccess)
	c.applied(ctx, actor, saved, typ, was)
	res.Reservation = &saved

	c.logger.Infoj(log.JSON{
		"msg":             "reservation saved",
		"reservation_id":  saved.ID,
		"establishment":   saved.EstablishmentID,
		"date":            saved.Date,
		"time":            saved.Time,
		"tables":          model.JoinTables(saved.TableNumbers),
		"status":          saved.Status,
		"actor":           actor.Subject,
		"early_waitlist":  res.EarlyWaitlist,
		"window_override": res.WindowOverridden,
	})
	return res, nil
}

func (c *Controller) writeError(err error, tables []string) error {
	if errors.Is(err, source.ErrConflict) {
		return &ConflictError{Reason: ReasonServerRejected, Tables: tables, RedirectToWaitlist: true, Err: err}
	}
	return err
}

// validateReservation builds the reservation from the form. Every field
// problem is collected before returning.
func (c *Controller) validateReservation(actor Actor, in ReservationInput, res *Result) (model.Reservation, policy.Profile, *ValidationError) {
	v := &ValidationError{}
	profile := c.profiles.ForEstablishment(in.EstablishmentID)

	client := in.Client
	client.Name = strings.TrimSpace(client.Name)
	if client.Name == "" {
		v.add("client.name", "client name is required")
	}
	date, err := model.NormalizeDate(in.Date)
	if err != nil {
		v.add("date", "date must be YYYY-MM-DD")
	}
	at, err := model.NormalizeTime(in.Time)
	if err != nil {
		v.add("time", "time must be HH:MM or HH:MM:SS")
	}
	if in.PartySize < 1 {
		v.add("party_size", "party size must be at least 1")
	}
	areaID, areaOK := in.AreaID.ID()
	if !areaOK {
		v.add("area_id", "area must be a positive integer id")
	}

	tables := in.tables()
	subKey := strings.TrimSpace(in.SubArea)
	if areaOK {
		if subKey == "" && len(tables) > 0 {
			if sa, ok := profile.SubAreaForTables(tables); ok && sa.AreaID == areaID {
				subKey = sa.Key
			}
		}
		if subKey != "" {
			if sa, ok := profile.SubArea(subKey); !ok || sa.AreaID != areaID {
				v.add("subarea", "unknown sub-area for this area")
			}
		} else if len(profile.SubAreasFor(areaID)) > 0 {
			v.add("subarea", "choose a sub-area")
		}
	}

	origin := strings.TrimSpace(in.Origin)
	if origin == "" {
		origin = model.OriginAdmin
	}
	status := model.ParseStatus(string(in.Status), in.Notes)
	if in.Status == "" && status == model.StatusNew {
		status = model.DefaultStatusFor(origin)
	}
	if !status.Valid() {
		v.add("status", fmt.Sprintf("unknown status %q", in.Status))
	}

	if !in.EventTag.Valid() {
		v.add("event_tag", fmt.Sprintf("unknown event tag %q", in.EventTag))
	} else if in.EventTag != model.EventNone && in.PartySize > 0 && !profile.IsLargeParty(in.PartySize) {
		v.add("event_tag", fmt.Sprintf("event tags apply to parties of %d or more", profile.LargePartySize))
	}

	if v.Fields["date"] == "" && v.Fields["time"] == "" {
		_, blocked := profile.BlockFor(date, at, areaID)
		if !blocked {
			family := profile.FamilyOf(subKey)
			allowed, err := profile.Allows(date, at, family)
			if err == nil && !allowed {
				if actor.CanOverrideWindow() {
					res.WindowOverridden = true
					c.logger.Warnf("%s booked %s %s outside the operating windows of establishment %d", actor.Subject, date, at, in.EstablishmentID)
				} else {
					v.add("time", windowMessage(profile, date, family))
				}
			}
		}
	}

	r := model.Reservation{
		ID:              in.ID,
		Client:          client,
		EstablishmentID: in.EstablishmentID,
		AreaID:          areaID,
		TableNumbers:    tables,
		Date:            date,
		Time:            at,
		PartySize:       in.PartySize,
		Status:          status,
		Origin:          origin,
		Notes:           strings.TrimSpace(in.Notes),
		BlocksArea:      in.BlocksArea,
		EventTag:        in.EventTag,
		EventID:         in.EventID,
		NotifyEmail:     in.NotifyEmail,
		NotifyWhatsApp:  in.NotifyWhatsApp,
	}
	return r, profile, v
}

func windowMessage(p policy.Profile, date, family string) string {
	windows, err := p.WindowsFor(date, family)
	if err != nil || len(windows) == 0 {
		return "the establishment is closed on this day"
	}
	parts := make([]string, len(windows))
	for i, w := range windows {
		parts[i] = w.String()
	}
	return "outside operating hours (" + strings.Join(parts, ", ") + ")"
}

// checkTables enforces the table rules: named tables must exist in the area
// (in subArea when one was chosen explicitly) and be free; without tables, a
// small party must pick one when any fits.
func (c *Controller) checkTables(ctx context.Context, profile policy.Profile, r model.Reservation, subArea string) error {
	tables, err := c.resolver.Resolve(ctx, availability.Query{
		EstablishmentID:      r.EstablishmentID,
		AreaID:               r.AreaID,
		Date:                 r.Date,
		Time:                 r.Time,
		PartySize:            r.PartySize,
		SubArea:              subArea,
		ExcludeReservationID: r.ID,
	})
	if err != nil {
		return err
	}

	if len(r.TableNumbers) > 0 {
		occupied, unknown := availability.Check(tables, r.TableNumbers)
		if len(unknown) > 0 {
			return &ValidationError{Fields: map[string]string{
				"table_numbers": fmt.Sprintf("table %s is not part of this area", strings.Join(unknown, ",")),
			}}
		}
		if len(occupied) > 0 {
			return &ConflictError{Reason: ReasonTableOccupied, Tables: occupied, RedirectToWaitlist: true}
		}
		return nil
	}

	if r.BlocksArea || profile.IsLargeParty(r.PartySize) || len(tables) == 0 {
		return nil
	}
	if len(availability.Free(tables, r.PartySize)) > 0 {
		return &ValidationError{Fields: map[string]string{"table_numbers": "select a table"}}
	}
	return &ValidationError{Fields: map[string]string{"table_numbers": "no compatible table is free at this time"}}
}

func (c *Controller) checkCapacity(ctx context.Context, r model.Reservation) error {
	if c.gate == nil {
		return nil
	}
	d, err := c.gate.CanReserve(ctx, capacity.Request{
		EstablishmentID:      r.EstablishmentID,
		Date:                 r.Date,
		Time:                 r.Time,
		PartySize:            r.PartySize,
		ExcludeReservationID: r.ID,
	})
	if err != nil {
		return err
	}
	if !d.OK {
		return &ConflictError{Reason: d.Reason, Decision: &d, Tables: r.TableNumbers, RedirectToWaitlist: true}
	}
	return nil
}

// SubmitWaitlist queues a guest. When the form names a table and a time and
// that table is free then, the submission is written as a confirmed
// reservation instead; a conflict on that path falls back to the queue.
func (c *Controller) SubmitWaitlist(ctx context.Context, actor Actor, in WaitlistInput) (Result, error) {
	key := c.key(in.IdempotencyKey)
	v := &ValidationError{}

	client := in.Client
	client.Name = strings.TrimSpace(client.Name)
	if client.Name == "" {
		v.add("client.name", "client name is required")
	}
	date, err := model.NormalizeDate(in.Date)
	if err != nil {
		v.add("date", "date must be YYYY-MM-DD")
	}
	at := ""
	if strings.TrimSpace(in.Time) != "" {
		if at, err = model.NormalizeTime(in.Time); err != nil {
			v.add("time", "time must be HH:MM or HH:MM:SS")
		}
	}
	if in.PartySize < 1 {
		v.add("party_size", "party size must be at least 1")
	}
	areaID, areaOK := in.AreaID.ID()
	if in.AreaID != "" && !areaOK {
		v.add("area_id", "area must be a positive integer id")
	}
	table := strings.TrimSpace(in.TableNumber)
	if table != "" && in.AreaID == "" {
		v.add("area_id", "an area is required when a table is given")
	}

	if v.empty() && at != "" && table != "" && areaOK {
		converted, err := c.tryConvert(ctx, actor, in, key, areaID, date, at, table)
		if err != nil || converted.Reservation != nil {
			return converted, err
		}
	}

	sub := newSubmission(key)
	res := Result{Submission: sub}
	sub.step(StateValidating)
	if !v.empty() {
		sub.step(StateRejectedLocally)
		return res, v
	}

	e := model.WaitlistEntry{
		EstablishmentID: in.EstablishmentID,
		Client:          client,
		PartySize:       in.PartySize,
		PreferredDate:   date,
		PreferredTime:   at,
		Status:          model.WaitlistWaiting,
		PreferredTable:  table,
		Notes:           strings.TrimSpace(in.Notes),
	}
	if areaOK {
		e.PreferredAreaID = &areaID
	}
	sub.step(StateSubmitting)
	saved, err := c.backend.CreateWaitlistEntry(ctx, e, source.WriteOptions{IdempotencyKey: key})
	if err != nil {
		sub.step(StateServerError)
		return res, err
	}
	sub.step(StateSuccess)
	res.WaitlistEntry = &saved
	c.logger.Infof("waitlist entry %d queued at position %d for establishment %d on %s", saved.ID, saved.Position, saved.EstablishmentID, saved.PreferredDate)
	return res, nil
}

// tryConvert returns a Result with a reservation when the conversion went
// through, an empty Result when the guest should be queued instead, or the
// error that must reach the operator.
func (c *Controller) tryConvert(ctx context.Context, actor Actor, in WaitlistInput, key string, areaID int64, date, at, table string) (Result, error) {
	tables, err := c.resolver.Resolve(ctx, availability.Query{
		EstablishmentID: in.EstablishmentID,
		AreaID:          areaID,
		Date:            date,
		Time:            at,
		PartySize:       in.PartySize,
		SubArea:         in.SubArea,
	})
	if err != nil {
		c.logger.Warnf("waitlist conversion check failed, queueing instead: %v", err)
		return Result{}, nil
	}
	occupied, unknown := availability.Check(tables, model.SplitTables(table))
	if len(occupied) > 0 || len(unknown) > 0 {
		return Result{}, nil
	}

	res, err := c.SubmitReservation(ctx, actor, ReservationInput{
		EstablishmentID: in.EstablishmentID,
		Client:          in.Client,
		Date:            date,
		Time:            at,
		PartySize:       in.PartySize,
		AreaID:          in.AreaID,
		SubArea:         in.SubArea,
		TableNumber:     table,
		Status:          model.StatusConfirmed,
		Origin:          model.OriginWaitlist,
		Notes:           in.Notes,
		IdempotencyKey:  key,
	})
	if err == nil {
		res.Converted = true
		return res, nil
	}
	var ce *ConflictError
	var ve *ValidationError
	if errors.As(err, &ce) || errors.As(err, &ve) {
		c.logger.Infof("waitlist submission for table %s not converted: %v", table, err)
		return Result{}, nil
	}
	return res, err
}

// ChangeStatus applies an operator action. Check-out and cancel look for a
// waiting guest who fits the freed tables and return the offer; nothing is
// seated until the offer is accepted.
func (c *Controller) ChangeStatus(ctx context.Context, actor Actor, establishmentID, reservationID int64, action Action, idempotencyKey string) (StatusResult, error) {
	target, ok := action.target()
	if !ok {
		return StatusResult{}, &ValidationError{Fields: map[string]string{"action": fmt.Sprintf("unknown action %q", action)}}
	}
	r, err := c.lookup(ctx, establishmentID, reservationID)
	if err != nil {
		return StatusResult{}, err
	}
	if !r.Status.Active() || r.Status == target {
		return StatusResult{}, fmt.Errorf("%w: reservation %d is %s", ErrInvalidTransition, r.ID, r.Status)
	}
	if action == ActionCheckOut && r.Status != model.StatusCheckedIn {
		return StatusResult{}, fmt.Errorf("%w: reservation %d must be checked in before check-out", ErrInvalidTransition, r.ID)
	}

	was := r.Status
	r.Status = target
	saved, err := c.backend.UpdateReservation(ctx, r, source.WriteOptions{IdempotencyKey: c.key(idempotencyKey)})
	if err != nil {
		return StatusResult{}, c.writeError(err, r.TableNumbers)
	}
	c.applied(ctx, actor, saved, queue.TypeReservationStatusChanged, was)

	out := StatusResult{Reservation: saved}
	if action.frees() {
		offer, err := c.NextOffer(ctx, saved)
		switch {
		case err == nil:
			out.Offer = &offer
		case errors.Is(err, capacity.ErrNoCandidate):
		default:
			c.logger.Warnf("promotion scan after %s of reservation %d failed: %v", action, saved.ID, err)
		}
	}
	return out, nil
}

// NextOffer returns the next waiting guest for the tables freed by r,
// skipping entries the operator already declined.
func (c *Controller) NextOffer(ctx context.Context, r model.Reservation, skip ...int64) (capacity.Offer, error) {
	if c.promoter == nil || len(r.TableNumbers) == 0 || r.Status.Active() {
		return capacity.Offer{}, capacity.ErrNoCandidate
	}
	return c.promoter.Offer(ctx, capacity.FreedBy(r), skip...)
}

// Offer looks the freed reservation up and returns its next offer.
func (c *Controller) Offer(ctx context.Context, establishmentID, reservationID int64, skip ...int64) (capacity.Offer, error) {
	r, err := c.lookup(ctx, establishmentID, reservationID)
	if err != nil {
		return capacity.Offer{}, err
	}
	return c.NextOffer(ctx, r, skip...)
}

// AcceptPromotion seats waitlist entry entryID on the tables freed by
// reservation freedID.
func (c *Controller) AcceptPromotion(ctx context.Context, actor Actor, establishmentID, entryID, freedID int64, idempotencyKey string) (model.Reservation, error) {
	if c.promoter == nil {
		return model.Reservation{}, capacity.ErrNoCandidate
	}
	freedRes, err := c.lookup(ctx, establishmentID, freedID)
	if err != nil {
		return model.Reservation{}, err
	}
	if freedRes.Status.Active() {
		return model.Reservation{}, fmt.Errorf("%w: reservation %d still holds its tables", ErrInvalidTransition, freedID)
	}
	freed := capacity.FreedBy(freedRes)
	offer, err := c.promoter.OfferEntry(ctx, freed, entryID)
	if err != nil {
		return model.Reservation{}, err
	}

	tables, err := c.resolver.Resolve(ctx, availability.Query{
		EstablishmentID: establishmentID,
		AreaID:          freed.AreaID,
		Date:            freed.Date,
		Time:            freed.Time,
		PartySize:       offer.Entry.PartySize,
	})
	if err != nil {
		return model.Reservation{}, err
	}
	if occupied, _ := availability.Check(tables, freed.TableNumbers); len(occupied) > 0 {
		return model.Reservation{}, &ConflictError{Reason: ReasonTableOccupied, Tables: occupied}
	}

	created, err := c.promoter.Accept(ctx, offer, source.WriteOptions{IdempotencyKey: c.key(idempotencyKey)})
	if created.ID != 0 {
		c.applied(ctx, actor, created, queue.TypeWaitlistPromoted, "")
	}
	if err != nil {
		return created, c.writeError(err, freed.TableNumbers)
	}
	return created, nil
}

// lookup fetches a reservation from the backend and checks it belongs to
// the establishment.
func (c *Controller) lookup(ctx context.Context, establishmentID, id int64) (model.Reservation, error) {
	r, err := c.backend.GetReservation(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if establishmentID != 0 && r.EstablishmentID != 0 && r.EstablishmentID != establishmentID {
		return model.Reservation{}, fmt.Errorf("reservation %d: %w", id, source.ErrNotFound)
	}
	return r, nil
}

// applied patches the store, publishes the event and schedules a reload.
func (c *Controller) applied(ctx context.Context, actor Actor, r model.Reservation, typ string, was model.Status) {
	if c.store != nil {
		c.store.Upsert(r)
	}
	if c.publisher != nil {
		ev := queue.NewEvent(typ, actor.Subject, r)
		ev.PreviousStatus = was
		ev.LargeParty = c.profiles.ForEstablishment(r.EstablishmentID).IsLargeParty(r.PartySize)
		if r.WaitlistEntryID != nil {
			ev.WaitlistEntryID = *r.WaitlistEntryID
		}
		if err := c.publisher.Publish(ctx, ev); err != nil {
			c.logger.Warnf("publish %s for reservation %d: %v", typ, r.ID, err)
		}
	}
	if c.reloader != nil {
		c.reloads.Add(1)
		go func(est int64) {
			defer c.reloads.Done()
			rctx, cancel := context.WithTimeout(context.Background(), c.reloadTimeout)
			defer cancel()
			if err := c.reloader.Refresh(rctx, est); err != nil {
				c.logger.Warnf("reload establishment %d after write: %v", est, err)
			}
		}(r.EstablishmentID)
	}
}
