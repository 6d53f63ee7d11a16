package capacity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/policy"
	"github.com/iliyamo/restaurant-reservation/internal/source"
)

var (
	// ErrNoCandidate means no waiting entry fits the freed table.
	ErrNoCandidate = errors.New("no waitlist candidate")
	// ErrStaleOffer means the offered entry is no longer waiting.
	ErrStaleOffer = errors.New("waitlist entry is no longer waiting")
)

// Freed describes the table and slot released by a check-out or cancel.
type Freed struct {
	EstablishmentID int64    `json:"establishment_id"`
	AreaID          int64    `json:"area_id"`
	Date            string   `json:"date"`
	Time            string   `json:"time"`
	TableNumbers    []string `json:"table_numbers"`
	ReservationID   int64    `json:"reservation_id"`
	// Seats is the combined capacity of the freed tables, 0 when unknown.
	Seats int `json:"seats,omitempty"`
}

// SeatsOf sums the capacity of the tables listed in numbers. Numbers not
// found in tables add nothing.
func SeatsOf(tables []model.Table, numbers []string) int {
	seats := 0
	for _, t := range tables {
		for _, n := range numbers {
			if t.Number == n {
				seats += t.Capacity
				break
			}
		}
	}
	return seats
}

// FreedBy returns the slot released by r.
func FreedBy(r model.Reservation) Freed {
	date, err := model.NormalizeDate(r.Date)
	if err != nil {
		date = r.Date
	}
	return Freed{
		EstablishmentID: r.EstablishmentID,
		AreaID:          r.AreaID,
		Date:            date,
		Time:            r.Time,
		TableNumbers:    append([]string(nil), r.TableNumbers...),
		ReservationID:   r.ID,
	}
}

// Offer proposes seating one waitlist entry on a freed table. It is only
// materialized when an operator accepts it.
type Offer struct {
	Entry     model.WaitlistEntry `json:"entry"`
	Freed     Freed               `json:"freed"`
	Remaining int                 `json:"remaining"`
}

// Compatible reports whether a waiting entry may take the freed slot. Turn
// based profiles match on the turn; the others accept a preferred time up to
// the promotion window away, or no preferred time at all.
func Compatible(p policy.Profile, freed Freed, e model.WaitlistEntry) bool {
	if e.Status != model.WaitlistWaiting {
		return false
	}
	if freed.EstablishmentID != 0 && e.EstablishmentID != freed.EstablishmentID {
		return false
	}
	if e.PreferredAreaID != nil && *e.PreferredAreaID != freed.AreaID {
		return false
	}
	if freed.Seats > 0 && e.PartySize > freed.Seats {
		return false
	}
	if e.PreferredDate != "" {
		d, err := model.NormalizeDate(e.PreferredDate)
		if err != nil || d != freed.Date {
			return false
		}
	}
	if !e.HasPreferredTime() {
		return true
	}
	want, err := model.ParseMinutes(e.PreferredTime)
	if err != nil {
		return false
	}
	at, err := model.ParseMinutes(freed.Time)
	if err != nil {
		return false
	}
	if p.HasTurns() {
		return p.SameTurn(want, at)
	}
	diff := want - at
	if diff < 0 {
		diff = -diff
	}
	return diff <= p.PromotionWindow()
}

// Candidates returns the compatible waiting entries ordered by position.
func Candidates(p policy.Profile, freed Freed, waitlist []model.WaitlistEntry) []model.WaitlistEntry {
	var out []model.WaitlistEntry
	for _, e := range waitlist {
		if Compatible(p, freed, e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Promoter turns freed tables into offers and accepted offers into
// confirmed reservations.
type Promoter struct {
	waitlist source.WaitlistSource
	writer   source.ReservationWriter
	tables   source.TableSource
	profiles *policy.Registry
	logger   *log.Logger
}

// NewPromoter builds a promoter. tables sizes the freed tables so that only
// parties that fit are offered; with a nil tables no size check is made.
func NewPromoter(waitlist source.WaitlistSource, writer source.ReservationWriter, tables source.TableSource, profiles *policy.Registry, logger *log.Logger) *Promoter {
	if logger == nil {
		logger = log.New("promotion")
		logger.SetOutput(io.Discard)
	}
	return &Promoter{waitlist: waitlist, writer: writer, tables: tables, profiles: profiles, logger: logger}
}

// Offer returns the lowest-position compatible entry not listed in skip.
// Declined entries are passed back through skip to walk the queue.
func (p *Promoter) Offer(ctx context.Context, freed Freed, skip ...int64) (Offer, error) {
	candidates, freed, err := p.candidates(ctx, freed)
	if err != nil {
		return Offer{}, err
	}
	skipped := make(map[int64]bool, len(skip))
	for _, id := range skip {
		skipped[id] = true
	}
	for i, e := range candidates {
		if skipped[e.ID] {
			continue
		}
		return Offer{Entry: e, Freed: freed, Remaining: len(candidates) - i - 1}, nil
	}
	return Offer{}, ErrNoCandidate
}

// OfferEntry builds the offer for a specific entry, failing when that entry
// is not a current candidate for freed.
func (p *Promoter) OfferEntry(ctx context.Context, freed Freed, entryID int64) (Offer, error) {
	candidates, freed, err := p.candidates(ctx, freed)
	if err != nil {
		return Offer{}, err
	}
	for i, e := range candidates {
		if e.ID == entryID {
			return Offer{Entry: e, Freed: freed, Remaining: len(candidates) - i - 1}, nil
		}
	}
	return Offer{}, ErrStaleOffer
}

func (p *Promoter) candidates(ctx context.Context, freed Freed) ([]model.WaitlistEntry, Freed, error) {
	freed, err := p.sized(ctx, freed)
	if err != nil {
		return nil, freed, err
	}
	waitlist, err := p.waitlist.ListWaitlist(ctx, freed.EstablishmentID)
	if err != nil {
		return nil, freed, fmt.Errorf("list waitlist: %w", err)
	}
	profile := p.profiles.ForEstablishment(freed.EstablishmentID)
	return Candidates(profile, freed, waitlist), freed, nil
}

// sized fills freed.Seats from the table source when it is not known yet.
func (p *Promoter) sized(ctx context.Context, freed Freed) (Freed, error) {
	if freed.Seats > 0 || p.tables == nil || len(freed.TableNumbers) == 0 {
		return freed, nil
	}
	tables, err := p.tables.ListTables(ctx, source.TableQuery{EstablishmentID: freed.EstablishmentID, AreaID: freed.AreaID})
	if err != nil {
		return freed, fmt.Errorf("list tables of area %d: %w", freed.AreaID, err)
	}
	freed.Seats = SeatsOf(tables, freed.TableNumbers)
	return freed, nil
}

// ConversionNote is the audit line written on reservations created from a
// waitlist entry.
func ConversionNote(entryID int64) string {
	return fmt.Sprintf("converted from waitlist entry #%d", entryID)
}

// Accept creates the confirmed reservation for offer on the freed table and
// slot, then marks the entry served. When the status update fails after
// the reservation exists, both the reservation and the error are returned.
func (p *Promoter) Accept(ctx context.Context, offer Offer, opts source.WriteOptions) (model.Reservation, error) {
	current, err := p.OfferEntry(ctx, offer.Freed, offer.Entry.ID)
	if err != nil {
		return model.Reservation{}, err
	}
	e := current.Entry

	notes := ConversionNote(e.ID)
	if strings.TrimSpace(e.Notes) != "" {
		notes = notes + "; " + strings.TrimSpace(e.Notes)
	}
	entryID := e.ID
	at, err := model.NormalizeTime(offer.Freed.Time)
	if err != nil {
		return model.Reservation{}, err
	}
	r := model.Reservation{
		Client:          e.Client,
		EstablishmentID: offer.Freed.EstablishmentID,
		AreaID:          offer.Freed.AreaID,
		TableNumbers:    append([]string(nil), offer.Freed.TableNumbers...),
		Date:            offer.Freed.Date,
		Time:            at,
		PartySize:       e.PartySize,
		Status:          model.StatusConfirmed,
		Origin:          model.OriginWaitlist,
		Notes:           notes,
		WaitlistEntryID: &entryID,
	}
	created, err := p.writer.CreateReservation(ctx, r, opts)
	if err != nil {
		return model.Reservation{}, fmt.Errorf("create reservation: %w", err)
	}
	if _, err := p.waitlist.UpdateWaitlistStatus(ctx, e.ID, model.WaitlistServed); err != nil {
		p.logger.Errorf("reservation %d created from waitlist entry %d but marking it served failed: %v", created.ID, e.ID, err)
		return created, fmt.Errorf("mark waitlist entry served: %w", err)
	}
	p.logger.Infof("waitlist entry %d seated as reservation %d on tables %s", e.ID, created.ID, model.JoinTables(created.TableNumbers))
	return created, nil
}
