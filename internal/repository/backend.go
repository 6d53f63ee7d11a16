package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// Backend is the MySQL implementation of source.Backend.
type Backend struct {
	*VenueRepo
	*ReservationRepo
	*WaitlistRepo
	*GuestListRepo
}

var (
	_ source.Backend         = (*Backend)(nil)
	_ source.GuestListSource = (*Backend)(nil)
)

// NewBackend wires every repository over db. check guards reservation writes.
func NewBackend(db *sql.DB, check ConflictFunc) *Backend {
	return &Backend{
		VenueRepo:       NewVenueRepo(db),
		ReservationRepo: NewReservationRepo(db, check),
		WaitlistRepo:    NewWaitlistRepo(db),
		GuestListRepo:   NewGuestListRepo(db),
	}
}

// GuestListRepo records guest lists requested for large parties.
type GuestListRepo struct {
	db *sql.DB
}

func NewGuestListRepo(db *sql.DB) *GuestListRepo { return &GuestListRepo{db: db} }

// CreateGuestList stores one list per reservation; a repeat is a no-op.
func (r *GuestListRepo) CreateGuestList(ctx context.Context, req source.GuestListRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO guest_lists (reservation_id, establishment_id, list_date, host_name, expected_guests, event_type)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		req.ReservationID, req.EstablishmentID, req.Date, req.HostName, req.ExpectedGuests, nullString(string(req.EventTag)))
	if isDuplicate(err) {
		return nil
	}
	return translate(err, "insert guest list")
}
