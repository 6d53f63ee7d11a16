// Package source declares the data contracts the availability engine reads
// and writes through. The collaborator REST API (package remote) and the
// MySQL store (package repository) both implement them.
package source

import (
	"context"
	"errors"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by a write that the backend rejected because the
// table or slot is no longer free.
var ErrConflict = errors.New("conflict")

// ErrUnavailable is returned by a source that cannot serve the request at
// all (for example a catalog source asked about an unknown area).
var ErrUnavailable = errors.New("source unavailable")

// TableQuery selects the table catalog of one area for one date.
type TableQuery struct {
	EstablishmentID int64
	AreaID          int64
	Date            string
}

// ReservationFilter narrows a reservation listing. Zero values match all.
type ReservationFilter struct {
	EstablishmentID int64
	AreaID          int64
	Date            string
	DateFrom        string
	DateTo          string
	Status          model.Status
}

// WriteOptions travel with every write. IdempotencyKey lets the backend
// reject or replay a duplicate submission.
type WriteOptions struct {
	IdempotencyKey string
}

// AreaSource lists the areas of an establishment.
type AreaSource interface {
	ListAreas(ctx context.Context, establishmentID int64) ([]model.Area, error)
}

// TableSource lists the tables of an area.
type TableSource interface {
	ListTables(ctx context.Context, q TableQuery) ([]model.Table, error)
}

// ReservationSource reads reservations.
type ReservationSource interface {
	ListReservations(ctx context.Context, f ReservationFilter) ([]model.Reservation, error)
	GetReservation(ctx context.Context, id int64) (model.Reservation, error)
}

// ReservationWriter creates and updates reservations. Implementations return
// ErrConflict when the write would double-book a table.
type ReservationWriter interface {
	CreateReservation(ctx context.Context, r model.Reservation, opts WriteOptions) (model.Reservation, error)
	UpdateReservation(ctx context.Context, r model.Reservation, opts WriteOptions) (model.Reservation, error)
}

// WaitlistSource reads and writes waitlist entries.
type WaitlistSource interface {
	ListWaitlist(ctx context.Context, establishmentID int64) ([]model.WaitlistEntry, error)
	CreateWaitlistEntry(ctx context.Context, e model.WaitlistEntry, opts WriteOptions) (model.WaitlistEntry, error)
	UpdateWaitlistStatus(ctx context.Context, id int64, status model.WaitlistStatus) (model.WaitlistEntry, error)
}

// GuestListRequest asks the downstream guest-list feature to prepare a list
// for a large-party booking.
type GuestListRequest struct {
	ReservationID   int64          `json:"reservation_id"`
	EstablishmentID int64          `json:"establishment_id"`
	Date            string         `json:"date"`
	HostName        string         `json:"host_name"`
	ExpectedGuests  int            `json:"expected_guests"`
	EventTag        model.EventTag `json:"event_type"`
}

// GuestListSource creates guest lists.
type GuestListSource interface {
	CreateGuestList(ctx context.Context, req GuestListRequest) error
}

// Backend is the full contract a data provider offers.
type Backend interface {
	AreaSource
	TableSource
	ReservationSource
	ReservationWriter
	WaitlistSource
}
