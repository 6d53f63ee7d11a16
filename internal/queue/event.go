// Package queue defines the reservation events exchanged over the message
// broker and the consumer that processes them.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// QueueName is the durable queue all reservation events are routed to.
const QueueName = "reservation.events"

// Event types.
const (
	TypeReservationCreated       = "reservation.created"
	TypeReservationUpdated       = "reservation.updated"
	TypeReservationStatusChanged = "reservation.status_changed"
	TypeWaitlistPromoted         = "waitlist.promoted"
)

// Event is the envelope of every message. Reservation carries the state
// after the change; for status changes PreviousStatus holds the old one.
type Event struct {
	ID              string            `json:"id"`
	Type            string            `json:"type"`
	OccurredAt      string            `json:"occurred_at"`
	Actor           string            `json:"actor,omitempty"`
	EstablishmentID int64             `json:"establishment_id"`
	Reservation     model.Reservation `json:"reservation"`
	PreviousStatus  model.Status      `json:"previous_status,omitempty"`
	WaitlistEntryID int64             `json:"waitlist_entry_id,omitempty"`
	LargeParty      bool              `json:"large_party,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(typ, actor string, r model.Reservation) Event {
	return Event{
		ID:              uuid.NewString(),
		Type:            typ,
		OccurredAt:      time.Now().UTC().Format(time.RFC3339),
		Actor:           actor,
		EstablishmentID: r.EstablishmentID,
		Reservation:     r,
	}
}
