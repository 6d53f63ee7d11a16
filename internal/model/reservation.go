package model

import (
	"strings"
	"time"
)

// Client identifies the guest behind a reservation or waitlist entry.
type Client struct {
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Birthdate string `json:"birthdate,omitempty"` // YYYY-MM-DD, optional
}

// EventTag categorises large-party bookings for guest-list generation. It has
// no effect on availability.
type EventTag string

const (
	EventNone          EventTag = ""
	EventBirthday      EventTag = "birthday"
	EventFarewell      EventTag = "farewell"
	EventOther         EventTag = "other"
	EventThemedWeekday EventTag = "themed-weekday"
)

// Valid reports whether t is empty or one of the known tags.
func (t EventTag) Valid() bool {
	switch t {
	case EventNone, EventBirthday, EventFarewell, EventOther, EventThemedWeekday:
		return true
	}
	return false
}

// Origin tags where a reservation was created.
const (
	OriginAdmin    = "admin"
	OriginSite     = "site"
	OriginPhone    = "phone"
	OriginWalkIn   = "walk-in"
	OriginWaitlist = "waitlist"
)

// DefaultStatusFor returns the status a new reservation takes when the form
// did not set one. Bookings entered by staff are confirmed immediately;
// self-service bookings wait for confirmation.
func DefaultStatusFor(origin string) Status {
	switch origin {
	case OriginAdmin, OriginPhone, OriginWaitlist:
		return StatusConfirmed
	case OriginWalkIn:
		return StatusCheckedIn
	case OriginSite:
		return StatusPending
	}
	return StatusNew
}

// Reservation is a booking of one or more tables in an area for a date and
// time. TableNumbers holds every table of a multi-table booking; on the wire
// they travel comma-joined (see JoinTables).
type Reservation struct {
	ID              int64     `json:"id"`
	Client          Client    `json:"client"`
	EstablishmentID int64     `json:"establishment_id"`
	AreaID          int64     `json:"area_id"`
	TableNumbers    []string  `json:"table_numbers,omitempty"`
	Date            string    `json:"date"` // YYYY-MM-DD
	Time            string    `json:"time"` // HH:MM:SS
	PartySize       int       `json:"party_size"`
	Status          Status    `json:"status"`
	Origin          string    `json:"origin,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	BlocksArea      bool      `json:"blocks_area,omitempty"`
	EventTag        EventTag  `json:"event_tag,omitempty"`
	EventID         *int64    `json:"event_id,omitempty"`
	WaitlistEntryID *int64    `json:"waitlist_entry_id,omitempty"`
	NotifyEmail     bool      `json:"notify_email,omitempty"`
	NotifyWhatsApp  bool      `json:"notify_whatsapp,omitempty"`
	Version         int64     `json:"version"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// HasTable reports whether the reservation occupies table number n.
func (r Reservation) HasTable(n string) bool {
	for _, t := range r.TableNumbers {
		if t == n {
			return true
		}
	}
	return false
}

// SharesTable reports whether r and the given table numbers have at least
// one table in common.
func (r Reservation) SharesTable(numbers []string) bool {
	for _, n := range numbers {
		if r.HasTable(n) {
			return true
		}
	}
	return false
}

// Minutes returns the minute-of-day of the reservation time.
func (r Reservation) Minutes() (int, error) {
	return ParseMinutes(r.Time)
}

// Clone returns a copy that shares no slices or pointers with r.
func (r Reservation) Clone() Reservation {
	out := r
	if r.TableNumbers != nil {
		out.TableNumbers = append([]string(nil), r.TableNumbers...)
	}
	if r.EventID != nil {
		v := *r.EventID
		out.EventID = &v
	}
	if r.WaitlistEntryID != nil {
		v := *r.WaitlistEntryID
		out.WaitlistEntryID = &v
	}
	return out
}

// SplitTables parses a comma-joined table field ("204, 206") into numbers.
// Empty members are dropped.
func SplitTables(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinTables is the inverse of SplitTables.
func JoinTables(numbers []string) string {
	return strings.Join(numbers, ",")
}
