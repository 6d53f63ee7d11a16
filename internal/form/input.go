package form

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// Operator roles carried in the access token.
const (
	RoleAdmin    = "ADMIN"
	RoleOperator = "OPERATOR"
)

// Actor is the operator behind a submission.
type Actor struct {
	Subject string
	Role    string
}

// CanOverrideWindow reports whether the actor may book outside the
// operating windows.
func (a Actor) CanOverrideWindow() bool { return a.Role == RoleAdmin }

// AreaRef is an area id as the form sends it: a JSON number or a string.
type AreaRef string

func (a *AreaRef) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = AreaRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = AreaRef(n.String())
	return nil
}

// ID returns the area id when the reference is a positive integer.
func (a AreaRef) ID() (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(a)), 10, 64)
	return n, err == nil && n > 0
}

// ReservationInput is the reservation form. ID is set when editing.
type ReservationInput struct {
	ID              int64          `json:"-"`
	EstablishmentID int64          `json:"-"`
	Client          model.Client   `json:"client"`
	Date            string         `json:"date"`
	Time            string         `json:"time"`
	PartySize       int            `json:"party_size"`
	AreaID          AreaRef        `json:"area_id"`
	SubArea         string         `json:"subarea,omitempty"`
	TableNumbers    []string       `json:"table_numbers,omitempty"`
	TableNumber     string         `json:"table_number,omitempty"` // comma-joined alternative
	Status          model.Status   `json:"status,omitempty"`
	Origin          string         `json:"origin,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	BlocksArea      bool           `json:"blocks_area,omitempty"`
	EventTag        model.EventTag `json:"event_tag,omitempty"`
	EventID         *int64         `json:"event_id,omitempty"`
	NotifyEmail     bool           `json:"notify_email,omitempty"`
	NotifyWhatsApp  bool           `json:"notify_whatsapp,omitempty"`
	IdempotencyKey  string         `json:"-"`
}

func (in ReservationInput) tables() []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range append(append([]string(nil), in.TableNumbers...), model.SplitTables(in.TableNumber)...) {
		n = strings.TrimSpace(n)
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// WaitlistInput is the waitlist form. A submission naming a table and a time
// becomes a confirmed reservation when that table is free.
type WaitlistInput struct {
	EstablishmentID int64        `json:"-"`
	Client          model.Client `json:"client"`
	Date            string       `json:"date"`
	Time            string       `json:"time,omitempty"`
	PartySize       int          `json:"party_size"`
	AreaID          AreaRef      `json:"area_id,omitempty"`
	SubArea         string       `json:"subarea,omitempty"`
	TableNumber     string       `json:"table_number,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	IdempotencyKey  string       `json:"-"`
}

// Action is an operator status change.
type Action string

const (
	ActionCheckIn  Action = "check-in"
	ActionCheckOut Action = "check-out"
	ActionCancel   Action = "cancel"
)

func (a Action) target() (model.Status, bool) {
	switch a {
	case ActionCheckIn:
		return model.StatusCheckedIn, true
	case ActionCheckOut:
		return model.StatusCompleted, true
	case ActionCancel:
		return model.StatusCancelled, true
	}
	return "", false
}

// frees reports whether the action releases the reservation's tables.
func (a Action) frees() bool { return a == ActionCheckOut || a == ActionCancel }
