package model

import "strings"

// Status is the lifecycle state of a reservation. EarlyWaitlist replaces the
// free-text marker some venues used to write into notes for bookings taken
// during the early-waitlist (bistro overflow) window.
type Status string

const (
	StatusNew           Status = "new"
	StatusPending       Status = "pending"
	StatusConfirmed     Status = "confirmed"
	StatusCheckedIn     Status = "checked-in"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
	StatusEarlyWaitlist Status = "early-wait"
)

// EarlyWaitlistMarker is the legacy notes marker that encoded StatusEarlyWaitlist.
const EarlyWaitlistMarker = "ESPERA ANTECIPADA"

// Active reports whether the reservation still occupies its table.
func (s Status) Active() bool {
	return s != StatusCancelled && s != StatusCompleted
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusPending, StatusConfirmed, StatusCheckedIn,
		StatusCompleted, StatusCancelled, StatusEarlyWaitlist:
		return true
	}
	return false
}

// CountsTowardCapacity reports whether the party size of a reservation in
// this state is summed against the establishment capacity.
func (s Status) CountsTowardCapacity() bool {
	return s == StatusConfirmed || s == StatusCheckedIn
}

// ParseStatus maps the wire value (and, for legacy rows, the notes marker)
// onto a Status. Aliases seen on the collaborator API are folded in here so
// that nothing past ingestion string-matches notes.
func ParseStatus(raw, notes string) Status {
	if strings.Contains(strings.ToUpper(notes), EarlyWaitlistMarker) {
		return StatusEarlyWaitlist
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "new", "":
		return StatusNew
	case "pending":
		return StatusPending
	case "confirmed":
		return StatusConfirmed
	case "checked-in", "checked_in", "checkedin", "seated":
		return StatusCheckedIn
	case "completed", "finalized", "checked-out", "checked_out":
		return StatusCompleted
	case "cancelled", "canceled":
		return StatusCancelled
	case "early-wait", "early_wait", "bistro":
		return StatusEarlyWaitlist
	}
	return Status(strings.ToLower(raw))
}

// WaitlistStatus is the state of a waitlist entry.
type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "waiting"
	WaitlistCalled    WaitlistStatus = "called"
	WaitlistServed    WaitlistStatus = "served"
	WaitlistCancelled WaitlistStatus = "cancelled"
)

// CanTransition reports whether an entry may move from s to next. Only a
// waiting entry can change state, and it can never go back to waiting.
func (s WaitlistStatus) CanTransition(next WaitlistStatus) bool {
	if s != WaitlistWaiting && s != WaitlistCalled {
		return false
	}
	switch next {
	case WaitlistCalled:
		return s == WaitlistWaiting
	case WaitlistServed, WaitlistCancelled:
		return true
	}
	return false
}
