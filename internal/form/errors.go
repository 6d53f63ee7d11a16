package form

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/iliyamo/restaurant-reservation/internal/capacity"
)

// Conflict reasons besides the capacity gate's.
const (
	ReasonTableOccupied  = "table_occupied"
	ReasonServerRejected = "server_rejected"
)

// ErrInvalidTransition is returned for a status change the reservation's
// current status does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidationError lists the offending fields of a submission. Nothing was
// sent to the backend.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictError means the slot cannot be booked as submitted. The operator
// is offered the waitlist instead when RedirectToWaitlist is set.
type ConflictError struct {
	Reason             string
	Tables             []string
	Decision           *capacity.Decision
	RedirectToWaitlist bool
	Err                error
}

func (e *ConflictError) Error() string {
	switch e.Reason {
	case ReasonTableOccupied:
		return fmt.Sprintf("table %s is occupied at this time", strings.Join(e.Tables, ","))
	case capacity.ReasonCapacityExceeded:
		if e.Decision != nil {
			return fmt.Sprintf("capacity exceeded: %d of %d seats taken", e.Decision.ReservedTotal, e.Decision.TotalCapacity)
		}
		return "capacity exceeded"
	case capacity.ReasonWaitlistConflict:
		return "a waitlist entry is already waiting for this slot"
	case ReasonServerRejected:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "the reservation was rejected because the table is no longer free"
	}
	return "conflict: " + e.Reason
}

func (e *ConflictError) Unwrap() error { return e.Err }
