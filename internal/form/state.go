// Package form runs reservation and waitlist submissions through local
// validation, availability and capacity checks before writing them to the
// backend.
package form

import "fmt"

// State is a step of one submission.
type State string

const (
	StateEditing         State = "editing"
	StateValidating      State = "validating"
	StateRejectedLocally State = "rejected_locally"
	StateSubmitting      State = "submitting"
	StateSuccess         State = "success"
	StateServerError     State = "submitted_with_server_error"
)

var transitions = map[State][]State{
	StateEditing:         {StateValidating},
	StateValidating:      {StateSubmitting, StateRejectedLocally},
	StateRejectedLocally: {StateEditing},
	StateSubmitting:      {StateSuccess, StateServerError},
	StateServerError:     {StateEditing},
}

// Terminal reports whether s ends a submission attempt.
func (s State) Terminal() bool {
	return s == StateRejectedLocally || s == StateSuccess || s == StateServerError
}

// Submission tracks one attempt. Key is the idempotency key sent with the
// write, so a retried attempt cannot create a second record.
type Submission struct {
	Key     string  `json:"key"`
	State   State   `json:"state"`
	History []State `json:"history"`
}

func newSubmission(key string) *Submission {
	return &Submission{Key: key, State: StateEditing, History: []State{StateEditing}}
}

func (s *Submission) advance(next State) error {
	for _, allowed := range transitions[s.State] {
		if allowed == next {
			s.State = next
			s.History = append(s.History, next)
			return nil
		}
	}
	return fmt.Errorf("submission %s: invalid transition %s -> %s", s.Key, s.State, next)
}

// step advances along a path the controller itself fixes, so an invalid
// step is a programming error.
func (s *Submission) step(next State) {
	if err := s.advance(next); err != nil {
		panic(err)
	}
}
