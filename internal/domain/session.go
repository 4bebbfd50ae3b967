package domain

import "time"

// SessionStatus is the lifecycle state of one offer session. Completed,
// Exhausted and Cancelled are terminal; a terminal session never transitions
// again.
type SessionStatus string

const (
	SessionPending       SessionStatus = "pending"
	SessionOfferInFlight SessionStatus = "offer_in_flight"
	SessionCompleted     SessionStatus = "completed"
	SessionExhausted     SessionStatus = "exhausted"
	SessionCancelled     SessionStatus = "cancelled"
)

// Terminal reports whether s is one of the three final states.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionExhausted || s == SessionCancelled
}

// CandidateOutcome records what happened to a single offer.
type CandidateOutcome string

const (
	OutcomeSent     CandidateOutcome = "sent"
	OutcomeAccepted CandidateOutcome = "accepted"
	OutcomeDeclined CandidateOutcome = "declined"
	OutcomeTimedOut CandidateOutcome = "timed_out"
)

// OfferRecord is one entry of a session's audit trail, in offer order.
type OfferRecord struct {
	FarmerID string           `json:"farmer_id"`
	Rank     int              `json:"rank"`
	Outcome  CandidateOutcome `json:"outcome"`
}

// SessionSnapshot is a read-only copy of session state for status queries and
// the admin listing. Taking a snapshot never blocks the driving loop beyond a
// brief field copy.
type SessionSnapshot struct {
	OrderID        string        `json:"order_id"`
	Status         SessionStatus `json:"status"`
	CurrentIndex   int           `json:"current_index"`
	CandidateCount int           `json:"candidate_count"`
	AcceptedBy     string        `json:"accepted_by,omitempty"`
	Offers         []OfferRecord `json:"offers"`
	StartedAt      time.Time     `json:"started_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	ElapsedSeconds float64       `json:"elapsed_seconds"`
}
