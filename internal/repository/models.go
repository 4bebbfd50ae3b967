package repository

import "time"

// FinishedSession is one closed dispatch_sessions row.
type FinishedSession struct {
	OrderID        string    `json:"order_id"`
	Status         string    `json:"status"`
	AcceptedBy     string    `json:"accepted_by,omitempty"`
	CandidateCount int       `json:"candidate_count"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}
