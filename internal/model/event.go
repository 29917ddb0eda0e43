package model

import "time"

// Event records one state transition of a report. Events are append-only.
type Event struct {
	ID         int64     `json:"id"`
	Action     string    `json:"action"`
	ReportKind Kind      `json:"report_kind"`
	ReportID   string    `json:"report_id"`
	LinkedID   string    `json:"linked_id,omitempty"`
	ClaimantID string    `json:"claimant_id,omitempty"`
	ActorID    string    `json:"actor_id"`
	At         time.Time `json:"at"`
}

// Event actions.
const (
	ActionClaim   = "claim"
	ActionReopen  = "reopen"
	ActionResolve = "resolve"
	ActionArchive = "archive"
)
