package domain

import "time"

// LedgerOutcome records how a generation attempt ended.
type LedgerOutcome string

const (
	LedgerOutcomeSucceeded LedgerOutcome = "succeeded"
	LedgerOutcomeFailed    LedgerOutcome = "failed"
)

// LedgerEntry is the append-only audit record for one generation attempt.
// Exactly one entry exists per request that reached a terminal outcome.
// Params are summarized, never stored raw.
type LedgerEntry struct {
	ID             string
	RequestID      string
	UserID         string
	Kind           JobKind
	ParamsSummary  string
	CreditsCharged int
	Outcome        LedgerOutcome
	ArtifactURL    string
	FailureReason  string
	SubmittedAt    time.Time
	CompletedAt    time.Time
}
