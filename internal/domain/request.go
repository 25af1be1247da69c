package domain

import (
	"encoding/json"
	"time"
)

// JobKind enumerates supported generation job categories. Each kind is bound
// to one provider endpoint and one fixed credit cost.
type JobKind string

const (
	JobKindImage  JobKind = "image"
	JobKindVideo  JobKind = "video"
	JobKindSpeech JobKind = "speech"
)

var creditCosts = map[JobKind]int{
	JobKindImage:  1,
	JobKindVideo:  10,
	JobKindSpeech: 2,
}

// CostFor returns the fixed credit cost for a job kind, or 0 for an unknown kind.
func CostFor(kind JobKind) int {
	return creditCosts[kind]
}

// KnownKind reports whether the kind is one the system can generate.
func KnownKind(kind JobKind) bool {
	_, ok := creditCosts[kind]
	return ok
}

// RequestStatus enumerates the lifecycle of a queued generation request.
type RequestStatus string

const (
	RequestStatusQueued    RequestStatus = "queued"
	RequestStatusRunning   RequestStatus = "running"
	RequestStatusSucceeded RequestStatus = "succeeded"
	RequestStatusFailed    RequestStatus = "failed"
)

// GenerationRequest is the immutable input to the orchestrator: who asks,
// what kind of work, the provider parameter bag, and the credit cost.
type GenerationRequest struct {
	ID        string
	UserID    string
	Kind      JobKind
	Params    json.RawMessage
	Cost      int
	CreatedAt time.Time
}

// RequestRecord is the persisted view of a request as it moves through the
// queue. The embedded GenerationRequest itself never changes.
type RequestRecord struct {
	GenerationRequest
	Status       RequestStatus
	ArtifactURL  string
	ErrorMessage string
	UpdatedAt    time.Time
}
