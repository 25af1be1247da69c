package domain

import "time"

// Artifact is a materialized generation result: the provider's output copied
// into our own durable storage. Immutable once created.
type Artifact struct {
	ID          string
	RequestID   string
	UserID      string
	Kind        JobKind
	StorageKey  string
	URL         string
	ContentType string
	Bytes       int64
	CreatedAt   time.Time
}
