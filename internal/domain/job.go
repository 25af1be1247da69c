package domain

// JobHandle identifies an in-flight job at the inference provider. It is
// created at submission, dereferenced on every poll, and discarded once a
// terminal state is reached.
type JobHandle struct {
	ProviderJobID string
	Kind          JobKind
}

// JobState enumerates the provider-side job lifecycle as seen by the poll
// loop. JobStateTimedOut is assigned by the poll loop itself, never reported
// by a provider.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateThrottled JobState = "throttled"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateTimedOut  JobState = "timed_out"
)

// Terminal reports whether the poll loop stops at this state.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateTimedOut:
		return true
	}
	return false
}

// StatusReport is the normalized answer to one status poll.
type StatusReport struct {
	State      JobState
	ResultURLs []string
	Reason     string
}
