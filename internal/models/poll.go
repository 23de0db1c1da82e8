package models

import "time"

// PollOption is one selectable answer of a multiple-choice poll.
type PollOption struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Poll is the participant view of a multiple-choice poll.
type Poll struct {
	ID      string       `json:"permalink"`
	Title   string       `json:"title"`
	Options []PollOption `json:"options"`
}

// PollStateKind tags the PollState variant.
type PollStateKind string

const (
	// StateIdle means the watch completed with no new activity.
	StateIdle PollStateKind = "idle"
	// StateOpen means a new multiple-choice poll is accepting responses.
	StateOpen PollStateKind = "open"
	// StateClosed means the previously open poll stopped accepting responses.
	StateClosed PollStateKind = "closed"
	// StateExpired means the provider no longer accepts the session.
	StateExpired PollStateKind = "expired"
	// StateTransient means the watch failed in a retryable way.
	StateTransient PollStateKind = "transient_error"
)

// PollState is the tagged result of one watch iteration. Exactly one
// value exists at any instant; transitions happen only through the
// watcher's classification step.
type PollState struct {
	Kind     PollStateKind
	PollID   string
	Options  []PollOption
	OpenedAt time.Time
	Cause    error
}

func IdleState() PollState {
	return PollState{Kind: StateIdle}
}

func OpenState(pollID string, options []PollOption) PollState {
	return PollState{Kind: StateOpen, PollID: pollID, Options: options, OpenedAt: time.Now()}
}

func ClosedState(pollID string) PollState {
	return PollState{Kind: StateClosed, PollID: pollID}
}

func ExpiredState() PollState {
	return PollState{Kind: StateExpired}
}

func TransientState(cause error) PollState {
	return PollState{Kind: StateTransient, Cause: cause}
}
