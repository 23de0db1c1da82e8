package models

import (
	"errors"
	"fmt"
)

// Error taxonomy for the bot. Only AuthError is allowed to terminate
// the process; every other kind is absorbed by the controller and
// either retried or recorded.

// StorageError indicates the credential store was unreadable or
// corrupt. Callers treat it as a cache miss and fall through to a
// fresh login instead of aborting.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("credential store %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// AuthError indicates bad credentials, an MFA challenge the bot
// cannot satisfy, or a failed re-authentication. Fatal.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransientError covers network errors, malformed payloads and
// unexpected statuses during a watch iteration. Retried with backoff.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient watch error: %v", e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// SubmitError indicates the provider rejected a poll response.
// Non-fatal; the poll is still marked attempted.
type SubmitError struct {
	PollID     string
	StatusCode int
	Cause      error
}

func (e *SubmitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("submission for poll %s failed: %v", e.PollID, e.Cause)
	}
	return fmt.Sprintf("submission for poll %s rejected with status %d", e.PollID, e.StatusCode)
}

func (e *SubmitError) Unwrap() error { return e.Cause }

// InvalidPollError indicates a poll reported zero selectable options.
// Logged and skipped.
type InvalidPollError struct {
	PollID string
}

func (e *InvalidPollError) Error() string {
	return fmt.Sprintf("poll %s has no selectable options", e.PollID)
}

// ErrSessionExpired is returned when a request is attempted on a
// session handle that has already been marked expired.
var ErrSessionExpired = errors.New("session handle is expired")
