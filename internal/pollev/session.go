package pollev

import (
	"context"
	"sync"

	"github.com/tario-you/pollevbot/internal/models"
)

// SessionHandle is an authenticated view of the activity feed for one
// host. Once the provider stops accepting the session the handle is
// marked expired and every operation fails until a new handle is
// acquired.
type SessionHandle struct {
	Host string

	client        *Client
	firehoseToken string

	mu           sync.Mutex
	lastSequence int64
	expired      bool
}

// NewSessionHandle wraps an authenticated client for a host.
func NewSessionHandle(client *Client, host, firehoseToken string) *SessionHandle {
	return &SessionHandle{
		Host:          host,
		client:        client,
		firehoseToken: firehoseToken,
	}
}

// FirehoseToken returns the activity feed token, which may be empty
// for hosts without an institutional affiliation.
func (s *SessionHandle) FirehoseToken() string {
	return s.firehoseToken
}

// Client exposes the underlying API client, primarily so the session
// cookies can be persisted after authentication.
func (s *SessionHandle) Client() *Client {
	return s.client
}

// MarkExpired permanently invalidates the handle.
func (s *SessionHandle) MarkExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = true
}

// Expired reports whether the handle has been invalidated.
func (s *SessionHandle) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// LastSequence returns the highest activity sequence seen so far.
func (s *SessionHandle) LastSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSequence
}

// UpdateSequence records an observed sequence number. Sequences only
// move forward; a lower value from a replayed message is ignored.
func (s *SessionHandle) UpdateSequence(sequence int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sequence > s.lastSequence {
		s.lastSequence = sequence
	}
}

// Activity issues one long-poll request through the handle.
func (s *SessionHandle) Activity(ctx context.Context) (*ActivityEnvelope, error) {
	if s.Expired() {
		return nil, models.ErrSessionExpired
	}
	return s.client.Activity(ctx, s.Host, s.firehoseToken, s.LastSequence())
}

// PollData fetches the participant view of a poll through the handle.
func (s *SessionHandle) PollData(ctx context.Context, uid string) (*models.Poll, error) {
	if s.Expired() {
		return nil, models.ErrSessionExpired
	}
	return s.client.PollData(ctx, uid)
}

// Respond submits an option for a poll through the handle.
func (s *SessionHandle) Respond(ctx context.Context, uid, optionID string) error {
	if s.Expired() {
		return models.ErrSessionExpired
	}
	return s.client.Respond(ctx, uid, optionID)
}
