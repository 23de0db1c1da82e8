// Package watcher classifies firehose activity into poll states.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/tario-you/pollevbot/internal/common"
	"github.com/tario-you/pollevbot/internal/models"
	"github.com/tario-you/pollevbot/internal/pollev"
)

// Watcher runs long-poll iterations against the activity feed and
// reduces every outcome to a single poll state. It remembers which
// poll is currently open and which polls it has already surfaced, so
// replayed activity never reopens an old poll.
type Watcher struct {
	session    *pollev.SessionHandle
	waitBudget time.Duration
	grace      time.Duration
	logger     arbor.ILogger

	currentOpen string
	seen        map[string]bool
}

// New creates a Watcher over an authenticated session handle.
func New(session *pollev.SessionHandle, cfg common.WatchConfig, logger arbor.ILogger) *Watcher {
	return &Watcher{
		session:    session,
		waitBudget: cfg.WaitBudget,
		grace:      cfg.Grace,
		logger:     logger,
		seen:       make(map[string]bool),
	}
}

// activityMessage is the nested document inside a firehose envelope.
type activityMessage struct {
	UID      string      `json:"uid"`
	Status   string      `json:"status"`
	Sequence json.Number `json:"sequence"`
}

// WatchOnce performs one long-poll iteration. The request deadline is
// the server's wait budget plus a grace margin, so an on-time "no
// update" answer always beats the client timeout.
func (w *Watcher) WatchOnce(ctx context.Context) models.PollState {
	if w.session.Expired() {
		return models.ExpiredState()
	}

	watchCtx, cancel := context.WithTimeout(ctx, w.waitBudget+w.grace)
	defer cancel()

	envelope, err := w.session.Activity(watchCtx)
	if err != nil {
		return w.classifyError(ctx, err)
	}

	if sequence, err := envelope.LastMessageSequence.Int64(); err == nil {
		w.session.UpdateSequence(sequence)
	}

	if envelope.Message == "" {
		return models.IdleState()
	}

	var message activityMessage
	if err := json.Unmarshal([]byte(envelope.Message), &message); err != nil {
		w.logger.Warn().Err(err).Msg("Activity message is not valid JSON")
		return models.TransientState(&models.TransientError{Cause: err})
	}

	if sequence, err := message.Sequence.Int64(); err == nil {
		w.session.UpdateSequence(sequence)
	}

	// Activity without a poll uid (presenter presence, screen changes)
	// carries no state transition.
	if message.UID == "" {
		return models.IdleState()
	}

	if isClosedStatus(message.Status) {
		if message.UID == w.currentOpen {
			w.logger.Info().Str("poll_uid", message.UID).Msg("Poll closed")
			w.currentOpen = ""
			return models.ClosedState(message.UID)
		}
		// A poll first announced as already closed is not worth a
		// doomed submission.
		w.seen[message.UID] = true
		return models.IdleState()
	}

	// Replayed or repeated announcements for a poll already surfaced.
	if w.seen[message.UID] {
		return models.IdleState()
	}

	return w.openPoll(ctx, message.UID)
}

// openPoll fetches the poll body and surfaces it as open.
func (w *Watcher) openPoll(ctx context.Context, uid string) models.PollState {
	poll, err := w.session.PollData(ctx, uid)
	if err != nil {
		return w.classifyError(ctx, err)
	}

	w.seen[uid] = true
	w.currentOpen = uid

	w.logger.Info().
		Str("poll_uid", uid).
		Str("title", poll.Title).
		Int("options", len(poll.Options)).
		Msg("Poll opened")

	return models.OpenState(poll.ID, poll.Options)
}

// classifyError maps a failed iteration onto a poll state. A client
// deadline firing while the parent context is still live just means
// the server's wait elapsed without news.
func (w *Watcher) classifyError(parent context.Context, err error) models.PollState {
	if errors.Is(err, models.ErrSessionExpired) {
		return models.ExpiredState()
	}

	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return models.IdleState()
	}
	if errors.Is(err, context.Canceled) && parent.Err() != nil {
		// Shutdown in progress; the controller observes the context
		// itself and ignores this state.
		return models.IdleState()
	}

	var apiErr *pollev.APIError
	if errors.As(err, &apiErr) && apiErr.IsAuthFailure() {
		w.logger.Warn().Int("status", apiErr.StatusCode).Msg("Session no longer accepted")
		w.session.MarkExpired()
		return models.ExpiredState()
	}

	w.logger.Warn().Err(err).Msg("Watch iteration failed")
	return models.TransientState(&models.TransientError{Cause: err})
}

// isClosedStatus reports whether a poll status means the poll stopped
// accepting responses.
func isClosedStatus(status string) bool {
	switch strings.ToLower(status) {
	case "closed", "locked":
		return true
	}
	return false
}
