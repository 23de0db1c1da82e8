// Package responder picks and submits answers for open polls.
package responder

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/tario-you/pollevbot/internal/common"
	"github.com/tario-you/pollevbot/internal/models"
	"github.com/tario-you/pollevbot/internal/pollev"
)

// Submitter answers open polls with a uniformly random option from
// the configured index window.
type Submitter struct {
	session   *pollev.SessionHandle
	rng       *rand.Rand
	minOption int
	maxOption int
	logger    arbor.ILogger
}

// New creates a Submitter over an authenticated session handle.
func New(session *pollev.SessionHandle, cfg common.RespondConfig, logger arbor.ILogger) *Submitter {
	return NewWithRand(session, cfg, logger, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand creates a Submitter with a caller-supplied random
// source, so selection can be made deterministic in tests.
func NewWithRand(session *pollev.SessionHandle, cfg common.RespondConfig, logger arbor.ILogger, rng *rand.Rand) *Submitter {
	return &Submitter{
		session:   session,
		rng:       rng,
		minOption: cfg.MinOption,
		maxOption: cfg.MaxOption,
		logger:    logger,
	}
}

// Submit picks one option at random within the configured window and
// posts it. It returns the chosen option ID. A poll whose window
// holds no options yields an InvalidPollError without any request.
func (s *Submitter) Submit(ctx context.Context, pollID string, options []models.PollOption) (string, error) {
	window := s.window(options)
	if len(window) == 0 {
		return "", &models.InvalidPollError{PollID: pollID}
	}

	choice := window[s.rng.Intn(len(window))]

	s.logger.Info().
		Str("poll_uid", pollID).
		Str("option_id", choice.ID).
		Str("option", choice.Value).
		Msg("Submitting response")

	if err := s.session.Respond(ctx, pollID, choice.ID); err != nil {
		if errors.Is(err, models.ErrSessionExpired) {
			return "", err
		}
		var apiErr *pollev.APIError
		if errors.As(err, &apiErr) {
			return "", &models.SubmitError{PollID: pollID, StatusCode: apiErr.StatusCode, Cause: err}
		}
		return "", &models.SubmitError{PollID: pollID, Cause: err}
	}

	return choice.ID, nil
}

// window clamps the configured option index bounds onto the actual
// option list. A zero max bound means "through the end".
func (s *Submitter) window(options []models.PollOption) []models.PollOption {
	lo := s.minOption
	if lo < 0 {
		lo = 0
	}
	hi := s.maxOption
	if hi <= 0 || hi > len(options) {
		hi = len(options)
	}
	if lo >= hi {
		return nil
	}
	return options[lo:hi]
}
