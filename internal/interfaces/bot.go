package interfaces

import (
	"context"

	"github.com/tario-you/pollevbot/internal/models"
)

// PollWatcher issues one long-poll request per call and classifies
// the outcome. Every completed request, success or timeout, is one
// iteration; the server enforces the wait, so callers never sleep on
// an idle result.
type PollWatcher interface {
	WatchOnce(ctx context.Context) models.PollState
}

// PollSubmitter selects one option from an open poll and submits it.
// Returns the chosen option ID on acceptance.
type PollSubmitter interface {
	Submit(ctx context.Context, pollID string, options []models.PollOption) (string, error)
}
