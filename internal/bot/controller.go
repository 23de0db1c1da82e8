// Package bot drives the watch/respond loop for one poll host.
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/tario-you/pollevbot/internal/interfaces"
	"github.com/tario-you/pollevbot/internal/models"
	"github.com/tario-you/pollevbot/internal/pollev"
)

// State labels the controller's lifecycle phase. It exists for
// logging and tests; the loop itself branches on poll states.
type State string

const (
	StateStarting         State = "starting"
	StateAuthenticated    State = "authenticated"
	StateWatching         State = "watching"
	StateResponding       State = "responding"
	StateReauthenticating State = "reauthenticating"
	StateTerminated       State = "terminated"
)

// AuthService acquires and invalidates sessions. Satisfied by
// pollev.Authenticator.
type AuthService interface {
	Acquire(ctx context.Context, host string, cred *models.SessionCredential) (*pollev.SessionHandle, error)
	Invalidate(ctx context.Context, host string) error
}

// Deps carries everything the controller needs. The watcher and
// submitter constructors take the freshly acquired session handle, so
// a re-authentication swaps both out together with the session.
type Deps struct {
	Host       string
	Credential models.SessionCredential

	Auth         AuthService
	NewWatcher   func(*pollev.SessionHandle) interfaces.PollWatcher
	NewSubmitter func(*pollev.SessionHandle) interfaces.PollSubmitter

	Logger arbor.ILogger

	// OpenWait delays the answer after a poll opens, so responses do
	// not land suspiciously fast.
	OpenWait time.Duration
	// Lifetime stops the bot cleanly after this long. Zero runs until
	// the context is cancelled.
	Lifetime time.Duration
}

// Controller owns the session lifecycle and the watch/respond loop.
// Each poll is answered at most once per process, counted from the
// moment a submission is attempted.
type Controller struct {
	deps      Deps
	backoff   *backoff
	attempted map[string]bool
	state     State

	// sleep is swappable so tests can record delays instead of
	// waiting them out.
	sleep func(ctx context.Context, delay time.Duration) bool

	// watchOK records whether the current session has completed at
	// least one accepted watch since it was acquired. A session that
	// expires before any accepted watch was already dead on arrival.
	watchOK  bool
	reauthed bool
}

// NewController creates a Controller. It does not authenticate yet.
func NewController(deps Deps) *Controller {
	return &Controller{
		deps:      deps,
		backoff:   newBackoff(defaultBackoffInitial, defaultBackoffMax),
		attempted: make(map[string]bool),
		state:     StateStarting,
		sleep:     sleepContext,
	}
}

// CurrentState returns the controller's lifecycle phase.
func (c *Controller) CurrentState() State {
	return c.state
}

// Run authenticates and then watches until the context is cancelled
// or the lifetime elapses, both of which end the run cleanly with a
// nil error. Only an unrecoverable authentication failure produces a
// non-nil error.
func (c *Controller) Run(ctx context.Context) error {
	if c.deps.Lifetime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.deps.Lifetime)
		defer cancel()
	}

	c.transition(StateStarting)

	session, err := c.acquire(ctx)
	if err != nil {
		c.transition(StateTerminated)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	watcher := c.deps.NewWatcher(session)
	submitter := c.deps.NewSubmitter(session)

	for {
		if ctx.Err() != nil {
			c.transition(StateTerminated)
			return nil
		}

		c.transition(StateWatching)
		state := watcher.WatchOnce(ctx)

		if ctx.Err() != nil {
			c.transition(StateTerminated)
			return nil
		}

		switch state.Kind {
		case models.StateIdle:
			c.backoff.Reset()
			c.watchOK = true

		case models.StateClosed:
			c.backoff.Reset()
			c.watchOK = true

		case models.StateOpen:
			c.backoff.Reset()
			c.watchOK = true
			if err := c.respond(ctx, submitter, state); err != nil {
				if errors.Is(err, models.ErrSessionExpired) {
					session.MarkExpired()
					continue
				}
				c.transition(StateTerminated)
				return err
			}

		case models.StateTransient:
			if !c.sleep(ctx, c.backoff.Next()) {
				c.transition(StateTerminated)
				return nil
			}

		case models.StateExpired:
			if c.reauthed && !c.watchOK {
				// The re-acquired session was rejected before a
				// single accepted watch. Stored cookies or a
				// captured token cannot be refreshed automatically.
				if c.deps.Credential.Kind != models.CredentialLogin {
					if evictErr := c.deps.Auth.Invalidate(ctx, c.deps.Host); evictErr != nil {
						c.deps.Logger.Warn().Err(evictErr).Msg("Failed to evict rejected credential")
					}
					c.transition(StateTerminated)
					return &models.AuthError{Reason: "re-authenticated session was rejected again; supply fresh cookies or a fresh token"}
				}
				// A login handshake can be repeated, but not hot.
				if !c.sleep(ctx, c.backoff.Next()) {
					c.transition(StateTerminated)
					return nil
				}
			}
			session, err = c.reauthenticate(ctx)
			if err != nil {
				c.transition(StateTerminated)
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			watcher = c.deps.NewWatcher(session)
			submitter = c.deps.NewSubmitter(session)
			c.reauthed = true
			c.watchOK = false
		}
	}
}

// acquire authenticates with backoff on transient failures.
// Authentication rejections fail immediately.
func (c *Controller) acquire(ctx context.Context) (*pollev.SessionHandle, error) {
	retry := newBackoff(defaultBackoffInitial, defaultBackoffMax)

	for {
		session, err := c.deps.Auth.Acquire(ctx, c.deps.Host, &c.deps.Credential)
		if err == nil {
			c.transition(StateAuthenticated)
			c.deps.Logger.Info().Str("host", c.deps.Host).Msg("Authenticated")
			return session, nil
		}

		var authErr *models.AuthError
		if errors.As(err, &authErr) {
			return nil, authErr
		}
		if ctx.Err() != nil {
			return nil, err
		}

		delay := retry.Next()
		c.deps.Logger.Warn().Err(err).
			Str("retry_in", delay.String()).
			Msg("Authentication attempt failed, retrying")
		if !c.sleep(ctx, delay) {
			return nil, err
		}
	}
}

// respond answers an open poll once. The poll is marked attempted
// before the request goes out, so a failed submission is never
// retried. Rejections and option-less polls are logged and absorbed;
// only an expired session propagates.
func (c *Controller) respond(ctx context.Context, submitter interfaces.PollSubmitter, state models.PollState) error {
	if c.attempted[state.PollID] {
		return nil
	}
	c.attempted[state.PollID] = true

	c.transition(StateResponding)

	if c.deps.OpenWait > 0 {
		if !c.sleep(ctx, c.deps.OpenWait) {
			return nil
		}
	}

	optionID, err := submitter.Submit(ctx, state.PollID, state.Options)
	if err != nil {
		if errors.Is(err, models.ErrSessionExpired) {
			return err
		}

		var invalidErr *models.InvalidPollError
		if errors.As(err, &invalidErr) {
			c.deps.Logger.Warn().Str("poll_uid", state.PollID).Msg("Poll has no selectable options, skipping")
			return nil
		}

		c.deps.Logger.Warn().Err(err).Str("poll_uid", state.PollID).Msg("Submission rejected")
		return nil
	}

	c.deps.Logger.Info().
		Str("poll_uid", state.PollID).
		Str("option_id", optionID).
		Msg("Response submitted")
	return nil
}

// reauthenticate replaces an expired session. The stored credential
// is evicted first: the provider just rejected it, so a cached
// firehose token or cookie set must not be resurrected. A fresh
// authentication failure is fatal.
func (c *Controller) reauthenticate(ctx context.Context) (*pollev.SessionHandle, error) {
	c.transition(StateReauthenticating)
	c.deps.Logger.Warn().Str("host", c.deps.Host).Msg("Session expired, re-authenticating")

	if err := c.deps.Auth.Invalidate(ctx, c.deps.Host); err != nil {
		c.deps.Logger.Warn().Err(err).Msg("Failed to evict rejected credential")
	}

	return c.acquire(ctx)
}

// sleepContext waits for the delay or the context, whichever ends
// first, and reports whether the delay completed.
func sleepContext(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Controller) transition(next State) {
	if c.state == next {
		return
	}
	c.deps.Logger.Debug().
		Str("from", string(c.state)).
		Str("to", string(next)).
		Msg("Controller state change")
	c.state = next
}
