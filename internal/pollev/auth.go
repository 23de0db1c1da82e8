package pollev

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/tario-you/pollevbot/internal/interfaces"
	"github.com/tario-you/pollevbot/internal/models"
)

// Authenticator turns a session credential into an authenticated
// SessionHandle, persisting reusable cookies and firehose tokens
// through the credential store.
type Authenticator struct {
	store      interfaces.CredentialStore
	logger     arbor.ILogger
	clientOpts []ClientOption
}

// NewAuthenticator creates an Authenticator. The client options are
// applied to every client it builds, which lets tests redirect the
// endpoints at a local server.
func NewAuthenticator(store interfaces.CredentialStore, logger arbor.ILogger, opts ...ClientOption) *Authenticator {
	return &Authenticator{
		store:      store,
		logger:     logger,
		clientOpts: opts,
	}
}

// Acquire authenticates against the provider and returns a live
// session handle for the host. The credential decides the path taken:
// raw cookies are injected directly, a token skips authentication
// entirely, and username/password runs the native or institutional
// login flow.
func (a *Authenticator) Acquire(ctx context.Context, host string, cred *models.SessionCredential) (*SessionHandle, error) {
	if err := cred.Validate(); err != nil {
		return nil, &models.AuthError{Reason: "invalid credential", Err: err}
	}

	// Bound the whole attempt, including the SSO redirect chain.
	ctx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	client, err := NewClient(a.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	if err := client.SeedVisitorCookies(); err != nil {
		return nil, fmt.Errorf("failed to seed visitor cookies: %w", err)
	}

	switch cred.Kind {
	case models.CredentialCookies:
		if err := client.SetSessionCookies(cred.Cookies); err != nil {
			return nil, &models.AuthError{Reason: "failed to install session cookies", Err: err}
		}
	case models.CredentialLogin:
		if err := a.login(ctx, client, cred); err != nil {
			return nil, err
		}
	case models.CredentialToken:
		// A bare firehose token needs no session at all.
	default:
		return nil, &models.AuthError{Reason: fmt.Sprintf("unsupported credential kind %q", cred.Kind)}
	}

	client.WarmUp(ctx, host)

	token, err := a.resolveFirehoseToken(ctx, client, host, cred)
	if err != nil {
		return nil, err
	}

	a.persist(ctx, client, host, token)

	a.logger.Info().
		Str("host", host).
		Str("credential", string(cred.Kind)).
		Bool("has_firehose_token", token != "").
		Msg("Session acquired")

	return NewSessionHandle(client, host, token), nil
}

// Invalidate drops any persisted credential for the host, forcing the
// next acquisition to authenticate from scratch.
func (a *Authenticator) Invalidate(ctx context.Context, host string) error {
	return a.store.Evict(ctx, host)
}

// login dispatches to the native or institutional flow.
func (a *Authenticator) login(ctx context.Context, client *Client, cred *models.SessionCredential) error {
	switch cred.LoginType {
	case models.LoginTypeSSO:
		return a.loginSSO(ctx, client, cred.Username, cred.Password)
	default:
		return a.loginNative(ctx, client, cred.Username, cred.Password)
	}
}

// loginNative authenticates with a provider-hosted account. The
// sessions endpoint answers a successful login with an empty body;
// anything else is a rejection message.
func (a *Authenticator) loginNative(ctx context.Context, client *Client, username, password string) error {
	csrf, err := client.CSRFToken(ctx)
	if err != nil {
		return &models.AuthError{Reason: "failed to fetch CSRF token for login", Err: err}
	}

	form := url.Values{}
	form.Set("login", username)
	form.Set("password", password)

	result, err := client.postForm(ctx, client.endpoints.Login(), form, map[string]string{
		"x-csrf-token": csrf,
	})
	if err != nil {
		return &models.AuthError{Reason: "login request failed", Err: err}
	}

	if result.StatusCode >= 400 || strings.TrimSpace(result.Body) != "" {
		a.logger.Warn().
			Int("status", result.StatusCode).
			Str("username", username).
			Msg("Native login rejected")
		return &models.AuthError{Reason: "login failed, please check your username and password"}
	}

	return nil
}

// loginSSO runs the institutional SAML handshake: fetch the identity
// provider's login form, post the credentials, relay the SAMLResponse
// assertion back to the provider and exchange the resulting auth
// token for a participant session.
func (a *Authenticator) loginSSO(ctx context.Context, client *Client, username, password string) error {
	entryBody, entryURL, err := a.getPage(ctx, client, client.endpoints.SSOEntry())
	if err != nil {
		return &models.AuthError{Reason: "failed to reach the identity provider", Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(entryBody))
	if err != nil {
		return &models.AuthError{Reason: "failed to parse the identity provider login page", Err: err}
	}

	action, ok := doc.Find("form").First().Attr("action")
	if !ok {
		return &models.AuthError{Reason: "identity provider login page has no login form"}
	}
	actionURL, err := entryURL.Parse(action)
	if err != nil {
		return &models.AuthError{Reason: "identity provider returned an invalid form action", Err: err}
	}

	form := url.Values{}
	form.Set("j_username", username)
	form.Set("j_password", password)
	form.Set("_eventId_proceed", "")

	assertion, err := client.postForm(ctx, actionURL.String(), form, nil)
	if err != nil {
		return &models.AuthError{Reason: "identity provider login request failed", Err: err}
	}

	samlResponse, relayState, err := extractSAMLResponse(assertion.Body)
	if err != nil {
		return err
	}

	callback := url.Values{}
	callback.Set("SAMLResponse", samlResponse)
	if relayState != "" {
		callback.Set("RelayState", relayState)
	}

	result, err := client.postForm(ctx, client.endpoints.SSOCallback(), callback, nil)
	if err != nil {
		return &models.AuthError{Reason: "SSO callback request failed", Err: err}
	}

	authToken := result.FinalURL.Query().Get("pe_auth_token")
	if authToken == "" {
		return &models.AuthError{Reason: "SSO callback did not produce an auth token"}
	}

	return a.exchangeAuthToken(ctx, client, authToken)
}

// extractSAMLResponse pulls the SAML assertion out of the identity
// provider's response page. An assertion-less page means the identity
// provider did not finish the handshake, either because it rejected
// the credentials or because it is waiting on a second factor.
func extractSAMLResponse(body string) (samlResponse, relayState string, err error) {
	doc, parseErr := goquery.NewDocumentFromReader(strings.NewReader(body))
	if parseErr != nil {
		return "", "", &models.AuthError{Reason: "failed to parse the identity provider response", Err: parseErr}
	}

	samlResponse, ok := doc.Find(`input[name="SAMLResponse"]`).First().Attr("value")
	if !ok || samlResponse == "" {
		lower := strings.ToLower(body)
		if strings.Contains(lower, "duo") || strings.Contains(lower, "two-factor") || strings.Contains(lower, "2fa") {
			return "", "", &models.AuthError{Reason: "identity provider requires multi-factor approval, which is not supported"}
		}
		return "", "", &models.AuthError{Reason: "login failed, please check your username and password"}
	}

	relayState, _ = doc.Find(`input[name="RelayState"]`).First().Attr("value")
	return samlResponse, relayState, nil
}

// exchangeAuthToken trades the SSO auth token for session cookies on
// the participant domain.
func (a *Authenticator) exchangeAuthToken(ctx context.Context, client *Client, authToken string) error {
	csrf, err := client.CSRFToken(ctx)
	if err != nil {
		return &models.AuthError{Reason: "failed to fetch CSRF token for the token exchange", Err: err}
	}

	form := url.Values{}
	form.Set("token", authToken)

	result, err := client.postForm(ctx, client.endpoints.ParticipantAuthToken(), form, map[string]string{
		"x-csrf-token": csrf,
	})
	if err != nil {
		return &models.AuthError{Reason: "auth token exchange failed", Err: err}
	}
	if result.StatusCode >= 400 {
		return &models.AuthError{Reason: fmt.Sprintf("auth token exchange rejected with status %d", result.StatusCode)}
	}

	return nil
}

// resolveFirehoseToken finds the activity feed token for a host: an
// explicitly supplied token wins, then a previously stored one, then
// a fresh request to the registration endpoint.
func (a *Authenticator) resolveFirehoseToken(ctx context.Context, client *Client, host string, cred *models.SessionCredential) (string, error) {
	if cred.Token != "" {
		return cred.Token, nil
	}

	if stored, err := a.store.Load(ctx, host); err == nil && stored.Token != "" {
		a.logger.Debug().Str("host", host).Msg("Reusing stored firehose token")
		return stored.Token, nil
	}

	token, err := client.RegistrationInfo(ctx, host)
	if err != nil {
		var authErr *models.AuthError
		if errors.As(err, &authErr) {
			return "", authErr
		}
		return "", &models.TransientError{Cause: err}
	}
	return token, nil
}

// persist stores the session cookies and firehose token for the next
// run. Storage failures degrade the next startup but not this one.
func (a *Authenticator) persist(ctx context.Context, client *Client, host, token string) {
	err := a.store.Save(ctx, &models.StoredCredential{
		Host:    host,
		Cookies: client.SessionCookies(),
		Token:   token,
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("host", host).Msg("Failed to persist session credential")
	}
}

// getPage performs a short-lived GET and returns the body together
// with the URL after redirects.
func (a *Authenticator) getPage(ctx context.Context, client *Client, endpoint string) (string, *url.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.do(ctx, req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read response: %w", err)
	}

	return string(body), resp.Request.URL, nil
}

// acquireTimeout bounds a full authentication attempt.
const acquireTimeout = 60 * time.Second
