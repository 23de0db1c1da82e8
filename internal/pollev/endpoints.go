package pollev

import (
	"fmt"
	"net/url"
)

// Endpoints holds the provider URL surface. All bases are overridable
// so tests can point the client at a local server.
type Endpoints struct {
	// PollevBase serves the participant pages and the proxy API.
	PollevBase string
	// WWWBase serves the SSO entry and callback endpoints.
	WWWBase string
	// FirehoseBase serves the long-poll activity feed.
	FirehoseBase string
	// SSOProvider is the institutional SSO slug under WWWBase/auth.
	SSOProvider string
}

// DefaultEndpoints returns the production provider endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		PollevBase:   "https://pollev.com",
		WWWBase:      "https://www.polleverywhere.com",
		FirehoseBase: "https://firehose-production.polleverywhere.com",
		SSOProvider:  "washington",
	}
}

// Home is the participant page for a host, used as Referer during
// session warm-up.
func (e Endpoints) Home(host string) string {
	return fmt.Sprintf("%s/%s", e.PollevBase, url.PathEscape(host))
}

// CSRFToken returns the csrf_token endpoint with a cache-busting
// timestamp.
func (e Endpoints) CSRFToken(timestamp int64) string {
	return fmt.Sprintf("%s/proxy/api/csrf_token?_=%d", e.PollevBase, timestamp)
}

// Login is the native username/password session endpoint.
func (e Endpoints) Login() string {
	return fmt.Sprintf("%s/proxy/api/sessions", e.PollevBase)
}

// SSOEntry starts the institutional SAML handshake.
func (e Endpoints) SSOEntry() string {
	redirect := url.QueryEscape(e.PollevBase + "/")
	return fmt.Sprintf("%s/auth/%s?redirect=%s&token_required=false", e.WWWBase, e.SSOProvider, redirect)
}

// SSOCallback receives the SAMLResponse assertion.
func (e Endpoints) SSOCallback() string {
	return fmt.Sprintf("%s/auth/%s/callback", e.WWWBase, e.SSOProvider)
}

// ParticipantAuthToken exchanges an SSO auth token for a session.
func (e Endpoints) ParticipantAuthToken() string {
	return fmt.Sprintf("%s/proxy/api/participant_auth_token", e.PollevBase)
}

// RegistrationInfo issues the firehose token for a host.
func (e Endpoints) RegistrationInfo(host string, timestamp int64) string {
	return fmt.Sprintf("%s/proxy/api/users/%s/registration_info?_=%d", e.PollevBase, url.PathEscape(host), timestamp)
}

// ParticipantRegistration joins the presenter context for a host.
func (e Endpoints) ParticipantRegistration(host string) string {
	return fmt.Sprintf("%s/proxy/api/users/%s/participant_registration", e.PollevBase, url.PathEscape(host))
}

// Activity is the long-poll activity feed for a host. The token is
// omitted from the query when empty; the sequence lets the server
// replay messages published since the previous iteration.
func (e Endpoints) Activity(host, token string, sequence, timestamp int64) string {
	base := fmt.Sprintf("%s/users/%s/activity/current.json", e.FirehoseBase, url.PathEscape(host))
	query := url.Values{}
	if token != "" {
		query.Set("firehose_token", token)
	}
	query.Set("last_message_sequence", fmt.Sprintf("%d", sequence))
	query.Set("_", fmt.Sprintf("%d", timestamp))
	return base + "?" + query.Encode()
}

// PollData is the participant view of a multiple-choice poll.
func (e Endpoints) PollData(uid string) string {
	return fmt.Sprintf("%s/proxy/api/participant/multiple_choice_polls/%s?include=collection", e.PollevBase, url.PathEscape(uid))
}

// Respond submits a response to a multiple-choice poll.
func (e Endpoints) Respond(uid string) string {
	return fmt.Sprintf("%s/proxy/api/participant/multiple_choice_polls/%s/results", e.PollevBase, url.PathEscape(uid))
}
