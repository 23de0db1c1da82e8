package models

import (
	"fmt"
	"strings"
	"time"
)

// LoginType selects the provider login handshake.
type LoginType string

const (
	// LoginTypeNative logs in directly against the provider's own
	// session endpoint.
	LoginTypeNative LoginType = "native"
	// LoginTypeSSO logs in through the institutional SAML identity
	// provider.
	LoginTypeSSO LoginType = "sso"
)

// CredentialKind tags the SessionCredential variant.
type CredentialKind string

const (
	CredentialCookies CredentialKind = "cookies"
	CredentialLogin   CredentialKind = "login"
	CredentialToken   CredentialKind = "token"
)

// SessionCredential is the material used to establish a session.
// Exactly one variant is active per run.
type SessionCredential struct {
	Kind      CredentialKind
	Cookies   map[string]string
	Username  string
	Password  string
	LoginType LoginType
	Token     string
}

// Validate checks that the active variant is fully populated.
func (c SessionCredential) Validate() error {
	switch c.Kind {
	case CredentialCookies:
		if len(c.Cookies) == 0 {
			return fmt.Errorf("cookie credential has no cookie pairs")
		}
	case CredentialLogin:
		if c.Username == "" || c.Password == "" {
			return fmt.Errorf("login credential requires username and password")
		}
		if c.LoginType != LoginTypeNative && c.LoginType != LoginTypeSSO {
			return fmt.Errorf("unsupported login type %q", c.LoginType)
		}
	case CredentialToken:
		if c.Token == "" {
			return fmt.Errorf("token credential is empty")
		}
	default:
		return fmt.Errorf("unknown credential kind %q", c.Kind)
	}
	return nil
}

// ParseCookiePairs parses a semicolon-delimited key=value cookie
// string as captured from browser developer tools. Segments without
// an equals sign are ignored.
func ParseCookiePairs(raw string) map[string]string {
	cookies := make(map[string]string)
	for _, segment := range strings.Split(raw, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		key, value, found := strings.Cut(segment, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		cookies[key] = strings.TrimSpace(value)
	}
	return cookies
}

// StoredCredential is the persisted record for one host. Either the
// cookie map, the firehose token or both may be populated.
type StoredCredential struct {
	Host      string            `json:"host" badgerhold:"key"`
	Cookies   map[string]string `json:"cookies,omitempty"`
	Token     string            `json:"token,omitempty"`
	FetchedAt time.Time         `json:"fetched_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
