package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCookiePairs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{
			name: "single pair",
			raw:  "pe_auth_token=abc123",
			want: map[string]string{"pe_auth_token": "abc123"},
		},
		{
			name: "multiple pairs with spaces",
			raw:  "pe_auth_token=abc123; pollev_visitor=v-1 ;pollev_visit=v-2",
			want: map[string]string{
				"pe_auth_token":  "abc123",
				"pollev_visitor": "v-1",
				"pollev_visit":   "v-2",
			},
		},
		{
			name: "value containing equals",
			raw:  "session=a=b=c",
			want: map[string]string{"session": "a=b=c"},
		},
		{
			name: "segments without equals are dropped",
			raw:  "garbage; pe_auth_token=abc123;;",
			want: map[string]string{"pe_auth_token": "abc123"},
		},
		{
			name: "empty input",
			raw:  "",
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCookiePairs(tt.raw))
		})
	}
}

func TestSessionCredential_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cred    SessionCredential
		wantErr bool
	}{
		{
			name: "valid cookies",
			cred: SessionCredential{Kind: CredentialCookies, Cookies: map[string]string{"a": "b"}},
		},
		{
			name:    "empty cookies",
			cred:    SessionCredential{Kind: CredentialCookies},
			wantErr: true,
		},
		{
			name: "valid native login",
			cred: SessionCredential{Kind: CredentialLogin, Username: "u", Password: "p", LoginType: LoginTypeNative},
		},
		{
			name: "valid sso login",
			cred: SessionCredential{Kind: CredentialLogin, Username: "u", Password: "p", LoginType: LoginTypeSSO},
		},
		{
			name:    "login without password",
			cred:    SessionCredential{Kind: CredentialLogin, Username: "u", LoginType: LoginTypeNative},
			wantErr: true,
		},
		{
			name:    "login with unknown type",
			cred:    SessionCredential{Kind: CredentialLogin, Username: "u", Password: "p", LoginType: "oauth"},
			wantErr: true,
		},
		{
			name: "valid token",
			cred: SessionCredential{Kind: CredentialToken, Token: "t"},
		},
		{
			name:    "empty token",
			cred:    SessionCredential{Kind: CredentialToken},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			cred:    SessionCredential{Kind: "something"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cred.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
