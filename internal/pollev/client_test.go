package pollev

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tario-you/pollevbot/internal/models"
)

// testEndpoints points every base at the same local server.
func testEndpoints(serverURL string) Endpoints {
	return Endpoints{
		PollevBase:   serverURL,
		WWWBase:      serverURL,
		FirehoseBase: serverURL,
		SSOProvider:  "washington",
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(WithEndpoints(testEndpoints(server.URL)))
	require.NoError(t, err)

	return client, server
}

func TestClient_CSRFToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/proxy/api/csrf_token", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("_"))
		fmt.Fprint(w, `{"token":"csrf-abc"}`)
	}))

	token, err := client.CSRFToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "csrf-abc", token)
}

func TestClient_CSRFTokenEmpty(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token":""}`)
	}))

	_, err := client.CSRFToken(context.Background())
	assert.Error(t, err)
}

func TestClient_RegistrationInfo(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/proxy/api/users/prof101/registration_info", r.URL.Path)
		fmt.Fprint(w, `{"firehose_token":"fh-token"}`)
	}))

	token, err := client.RegistrationInfo(context.Background(), "prof101")
	require.NoError(t, err)
	assert.Equal(t, "fh-token", token)
}

func TestClient_RegistrationInfoUnknownHost(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"Presenter not found"}`)
	}))

	_, err := client.RegistrationInfo(context.Background(), "nobody")
	var authErr *models.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, "nobody")
}

func TestClient_RegistrationInfoNullToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"firehose_token":null}`)
	}))

	token, err := client.RegistrationInfo(context.Background(), "prof101")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestClient_Activity(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/prof101/activity/current.json", r.URL.Path)
		assert.Equal(t, "fh-token", r.URL.Query().Get("firehose_token"))
		assert.Equal(t, "7", r.URL.Query().Get("last_message_sequence"))
		fmt.Fprint(w, `{"message":"{\"uid\":\"poll-1\"}","last_message_sequence":8}`)
	}))

	envelope, err := client.Activity(context.Background(), "prof101", "fh-token", 7)
	require.NoError(t, err)
	assert.Equal(t, `{"uid":"poll-1"}`, envelope.Message)

	sequence, err := envelope.LastMessageSequence.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(8), sequence)
}

func TestClient_ActivityOmitsEmptyToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["firehose_token"]
		assert.False(t, present)
		fmt.Fprint(w, `{"message":"","last_message_sequence":0}`)
	}))

	_, err := client.Activity(context.Background(), "prof101", "", 0)
	require.NoError(t, err)
}

func TestClient_ActivityAuthFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.Activity(context.Background(), "prof101", "tok", 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsAuthFailure())
}

func TestClient_PollData(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/proxy/api/participant/multiple_choice_polls/poll-1", r.URL.Path)
		fmt.Fprint(w, `{"permalink":"poll-1","title":"Quiz","options":[{"id":"11","value":"A"},{"id":"12","value":"B"}]}`)
	}))

	poll, err := client.PollData(context.Background(), "poll-1")
	require.NoError(t, err)
	assert.Equal(t, "poll-1", poll.ID)
	assert.Equal(t, "Quiz", poll.Title)
	require.Len(t, poll.Options, 2)
	assert.Equal(t, "11", poll.Options[0].ID)
}

func TestClient_Respond(t *testing.T) {
	var submittedForm map[string]string

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/proxy/api/csrf_token":
			fmt.Fprint(w, `{"token":"csrf-abc"}`)
		case "/proxy/api/participant/multiple_choice_polls/poll-1/results":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "csrf-abc", r.Header.Get("x-csrf-token"))
			submittedForm = map[string]string{
				"option_id": r.PostFormValue("option_id"),
				"isPending": r.PostFormValue("isPending"),
				"source":    r.PostFormValue("source"),
			}
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected request: %s", r.URL.Path)
		}
	}))

	err := client.Respond(context.Background(), "poll-1", "11")
	require.NoError(t, err)
	assert.Equal(t, "11", submittedForm["option_id"])
	assert.Equal(t, "true", submittedForm["isPending"])
	assert.Equal(t, "pollev_page", submittedForm["source"])
}

func TestClient_RespondRejected(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/proxy/api/csrf_token" {
			fmt.Fprint(w, `{"token":"csrf-abc"}`)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	err := client.Respond(context.Background(), "poll-1", "11")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
}

func TestClient_SessionCookiesRoundTrip(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())

	require.NoError(t, client.SetSessionCookies(map[string]string{
		"pe_auth_token": "abc123",
	}))

	pairs := client.SessionCookies()
	assert.Equal(t, "abc123", pairs["pe_auth_token"])
}

func TestClient_SeedVisitorCookies(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())

	require.NoError(t, client.SeedVisitorCookies())

	pairs := client.SessionCookies()
	assert.NotEmpty(t, pairs["pollev_visitor"])
	assert.NotEmpty(t, pairs["pollev_visit"])
}
