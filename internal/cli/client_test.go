package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteSendsSubmission(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"team_id":"team-1","pot":"1500","available":["inn"],"version":3}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL + "/")
	view, err := client.Complete(context.Background(), "tok", "ev 1", "team-1", "boss", "https://i.imgur.com/x.png")
	require.NoError(t, err)

	assert.Equal(t, "/v1/events/ev 1/teams/team-1/complete", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, map[string]string{"node_id": "boss", "proof": "https://i.imgur.com/x.png"}, gotBody)
	assert.Equal(t, "1500", view.Pot.String())
	assert.Equal(t, []string{"inn"}, view.Available)
	assert.EqualValues(t, 3, view.Version)
}

func TestStructuredErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/events/ev-1/teams/team-1/inn":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"insufficient keys: need red 2","code":"INSUFFICIENT_KEYS"}`))
		case "/v1/events/ev-1/teams":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"transaction conflict, retry","code":"TX_CONFLICT"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}
	}))
	defer srv.Close()
	client := NewClient(srv.URL)
	ctx := context.Background()

	_, err := client.Purchase(ctx, "tok", "ev-1", "team-1", "inn", "ale")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "INSUFFICIENT_KEYS", ErrorCode(err))
	assert.Equal(t, "insufficient keys: need red 2", apiErr.Message)
	assert.False(t, Retryable(err))

	_, err = client.AddTeam(ctx, "tok", "ev-1", "", "Late", nil)
	assert.Equal(t, "TX_CONFLICT", ErrorCode(err))
	assert.True(t, Retryable(err))

	_, err = client.Me(ctx, "tok")
	assert.Equal(t, "", ErrorCode(err))
	assert.Contains(t, err.Error(), "upstream down")
	assert.True(t, Retryable(err))
}

func TestTransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewClient(srv.URL).MyTeam(context.Background(), "tok", "ev-1")
	require.Error(t, err)
	assert.True(t, Retryable(err))
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
}

func TestTeamsUnwrapsList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"teams":[{"team_id":"a","pot":"0"},{"team_id":"b","pot":"250"}]}`))
	}))
	defer srv.Close()

	teams, err := NewClient(srv.URL).Teams(context.Background(), "tok", "ev-1")
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "b", teams[1].TeamID)
	assert.Equal(t, "250", teams[1].Pot.String())
}
