package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonphresh/osrsbingo-sub001/internal/auth"
	"github.com/lemonphresh/osrsbingo-sub001/internal/hunt"
)

const testMap = `
name: API Hunt
prize_pool: 10000
nodes:
  - id: start
    type: START
    rewards: {keys: {red: 2}}
    unlocks: [boss]
  - id: boss
    type: STANDARD
    objective: {type: boss_kc, target: Vorkath, quantity: 20}
    rewards: {gp: 1500}
    unlocks: [inn]
  - id: inn
    type: INN
    inn_rewards:
      - {id: ale, key_cost: {red: 2}, payout: 300}
`

type testEnv struct {
	t      *testing.T
	srv    *httptest.Server
	tokens map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	verifier, err := auth.NewVerifier("api-test-secret-0123456789", "authenticated")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := hunt.NewService(hunt.NewMemoryStore(), logger)
	srv := httptest.NewServer(New(logger, verifier, svc).Handler())
	t.Cleanup(srv.Close)

	env := &testEnv{t: t, srv: srv, tokens: map[string]string{}}
	for _, id := range []auth.Identity{
		{UserID: "mod-1", Admin: true},
		{UserID: "u-alice", DiscordID: "alice"},
		{UserID: "u-carol", DiscordID: "carol"},
	} {
		tok, err := verifier.Issue(id, time.Hour)
		require.NoError(t, err)
		env.tokens[id.UserID] = tok
	}
	return env
}

func (e *testEnv) do(method, path, user string, body any) (int, map[string]any) {
	e.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(e.t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[user])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// launchedEvent creates, stocks and launches an event and returns its id.
func (e *testEnv) launchedEvent() string {
	e.t.Helper()
	status, ev := e.do(http.MethodPost, "/v1/events", "mod-1", map[string]any{"map_yaml": testMap})
	require.Equal(e.t, http.StatusCreated, status, ev)
	id := ev["id"].(string)

	status, body := e.do(http.MethodPost, "/v1/events/"+id+"/teams", "mod-1", map[string]any{
		"team_id": "team-1", "name": "Iron Wolves", "members": []string{"alice", "bob"},
	})
	require.Equal(e.t, http.StatusCreated, status, body)
	status, body = e.do(http.MethodPost, "/v1/events/"+id+"/launch", "mod-1", nil)
	require.Equal(e.t, http.StatusOK, status, body)
	return id
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHENTICATED", body["code"])

	status, body = env.do(http.MethodPost, "/v1/events", "u-alice", map[string]any{"map_yaml": testMap})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["code"])

	status, body = env.do(http.MethodGet, "/v1/me", "u-alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", body["member_id"])
}

func TestCreateEventFromMapYAML(t *testing.T) {
	env := newTestEnv(t)
	status, ev := env.do(http.MethodPost, "/v1/events", "mod-1", map[string]any{"map_yaml": testMap})
	require.Equal(t, http.StatusCreated, status, ev)
	assert.Equal(t, "API Hunt", ev["name"])
	assert.Equal(t, "DRAFT", ev["status"])

	status, body := env.do(http.MethodPost, "/v1/events", "mod-1", map[string]any{"map_yaml": "nodes: []\n"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_GRAPH", body["code"])

	status, body = env.do(http.MethodPost, "/v1/events", "mod-1", map[string]any{"name": "x", "bogus": true})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", body["code"])
}

func TestPlayerFlow(t *testing.T) {
	env := newTestEnv(t)
	id := env.launchedEvent()
	base := "/v1/events/" + id + "/teams/team-1"

	status, body := env.do(http.MethodPost, base+"/complete", "u-alice", map[string]any{"node_id": "boss", "proof": "https://i.imgur.com/x.png"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "NODE_LOCKED", body["code"])

	status, body = env.do(http.MethodPost, base+"/complete", "u-alice", map[string]any{"node_id": "start"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, []any{"boss"}, body["available"])

	status, body = env.do(http.MethodPost, base+"/complete", "u-alice", map[string]any{"node_id": "start"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_COMPLETED", body["code"])

	status, body = env.do(http.MethodPost, base+"/complete", "u-carol", map[string]any{"node_id": "boss"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NOT_TEAM_MEMBER", body["code"])

	status, body = env.do(http.MethodPost, base+"/complete", "u-alice", map[string]any{"node_id": "boss"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "1500", body["pot"])

	status, body = env.do(http.MethodPost, base+"/inn", "u-alice", map[string]any{"node_id": "inn", "reward_id": "ale"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "1800", body["pot"])
	assert.Equal(t, []any{"inn"}, body["inns_visited"])

	status, body = env.do(http.MethodPost, base+"/buffs", "u-alice", map[string]any{"node_id": "boss", "buff_id": "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "NODE_NOT_AVAILABLE", body["code"])

	status, body = env.do(http.MethodGet, "/v1/events/"+id+"/me", "u-alice", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "team-1", body["team_id"])
}

func TestAdminOverrides(t *testing.T) {
	env := newTestEnv(t)
	id := env.launchedEvent()
	base := "/v1/events/" + id + "/teams/team-1/admin"

	status, body := env.do(http.MethodPost, base+"/complete", "u-alice", map[string]any{"node_id": "start"})
	assert.Equal(t, http.StatusForbidden, status, body)

	status, body = env.do(http.MethodPost, base+"/complete", "mod-1", map[string]any{"node_id": "start", "note": "screenshot in #proofs"})
	require.Equal(t, http.StatusOK, status, body)

	status, body = env.do(http.MethodPost, base+"/uncomplete", "mod-1", map[string]any{"node_id": "start"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, []any{"start"}, body["available"])

	status, body = env.do(http.MethodPost, base+"/uncomplete", "mod-1", map[string]any{"node_id": "start"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "NOT_COMPLETED", body["code"])

	status, body = env.do(http.MethodPost, "/v1/events/"+id+"/reconcile", "mod-1", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 1, body["teams_checked"])
}

func TestLifecycleErrors(t *testing.T) {
	env := newTestEnv(t)
	id := env.launchedEvent()

	status, body := env.do(http.MethodPost, "/v1/events/"+id+"/teams", "mod-1", map[string]any{"name": "Late"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "EVENT_LAUNCHED", body["code"])

	status, body = env.do(http.MethodGet, "/v1/events/missing/teams/team-1", "u-alice", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "EVENT_NOT_FOUND", body["code"])

	status, _ = env.do(http.MethodPost, "/v1/events/"+id+"/end", "mod-1", nil)
	require.Equal(t, http.StatusOK, status)
	status, body = env.do(http.MethodPost, "/v1/events/"+id+"/teams/team-1/complete", "u-alice", map[string]any{"node_id": "start"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "EVENT_NOT_ACTIVE", body["code"])
}
