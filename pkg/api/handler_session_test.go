package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	fx := newTestServer(t)

	w, parsed := doRequest(t, fx.router, http.MethodPost, BasePath+"/sessions", debateBody())
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, true, parsed["success"])

	data := parsed["data"].(map[string]any)
	assert.Equal(t, "AI regulation debate", data["title"])
	assert.Equal(t, "debate", data["kind"])
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, float64(2), data["activeAgents"])
}

func TestCreateSessionValidation(t *testing.T) {
	fx := newTestServer(t)

	body := debateBody()
	body["agents"] = []map[string]any{}
	w, parsed := doRequest(t, fx.router, http.MethodPost, BasePath+"/sessions", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, false, parsed["success"])
	assert.NotEmpty(t, parsed["error"])

	body = debateBody()
	body["kind"] = "arena"
	w, parsed = doRequest(t, fx.router, http.MethodPost, BasePath+"/sessions", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, false, parsed["success"])
}

func TestListSessions(t *testing.T) {
	fx := newTestServer(t)

	w, parsed := doRequest(t, fx.router, http.MethodGet, BasePath+"/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, parsed["success"])
	assert.Empty(t, parsed["data"])

	createTestSession(t, fx)
	createTestSession(t, fx)

	_, parsed = doRequest(t, fx.router, http.MethodGet, BasePath+"/sessions", nil)
	sessions := parsed["data"].([]any)
	assert.Len(t, sessions, 2)
}

func TestListSessionsByUser(t *testing.T) {
	fx := newTestServer(t)

	body := debateBody()
	body["createdBy"] = "dana"
	w, _ := doRequest(t, fx.router, http.MethodPost, BasePath+"/sessions", body)
	require.Equal(t, http.StatusCreated, w.Code)
	createTestSession(t, fx)

	_, parsed := doRequest(t, fx.router, http.MethodGet, BasePath+"/sessions?createdBy=dana", nil)
	sessions := parsed["data"].([]any)
	require.Len(t, sessions, 1)
	first := sessions[0].(map[string]any)
	assert.Equal(t, "dana", first["createdBy"])
}

func TestGetSessionDetail(t *testing.T) {
	fx := newTestServer(t)
	id := createTestSession(t, fx)

	w, parsed := doRequest(t, fx.router, http.MethodGet, BasePath+"/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, parsed["success"])

	data := parsed["data"].(map[string]any)
	assert.Equal(t, id, data["sessionId"])
	assert.Equal(t, "AI regulation debate", data["title"])

	agents := data["agents"].([]any)
	require.Len(t, agents, 2)
	assert.Equal(t, "a1", agents[0].(map[string]any)["id"])

	state := data["state"].(map[string]any)
	assert.Equal(t, id, state["worldId"])

	events := data["events"].([]any)
	require.NotEmpty(t, events)
	first := events[0].(map[string]any)
	assert.Equal(t, "debate_start", first["eventType"])
	assert.GreaterOrEqual(t, data["eventCount"], float64(1))
}

func TestGetSessionNotFound(t *testing.T) {
	fx := newTestServer(t)

	w, parsed := doRequest(t, fx.router, http.MethodGet, BasePath+"/sessions/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, false, parsed["success"])
	assert.Equal(t, "session not found", parsed["error"])
}

func TestLifecycleRoutes(t *testing.T) {
	fx := newTestServer(t)
	id := createTestSession(t, fx)

	// Pause before start is an invalid transition.
	w, parsed := doRequest(t, fx.router, http.MethodPost, BasePath+"/sessions/"+id+"/pause", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, false, parsed["success"])

	w, parsed = doRequest(t, fx.router, http.MethodPost, BasePath+"/sessions/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, parsed["success"])

	// Starting twice is an invalid transition.
	w, _ = doRequest(t, fx.router, http.MethodPost, BasePath+"/sessions/"+id+"/start", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doRequest(t, fx.router, http.MethodPost, BasePath+"/sessions/"+id+"/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doRequest(t, fx.router, http.MethodPost, BasePath+"/sessions/"+id+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doRequest(t, fx.router, http.MethodPost, BasePath+"/sessions/"+id+"/end",
		map[string]any{"reason": "experiment finished"})
	require.Equal(t, http.StatusOK, w.Code)

	// Ending an ended session stays successful without touching it.
	w, _ = doRequest(t, fx.router, http.MethodPost, BasePath+"/sessions/"+id+"/end", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, parsed = doRequest(t, fx.router, http.MethodGet, BasePath+"/sessions/"+id, nil)
	data := parsed["data"].(map[string]any)
	assert.Equal(t, "ended", data["status"])
	assert.Equal(t, "experiment finished", data["endReason"])
}

func TestLifecycleRoutesUnknownSession(t *testing.T) {
	fx := newTestServer(t)

	for _, verb := range []string{"start", "pause", "resume", "end"} {
		w, parsed := doRequest(t, fx.router, http.MethodPost, BasePath+"/sessions/missing/"+verb, nil)
		require.Equal(t, http.StatusNotFound, w.Code, verb)
		require.Equal(t, false, parsed["success"], verb)
	}
}

func TestDeleteSession(t *testing.T) {
	fx := newTestServer(t)
	id := createTestSession(t, fx)

	w, parsed := doRequest(t, fx.router, http.MethodDelete, BasePath+"/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, parsed["success"])

	w, _ = doRequest(t, fx.router, http.MethodGet, BasePath+"/sessions/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doRequest(t, fx.router, http.MethodDelete, BasePath+"/sessions/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
