package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentarium/worldengine/pkg/eventlog"
	"github.com/agentarium/worldengine/pkg/session"
	"github.com/agentarium/worldengine/pkg/world"
)

// fakeDriver satisfies session.Driver without running a loop, so stream
// tests exercise the socket surface alone.
type fakeDriver struct {
	mu        sync.Mutex
	started   bool
	stopped   bool
	autopilot bool
	submitted []world.Action
}

func (d *fakeDriver) Start() { d.mu.Lock(); d.started = true; d.mu.Unlock() }
func (d *fakeDriver) Stop()  { d.mu.Lock(); d.stopped = true; d.mu.Unlock() }

func (d *fakeDriver) Pause()  {}
func (d *fakeDriver) Resume() {}

func (d *fakeDriver) Submit(actions []world.Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitted = append(d.submitted, actions...)
	return nil
}

func (d *fakeDriver) SetAutopilot(on bool) {
	d.mu.Lock()
	d.autopilot = on
	d.mu.Unlock()
}

func (d *fakeDriver) submittedActions() []world.Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]world.Action(nil), d.submitted...)
}

func (d *fakeDriver) autopilotOn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.autopilot
}

type fixture struct {
	cm     *ConnectionManager
	mgr    *session.Manager
	store  eventlog.Store
	server *httptest.Server
	driver *fakeDriver
}

func setupTestStream(t *testing.T) *fixture {
	t.Helper()

	store := eventlog.NewMemoryStore()
	cm := NewConnectionManager(store, 5*time.Second, nil)

	drv := &fakeDriver{}
	mgr := session.NewManager(session.ManagerParams{
		Store:     store,
		Broadcast: cm,
		Factory:   func(*session.Session) session.Driver { return drv },
	})
	cm.SetManager(mgr)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		cm.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(server.Close)
	t.Cleanup(mgr.Shutdown)

	return &fixture{cm: cm, mgr: mgr, store: store, server: server, driver: drv}
}

// connectWS dials the test server and consumes the connection greeting.
func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })

	greeting := readJSON(t, conn)
	require.Equal(t, MsgConnectionEstablished, greeting["type"])
	require.NotEmpty(t, greeting["connectionId"])
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeJSON(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func debateConfig() *session.CreateRequest {
	return &session.CreateRequest{
		Kind:  world.KindDebate,
		Title: "AI regulation debate",
		Topic: "Should frontier AI systems be licensed?",
		Agents: []session.AgentSpec{
			{ID: "a1", Name: "Nova", Stance: "pro"},
			{ID: "a2", Name: "Rex", Stance: "con"},
		},
	}
}

func TestConnectionGreetingAndCount(t *testing.T) {
	fx := setupTestStream(t)

	conn := connectWS(t, fx.server)
	assert.Eventually(t, func() bool { return fx.cm.ActiveConnections() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return fx.cm.ActiveConnections() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestCreateSessionOverSocket(t *testing.T) {
	fx := setupTestStream(t)
	conn := connectWS(t, fx.server)

	writeJSON(t, conn, &ClientMessage{
		ID:     "req-1",
		Action: ActionCreateSession,
		Config: debateConfig(),
	})

	ack := readJSON(t, conn)
	require.Equal(t, MsgAck, ack["type"])
	assert.Equal(t, "req-1", ack["id"])
	assert.Equal(t, ActionCreateSession, ack["action"])
	require.Equal(t, true, ack["success"])
	require.NotEmpty(t, ack["sessionId"])

	sum, ok := ack["session"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "AI regulation debate", sum["title"])
	assert.Equal(t, string(session.StatusPending), sum["status"])

	// The session is registered with the manager by id.
	_, err := fx.mgr.Get(ack["sessionId"].(string))
	require.NoError(t, err)
}

func TestCreateSessionRejectsBadConfig(t *testing.T) {
	fx := setupTestStream(t)
	conn := connectWS(t, fx.server)

	writeJSON(t, conn, &ClientMessage{ID: "req-2", Action: ActionCreateSession})
	ack := readJSON(t, conn)
	require.Equal(t, false, ack["success"])
	assert.Contains(t, ack["error"], "config is required")

	cfg := debateConfig()
	cfg.Agents = nil
	writeJSON(t, conn, &ClientMessage{ID: "req-3", Action: ActionCreateSession, Config: cfg})
	ack = readJSON(t, conn)
	require.Equal(t, false, ack["success"])
	assert.NotEmpty(t, ack["error"])
}

func TestJoinSessionReplaysHistory(t *testing.T) {
	fx := setupTestStream(t)
	s, err := fx.mgr.Create(context.Background(), *debateConfig())
	require.NoError(t, err)

	conn := connectWS(t, fx.server)
	writeJSON(t, conn, &ClientMessage{ID: "j-1", Action: ActionJoinSession, SessionID: s.ID})

	ack := readJSON(t, conn)
	require.Equal(t, MsgAck, ack["type"])
	require.Equal(t, true, ack["success"])
	assert.Equal(t, s.ID, ack["sessionId"])

	// Creation seeds the log, so the join replays at least the opening
	// event before any live traffic.
	frame := readJSON(t, conn)
	require.Equal(t, MsgWorldEvent, frame["type"])
	assert.Equal(t, s.ID, frame["sessionId"])
	event, ok := frame["event"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "debate_start", event["eventType"])

	assert.Equal(t, 1, fx.cm.SubscriberCount(s.ID))
}

func TestJoinUnknownSessionFails(t *testing.T) {
	fx := setupTestStream(t)
	conn := connectWS(t, fx.server)

	writeJSON(t, conn, &ClientMessage{ID: "j-2", Action: ActionJoinSession, SessionID: "missing"})
	ack := readJSON(t, conn)
	require.Equal(t, false, ack["success"])
	assert.Contains(t, ack["error"], "session not found")
	assert.Equal(t, 0, fx.cm.SubscriberCount("missing"))
}

func TestPushReachesOnlySubscribers(t *testing.T) {
	fx := setupTestStream(t)
	ctx := context.Background()
	sa, err := fx.mgr.Create(ctx, *debateConfig())
	require.NoError(t, err)
	sb, err := fx.mgr.Create(ctx, *debateConfig())
	require.NoError(t, err)

	connA := connectWS(t, fx.server)
	writeJSON(t, connA, &ClientMessage{Action: ActionJoinSession, SessionID: sa.ID})
	drainJoin(t, connA)

	connB := connectWS(t, fx.server)
	writeJSON(t, connB, &ClientMessage{Action: ActionJoinSession, SessionID: sb.ID})
	drainJoin(t, connB)

	fx.cm.WorldEvent(sa.ID, world.Event{EventID: "e-a", EventType: "speech", Sequence: 9})
	fx.cm.WorldEvent(sb.ID, world.Event{EventID: "e-b", EventType: "speech", Sequence: 9})

	frameA := readJSON(t, connA)
	require.Equal(t, MsgWorldEvent, frameA["type"])
	assert.Equal(t, sa.ID, frameA["sessionId"])

	// connB's first live frame is its own session's event, which proves
	// the push for session A never reached it.
	frameB := readJSON(t, connB)
	require.Equal(t, MsgWorldEvent, frameB["type"])
	assert.Equal(t, sb.ID, frameB["sessionId"])
}

// drainJoin consumes the join ack plus every replayed history frame,
// leaving only live pushes on the socket.
func drainJoin(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	ack := readJSON(t, conn)
	require.Equal(t, MsgAck, ack["type"])
	require.Equal(t, true, ack["success"])
	for {
		frame := readJSON(t, conn)
		if frame["type"] != MsgWorldEvent {
			t.Fatalf("unexpected frame during join replay: %v", frame["type"])
		}
		event := frame["event"].(map[string]interface{})
		if event["eventType"] == "debate_start" {
			return
		}
	}
}

func TestStateAndEndFramesReachSubscribers(t *testing.T) {
	fx := setupTestStream(t)
	s, err := fx.mgr.Create(context.Background(), *debateConfig())
	require.NoError(t, err)

	conn := connectWS(t, fx.server)
	writeJSON(t, conn, &ClientMessage{Action: ActionJoinSession, SessionID: s.ID})
	drainJoin(t, conn)

	fx.cm.StateUpdate(s.ID, s.Engine().WorldState())
	frame := readJSON(t, conn)
	require.Equal(t, MsgStateUpdate, frame["type"])
	state, ok := frame["state"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, s.ID, state["worldId"])

	fx.cm.SimulationEnded(s.ID, "maximum rounds reached")
	frame = readJSON(t, conn)
	require.Equal(t, MsgSimulationEnded, frame["type"])
	assert.Equal(t, "maximum rounds reached", frame["reason"])
}

func TestSubmitActionsOverSocket(t *testing.T) {
	fx := setupTestStream(t)
	s, err := fx.mgr.Create(context.Background(), *debateConfig())
	require.NoError(t, err)

	conn := connectWS(t, fx.server)

	// Submissions require a running session.
	writeJSON(t, conn, &ClientMessage{
		ID:        "s-1",
		Action:    ActionSubmitActions,
		SessionID: s.ID,
		Actions:   []world.Action{{AgentID: "a1", ActionType: "speak"}},
	})
	ack := readJSON(t, conn)
	require.Equal(t, false, ack["success"])
	assert.NotEmpty(t, ack["error"])

	require.NoError(t, fx.mgr.Start(s.ID))

	writeJSON(t, conn, &ClientMessage{
		ID:        "s-2",
		Action:    ActionSubmitActions,
		SessionID: s.ID,
		Actions: []world.Action{{
			AgentID:    "a1",
			ActionType: "speak",
			Params:     map[string]any{"content": "Licensing narrows the field."},
		}},
	})
	ack = readJSON(t, conn)
	require.Equal(t, true, ack["success"])
	assert.Equal(t, "s-2", ack["id"])

	submitted := fx.driver.submittedActions()
	require.Len(t, submitted, 1)
	assert.Equal(t, "a1", submitted[0].AgentID)
	assert.Equal(t, "speak", submitted[0].ActionType)

	writeJSON(t, conn, &ClientMessage{ID: "s-3", Action: ActionSubmitActions, SessionID: s.ID})
	ack = readJSON(t, conn)
	require.Equal(t, false, ack["success"])
	assert.Contains(t, ack["error"], "actions are required")
}

func TestStartAutoOverSocket(t *testing.T) {
	fx := setupTestStream(t)
	s, err := fx.mgr.Create(context.Background(), *debateConfig())
	require.NoError(t, err)
	require.NoError(t, fx.mgr.Start(s.ID))

	conn := connectWS(t, fx.server)
	writeJSON(t, conn, &ClientMessage{ID: "auto-1", Action: ActionStartAuto, SessionID: s.ID})

	ack := readJSON(t, conn)
	require.Equal(t, true, ack["success"])
	assert.True(t, fx.driver.autopilotOn())
}

func TestGetEventsOverSocket(t *testing.T) {
	fx := setupTestStream(t)
	s, err := fx.mgr.Create(context.Background(), *debateConfig())
	require.NoError(t, err)

	conn := connectWS(t, fx.server)
	writeJSON(t, conn, &ClientMessage{ID: "g-1", Action: ActionGetEvents, SessionID: s.ID})

	ack := readJSON(t, conn)
	require.Equal(t, true, ack["success"])
	events, ok := ack["events"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, events)
	first := events[0].(map[string]interface{})
	assert.Equal(t, "debate_start", first["eventType"])

	// An afterSequence past the log tail reads nothing.
	after := int64(1_000_000)
	writeJSON(t, conn, &ClientMessage{
		ID:            "g-2",
		Action:        ActionGetEvents,
		SessionID:     s.ID,
		AfterSequence: &after,
	})
	ack = readJSON(t, conn)
	require.Equal(t, true, ack["success"])
	assert.Empty(t, ack["events"])

	writeJSON(t, conn, &ClientMessage{ID: "g-3", Action: ActionGetEvents, SessionID: "missing"})
	ack = readJSON(t, conn)
	require.Equal(t, false, ack["success"])
	assert.Contains(t, ack["error"], "session not found")
}

func TestLeaveSessionStopsPushes(t *testing.T) {
	fx := setupTestStream(t)
	s, err := fx.mgr.Create(context.Background(), *debateConfig())
	require.NoError(t, err)

	conn := connectWS(t, fx.server)
	writeJSON(t, conn, &ClientMessage{Action: ActionJoinSession, SessionID: s.ID})
	drainJoin(t, conn)
	require.Equal(t, 1, fx.cm.SubscriberCount(s.ID))

	writeJSON(t, conn, &ClientMessage{ID: "l-1", Action: ActionLeaveSession, SessionID: s.ID})
	ack := readJSON(t, conn)
	require.Equal(t, true, ack["success"])
	assert.Equal(t, 0, fx.cm.SubscriberCount(s.ID))

	// A push after leaving must not arrive; the pong that follows is the
	// next frame the socket sees.
	fx.cm.WorldEvent(s.ID, world.Event{EventID: "e-1", EventType: "speech"})
	writeJSON(t, conn, &ClientMessage{ID: "p-1", Action: ActionPing})
	frame := readJSON(t, conn)
	assert.Equal(t, MsgPong, frame["type"])
}

func TestDisconnectRemovesSubscriptions(t *testing.T) {
	fx := setupTestStream(t)
	s, err := fx.mgr.Create(context.Background(), *debateConfig())
	require.NoError(t, err)

	conn := connectWS(t, fx.server)
	writeJSON(t, conn, &ClientMessage{Action: ActionJoinSession, SessionID: s.ID})
	drainJoin(t, conn)
	require.Equal(t, 1, fx.cm.SubscriberCount(s.ID))

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return fx.cm.SubscriberCount(s.ID) == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestUnknownActionIsAcked(t *testing.T) {
	fx := setupTestStream(t)
	conn := connectWS(t, fx.server)

	writeJSON(t, conn, &ClientMessage{ID: "u-1", Action: "teleport"})
	ack := readJSON(t, conn)
	require.Equal(t, MsgAck, ack["type"])
	require.Equal(t, false, ack["success"])
	assert.Contains(t, ack["error"], `unknown action "teleport"`)

	// Malformed JSON is ignored; the connection stays usable.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))

	writeJSON(t, conn, &ClientMessage{ID: "p-2", Action: ActionPing})
	frame := readJSON(t, conn)
	assert.Equal(t, MsgPong, frame["type"])
}
