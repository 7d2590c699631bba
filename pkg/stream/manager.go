package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/agentarium/worldengine/pkg/eventlog"
	"github.com/agentarium/worldengine/pkg/session"
	"github.com/agentarium/worldengine/pkg/world"
)

const (
	// catchupLimit caps events replayed on join; past it the client is
	// told to backfill over the REST API instead.
	catchupLimit = 200

	defaultWriteTimeout = 10 * time.Second

	defaultEventLimit = 50
	maxEventLimit     = 100
)

// Connection represents one WebSocket client.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	// subscriptions tracks the session channels this connection joined.
	// Only the connection's read goroutine mutates it, so no lock.
	subscriptions map[string]bool
	ctx           context.Context
	cancel        context.CancelFunc
}

// ConnectionManager tracks WebSocket connections and their per-session
// subscriptions, and fans session output out to subscribers. It implements
// both the driver's and the session manager's broadcaster contracts.
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	// sessions maps session id → set of subscribed connection ids.
	sessions  map[string]map[string]bool
	sessionMu sync.RWMutex

	store        eventlog.Store
	writeTimeout time.Duration
	logger       *slog.Logger

	// manager is set after construction: the session manager broadcasts
	// through this ConnectionManager, so the two are wired in two phases.
	manager   *session.Manager
	managerMu sync.RWMutex
}

// NewConnectionManager creates a connection manager reading catch-up
// history from store. writeTimeout <= 0 selects the default.
func NewConnectionManager(store eventlog.Store, writeTimeout time.Duration, logger *slog.Logger) *ConnectionManager {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionManager{
		connections:  make(map[string]*Connection),
		sessions:     make(map[string]map[string]bool),
		store:        store,
		writeTimeout: writeTimeout,
		logger:       logger.With("component", "stream"),
	}
}

// SetManager wires the session manager used by client RPCs. Called once
// during startup, after the manager is built with this ConnectionManager
// as its broadcaster.
func (m *ConnectionManager) SetManager(mgr *session.Manager) {
	m.managerMu.Lock()
	defer m.managerMu.Unlock()
	m.manager = mgr
}

func (m *ConnectionManager) sessionManager() *session.Manager {
	m.managerMu.RLock()
	defer m.managerMu.RUnlock()
	return m.manager
}

// HandleConnection owns a WebSocket connection for its lifetime: it
// registers the client, sends the connection greeting, then serves client
// messages until the socket or context closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:            uuid.New().String(),
		Conn:          conn,
		subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c.ID)

	log := m.logger.With("connection_id", c.ID)
	log.Info("WebSocket connection established")

	if err := m.sendJSON(c, &ServerMessage{
		Type:         MsgConnectionEstablished,
		ConnectionID: c.ID,
	}); err != nil {
		log.Error("Failed to send connection greeting", "error", err)
		return
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			log.Debug("WebSocket read loop ended", "error", err)
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("Ignoring malformed client message", "error", err)
			continue
		}

		m.handleClientMessage(ctx, c, &msg)
	}
}

// WorldEvent pushes one appended event to the session's subscribers.
func (m *ConnectionManager) WorldEvent(sessionID string, event world.Event) {
	m.push(sessionID, &ServerMessage{
		Type:      MsgWorldEvent,
		SessionID: sessionID,
		Event:     &event,
	})
}

// StateUpdate pushes a post-step world snapshot to the session's
// subscribers.
func (m *ConnectionManager) StateUpdate(sessionID string, state *world.State) {
	m.push(sessionID, &ServerMessage{
		Type:      MsgStateUpdate,
		SessionID: sessionID,
		State:     state,
	})
}

// SimulationEnded tells the session's subscribers that no further steps
// will run.
func (m *ConnectionManager) SimulationEnded(sessionID, reason string) {
	m.push(sessionID, &ServerMessage{
		Type:      MsgSimulationEnded,
		SessionID: sessionID,
		Reason:    reason,
	})
}

// push sends msg to every connection subscribed to the session. Targets
// are snapshotted under the locks, then writes happen outside them. Pushes
// for one session arrive from a single driver goroutine, so per-session
// ordering is preserved per subscriber.
func (m *ConnectionManager) push(sessionID string, msg *ServerMessage) {
	m.sessionMu.RLock()
	ids := make([]string, 0, len(m.sessions[sessionID]))
	for id := range m.sessions[sessionID] {
		ids = append(ids, id)
	}
	m.sessionMu.RUnlock()

	if len(ids) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("Failed to marshal push message", "type", msg.Type, "error", err)
		return
	}

	m.mu.RLock()
	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.connections[id]; ok {
			conns = append(conns, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if err := m.sendRaw(c, data); err != nil {
			m.logger.Debug("Push to subscriber failed",
				"connection_id", c.ID, "session_id", sessionID, "error", err)
		}
	}
}

// ActiveConnections returns the number of registered connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// SubscriberCount returns how many connections joined the session.
func (m *ConnectionManager) SubscriberCount(sessionID string) int {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()
	return len(m.sessions[sessionID])
}

func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

// unregisterConnection removes the connection from every session channel,
// then releases it.
func (m *ConnectionManager) unregisterConnection(connID string) {
	m.mu.Lock()
	c, ok := m.connections[connID]
	if ok {
		delete(m.connections, connID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.sessionMu.Lock()
	for sessionID := range c.subscriptions {
		delete(m.sessions[sessionID], connID)
		if len(m.sessions[sessionID]) == 0 {
			delete(m.sessions, sessionID)
		}
	}
	m.sessionMu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "connection closed")

	m.logger.Info("WebSocket connection closed", "connection_id", connID)
}

func (m *ConnectionManager) subscribe(c *Connection, sessionID string) {
	if c.subscriptions[sessionID] {
		return
	}
	c.subscriptions[sessionID] = true

	m.sessionMu.Lock()
	if m.sessions[sessionID] == nil {
		m.sessions[sessionID] = make(map[string]bool)
	}
	m.sessions[sessionID][c.ID] = true
	m.sessionMu.Unlock()

	m.logger.Debug("Connection joined session",
		"connection_id", c.ID, "session_id", sessionID)
}

func (m *ConnectionManager) unsubscribe(c *Connection, sessionID string) {
	if !c.subscriptions[sessionID] {
		return
	}
	delete(c.subscriptions, sessionID)

	m.sessionMu.Lock()
	delete(m.sessions[sessionID], c.ID)
	if len(m.sessions[sessionID]) == 0 {
		delete(m.sessions, sessionID)
	}
	m.sessionMu.Unlock()

	m.logger.Debug("Connection left session",
		"connection_id", c.ID, "session_id", sessionID)
}

func (m *ConnectionManager) sendJSON(c *Connection, msg *ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return m.sendRaw(c, data)
}

func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	ctx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(ctx, websocket.MessageText, data)
}
