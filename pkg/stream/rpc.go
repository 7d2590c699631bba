package stream

import (
	"context"
	"fmt"
)

// handleClientMessage dispatches one client RPC. Every recognized action
// answers with an ack; pushes triggered by the RPC (catch-up events, later
// world events) arrive as separate frames.
func (m *ConnectionManager) handleClientMessage(ctx context.Context, c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case ActionPing:
		_ = m.sendJSON(c, &ServerMessage{Type: MsgPong, ID: msg.ID})
	case ActionCreateSession:
		m.handleCreateSession(ctx, c, msg)
	case ActionJoinSession:
		m.handleJoinSession(ctx, c, msg)
	case ActionLeaveSession:
		m.handleLeaveSession(c, msg)
	case ActionSubmitActions:
		m.handleSubmitActions(c, msg)
	case ActionStartAuto:
		m.handleStartAuto(c, msg)
	case ActionGetEvents:
		m.handleGetEvents(ctx, c, msg)
	default:
		_ = m.sendJSON(c, errAck(msg, fmt.Sprintf("unknown action %q", msg.Action)))
	}
}

func (m *ConnectionManager) handleCreateSession(ctx context.Context, c *Connection, msg *ClientMessage) {
	mgr := m.sessionManager()
	if mgr == nil {
		_ = m.sendJSON(c, errAck(msg, "session manager unavailable"))
		return
	}
	if msg.Config == nil {
		_ = m.sendJSON(c, errAck(msg, "config is required"))
		return
	}

	s, err := mgr.Create(ctx, *msg.Config)
	if err != nil {
		_ = m.sendJSON(c, errAck(msg, err.Error()))
		return
	}

	summary := s.Summary()
	ack := okAck(msg)
	ack.SessionID = summary.ID
	ack.Session = &summary
	_ = m.sendJSON(c, ack)
}

// handleJoinSession subscribes the connection to a session channel, acks,
// then replays history. Live pushes may interleave with the replay;
// sequence numbers let clients deduplicate.
func (m *ConnectionManager) handleJoinSession(ctx context.Context, c *Connection, msg *ClientMessage) {
	mgr := m.sessionManager()
	if mgr == nil {
		_ = m.sendJSON(c, errAck(msg, "session manager unavailable"))
		return
	}
	if msg.SessionID == "" {
		_ = m.sendJSON(c, errAck(msg, "sessionId is required"))
		return
	}

	s, err := mgr.Get(msg.SessionID)
	if err != nil {
		_ = m.sendJSON(c, errAck(msg, err.Error()))
		return
	}

	m.subscribe(c, msg.SessionID)

	summary := s.Summary()
	ack := okAck(msg)
	ack.SessionID = msg.SessionID
	ack.Session = &summary
	if err := m.sendJSON(c, ack); err != nil {
		return
	}

	var after int64
	if msg.AfterSequence != nil {
		after = *msg.AfterSequence
	}
	m.catchUp(ctx, c, msg.SessionID, after)
}

func (m *ConnectionManager) handleLeaveSession(c *Connection, msg *ClientMessage) {
	if msg.SessionID == "" {
		_ = m.sendJSON(c, errAck(msg, "sessionId is required"))
		return
	}
	m.unsubscribe(c, msg.SessionID)
	ack := okAck(msg)
	ack.SessionID = msg.SessionID
	_ = m.sendJSON(c, ack)
}

func (m *ConnectionManager) handleSubmitActions(c *Connection, msg *ClientMessage) {
	mgr := m.sessionManager()
	if mgr == nil {
		_ = m.sendJSON(c, errAck(msg, "session manager unavailable"))
		return
	}
	if msg.SessionID == "" {
		_ = m.sendJSON(c, errAck(msg, "sessionId is required"))
		return
	}
	if len(msg.Actions) == 0 {
		_ = m.sendJSON(c, errAck(msg, "actions are required"))
		return
	}

	if err := mgr.SubmitActions(msg.SessionID, msg.Actions); err != nil {
		_ = m.sendJSON(c, errAck(msg, err.Error()))
		return
	}

	ack := okAck(msg)
	ack.SessionID = msg.SessionID
	_ = m.sendJSON(c, ack)
}

func (m *ConnectionManager) handleStartAuto(c *Connection, msg *ClientMessage) {
	mgr := m.sessionManager()
	if mgr == nil {
		_ = m.sendJSON(c, errAck(msg, "session manager unavailable"))
		return
	}
	if msg.SessionID == "" {
		_ = m.sendJSON(c, errAck(msg, "sessionId is required"))
		return
	}

	if err := mgr.StartAuto(msg.SessionID); err != nil {
		_ = m.sendJSON(c, errAck(msg, err.Error()))
		return
	}

	ack := okAck(msg)
	ack.SessionID = msg.SessionID
	_ = m.sendJSON(c, ack)
}

func (m *ConnectionManager) handleGetEvents(ctx context.Context, c *Connection, msg *ClientMessage) {
	if msg.SessionID == "" {
		_ = m.sendJSON(c, errAck(msg, "sessionId is required"))
		return
	}
	if mgr := m.sessionManager(); mgr != nil {
		if _, err := mgr.Get(msg.SessionID); err != nil {
			_ = m.sendJSON(c, errAck(msg, err.Error()))
			return
		}
	}

	limit := clampLimit(msg.Limit)

	ack := okAck(msg)
	ack.SessionID = msg.SessionID
	if msg.AfterSequence != nil {
		evs, err := m.store.GetAfterSequence(ctx, msg.SessionID, *msg.AfterSequence, limit)
		if err != nil {
			_ = m.sendJSON(c, errAck(msg, err.Error()))
			return
		}
		ack.Events = evs
	} else {
		evs, err := m.store.GetRecent(ctx, msg.SessionID, limit)
		if err != nil {
			_ = m.sendJSON(c, errAck(msg, err.Error()))
			return
		}
		ack.Events = evs
	}
	_ = m.sendJSON(c, ack)
}

// catchUp replays up to catchupLimit stored events after the given
// sequence to one connection. When history is longer, the client gets a
// catchup.overflow frame and should backfill over the REST API.
func (m *ConnectionManager) catchUp(ctx context.Context, c *Connection, sessionID string, after int64) {
	events, err := m.store.GetAfterSequence(ctx, sessionID, after, catchupLimit+1)
	if err != nil {
		m.logger.Error("Catch-up read failed",
			"connection_id", c.ID, "session_id", sessionID, "error", err)
		return
	}

	overflow := len(events) > catchupLimit
	if overflow {
		events = events[:catchupLimit]
	}

	for i := range events {
		frame := &ServerMessage{
			Type:      MsgWorldEvent,
			SessionID: sessionID,
			Event:     &events[i],
		}
		if err := m.sendJSON(c, frame); err != nil {
			return
		}
	}

	if overflow {
		_ = m.sendJSON(c, &ServerMessage{
			Type:      MsgCatchupOverflow,
			SessionID: sessionID,
			HasMore:   true,
		})
	}
}

// clampLimit bounds per-query event reads to [1,100]; zero selects the
// default page size.
func clampLimit(n int) int {
	switch {
	case n == 0:
		return defaultEventLimit
	case n < 1:
		return 1
	case n > maxEventLimit:
		return maxEventLimit
	default:
		return n
	}
}
