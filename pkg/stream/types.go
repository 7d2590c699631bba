// Package stream delivers world events to WebSocket subscribers and
// accepts session RPCs over the same socket. One ConnectionManager serves
// the whole process; subscriptions are keyed by session id.
package stream

import (
	"github.com/agentarium/worldengine/pkg/session"
	"github.com/agentarium/worldengine/pkg/world"
)

// Server frame types.
const (
	MsgConnectionEstablished = "connection.established"
	MsgAck                   = "ack"
	MsgWorldEvent            = "world_event"
	MsgStateUpdate           = "state_update"
	MsgSimulationEnded       = "simulation_ended"
	MsgCatchupOverflow       = "catchup.overflow"
	MsgPong                  = "pong"
)

// Client RPC actions.
const (
	ActionCreateSession = "create_session"
	ActionJoinSession   = "join_session"
	ActionLeaveSession  = "leave_session"
	ActionSubmitActions = "submit_actions"
	ActionStartAuto     = "start_auto_simulation"
	ActionGetEvents     = "get_events"
	ActionPing          = "ping"
)

// ClientMessage is the JSON structure for client → server messages. ID is
// echoed back on the ack so clients can match replies to requests.
type ClientMessage struct {
	ID        string `json:"id,omitempty"`
	Action    string `json:"action"`
	SessionID string `json:"sessionId,omitempty"`

	// Config carries the session request for create_session.
	Config *session.CreateRequest `json:"config,omitempty"`
	// Actions carries proposed moves for submit_actions.
	Actions []world.Action `json:"actions,omitempty"`
	// AfterSequence selects incremental reads for join_session and
	// get_events. Nil means from the beginning.
	AfterSequence *int64 `json:"afterSequence,omitempty"`
	// Limit bounds get_events reads; clamped to [1,100], 0 means the
	// default page.
	Limit int `json:"limit,omitempty"`
}

// ServerMessage is every server → client frame: pushes, acks, and the
// connection greeting. Success is a pointer so push frames carry no
// success field at all.
type ServerMessage struct {
	Type         string           `json:"type"`
	ID           string           `json:"id,omitempty"`
	Action       string           `json:"action,omitempty"`
	Success      *bool            `json:"success,omitempty"`
	Error        string           `json:"error,omitempty"`
	ConnectionID string           `json:"connectionId,omitempty"`
	SessionID    string           `json:"sessionId,omitempty"`
	Session      *session.Summary `json:"session,omitempty"`
	Event        *world.Event     `json:"event,omitempty"`
	Events       []world.Event    `json:"events,omitempty"`
	State        *world.State     `json:"state,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	HasMore      bool             `json:"hasMore,omitempty"`
}

func okAck(req *ClientMessage) *ServerMessage {
	ok := true
	return &ServerMessage{Type: MsgAck, ID: req.ID, Action: req.Action, Success: &ok}
}

func errAck(req *ClientMessage, msg string) *ServerMessage {
	no := false
	return &ServerMessage{Type: MsgAck, ID: req.ID, Action: req.Action, Success: &no, Error: msg}
}
