package protocol

import (
	"encoding/json"
	"time"
)

// MessageType names the payload carried by an Envelope. Extension session
// types live in session.go; the rest belong to the agent's control-plane
// link to the operator UI.
type MessageType string

const (
	// Agent to operator UI.
	MsgRegister  MessageType = "register"
	MsgHeartbeat MessageType = "heartbeat"
	MsgLog       MessageType = "log"
	MsgStatus    MessageType = "status"
	MsgEvent     MessageType = "event"
	MsgLogEnd    MessageType = "log_end"

	// Operator UI to agent. MsgSetSpeed is accepted here too and changes
	// the default speed of new sessions.
	MsgConfigUpdate    MessageType = "config_update"
	MsgRestartPipeline MessageType = "restart_pipeline"
	MsgShutdown        MessageType = "shutdown"
	MsgAck             MessageType = "ack"
)

// AgentStatus is what the operator UI shows next to an agent.
type AgentStatus string

const (
	AgentIdle     AgentStatus = "idle"
	AgentServing  AgentStatus = "serving"
	AgentDraining AgentStatus = "draining"
)

// Envelope wraps every message on both sockets.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RegisterPayload is the first message after the agent dials in.
type RegisterPayload struct {
	AgentID           string            `json:"agent_id"`
	Version           string            `json:"version,omitempty"`
	ListenAddr        string            `json:"listen_addr,omitempty"` // where extensions connect
	Capabilities      []string          `json:"capabilities,omitempty"`
	DictionaryEntries int               `json:"dictionary_entries"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}

type HeartbeatPayload struct {
	AgentID           string      `json:"agent_id"`
	Status            AgentStatus `json:"status"`
	ActiveSessions    int         `json:"active_sessions"`
	DictionaryEntries int         `json:"dictionary_entries"` // changes after a hot reload
	Timestamp         time.Time   `json:"timestamp"`
}

// LogPayload streams one line of a session log.
type LogPayload struct {
	AgentID   string   `json:"agent_id"`
	SessionID string   `json:"session_id"`
	Entry     LogEntry `json:"entry"`
}

type LogEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
}

type StatusPayload struct {
	AgentID  string        `json:"agent_id"`
	Status   AgentStatus   `json:"status"`
	Sessions []SessionInfo `json:"sessions"`
}

// SessionInfo is one extension session as the operator UI lists it.
type SessionInfo struct {
	SessionID  string `json:"session_id"`
	ClientAddr string `json:"client_addr,omitempty"`
	StartedAt  string `json:"started_at"`      // RFC 3339
	Status     string `json:"status"`          // "active" until the socket closes
	State      string `json:"state,omitempty"` // last playback status: listening, playing, spelling, demo...
}

// EventPayload mirrors a session's status or caption event to the UI.
type EventPayload struct {
	AgentID   string          `json:"agent_id"`
	SessionID string          `json:"session_id,omitempty"`
	EventID   string          `json:"event_id"`
	Data      json.RawMessage `json:"data"`
}

type LogEndPayload struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id"`
}

// ConfigUpdatePayload replaces the settings used for new sessions. Keys
// are provider API keys by environment variable name; both parts are
// optional.
type ConfigUpdatePayload struct {
	Settings json.RawMessage   `json:"settings,omitempty"`
	Keys     map[string]string `json:"keys,omitempty"`
}

// RestartPipelinePayload closes every session; extensions reconnect and
// pick up the current settings.
type RestartPipelinePayload struct {
	Reason string `json:"reason,omitempty"`
}

// ShutdownPayload stops the agent. With a grace period the agent drains:
// running sessions may finish until it elapses.
type ShutdownPayload struct {
	Reason       string `json:"reason,omitempty"`
	GraceSeconds int    `json:"grace_seconds,omitempty"`
}

type AckPayload struct {
	AckedType MessageType `json:"acked_type"`
	OK        bool        `json:"ok"`
	Error     string      `json:"error,omitempty"`
}
