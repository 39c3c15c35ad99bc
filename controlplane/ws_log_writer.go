package controlplane

import (
	"time"

	"glosskit/core"
	"glosskit/protocol"
)

// WSLogWriter implements core.LogWriter by sending a session's log entries
// over the control plane connection.
type WSLogWriter struct {
	client    *Client
	sessionID string
	minLevel  core.Level
}

// NewWSLogWriter creates a LogWriter that ships entries at minLevel and
// above to the control plane.
func NewWSLogWriter(client *Client, sessionID string, minLevel core.Level) *WSLogWriter {
	return &WSLogWriter{
		client:    client,
		sessionID: sessionID,
		minLevel:  minLevel,
	}
}

func (w *WSLogWriter) Write(level, msg string, attrs map[string]interface{}) {
	if core.ParseLevel(level) < w.minLevel {
		return
	}
	w.client.SendLog(w.sessionID, protocol.LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Attrs:     attrs,
	})
}

// Close signals the end of the session's log stream.
func (w *WSLogWriter) Close() {
	w.client.SendLogEnd(w.sessionID)
}
