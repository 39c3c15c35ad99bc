// Package controlplane connects the agent outward to an operator UI. The UI
// receives heartbeats, session status, logs and playback events, and can
// push settings, change the default speed, restart sessions or shut the
// agent down.
package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"glosskit/core"
	"glosskit/protocol"
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultSendBufferSize    = 256
	writeTimeout             = 10 * time.Second
)

// ClientConfig configures the control plane WebSocket client.
type ClientConfig struct {
	ConnectURL        string
	AgentID           string
	Version           string
	ListenAddr        string
	Capabilities      []string
	Metadata          map[string]string
	Header            http.Header // Sent with the dial, e.g. for auth.
	HeartbeatInterval time.Duration
	// Sessions supplies heartbeat and status contents. Nil reports an idle
	// agent.
	Sessions *SessionTracker
	// DictionarySize reports the active dictionary's entry count.
	DictionarySize func() int
	Logger         *core.Logger
}

// Client is the agent-side WebSocket client. Outbound messages are queued
// and written by one goroutine; when the queue is full the oldest message
// is dropped.
type Client struct {
	config ClientConfig
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *core.Logger

	// Callbacks set by the agent before Connect. They run on the read loop.
	OnConfigUpdate    func(settings json.RawMessage, keys map[string]string) error
	OnSetSpeed        func(speed float64)
	OnRestartPipeline func(reason string)
	// OnShutdown receives the requested grace period. With zero grace the
	// client stops reading after the callback; otherwise it stays connected
	// so the agent can report draining.
	OnShutdown func(reason string, grace time.Duration)

	sendCh    chan []byte
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = core.GetLogger()
	}
	return &Client{
		config: cfg,
		logger: cfg.Logger.With(map[string]interface{}{"component": "controlplane"}),
		sendCh: make(chan []byte, defaultSendBufferSize),
		done:   make(chan struct{}),
	}
}

// Connect dials the control plane, registers the agent and starts the read,
// write and heartbeat loops. Cancelling ctx closes the connection.
func (c *Client) Connect(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("connecting to control plane", "url", c.config.ConnectURL)

	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.config.ConnectURL, c.config.Header)
	if err != nil {
		c.cancel()
		return fmt.Errorf("controlplane: dial %q: %w", c.config.ConnectURL, err)
	}
	c.conn = conn

	reg := protocol.RegisterPayload{
		AgentID:           c.config.AgentID,
		Version:           c.config.Version,
		ListenAddr:        c.config.ListenAddr,
		Capabilities:      c.config.Capabilities,
		DictionaryEntries: c.dictionarySize(),
		Metadata:          c.config.Metadata,
		Timestamp:         time.Now().UTC(),
	}
	if err := c.send(protocol.MsgRegister, reg); err != nil {
		conn.Close()
		c.cancel()
		return fmt.Errorf("controlplane: send register: %w", err)
	}
	c.logger.Info("registered with control plane", "agent_id", c.config.AgentID)

	go c.readLoop()
	go c.writeLoop()
	go c.heartbeatLoop()
	go func() {
		<-c.ctx.Done()
		c.Close()
	}()
	return nil
}

// SendLog sends a log entry for a session.
func (c *Client) SendLog(sessionID string, entry protocol.LogEntry) {
	c.enqueue(protocol.MsgLog, protocol.LogPayload{
		AgentID:   c.config.AgentID,
		SessionID: sessionID,
		Entry:     entry,
	})
}

// SendStatus reports the current sessions.
func (c *Client) SendStatus() {
	status, sessions := protocol.AgentIdle, []protocol.SessionInfo{}
	if c.config.Sessions != nil {
		status, sessions = c.config.Sessions.Snapshot()
	}
	c.enqueue(protocol.MsgStatus, protocol.StatusPayload{
		AgentID:  c.config.AgentID,
		Status:   status,
		Sessions: sessions,
	})
}

// SendEvent mirrors a session event as JSON.
func (c *Client) SendEvent(sessionID, eventID string, data json.RawMessage) {
	c.enqueue(protocol.MsgEvent, protocol.EventPayload{
		AgentID:   c.config.AgentID,
		SessionID: sessionID,
		EventID:   eventID,
		Data:      data,
	})
}

// SendLogEnd signals that a session's log stream has ended.
func (c *Client) SendLogEnd(sessionID string) {
	c.enqueue(protocol.MsgLogEnd, protocol.LogEndPayload{
		AgentID:   c.config.AgentID,
		SessionID: sessionID,
	})
}

// Wait blocks until the connection drops or the client is closed.
func (c *Client) Wait() {
	<-c.done
}

// Done is closed when the connection drops or the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.conn != nil {
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			c.conn.Close()
		}
	})
}

func (c *Client) dictionarySize() int {
	if c.config.DictionarySize == nil {
		return 0
	}
	return c.config.DictionarySize()
}

func (c *Client) send(msgType protocol.MessageType, payload interface{}) error {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) enqueue(msgType protocol.MessageType, payload interface{}) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		c.logger.Warn("failed to marshal message, dropping", "error", err, "type", string(msgType))
		return
	}
	select {
	case c.sendCh <- data:
	default:
		select {
		case <-c.sendCh:
		default:
		}
		select {
		case c.sendCh <- data:
		default:
		}
	}
}

func (c *Client) ack(msgType protocol.MessageType, err error) {
	payload := protocol.AckPayload{AckedType: msgType, OK: err == nil}
	if err != nil {
		payload.Error = err.Error()
	}
	c.enqueue(protocol.MsgAck, payload)
}

func (c *Client) readLoop() {
	defer func() {
		c.doneOnce.Do(func() { close(c.done) })
		c.cancel()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("control plane connection lost", "error", err)
			}
			return
		}

		msgType, payload, err := protocol.Unmarshal(data)
		if err != nil {
			c.logger.Warn("invalid message from control plane", "error", err)
			continue
		}
		if stop := c.dispatch(msgType, payload); stop {
			return
		}
	}
}

// dispatch handles one inbound message and reports whether the client
// should stop reading.
func (c *Client) dispatch(msgType protocol.MessageType, payload json.RawMessage) bool {
	switch msgType {
	case protocol.MsgConfigUpdate:
		p, err := protocol.UnmarshalPayload[protocol.ConfigUpdatePayload](payload)
		if err == nil && c.OnConfigUpdate != nil {
			err = c.OnConfigUpdate(p.Settings, p.Keys)
		}
		if err != nil {
			c.logger.Warn("config update rejected", "error", err)
		}
		c.ack(msgType, err)

	case protocol.MsgSetSpeed:
		p, err := protocol.UnmarshalPayload[protocol.SetSpeedPayload](payload)
		if err == nil && c.OnSetSpeed != nil {
			c.OnSetSpeed(p.Speed)
		}
		c.ack(msgType, err)

	case protocol.MsgRestartPipeline:
		p, _ := protocol.UnmarshalPayload[protocol.RestartPipelinePayload](payload)
		if c.OnRestartPipeline != nil {
			c.OnRestartPipeline(p.Reason)
		}
		c.ack(msgType, nil)

	case protocol.MsgShutdown:
		p, _ := protocol.UnmarshalPayload[protocol.ShutdownPayload](payload)
		reason := p.Reason
		if reason == "" {
			reason = "shutdown requested by control plane"
		}
		grace := time.Duration(p.GraceSeconds) * time.Second
		c.logger.Info("shutdown requested", "reason", reason, "grace", grace)
		if c.OnShutdown != nil {
			c.OnShutdown(reason, grace)
		}
		return grace <= 0

	default:
		c.logger.Warn("unknown message type from control plane", "type", string(msgType))
	}
	return false
}

func (c *Client) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("write to control plane failed", "error", err)
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hb := protocol.HeartbeatPayload{
				AgentID:           c.config.AgentID,
				Status:            protocol.AgentIdle,
				DictionaryEntries: c.dictionarySize(),
				Timestamp:         time.Now().UTC(),
			}
			if c.config.Sessions != nil {
				hb.Status, _ = c.config.Sessions.Snapshot()
				hb.ActiveSessions = c.config.Sessions.Len()
			}
			c.enqueue(protocol.MsgHeartbeat, hb)
		case <-c.ctx.Done():
			return
		}
	}
}
