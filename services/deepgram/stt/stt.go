// Package stt streams microphone audio to Deepgram's live transcription API.
package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"glosskit/core"
)

var ErrNotInitialized = errors.New("deepgram: service not initialized")

const writeWait = 5 * time.Second

// DeepgramSTTService implements the ISTTService interface for Deepgram's
// streaming STT. A dropped connection is redialled up to MaxReconnects
// times in a row before the failure is reported on the session's error
// channel; audio sent while reconnecting is discarded.
type DeepgramSTTService struct {
	config *DeepgramConfig
	logger *core.Logger
	dialer *websocket.Dialer

	ctx    context.Context
	cancel context.CancelFunc

	connMu sync.Mutex
	conn   *websocket.Conn

	finalChan   chan<- string
	interimChan chan<- string
	errorChan   chan<- error
}

// NewDeepgramSTTService creates a new Deepgram STT service instance.
// Use DefaultConfig() to get a config with sensible defaults and override
// only what you need.
func NewDeepgramSTTService(config *DeepgramConfig, logger *core.Logger) *DeepgramSTTService {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &DeepgramSTTService{
		config: config.withDefaults(),
		logger: logger.With(map[string]any{"service": "deepgram_stt"}),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (d *DeepgramSTTService) Init(ctx context.Context) error {
	if d.config.APIKey == "" {
		return errors.New("deepgram: api key is required")
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	return nil
}

func (d *DeepgramSTTService) Cleanup() error {
	if d.cancel != nil {
		d.cancel()
	}
	d.closeConnection(nil)
	return nil
}

// Reset asks Deepgram to flush the pending utterance as a final result.
func (d *DeepgramSTTService) Reset() error {
	return d.writeControl(finalizeMessage)
}

// StartTranscriptionSession dials Deepgram and starts reading results. A
// failed first dial is returned directly so the caller can fail over
// without waiting for reconnect attempts.
func (d *DeepgramSTTService) StartTranscriptionSession(
	finalChan chan<- string,
	interimChan chan<- string,
	errorChan chan<- error,
) error {
	if d.ctx == nil {
		return ErrNotInitialized
	}
	d.finalChan = finalChan
	d.interimChan = interimChan
	d.errorChan = errorChan

	conn, err := d.dial()
	if err != nil {
		return err
	}
	go d.runSession(conn)
	return nil
}

func (d *DeepgramSTTService) SendTranscriptionAudio(chunk core.AudioChunk) error {
	if chunk.Format != core.PCM {
		return fmt.Errorf("deepgram: expected pcm audio, got %s", chunk.Format)
	}
	d.connMu.Lock()
	defer d.connMu.Unlock()
	if d.conn == nil {
		return nil
	}
	_ = d.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := d.conn.WriteMessage(websocket.BinaryMessage, chunk.Data); err != nil {
		// The read loop sees the broken connection and redials.
		d.logger.Warn("failed to send audio", "error", err)
		_ = d.conn.Close()
	}
	return nil
}

func (d *DeepgramSTTService) dial() (*websocket.Conn, error) {
	listenURL, err := d.config.listenURL()
	if err != nil {
		return nil, err
	}
	header := http.Header{"Authorization": {"Token " + d.config.APIKey}}
	conn, resp, err := d.dialer.DialContext(d.ctx, listenURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram: connect: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("deepgram: connect: %w", err)
	}
	d.logger.Info("connected to deepgram", "model", d.config.Model)
	return conn, nil
}

func (d *DeepgramSTTService) runSession(conn *websocket.Conn) {
	failures := 0
	for {
		err := d.listen(conn)
		if d.ctx.Err() != nil {
			return
		}
		d.logger.Warn("deepgram connection lost", "error", err)

		for {
			failures++
			if failures > d.config.MaxReconnects {
				d.report(fmt.Errorf("deepgram: giving up after %d reconnect attempts: %w", d.config.MaxReconnects, err))
				return
			}
			select {
			case <-time.After(d.config.ReconnectDelay):
			case <-d.ctx.Done():
				return
			}
			conn, err = d.dial()
			if err == nil {
				failures = 0
				break
			}
			d.logger.Warn("deepgram reconnect failed", "attempt", failures, "error", err)
		}
	}
}

// listen owns conn until it fails or the service is cleaned up.
func (d *DeepgramSTTService) listen(conn *websocket.Conn) error {
	d.connMu.Lock()
	d.conn = conn
	d.connMu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		d.closeConnection(conn)
	}()
	go d.keepAlive(done)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := d.handleMessage(message); err != nil {
			d.logger.Warn("failed to handle deepgram message", "error", err)
		}
	}
}

func (d *DeepgramSTTService) handleMessage(message []byte) error {
	var base control
	if err := sonic.Unmarshal(message, &base); err != nil {
		return fmt.Errorf("parse message type: %w", err)
	}

	switch base.Type {
	case "Results":
		var result listenResults
		if err := sonic.Unmarshal(message, &result); err != nil {
			return fmt.Errorf("parse results: %w", err)
		}
		text := result.transcript()
		if text == "" {
			return nil
		}
		if result.final() {
			d.logger.Debug("final transcript", "text", text)
			d.deliver(d.finalChan, text)
		} else {
			d.deliver(d.interimChan, text)
		}
	case "Error":
		var e listenError
		if err := sonic.Unmarshal(message, &e); err != nil {
			return fmt.Errorf("parse error: %w", err)
		}
		d.logger.Error("deepgram reported an error", "description", e.Description, "message", e.Message)
	case "Metadata", "UtteranceEnd", "SpeechStarted":
	default:
		d.logger.Debug("ignoring deepgram message", "type", base.Type)
	}
	return nil
}

func (d *DeepgramSTTService) deliver(ch chan<- string, text string) {
	if ch == nil {
		return
	}
	select {
	case ch <- text:
	case <-d.ctx.Done():
	}
}

func (d *DeepgramSTTService) report(err error) {
	if d.errorChan == nil {
		return
	}
	select {
	case d.errorChan <- err:
	case <-d.ctx.Done():
	}
}

func (d *DeepgramSTTService) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(d.config.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if err := d.writeControl(keepAliveMessage); err != nil {
				d.logger.Debug("keep-alive failed", "error", err)
			}
		}
	}
}

func (d *DeepgramSTTService) writeControl(msg control) error {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		return fmt.Errorf("deepgram: marshal %s: %w", msg.Type, err)
	}
	d.connMu.Lock()
	defer d.connMu.Unlock()
	if d.conn == nil {
		return nil
	}
	_ = d.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return d.conn.WriteMessage(websocket.TextMessage, payload)
}

// closeConnection closes conn, or whichever connection is current when conn
// is nil, after asking Deepgram to close the stream.
func (d *DeepgramSTTService) closeConnection(conn *websocket.Conn) {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	if d.conn == nil || (conn != nil && conn != d.conn) {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if payload, err := sonic.Marshal(closeStreamMessage); err == nil {
		_ = d.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = d.conn.WriteMessage(websocket.TextMessage, payload)
	}
	_ = d.conn.Close()
	d.conn = nil
}
