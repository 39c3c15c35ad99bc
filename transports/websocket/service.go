package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"glosskit/core"
)

var ErrClosed = errors.New("websocket: session closed")

// WebSocketService is one extension session on an upgraded connection.
type WebSocketService struct {
	conn   *websocket.Conn
	config *Config
	logger *core.Logger

	mu        sync.Mutex // serializes writes
	closeOnce sync.Once
	done      chan struct{}
}

func NewWebSocketService(conn *websocket.Conn, config *Config, logger *core.Logger) *WebSocketService {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &WebSocketService{
		conn:   conn,
		config: config.withDefaults(),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Init starts the keepalive pinger for the lifetime of ctx.
func (ws *WebSocketService) Init(ctx context.Context) error {
	if ws.conn == nil {
		return ErrClosed
	}
	go ws.pingLoop(ctx)
	return nil
}

func (ws *WebSocketService) Cleanup() error {
	return ws.Close(websocket.CloseNormalClosure, "session ended")
}

func (ws *WebSocketService) Reset() error {
	return nil
}

// Connect is a no-op since the connection is upgraded by the provider.
func (ws *WebSocketService) Connect() error {
	select {
	case <-ws.done:
		return ErrClosed
	default:
	}
	if ws.conn == nil {
		return ErrClosed
	}
	return nil
}

func (ws *WebSocketService) RemoteAddr() string {
	if ws.conn == nil {
		return ""
	}
	return ws.conn.RemoteAddr().String()
}

func (ws *WebSocketService) SendRawOutput(data core.RawData) error {
	msgType := websocket.TextMessage
	if data.Binary {
		msgType = websocket.BinaryMessage
	}
	return ws.write(msgType, data.Data)
}

func (ws *WebSocketService) write(msgType int, data []byte) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	select {
	case <-ws.done:
		return ErrClosed
	default:
	}
	ws.conn.SetWriteDeadline(time.Now().Add(ws.config.WriteWait))
	return ws.conn.WriteMessage(msgType, data)
}

// StartReceiving reads frames until the connection ends. Close frames and
// a local Close end it silently; anything else is reported on errorChan.
func (ws *WebSocketService) StartReceiving(outputChan chan<- core.RawData, errorChan chan<- error) {
	ws.conn.SetReadLimit(ws.config.MaxMessageSize)
	ws.conn.SetReadDeadline(time.Now().Add(ws.config.PongWait))
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(ws.config.PongWait))
	})

	for {
		msgType, msg, err := ws.conn.ReadMessage()
		if err != nil {
			select {
			case <-ws.done:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			errorChan <- fmt.Errorf("websocket: read: %w", err)
			return
		}
		switch msgType {
		case websocket.TextMessage:
			outputChan <- core.RawData{Data: msg}
		case websocket.BinaryMessage:
			outputChan <- core.RawData{Data: msg, Binary: true}
		}
	}
}

func (ws *WebSocketService) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(ws.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ws.done:
			return
		case <-ticker.C:
			if err := ws.write(websocket.PingMessage, nil); err != nil {
				ws.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// Close sends a close frame and closes the connection. Later calls do
// nothing.
func (ws *WebSocketService) Close(code int, reason string) error {
	var err error
	ws.closeOnce.Do(func() {
		if ws.conn == nil {
			close(ws.done)
			return
		}
		ws.mu.Lock()
		close(ws.done)
		deadline := time.Now().Add(ws.config.WriteWait)
		_ = ws.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		ws.mu.Unlock()
		err = ws.conn.Close()
	})
	return err
}
