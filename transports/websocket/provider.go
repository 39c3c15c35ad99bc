package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"glosskit/core"
	"glosskit/handlers/transport"
)

type session struct {
	service *WebSocketService
	cancel  context.CancelFunc
}

// WebSocketTransportProvider implements transport.ITransportProvider for
// browser extension sessions. Every upgraded connection runs the job
// handler once, on its own goroutine, until the connection ends.
type WebSocketTransportProvider struct {
	config     *Config
	logger     *core.Logger
	server     *http.Server
	upgrader   websocket.Upgrader
	jobHandler func(svc transport.ITransportService, ctx context.Context) error
	mu         sync.RWMutex
	isRunning  bool

	sessions   map[string]*session
	sessionsMu sync.RWMutex

	// SessionLogWriter optionally adds a log destination per session, such
	// as the control plane.
	SessionLogWriter func(sessionID string) core.LogWriter
}

func NewWebSocketTransportProvider(config *Config, logger *core.Logger) *WebSocketTransportProvider {
	if config == nil {
		config = DefaultConfig()
	}
	config = config.withDefaults()
	if logger == nil {
		logger = core.GetLogger()
	}
	p := &WebSocketTransportProvider{
		config:   config,
		logger:   logger.With(map[string]any{"component": "websocket_provider"}),
		sessions: make(map[string]*session),
	}
	p.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     p.checkOrigin,
	}
	return p
}

// Handler returns the HTTP handler serving sessions and health checks.
func (p *WebSocketTransportProvider) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(p.config.Path, p.handleWebSocket)
	mux.HandleFunc("/health", p.handleHealth)
	return mux
}

func (p *WebSocketTransportProvider) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("websocket provider already running")
	}

	p.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", p.config.Port),
		Handler: p.Handler(),
	}
	server := p.server
	go func() {
		var err error
		if p.config.EnableTLS {
			err = server.ListenAndServeTLS(p.config.TLSCertFile, p.config.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("session server failed", "error", err)
		}
	}()

	p.isRunning = true
	p.logger.Info("session server started", "port", p.config.Port, "path", p.config.Path)
	return nil
}

func (p *WebSocketTransportProvider) Stop() error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	server := p.server
	p.isRunning = false
	p.mu.Unlock()

	p.CloseAll("server shutting down")
	if server != nil {
		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("websocket provider: shutdown: %w", err)
		}
	}
	return nil
}

func (p *WebSocketTransportProvider) RegisterJobHandler(
	handler func(svc transport.ITransportService, ctx context.Context) error,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	p.jobHandler = handler
	return nil
}

// CloseAll ends every active session and reports how many were closed.
// Clients are expected to reconnect.
func (p *WebSocketTransportProvider) CloseAll(reason string) int {
	p.sessionsMu.RLock()
	active := make([]*session, 0, len(p.sessions))
	for _, s := range p.sessions {
		active = append(active, s)
	}
	p.sessionsMu.RUnlock()

	for _, s := range active {
		s.cancel()
		s.service.Close(websocket.CloseServiceRestart, reason)
	}
	return len(active)
}

func (p *WebSocketTransportProvider) ActiveSessions() int {
	p.sessionsMu.RLock()
	defer p.sessionsMu.RUnlock()
	return len(p.sessions)
}

func (p *WebSocketTransportProvider) checkOrigin(r *http.Request) bool {
	if len(p.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range p.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	p.logger.Warn("rejected session origin", "origin", origin)
	return false
}

func (p *WebSocketTransportProvider) handleHealth(w http.ResponseWriter, r *http.Request) {
	body, err := sonic.Marshal(map[string]any{
		"status":   "ok",
		"sessions": p.ActiveSessions(),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (p *WebSocketTransportProvider) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	jobHandler := p.jobHandler
	p.mu.RUnlock()
	if jobHandler == nil {
		http.Error(w, "no session handler registered", http.StatusServiceUnavailable)
		return
	}

	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	sessionID := uuid.NewString()
	logger, closeLogs := p.sessionLogger(sessionID, conn.RemoteAddr().String())
	defer closeLogs()

	svc := NewWebSocketService(conn, p.config, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = core.ContextWithSessionID(ctx, sessionID)
	ctx = core.ContextWithSessionLogger(ctx, logger)

	p.sessionsMu.Lock()
	p.sessions[sessionID] = &session{service: svc, cancel: cancel}
	p.sessionsMu.Unlock()
	defer func() {
		p.sessionsMu.Lock()
		delete(p.sessions, sessionID)
		p.sessionsMu.Unlock()
		svc.Close(websocket.CloseNormalClosure, "session ended")
	}()

	logger.Info("session started", "remote", conn.RemoteAddr().String())
	if err := jobHandler(svc, ctx); err != nil {
		logger.Error("session failed", "error", err)
		return
	}
	logger.Info("session ended")
}

// sessionLogger builds the per-session logger. Entries go to the base
// logger plus the session log file and any extra writer.
func (p *WebSocketTransportProvider) sessionLogger(sessionID, remote string) (*core.Logger, func()) {
	var writers core.MultiLogWriter
	if p.config.LogDir != "" {
		fw, err := core.NewSessionLogWriter(p.config.LogDir, sessionID, remote)
		if err != nil {
			p.logger.Warn("session log file unavailable", "error", err)
		} else {
			writers = append(writers, fw)
		}
	}
	if p.SessionLogWriter != nil {
		if w := p.SessionLogWriter(sessionID); w != nil {
			writers = append(writers, w)
		}
	}

	base := p.logger
	if len(writers) > 0 {
		base = core.NewSessionLogger(core.GetLogger(), writers)
	}
	return base.With(map[string]any{"session_id": sessionID}), writers.Close
}
