package factories

import (
	"context"
	"fmt"
	"sync"

	"glosskit/core"
	"glosskit/demo"
	"glosskit/gloss"
	"glosskit/handlers/transport"
)

// SessionBuilder assembles the handler chain for each client connection:
//
//	TransportInput → [STT] → Gloss → Playback → TransportOutput
type SessionBuilder struct {
	Settings SettingsConfig
	Resolver *gloss.Resolver // Shared by every session.
	APIKeys  APIKeys
	Script   demo.Script // Nil uses demo.DefaultScript.
	// OnOutput, when set, observes every event written to a client.
	OnOutput func(sessionID string, event core.IExternalOutputEvent)
	Logger   *core.Logger

	mu sync.RWMutex
}

// UpdateSettings swaps the settings used for sessions built afterwards.
// Running sessions keep theirs.
func (b *SessionBuilder) UpdateSettings(settings SettingsConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Settings = settings
}

// CurrentSettings returns the settings new sessions are built with.
func (b *SessionBuilder) CurrentSettings() SettingsConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.Settings
}

// Build implements HandlerBuilder.
func (b *SessionBuilder) Build(svc transport.ITransportService, ctx context.Context) ([]core.IHandler, error) {
	logger := core.SessionLoggerFromContext(ctx)
	if logger == nil {
		logger = b.Logger
	}
	if logger == nil {
		logger = core.GetLogger()
	}

	settings := b.CurrentSettings()
	resolver := b.Resolver
	if resolver == nil {
		resolver = gloss.NewResolver(nil, settings.MinFingerspellLength)
	}

	cfg, err := settings.SessionConfigFor(ctx, b.APIKeys)
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	session, err := cfg.BuildHandlers(resolver, b.Script, nil, logger)
	if err != nil {
		return nil, err
	}

	var transportConfig transport.TransportConfig
	if b.OnOutput != nil {
		sessionID := core.SessionIDFromContext(ctx)
		transportConfig.OnOutput = func(event core.IExternalOutputEvent) {
			b.OnOutput(sessionID, event)
		}
	}
	wrapper := transport.NewTransportHandlerWrapper(svc, transportConfig, logger)

	handlers := []core.IHandler{wrapper.GetInputHandler()}
	handlers = append(handlers, session.Handlers()...)
	return append(handlers, wrapper.GetOutputHandler()), nil
}
