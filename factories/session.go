package factories

import (
	"fmt"

	"github.com/bytedance/sonic"

	"glosskit/core"
	"glosskit/demo"
	"glosskit/gloss"
	glosshandler "glosskit/handlers/gloss"
	playbackhandler "glosskit/handlers/playback"
	stthandler "glosskit/handlers/stt"
)

// SessionSTTConfig bundles STT handler config with primary and optional fallback service factory configs.
type SessionSTTConfig struct {
	// HandlerConfig controls the audio format handed to the service.
	HandlerConfig stthandler.STTConfig `json:"handler"`
	// ServiceConfig selects and configures the primary STT provider.
	// Set exactly one provider field inside STTFactoryConfig.
	ServiceConfig STTFactoryConfig `json:"service"`
	// FallbackServiceConfigs is an ordered list of fallback providers tried if the primary fails.
	FallbackServiceConfigs []STTFactoryConfig `json:"fallbacks,omitempty"`
}

// DefaultSessionSTTConfig returns a SessionSTTConfig with sensible handler defaults.
// Populate ServiceConfig before calling BuildHandler or SessionConfig.BuildHandlers.
func DefaultSessionSTTConfig() SessionSTTConfig {
	return SessionSTTConfig{
		HandlerConfig: stthandler.DefaultConfig(),
	}
}

// BuildHandler constructs an STTHandler with primary and fallback services
// wired up. keyterms bias every provider towards the gloss vocabulary.
func (c SessionSTTConfig) BuildHandler(keyterms []string, logger *core.Logger) (*stthandler.STTHandler, error) {
	primary, err := BuildSTTService(c.ServiceConfig.withKeyterms(keyterms), logger)
	if err != nil {
		return nil, fmt.Errorf("stt primary service: %w", err)
	}
	handler := stthandler.NewSTTHandler(primary, c.HandlerConfig, logger)
	for i, fbCfg := range c.FallbackServiceConfigs {
		fb, err := BuildSTTService(fbCfg.withKeyterms(keyterms), logger)
		if err != nil {
			return nil, fmt.Errorf("stt fallback[%d]: %w", i, err)
		}
		handler.WithBackupService(fb)
	}
	return handler, nil
}

// SessionConfig configures the per-connection pipeline.
type SessionConfig struct {
	// STT enables server-side transcription of streamed audio. When nil the
	// client is expected to send transcripts itself.
	STT      *SessionSTTConfig      `json:"stt,omitempty"`
	Gloss    glosshandler.Config    `json:"gloss"`
	Playback playbackhandler.Config `json:"playback"`
}

// DefaultSessionConfig returns a SessionConfig without server-side STT.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Gloss:    glosshandler.DefaultConfig(),
		Playback: playbackhandler.DefaultConfig(),
	}
}

// SessionConfigFromJSON parses a JSON blob into a SessionConfig, starting from
// DefaultSessionConfig so that any fields absent from the JSON retain their defaults.
// API keys should be injected after loading via env vars rather than
// stored in config files.
func SessionConfigFromJSON(data []byte) (SessionConfig, error) {
	cfg := DefaultSessionConfig()
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return SessionConfig{}, fmt.Errorf("session config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *SessionConfig) normalize() {
	if c.STT != nil && c.STT.HandlerConfig == (stthandler.STTConfig{}) {
		c.STT.HandlerConfig = stthandler.DefaultConfig()
	}
}

// APIKeys holds API credentials for the transcription providers.
type APIKeys struct {
	Deepgram string
	OpenAI   string // Whisper transcription.
}

// InjectAPIKeys applies credentials to the primary and fallback STT
// providers that do not carry their own.
func (c *SessionConfig) InjectAPIKeys(keys APIKeys) {
	if c.STT == nil {
		return
	}
	c.STT.ServiceConfig.injectAPIKeys(keys)
	for i := range c.STT.FallbackServiceConfigs {
		c.STT.FallbackServiceConfigs[i].injectAPIKeys(keys)
	}
}

// SessionHandlers holds the session's processing handlers, in pipeline order
// between transport input and output:
//
//	TransportInput → [STT] → Gloss → Playback → TransportOutput
type SessionHandlers struct {
	STT      *stthandler.STTHandler // nil without server-side STT
	Gloss    *glosshandler.GlossHandler
	Playback *playbackhandler.PlaybackHandler
}

// Handlers lists the non-nil handlers in pipeline order.
func (h *SessionHandlers) Handlers() []core.IHandler {
	var out []core.IHandler
	if h.STT != nil {
		out = append(out, h.STT)
	}
	return append(out, h.Gloss, h.Playback)
}

// BuildHandlers constructs all handlers described by the SessionConfig. The
// resolver is shared with other sessions so dictionary reloads reach every
// connection. A nil clock uses the playback handler's own event loop clock.
func (c SessionConfig) BuildHandlers(resolver *gloss.Resolver, script demo.Script, clock core.Clock, logger *core.Logger) (*SessionHandlers, error) {
	if resolver == nil {
		return nil, fmt.Errorf("session: resolver is required")
	}
	handlers := &SessionHandlers{
		Gloss:    glosshandler.NewGlossHandler(resolver, c.Gloss, clock, logger),
		Playback: playbackhandler.NewPlaybackHandler(c.Playback, script, clock, logger),
	}
	if c.STT != nil {
		stt, err := c.STT.BuildHandler(resolver.Dictionary().Words(), logger)
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		handlers.STT = stt
	}
	return handlers, nil
}
