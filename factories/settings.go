package factories

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"glosskit/transports/websocket"
)

// SessionAPIConfig describes an HTTP endpoint that returns a SessionConfig JSON payload.
// Called per session to allow dynamic configuration per user.
type SessionAPIConfig struct {
	// URL is the endpoint to request.
	URL string `json:"url"`
	// Method is the HTTP method. Defaults to "POST" when Body is set, "GET" otherwise.
	Method string `json:"method,omitempty"`
	// Headers are additional HTTP headers to include in the request.
	Headers map[string]string `json:"headers,omitempty"`
	// Body is an optional JSON body to send with the request.
	Body json.RawMessage `json:"body,omitempty"`
}

var sessionAPIClient = &http.Client{Timeout: 10 * time.Second}

// Fetch calls the configured endpoint and parses the response as a SessionConfig.
func (c *SessionAPIConfig) Fetch(ctx context.Context) (SessionConfig, error) {
	method := c.Method
	if method == "" {
		method = http.MethodGet
		if len(c.Body) > 0 {
			method = http.MethodPost
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL, bytes.NewReader(c.Body))
	if err != nil {
		return SessionConfig{}, fmt.Errorf("session api: %w", err)
	}
	if len(c.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := sessionAPIClient.Do(req)
	if err != nil {
		return SessionConfig{}, fmt.Errorf("session api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SessionConfig{}, fmt.Errorf("session api: unexpected status %d from %s", resp.StatusCode, c.URL)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return SessionConfig{}, fmt.Errorf("session api: read response: %w", err)
	}
	return SessionConfigFromJSON(data)
}

// SettingsConfig is the top-level config loaded from settings.json.
type SettingsConfig struct {
	// Server configures the extension-facing WebSocket endpoint.
	Server *websocket.Config `json:"server"`
	// SessionAPI, when set, is called per session to fetch the SessionConfig dynamically.
	SessionAPI *SessionAPIConfig `json:"session_api,omitempty"`
	// Session provides inline session config. Used when SessionAPI is unset.
	Session SessionConfig `json:"session_config"`
	// DictionaryPath points at a JSON word-to-gloss file that is watched for
	// changes. Empty uses the built-in vocabulary.
	DictionaryPath string `json:"dictionary_path,omitempty"`
	// MinFingerspellLength is the shortest unmapped word that is spelled.
	MinFingerspellLength int `json:"min_fingerspell_length,omitempty"`
	// SessionTimeoutSeconds caps a single session. Zero means no limit.
	SessionTimeoutSeconds int `json:"session_timeout_seconds,omitempty"`
}

// DefaultSettingsConfig returns a SettingsConfig pre-filled with defaults.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		Server:  websocket.DefaultConfig(),
		Session: DefaultSessionConfig(),
	}
}

// SettingsConfigFromJSON parses a JSON blob into a SettingsConfig. Fields
// absent from the JSON keep their defaults.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	if cfg.Server == nil {
		cfg.Server = websocket.DefaultConfig()
	}
	cfg.Session.normalize()
	return cfg, nil
}

// SettingsConfigFromFile reads and parses a SettingsConfig from a JSON file.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	return SettingsConfigFromJSON(data)
}

// InjectAPIKeys applies credentials to the inline session config. Call it
// once after loading.
func (s *SettingsConfig) InjectAPIKeys(keys APIKeys) {
	s.Session.InjectAPIKeys(keys)
}

// SessionConfigFor returns the config for a new session: fetched from the
// session API when configured, otherwise the inline one.
func (s SettingsConfig) SessionConfigFor(ctx context.Context, keys APIKeys) (SessionConfig, error) {
	if s.SessionAPI == nil {
		return s.Session, nil
	}
	cfg, err := s.SessionAPI.Fetch(ctx)
	if err != nil {
		return SessionConfig{}, err
	}
	cfg.InjectAPIKeys(keys)
	return cfg, nil
}
