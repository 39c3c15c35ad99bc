package stt

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// DeepgramConfig holds configuration options for Deepgram streaming STT
type DeepgramConfig struct {
	APIKey         string            `json:"api_key"`
	BaseURL        string            `json:"base_url"`
	Model          string            `json:"model"`
	Language       string            `json:"language"`
	InterimResults bool              `json:"interim_results"`
	Punctuate      bool              `json:"punctuate"`
	SmartFormat    bool              `json:"smart_format"`
	Numerals       bool              `json:"numerals"`
	EndpointingMs  int               `json:"endpointing_ms"` // 0 leaves Deepgram's default.
	UtteranceEndMs int               `json:"utterance_end_ms"`
	Keyterms       []string          `json:"keyterms"` // Boosted vocabulary, usually the gloss dictionary words.
	Extra          map[string]string `json:"extra"`

	SampleRate        int           `json:"sample_rate"`
	MaxReconnects     int           `json:"max_reconnects"` // Consecutive failures before the session is reported dead.
	ReconnectDelay    time.Duration `json:"reconnect_delay"`
	KeepAliveInterval time.Duration `json:"keep_alive_interval"`
}

// DefaultConfig returns a default configuration for Deepgram STT
func DefaultConfig() *DeepgramConfig {
	return &DeepgramConfig{
		BaseURL:           "wss://api.deepgram.com",
		Model:             "nova-2",
		InterimResults:    true,
		Punctuate:         true,
		SmartFormat:       true,
		SampleRate:        16000,
		MaxReconnects:     3,
		ReconnectDelay:    2 * time.Second,
		KeepAliveInterval: 8 * time.Second,
	}
}

func (c *DeepgramConfig) withDefaults() *DeepgramConfig {
	defaults := DefaultConfig()
	out := *c
	if out.BaseURL == "" {
		out.BaseURL = defaults.BaseURL
	}
	if out.Model == "" {
		out.Model = defaults.Model
	}
	if out.SampleRate <= 0 {
		out.SampleRate = defaults.SampleRate
	}
	if out.MaxReconnects <= 0 {
		out.MaxReconnects = defaults.MaxReconnects
	}
	if out.ReconnectDelay <= 0 {
		out.ReconnectDelay = defaults.ReconnectDelay
	}
	if out.KeepAliveInterval <= 0 {
		out.KeepAliveInterval = defaults.KeepAliveInterval
	}
	return &out
}

// listenURL builds the /v1/listen URL. Audio is always streamed as 16-bit
// mono PCM.
func (c *DeepgramConfig) listenURL() (string, error) {
	base, err := url.Parse(c.BaseURL + "/v1/listen")
	if err != nil {
		return "", fmt.Errorf("deepgram: parse base url: %w", err)
	}

	q := base.Query()
	q.Set("model", c.Model)
	if c.Language != "" {
		q.Set("language", c.Language)
	}
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(c.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", strconv.FormatBool(c.InterimResults))
	q.Set("punctuate", strconv.FormatBool(c.Punctuate))
	q.Set("smart_format", strconv.FormatBool(c.SmartFormat))
	q.Set("numerals", strconv.FormatBool(c.Numerals))
	if c.EndpointingMs > 0 {
		q.Set("endpointing", strconv.Itoa(c.EndpointingMs))
	}
	if c.UtteranceEndMs > 0 {
		q.Set("utterance_end_ms", strconv.Itoa(c.UtteranceEndMs))
	}
	for _, term := range c.Keyterms {
		q.Add("keyterm", term)
	}
	for key, value := range c.Extra {
		q.Set(key, value)
	}

	base.RawQuery = q.Encode()
	return base.String(), nil
}
