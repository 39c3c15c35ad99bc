package gloss

import "glosskit/gloss"

type Config struct {
	Cooldown gloss.CooldownConfig `json:"cooldown"`
	// DispatchInterim dispatches words from interim transcripts as they
	// arrive instead of waiting for the final transcript.
	DispatchInterim bool `json:"dispatch_interim"`
	// EchoTranscripts mirrors every transcript back to the client.
	EchoTranscripts bool `json:"echo_transcripts"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Cooldown:        gloss.DefaultCooldownConfig(),
		DispatchInterim: true,
		EchoTranscripts: true,
	}
}
