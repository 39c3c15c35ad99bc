package playback

import "time"

type SpellMode string

const (
	// SpellModeClosedLoop waits for a letter-finished signal, bounded by
	// MaxLetterWait per letter.
	SpellModeClosedLoop SpellMode = "closed_loop"
	// SpellModeOpenLoop sends letters every LetterInterval and ignores
	// letter-finished signals.
	SpellModeOpenLoop SpellMode = "open_loop"
)

type Config struct {
	SpellMode           SpellMode     `json:"spell_mode"`
	LetterInterval      time.Duration `json:"letter_interval"`       // Open-loop letter spacing at speed 1.0.
	MaxLetterWait       time.Duration `json:"max_letter_wait"`       // Closed-loop per-letter bound at speed 1.0.
	MissingClipDelay    time.Duration `json:"missing_clip_delay"`    // Advance delay when the player has no clip.
	DefaultClipDuration time.Duration `json:"default_clip_duration"` // Expected clip length when the player does not say.
	MaxWaitBuffer       time.Duration `json:"max_wait_buffer"`       // Added to the expected clip length before force-advancing.
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		SpellMode:           SpellModeClosedLoop,
		LetterInterval:      400 * time.Millisecond,
		MaxLetterWait:       800 * time.Millisecond,
		MissingClipDelay:    600 * time.Millisecond,
		DefaultClipDuration: 2500 * time.Millisecond,
		MaxWaitBuffer:       1500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SpellMode != SpellModeOpenLoop && c.SpellMode != SpellModeClosedLoop {
		c.SpellMode = d.SpellMode
	}
	if c.LetterInterval <= 0 {
		c.LetterInterval = d.LetterInterval
	}
	if c.MaxLetterWait <= 0 {
		c.MaxLetterWait = d.MaxLetterWait
	}
	if c.MissingClipDelay <= 0 {
		c.MissingClipDelay = d.MissingClipDelay
	}
	if c.DefaultClipDuration <= 0 {
		c.DefaultClipDuration = d.DefaultClipDuration
	}
	if c.MaxWaitBuffer < 0 {
		c.MaxWaitBuffer = d.MaxWaitBuffer
	}
	return c
}
