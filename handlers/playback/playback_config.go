package playback

import (
	"time"

	"glosskit/demo"
	"glosskit/playback"
)

type Config struct {
	Scheduler       playback.Config `json:"scheduler"`
	Demo            demo.Config     `json:"demo"`
	DefaultSpeed    float64         `json:"default_speed"`     // Initial speed factor until the client sets one.
	Avatar          string          `json:"avatar"`            // Passed through in play commands.
	ClipDurationsMs map[string]int  `json:"clip_durations_ms"` // Known clip lengths, sizing the max-wait fallback.
	KnownClipsOnly  bool            `json:"known_clips_only"`  // Treat glosses missing from ClipDurationsMs as missing clips.
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Scheduler:    playback.DefaultConfig(),
		Demo:         demo.DefaultConfig(),
		DefaultSpeed: 1.0,
	}
}

func (c Config) clipDurations() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.ClipDurationsMs))
	for g, ms := range c.ClipDurationsMs {
		if ms > 0 {
			out[g] = time.Duration(ms) * time.Millisecond
		}
	}
	return out
}
