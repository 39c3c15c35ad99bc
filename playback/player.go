package playback

import (
	"errors"
	"time"
)

// ErrClipNotFound is returned by a Player that has no animation loaded for
// the requested gloss. The scheduler recovers after Config.MissingClipDelay.
var ErrClipNotFound = errors.New("playback: clip not found")

// PlayCommand asks the player to run one gloss clip.
type PlayCommand struct {
	Gloss  string
	Speed  float64
	PlayID string
}

// LetterCommand asks the player to show one fingerspelled letter.
type LetterCommand struct {
	Letter string
	Index  int
	Word   string
	PlayID string
}

// Player is the external animation sink. Every call is fire-and-forget;
// completion is reported back through Scheduler.GlossFinished and
// Scheduler.LetterFinished.
type Player interface {
	Play(cmd PlayCommand) error
	PlayLetter(cmd LetterCommand) error
	Stop() error
}

// ClipDurationProvider is implemented by players that know how long a clip
// runs. The scheduler uses it to size the unresponsive-player fallback.
type ClipDurationProvider interface {
	ClipDuration(gloss string) (time.Duration, bool)
}
