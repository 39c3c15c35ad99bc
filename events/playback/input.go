package playback

// GlossFinishedEvent is the player's completion signal for a gloss clip.
type GlossFinishedEvent struct {
	Gloss  string
	PlayID string
}

func (e *GlossFinishedEvent) GetId() string  { return "playback.gloss_finished" }
func (e *GlossFinishedEvent) ExternalInput() {}

// LetterFinishedEvent is the player's completion signal for one
// fingerspelled letter.
type LetterFinishedEvent struct {
	PlayID string
}

func (e *LetterFinishedEvent) GetId() string  { return "playback.letter_finished" }
func (e *LetterFinishedEvent) ExternalInput() {}

// ClipMissingEvent reports that the player has no animation for Gloss.
type ClipMissingEvent struct {
	Gloss  string
	PlayID string
}

func (e *ClipMissingEvent) GetId() string  { return "playback.clip_missing" }
func (e *ClipMissingEvent) ExternalInput() {}
