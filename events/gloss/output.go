package gloss

import "glosskit/gloss"

// WordDetectedEvent is sent to the client for every word whose token was
// accepted by the playback queue.
type WordDetectedEvent struct {
	Word string
}

func (e *WordDetectedEvent) GetId() string   { return "gloss.word_detected" }
func (e *WordDetectedEvent) ExternalOutput() {}

// TranscriptUpdateEvent mirrors the transcript back to the client caption.
type TranscriptUpdateEvent struct {
	Text  string
	Final bool
}

func (e *TranscriptUpdateEvent) GetId() string   { return "gloss.transcript_update" }
func (e *TranscriptUpdateEvent) ExternalOutput() {}

// DispatchRequestEvent asks the playback stage to enqueue Token. It only
// exists for tokens that passed dedup and cooldown.
type DispatchRequestEvent struct {
	Token gloss.DispatchToken
	Word  string
}

func (e *DispatchRequestEvent) GetId() string { return "gloss.dispatch_request" }
