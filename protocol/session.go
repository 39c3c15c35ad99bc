package protocol

// Session channel messages exchanged with the browser extension. The
// envelope is the same one the control plane uses; binary frames on the
// session channel carry captured audio and have no envelope.
const (
	// Extension -> server
	MsgTranscript     MessageType = "transcript"
	MsgGlossFinished  MessageType = "gloss_finished"
	MsgLetterFinished MessageType = "letter_finished"
	MsgClipMissing    MessageType = "clip_missing"
	MsgSetSpeed       MessageType = "set_speed"
	MsgStartDemo      MessageType = "start_demo"
	MsgStartLive      MessageType = "start_live"
	MsgCaptureError   MessageType = "capture_error"
	MsgConfigure      MessageType = "configure"

	// Both directions: extension -> server halts everything, server ->
	// extension halts the player.
	MsgStop MessageType = "stop"

	// Server -> extension. Session state uses MsgStatus.
	MsgPlay             MessageType = "play"
	MsgPlayLetter       MessageType = "play_letter"
	MsgWordDetected     MessageType = "word_detected"
	MsgTranscriptUpdate MessageType = "transcript_update"
	MsgDemoCaption      MessageType = "demo_caption"
	MsgDemoComplete     MessageType = "demo_complete"
)

// --- Extension -> server payloads ---

type TranscriptPayload struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

type GlossFinishedPayload struct {
	Gloss  string `json:"gloss"`
	PlayID string `json:"play_id,omitempty"`
}

// ClipMissingPayload has the same shape as GlossFinishedPayload.
type ClipMissingPayload = GlossFinishedPayload

type LetterFinishedPayload struct {
	PlayID string `json:"play_id,omitempty"`
}

type SetSpeedPayload struct {
	Speed float64 `json:"speed"`
}

type CaptureErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// AudioFormatPayload describes the binary frames that follow.
type AudioFormatPayload struct {
	Encoding   string `json:"encoding"` // "pcm", "ulaw" or "alaw"
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type ConfigurePayload struct {
	Language string              `json:"language,omitempty"`
	Avatar   string              `json:"avatar,omitempty"`
	Source   string              `json:"source,omitempty"` // "mic" or "tab-audio"
	Speed    float64             `json:"speed,omitempty"`
	Audio    *AudioFormatPayload `json:"audio,omitempty"`
}

// --- Server -> extension payloads ---

type PlayPayload struct {
	Gloss  string  `json:"gloss"`
	Speed  float64 `json:"speed"`
	PlayID string  `json:"play_id"`
	Avatar string  `json:"avatar,omitempty"`
}

type PlayLetterPayload struct {
	Letter string `json:"letter"`
	Index  int    `json:"index"`
	Word   string `json:"word"`
	PlayID string `json:"play_id"`
}

type WordDetectedPayload struct {
	Word string `json:"word"`
}

type TranscriptUpdatePayload struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

type SessionStatusPayload struct {
	State   string `json:"state"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type DemoCaptionPayload struct {
	Caption string `json:"caption"`
	Scene   int    `json:"scene"`
}
