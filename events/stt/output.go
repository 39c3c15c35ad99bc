package stt

// Transcript sources.
const (
	SourceService = "service" // Server-side transcription service.
	SourceClient  = "client"  // Recognized by the extension and sent as text.
)

type STTInterimOutputEvent struct {
	Text   string
	Source string
}

func (e *STTInterimOutputEvent) GetId() string {
	return "stt.interim_output"
}

type STTFinalOutputEvent struct {
	Text   string
	Source string
}

func (e *STTFinalOutputEvent) GetId() string {
	return "stt.final_output"
}
