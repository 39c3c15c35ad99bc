package transport

import "glosskit/core"

// TransportAudioInputEvent carries one binary audio frame captured by the
// extension (microphone or tab audio).
type TransportAudioInputEvent struct {
	AudioChunk core.AudioChunk
}

func (e *TransportAudioInputEvent) GetId() string {
	return "serializer.audio_input"
}
