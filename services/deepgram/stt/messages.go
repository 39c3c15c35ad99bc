package stt

// Subset of the Deepgram listen v1 message schema that the service reads.

type listenResults struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize,omitempty"`
	Channel      struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (r listenResults) final() bool {
	return r.IsFinal || r.SpeechFinal || r.FromFinalize
}

func (r listenResults) transcript() string {
	if len(r.Channel.Alternatives) == 0 {
		return ""
	}
	return r.Channel.Alternatives[0].Transcript
}

type listenError struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

// control is the shape of every client-to-server control message:
// KeepAlive, Finalize and CloseStream.
type control struct {
	Type string `json:"type"`
}

var (
	keepAliveMessage   = control{Type: "KeepAlive"}
	finalizeMessage    = control{Type: "Finalize"}
	closeStreamMessage = control{Type: "CloseStream"}
)
