package transport

import "glosskit/core"

type SerializerService interface {
	// Deserialize decodes one inbound frame into zero or more events.
	Deserialize(data core.RawData) ([]core.IEvent, error)
	// Serialize encodes an outbound event. ok is false for events that
	// have no wire form.
	Serialize(event core.IExternalOutputEvent) (data core.RawData, ok bool, err error)
}

type TransportConfig struct {
	Serializer SerializerService
	// OnOutput observes every event written to the client, e.g. to mirror
	// it to the control plane.
	OnOutput func(event core.IExternalOutputEvent)
}

// AudioFormat describes the binary frames a client streams before it sends
// its own configure message.
type AudioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// DefaultAudioFormat returns an AudioFormat with sensible defaults
func DefaultAudioFormat() AudioFormat {
	return AudioFormat{
		Encoding:   "pcm",
		SampleRate: 16000,
		Channels:   1,
	}
}
