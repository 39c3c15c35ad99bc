package core

import "time"

type AudioEncodingFormat int

const (
	PCM  AudioEncodingFormat = iota // 16-bit little endian linear PCM.
	ULAW                            // G.711 μ-law.
	ALAW                            // G.711 A-law.
)

func (f AudioEncodingFormat) String() string {
	switch f {
	case PCM:
		return "pcm"
	case ULAW:
		return "ulaw"
	case ALAW:
		return "alaw"
	default:
		return "unknown"
	}
}

// ParseAudioEncodingFormat maps a wire name to a format. Unknown names map to PCM.
func ParseAudioEncodingFormat(name string) AudioEncodingFormat {
	switch name {
	case "ulaw", "mulaw", "pcmu":
		return ULAW
	case "alaw", "pcma":
		return ALAW
	default:
		return PCM
	}
}

type AudioChunk struct {
	Data       []byte              // Raw audio data.
	SampleRate int                 // Sample rate of the audio data.
	Channels   int                 // Number of audio channels.
	Format     AudioEncodingFormat // Encoding format of the audio data.
	Timestamp  time.Time           // Capture time of the chunk.
}

// GetDurationInSeconds returns the playback length of the chunk.
func (ac *AudioChunk) GetDurationInSeconds() float64 {
	if ac.SampleRate == 0 || ac.Channels == 0 {
		return 0.0
	}
	bytesPerSample := 2
	if ac.Format == ULAW || ac.Format == ALAW {
		bytesPerSample = 1
	}
	totalSamples := len(ac.Data) / (bytesPerSample * ac.Channels)
	return float64(totalSamples) / float64(ac.SampleRate)
}

// RawData is one frame as it travels over a transport: a JSON text message
// or a binary audio frame.
type RawData struct {
	Data   []byte
	Binary bool
}
