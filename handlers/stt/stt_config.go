package stt

import "glosskit/core"

type STTConfig struct {
	RequiredSampleRate int    `json:"required_sample_rate"` // Sample rate the transcription service expects, in Hz.
	RequiredChannels   int    `json:"required_channels"`
	RequiredEncoding   string `json:"required_encoding"` // "pcm", "ulaw" or "alaw".
}

// DefaultConfig returns an STTConfig with sensible defaults
func DefaultConfig() STTConfig {
	return STTConfig{
		RequiredSampleRate: 16000,
		RequiredChannels:   1,
		RequiredEncoding:   "pcm",
	}
}

func (c STTConfig) format() core.AudioEncodingFormat {
	return core.ParseAudioEncodingFormat(c.RequiredEncoding)
}
