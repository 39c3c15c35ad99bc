package factories

import (
	"errors"

	"glosskit/core"
	stthandler "glosskit/handlers/stt"
	deepgramstt "glosskit/services/deepgram/stt"
	openaistt "glosskit/services/openai/stt"
)

// STTFactoryConfig holds provider-specific configs for STT service construction.
// Set exactly one provider config; the rest should be left nil.
type STTFactoryConfig struct {
	DeepgramConfig *deepgramstt.DeepgramConfig `json:"deepgram,omitempty"`
	OpenAIConfig   *openaistt.Config           `json:"openai,omitempty"`
}

// BuildSTTService constructs an ISTTService from the given factory config.
func BuildSTTService(config STTFactoryConfig, logger *core.Logger) (stthandler.ISTTService, error) {
	switch {
	case config.DeepgramConfig != nil:
		return deepgramstt.NewDeepgramSTTService(config.DeepgramConfig, logger), nil
	case config.OpenAIConfig != nil:
		return openaistt.NewWhisperSTTService(*config.OpenAIConfig, logger), nil
	}
	return nil, errors.New("STTFactoryConfig: no provider config specified")
}

func (c *STTFactoryConfig) injectAPIKeys(keys APIKeys) {
	if c.DeepgramConfig != nil && c.DeepgramConfig.APIKey == "" {
		c.DeepgramConfig.APIKey = keys.Deepgram
	}
	if c.OpenAIConfig != nil && c.OpenAIConfig.APIKey == "" {
		c.OpenAIConfig.APIKey = keys.OpenAI
	}
}

// maxKeyterms caps vocabulary boosting; long lists bloat the Deepgram
// listen URL and dilute the Whisper prompt.
const maxKeyterms = 50

// withKeyterms returns a copy biased towards words, unless the provider has
// keyterms configured explicitly. The copy keeps sessions from sharing
// provider configs.
func (c STTFactoryConfig) withKeyterms(words []string) STTFactoryConfig {
	if len(words) > maxKeyterms {
		words = words[:maxKeyterms]
	}
	if c.DeepgramConfig != nil {
		dg := *c.DeepgramConfig
		if len(dg.Keyterms) == 0 {
			dg.Keyterms = words
		}
		c.DeepgramConfig = &dg
	}
	if c.OpenAIConfig != nil {
		oa := *c.OpenAIConfig
		if len(oa.Keyterms) == 0 {
			oa.Keyterms = words
		}
		c.OpenAIConfig = &oa
	}
	return c
}
