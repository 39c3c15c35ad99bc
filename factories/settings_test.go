package factories

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glosskit/gloss"
	stthandler "glosskit/handlers/stt"
)

const settingsJSON = `{
	"server": {"port": 9001, "path": "/ws"},
	"dictionary_path": "/etc/glosskit/dictionary.json",
	"session_config": {
		"gloss": {"dispatch_interim": false},
		"playback": {"avatar": "maya", "default_speed": 1.5},
		"stt": {
			"service": {"deepgram": {"model": "nova-3"}},
			"fallbacks": [{"openai": {"language": "en"}}]
		}
	}
}`

func TestSettingsFromJSON(t *testing.T) {
	settings, err := SettingsConfigFromJSON([]byte(settingsJSON))
	require.NoError(t, err)

	assert.Equal(t, 9001, settings.Server.Port)
	assert.Equal(t, "/ws", settings.Server.Path)
	assert.Equal(t, "/etc/glosskit/dictionary.json", settings.DictionaryPath)

	session := settings.Session
	assert.False(t, session.Gloss.DispatchInterim)
	assert.True(t, session.Gloss.EchoTranscripts, "unset fields keep defaults")
	assert.Equal(t, "maya", session.Playback.Avatar)
	assert.Equal(t, 1.5, session.Playback.DefaultSpeed)

	require.NotNil(t, session.STT)
	assert.Equal(t, stthandler.DefaultConfig(), session.STT.HandlerConfig)
	require.NotNil(t, session.STT.ServiceConfig.DeepgramConfig)
	assert.Equal(t, "nova-3", session.STT.ServiceConfig.DeepgramConfig.Model)
	require.Len(t, session.STT.FallbackServiceConfigs, 1)
	require.NotNil(t, session.STT.FallbackServiceConfigs[0].OpenAIConfig)
}

func TestSettingsDefaults(t *testing.T) {
	settings, err := SettingsConfigFromJSON([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, 8765, settings.Server.Port)
	assert.Nil(t, settings.Session.STT, "server-side STT is opt-in")
	assert.True(t, settings.Session.Gloss.DispatchInterim)

	_, err = SettingsConfigFromJSON([]byte(`{"server":`))
	assert.Error(t, err)
}

func TestSettingsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(settingsJSON), 0o644))

	settings, err := SettingsConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, settings.Server.Port)

	settings, err = SettingsConfigFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.Equal(t, 8765, settings.Server.Port, "defaults returned alongside the error")
}

func TestInjectAPIKeys(t *testing.T) {
	settings, err := SettingsConfigFromJSON([]byte(settingsJSON))
	require.NoError(t, err)
	settings.Session.STT.FallbackServiceConfigs[0].OpenAIConfig.APIKey = "explicit"

	settings.InjectAPIKeys(APIKeys{Deepgram: "dg-key", OpenAI: "oa-key"})

	assert.Equal(t, "dg-key", settings.Session.STT.ServiceConfig.DeepgramConfig.APIKey)
	assert.Equal(t, "explicit", settings.Session.STT.FallbackServiceConfigs[0].OpenAIConfig.APIKey)
}

func TestWithKeytermsCopiesProviderConfig(t *testing.T) {
	settings, err := SettingsConfigFromJSON([]byte(settingsJSON))
	require.NoError(t, err)
	original := settings.Session.STT.ServiceConfig

	biased := original.withKeyterms([]string{"clap", "hello"})

	assert.Equal(t, []string{"clap", "hello"}, biased.DeepgramConfig.Keyterms)
	assert.Empty(t, original.DeepgramConfig.Keyterms, "shared settings untouched")

	original.DeepgramConfig.Keyterms = []string{"custom"}
	assert.Equal(t, []string{"custom"}, original.withKeyterms([]string{"clap"}).DeepgramConfig.Keyterms)

	many := make([]string, maxKeyterms+10)
	assert.Len(t, STTFactoryConfig{OpenAIConfig: settings.Session.STT.FallbackServiceConfigs[0].OpenAIConfig}.
		withKeyterms(many).OpenAIConfig.Keyterms, maxKeyterms)
}

func TestBuildSTTServiceRequiresProvider(t *testing.T) {
	_, err := BuildSTTService(STTFactoryConfig{}, nil)
	assert.Error(t, err)
}

func TestBuildHandlers(t *testing.T) {
	resolver := gloss.NewResolver(nil, 0)

	handlers, err := DefaultSessionConfig().BuildHandlers(resolver, nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, handlers.STT)
	assert.Len(t, handlers.Handlers(), 2)

	settings, err := SettingsConfigFromJSON([]byte(settingsJSON))
	require.NoError(t, err)
	handlers, err = settings.Session.BuildHandlers(resolver, nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, handlers.STT)
	assert.Len(t, handlers.Handlers(), 3)
	assert.Same(t, handlers.STT, handlers.Handlers()[0])

	_, err = DefaultSessionConfig().BuildHandlers(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestSessionConfigFromAPI(t *testing.T) {
	var gotMethod, gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = io.WriteString(w, `{"playback":{"avatar":"remote"},"stt":{"service":{"deepgram":{}}}}`)
	}))
	defer server.Close()

	settings := DefaultSettingsConfig()
	settings.SessionAPI = &SessionAPIConfig{
		URL:     server.URL,
		Headers: map[string]string{"Authorization": "Bearer t"},
		Body:    []byte(`{"user":"u1"}`),
	}

	cfg, err := settings.SessionConfigFor(context.Background(), APIKeys{Deepgram: "dg-key"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Bearer t", gotAuth)
	assert.JSONEq(t, `{"user":"u1"}`, gotBody)
	assert.Equal(t, "remote", cfg.Playback.Avatar)
	assert.Equal(t, "dg-key", cfg.STT.ServiceConfig.DeepgramConfig.APIKey)
}

func TestSessionAPIErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	api := &SessionAPIConfig{URL: server.URL}
	_, err := api.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
