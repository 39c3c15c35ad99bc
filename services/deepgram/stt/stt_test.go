package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glosskit/core"
)

const (
	interimResult = `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"let's cl","confidence":0.7}]}}`
	finalResult   = `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"let's clap","confidence":0.93}]}}`
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func startService(t *testing.T, config *DeepgramConfig) (*DeepgramSTTService, chan string, chan string, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	svc := NewDeepgramSTTService(config, core.NewNopLogger())
	t.Cleanup(func() { _ = svc.Cleanup() })
	require.NoError(t, svc.Init(ctx))

	final, interim, errs := make(chan string, 4), make(chan string, 4), make(chan error, 4)
	require.NoError(t, svc.StartTranscriptionSession(final, interim, errs))
	return svc, final, interim, errs
}

func TestListenURL(t *testing.T) {
	config := DefaultConfig()
	config.Language = "en-US"
	config.EndpointingMs = 300
	config.Keyterms = []string{"clap", "goodbye"}

	raw, err := config.listenURL()
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "/v1/listen", u.Path)
	q := u.Query()
	assert.Equal(t, "nova-2", q.Get("model"))
	assert.Equal(t, "en-US", q.Get("language"))
	assert.Equal(t, "linear16", q.Get("encoding"))
	assert.Equal(t, "16000", q.Get("sample_rate"))
	assert.Equal(t, "300", q.Get("endpointing"))
	assert.Equal(t, []string{"clap", "goodbye"}, q["keyterm"])
	assert.Empty(t, q.Get("utterance_end_ms"))
}

func TestInitRequiresAPIKey(t *testing.T) {
	svc := NewDeepgramSTTService(&DeepgramConfig{}, core.NewNopLogger())
	assert.Error(t, svc.Init(context.Background()))

	err := svc.StartTranscriptionSession(nil, nil, nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestStreamsAudioAndDeliversTranscripts(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			received <- data
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Metadata","request_id":"r1"}`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(interimResult))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(finalResult))
		}
	}))
	defer server.Close()

	config := DefaultConfig()
	config.APIKey = "secret"
	config.BaseURL = wsURL(server)
	svc, final, interim, _ := startService(t, config)

	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	require.NoError(t, svc.SendTranscriptionAudio(core.AudioChunk{Data: pcm, Format: core.PCM, SampleRate: 16000, Channels: 1}))

	select {
	case data := <-received:
		assert.Equal(t, pcm, data)
	case <-time.After(2 * time.Second):
		t.Fatal("audio never reached the server")
	}
	select {
	case text := <-interim:
		assert.Equal(t, "let's cl", text)
	case <-time.After(2 * time.Second):
		t.Fatal("no interim transcript")
	}
	select {
	case text := <-final:
		assert.Equal(t, "let's clap", text)
	case <-time.After(2 * time.Second):
		t.Fatal("no final transcript")
	}
}

func TestRejectsNonPCMAudio(t *testing.T) {
	svc := NewDeepgramSTTService(nil, core.NewNopLogger())
	err := svc.SendTranscriptionAudio(core.AudioChunk{Data: []byte{0xff}, Format: core.ULAW})
	assert.Error(t, err)
}

func TestFirstDialFailureIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	config := DefaultConfig()
	config.APIKey = "wrong"
	config.BaseURL = wsURL(server)
	svc := NewDeepgramSTTService(config, core.NewNopLogger())
	require.NoError(t, svc.Init(context.Background()))
	defer svc.Cleanup()

	err := svc.StartTranscriptionSession(make(chan string), make(chan string), make(chan error))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestReportsErrorAfterReconnectsExhausted(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if connections.Add(1) > 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer server.Close()

	config := DefaultConfig()
	config.APIKey = "secret"
	config.BaseURL = wsURL(server)
	config.MaxReconnects = 2
	config.ReconnectDelay = 10 * time.Millisecond
	_, _, _, errs := startService(t, config)

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "giving up after 2 reconnect attempts")
	case <-time.After(3 * time.Second):
		t.Fatal("no error reported")
	}
	assert.Equal(t, int32(3), connections.Load())
}
