package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glosskit/core"
	"glosskit/protocol"
)

type envelope struct {
	Type    protocol.MessageType
	Payload json.RawMessage
}

// fakeUI accepts one agent connection and exposes its messages.
type fakeUI struct {
	server   *httptest.Server
	received chan envelope
	conns    chan *websocket.Conn
}

func newFakeUI(t *testing.T) *fakeUI {
	t.Helper()
	ui := &fakeUI{received: make(chan envelope, 64), conns: make(chan *websocket.Conn, 1)}
	upgrader := websocket.Upgrader{}
	ui.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer agent-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ui.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgType, payload, err := protocol.Unmarshal(data)
			if err == nil {
				ui.received <- envelope{Type: msgType, Payload: payload}
			}
		}
	}))
	t.Cleanup(ui.server.Close)
	return ui
}

func (ui *fakeUI) url() string {
	return "ws" + strings.TrimPrefix(ui.server.URL, "http")
}

func (ui *fakeUI) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ui.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("agent never connected")
		return nil
	}
}

// next skips heartbeats unless asked for one.
func (ui *fakeUI) next(t *testing.T, want protocol.MessageType) envelope {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case env := <-ui.received:
			if env.Type == want {
				return env
			}
		case <-deadline:
			t.Fatalf("no %s message", want)
			return envelope{}
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msgType protocol.MessageType, payload any) {
	t.Helper()
	data, err := protocol.Marshal(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func connect(t *testing.T, ui *fakeUI, sessions *SessionTracker) *Client {
	t.Helper()
	client := NewClient(ClientConfig{
		ConnectURL:        ui.url(),
		AgentID:           "agent-1",
		Version:           "test",
		ListenAddr:        ":8765",
		Header:            http.Header{"Authorization": {"Bearer agent-token"}},
		HeartbeatInterval: 20 * time.Millisecond,
		Sessions:          sessions,
		DictionarySize:    func() int { return 42 },
		Logger:            core.NewNopLogger(),
	})
	return client
}

func TestClientRegistersAndReportsSessions(t *testing.T) {
	ui := newFakeUI(t)
	sessions := NewSessionTracker()
	sessions.Start("s1", "10.0.0.1:5000")
	sessions.SetState("s1", "playing")

	client := connect(t, ui, sessions)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()
	ui.conn(t)

	reg, err := protocol.UnmarshalPayload[protocol.RegisterPayload](ui.next(t, protocol.MsgRegister).Payload)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", reg.AgentID)
	assert.Equal(t, "test", reg.Version)
	assert.Equal(t, ":8765", reg.ListenAddr)
	assert.Equal(t, 42, reg.DictionaryEntries)

	hb, err := protocol.UnmarshalPayload[protocol.HeartbeatPayload](ui.next(t, protocol.MsgHeartbeat).Payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.AgentServing, hb.Status)
	assert.Equal(t, 42, hb.DictionaryEntries)
	assert.Equal(t, 1, hb.ActiveSessions)

	client.SendStatus()
	status, err := protocol.UnmarshalPayload[protocol.StatusPayload](ui.next(t, protocol.MsgStatus).Payload)
	require.NoError(t, err)
	require.Len(t, status.Sessions, 1)
	assert.Equal(t, "s1", status.Sessions[0].SessionID)
	assert.Equal(t, "playing", status.Sessions[0].State)
}

func TestClientHandlesCommands(t *testing.T) {
	ui := newFakeUI(t)
	client := connect(t, ui, nil)

	type update struct {
		settings string
		keys     map[string]string
	}
	updates := make(chan update, 2)
	speeds := make(chan float64, 1)
	restarts := make(chan string, 1)
	type shutdown struct {
		reason string
		grace  time.Duration
	}
	shutdowns := make(chan shutdown, 2)
	client.OnConfigUpdate = func(settings json.RawMessage, keys map[string]string) error {
		updates <- update{settings: string(settings), keys: keys}
		if keys["bad"] != "" {
			return errors.New("invalid settings")
		}
		return nil
	}
	client.OnSetSpeed = func(speed float64) { speeds <- speed }
	client.OnRestartPipeline = func(reason string) { restarts <- reason }
	client.OnShutdown = func(reason string, grace time.Duration) { shutdowns <- shutdown{reason, grace} }

	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()
	conn := ui.conn(t)

	send(t, conn, protocol.MsgConfigUpdate, protocol.ConfigUpdatePayload{
		Settings: json.RawMessage(`{"min_fingerspell_length":5}`),
		Keys:     map[string]string{"DEEPGRAM_API_KEY": "k"},
	})
	ack, err := protocol.UnmarshalPayload[protocol.AckPayload](ui.next(t, protocol.MsgAck).Payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgConfigUpdate, ack.AckedType)
	assert.True(t, ack.OK)
	got := <-updates
	assert.JSONEq(t, `{"min_fingerspell_length":5}`, got.settings)
	assert.Equal(t, "k", got.keys["DEEPGRAM_API_KEY"])

	send(t, conn, protocol.MsgConfigUpdate, protocol.ConfigUpdatePayload{Keys: map[string]string{"bad": "1"}})
	ack, err = protocol.UnmarshalPayload[protocol.AckPayload](ui.next(t, protocol.MsgAck).Payload)
	require.NoError(t, err)
	assert.False(t, ack.OK)
	assert.Equal(t, "invalid settings", ack.Error)

	send(t, conn, protocol.MsgSetSpeed, protocol.SetSpeedPayload{Speed: 0.75})
	assert.Equal(t, 0.75, <-speeds)

	send(t, conn, protocol.MsgRestartPipeline, protocol.RestartPipelinePayload{Reason: "new dictionary"})
	assert.Equal(t, "new dictionary", <-restarts)

	send(t, conn, protocol.MsgShutdown, protocol.ShutdownPayload{Reason: "deploy", GraceSeconds: 30})
	assert.Equal(t, shutdown{"deploy", 30 * time.Second}, <-shutdowns)
	select {
	case <-client.Done():
		t.Fatal("client stopped reading during a graceful shutdown")
	case <-time.After(50 * time.Millisecond):
	}

	send(t, conn, protocol.MsgShutdown, protocol.ShutdownPayload{})
	assert.Equal(t, shutdown{"shutdown requested by control plane", 0}, <-shutdowns)
	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client still running after shutdown")
	}
}

func TestClientDialFailure(t *testing.T) {
	ui := newFakeUI(t)
	client := NewClient(ClientConfig{ConnectURL: ui.url(), Logger: core.NewNopLogger()})
	assert.Error(t, client.Connect(context.Background()), "missing auth header")
}

func TestWSLogWriter(t *testing.T) {
	ui := newFakeUI(t)
	client := connect(t, ui, nil)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()
	ui.conn(t)

	writer := NewWSLogWriter(client, "s1", core.LevelInfo)
	writer.Write("DEBUG", "noisy", nil)
	writer.Write("WARN", "missing clip", map[string]interface{}{"gloss": "clap"})
	writer.Close()

	logged, err := protocol.UnmarshalPayload[protocol.LogPayload](ui.next(t, protocol.MsgLog).Payload)
	require.NoError(t, err)
	assert.Equal(t, "s1", logged.SessionID)
	assert.Equal(t, "missing clip", logged.Entry.Message, "debug entries are filtered")
	assert.Equal(t, "clap", logged.Entry.Attrs["gloss"])

	end, err := protocol.UnmarshalPayload[protocol.LogEndPayload](ui.next(t, protocol.MsgLogEnd).Payload)
	require.NoError(t, err)
	assert.Equal(t, "s1", end.SessionID)
}
