package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glosskit/core"
	playbackevents "glosskit/events/playback"
	"glosskit/events/stt"
)

type fakeService struct {
	core.NopService
	frames chan core.RawData
	fail   error

	mu       sync.Mutex
	sent     []core.RawData
	connects int
}

func newFakeService() *fakeService {
	return &fakeService{frames: make(chan core.RawData, 8)}
}

func (f *fakeService) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return nil
}

func (f *fakeService) SendRawOutput(data core.RawData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeService) StartReceiving(out chan<- core.RawData, errs chan<- error) {
	for raw := range f.frames {
		out <- raw
	}
	if f.fail != nil {
		errs <- f.fail
	}
}

func (f *fakeService) RemoteAddr() string { return "test" }

func (f *fakeService) Sent() []core.RawData {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.RawData(nil), f.sent...)
}

func receive(t *testing.T, ch <-chan *core.EventPacket) *core.EventPacket {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
		return nil
	}
}

func startInput(t *testing.T, svc *fakeService) (next, top chan *core.EventPacket) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	w := NewTransportHandlerWrapper(svc, TransportConfig{}, core.NewNopLogger())
	h := w.GetInputHandler()
	next = make(chan *core.EventPacket, 8)
	top = make(chan *core.EventPacket, 8)
	require.NoError(t, h.Initialize(make(chan *core.EventPacket), next, top, ctx))
	require.NoError(t, h.Start())
	return next, top
}

func TestInputHandlerDecodesFrames(t *testing.T) {
	svc := newFakeService()
	next, top := startInput(t, svc)

	svc.frames <- text(`garbage`)
	svc.frames <- text(`{"type":"transcript","payload":{"text":"hello","final":true}}`)
	p := receive(t, next)
	assert.Equal(t, &stt.STTFinalOutputEvent{Text: "hello", Source: stt.SourceClient}, p.Event)
	assert.Equal(t, "TransportInputHandler", p.Relayer)

	close(svc.frames)
	end := receive(t, top)
	assert.IsType(t, &core.EndSessionEvent{}, end.Event)
	assert.Equal(t, core.EventRelayDestinationTopService, end.Destination)
}

func TestInputHandlerEndsSessionOnError(t *testing.T) {
	svc := newFakeService()
	svc.fail = errors.New("connection reset")
	_, top := startInput(t, svc)

	close(svc.frames)
	end := receive(t, top).Event.(*core.EndSessionEvent)
	assert.NotEmpty(t, end.Reason)
}

func TestOutputHandlerWritesExternalEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := newFakeService()
	var observed []string
	w := NewTransportHandlerWrapper(svc, TransportConfig{
		OnOutput: func(e core.IExternalOutputEvent) { observed = append(observed, e.GetId()) },
	}, core.NewNopLogger())
	h := w.GetOutputHandler()
	next := make(chan *core.EventPacket, 8)
	require.NoError(t, h.Initialize(make(chan *core.EventPacket), next, make(chan *core.EventPacket, 1), ctx))

	require.NoError(t, h.HandleEvent(core.Forward(&playbackevents.PlayGlossEvent{Gloss: "hello", PlayID: "p1"}, "test")))
	require.NoError(t, h.HandleEvent(core.Forward(&stt.STTFinalOutputEvent{Text: "internal"}, "test")))

	sent := svc.Sent()
	require.Len(t, sent, 1)
	assert.JSONEq(t, `{"type":"play","payload":{"gloss":"hello","speed":0,"play_id":"p1"}}`, string(sent[0].Data))
	assert.Equal(t, []string{"playback.play"}, observed)
	assert.Len(t, next, 2, "every packet is forwarded")
	assert.Equal(t, 1, svc.connects)
}
