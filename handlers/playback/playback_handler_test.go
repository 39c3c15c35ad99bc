package playback

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glosskit/core"
	"glosskit/core/coretest"
	"glosskit/demo"
	"glosskit/events/control"
	demoevents "glosskit/events/demo"
	glossevents "glosskit/events/gloss"
	playbackevents "glosskit/events/playback"
	"glosskit/gloss"
)

type fixture struct {
	handler *PlaybackHandler
	clock   *coretest.FakeClock
	next    chan *core.EventPacket
	seen    []core.IEvent
}

func newFixture(t *testing.T, cfg Config, script demo.Script) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := coretest.NewFakeClock()
	h := NewPlaybackHandler(cfg, script, clock, core.NewNopLogger())
	next := make(chan *core.EventPacket, 256)
	require.NoError(t, h.Initialize(make(chan *core.EventPacket), next, make(chan *core.EventPacket, 8), ctx))
	return &fixture{handler: h, clock: clock, next: next}
}

func (f *fixture) send(event core.IEvent) {
	f.handler.HandleEvent(core.Forward(event, "test"))
}

func (f *fixture) dispatch(tok gloss.DispatchToken) {
	f.send(&glossevents.DispatchRequestEvent{Token: tok})
}

// drain summarizes everything emitted since the last call.
func (f *fixture) drain() []string {
	var out []string
	for {
		select {
		case p := <-f.next:
			f.seen = append(f.seen, p.Event)
			out = append(out, summarize(p.Event))
		default:
			return out
		}
	}
}

// lastPlayID is the play id of the most recent play or letter command.
func (f *fixture) lastPlayID() string {
	for i := len(f.seen) - 1; i >= 0; i-- {
		switch e := f.seen[i].(type) {
		case *playbackevents.PlayGlossEvent:
			return e.PlayID
		case *playbackevents.PlayLetterEvent:
			return e.PlayID
		}
	}
	return ""
}

func (f *fixture) lastPlay() *playbackevents.PlayGlossEvent {
	for i := len(f.seen) - 1; i >= 0; i-- {
		if e, ok := f.seen[i].(*playbackevents.PlayGlossEvent); ok {
			return e
		}
	}
	return nil
}

func summarize(e core.IEvent) string {
	switch e := e.(type) {
	case *playbackevents.PlayGlossEvent:
		return "play:" + e.Gloss
	case *playbackevents.PlayLetterEvent:
		return "letter:" + e.Letter
	case *playbackevents.StopPlaybackEvent:
		return "stop"
	case *playbackevents.StatusEvent:
		if e.Code != "" {
			return fmt.Sprintf("status:%s:%s", e.State, e.Code)
		}
		return "status:" + e.State
	case *demoevents.DemoCaptionEvent:
		return "caption:" + e.Caption
	case *demoevents.DemoCompleteEvent:
		return "complete"
	default:
		return e.GetId()
	}
}

func TestPlaybackHandlerLiveSequence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Avatar = "robin"
	f := newFixture(t, cfg, nil)

	f.dispatch(gloss.Play("good", "clap"))
	assert.Equal(t, []string{"play:good", "status:playing"}, f.drain())
	play := f.lastPlay()
	assert.Equal(t, "robin", play.Avatar)
	assert.Equal(t, 1.0, play.Speed)
	assert.NotEmpty(t, play.PlayID)

	f.send(&playbackevents.GlossFinishedEvent{Gloss: "good", PlayID: f.lastPlayID()})
	assert.Equal(t, []string{"play:clap"}, f.drain(), "no idle flicker between clips of one entry")

	f.send(&playbackevents.GlossFinishedEvent{Gloss: "clap", PlayID: f.lastPlayID()})
	assert.Equal(t, []string{"status:listening"}, f.drain())
	assert.True(t, f.handler.Scheduler().State().Idle())
}

func TestPlaybackHandlerIgnoresStaleCompletion(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.dispatch(gloss.Play("good", "clap"))
	f.drain()
	f.send(&playbackevents.GlossFinishedEvent{Gloss: "clap"})
	f.send(&playbackevents.GlossFinishedEvent{Gloss: "good", PlayID: "elsewhere"})

	assert.Empty(t, f.drain())
	assert.Equal(t, "good", f.handler.Scheduler().State().Gloss)
}

func TestPlaybackHandlerFingerspelling(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.dispatch(gloss.Fingerspell("avatar"))
	assert.Equal(t, []string{"letter:a", "status:spelling"}, f.drain())

	var letters []string
	for i := 0; i < 5; i++ {
		f.send(&playbackevents.LetterFinishedEvent{PlayID: f.lastPlayID()})
		letters = append(letters, f.drain()...)
	}
	assert.Equal(t, []string{"letter:v", "letter:a", "letter:t", "letter:a", "letter:r"}, letters)

	f.send(&playbackevents.LetterFinishedEvent{PlayID: f.lastPlayID()})
	assert.Equal(t, []string{"status:listening"}, f.drain())
}

func TestPlaybackHandlerTimeoutReportsStatus(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.dispatch(gloss.Play("hello"))
	f.drain()
	f.clock.Advance(3999 * time.Millisecond)
	assert.Empty(t, f.drain())

	f.clock.Advance(time.Millisecond)
	assert.Equal(t, []string{"status:listening"}, f.drain())
}

func TestPlaybackHandlerKnownClips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClipDurationsMs = map[string]int{"hello": 1000}
	cfg.KnownClipsOnly = true
	f := newFixture(t, cfg, nil)

	f.dispatch(gloss.Play("yes"))
	assert.Equal(t, []string{"status:playing"}, f.drain(), "unknown clip is never sent")
	f.clock.Advance(600 * time.Millisecond)
	assert.Equal(t, []string{"status:listening"}, f.drain())

	f.dispatch(gloss.Play("hello"))
	assert.Equal(t, []string{"play:hello", "status:playing"}, f.drain())
	f.clock.Advance(2499 * time.Millisecond)
	assert.Empty(t, f.drain())
	f.clock.Advance(time.Millisecond)
	assert.Equal(t, []string{"status:listening"}, f.drain())
}

func TestPlaybackHandlerClipMissingReport(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.dispatch(gloss.Play("hello", "friend"))
	f.drain()
	f.send(&playbackevents.ClipMissingEvent{Gloss: "hello", PlayID: f.lastPlayID()})
	f.clock.Advance(600 * time.Millisecond)

	assert.Equal(t, []string{"play:friend"}, f.drain())
}

func TestPlaybackHandlerSpeed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultSpeed = 0.5
	f := newFixture(t, cfg, nil)

	f.dispatch(gloss.Play("hello"))
	f.drain()
	assert.Equal(t, 0.5, f.lastPlay().Speed)
	f.send(&playbackevents.GlossFinishedEvent{Gloss: "hello"})

	f.send(&control.SetSpeedEvent{Speed: 2})
	f.dispatch(gloss.Play("yes"))
	f.drain()
	assert.Equal(t, 2.0, f.lastPlay().Speed)
	assert.Equal(t, 2.0, f.handler.Scheduler().Speed())
}

func TestPlaybackHandlerConfigure(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.send(&control.ConfigureEvent{Avatar: "kai", Speed: 1.5})
	f.dispatch(gloss.Play("hello"))
	f.drain()

	assert.Equal(t, "kai", f.lastPlay().Avatar)
	assert.Equal(t, 1.5, f.lastPlay().Speed)
}

func twoScenes() demo.Script {
	return demo.Script{
		{Caption: "first", Steps: []demo.Step{{Token: gloss.Play("hello")}}},
		{Caption: "second", Steps: []demo.Step{{Token: gloss.Play("goodbye")}}},
	}
}

func TestPlaybackHandlerDemoDropsLiveDispatch(t *testing.T) {
	f := newFixture(t, DefaultConfig(), twoScenes())

	f.send(&control.StartDemoEvent{})
	assert.Equal(t, []string{"stop", "caption:first", "play:hello", "control.start_demo", "status:demo"}, f.drain())

	f.dispatch(gloss.Play("yes"))
	assert.Empty(t, f.drain())

	f.send(&control.StartLiveEvent{})
	assert.Equal(t, []string{"stop", "control.start_live", "status:listening"}, f.drain())

	f.dispatch(gloss.Play("yes"))
	assert.Equal(t, []string{"play:yes", "status:playing"}, f.drain())
}

func TestPlaybackHandlerDemoCompletes(t *testing.T) {
	f := newFixture(t, DefaultConfig(), twoScenes())

	f.send(&control.StartDemoEvent{})
	f.drain()
	f.send(&playbackevents.GlossFinishedEvent{Gloss: "hello", PlayID: f.lastPlayID()})
	assert.Empty(t, f.drain(), "scene break")

	f.clock.Advance(1200 * time.Millisecond)
	assert.Equal(t, []string{"caption:second", "play:goodbye"}, f.drain())

	f.send(&playbackevents.GlossFinishedEvent{Gloss: "goodbye", PlayID: f.lastPlayID()})
	assert.Equal(t, []string{"complete", "status:listening"}, f.drain())
}

func TestPlaybackHandlerStop(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.dispatch(gloss.Play("hello"))
	f.dispatch(gloss.Play("yes"))
	f.drain()

	f.send(&control.StopEvent{})
	assert.Equal(t, []string{"stop", "control.stop", "status:stopped"}, f.drain())
	assert.Zero(t, f.handler.Scheduler().QueueLen())

	f.dispatch(gloss.Play("yes"))
	assert.Empty(t, f.drain(), "dispatch dropped while stopped")

	f.send(&control.StartLiveEvent{})
	assert.Equal(t, []string{"control.start_live", "status:listening"}, f.drain())
	f.dispatch(gloss.Play("yes"))
	assert.Equal(t, []string{"play:yes", "status:playing"}, f.drain())
}

func TestPlaybackHandlerCaptureError(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.send(&control.CaptureErrorEvent{Code: "not-allowed", Message: "microphone denied"})
	assert.Equal(t, []string{"status:error:not-allowed", "control.capture_error"}, f.drain())
	assert.Equal(t, playbackevents.StatusError, f.handler.Status())

	f.dispatch(gloss.Play("hello"))
	assert.Equal(t, []string{"play:hello", "status:playing"}, f.drain())
}

func TestPlaybackHandlerReportsOnlyAcceptedWords(t *testing.T) {
	f := newFixture(t, DefaultConfig(), twoScenes())

	f.send(&glossevents.DispatchRequestEvent{Token: gloss.Play("hello"), Word: "hi"})
	assert.Equal(t, []string{"play:hello", "gloss.word_detected", "status:playing"}, f.drain())
	detected := f.seen[len(f.seen)-2].(*glossevents.WordDetectedEvent)
	assert.Equal(t, "hi", detected.Word)

	f.send(&control.StartDemoEvent{})
	f.drain()
	f.send(&glossevents.DispatchRequestEvent{Token: gloss.Play("yes"), Word: "yes"})
	assert.Empty(t, f.drain(), "no word chip while the demo runs")

	f.send(&control.StopEvent{})
	f.drain()
	f.send(&glossevents.DispatchRequestEvent{Token: gloss.Play("yes"), Word: "yes"})
	assert.Empty(t, f.drain(), "no word chip while stopped")
}
