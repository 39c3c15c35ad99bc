package playback

import (
	"context"
	"time"

	"glosskit/core"
	"glosskit/demo"
	"glosskit/events/control"
	demoevents "glosskit/events/demo"
	glossevents "glosskit/events/gloss"
	playbackevents "glosskit/events/playback"
	"glosskit/gloss"
	"glosskit/playback"
)

type mode int

const (
	modeLive mode = iota
	modeDemo
)

// PlaybackHandler owns the session's scheduler and demo runner. Its event
// loop is their only driver: pipeline events, client completion signals
// and timer callbacks all arrive on that one goroutine.
type PlaybackHandler struct {
	core.BaseHandler
	config Config
	script demo.Script

	clock     core.Clock
	loopClock *core.LoopClock
	scheduler *playback.Scheduler
	runner    *demo.Runner

	avatar     string
	speed      float64
	mode       mode
	stopped    bool
	lastState  string // last derived state, see updateStatus
	lastStatus string // last state sent to the client, including errors
}

// NewPlaybackHandler builds the handler. With a nil clock, timers are
// delivered through a core.LoopClock created in Initialize; tests pass a
// fake clock and drive HandleEvent directly. A nil script means
// demo.DefaultScript.
func NewPlaybackHandler(config Config, script demo.Script, clock core.Clock, logger *core.Logger) *PlaybackHandler {
	if script == nil {
		script = demo.DefaultScript()
	}
	return &PlaybackHandler{
		BaseHandler: *core.NewBaseHandler("PlaybackHandler", nil, nil, logger),
		config:      config,
		script:      script,
		clock:       clock,
		avatar:      config.Avatar,
		speed:       core.NormalizeSpeed(config.DefaultSpeed),
		lastState:   playbackevents.StatusListening,
	}
}

func (h *PlaybackHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	if h.clock == nil {
		h.loopClock = core.NewLoopClock(ctx, 16)
		h.clock = h.loopClock
	}
	clock := settleClock{Clock: h.clock, settle: h.updateStatus}

	player := &eventPlayer{
		handler:   h,
		durations: h.config.clipDurations(),
		strict:    h.config.KnownClipsOnly,
	}
	h.scheduler = playback.NewScheduler(h.config.Scheduler, player, clock, h.Logger)
	h.scheduler.SetSpeed(h.speed)
	h.scheduler.OnEntryDone = h.onEntryDone

	h.runner = demo.NewRunner(h.script, h.scheduler, clock, h.config.Demo, h.Logger)
	h.runner.SetSpeed(h.speed)
	h.runner.OnCaption = func(c demo.Caption) {
		h.Emit(&demoevents.DemoCaptionEvent{Caption: c.Text, Scene: c.Scene})
	}
	h.runner.OnComplete = h.onDemoComplete
	return nil
}

func (h *PlaybackHandler) Start() error {
	go h.eventLoop()
	return nil
}

func (h *PlaybackHandler) eventLoop() {
	h.emitStatus(&playbackevents.StatusEvent{State: h.lastState})

	var callbacks <-chan func()
	if h.loopClock != nil {
		callbacks = h.loopClock.Callbacks()
	}
	for {
		select {
		case <-h.Ctx.Done():
			return
		case f := <-callbacks:
			f()
		case packet := <-h.InputChan:
			if err := h.HandleEvent(packet); err != nil {
				h.Logger.Warn("failed to handle event", "event", packet.Event.GetId(), "error", err)
			}
		}
	}
}

// HandleEvent reports the resulting session state once the event has been
// fully applied, so the client sees no intermediate states.
func (h *PlaybackHandler) HandleEvent(packet *core.EventPacket) error {
	defer h.updateStatus()
	switch event := packet.Event.(type) {
	case *glossevents.DispatchRequestEvent:
		h.enqueue(event.Token, event.Word)
		return nil
	case *playbackevents.GlossFinishedEvent:
		h.scheduler.GlossFinished(event.Gloss, event.PlayID)
		return nil
	case *playbackevents.LetterFinishedEvent:
		h.scheduler.LetterFinished(event.PlayID)
		return nil
	case *playbackevents.ClipMissingEvent:
		h.scheduler.ClipMissing(event.Gloss, event.PlayID)
		return nil
	case *control.SetSpeedEvent:
		h.setSpeed(event.Speed)
	case *control.ConfigureEvent:
		if event.Avatar != "" {
			h.avatar = event.Avatar
		}
		if event.Speed > 0 {
			h.setSpeed(event.Speed)
		}
	case *control.StartDemoEvent:
		h.startDemo()
	case *control.StartLiveEvent:
		h.startLive()
	case *control.StopEvent:
		h.stop()
	case *control.CaptureErrorEvent:
		h.Logger.Warn("client capture failed", "code", event.Code, "message", event.Message)
		h.emitStatus(&playbackevents.StatusEvent{
			State:   playbackevents.StatusError,
			Code:    event.Code,
			Message: event.Message,
		})
	}
	h.SendPacket(packet)
	return nil
}

// Scheduler exposes the session scheduler for inspection.
func (h *PlaybackHandler) Scheduler() *playback.Scheduler {
	return h.scheduler
}

// Status is the last session state reported to the client.
func (h *PlaybackHandler) Status() string {
	return h.lastStatus
}

func (h *PlaybackHandler) enqueue(tok gloss.DispatchToken, word string) {
	if h.mode == modeDemo {
		h.Logger.Debug("demo running, dropping live dispatch", "token", tok.String())
		return
	}
	if h.stopped {
		h.Logger.Debug("stopped, dropping live dispatch", "token", tok.String())
		return
	}
	if h.scheduler.Enqueue(tok) != 0 && word != "" {
		h.Emit(&glossevents.WordDetectedEvent{Word: word})
	}
}

func (h *PlaybackHandler) setSpeed(speed float64) {
	h.speed = core.NormalizeSpeed(speed)
	h.scheduler.SetSpeed(h.speed)
	h.runner.SetSpeed(h.speed)
	h.Logger.Debug("speed changed", "speed", h.speed)
}

func (h *PlaybackHandler) startDemo() {
	h.mode = modeDemo
	h.stopped = false
	h.runner.Start()
}

func (h *PlaybackHandler) startLive() {
	if h.mode == modeDemo {
		h.runner.Stop()
	}
	h.mode = modeLive
	h.stopped = false
}

func (h *PlaybackHandler) stop() {
	if h.mode == modeDemo {
		h.runner.Stop()
	} else {
		h.scheduler.Stop()
	}
	h.mode = modeLive
	h.stopped = true
}

func (h *PlaybackHandler) onEntryDone(id playback.EntryID, _ gloss.DispatchToken) {
	if h.mode == modeDemo {
		h.runner.EntryDone(id)
	}
}

func (h *PlaybackHandler) onDemoComplete() {
	h.Emit(&demoevents.DemoCompleteEvent{})
	h.mode = modeLive
}

func (h *PlaybackHandler) currentStatus() string {
	switch {
	case h.stopped:
		return playbackevents.StatusStopped
	case h.mode == modeDemo:
		return playbackevents.StatusDemo
	}
	switch h.scheduler.State().Phase {
	case playback.PhasePlayingGloss:
		return playbackevents.StatusPlaying
	case playback.PhaseSpelling:
		return playbackevents.StatusSpelling
	default:
		return playbackevents.StatusListening
	}
}

// updateStatus reports the session state when it differs from the last
// derived one. An error report stays visible until the state moves.
func (h *PlaybackHandler) updateStatus() {
	state := h.currentStatus()
	if state == h.lastState {
		return
	}
	h.lastState = state
	h.emitStatus(&playbackevents.StatusEvent{State: state})
}

func (h *PlaybackHandler) emitStatus(status *playbackevents.StatusEvent) {
	h.lastStatus = status.State
	h.Emit(status)
}

// settleClock runs settle after every timer callback, so state reached
// through a timeout is reported like state reached through an event.
type settleClock struct {
	core.Clock
	settle func()
}

func (c settleClock) AfterFunc(d time.Duration, f func()) core.Timer {
	return c.Clock.AfterFunc(d, func() {
		f()
		c.settle()
	})
}
