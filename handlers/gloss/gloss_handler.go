package gloss

import (
	"context"

	"glosskit/core"
	"glosskit/events/control"
	glossevents "glosskit/events/gloss"
	"glosskit/events/stt"
	"glosskit/gloss"
)

// GlossHandler turns transcripts into dispatch requests. For every
// transcript it resolves words in order, drops identities already
// dispatched in the current utterance or still inside their cooldown window
// and forwards the rest to playback. Playback reports accepted words to the
// client, so nothing suppressed here is ever shown.
//
// The handler's event loop is the only goroutine touching the cooldown
// map and the dedup set.
type GlossHandler struct {
	core.BaseHandler
	config   Config
	resolver *gloss.Resolver
	clock    core.Clock
	cooldown *gloss.CooldownTracker
	dedup    *gloss.UtteranceDedupSet
}

// NewGlossHandler shares resolver across sessions; everything else is per
// session. A nil clock means the system clock.
func NewGlossHandler(resolver *gloss.Resolver, config Config, clock core.Clock, logger *core.Logger) *GlossHandler {
	if resolver == nil {
		resolver = gloss.NewResolver(nil, 0)
	}
	if clock == nil {
		clock = core.SystemClock()
	}
	return &GlossHandler{
		BaseHandler: *core.NewBaseHandler("GlossHandler", nil, nil, logger),
		config:      config,
		resolver:    resolver,
		clock:       clock,
		cooldown:    gloss.NewCooldownTracker(config.Cooldown, clock),
		dedup:       gloss.NewUtteranceDedupSet(),
	}
}

func (h *GlossHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	return h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx)
}

func (h *GlossHandler) Start() error {
	go h.eventLoop()
	return nil
}

func (h *GlossHandler) eventLoop() {
	for {
		select {
		case <-h.Ctx.Done():
			return
		case packet := <-h.InputChan:
			if err := h.HandleEvent(packet); err != nil {
				h.Logger.Warn("failed to handle event", "event", packet.Event.GetId(), "error", err)
			}
		}
	}
}

func (h *GlossHandler) HandleEvent(packet *core.EventPacket) error {
	switch event := packet.Event.(type) {
	case *stt.STTInterimOutputEvent:
		h.processTranscript(event.Text, false)
		return nil
	case *stt.STTFinalOutputEvent:
		h.processTranscript(event.Text, true)
		return nil
	case *control.SetSpeedEvent:
		h.cooldown.SetSpeed(event.Speed)
	case *control.ConfigureEvent:
		if event.Speed > 0 {
			h.cooldown.SetSpeed(event.Speed)
		}
	}
	h.SendPacket(packet)
	return nil
}

func (h *GlossHandler) processTranscript(text string, final bool) {
	if h.config.EchoTranscripts {
		h.Emit(&glossevents.TranscriptUpdateEvent{Text: text, Final: final})
	}
	if final || h.config.DispatchInterim {
		for _, res := range h.resolver.ResolveWords(text) {
			h.dispatch(res)
		}
	}
	if final {
		h.dedup.Reset()
	}
}

func (h *GlossHandler) dispatch(res gloss.Resolution) {
	id := res.Token.Identity()
	// The identity is claimed for the utterance even when the cooldown
	// refuses it, so a longer interim of the same speech cannot replay it.
	if !h.dedup.Add(id) {
		h.Logger.Debug("already dispatched in this utterance", "identity", id)
		return
	}
	if !h.cooldown.CanDispatch(res.Token) {
		h.Logger.Debug("suppressed by cooldown", "identity", id)
		return
	}
	h.Logger.Debug("dispatching", "word", res.Word, "token", res.Token.String())
	h.Emit(&glossevents.DispatchRequestEvent{Token: res.Token, Word: res.Word})
}
