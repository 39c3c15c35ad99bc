package stt

import (
	"context"
	"errors"

	"glosskit/core"
	playbackevents "glosskit/events/playback"
	"glosskit/events/stt"
	"glosskit/events/transport"
	"glosskit/utils/audio"
)

type ISTTService interface {
	core.IService
	// StartTranscriptionSession opens a transcription stream. Results and
	// stream failures are delivered on the given channels until the service
	// is cleaned up.
	StartTranscriptionSession(finalChan chan<- string, interimChan chan<- string, errorChan chan<- error) error
	SendTranscriptionAudio(chunk core.AudioChunk) error
}

// STTHandler transcribes audio frames streamed by the client. Transcripts
// the client recognizes itself pass through untouched.
//
// The event loop is the only goroutine touching the service, so failing
// over to a backup needs no locking.
type STTHandler struct {
	core.BaseHandler
	config      STTConfig
	finalChan   chan string
	interimChan chan string
	errorChan   chan error
	failed      bool
}

func NewSTTHandler(service ISTTService, config STTConfig, logger *core.Logger) *STTHandler {
	return &STTHandler{
		BaseHandler: *core.NewBaseHandler("STTHandler", service, nil, logger),
		config:      config,
	}
}

func (h *STTHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	h.finalChan = make(chan string, 16)
	h.interimChan = make(chan string, 16)
	h.errorChan = make(chan error, 4)
	return h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx)
}

func (h *STTHandler) Start() error {
	go h.eventLoop()
	return nil
}

func (h *STTHandler) eventLoop() {
	h.startSession()
	for {
		select {
		case packet := <-h.InputChan:
			if err := h.HandleEvent(packet); err != nil {
				h.Logger.Warn("failed to handle event", "event", packet.Event.GetId(), "error", err)
			}
		case text := <-h.finalChan:
			h.Emit(&stt.STTFinalOutputEvent{Text: text, Source: stt.SourceService})
		case text := <-h.interimChan:
			h.Emit(&stt.STTInterimOutputEvent{Text: text, Source: stt.SourceService})
		case err := <-h.errorChan:
			h.failover(err)
		case <-h.Ctx.Done():
			return
		}
	}
}

func (h *STTHandler) service() ISTTService {
	return h.Service.(ISTTService)
}

func (h *STTHandler) startSession() {
	if err := h.service().StartTranscriptionSession(h.finalChan, h.interimChan, h.errorChan); err != nil {
		h.failover(err)
	}
}

// failover moves to the next backup service that starts. With none left
// the client is told transcription is unavailable; its own transcripts keep
// working.
func (h *STTHandler) failover(err error) {
	if h.failed {
		return
	}
	h.Logger.Error("transcription service failed", "error", err)
	for {
		switchErr := h.SwitchToBackupService()
		if switchErr == nil {
			break
		}
		if errors.Is(switchErr, core.ErrNoBackupService) {
			h.failed = true
			h.Emit(&playbackevents.StatusEvent{
				State:   playbackevents.StatusError,
				Code:    "stt_unavailable",
				Message: err.Error(),
			})
			return
		}
		h.Logger.Warn("backup transcription service failed to start", "error", switchErr)
	}
	h.Logger.Info("switched to backup transcription service")
	h.startSession()
}

func (h *STTHandler) HandleEvent(eventPacket *core.EventPacket) error {
	event, ok := eventPacket.Event.(*transport.TransportAudioInputEvent)
	if !ok {
		h.SendPacket(eventPacket)
		return nil
	}
	if h.failed {
		return nil
	}

	chunk := event.AudioChunk
	if chunk.Format == core.PCM {
		data, err := audio.StripWAVHeaderIfPresent(chunk.Data)
		if err != nil {
			return err
		}
		chunk.Data = data
	}
	converted, err := audio.ConvertAudioChunk(chunk, h.config.format(), h.config.RequiredChannels, h.config.RequiredSampleRate)
	if err != nil {
		return err
	}
	if err := h.service().SendTranscriptionAudio(converted); err != nil {
		h.failover(err)
	}
	return nil
}
