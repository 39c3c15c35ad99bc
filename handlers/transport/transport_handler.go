package transport

import (
	"context"
	"errors"
	"fmt"

	"glosskit/core"
)

var ErrNoSerializer = errors.New("transport: no serializer configured")

// TransportHandlerWrapper holds the state shared by the input and output
// handlers of one session.
type TransportHandlerWrapper struct {
	service ITransportService
	config  TransportConfig
	logger  *core.Logger

	connected bool
}

func NewTransportHandlerWrapper(service ITransportService, config TransportConfig, logger *core.Logger) *TransportHandlerWrapper {
	if config.Serializer == nil {
		config.Serializer = NewSessionSerializer(DefaultAudioFormat())
	}
	return &TransportHandlerWrapper{
		service: service,
		config:  config,
		logger:  logger,
	}
}

func (w *TransportHandlerWrapper) connect() error {
	if w.connected {
		return nil
	}
	if err := w.service.Connect(); err != nil {
		return fmt.Errorf("transport: connect: %w", err)
	}
	w.connected = true
	return nil
}

func (w *TransportHandlerWrapper) GetInputHandler() *TransportInputHandler {
	return &TransportInputHandler{
		BaseHandler: *core.NewBaseHandler("TransportInputHandler", w.service, nil, w.logger),
		wrapper:     w,
	}
}

func (w *TransportHandlerWrapper) GetOutputHandler() *TransportOutputHandler {
	return &TransportOutputHandler{
		BaseHandler: *core.NewBaseHandler("TransportOutputHandler", core.NopService{}, nil, w.logger),
		wrapper:     w,
	}
}

// TransportInputHandler decodes client frames into pipeline events. It is
// the first handler of a session pipeline.
type TransportInputHandler struct {
	core.BaseHandler
	wrapper *TransportHandlerWrapper
}

func (h *TransportInputHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	return h.wrapper.connect()
}

func (h *TransportInputHandler) Start() error {
	outputChan := make(chan core.RawData, 32)
	errorChan := make(chan error, 1)
	closed := make(chan struct{})

	go func() {
		defer close(closed)
		h.wrapper.service.StartReceiving(outputChan, errorChan)
	}()
	go h.eventLoop(outputChan, errorChan, closed)
	return nil
}

func (h *TransportInputHandler) eventLoop(outputChan <-chan core.RawData, errorChan <-chan error, closed <-chan struct{}) {
	for {
		select {
		case raw := <-outputChan:
			h.decode(raw)
		case packet := <-h.InputChan:
			h.HandleEvent(packet)
		case err := <-errorChan:
			h.Logger.Warn("client connection failed", "error", err)
			h.endSession(err.Error())
			return
		case <-closed:
			h.drain(outputChan)
			h.Logger.Info("client disconnected")
			h.endSession("client disconnected")
			return
		case <-h.Ctx.Done():
			return
		}
	}
}

func (h *TransportInputHandler) decode(raw core.RawData) {
	serializer := h.wrapper.config.Serializer
	if serializer == nil {
		h.HandleError(ErrNoSerializer)
		return
	}
	events, err := serializer.Deserialize(raw)
	if err != nil {
		// A malformed message never ends the session.
		h.Logger.Warn("dropping client message", "error", err)
		return
	}
	for _, event := range events {
		h.Emit(event)
	}
}

// drain decodes frames that were queued before the connection closed.
func (h *TransportInputHandler) drain(outputChan <-chan core.RawData) {
	for {
		select {
		case raw := <-outputChan:
			h.decode(raw)
		default:
			return
		}
	}
}

func (h *TransportInputHandler) endSession(reason string) {
	h.SendPacket(core.NewEventPacket(&core.EndSessionEvent{Reason: reason}, core.EventRelayDestinationTopService, h.Name))
}

func (h *TransportInputHandler) HandleEvent(eventPacket *core.EventPacket) error {
	h.SendPacket(eventPacket)
	return nil
}

// TransportOutputHandler writes every external output event to the client.
// It is the last handler of a session pipeline.
type TransportOutputHandler struct {
	core.BaseHandler
	wrapper *TransportHandlerWrapper
}

func (h *TransportOutputHandler) Initialize(
	inputChan <-chan *core.EventPacket,
	outputNextChan chan<- *core.EventPacket,
	outputTopChan chan<- *core.EventPacket,
	ctx context.Context,
) error {
	if err := h.BaseHandler.Initialize(inputChan, outputNextChan, outputTopChan, ctx); err != nil {
		return err
	}
	return h.wrapper.connect()
}

func (h *TransportOutputHandler) Start() error {
	go func() {
		for {
			select {
			case packet := <-h.InputChan:
				if err := h.HandleEvent(packet); err != nil {
					h.Logger.Warn("failed to deliver event", "event", packet.Event.GetId(), "error", err)
				}
			case <-h.Ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (h *TransportOutputHandler) HandleEvent(eventPacket *core.EventPacket) error {
	var err error
	if event, ok := eventPacket.Event.(core.IExternalOutputEvent); ok {
		err = h.deliver(event)
	}
	h.SendPacket(eventPacket)
	return err
}

func (h *TransportOutputHandler) deliver(event core.IExternalOutputEvent) error {
	serializer := h.wrapper.config.Serializer
	if serializer == nil {
		return ErrNoSerializer
	}
	raw, ok, err := serializer.Serialize(event)
	if err != nil {
		return fmt.Errorf("transport: serialize %s: %w", event.GetId(), err)
	}
	if !ok {
		return nil
	}
	if err := h.wrapper.service.SendRawOutput(raw); err != nil {
		return fmt.Errorf("transport: send %s: %w", event.GetId(), err)
	}
	if h.wrapper.config.OnOutput != nil {
		h.wrapper.config.OnOutput(event)
	}
	return nil
}
