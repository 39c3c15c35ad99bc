package core

import (
	"context"
	"errors"
	"fmt"
)

type IService interface {
	Init(ctx context.Context) error
	Cleanup() error
	Reset() error
}

type IHandler interface {
	Initialize(
		inputChan <-chan *EventPacket,
		outputNextChan chan<- *EventPacket,
		outputTopChan chan<- *EventPacket,
		ctx context.Context,
	) error // Wires the handler into the pipeline and initialises its service.
	Start() error // Starts the handler's event loop. Must not block.
	HandleEvent(packet *EventPacket) error

	Cleanup() error // Cleans up resources used by the handler.
	Reset() error   // Resets the handler to its initial state.
}

// ErrNoBackupService is returned by SwitchToBackupService when every
// configured fallback has been used.
var ErrNoBackupService = errors.New("no backup services available")

type BaseHandler struct {
	Name                  string
	Service               IService
	BackupServices        []IService
	Ctx                   context.Context
	InputChan             <-chan *EventPacket
	outputNextChan        chan<- *EventPacket
	outputTopChan         chan<- *EventPacket
	FatalServiceErrorChan chan error
	Logger                *Logger
}

func NewBaseHandler(name string, service IService, backupServices []IService, logger *Logger) *BaseHandler {
	if service == nil {
		service = NopService{}
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &BaseHandler{
		Name:           name,
		Service:        service,
		BackupServices: backupServices,
		Logger:         logger.With(map[string]any{"handler": name}),
	}
}

func (h *BaseHandler) Initialize(
	inputChan <-chan *EventPacket,
	outputNextChan chan<- *EventPacket,
	outputTopChan chan<- *EventPacket,
	ctx context.Context,
) error {
	h.InputChan = inputChan
	h.outputNextChan = outputNextChan
	h.outputTopChan = outputTopChan
	h.FatalServiceErrorChan = make(chan error, 8)
	h.Ctx = ctx
	go h.fatalErrorHandlerLoop()
	if err := h.Service.Init(ctx); err != nil {
		return fmt.Errorf("%s: init service: %w", h.Name, err)
	}
	return nil
}

func (h *BaseHandler) Cleanup() error {
	return h.Service.Cleanup()
}

func (h *BaseHandler) Reset() error {
	return h.Service.Reset()
}

// WithBackupService appends a fallback service used after a fatal error.
func (h *BaseHandler) WithBackupService(service IService) {
	h.BackupServices = append(h.BackupServices, service)
}

func (h *BaseHandler) SwitchToBackupService() error {
	if len(h.BackupServices) == 0 {
		return ErrNoBackupService
	}
	next := h.BackupServices[0]
	if err := next.Init(h.Ctx); err != nil {
		h.BackupServices = h.BackupServices[1:]
		return fmt.Errorf("%s: init backup service: %w", h.Name, err)
	}
	_ = h.Service.Cleanup()
	h.Service = next
	h.BackupServices = h.BackupServices[1:]
	return nil
}

// SendPacket relays a packet to its destination. It gives up when the
// pipeline context is cancelled so no handler blocks past shutdown.
func (h *BaseHandler) SendPacket(packet *EventPacket) {
	out := h.outputNextChan
	if packet.Destination == EventRelayDestinationTopService {
		out = h.outputTopChan
	}
	if out == nil {
		return
	}
	if h.Ctx == nil {
		out <- packet
		return
	}
	select {
	case out <- packet:
	case <-h.Ctx.Done():
	}
}

// Emit forwards a freshly created event to the next handler.
func (h *BaseHandler) Emit(event IEvent) {
	h.SendPacket(Forward(event, h.Name))
}

// HandleError reports a fatal service error without blocking the caller.
func (h *BaseHandler) HandleError(err error) {
	select {
	case h.FatalServiceErrorChan <- err:
	default:
		h.Logger.Error("fatal error channel full, dropping error", "error", err)
	}
}

func (h *BaseHandler) fatalErrorHandlerLoop() {
	for {
		select {
		case err := <-h.FatalServiceErrorChan:
			h.Logger.Error("fatal service error", "error", err)
			if switchErr := h.SwitchToBackupService(); switchErr != nil {
				h.Logger.Warn("could not switch to backup service", "error", switchErr)
			} else {
				h.Logger.Info("switched to backup service")
			}
			h.SendPacket(
				NewEventPacket(&CriticalErrorEvent{Error: err.Error()}, EventRelayDestinationTopService, h.Name),
			)
		case <-h.Ctx.Done():
			return
		}
	}
}

// NopService is the IService used by handlers that own no external service.
type NopService struct{}

func (NopService) Init(context.Context) error { return nil }
func (NopService) Cleanup() error             { return nil }
func (NopService) Reset() error               { return nil }
