// Package runner wires handlers into a pipeline and supervises one session.
package runner

import (
	"context"
	"sync"

	"glosskit/core"
)

const chanSize = 100

// Runner connects Handlers in order: each handler's next output feeds the
// following handler's input. Packets sent to the top destination are
// inspected here; session-ending events close Finished and everything else
// is re-injected at the first handler so the whole chain sees it.
type Runner struct {
	Handlers []core.IHandler
	Finished chan struct{}

	// OnFinalOutput, when set, receives packets leaving the last handler.
	OnFinalOutput func(*core.EventPacket)

	logger         *core.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	inputChans     []chan *core.EventPacket
	topOutputChan  chan *core.EventPacket
	lastOutputChan chan *core.EventPacket
	finishOnce     sync.Once
}

func NewRunner(handlers []core.IHandler, logger *core.Logger) *Runner {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Runner{
		Handlers: handlers,
		Finished: make(chan struct{}),
		logger:   logger.With(map[string]any{"component": "runner"}),
	}
}

func (r *Runner) Start() error {
	if len(r.Handlers) == 0 {
		r.finish("empty pipeline")
		return nil
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.topOutputChan = make(chan *core.EventPacket, chanSize)
	r.lastOutputChan = make(chan *core.EventPacket, chanSize)

	r.inputChans = make([]chan *core.EventPacket, len(r.Handlers))
	for i := range r.inputChans {
		r.inputChans[i] = make(chan *core.EventPacket, chanSize)
	}

	for i, handler := range r.Handlers {
		outputNextChan := r.lastOutputChan
		if i < len(r.Handlers)-1 {
			outputNextChan = r.inputChans[i+1]
		}
		if err := handler.Initialize(r.inputChans[i], outputNextChan, r.topOutputChan, r.ctx); err != nil {
			r.cancel()
			return err
		}
	}
	// Every handler is wired before any starts so early events have
	// somewhere to go.
	for _, handler := range r.Handlers {
		if err := handler.Start(); err != nil {
			r.cancel()
			return err
		}
	}

	go r.listenToOutputs()
	return nil
}

func (r *Runner) listenToOutputs() {
	for {
		select {
		case packet := <-r.lastOutputChan:
			if r.OnFinalOutput != nil {
				r.OnFinalOutput(packet)
			}
		case packet := <-r.topOutputChan:
			r.processTopOutput(packet)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Runner) processTopOutput(packet *core.EventPacket) {
	switch event := packet.Event.(type) {
	case *core.CriticalErrorEvent:
		r.logger.Error("critical error, ending session", "relayer", packet.Relayer, "error", event.Error)
		r.finish(event.Error)
	case *core.EndSessionEvent:
		r.logger.Info("session ended", "relayer", packet.Relayer, "reason", event.Reason)
		r.finish(event.Reason)
	case *core.WarningEvent:
		r.logger.Warn("handler warning", "relayer", packet.Relayer, "error", event.Error)
	default:
		select {
		case r.inputChans[0] <- core.Forward(packet.Event, packet.Relayer):
		case <-r.ctx.Done():
		}
	}
}

func (r *Runner) finish(reason string) {
	r.finishOnce.Do(func() {
		r.logger.Debug("runner finished", "reason", reason)
		close(r.Finished)
	})
}

// Stop cancels the pipeline context and cleans up every handler. It
// returns the first cleanup error.
func (r *Runner) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	var first error
	for _, handler := range r.Handlers {
		if err := handler.Cleanup(); err != nil && first == nil {
			first = err
		}
	}
	r.finish("stopped")
	return first
}

func (r *Runner) Reset() error {
	var first error
	for _, handler := range r.Handlers {
		if err := handler.Reset(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
