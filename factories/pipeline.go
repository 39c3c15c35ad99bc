package factories

import (
	"context"
	"time"

	"glosskit/core"
	"glosskit/handlers/transport"
	"glosskit/runner"
)

// PipelineConfig configures a Pipeline's lifecycle behaviour.
type PipelineConfig struct {
	Timeout time.Duration // Zero means sessions run until the client leaves.
}

// HandlerBuilder creates the ordered handler slice for a single session.
// It receives the transport service and the session context.
type HandlerBuilder func(svc transport.ITransportService, ctx context.Context) ([]core.IHandler, error)

// Pipeline builds and runs handler pipelines for incoming sessions.
type Pipeline struct {
	config  PipelineConfig
	builder HandlerBuilder
	logger  *core.Logger

	// OnSessionStart and OnSessionEnd bracket every session whose handlers
	// were built.
	OnSessionStart func(ctx context.Context, svc transport.ITransportService)
	OnSessionEnd   func(ctx context.Context)
}

// NewPipeline creates a Pipeline that uses builder to construct handlers per session.
func NewPipeline(builder HandlerBuilder, config PipelineConfig, logger *core.Logger) *Pipeline {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Pipeline{
		builder: builder,
		config:  config,
		logger:  logger,
	}
}

// Run builds a handler pipeline for a single session and blocks until the
// session ends, ctx is cancelled or the timeout elapses.
func (p *Pipeline) Run(svc transport.ITransportService, ctx context.Context) error {
	base := core.SessionLoggerFromContext(ctx)
	if base == nil {
		base = p.logger
	}
	logger := base.With(map[string]any{"component": "pipeline"})

	if ctx.Err() != nil {
		logger.Info("context already cancelled, skipping session")
		return nil
	}
	if svc == nil {
		logger.Warn("nil transport service, skipping session")
		return nil
	}

	handlers, err := p.builder(svc, ctx)
	if err != nil {
		logger.Error("failed to build handlers", "error", err)
		return err
	}

	if p.OnSessionStart != nil {
		p.OnSessionStart(ctx, svc)
	}
	if p.OnSessionEnd != nil {
		defer p.OnSessionEnd(ctx)
	}

	r := runner.NewRunner(handlers, base)
	if err := r.Start(); err != nil {
		logger.Error("runner failed to start", "error", err)
		_ = r.Stop()
		return err
	}
	logger.Info("session pipeline started", "handlers", len(handlers))

	var timerC <-chan time.Time
	if p.config.Timeout > 0 {
		timer := time.NewTimer(p.config.Timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	var result error
	select {
	case <-ctx.Done():
		logger.Info("context cancelled, stopping runner")
	case <-timerC:
		logger.Warn("session timeout reached, stopping runner")
		result = context.DeadlineExceeded
	case <-r.Finished:
		logger.Info("runner finished")
	}
	if err := r.Stop(); err != nil {
		logger.Warn("handler cleanup failed", "error", err)
	}
	return result
}

// Serve registers a job handler with the provider, starts it,
// and blocks until ctx is cancelled. It then stops the provider.
func (p *Pipeline) Serve(provider transport.ITransportProvider, ctx context.Context) error {
	logger := p.logger.With(map[string]any{"component": "pipeline"})

	if err := provider.RegisterJobHandler(func(svc transport.ITransportService, jobCtx context.Context) error {
		return p.Run(svc, jobCtx)
	}); err != nil {
		logger.Error("failed to register job handler", "error", err)
		return err
	}

	if err := provider.Start(); err != nil {
		logger.Error("provider failed to start", "error", err)
		return err
	}

	logger.Info("provider started, waiting for sessions")
	<-ctx.Done()

	logger.Info("stopping provider")
	if err := provider.Stop(); err != nil {
		logger.Error("error stopping provider", "error", err)
	}
	return nil
}
