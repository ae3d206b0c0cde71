// Package propagation informs dependent modules that the active identity
// changed, and compensates them in reverse order when a critical module
// refuses the change.
package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"persona/internal/identity/metrics"
	"persona/internal/identity/models"
)

// ModuleAdapter is the contract every dependent module implements. Apply and
// Rollback must honor ctx cancellation; the propagator additionally bounds
// each call with its own timeout, so a hung adapter costs at most one
// timeout, not the whole switch.
type ModuleAdapter interface {
	Name() string
	Critical() bool
	Apply(ctx context.Context, identity *models.Identity) error
	Rollback(ctx context.Context, identity *models.Identity) error
}

// DefaultAdapterTimeout bounds a single adapter call.
const DefaultAdapterTimeout = 5 * time.Second

// Outcome is the result of one forward propagation pass.
type Outcome struct {
	Updates map[string]models.ModuleStatus
	// Succeeded holds adapter names in application order; rollback walks it
	// backwards.
	Succeeded       []string
	Failed          []string
	Warnings        []string
	CriticalFailure string
}

// Propagator applies an ordered adapter list sequentially. The order is
// fixed at construction because rollback correctness depends on knowing the
// exact completion order.
type Propagator struct {
	adapters []ModuleAdapter
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Propagator)

func WithTimeout(d time.Duration) Option {
	return func(p *Propagator) { p.timeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Propagator) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Propagator) { p.metrics = m }
}

func New(adapters []ModuleAdapter, opts ...Option) *Propagator {
	p := &Propagator{
		adapters: adapters,
		timeout:  DefaultAdapterTimeout,
		logger:   slog.Default(),
		tracer:   otel.Tracer("persona/propagation"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply invokes every adapter in declared order. A failed non-critical
// adapter becomes a warning; a failed critical adapter halts forward
// progress, marks the remaining adapters SKIPPED, and leaves compensation to
// the caller.
func (p *Propagator) Apply(ctx context.Context, identity *models.Identity) *Outcome {
	ctx, span := p.tracer.Start(ctx, "propagation.apply")
	defer span.End()

	outcome := &Outcome{Updates: make(map[string]models.ModuleStatus, len(p.adapters))}
	for _, adapter := range p.adapters {
		outcome.Updates[adapter.Name()] = models.ModulePending
	}

	for i, adapter := range p.adapters {
		start := time.Now()
		err := p.call(ctx, adapter.Apply, identity)
		if p.metrics != nil {
			p.metrics.AdapterDuration.WithLabelValues(adapter.Name()).Observe(time.Since(start).Seconds())
		}

		if err == nil {
			outcome.Updates[adapter.Name()] = models.ModuleSuccess
			outcome.Succeeded = append(outcome.Succeeded, adapter.Name())
			continue
		}

		outcome.Updates[adapter.Name()] = models.ModuleFailed
		outcome.Failed = append(outcome.Failed, adapter.Name())
		p.logger.WarnContext(ctx, "module adapter apply failed",
			"module", adapter.Name(),
			"critical", adapter.Critical(),
			"error", err,
		)

		if adapter.Critical() {
			outcome.CriticalFailure = adapter.Name()
			for _, remaining := range p.adapters[i+1:] {
				outcome.Updates[remaining.Name()] = models.ModuleSkipped
			}
			return outcome
		}
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("module %s failed: %v", adapter.Name(), err))
	}
	return outcome
}

// Rollback compensates the adapters named in succeeded, in strict reverse
// application order, so no successfully-applied critical module stays
// attached to an identity the system is abandoning.
func (p *Propagator) Rollback(ctx context.Context, identity *models.Identity, succeeded []string) *models.RollbackResult {
	ctx, span := p.tracer.Start(ctx, "propagation.rollback")
	defer span.End()

	byName := make(map[string]ModuleAdapter, len(p.adapters))
	for _, adapter := range p.adapters {
		byName[adapter.Name()] = adapter
	}

	result := &models.RollbackResult{Complete: true}
	for i := len(succeeded) - 1; i >= 0; i-- {
		adapter, ok := byName[succeeded[i]]
		if !ok {
			result.Failed = append(result.Failed, succeeded[i])
			result.Complete = false
			continue
		}
		if err := p.call(ctx, adapter.Rollback, identity); err != nil {
			p.logger.ErrorContext(ctx, "module adapter rollback failed",
				"module", adapter.Name(),
				"error", err,
			)
			result.Failed = append(result.Failed, adapter.Name())
			result.Complete = false
			continue
		}
		result.RolledBack = append(result.RolledBack, adapter.Name())
	}
	return result
}

// call bounds one adapter invocation. The goroutine hand-off means a
// misbehaving adapter that ignores ctx still cannot block the switch past
// the timeout.
func (p *Propagator) call(ctx context.Context, fn func(context.Context, *models.Identity) error, identity *models.Identity) error {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx, identity)
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		return callCtx.Err()
	}
}
