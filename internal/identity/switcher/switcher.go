// Package switcher changes the active identity atomically. A switch walks a
// fixed state machine and either commits fully or restores the previous
// identity, so callers never observe a half-propagated context.
package switcher

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"persona/pkg/attrs"
	id "persona/pkg/domain"
	dErrors "persona/pkg/domain-errors"
	"persona/pkg/requestcontext"

	"persona/internal/audit"
	"persona/internal/device"
	"persona/internal/identity/cache"
	"persona/internal/identity/metrics"
	"persona/internal/identity/models"
	"persona/internal/identity/propagation"
)

// State is the switcher's position in the switch lifecycle. Exposed for
// observability only; callers synchronize on Switch, not on State.
type State string

const (
	StateIdle        State = "idle"
	StateValidating  State = "validating"
	StatePropagating State = "propagating"
	StateCommitting  State = "committing"
	StateComplete    State = "complete"
	StateRollingBack State = "rolling_back"
	StateFailed      State = "failed"
)

// Directory is the identity lookup surface the switcher needs.
type Directory interface {
	Get(ctx context.Context, identityID id.IdentityID) (*models.Identity, error)
	Children(ctx context.Context, identityID id.IdentityID) ([]*models.Identity, error)
	RecordSwitch(ctx context.Context, identityID id.IdentityID, at time.Time) error
}

// Trail is the audit surface the switcher writes to.
type Trail interface {
	Append(ctx context.Context, identityID id.IdentityID, action audit.Action, actor string, metadata map[string]string) (audit.Entry, error)
}

type Switcher struct {
	directory  Directory
	propagator *propagation.Propagator
	trail      Trail
	cache      *cache.Manager
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	clock      func() time.Time

	mu     sync.Mutex
	state  State
	active id.IdentityID
}

type Option func(*Switcher)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Switcher) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Switcher) { s.metrics = m }
}

func WithCache(c *cache.Manager) Option {
	return func(s *Switcher) { s.cache = c }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Switcher) { s.clock = clock }
}

func New(directory Directory, propagator *propagation.Propagator, trail Trail, opts ...Option) *Switcher {
	s := &Switcher{
		directory:  directory,
		propagator: propagator,
		trail:      trail,
		logger:     slog.Default(),
		tracer:     otel.Tracer("persona/switcher"),
		clock:      time.Now,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Activate seeds the active identity without running propagation. Used at
// bootstrap, before any switch has happened.
func (s *Switcher) Activate(identityID id.IdentityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = identityID
}

// Active returns the currently active identity.
func (s *Switcher) Active() id.IdentityID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// State reports the switcher's current lifecycle position.
func (s *Switcher) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Switch moves the active identity to target. Only one switch runs at a
// time; a second caller gets a conflict error immediately rather than
// queueing behind a propagation it knows nothing about.
func (s *Switcher) Switch(ctx context.Context, target id.IdentityID) (*models.ContextSwitchResult, error) {
	if !s.mu.TryLock() {
		return nil, dErrors.New(dErrors.CodeConflict, "identity switch already in progress")
	}
	defer func() {
		s.state = StateIdle
		s.mu.Unlock()
	}()

	ctx, span := s.tracer.Start(ctx, "switcher.switch",
		trace.WithAttributes(attribute.String("identity.target", target.String())))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "switch cancelled before validation")
	}

	result := &models.ContextSwitchResult{
		SwitchID:   id.NewSwitchID(),
		PreviousID: s.active,
		NewID:      target,
	}

	// Idempotent short-circuit: switching to the identity that is already
	// active touches no modules.
	if s.active == target {
		result.Success = true
		result.ContextUpdates = map[string]models.ModuleStatus{}
		result.CompletedAt = s.clock()
		s.state = StateComplete
		return result, nil
	}

	s.state = StateValidating
	targetIdentity, previousIdentity, err := s.validate(ctx, target)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	s.state = StatePropagating
	outcome := s.propagator.Apply(ctx, targetIdentity)
	result.ContextUpdates = outcome.Updates
	result.SuccessfulModules = outcome.Succeeded
	result.FailedModules = outcome.Failed
	result.Warnings = outcome.Warnings

	if outcome.CriticalFailure != "" {
		return result, s.rollback(ctx, result, previousIdentity, outcome)
	}

	s.state = StateCommitting
	s.commit(ctx, result, targetIdentity)

	s.state = StateComplete
	go s.preload(targetIdentity)
	return result, nil
}

func (s *Switcher) validate(ctx context.Context, target id.IdentityID) (targetIdentity, previousIdentity *models.Identity, err error) {
	targetIdentity, err = s.directory.Get(ctx, target)
	if err != nil {
		return nil, nil, err
	}
	if targetIdentity.Status != models.StatusActive {
		return nil, nil, dErrors.Newf(dErrors.CodeValidation,
			"identity %s is %s, only active identities can be switched to", target, targetIdentity.Status)
	}

	if s.active.IsNil() {
		return targetIdentity, nil, nil
	}
	previousIdentity, err = s.directory.Get(ctx, s.active)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "active identity vanished from registry")
	}
	if previousIdentity.RootID != targetIdentity.RootID {
		return nil, nil, dErrors.Newf(dErrors.CodeForbidden,
			"identity %s belongs to a different identity tree", target)
	}
	return targetIdentity, previousIdentity, nil
}

// rollback compensates the modules that already accepted the new identity,
// restoring the previous one. The active pointer never moved, so the
// previous identity stays authoritative regardless of compensation outcome.
func (s *Switcher) rollback(ctx context.Context, result *models.ContextSwitchResult, previous *models.Identity, outcome *propagation.Outcome) error {
	s.state = StateRollingBack
	if s.metrics != nil {
		s.metrics.SwitchFailures.Inc()
		s.metrics.RollbacksTotal.Inc()
	}

	if previous != nil {
		result.Rollback = s.propagator.Rollback(ctx, previous, outcome.Succeeded)
	} else {
		result.Rollback = &models.RollbackResult{Complete: true}
	}
	result.CompletedAt = s.clock()

	s.logAudit(ctx, result.NewID, audit.ActionSwitchFailed,
		"switch_id", result.SwitchID.String(),
		"failed_module", outcome.CriticalFailure,
		"rolled_back", strconv.FormatBool(result.Rollback.Complete),
	)
	if len(outcome.Succeeded) > 0 {
		s.logAudit(ctx, result.PreviousID, audit.ActionRollbackCompleted,
			"switch_id", result.SwitchID.String(),
		)
	}

	s.state = StateFailed
	if !result.Rollback.Complete {
		s.logger.ErrorContext(ctx, "rollback left modules inconsistent",
			"switch_id", result.SwitchID,
			"failed_modules", result.Rollback.Failed,
		)
		return dErrors.Newf(dErrors.CodeInternal,
			"critical module %s failed and rollback is incomplete", outcome.CriticalFailure)
	}
	return dErrors.Newf(dErrors.CodeUnavailable,
		"critical module %s rejected the switch, previous identity restored", outcome.CriticalFailure)
}

func (s *Switcher) commit(ctx context.Context, result *models.ContextSwitchResult, target *models.Identity) {
	now := s.clock()
	s.active = target.ID
	result.Success = true
	result.CompletedAt = now

	if err := s.directory.RecordSwitch(ctx, target.ID, now); err != nil {
		s.logger.WarnContext(ctx, "usage stats update failed", "identity_id", target.ID, "error", err)
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, target); err != nil {
			result.Warnings = append(result.Warnings, "cache refresh degraded: "+err.Error())
		}
	}
	if s.metrics != nil {
		s.metrics.SwitchesTotal.Inc()
	}

	s.logAudit(ctx, target.ID, audit.ActionSwitched,
		"switch_id", result.SwitchID.String(),
		"previous_id", result.PreviousID.String(),
	)
	s.logger.InfoContext(ctx, "identity switch committed",
		"switch_id", result.SwitchID,
		"previous_id", result.PreviousID,
		"new_id", target.ID,
		"warnings", len(result.Warnings),
	)
}

// logAudit records an audit entry with the request's actor and device
// metadata attached. kv is the usual slog key-value shape; an explicit
// "actor" pair overrides the actor from the request context.
func (s *Switcher) logAudit(ctx context.Context, identityID id.IdentityID, action audit.Action, kv ...any) {
	if s.trail == nil {
		return
	}
	actor := attrs.ExtractString(kv, "actor")
	if actor == "" {
		actor = requestcontext.ActorID(ctx)
	}
	if actor == "" {
		actor = "system"
	}
	metadata := attrs.ToMap(kv)
	delete(metadata, "actor")
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		metadata["device"] = device.ParseUserAgent(ua)
		metadata["device_fingerprint"] = device.Fingerprint(ua, requestcontext.ClientIP(ctx))
	}
	if _, err := s.trail.Append(ctx, identityID, action, actor, metadata); err != nil {
		s.logger.WarnContext(ctx, "audit append failed", "action", action, "error", err)
	}
}
