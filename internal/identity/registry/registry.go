// Package registry is the source of truth for the identity hierarchy. State
// is a flat id→Identity map guarded by one RWMutex; parent/child links are
// id references, and every tree view is derived on demand.
package registry

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"persona/pkg/attrs"
	id "persona/pkg/domain"
	dErrors "persona/pkg/domain-errors"
	"persona/pkg/requestcontext"

	"persona/internal/audit"
	"persona/internal/identity/cache"
	"persona/internal/identity/metrics"
	"persona/internal/identity/models"
)

// DefaultMaxDepth bounds the hierarchy. Root sits at depth 0.
const DefaultMaxDepth = 5

// Trail is the audit surface the registry writes to.
type Trail interface {
	Append(ctx context.Context, identityID id.IdentityID, action audit.Action, actor string, metadata map[string]string) (audit.Entry, error)
}

type Registry struct {
	maxDepth int
	cache    *cache.Manager
	trail    Trail
	logger   *slog.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time

	mu         sync.RWMutex
	identities map[id.IdentityID]*models.Identity
	rootID     id.IdentityID
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithCache(c *cache.Manager) Option {
	return func(r *Registry) { r.cache = c }
}

func WithMaxDepth(depth int) Option {
	return func(r *Registry) { r.maxDepth = depth }
}

func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.clock = clock }
}

func New(trail Trail, opts ...Option) *Registry {
	r := &Registry{
		maxDepth:   DefaultMaxDepth,
		trail:      trail,
		logger:     slog.Default(),
		clock:      time.Now,
		identities: make(map[id.IdentityID]*models.Identity),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bootstrap creates the root identity. Roots are never created through
// Create; they anchor the tree and cannot be deleted.
func (r *Registry) Bootstrap(ctx context.Context, name string) (*models.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.rootID.IsNil() {
		return nil, dErrors.New(dErrors.CodeConflict, "registry already has a root identity")
	}
	rule, _ := models.RuleFor(models.TypeRoot)
	now := r.clock()
	rootID := id.NewIdentityID()
	root := &models.Identity{
		ID:         rootID,
		Type:       models.TypeRoot,
		Name:       name,
		RootID:     rootID,
		Depth:      0,
		Path:       nil,
		Status:     models.StatusActive,
		Privacy:    rule.DefaultPrivacy,
		Governance: rule.DefaultGovernance,
		KYC:        models.KYCRecord{Required: rule.KYCRequired},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.identities[rootID] = root
	r.rootID = rootID

	r.persist(ctx, root)
	r.logAudit(ctx, rootID, audit.ActionCreated,
		"type", string(models.TypeRoot),
		"name", name,
		"actor", "bootstrap",
	)
	r.logger.InfoContext(ctx, "root identity bootstrapped", "identity_id", rootID, "name", name)
	return root.Clone(), nil
}

// Create adds a sub-identity under parentID. Defaults for privacy,
// governance and KYC come from the per-type rules table unless the caller
// overrides them.
func (r *Registry) Create(ctx context.Context, parentID id.IdentityID, meta models.Metadata) (*models.Identity, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	rule, ok := models.RuleFor(meta.Type)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown identity type %q", meta.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	parent, ok := r.identities[parentID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "parent identity %s not found", parentID)
	}
	if parent.Status != models.StatusActive {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "parent identity %s is %s", parentID, parent.Status)
	}
	parentRule, _ := models.RuleFor(parent.Type)
	if !parentRule.CanCreateChildren || !models.Allowed(parent.Type, "identity", "create") {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "%s identities cannot create sub-identities", parent.Type)
	}
	if parent.Depth >= r.maxDepth {
		return nil, dErrors.Newf(dErrors.CodeValidation, "maximum hierarchy depth %d reached", r.maxDepth)
	}

	now := r.clock()
	identity := &models.Identity{
		ID:         id.NewIdentityID(),
		Type:       meta.Type,
		Name:       meta.Name,
		ParentID:   &parentID,
		RootID:     parent.RootID,
		Depth:      parent.Depth + 1,
		Status:     models.StatusActive,
		Privacy:    meta.Privacy,
		Governance: meta.Governance,
		KYC:        models.KYCRecord{Required: rule.KYCRequired, Level: meta.KYCLevel},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if identity.Privacy == "" {
		identity.Privacy = rule.DefaultPrivacy
	}
	if identity.Governance == "" {
		identity.Governance = rule.DefaultGovernance
	}
	identity.Path = append(append([]id.IdentityID(nil), parent.Path...), parent.ID)

	r.identities[identity.ID] = identity
	parent.Children = append(parent.Children, identity.ID)
	parent.UpdatedAt = now

	r.persist(ctx, identity)
	r.persist(ctx, parent)

	if r.metrics != nil {
		r.metrics.IdentitiesCreated.Inc()
	}
	r.logAudit(ctx, identity.ID, audit.ActionCreated,
		"type", string(identity.Type),
		"name", identity.Name,
		"parent_id", parentID.String(),
	)
	r.logger.InfoContext(ctx, "sub-identity created",
		"identity_id", identity.ID,
		"parent_id", parentID,
		"type", identity.Type,
		"depth", identity.Depth,
	)
	return identity.Clone(), nil
}

// Delete removes an identity and its whole descendant closure. The closure
// is computed before any mutation, so a failure part-way cannot orphan a
// subtree.
func (r *Registry) Delete(ctx context.Context, identityID id.IdentityID) ([]id.IdentityID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.identities[identityID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "identity %s not found", identityID)
	}
	if identity.IsRoot() {
		return nil, dErrors.New(dErrors.CodeGovernance, "root identity cannot be deleted")
	}

	closure := r.closureLocked(identityID)

	for _, removedID := range closure {
		delete(r.identities, removedID)
	}
	if identity.ParentID != nil {
		if parent, ok := r.identities[*identity.ParentID]; ok {
			parent.Children = removeID(parent.Children, identityID)
			parent.UpdatedAt = r.clock()
			r.persist(ctx, parent)
		}
	}

	for _, removedID := range closure {
		if r.cache != nil {
			if err := r.cache.Invalidate(ctx, removedID); err != nil {
				r.logger.WarnContext(ctx, "cache invalidation degraded", "identity_id", removedID, "error", err)
			}
		}
		if r.metrics != nil {
			r.metrics.IdentitiesDeleted.Inc()
		}
		r.logAudit(ctx, removedID, audit.ActionDeleted, "cascade_root", identityID.String())
	}
	r.logger.InfoContext(ctx, "identity deleted",
		"identity_id", identityID,
		"cascade_count", len(closure),
	)
	return closure, nil
}

// closureLocked returns identityID plus every descendant, depth-first.
func (r *Registry) closureLocked(identityID id.IdentityID) []id.IdentityID {
	var closure []id.IdentityID
	stack := []id.IdentityID{identityID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node, ok := r.identities[current]
		if !ok {
			continue
		}
		closure = append(closure, current)
		stack = append(stack, node.Children...)
	}
	return closure
}

// Get returns the identity, falling back to the cache tier when the local
// map does not know the id (another instance may have created it).
func (r *Registry) Get(ctx context.Context, identityID id.IdentityID) (*models.Identity, error) {
	r.mu.RLock()
	identity, ok := r.identities[identityID]
	r.mu.RUnlock()
	if ok {
		return identity.Clone(), nil
	}

	if r.cache != nil {
		if cached, hit := r.cache.Get(ctx, identityID); hit {
			r.mu.Lock()
			if _, exists := r.identities[identityID]; !exists {
				r.identities[identityID] = cached.Clone()
			}
			r.mu.Unlock()
			return cached, nil
		}
	}
	return nil, dErrors.Newf(dErrors.CodeNotFound, "identity %s not found", identityID)
}

// Children returns the direct children of an identity.
func (r *Registry) Children(ctx context.Context, identityID id.IdentityID) ([]*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.identities[identityID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "identity %s not found", identityID)
	}
	children := make([]*models.Identity, 0, len(identity.Children))
	for _, childID := range identity.Children {
		if child, ok := r.identities[childID]; ok {
			children = append(children, child.Clone())
		}
	}
	return children, nil
}

// Root returns the tree's root identity.
func (r *Registry) Root(ctx context.Context) (*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	root, ok := r.identities[r.rootID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "registry has no root identity")
	}
	return root.Clone(), nil
}

// Tree builds the derived hierarchy projection rooted at rootID.
func (r *Registry) Tree(ctx context.Context, rootID id.IdentityID) (*models.IdentityTree, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	root, ok := r.identities[rootID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "identity %s not found", rootID)
	}

	tree := &models.IdentityTree{LastUpdated: r.clock()}
	tree.Root = r.projectLocked(root, tree)
	return tree, nil
}

func (r *Registry) projectLocked(identity *models.Identity, tree *models.IdentityTree) *models.TreeNode {
	tree.TotalNodes++
	if identity.Depth > tree.MaxDepth {
		tree.MaxDepth = identity.Depth
	}
	node := &models.TreeNode{Identity: identity.Clone()}
	for _, childID := range identity.Children {
		if child, ok := r.identities[childID]; ok {
			node.Children = append(node.Children, r.projectLocked(child, tree))
		}
	}
	return node
}

// SubmitKYC records a verification submission for an identity. Approval is
// the verifier's call and arrives through the same method. An unapproved
// submission parks the identity in pending verification until one passes.
func (r *Registry) SubmitKYC(ctx context.Context, identityID id.IdentityID, level string, approved bool) (*models.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.identities[identityID]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "identity %s not found", identityID)
	}
	now := r.clock()
	identity.KYC.Submitted = true
	identity.KYC.Approved = approved
	identity.KYC.Level = level
	identity.KYC.SubmittedAt = &now
	identity.UpdatedAt = now
	if !approved {
		identity.Status = models.StatusPendingVerification
	} else if identity.Status == models.StatusPendingVerification {
		identity.Status = models.StatusActive
	}

	r.persist(ctx, identity)
	r.logAudit(ctx, identityID, audit.ActionKycSubmitted,
		"level", level,
		"approved", strconv.FormatBool(approved),
	)
	return identity.Clone(), nil
}

// RecordSwitch bumps the usage counters after a committed switch.
func (r *Registry) RecordSwitch(ctx context.Context, identityID id.IdentityID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.identities[identityID]
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "identity %s not found", identityID)
	}
	identity.Usage.SwitchCount++
	identity.Usage.LastSwitch = &at
	identity.LastUsedAt = at
	identity.UpdatedAt = at
	r.persist(ctx, identity)
	return nil
}

// persist write-through caches a snapshot. The registry map stays
// authoritative, so a degraded persistent tier is a warning, not a failure.
func (r *Registry) persist(ctx context.Context, identity *models.Identity) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Put(ctx, identity.Clone()); err != nil {
		r.logger.WarnContext(ctx, "identity snapshot persistence degraded",
			"identity_id", identity.ID, "error", err)
	}
}

// logAudit records an audit entry under the request's actor. kv is the
// usual slog key-value shape.
func (r *Registry) logAudit(ctx context.Context, identityID id.IdentityID, action audit.Action, kv ...any) {
	if r.trail == nil {
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
	if _, err := r.trail.Append(ctx, identityID, action, actor, metadata); err != nil {
		r.logger.WarnContext(ctx, "audit append failed", "action", action, "error", err)
	}
}

func removeID(ids []id.IdentityID, target id.IdentityID) []id.IdentityID {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != target {
			out = append(out, candidate)
		}
	}
	return out
}
