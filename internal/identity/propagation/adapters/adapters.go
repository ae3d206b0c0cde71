// Package adapters holds the in-process implementations of the dependent
// modules a switch must inform. Each adapter keeps just enough state to be
// observable in tests and handlers; a deployment wires real backends behind
// the same contract.
package adapters

import (
	"context"
	"strings"
	"sync"

	id "persona/pkg/domain"
	dErrors "persona/pkg/domain-errors"

	"persona/internal/identity/models"
)

// Consent tracks which identity's consent preferences are loaded. Loading
// fails closed: a switch cannot complete without the target's preferences.
type Consent struct {
	mu     sync.Mutex
	active id.IdentityID
}

func NewConsent() *Consent { return &Consent{} }

func (c *Consent) Name() string   { return "consent" }
func (c *Consent) Critical() bool { return true }

func (c *Consent) Apply(ctx context.Context, identity *models.Identity) error {
	if identity.Status != models.StatusActive {
		return dErrors.Newf(dErrors.CodeValidation, "consent preferences unavailable for %s identity", identity.Status)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = identity.ID
	return nil
}

func (c *Consent) Rollback(ctx context.Context, identity *models.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = identity.ID
	return nil
}

// Active reports the identity whose consent preferences are loaded.
func (c *Consent) Active() id.IdentityID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// KeyManagement activates the signing keypair scoped to an identity. Key
// activation is critical: operating under the wrong keys is worse than
// failing the switch.
type KeyManagement struct {
	mu   sync.Mutex
	keys map[id.IdentityID]string
}

func NewKeyManagement() *KeyManagement {
	return &KeyManagement{keys: make(map[id.IdentityID]string)}
}

func (k *KeyManagement) Name() string   { return "key_management" }
func (k *KeyManagement) Critical() bool { return true }

func (k *KeyManagement) Apply(ctx context.Context, identity *models.Identity) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.keys[identity.ID]; !ok {
		k.keys[identity.ID] = "key-" + identity.ID.String()
	}
	return nil
}

func (k *KeyManagement) Rollback(ctx context.Context, identity *models.Identity) error {
	return k.Apply(ctx, identity)
}

// Wallet repoints the payment scope at the identity. Non-critical: a wallet
// outage degrades payments, not the switch itself.
type Wallet struct {
	mu     sync.Mutex
	scoped id.IdentityID
}

func NewWallet() *Wallet { return &Wallet{} }

func (w *Wallet) Name() string   { return "wallet" }
func (w *Wallet) Critical() bool { return false }

func (w *Wallet) Apply(ctx context.Context, identity *models.Identity) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scoped = identity.ID
	return nil
}

func (w *Wallet) Rollback(ctx context.Context, identity *models.Identity) error {
	return w.Apply(ctx, identity)
}

// SearchIndex updates the discovery index with the identity's visibility.
// Anonymous identities are removed from the index rather than updated.
type SearchIndex struct {
	mu      sync.Mutex
	visible map[id.IdentityID]string
}

func NewSearchIndex() *SearchIndex {
	return &SearchIndex{visible: make(map[id.IdentityID]string)}
}

func (s *SearchIndex) Name() string   { return "search_index" }
func (s *SearchIndex) Critical() bool { return false }

func (s *SearchIndex) Apply(ctx context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identity.Privacy == models.PrivacyAnonymous {
		delete(s.visible, identity.ID)
		return nil
	}
	s.visible[identity.ID] = strings.ToLower(identity.Name)
	return nil
}

func (s *SearchIndex) Rollback(ctx context.Context, identity *models.Identity) error {
	return s.Apply(ctx, identity)
}

// AuditSink forwards switch notifications into the audit trail. Non-critical:
// the switcher records the authoritative audit entry itself, this adapter
// only feeds downstream consumers.
type AuditSink struct {
	trail Recorder

	mu       sync.Mutex
	notified []id.IdentityID
}

// Recorder is the slice of the audit trail the sink needs.
type Recorder interface {
	Record(ctx context.Context, identityID id.IdentityID, actor string) error
}

func NewAuditSink(trail Recorder) *AuditSink { return &AuditSink{trail: trail} }

func (a *AuditSink) Name() string   { return "audit_sink" }
func (a *AuditSink) Critical() bool { return false }

func (a *AuditSink) Apply(ctx context.Context, identity *models.Identity) error {
	if a.trail != nil {
		if err := a.trail.Record(ctx, identity.ID, "system"); err != nil {
			return err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notified = append(a.notified, identity.ID)
	return nil
}

func (a *AuditSink) Rollback(ctx context.Context, identity *models.Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.notified); n > 0 {
		a.notified = a.notified[:n-1]
	}
	return nil
}
