// Package audit provides the append-only per-identity event trail. Entries
// are immutable and hash-chained; retention, redaction, and off-box shipping
// belong to external collaborators (the Kafka sink is the shipping hook).
package audit

import (
	"context"
	"time"

	id "persona/pkg/domain"
)

// Action names what happened to an identity.
type Action string

const (
	ActionCreated           Action = "identity_created"
	ActionSwitched          Action = "identity_switched"
	ActionUpdated           Action = "identity_updated"
	ActionDeleted           Action = "identity_deleted"
	ActionPrivacyChanged    Action = "privacy_changed"
	ActionSecurityEvent     Action = "security_event"
	ActionKycSubmitted      Action = "kyc_submitted"
	ActionSwitchFailed      Action = "switch_failed"
	ActionRollbackCompleted Action = "rollback_completed"
)

// SecurityLevel classifies entries for downstream routing: compliance events
// need long retention, security events feed monitoring, operations events
// can be sampled.
type SecurityLevel string

const (
	LevelCompliance SecurityLevel = "compliance"
	LevelSecurity   SecurityLevel = "security"
	LevelOperations SecurityLevel = "operations"
)

// actionLevels maps each action to its security level; the map is the single
// source of truth for routing.
var actionLevels = map[Action]SecurityLevel{
	ActionCreated:           LevelCompliance,
	ActionDeleted:           LevelCompliance,
	ActionKycSubmitted:      LevelCompliance,
	ActionPrivacyChanged:    LevelCompliance,
	ActionSwitched:          LevelOperations,
	ActionUpdated:           LevelOperations,
	ActionSecurityEvent:     LevelSecurity,
	ActionSwitchFailed:      LevelSecurity,
	ActionRollbackCompleted: LevelSecurity,
}

// Level returns the action's security level, defaulting to operations.
func (a Action) Level() SecurityLevel {
	if lvl, ok := actionLevels[a]; ok {
		return lvl
	}
	return LevelOperations
}

// Entry is one immutable audit record. Sequence is per-identity and strictly
// increasing; Hash chains each entry to its predecessor so tampering breaks
// verification.
type Entry struct {
	ID         id.AuditEntryID   `json:"id"`
	IdentityID id.IdentityID     `json:"identity_id"`
	Action     Action            `json:"action"`
	Level      SecurityLevel     `json:"level"`
	Timestamp  time.Time         `json:"timestamp"`
	Actor      string            `json:"actor,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Sequence   uint64            `json:"sequence"`
	PrevHash   string            `json:"prev_hash"`
	Hash       string            `json:"hash"`
}

// Store persists audit entries. Implementations must preserve insertion
// order per identity and never mutate stored entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByIdentity(ctx context.Context, identityID id.IdentityID) ([]Entry, error)
}

// Sink receives entries for off-box shipping. Sink failures never fail the
// logical append.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}
