// Package models holds the identity hierarchy domain types. The registry is
// the source of truth as a flat id→Identity map; parent/children are id
// references, never object pointers, so the tree stays an index structure
// rather than an object graph.
package models

import (
	"time"

	id "persona/pkg/domain"
	dErrors "persona/pkg/domain-errors"
)

// IdentityType classifies a node in the hierarchy.
type IdentityType string

const (
	TypeRoot       IdentityType = "root"
	TypeDAO        IdentityType = "dao"
	TypeEnterprise IdentityType = "enterprise"
	TypeConsentida IdentityType = "consentida"
	TypeAID        IdentityType = "aid"
)

// ParseIdentityType constructs an IdentityType from external input.
func ParseIdentityType(s string) (IdentityType, error) {
	t := IdentityType(s)
	if _, ok := typeRules[t]; !ok {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown identity type %q", s)
	}
	return t, nil
}

// IdentityStatus is the lifecycle state of an identity.
type IdentityStatus string

const (
	StatusActive              IdentityStatus = "active"
	StatusInactive            IdentityStatus = "inactive"
	StatusSuspended           IdentityStatus = "suspended"
	StatusDeleted             IdentityStatus = "deleted"
	StatusPendingVerification IdentityStatus = "pending_verification"
)

// PrivacyLevel controls how visible an identity is to collaborating modules.
type PrivacyLevel string

const (
	PrivacyPublic    PrivacyLevel = "public"
	PrivacyPrivate   PrivacyLevel = "private"
	PrivacyAnonymous PrivacyLevel = "anonymous"
)

// GovernanceLevel records who must approve changes to an identity.
type GovernanceLevel string

const (
	GovernanceSelf       GovernanceLevel = "self_sovereign"
	GovernanceDAO        GovernanceLevel = "dao"
	GovernanceEnterprise GovernanceLevel = "enterprise"
	GovernanceParental   GovernanceLevel = "parental"
)

// KYCRecord tracks verification state for an identity. Actual verification
// is an external collaborator concern; only the state lives here.
type KYCRecord struct {
	Required    bool       `json:"required"`
	Submitted   bool       `json:"submitted"`
	Approved    bool       `json:"approved"`
	Level       string     `json:"level,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// UsageStats accumulates per-identity activity counters.
type UsageStats struct {
	SwitchCount     int        `json:"switch_count"`
	LastSwitch      *time.Time `json:"last_switch,omitempty"`
	ModulesAccessed []string   `json:"modules_accessed,omitempty"`
}

// Identity is a node in the hierarchy. Children and Path hold ids only;
// Path lists the ancestors root-first and excludes the identity itself,
// so it is empty for a root.
type Identity struct {
	ID         id.IdentityID   `json:"id"`
	Type       IdentityType    `json:"type"`
	Name       string          `json:"name"`
	ParentID   *id.IdentityID  `json:"parent_id,omitempty"`
	RootID     id.IdentityID   `json:"root_id"`
	Depth      int             `json:"depth"`
	Path       []id.IdentityID `json:"path"`
	Children   []id.IdentityID `json:"children"`
	Status     IdentityStatus  `json:"status"`
	Privacy    PrivacyLevel    `json:"privacy"`
	Governance GovernanceLevel `json:"governance"`
	KYC        KYCRecord       `json:"kyc"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	LastUsedAt time.Time       `json:"last_used_at"`
	Usage      UsageStats      `json:"usage"`
}

// IsRoot reports whether this identity heads its tree.
func (i *Identity) IsRoot() bool { return i.ParentID == nil }

// Clone returns a deep copy so callers can never mutate registry state
// through a returned pointer.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	if i.ParentID != nil {
		pid := *i.ParentID
		out.ParentID = &pid
	}
	out.Path = append([]id.IdentityID(nil), i.Path...)
	out.Children = append([]id.IdentityID(nil), i.Children...)
	if i.Usage.LastSwitch != nil {
		ls := *i.Usage.LastSwitch
		out.Usage.LastSwitch = &ls
	}
	out.Usage.ModulesAccessed = append([]string(nil), i.Usage.ModulesAccessed...)
	if i.KYC.SubmittedAt != nil {
		sa := *i.KYC.SubmittedAt
		out.KYC.SubmittedAt = &sa
	}
	return &out
}

// Metadata carries caller-supplied attributes for a new sub-identity.
// Defaults for zero-valued fields come from the per-type rules table.
type Metadata struct {
	Name       string
	Type       IdentityType
	Privacy    PrivacyLevel
	Governance GovernanceLevel
	KYCLevel   string
}

// Validate enforces the metadata rules shared by every creation path.
func (m Metadata) Validate() error {
	if m.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "identity name is required")
	}
	if len(m.Name) > 128 {
		return dErrors.New(dErrors.CodeValidation, "identity name exceeds 128 characters")
	}
	if _, ok := typeRules[m.Type]; !ok {
		return dErrors.Newf(dErrors.CodeValidation, "unknown identity type %q", m.Type)
	}
	if m.Type == TypeRoot {
		return dErrors.New(dErrors.CodeValidation, "root identities cannot be created as sub-identities")
	}
	switch m.Privacy {
	case "", PrivacyPublic, PrivacyPrivate, PrivacyAnonymous:
	default:
		return dErrors.Newf(dErrors.CodeValidation, "unknown privacy level %q", m.Privacy)
	}
	switch m.Governance {
	case "", GovernanceSelf, GovernanceDAO, GovernanceEnterprise:
	default:
		return dErrors.Newf(dErrors.CodeValidation, "unknown governance level %q", m.Governance)
	}
	return nil
}

// TreeNode is one node of the derived tree projection.
type TreeNode struct {
	Identity *Identity   `json:"identity"`
	Children []*TreeNode `json:"children,omitempty"`
}

// IdentityTree is a derived view over the registry, never a source of truth.
type IdentityTree struct {
	Root        *TreeNode `json:"root"`
	TotalNodes  int       `json:"total_nodes"`
	MaxDepth    int       `json:"max_depth"`
	LastUpdated time.Time `json:"last_updated"`
}
