// Package domain holds typed identifiers shared across features.
//
// IDs are distinct uuid-backed types so the compiler rejects accidental
// cross-assignment (an IdentityID can never be passed where a SwitchID is
// expected). Construct from external input via the Parse* functions; direct
// casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "persona/pkg/domain-errors"
)

// IdentityID identifies a node in the identity hierarchy.
type IdentityID uuid.UUID

// SwitchID identifies a single switch operation end to end.
type SwitchID uuid.UUID

// AuditEntryID identifies an audit trail entry.
type AuditEntryID uuid.UUID

// NewIdentityID returns a fresh random IdentityID.
func NewIdentityID() IdentityID { return IdentityID(uuid.New()) }

// NewSwitchID returns a fresh random SwitchID.
func NewSwitchID() SwitchID { return SwitchID(uuid.New()) }

// NewAuditEntryID returns a fresh random AuditEntryID.
func NewAuditEntryID() AuditEntryID { return AuditEntryID(uuid.New()) }

// ParseIdentityID constructs an IdentityID from external input.
// Errors: CodeInvalidInput when the value is empty, malformed, or the nil UUID.
func ParseIdentityID(s string) (IdentityID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return IdentityID{}, err
	}
	return IdentityID(u), nil
}

// ParseSwitchID constructs a SwitchID from external input.
func ParseSwitchID(s string) (SwitchID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return SwitchID{}, err
	}
	return SwitchID(u), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is not a valid uuid")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil uuid")
	}
	return u, nil
}

func (i IdentityID) String() string { return uuid.UUID(i).String() }
func (i IdentityID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }

func (s SwitchID) String() string { return uuid.UUID(s).String() }
func (s SwitchID) IsNil() bool    { return uuid.UUID(s) == uuid.Nil }

func (a AuditEntryID) String() string { return uuid.UUID(a).String() }
func (a AuditEntryID) IsNil() bool    { return uuid.UUID(a) == uuid.Nil }

// The ids serialize as their canonical uuid strings. Unmarshalling goes
// through uuid.Parse but deliberately not parseUUID: stored snapshots may
// legitimately carry a nil uuid in optional fields.

func (i IdentityID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *IdentityID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*i = IdentityID(u)
	return nil
}

func (s SwitchID) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *SwitchID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*s = SwitchID(u)
	return nil
}

func (a AuditEntryID) MarshalText() ([]byte, error) { return []byte(a.String()), nil }
func (a *AuditEntryID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*a = AuditEntryID(u)
	return nil
}
