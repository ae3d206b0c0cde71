package models

// TypeRule captures the static defaults and permissions for one identity
// type. One row per type; the table is the single source of truth, so
// permission data stays serializable with no embedded behavior.
type TypeRule struct {
	KYCRequired       bool
	CanCreateChildren bool
	DefaultPrivacy    PrivacyLevel
	DefaultGovernance GovernanceLevel
}

var typeRules = map[IdentityType]TypeRule{
	TypeRoot:       {KYCRequired: true, CanCreateChildren: true, DefaultPrivacy: PrivacyPrivate, DefaultGovernance: GovernanceSelf},
	TypeDAO:        {KYCRequired: true, CanCreateChildren: true, DefaultPrivacy: PrivacyPublic, DefaultGovernance: GovernanceDAO},
	TypeEnterprise: {KYCRequired: true, CanCreateChildren: true, DefaultPrivacy: PrivacyPrivate, DefaultGovernance: GovernanceEnterprise},
	TypeConsentida: {KYCRequired: false, CanCreateChildren: false, DefaultPrivacy: PrivacyPrivate, DefaultGovernance: GovernanceParental},
	TypeAID:        {KYCRequired: false, CanCreateChildren: false, DefaultPrivacy: PrivacyAnonymous, DefaultGovernance: GovernanceSelf},
}

// RuleFor returns the rules row for an identity type.
func RuleFor(t IdentityType) (TypeRule, bool) {
	r, ok := typeRules[t]
	return r, ok
}

// moduleGrants is the declarative (identityType, module, action) permission
// table. Anything not listed is denied.
var moduleGrants = map[IdentityType]map[string]map[string]bool{
	TypeRoot: {
		"identity": {"create": true, "delete": true, "switch": true},
		"consent":  {"read": true, "write": true},
		"keys":     {"read": true, "rotate": true},
		"wallet":   {"read": true, "transact": true},
		"search":   {"read": true, "index": true},
	},
	TypeDAO: {
		"identity": {"create": true, "switch": true},
		"consent":  {"read": true, "write": true},
		"keys":     {"read": true, "rotate": true},
		"wallet":   {"read": true, "transact": true},
		"search":   {"read": true, "index": true},
	},
	TypeEnterprise: {
		"identity": {"create": true, "switch": true},
		"consent":  {"read": true, "write": true},
		"keys":     {"read": true, "rotate": true},
		"wallet":   {"read": true, "transact": true},
		"search":   {"read": true, "index": true},
	},
	TypeConsentida: {
		"identity": {"switch": true},
		"consent":  {"read": true},
		"keys":     {"read": true},
		"wallet":   {"read": true},
		"search":   {"read": true},
	},
	TypeAID: {
		"identity": {"switch": true},
		"consent":  {"read": true},
		"keys":     {"read": true},
		"wallet":   {"read": true, "transact": true},
		"search":   {"read": true},
	},
}

// Allowed is the pure capability check over the declarative table.
func Allowed(t IdentityType, module, action string) bool {
	return moduleGrants[t][module][action]
}
