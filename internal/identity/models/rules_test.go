package models

import (
	"testing"

	"github.com/stretchr/testify/suite"

	id "persona/pkg/domain"
)

type RulesSuite struct {
	suite.Suite
}

func TestRulesSuite(t *testing.T) {
	suite.Run(t, new(RulesSuite))
}

func (s *RulesSuite) TestRuleFor() {
	s.Run("every declared type has a rules row", func() {
		for _, t := range []IdentityType{TypeRoot, TypeDAO, TypeEnterprise, TypeConsentida, TypeAID} {
			_, ok := RuleFor(t)
			s.True(ok, "missing rule for %s", t)
		}
	})

	s.Run("unknown type has no row", func() {
		_, ok := RuleFor(IdentityType("ghost"))
		s.False(ok)
	})

	s.Run("consentida and aid cannot create children", func() {
		for _, t := range []IdentityType{TypeConsentida, TypeAID} {
			rule, ok := RuleFor(t)
			s.Require().True(ok)
			s.False(rule.CanCreateChildren, "%s should not create children", t)
		}
	})

	s.Run("aid defaults to anonymous visibility", func() {
		rule, ok := RuleFor(TypeAID)
		s.Require().True(ok)
		s.Equal(PrivacyAnonymous, rule.DefaultPrivacy)
		s.False(rule.KYCRequired)
	})
}

func (s *RulesSuite) TestAllowed() {
	s.Run("root can create and delete identities", func() {
		s.True(Allowed(TypeRoot, "identity", "create"))
		s.True(Allowed(TypeRoot, "identity", "delete"))
	})

	s.Run("consentida is read-only outside switching", func() {
		s.True(Allowed(TypeConsentida, "identity", "switch"))
		s.False(Allowed(TypeConsentida, "identity", "create"))
		s.False(Allowed(TypeConsentida, "wallet", "transact"))
	})

	s.Run("aid keeps wallet transact", func() {
		s.True(Allowed(TypeAID, "wallet", "transact"))
	})

	s.Run("unlisted module or action denied", func() {
		s.False(Allowed(TypeRoot, "unknown", "read"))
		s.False(Allowed(TypeDAO, "identity", "obliterate"))
	})
}

func (s *RulesSuite) TestMetadataValidate() {
	s.Run("valid metadata passes", func() {
		s.NoError(Metadata{Name: "work", Type: TypeEnterprise}.Validate())
	})

	s.Run("empty name rejected", func() {
		s.Error(Metadata{Type: TypeDAO}.Validate())
	})

	s.Run("oversized name rejected", func() {
		long := make([]byte, 129)
		for i := range long {
			long[i] = 'a'
		}
		s.Error(Metadata{Name: string(long), Type: TypeDAO}.Validate())
	})

	s.Run("root type rejected", func() {
		s.Error(Metadata{Name: "another-root", Type: TypeRoot}.Validate())
	})

	s.Run("unknown type rejected", func() {
		s.Error(Metadata{Name: "x", Type: IdentityType("ghost")}.Validate())
	})

	s.Run("unknown privacy level rejected", func() {
		s.Error(Metadata{Name: "x", Type: TypeDAO, Privacy: PrivacyLevel("banana")}.Validate())
	})

	s.Run("unknown governance level rejected", func() {
		s.Error(Metadata{Name: "x", Type: TypeDAO, Governance: GovernanceLevel("anarchy")}.Validate())
	})

	s.Run("empty privacy and governance default later", func() {
		s.NoError(Metadata{Name: "x", Type: TypeDAO}.Validate())
		s.NoError(Metadata{Name: "x", Type: TypeDAO, Privacy: PrivacyAnonymous, Governance: GovernanceDAO}.Validate())
	})
}

func (s *RulesSuite) TestClone() {
	parentID := id.NewIdentityID()
	original := &Identity{
		ID:       id.NewIdentityID(),
		Name:     "a",
		ParentID: &parentID,
		Children: []id.IdentityID{id.NewIdentityID()},
		Path:     []id.IdentityID{parentID},
	}

	clone := original.Clone()
	clone.Name = "b"
	*clone.ParentID = id.NewIdentityID()
	clone.Children[0] = id.NewIdentityID()

	s.Equal("a", original.Name)
	s.Equal(parentID, *original.ParentID)
	s.NotEqual(original.Children[0], clone.Children[0])
}
