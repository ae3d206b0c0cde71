package handler

import (
	id "persona/pkg/domain"
	dErrors "persona/pkg/domain-errors"

	"persona/internal/identity/models"
)

type createIdentityRequest struct {
	ParentID   string `json:"parent_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Privacy    string `json:"privacy,omitempty"`
	Governance string `json:"governance,omitempty"`
	KYCLevel   string `json:"kyc_level,omitempty"`
}

func (r createIdentityRequest) parse() (id.IdentityID, models.Metadata, error) {
	parentID, err := id.ParseIdentityID(r.ParentID)
	if err != nil {
		return id.IdentityID{}, models.Metadata{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid parent_id")
	}
	identityType, err := models.ParseIdentityType(r.Type)
	if err != nil {
		return id.IdentityID{}, models.Metadata{}, err
	}
	return parentID, models.Metadata{
		Name:       r.Name,
		Type:       identityType,
		Privacy:    models.PrivacyLevel(r.Privacy),
		Governance: models.GovernanceLevel(r.Governance),
		KYCLevel:   r.KYCLevel,
	}, nil
}

type switchIdentityRequest struct {
	TargetID string `json:"target_id"`
}

func (r switchIdentityRequest) parse() (id.IdentityID, error) {
	targetID, err := id.ParseIdentityID(r.TargetID)
	if err != nil {
		return id.IdentityID{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid target_id")
	}
	return targetID, nil
}

type submitKYCRequest struct {
	Level    string `json:"level"`
	Approved bool   `json:"approved"`
}

type deleteIdentityResponse struct {
	Deleted []string `json:"deleted"`
	Count   int      `json:"count"`
}
