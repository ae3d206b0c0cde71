package models

import (
	"time"

	id "persona/pkg/domain"
)

// ModuleStatus is the per-adapter outcome recorded in a switch result.
type ModuleStatus string

const (
	ModuleSuccess ModuleStatus = "SUCCESS"
	ModuleFailed  ModuleStatus = "FAILED"
	ModulePending ModuleStatus = "PENDING"
	ModuleSkipped ModuleStatus = "SKIPPED"
)

// RollbackResult reports the outcome of compensating an aborted switch.
// Complete is false when at least one rollback call itself failed, leaving
// the system potentially inconsistent.
type RollbackResult struct {
	RolledBack []string `json:"rolled_back"`
	Failed     []string `json:"failed,omitempty"`
	Complete   bool     `json:"complete"`
}

// ContextSwitchResult is the caller-visible outcome of one switch attempt.
type ContextSwitchResult struct {
	SwitchID          id.SwitchID             `json:"switch_id"`
	Success           bool                    `json:"success"`
	PreviousID        id.IdentityID           `json:"previous_id"`
	NewID             id.IdentityID           `json:"new_id"`
	ContextUpdates    map[string]ModuleStatus `json:"context_updates"`
	SuccessfulModules []string                `json:"successful_modules,omitempty"`
	FailedModules     []string                `json:"failed_modules,omitempty"`
	Warnings          []string                `json:"warnings,omitempty"`
	Rollback          *RollbackResult         `json:"rollback,omitempty"`
	CompletedAt       time.Time               `json:"completed_at"`
}
