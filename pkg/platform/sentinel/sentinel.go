package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and cache tiers return
// these (optionally wrapped) so services can translate them into coded
// domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the store
// - ErrExpired: record exists but its TTL has lapsed
// - ErrConflict: record already exists or was concurrently modified
// - ErrInvalidState: record in wrong state for the requested operation
// - ErrUnavailable: store or downstream temporarily unreachable
//
// For validation errors (bad input, rule violations), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
