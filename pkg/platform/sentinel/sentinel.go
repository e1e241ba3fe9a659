package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: entity does not exist in store
//   - ErrConflict: a unique constraint rejected the write
//   - ErrInvalidState: a conditional write found the row in another state
//   - ErrSerialization: the database aborted the transaction to resolve a race
//   - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidState  = errors.New("invalid state")
	ErrSerialization = errors.New("serialization failure")
	ErrUnavailable   = errors.New("unavailable")
)
