package storage

import (
	"context"
	"errors"

	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/sentinel"
)

// DomainError translates a store failure into a coded error. Errors that
// already carry a code pass through untouched.
func DomainError(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, sentinel.ErrSerialization), errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeStorageConflict, "concurrent update; retry the request")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "resource already exists")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "storage operation timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "storage failure")
	}
}
