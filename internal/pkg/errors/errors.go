package errors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("invalid payload")
	ErrLimitExceeded    = errors.New("limit exceeded")
	ErrTransientService = errors.New("transient service failure")
	ErrConflict         = errors.New("conflict")
	ErrLocked           = errors.New("entity locked by another run")
	ErrInternal         = errors.New("internal")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientService)
}

func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}
