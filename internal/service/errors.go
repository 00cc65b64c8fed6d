package service

import "errors"

var (
	ErrValidation    = errors.New("validation failed")
	ErrEditsDisabled = errors.New("adjustments are disabled: reconciliation columns are missing from the orders table")
)

// ValidationError is a caller mistake detected before any store call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

var ErrRemarkRequired = &ValidationError{Message: "Remark is required when adjusting the amount"}

// PersistenceError carries a store rejection back to the caller unchanged.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "Database update failed: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
