package domain

import "errors"

// Domain errors (no external dependencies).
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicate         = errors.New("duplicate resource")
	ErrConflict          = errors.New("conflict with current state")
	ErrAlreadyFiscalized = errors.New("invoice is already fiscalized")
	ErrDeviceDisabled    = errors.New("fiscal device is not enabled")
	ErrNotConfigured     = errors.New("fiscal device is not configured")
)
