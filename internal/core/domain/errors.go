package domain

import "errors"

var (
	// ErrConfigIncomplete means notifications are disabled.
	ErrConfigIncomplete = errors.New("notifier configuration incomplete")
	ErrValidation       = errors.New("validation failed")
	ErrTransport        = errors.New("transport failure")
	ErrReverted         = errors.New("transaction reverted")
	ErrNotFound         = errors.New("not found")
)
