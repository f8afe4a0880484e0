package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("invalid request")
	ErrConcurrencyConflict = errors.New("another job is already being processed for this user")
	ErrInvalidTransition   = errors.New("illegal stage transition")
	ErrProviderExhausted   = errors.New("all provider credentials exhausted")
	ErrPipelineFailure     = errors.New("pipeline stage failed")
)
