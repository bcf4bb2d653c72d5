package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidStatus      = errors.New("invalid feedback status")
	ErrInvalidTransition  = errors.New("invalid feedback transition")
	ErrMassFailure        = errors.New("classification failed for too many SKUs; run flagged for review")
	ErrIntegrityViolation = errors.New("recommendation integrity violation")
	ErrRunInProgress      = errors.New("a run is already in progress for this store")
)
