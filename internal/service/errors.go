package service

import "errors"

// Sentinel errors for orchestration rejections.
// Absence of a model is not an error: lookups return nil results instead.
var (
	// ErrAlreadyIngested indicates a train request for a source the model
	// already ingested, without force.
	ErrAlreadyIngested = errors.New("source already ingested")

	// ErrJobInProgress indicates a job of the same kind is still running for the model.
	ErrJobInProgress = errors.New("job already in progress")

	// ErrInvalidKind indicates an unknown job kind.
	ErrInvalidKind = errors.New("invalid job kind")

	// ErrInvalidInput indicates a request missing a required field.
	ErrInvalidInput = errors.New("invalid input")
)
