package models

import "errors"

// Error taxonomy shared by the repository, orchestrator and HTTP layer.
var (
	// ErrNotFound: the referenced record does not exist or is not visible to the caller.
	ErrNotFound = errors.New("record not found")

	// ErrConflict: the job is already claimed or in the wrong state for the
	// requested transition. Callers should not retry automatically.
	ErrConflict = errors.New("conflicting job state")

	// ErrInvalidState: an invariant violation, e.g. finalizing an already-terminal
	// job. Always a bug signal, logged at error severity.
	ErrInvalidState = errors.New("invalid job state")
)
