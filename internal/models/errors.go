package models

import "errors"

// Common errors
var (
	// ErrNotFound is returned when a job is not present in the table.
	ErrNotFound = errors.New("job not found")

	// ErrStaleRevision is returned when an update's revision is not strictly
	// greater than the stored record's.
	ErrStaleRevision = errors.New("stale revision")

	// ErrTerminal is returned when an update would mutate a job that has
	// already reached a terminal status.
	ErrTerminal = errors.New("job is terminal")

	// ErrNoSnapshot is returned when a stage snapshot is requested for a
	// stage the job has not yet moved past.
	ErrNoSnapshot = errors.New("no snapshot for stage")
)
