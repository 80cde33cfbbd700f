// Package errors provides error handling for spindle.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Structured hints and details
//
// Usage:
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check sentinel errors
//	if errors.Is(err, errors.ErrJobNotFound) {
//	    // handle missing job
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Multi-error combination
var (
	CombineErrors = crdb.CombineErrors
	Join          = crdb.Join
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the scheduling core.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrInvalidSchedule indicates a schedule is malformed or can produce
	// no future fire times.
	ErrInvalidSchedule = New("invalid schedule")

	// ErrJobNotFound indicates the job id is absent from the live trigger index.
	ErrJobNotFound = New("job not found")

	// ErrSpecificationNotFound indicates the referenced specification does not exist.
	ErrSpecificationNotFound = New("specification not found")

	// ErrUnresolvableWork indicates a work key has no registered work function.
	ErrUnresolvableWork = New("unresolvable work function")

	// ErrConsistencyFault indicates the trigger index and the job store
	// disagree on a job's existence. Always surfaced, never silently
	// reconciled by guessing.
	ErrConsistencyFault = New("trigger index and job store disagree")

	// ErrConflict indicates a resource conflict, e.g. deleting a
	// specification that jobs still reference.
	ErrConflict = New("resource conflict")
)

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return err != nil && IsAny(err, ErrJobNotFound, ErrSpecificationNotFound)
}

// NewJobNotFound creates a job-not-found error carrying the job id.
func NewJobNotFound(jobID string) error {
	return WithDetailf(Wrapf(ErrJobNotFound, "job %s", jobID), "Job ID: %s", jobID)
}

// NewSpecificationNotFound creates a specification-not-found error carrying the id.
func NewSpecificationNotFound(specID string) error {
	return WithDetailf(Wrapf(ErrSpecificationNotFound, "specification %s", specID), "Specification ID: %s", specID)
}
