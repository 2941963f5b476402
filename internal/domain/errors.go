package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by stores and
// services to communicate domain-specific error conditions.
// -----------------------------------------------------------------------------

// Problem errors
var (
	ErrProblemNotFound = errors.New("problem not found")
	ErrNoTestCases     = errors.New("problem has no test cases")
)

// Submission errors
var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrEmptyCode          = errors.New("no code provided")
)

// Profile errors
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidLevel    = errors.New("invalid experience level")
)

// General errors
var (
	ErrBadRequest    = errors.New("bad request")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInternalError = errors.New("internal error")
)
