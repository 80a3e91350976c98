// Package errors provides centralized error definitions for the pipeline.
// Errors are organized by failure class so callers across packages can
// branch with errors.Is without importing each other.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Unexported errors (err*): Use for internal package errors
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Transient network failures. Retried with backoff where a budget exists;
// demoted to an empty result once the budget is spent.
var (
	// ErrRateLimited indicates the remote answered HTTP 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmptyResponse indicates an empty response body where content was expected.
	ErrEmptyResponse = errors.New("empty response")
)

// Parse failures. Logged and absorbed by the next harvester strategy,
// never raised past the harvester boundary.
var (
	// ErrParseFailure indicates malformed HTML/JSON or a missing expected selector.
	ErrParseFailure = errors.New("parse failure")

	// ErrUnexpectedShape indicates a response that matched none of the known shapes.
	ErrUnexpectedShape = errors.New("unexpected response shape")
)

// Lookup failures.
var (
	// ErrNotFound indicates an entity that no longer exists.
	ErrNotFound = errors.New("not found")

	// ErrNoResults indicates a query that matched nothing.
	ErrNoResults = errors.New("no results")
)

// Storage failures.
var (
	// ErrIntegrityConflict indicates a unique-constraint violation from a concurrent insert.
	ErrIntegrityConflict = errors.New("integrity conflict")
)

// Renderer failures.
var (
	// ErrRenderUnavailable indicates browser rendering is disabled or the browser is missing.
	ErrRenderUnavailable = errors.New("browser rendering unavailable")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
