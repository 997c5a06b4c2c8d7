package store

import "errors"

// Error Handling Guidelines:
// - Stores: wrap driver errors with fmt.Errorf("context: %w", err)
// - Services/Handlers: use apperrors.* constructors for HTTP-appropriate errors

// Predefined errors for the store layer.
var (
	// ErrNotFound indicates that a query requiring at least one row ran
	// against an empty table.
	ErrNotFound = errors.New("resource not found")
)
