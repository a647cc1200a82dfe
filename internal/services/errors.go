// Package services - errors.go defines the typed error taxonomy returned by the audit
// engine. Handlers map these to HTTP status codes; everything else surfaces as an
// internal error.
package services

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ValidationError indicates malformed or out-of-range input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// NotFoundError indicates a missing session, verification, or related resource
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// AuthorizationError indicates the actor lacks the capability for the operation
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// ConflictError indicates the operation lost a concurrency race or collided with an
// exclusive resource, such as a warehouse already frozen by another session
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// PreconditionError indicates the session or verification is not in a state that
// permits the operation. For completion attempts it carries the blocking counts.
type PreconditionError struct {
	Message          string
	PendingCount     int
	DiscrepancyCount int
	PendingLedger    int
}

func (e *PreconditionError) Error() string {
	return e.Message
}

// isUniqueViolation reports whether err is a Postgres unique constraint violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
