package dstore

import (
	"fmt"

	"github.com/pkg/errors"
)

// NotFoundError reports that an object has no representation anywhere
// reachable. Content-access operations (Data, Filename, Empty,
// UpdateFromFile without create) fail with it; existence-style queries
// never do.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return "object not found: " + e.What
}

// InvalidError reports structurally unsafe input (an ExtraDir or AltName
// that would escape the computed directory) or resource exhaustion at
// creation time (no eligible backend left in a distributed pool). Unsafe
// input is never silently corrected.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string {
	return "invalid object reference: " + e.Reason
}

// InvalidIdentifierError reports an effective id that cannot be turned
// into a storage path (not a non-negative integer token or a uuid).
type InvalidIdentifierError struct {
	ID string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid object identifier: %q", e.ID)
}

// IsNotFound reports whether err (possibly wrapped) is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// IsInvalid reports whether err (possibly wrapped) is an InvalidError or
// an InvalidIdentifierError.
func IsInvalid(err error) bool {
	switch errors.Cause(err).(type) {
	case *InvalidError, *InvalidIdentifierError:
		return true
	}
	return false
}
