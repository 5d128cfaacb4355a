/*
errors.go - Error taxonomy for the reservation engine

PURPOSE:
  Defines the three failure families callers can act on, as sentinel
  errors with structured wrappers. Everything else (storage failures,
  encoding bugs) is wrapped with %w and surfaces as an internal error.

TAXONOMY:
  - ErrValidation:      Malformed input; the request can never succeed
  - ErrSlotTaken:       At least one requested slot is already reserved
  - ErrNothingToReturn: No active reservation matched the return

USAGE:
  Match with errors.Is against the sentinels, or use the IsValidation /
  IsConflict / IsNotFound helpers. The structured types carry the detail
  callers need for messages (field names, conflicting devices).

SEE ALSO:
  - engine.go:       Producers of these errors
  - api/handlers.go: HTTP status mapping (400 / 409 / 404)
*/
package reserve

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINELS
// =============================================================================

var (
	// ErrValidation marks input that can never succeed as given.
	ErrValidation = errors.New("validation failed")

	// ErrSlotTaken marks a reserve batch that collided with an active
	// reservation. The whole batch is rejected; nothing was written.
	ErrSlotTaken = errors.New("slot already reserved")

	// ErrNothingToReturn marks a return that matched no active
	// reservation; no history event is appended.
	ErrNothingToReturn = errors.New("no active reservation to return")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError reports which input field failed and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a field-level validation error.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Invalidf builds a field-level validation error with a formatted reason.
func Invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SlotConflictError lists the devices whose slot was already taken.
type SlotConflictError struct {
	Devices []DeviceID
	Date    Date
	Block   TimeBlock
}

func (e *SlotConflictError) Error() string {
	parts := make([]string, len(e.Devices))
	for i, d := range e.Devices {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return fmt.Sprintf("slot already reserved: device(s) %s on %s / %s",
		strings.Join(parts, ", "), e.Date, e.Block)
}

// Unwrap makes errors.Is(err, ErrSlotTaken) hold.
func (e *SlotConflictError) Unwrap() error { return ErrSlotTaken }

// =============================================================================
// HELPERS
// =============================================================================

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict reports whether err is a slot collision.
func IsConflict(err error) bool { return errors.Is(err, ErrSlotTaken) }

// IsNotFound reports whether err is a no-op return.
func IsNotFound(err error) bool { return errors.Is(err, ErrNothingToReturn) }
