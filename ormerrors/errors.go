// Package ormerrors implements the error taxonomy of spec.md §7.
// Mirrors app/Exceptions/handler.go's HttpException pattern — a typed
// error with a discriminated kind, a message, optional structured
// data, and an internal cause — with the HTTP-status mapping removed
// (this module has no HTTP surface; see DESIGN.md).
package ormerrors

import (
	"fmt"
	"log"
	"os"
)

// Kind discriminates the error taxonomy spec.md §7 names. Callers
// should match on Kind via errors.As + (*Error).Kind(), not on
// message text.
type Kind string

const (
	// EntityNotRegistered: a metadata lookup failed. Fatal to the
	// current call.
	EntityNotRegistered Kind = "EntityNotRegistered"

	// PropertyNotFound: a filter or projection referenced a key with
	// no matching property or relation. Fatal to the current call.
	PropertyNotFound Kind = "PropertyNotFound"

	// ResultNotFound: an *OrFail call found zero rows.
	ResultNotFound Kind = "ResultNotFound"

	// InjectionDetected: a literal contained a null byte. The
	// operation is aborted before any SQL is emitted.
	InjectionDetected Kind = "InjectionDetected"

	// DriverNotInitialized: an operation ran before Connect completed.
	DriverNotInitialized Kind = "DriverNotInitialized"

	// InvalidRelationUsage: $exists/$nexists applied to a non-relation
	// field.
	InvalidRelationUsage Kind = "InvalidRelationUsage"

	// ConstraintViolation: the driver rejected a write. The original
	// driver message is preserved verbatim in Internal.
	ConstraintViolation Kind = "ConstraintViolation"
)

// Error is the concrete error type returned by every exported
// operation in this module.
type Error struct {
	// ErrKind classifies the failure (read it through Kind()).
	ErrKind Kind

	// Message is a human-readable summary.
	Message string

	// Data holds optional structured context — e.g. the list of valid
	// relation names attached to an InvalidRelationUsage error.
	Data any

	// Internal holds the original error (e.g. the raw driver error for
	// ConstraintViolation), or nil.
	Internal error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s: %v", e.ErrKind, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.ErrKind, e.Message)
}

// Unwrap exposes the internal cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Internal }

// Kind returns the error's taxonomy kind.
func (e *Error) Kind() Kind { return e.ErrKind }

func New(kind Kind, message string, data ...any) *Error {
	e := &Error{ErrKind: kind, Message: message}
	if len(data) > 0 {
		e.Data = data[0]
	}
	return e
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{ErrKind: kind, Message: message, Internal: cause}
}

// ── Convenience constructors ───────────────────────────────────────

func NewEntityNotRegistered(class string) *Error {
	return New(EntityNotRegistered, fmt.Sprintf("entity %q is not registered", class))
}

func NewPropertyNotFound(key, class string) *Error {
	return New(PropertyNotFound, fmt.Sprintf("unknown property or relation %q on %q", key, class))
}

func NewResultNotFound(class string) *Error {
	return New(ResultNotFound, fmt.Sprintf("no %s matched the query", class))
}

func NewInjectionDetected(field string) *Error {
	return New(InjectionDetected, fmt.Sprintf("null byte detected in literal for %q", field))
}

func NewDriverNotInitialized() *Error {
	return New(DriverNotInitialized, "driver has not completed Connect")
}

func NewInvalidRelationUsage(field string, validRelations []string) *Error {
	return New(InvalidRelationUsage, fmt.Sprintf("%q is not a relation", field), validRelations)
}

func NewConstraintViolation(cause error) *Error {
	return Wrap(ConstraintViolation, "the driver rejected the statement", cause)
}

// ══════════════════════════════════════════════════════════════════════
// Logging
//
// spec.md §7: "cache failures degrade silently (log and continue
// without caching)". Mirrors the teacher's
// log.New(os.Stderr, "[astra:error] ", log.LstdFlags) convention.
// ══════════════════════════════════════════════════════════════════════

var logger = log.New(os.Stderr, "[lucid:error] ", log.LstdFlags)

// LogAndIgnore logs err at warning level and swallows it. Used
// exclusively by the cache manager, per spec.md §7's degrade-silently
// policy — every other subsystem must propagate, never call this.
func LogAndIgnore(context string, err error) {
	if err == nil {
		return
	}
	logger.Printf("%s: %v (continuing without cache)", context, err)
}
