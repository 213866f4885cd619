package quelleerr

import (
	"errors"
	"fmt"
)

// Sentinels for the Validation family (spec.md §7).
var (
	ErrInvalidNovelData   = errors.New("invalid novel data")
	ErrInvalidChapterData = errors.New("invalid chapter data")
	ErrValidation         = errors.New("validation error")
)

func init() {
	registerKind(ErrInvalidNovelData, KindValidation)
	registerKind(ErrInvalidChapterData, KindValidation)
	registerKind(ErrValidation, KindValidation)
}

// ValidationError wraps ErrValidation with a sub-kind describing which
// filter-validation rule failed (see the filter package for the concrete
// sub-variants: UnknownFilter, TypeMismatch, InvalidOption, etc).
type ValidationError struct {
	Sub     string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("validation: %s", e.Sub)
	}
	return fmt.Sprintf("validation: %s: %s", e.Sub, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) Kind() Kind { return KindValidation }

// NewValidationError builds a *ValidationError for the given sub-variant.
func NewValidationError(sub, message string) *ValidationError {
	return &ValidationError{Sub: sub, Message: message}
}

// kindedSentinel lets plain sentinel errors (ErrInvalidNovelData, etc)
// answer ClassOf via errors.Is-compatible wrapping.
type kindedSentinel struct {
	sentinel error
	kind     Kind
}

func (k *kindedSentinel) Error() string { return k.sentinel.Error() }
func (k *kindedSentinel) Unwrap() error { return k.sentinel }
func (k *kindedSentinel) Kind() Kind    { return k.kind }

// Wrap tags a plain sentinel with its taxonomy Kind so ClassOf can find it.
// Used by callers that want to return one of the package-level sentinels
// directly while still being classifiable.
func Wrap(sentinel error, kind Kind) error {
	return &kindedSentinel{sentinel: sentinel, kind: kind}
}
