package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat    = errors.New("unsupported format")
	ErrMalformedStatement   = errors.New("malformed statement")
	ErrExtractionUnreliable = errors.New("extraction unreliable")
	ErrProviderUnavailable  = errors.New("provider unavailable")
	ErrProviderTimeout      = errors.New("provider timeout")
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrOverrideFinal        = errors.New("category override is final")
	ErrTemporary            = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindName returns a stable label for the first known kind wrapped by err.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrMalformedStatement):
		return "malformed_statement"
	case errors.Is(err, ErrExtractionUnreliable):
		return "extraction_unreliable"
	case errors.Is(err, ErrProviderTimeout):
		return "provider_timeout"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrOverrideFinal):
		return "override_final"
	case errors.Is(err, ErrTemporary):
		return "temporary"
	default:
		return "internal"
	}
}
