package httpadapter

import (
	"errors"
	"net/http"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case domain.IsKind(err, domain.ErrMalformedStatement), domain.IsKind(err, domain.ErrExtractionUnreliable):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrOverrideFinal):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrProviderTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrProviderUnavailable), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
