package api

import (
	"errors"
	"net/http"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
)

// APIError is the JSON body of an error response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// ErrorStatus maps an engine error to its HTTP status by kind.
func ErrorStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrExternalDependency):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrConsistency):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError builds the response body for err. Internal errors are reported
// without detail.
func NewAPIError(err error) *APIError {
	status := ErrorStatus(err)
	e := &APIError{Status: status, Message: err.Error()}
	switch status {
	case http.StatusBadRequest:
		e.Code = "bad_request"
	case http.StatusNotFound:
		e.Code = "not_found"
	case http.StatusForbidden:
		e.Code = "forbidden"
	case http.StatusBadGateway:
		e.Code = "gateway_error"
	case http.StatusConflict:
		e.Code = "conflict"
	default:
		e.Code = "internal_error"
		e.Message = "Internal server error"
	}
	return e
}

func writeError(w http.ResponseWriter, err error) {
	apiErr := NewAPIError(err)
	writeJSON(w, apiErr.Status, apiErr)
}
