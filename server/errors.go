package server

import (
	"net/http"

	"github.com/teranos/breg-harvester/errors"
)

// apiError is the JSON body of every error response.
type apiError struct {
	Code        int    `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// classify maps an error to its status code and name.
//
//	ErrNotFound          404 NotFound
//	ErrInvalidRequest    400 BadRequest
//	ErrConfiguration     500 ConfigurationError
//	otherwise            500 InternalServerError
func classify(err error) (int, string) {
	switch {
	case errors.IsNotFoundError(err):
		return http.StatusNotFound, "NotFound"
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest, "BadRequest"
	case errors.Is(err, errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "ServiceUnavailable"
	case errors.IsConfigurationError(err):
		return http.StatusInternalServerError, "ConfigurationError"
	default:
		return http.StatusInternalServerError, "InternalServerError"
	}
}
