package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/logger"
)

// maxBodySize bounds JSON request bodies
const maxBodySize = 1 << 20

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, name, description string) {
	writeJSON(w, status, apiError{Code: status, Name: name, Description: description})
}

// handleError logs err and answers with the status its kind maps to.
// Server-side failures are logged at error level, client mistakes at debug.
func handleError(w http.ResponseWriter, log *zap.SugaredLogger, err error, context string) {
	status, name := classify(err)
	if status >= http.StatusInternalServerError {
		log.Errorw(context, logger.FieldError, err)
	} else {
		log.Debugw(context, logger.FieldError, err)
	}
	writeError(w, status, name, err.Error())
}

// readJSON decodes a JSON request body into v. An empty body leaves v as is.
func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.NewInvalidRequestError("invalid request body: %s", err.Error())
	}
	return nil
}

// parseIntQueryParam reads an integer query parameter, clamped to [min, max].
func parseIntQueryParam(r *http.Request, name string, defaultValue, min, max int) (int, error) {
	valueStr := r.URL.Query().Get(name)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.NewInvalidRequestError("%s must be an integer", name)
	}

	if value < min {
		return min, nil
	}
	if value > max {
		return max, nil
	}
	return value, nil
}

// queryFlag reads a flag the way the original API did: any non-empty value is true.
func queryFlag(r *http.Request, name string) bool {
	return r.URL.Query().Get(name) != ""
}
