package errors

import (
	"encoding/json"
	"net/http"
)

// HTTPErrorResponse wraps a RelayError for HTTP JSON responses.
type HTTPErrorResponse struct {
	Error RelayError `json:"error"`
}

// WriteHTTPError writes a RelayError as an HTTP JSON response.
func WriteHTTPError(w http.ResponseWriter, err *RelayError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(HTTPErrorResponse{Error: *err})
}

// WriteError maps any error to a response. Errors outside the RelayError
// taxonomy become an opaque 500 so internals never reach the caller.
func WriteError(w http.ResponseWriter, err error) {
	if re, ok := AsRelayError(err); ok {
		WriteHTTPError(w, re)
		return
	}
	WriteHTTPError(w, &RelayError{Code: http.StatusInternalServerError, Message: "Internal error"})
}
