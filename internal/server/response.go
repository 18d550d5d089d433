package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorResponse is the body of every HTTP error the server returns outside
// the JSON-RPC channel.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the failure class and describes it.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// errorCodes maps HTTP statuses to error codes.
var errorCodes = map[int]string{
	http.StatusBadRequest:       ErrCodeInvalidRequest,
	http.StatusNotFound:         ErrCodeNotFound,
	http.StatusMethodNotAllowed: ErrCodeMethodNotAllowed,
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// writeError writes an ErrorResponse whose code is derived from status.
func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	code, ok := errorCodes[status]
	if !ok {
		code = ErrCodeInternalError
	}
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: fmt.Sprintf(format, args...)},
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "no route for %s", r.URL.Path)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "%s not allowed on %s", r.Method, r.URL.Path)
}
