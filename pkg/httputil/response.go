package httputil

import (
	"encoding/json"
	"net/http"
)

// UnexpectedErrorMessage is the only detail clients see for unmapped failures
const UnexpectedErrorMessage = "Unexpected error"

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteErrorFields(w, status, message, nil)
}

// WriteErrorFields writes {"error": message} plus any extra top-level fields
func WriteErrorFields(w http.ResponseWriter, status int, message string, fields map[string]interface{}) {
	body := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["error"] = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteTooManyRequests writes a rate limit error (429) with the seconds until retry
func WriteTooManyRequests(w http.ResponseWriter, message string, retryAfter int) {
	WriteErrorFields(w, http.StatusTooManyRequests, message, map[string]interface{}{
		"retry_after": retryAfter,
	})
}

// WriteInternalError writes a 500 with the given message
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusInternalServerError, message)
}

// WriteUnexpectedError writes the generic 500 response
func WriteUnexpectedError(w http.ResponseWriter) {
	WriteInternalError(w, UnexpectedErrorMessage)
}
