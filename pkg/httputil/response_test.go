package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteErrorFields(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorFields(w, http.StatusBadRequest, "profile write failed", map[string]interface{}{
		"stage": "profile",
		"error": "ignored",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]interface{}{
		"error": "profile write failed",
		"stage": "profile",
	}, decodeBody(t, w))
}

func TestWriteStatusHelpers(t *testing.T) {
	tests := []struct {
		name    string
		write   func(w http.ResponseWriter)
		status  int
		message string
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "User ID is required") }, http.StatusBadRequest, "User ID is required"},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "Unauthorized") }, http.StatusUnauthorized, "Unauthorized"},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "Only admins can ban users") }, http.StatusForbidden, "Only admins can ban users"},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, "Failed to sign APK URL") }, http.StatusInternalServerError, "Failed to sign APK URL"},
		{"unexpected", WriteUnexpectedError, http.StatusInternalServerError, "Unexpected error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, decodeBody(t, w)["error"])
		})
	}
}

func TestWriteTooManyRequests(t *testing.T) {
	w := httptest.NewRecorder()

	WriteTooManyRequests(w, "rate limit exceeded", 42)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "rate limit exceeded", body["error"])
	assert.Equal(t, float64(42), body["retry_after"])
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteSuccess(w, map[string]int{"versionCode": 7})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"versionCode":7}`, w.Body.String())
}
