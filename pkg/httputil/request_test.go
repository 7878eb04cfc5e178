package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		expectErr error
		wantErr   bool
	}{
		{name: "valid JSON", body: `{"userId": "u2"}`},
		{name: "invalid JSON", body: `{invalid}`, wantErr: true},
		{name: "empty body", body: ``, expectErr: ErrEmptyBody, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/ban-user", bytes.NewBufferString(tt.body))
			var dest map[string]string

			err := ParseJSON(req, &dest)

			if !tt.wantErr {
				assert.NoError(t, err)
				assert.Equal(t, "u2", dest["userId"])
				return
			}
			assert.Error(t, err)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "remote addr",
			remoteAddr: "10.0.0.1:5555",
			want:       "10.0.0.1",
		},
		{
			name:       "forwarded chain",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"},
			remoteAddr: "10.0.0.1:5555",
			want:       "203.0.113.7",
		},
		{
			name:       "real ip",
			headers:    map[string]string{"X-Real-IP": "198.51.100.4"},
			remoteAddr: "10.0.0.1:5555",
			want:       "198.51.100.4",
		},
		{
			name:       "no port",
			remoteAddr: "unix-socket",
			want:       "unix-socket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/check-update", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func BenchmarkParseJSON(b *testing.B) {
	body := []byte(`{"userId":"u2","ban":true}`)
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/ban-user", bytes.NewReader(body))
		var dest map[string]interface{}
		_ = ParseJSON(req, &dest)
	}
}
