package auth

import (
	"context"
	"strings"
)

// Verifier turns a bearer token into a verified Identity.
//
// Implementations return an error wrapping ErrInvalidCredential when the
// provider rejects the token, the call fails, or no identity id comes back.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// ExtractBearerToken parses an Authorization header value of the form "Bearer <token>"
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingCredential
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrInvalidCredential
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrInvalidCredential
	}
	return token, nil
}
