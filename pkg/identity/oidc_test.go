package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/auth"
)

func newFakeIssuer(t *testing.T) *httptest.Server {
	t.Helper()

	var server *httptest.Server
	serveMux := http.NewServeMux()
	serveMux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                                server.URL,
			"authorization_endpoint":                server.URL + "/authorize",
			"token_endpoint":                        server.URL + "/token",
			"jwks_uri":                              server.URL + "/jwks",
			"userinfo_endpoint":                     server.URL + "/userinfo",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	serveMux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good-token":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"sub":"u1","email":"admin@example.com","email_verified":true}`))
		case "Bearer no-subject":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"email":"anon@example.com"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})

	server = httptest.NewServer(serveMux)
	t.Cleanup(server.Close)
	return server
}

func TestOIDCVerifier(t *testing.T) {
	issuer := newFakeIssuer(t)

	verifier, err := NewOIDCVerifier(context.Background(), OIDCConfig{IssuerURL: issuer.URL}, nil)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		id, err := verifier.Verify(context.Background(), "good-token")
		require.NoError(t, err)
		assert.Equal(t, "u1", id.ID)
		assert.Equal(t, "admin@example.com", id.Email)
	})

	t.Run("rejected token", func(t *testing.T) {
		_, err := verifier.Verify(context.Background(), "bad-token")
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	})

	t.Run("missing subject", func(t *testing.T) {
		_, err := verifier.Verify(context.Background(), "no-subject")
		assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := verifier.Verify(context.Background(), "")
		assert.ErrorIs(t, err, auth.ErrMissingCredential)
	})
}

func TestOIDCVerifier_ClientIDRequiresSignedJWT(t *testing.T) {
	issuer := newFakeIssuer(t)

	verifier, err := NewOIDCVerifier(context.Background(), OIDCConfig{IssuerURL: issuer.URL, ClientID: "gatehouse"}, nil)
	require.NoError(t, err)

	// an opaque token is not a JWT, so it fails before userinfo is consulted
	_, err = verifier.Verify(context.Background(), "good-token")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
}

func TestNewOIDCVerifier_DiscoveryFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := NewOIDCVerifier(context.Background(), OIDCConfig{IssuerURL: server.URL}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to discover OIDC provider")
}
