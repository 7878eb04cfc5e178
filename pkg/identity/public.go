package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// PublicClient verifies caller tokens with the anonymous key. It holds no
// elevated credential, so it cannot perform admin operations.
type PublicClient struct {
	rest restClient
}

var _ auth.Verifier = (*PublicClient)(nil)

// NewPublicClient creates a caller-scoped client. metrics may be nil.
func NewPublicClient(cfg Config, metrics *observability.Metrics) (*PublicClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("identity base URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("identity anon key is required")
	}
	return &PublicClient{
		rest: restClient{
			baseURL: cfg.BaseURL,
			http:    newHTTPClient(cfg.AnonKey, cfg.Timeout, nil),
			metrics: metrics,
		},
	}, nil
}

// Verify introspects token against GET /user
func (c *PublicClient) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	if token == "" {
		return nil, auth.ErrMissingCredential
	}

	bearer := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	var user User
	err := c.rest.do(ctx, "get_user", http.MethodGet, "/user", nil, &user, bearer.SetAuthHeader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidCredential, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: provider returned no identity", auth.ErrInvalidCredential)
	}

	return &auth.Identity{
		ID:           user.ID,
		Email:        user.Email,
		ProviderRole: user.Role,
	}, nil
}

// HealthCheck calls the provider's GET /health
func (c *PublicClient) HealthCheck(ctx context.Context) error {
	if err := c.rest.do(ctx, "health", http.MethodGet, "/health", nil, nil, nil); err != nil {
		return fmt.Errorf("identity health check failed: %w", err)
	}
	return nil
}
