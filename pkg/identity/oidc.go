package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// OIDCConfig configures the OIDC verifier
type OIDCConfig struct {
	IssuerURL string
	// ClientID, when set, additionally requires the token to be a signed JWT
	// issued for this audience before the userinfo call is made.
	ClientID string
}

// OIDCVerifier introspects tokens against an OIDC issuer's userinfo endpoint
type OIDCVerifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	metrics  *observability.Metrics
}

var _ auth.Verifier = (*OIDCVerifier)(nil)

// NewOIDCVerifier discovers the issuer. metrics may be nil.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig, metrics *observability.Metrics) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	v := &OIDCVerifier{
		provider: provider,
		metrics:  metrics,
	}
	if cfg.ClientID != "" {
		v.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	}
	return v, nil
}

// Verify checks the token with the issuer and returns the subject as the identity id
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	if token == "" {
		return nil, auth.ErrMissingCredential
	}

	if v.verifier != nil {
		if _, err := v.verifier.Verify(ctx, token); err != nil {
			return nil, fmt.Errorf("%w: %v", auth.ErrInvalidCredential, err)
		}
	}

	start := time.Now()
	info, err := v.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	v.metrics.ObserveDependency("oidc", "userinfo", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidCredential, err)
	}
	if info.Subject == "" {
		return nil, fmt.Errorf("%w: issuer returned no subject", auth.ErrInvalidCredential)
	}

	return &auth.Identity{
		ID:    info.Subject,
		Email: info.Email,
	}, nil
}
