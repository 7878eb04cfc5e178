package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// Authorizer checks that an identity holds a role
type Authorizer interface {
	Authorize(ctx context.Context, identityID string, required Role) error
}

// RoleAuthorizer resolves roles from the profile store and fails closed:
// a missing row, a NULL role, a lookup error, or any other role is ErrForbidden.
type RoleAuthorizer struct {
	profiles storage.ProfileReader
	cache    *lru.LRU[string, Role]
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// AuthorizerConfig configures the optional role cache. A cached role is not
// re-read until its entry expires, so a demoted admin keeps admin rights for
// up to CacheTTL.
type AuthorizerConfig struct {
	// CacheTTL of zero disables caching
	CacheTTL  time.Duration
	CacheSize int
}

// NewRoleAuthorizer creates an authorizer over a read-only profile capability.
// metrics and logger may be nil.
func NewRoleAuthorizer(profiles storage.ProfileReader, cfg AuthorizerConfig, metrics *observability.Metrics, logger *observability.Logger) *RoleAuthorizer {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}

	a := &RoleAuthorizer{
		profiles: profiles,
		metrics:  metrics,
		logger:   logger,
	}
	if cfg.CacheTTL > 0 {
		size := cfg.CacheSize
		if size <= 0 {
			size = 1024
		}
		a.cache = lru.NewLRU[string, Role](size, nil, cfg.CacheTTL)
	}
	return a
}

// Authorize returns nil only when the profile's role equals required exactly
func (a *RoleAuthorizer) Authorize(ctx context.Context, identityID string, required Role) error {
	role, err := a.resolveRole(ctx, identityID)
	if err != nil {
		a.metrics.IncAuthFailure("role_lookup")
		return err
	}

	if role != required {
		a.metrics.IncAuthFailure("role_mismatch")
		return fmt.Errorf("%w: role %q does not satisfy %q", ErrForbidden, role, required)
	}
	return nil
}

func (a *RoleAuthorizer) resolveRole(ctx context.Context, identityID string) (Role, error) {
	if identityID == "" {
		return "", fmt.Errorf("%w: empty identity", ErrForbidden)
	}

	if a.cache != nil {
		if role, ok := a.cache.Get(identityID); ok {
			a.metrics.IncRoleCache(true)
			return role, nil
		}
		a.metrics.IncRoleCache(false)
	}

	profile, err := a.profiles.GetProfile(ctx, identityID)
	if err != nil {
		if !errors.Is(err, storage.ErrProfileNotFound) {
			a.logger.WithError(err).WithField("identity_id", identityID).Warn("Role lookup failed")
		}
		return "", fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	if profile.Role == "" {
		return "", fmt.Errorf("%w: no role assigned", ErrForbidden)
	}

	role := Role(profile.Role)
	if a.cache != nil {
		a.cache.Add(identityID, role)
	}
	return role, nil
}
