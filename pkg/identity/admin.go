package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// UnbanDuration is the ban_duration sentinel that lifts a ban
const UnbanDuration = "none"

// AdminClient calls the provider's admin API with the service key
type AdminClient struct {
	rest restClient
}

// NewAdminClient creates a service-scoped client. metrics may be nil.
func NewAdminClient(cfg Config, metrics *observability.Metrics) (*AdminClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("identity base URL is required")
	}
	if cfg.ServiceKey == "" {
		return nil, errors.New("identity service key is required")
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.ServiceKey, TokenType: "Bearer"})
	client := newHTTPClient(cfg.ServiceKey, cfg.Timeout, func(base http.RoundTripper) http.RoundTripper {
		return &oauth2.Transport{Source: source, Base: base}
	})

	return &AdminClient{
		rest: restClient{
			baseURL: cfg.BaseURL,
			http:    client,
			metrics: metrics,
		},
	}, nil
}

// UpdateUserByID sets ban_duration on a user and returns the updated snapshot.
// banDuration is a Go-style duration string such as "876000h", or UnbanDuration.
func (c *AdminClient) UpdateUserByID(ctx context.Context, id, banDuration string) (*User, error) {
	body := map[string]string{"ban_duration": banDuration}
	var user User
	if err := c.rest.do(ctx, "update_user", http.MethodPut, "/admin/users/"+url.PathEscape(id), body, &user, nil); err != nil {
		return nil, err
	}
	return &user, nil
}

type listUsersResponse struct {
	Users []User `json:"users"`
}

// ListUsers returns one page of users. Pages start at 1.
func (c *AdminClient) ListUsers(ctx context.Context, page, perPage int) ([]User, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	var resp listUsersResponse
	if err := c.rest.do(ctx, "list_users", http.MethodGet, "/admin/users?"+query.Encode(), nil, &resp, nil); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return resp.Users, nil
}
