package auth

// Role is the application role stored on a profile row
type Role string

const (
	// RoleAdmin may ban users and, in admin gate mode, resolve updates
	RoleAdmin Role = "admin"
)

// Identity is the verified caller as reported by the identity provider
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	// Audience role from the provider (for example "authenticated"). It is
	// never used for authorization; roles come from the profile store.
	ProviderRole string `json:"role,omitempty"`
}

// AuthContext holds the verified identity for the current request
type AuthContext struct {
	Identity *Identity
}

// UserID returns the caller's identity id, or "" when unauthenticated
func (c *AuthContext) UserID() string {
	if c == nil || c.Identity == nil {
		return ""
	}
	return c.Identity.ID
}
