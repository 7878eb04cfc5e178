package updates

import (
	"fmt"
	"strings"
)

// AccessMode selects who may resolve the latest update
type AccessMode string

const (
	// AccessPublic serves anyone and ignores the Authorization header
	AccessPublic AccessMode = "public"
	// AccessAuthenticated requires a valid caller credential
	AccessAuthenticated AccessMode = "authenticated"
	// AccessAdmin additionally requires the admin role
	AccessAdmin AccessMode = "admin"
)

// ParseAccessMode accepts the mode names case-insensitively. Empty means authenticated.
func ParseAccessMode(s string) (AccessMode, error) {
	switch mode := AccessMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "":
		return AccessAuthenticated, nil
	case AccessPublic, AccessAuthenticated, AccessAdmin:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown update access mode %q", s)
	}
}

// RequiresCredential reports whether callers must present a valid token
func (m AccessMode) RequiresCredential() bool {
	return m != AccessPublic
}
