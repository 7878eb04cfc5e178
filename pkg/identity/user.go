package identity

import (
	"encoding/json"
	"time"
)

// User is the provider's snapshot of an identity.
// It marshals back to exactly the JSON the provider sent.
type User struct {
	ID           string                 `json:"id"`
	Aud          string                 `json:"aud,omitempty"`
	Role         string                 `json:"role,omitempty"`
	Email        string                 `json:"email,omitempty"`
	Phone        string                 `json:"phone,omitempty"`
	BannedUntil  *time.Time             `json:"banned_until,omitempty"`
	CreatedAt    *time.Time             `json:"created_at,omitempty"`
	UpdatedAt    *time.Time             `json:"updated_at,omitempty"`
	LastSignInAt *time.Time             `json:"last_sign_in_at,omitempty"`
	AppMetadata  map[string]interface{} `json:"app_metadata,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`

	raw json.RawMessage
}

type userFields User

// UnmarshalJSON keeps the original payload alongside the parsed fields
func (u *User) UnmarshalJSON(data []byte) error {
	var fields userFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*u = User(fields)
	u.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the provider payload when available
func (u User) MarshalJSON() ([]byte, error) {
	if len(u.raw) > 0 {
		return u.raw, nil
	}
	return json.Marshal(userFields(u))
}

// IsBanned reports whether the ban is still in force at now
func (u *User) IsBanned(now time.Time) bool {
	return u.BannedUntil != nil && u.BannedUntil.After(now)
}
