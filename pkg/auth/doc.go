// Package auth defines the credential and role gates in front of privileged operations.
//
// A Verifier turns a bearer token into an Identity by asking the identity
// provider; implementations live in pkg/identity. An Authorizer then checks
// the caller's role against the profile store:
//
//	token, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
//	id, err := verifier.Verify(ctx, token)
//	err = authorizer.Authorize(ctx, id.ID, auth.RoleAdmin)
//
// Errors wrap ErrMissingCredential, ErrInvalidCredential or ErrForbidden so
// callers can map them with errors.Is.
package auth
