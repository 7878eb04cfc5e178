// Package identity talks to the GoTrue-compatible identity provider.
//
// The two credential scopes are two types. PublicClient carries only the
// anonymous key and verifies caller tokens with GET /user. AdminClient
// carries the service key and performs ban updates and user listing through
// the /admin endpoints. Code that only needs to verify callers never holds the
// service key.
//
// OIDCVerifier is an alternative auth.Verifier for deployments that front a
// generic OIDC issuer instead of GoTrue.
package identity
