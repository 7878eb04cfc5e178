// Package moderation changes a user's ban state across the identity provider
// and the profile store, and repairs the two when they drift apart.
//
// Mutator.SetBanState writes the provider first and the profile row second.
// There is no rollback: a failure in the second write is returned as a
// *StageError with Stage == StageProfile, and Reconciler will later bring the
// profile back in line with the provider.
package moderation
