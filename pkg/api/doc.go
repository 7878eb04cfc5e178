// Package api provides the gatehouse HTTP API.
//
// # Routes
//
// Each route is also served under /functions/v1 for clients written against
// edge function URLs.
//
//	POST     /ban-user      {"userId": "...", "ban": false?}  admin only
//	GET|POST /check-update                                    gate per updates.AccessMode
//
// # Ban checks
//
// Checks run in a fixed order so that cheap rejections never touch a store:
//
//  1. bearer credential (401)
//  2. self-target (400 "Cannot ban yourself"), before any role lookup
//  3. admin role (403 "Only admins can ban users")
//  4. userId present (400 "User ID is required")
//  5. identity provider update, then the profile row; failures are 400 with
//     {"error": "...", "stage": "identity"|"profile"}
//
// # Usage
//
//	server := api.NewServer(api.Dependencies{
//		Verifier:     publicClient,
//		Authorizer:   authorizer,
//		Bans:         mutator,
//		Updates:      resolver,
//		UpdateAccess: updates.AccessAuthenticated,
//		Logger:       logger,
//	})
//	http.ListenAndServe(":8080", server)
package api
