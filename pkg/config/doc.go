// Package config loads the gatehouse configuration once at startup.
//
// Values are layered: built-in defaults, then the YAML file named by
// GATEHOUSE_CONFIG_FILE (if set), then GATEHOUSE_* environment variables.
// The result is validated before it is returned and then passed explicitly
// to each component's constructor. Handlers never read the environment.
//
// # Required settings
//
//	GATEHOUSE_IDENTITY_URL="https://project.supabase.co/auth/v1"
//	GATEHOUSE_ANON_KEY="..."     # caller-scoped, used only to verify tokens
//	GATEHOUSE_SERVICE_KEY="..."  # elevated, used for ban updates
//	GATEHOUSE_POSTGRES_URL="postgres://localhost/app"
//
// # YAML file
//
//	server:
//	  port: "8080"
//	storage:
//	  s3_bucket: app-updates
//	updates:
//	  access: authenticated   # public, authenticated, admin
//	  url_ttl: 15m
//	reconciler:
//	  schedule: "*/15 * * * *"
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
