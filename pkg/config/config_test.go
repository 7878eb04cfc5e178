package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/updates"
)

// setRequiredEnv sets the variables without defaults
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv(ConfigFileEnv, "")
	t.Setenv("GATEHOUSE_IDENTITY_URL", "https://project.supabase.co/auth/v1/")
	t.Setenv("GATEHOUSE_ANON_KEY", "anon")
	t.Setenv("GATEHOUSE_SERVICE_KEY", "service")
	t.Setenv("GATEHOUSE_POSTGRES_URL", "postgres://localhost/gatehouse?sslmode=disable")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "https://project.supabase.co/auth/v1", cfg.Identity.URL)
	assert.Equal(t, VerifierIntrospect, cfg.Identity.Verifier)
	assert.Equal(t, 10*time.Second, cfg.Identity.Timeout)

	assert.Equal(t, "app-updates", cfg.Storage.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.Storage.S3Region)
	assert.Equal(t, 10, cfg.Storage.PostgresMaxConns)

	assert.Equal(t, "metadata/latest.json", cfg.Updates.MetadataKey)
	assert.Equal(t, 900*time.Second, cfg.Updates.URLTTL)
	mode, err := cfg.Updates.Mode()
	require.NoError(t, err)
	assert.Equal(t, updates.AccessAuthenticated, mode)

	assert.Equal(t, 876000*time.Hour, cfg.Moderation.PermanentBanDuration)
	assert.Equal(t, "*/15 * * * *", cfg.Reconciler.Schedule)
	assert.Equal(t, 100, cfg.Reconciler.PageSize)
	assert.Equal(t, time.Duration(0), cfg.Auth.RoleCacheTTL)

	assert.Equal(t, observability.InfoLevel, cfg.Observability.Level())
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.OTelEnabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GATEHOUSE_PORT", "8000")
	t.Setenv("GATEHOUSE_POSTGRES_REPLICA_URLS", "postgres://r1/db, ,postgres://r2/db")
	t.Setenv("GATEHOUSE_S3_USE_PATH_STYLE", "true")
	t.Setenv("GATEHOUSE_UPDATES_AUTH", "public")
	t.Setenv("GATEHOUSE_UPDATES_URL_TTL", "5m")
	t.Setenv("GATEHOUSE_PERMANENT_BAN_DURATION", "8760h")
	t.Setenv("GATEHOUSE_ROLE_CACHE_TTL", "30s")
	t.Setenv("GATEHOUSE_REDIS_URL", "redis://localhost:6379")
	t.Setenv("GATEHOUSE_LOG_LEVEL", "debug")
	t.Setenv("GATEHOUSE_OTEL_SAMPLE_RATIO", "0.25")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, []string{"postgres://r1/db", "postgres://r2/db"}, cfg.Storage.PostgresReplicaURLs)
	assert.True(t, cfg.Storage.S3UsePathStyle)
	mode, _ := cfg.Updates.Mode()
	assert.Equal(t, updates.AccessPublic, mode)
	assert.Equal(t, 5*time.Minute, cfg.Updates.ResolverConfig().URLTTL)
	assert.Equal(t, 8760*time.Hour, cfg.Moderation.PermanentBanDuration)
	assert.Equal(t, 30*time.Second, cfg.Auth.AuthorizerConfig().CacheTTL)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.Level())
	assert.Equal(t, 0.25, cfg.Observability.OTel().SampleRatio)
}

func TestLoadConfig_File(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "gatehouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
  read_timeout: 5s
storage:
  s3_bucket: releases
  s3_endpoint: http://minio:9000
updates:
  access: admin
  metadata_key: channels/stable.json
rate_limit:
  requests: 10
  window: 10s
`), 0o600))
	t.Setenv(ConfigFileEnv, path)
	// environment wins over the file
	t.Setenv("GATEHOUSE_PORT", "7001")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7001", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "releases", cfg.Storage.S3Bucket)
	assert.Equal(t, "http://minio:9000", cfg.Storage.S3Endpoint)
	assert.Equal(t, "channels/stable.json", cfg.Updates.MetadataKey)
	mode, _ := cfg.Updates.Mode()
	assert.Equal(t, updates.AccessAdmin, mode)
	assert.Equal(t, 10, cfg.RateLimit.Limits().RequestsPerWindow)
	// untouched keys keep defaults
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
}

func TestLoadConfig_FileErrors(t *testing.T) {
	setRequiredEnv(t)

	t.Run("missing file", func(t *testing.T) {
		t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
		t.Setenv(ConfigFileEnv, path)
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "failed to parse config file")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Identity.URL = "https://id.example.com"
		cfg.Identity.AnonKey = "anon"
		cfg.Identity.ServiceKey = "service"
		cfg.Storage.PostgresURL = "postgres://localhost/db"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "same ports", mutate: func(c *Config) { c.Server.HealthPort = c.Server.Port }, wantErr: "must be different"},
		{name: "no identity url", mutate: func(c *Config) { c.Identity.URL = "" }, wantErr: "identity provider URL"},
		{name: "no anon key", mutate: func(c *Config) { c.Identity.AnonKey = "" }, wantErr: "anon key"},
		{name: "no service key", mutate: func(c *Config) { c.Identity.ServiceKey = "" }, wantErr: "service key"},
		{name: "shared keys", mutate: func(c *Config) { c.Identity.ServiceKey = c.Identity.AnonKey }, wantErr: "different credentials"},
		{name: "unknown verifier", mutate: func(c *Config) { c.Identity.Verifier = "jwt" }, wantErr: "invalid verifier"},
		{name: "oidc without issuer", mutate: func(c *Config) { c.Identity.Verifier = VerifierOIDC }, wantErr: "OIDC issuer URL"},
		{name: "no postgres", mutate: func(c *Config) { c.Storage.PostgresURL = "" }, wantErr: "postgres URL"},
		{name: "no bucket", mutate: func(c *Config) { c.Storage.S3Bucket = "" }, wantErr: "S3 bucket"},
		{name: "bad access mode", mutate: func(c *Config) { c.Updates.Access = "everyone" }, wantErr: "unknown update access mode"},
		{name: "ttl too long", mutate: func(c *Config) { c.Updates.URLTTL = 8 * 24 * time.Hour }, wantErr: "URL TTL"},
		{name: "short ban", mutate: func(c *Config) { c.Moderation.PermanentBanDuration = time.Minute }, wantErr: "at least 1h"},
		{name: "bad schedule", mutate: func(c *Config) { c.Reconciler.Schedule = "every so often" }, wantErr: "invalid reconcile schedule"},
		{name: "zero page size", mutate: func(c *Config) { c.Reconciler.PageSize = 0 }, wantErr: "page size"},
		{name: "zero rate limit", mutate: func(c *Config) { c.RateLimit.Requests = 0 }, wantErr: "rate limit"},
		{name: "otel without endpoint", mutate: func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, wantErr: "OpenTelemetry endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")
	t.Setenv("GATEHOUSE_IDENTITY_URL", "")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "configuration validation failed")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_GATEHOUSE_BOOL", "1")
	t.Setenv("TEST_GATEHOUSE_INT", "notanumber")
	t.Setenv("TEST_GATEHOUSE_DURATION", "90s")

	assert.True(t, getEnvBool("TEST_GATEHOUSE_BOOL", false))
	assert.Equal(t, 7, getEnvInt("TEST_GATEHOUSE_INT", 7))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_GATEHOUSE_DURATION", time.Second))
	assert.Equal(t, "fallback", getEnv("TEST_GATEHOUSE_UNSET", "fallback"))
	assert.Equal(t, []string{"a"}, getEnvList("TEST_GATEHOUSE_UNSET", []string{"a"}))
}
