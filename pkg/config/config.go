package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/identity"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/moderation"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
	"github.com/platinummonkey/gatehouse/pkg/updates"
)

// ConfigFileEnv names the optional YAML file applied before environment overrides
const ConfigFileEnv = "GATEHOUSE_CONFIG_FILE"

const (
	VerifierIntrospect = "introspect"
	VerifierOIDC       = "oidc"
)

// presigned S3 URLs cannot outlive this
const maxURLTTL = 7 * 24 * time.Hour

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Storage       storage.Config      `yaml:"storage"`
	Redis         RedisConfig         `yaml:"redis"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Auth          AuthConfig          `yaml:"auth"`
	Updates       UpdatesConfig       `yaml:"updates"`
	Moderation    ModerationConfig    `yaml:"moderation"`
	Reconciler    ReconcilerConfig    `yaml:"reconciler"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// IdentityConfig holds the identity provider endpoint and both credential scopes
type IdentityConfig struct {
	URL        string        `yaml:"url"`
	AnonKey    string        `yaml:"anon_key"`
	ServiceKey string        `yaml:"service_key"`
	Timeout    time.Duration `yaml:"timeout"`

	// Verifier is "introspect" (GET /user) or "oidc"
	Verifier      string `yaml:"verifier"`
	OIDCIssuerURL string `yaml:"oidc_issuer_url"`
	OIDCClientID  string `yaml:"oidc_client_id"`
}

// RedisConfig enables distributed rate limiting when URL is set
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RateLimitConfig bounds requests per caller
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
	Burst    int           `yaml:"burst"`
}

// AuthConfig tunes the role authorizer
type AuthConfig struct {
	RoleCacheTTL  time.Duration `yaml:"role_cache_ttl"`
	RoleCacheSize int           `yaml:"role_cache_size"`
}

// UpdatesConfig configures update resolution
type UpdatesConfig struct {
	MetadataKey string        `yaml:"metadata_key"`
	URLTTL      time.Duration `yaml:"url_ttl"`
	Access      string        `yaml:"access"`
}

// ModerationConfig configures ban mutations
type ModerationConfig struct {
	PermanentBanDuration time.Duration `yaml:"permanent_ban_duration"`
}

// ReconcilerConfig configures the ban-state reconciler
type ReconcilerConfig struct {
	Schedule string `yaml:"schedule"`
	PageSize int    `yaml:"page_size"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used before any file or environment overrides
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Identity: IdentityConfig{
			Timeout:  10 * time.Second,
			Verifier: VerifierIntrospect,
		},
		Storage: storage.DefaultConfig(),
		RateLimit: RateLimitConfig{
			Requests: 60,
			Window:   time.Minute,
			Burst:    10,
		},
		Auth: AuthConfig{
			RoleCacheSize: 1024,
		},
		Updates: UpdatesConfig{
			MetadataKey: updates.DefaultMetadataKey,
			URLTTL:      updates.DefaultURLTTL,
			Access:      string(updates.AccessAuthenticated),
		},
		Moderation: ModerationConfig{
			PermanentBanDuration: moderation.DefaultPermanentBanDuration,
		},
		Reconciler: ReconcilerConfig{
			Schedule: "*/15 * * * *",
			PageSize: 100,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "gatehouse",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by GATEHOUSE_CONFIG_FILE, and then environment variables.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("GATEHOUSE_HOST", s.Host)
	s.Port = getEnv("GATEHOUSE_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("GATEHOUSE_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("GATEHOUSE_HEALTH_PORT", s.HealthPort)

	id := &c.Identity
	id.URL = strings.TrimRight(getEnv("GATEHOUSE_IDENTITY_URL", id.URL), "/")
	id.AnonKey = getEnv("GATEHOUSE_ANON_KEY", id.AnonKey)
	id.ServiceKey = getEnv("GATEHOUSE_SERVICE_KEY", id.ServiceKey)
	id.Timeout = getEnvDuration("GATEHOUSE_IDENTITY_TIMEOUT", id.Timeout)
	id.Verifier = strings.ToLower(getEnv("GATEHOUSE_VERIFIER", id.Verifier))
	id.OIDCIssuerURL = getEnv("GATEHOUSE_OIDC_ISSUER_URL", id.OIDCIssuerURL)
	id.OIDCClientID = getEnv("GATEHOUSE_OIDC_CLIENT_ID", id.OIDCClientID)

	st := &c.Storage
	st.PostgresURL = getEnv("GATEHOUSE_POSTGRES_URL", st.PostgresURL)
	st.PostgresReplicaURLs = getEnvList("GATEHOUSE_POSTGRES_REPLICA_URLS", st.PostgresReplicaURLs)
	st.PostgresMaxConns = getEnvInt("GATEHOUSE_POSTGRES_MAX_CONNS", st.PostgresMaxConns)
	st.PostgresMinConns = getEnvInt("GATEHOUSE_POSTGRES_MIN_CONNS", st.PostgresMinConns)
	st.PostgresTimeout = getEnvDuration("GATEHOUSE_POSTGRES_TIMEOUT", st.PostgresTimeout)
	st.S3Endpoint = getEnv("GATEHOUSE_S3_ENDPOINT", st.S3Endpoint)
	st.S3Region = getEnv("GATEHOUSE_S3_REGION", st.S3Region)
	st.S3Bucket = getEnv("GATEHOUSE_S3_BUCKET", st.S3Bucket)
	st.S3AccessKey = getEnv("GATEHOUSE_S3_ACCESS_KEY", st.S3AccessKey)
	st.S3SecretKey = getEnv("GATEHOUSE_S3_SECRET_KEY", st.S3SecretKey)
	st.S3UsePathStyle = getEnvBool("GATEHOUSE_S3_USE_PATH_STYLE", st.S3UsePathStyle)

	c.Redis.URL = getEnv("GATEHOUSE_REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnv("GATEHOUSE_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("GATEHOUSE_REDIS_DB", c.Redis.DB)

	c.RateLimit.Requests = getEnvInt("GATEHOUSE_RATE_LIMIT_REQUESTS", c.RateLimit.Requests)
	c.RateLimit.Window = getEnvDuration("GATEHOUSE_RATE_LIMIT_WINDOW", c.RateLimit.Window)
	c.RateLimit.Burst = getEnvInt("GATEHOUSE_RATE_LIMIT_BURST", c.RateLimit.Burst)

	c.Auth.RoleCacheTTL = getEnvDuration("GATEHOUSE_ROLE_CACHE_TTL", c.Auth.RoleCacheTTL)
	c.Auth.RoleCacheSize = getEnvInt("GATEHOUSE_ROLE_CACHE_SIZE", c.Auth.RoleCacheSize)

	c.Updates.MetadataKey = getEnv("GATEHOUSE_UPDATES_METADATA_KEY", c.Updates.MetadataKey)
	c.Updates.URLTTL = getEnvDuration("GATEHOUSE_UPDATES_URL_TTL", c.Updates.URLTTL)
	c.Updates.Access = getEnv("GATEHOUSE_UPDATES_AUTH", c.Updates.Access)

	c.Moderation.PermanentBanDuration = getEnvDuration("GATEHOUSE_PERMANENT_BAN_DURATION", c.Moderation.PermanentBanDuration)

	c.Reconciler.Schedule = getEnv("GATEHOUSE_RECONCILE_SCHEDULE", c.Reconciler.Schedule)
	c.Reconciler.PageSize = getEnvInt("GATEHOUSE_RECONCILE_PAGE_SIZE", c.Reconciler.PageSize)

	o := &c.Observability
	o.LogLevel = getEnv("GATEHOUSE_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("GATEHOUSE_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("GATEHOUSE_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("GATEHOUSE_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("GATEHOUSE_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("GATEHOUSE_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("GATEHOUSE_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("GATEHOUSE_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Identity provider
	if c.Identity.URL == "" {
		return fmt.Errorf("identity provider URL is required")
	}
	if c.Identity.AnonKey == "" {
		return fmt.Errorf("identity provider anon key is required")
	}
	if c.Identity.ServiceKey == "" {
		return fmt.Errorf("identity provider service key is required")
	}
	if c.Identity.AnonKey == c.Identity.ServiceKey {
		return fmt.Errorf("anon key and service key must be different credentials")
	}
	switch c.Identity.Verifier {
	case VerifierIntrospect:
	case VerifierOIDC:
		if c.Identity.OIDCIssuerURL == "" {
			return fmt.Errorf("OIDC issuer URL is required for the oidc verifier")
		}
	default:
		return fmt.Errorf("invalid verifier: %s (must be introspect or oidc)", c.Identity.Verifier)
	}

	// Storage
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required")
	}

	// Rate limiting
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit requests and window must be positive")
	}

	// Updates
	if _, err := c.Updates.Mode(); err != nil {
		return err
	}
	if c.Updates.MetadataKey == "" {
		return fmt.Errorf("update metadata key is required")
	}
	if c.Updates.URLTTL <= 0 || c.Updates.URLTTL > maxURLTTL {
		return fmt.Errorf("update URL TTL must be between 1s and %s", maxURLTTL)
	}

	// Moderation
	if c.Moderation.PermanentBanDuration < time.Hour {
		return fmt.Errorf("permanent ban duration must be at least 1h")
	}

	// Reconciler
	if _, err := cron.ParseStandard(c.Reconciler.Schedule); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", c.Reconciler.Schedule, err)
	}
	if c.Reconciler.PageSize <= 0 {
		return fmt.Errorf("reconcile page size must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Mode parses the configured access mode
func (u UpdatesConfig) Mode() (updates.AccessMode, error) {
	return updates.ParseAccessMode(u.Access)
}

// ResolverConfig converts to the resolver's settings
func (u UpdatesConfig) ResolverConfig() updates.Config {
	return updates.Config{MetadataKey: u.MetadataKey, URLTTL: u.URLTTL}
}

// ClientConfig converts to the identity client settings
func (i IdentityConfig) ClientConfig() identity.Config {
	return identity.Config{
		BaseURL:    i.URL,
		AnonKey:    i.AnonKey,
		ServiceKey: i.ServiceKey,
		Timeout:    i.Timeout,
	}
}

// OIDC converts to the OIDC verifier settings
func (i IdentityConfig) OIDC() identity.OIDCConfig {
	return identity.OIDCConfig{IssuerURL: i.OIDCIssuerURL, ClientID: i.OIDCClientID}
}

// AuthorizerConfig converts to the role authorizer settings
func (a AuthConfig) AuthorizerConfig() auth.AuthorizerConfig {
	return auth.AuthorizerConfig{CacheTTL: a.RoleCacheTTL, CacheSize: a.RoleCacheSize}
}

// Limits converts to the rate limiter settings
func (r RateLimitConfig) Limits() *middleware.RateLimitConfig {
	return &middleware.RateLimitConfig{
		RequestsPerWindow: r.Requests,
		WindowDuration:    r.Window,
		BurstSize:         r.Burst,
	}
}

// Level parses the configured log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel converts to the tracing settings
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable, dropping blanks
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
