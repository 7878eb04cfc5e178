package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrProfileNotFound is returned when no profile row exists for an id
	ErrProfileNotFound = errors.New("profile not found")
	// ErrObjectNotFound is returned when a blob key does not exist
	ErrObjectNotFound = errors.New("object not found")
)

// Profile is the application-side record for an identity.
// Role is empty when the column is NULL.
type Profile struct {
	ID       string
	Role     string
	IsActive bool
}

// ProfileReader is the read-only profile capability used for authorization
type ProfileReader interface {
	GetProfile(ctx context.Context, id string) (*Profile, error)
}

// ProfileWriter updates the denormalized ban flag. Implementations return
// ErrProfileNotFound when no row matched.
type ProfileWriter interface {
	SetActive(ctx context.Context, id string, active bool) error
}

// ProfileStore combines both profile capabilities
type ProfileStore interface {
	ProfileReader
	ProfileWriter
}

// ObjectReader downloads blobs. Implementations return ErrObjectNotFound for missing keys.
type ObjectReader interface {
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
}

// URLSigner mints time-limited GET URLs for blobs
type URLSigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// BlobStore combines object download and URL signing
type BlobStore interface {
	ObjectReader
	URLSigner
}

// HealthChecker is implemented by backends that can probe their dependency
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config for storage backends
type Config struct {
	// PostgreSQL config
	PostgresURL         string        `yaml:"postgres_url"`
	PostgresReplicaURLs []string      `yaml:"postgres_replica_urls"`
	PostgresMaxConns    int           `yaml:"postgres_max_conns"`
	PostgresMinConns    int           `yaml:"postgres_min_conns"`
	PostgresTimeout     time.Duration `yaml:"postgres_timeout"`

	// S3 config
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 10,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		S3Region:         "us-east-1",
		S3Bucket:         "app-updates",
	}
}
