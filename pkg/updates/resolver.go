package updates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

var resolverTracer = otel.Tracer("gatehouse/updates")

const (
	// DefaultMetadataKey is where the publisher writes the manifest
	DefaultMetadataKey = "metadata/latest.json"
	// DefaultURLTTL is how long a signed APK URL stays valid
	DefaultURLTTL = 900 * time.Second

	// manifests are tiny; anything larger is not a manifest
	maxManifestBytes = 1 << 20
)

var (
	ErrMetadataUnavailable = errors.New("failed to load update metadata")
	ErrInvalidMetadata     = errors.New("invalid update metadata")
	ErrSigningFailed       = errors.New("failed to sign APK URL")
)

// Descriptor is the manifest object in the blob store
type Descriptor struct {
	ApkPath     string `json:"apkPath"`
	VersionCode int64  `json:"versionCode"`
	VersionName string `json:"versionName"`
	Sha256      string `json:"sha256"`
}

// UnmarshalJSON accepts versionCode as an integer, an integral float or a
// decimal string. Publishers have written all three.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	type plain Descriptor
	aux := struct {
		*plain
		VersionCode json.RawMessage `json:"versionCode"`
	}{plain: (*plain)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	code, err := parseVersionCode(aux.VersionCode)
	if err != nil {
		return err
	}
	d.VersionCode = code
	return nil
}

func parseVersionCode(raw json.RawMessage) (int64, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: versionCode: %v", ErrInvalidMetadata, err)
		}
		text = strings.TrimSpace(s)
	}
	if code, err := strconv.ParseInt(text, 10, 64); err == nil {
		return code, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, fmt.Errorf("%w: versionCode %s is not an integer", ErrInvalidMetadata, string(raw))
	}
	return int64(f), nil
}

// Validate checks the fields a client cannot work without
func (d *Descriptor) Validate() error {
	if d.ApkPath == "" {
		return fmt.Errorf("%w: apkPath is required", ErrInvalidMetadata)
	}
	if d.VersionCode == 0 {
		return fmt.Errorf("%w: versionCode is required", ErrInvalidMetadata)
	}
	return nil
}

// Latest is what clients receive. ApkURL is freshly signed on every resolve.
type Latest struct {
	VersionCode int64  `json:"versionCode"`
	VersionName string `json:"versionName"`
	ApkURL      string `json:"apkUrl"`
	Sha256      string `json:"sha256"`
}

// Config for the resolver
type Config struct {
	MetadataKey string
	URLTTL      time.Duration
}

// Resolver reads the update manifest and signs the referenced APK
type Resolver struct {
	blobs   storage.BlobStore
	config  Config
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewResolver creates a resolver. Empty config fields take the defaults.
func NewResolver(blobs storage.BlobStore, cfg Config, metrics *observability.Metrics, logger *observability.Logger) *Resolver {
	if cfg.MetadataKey == "" {
		cfg.MetadataKey = DefaultMetadataKey
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = DefaultURLTTL
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	return &Resolver{
		blobs:   blobs,
		config:  cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// ResolveLatest downloads the manifest, validates it and signs apkPath.
// Nothing is cached; every call mints a new URL.
func (r *Resolver) ResolveLatest(ctx context.Context) (*Latest, error) {
	ctx, span := resolverTracer.Start(ctx, "Resolver.ResolveLatest")
	defer span.End()

	span.SetAttributes(attribute.String("updates.metadata_key", r.config.MetadataKey))

	descriptor, err := r.loadDescriptor(ctx)
	if err != nil {
		outcome := "metadata_unavailable"
		if errors.Is(err, ErrInvalidMetadata) {
			outcome = "invalid_metadata"
		}
		r.metrics.IncSignedURL(outcome)
		r.logger.WithError(err).WithField("metadata_key", r.config.MetadataKey).Error("Failed to load update metadata")
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("updates.version_code", descriptor.VersionCode),
		attribute.String("updates.version_name", descriptor.VersionName),
	)

	url, err := r.blobs.PresignGet(ctx, descriptor.ApkPath, r.config.URLTTL)
	if err != nil {
		r.metrics.IncSignedURL("signing_failed")
		r.logger.WithError(err).WithField("apk_path", descriptor.ApkPath).Error("Failed to sign APK URL")
		span.RecordError(err)
		span.SetStatus(codes.Error, "signing failed")
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	r.metrics.IncSignedURL("ok")
	return &Latest{
		VersionCode: descriptor.VersionCode,
		VersionName: descriptor.VersionName,
		ApkURL:      url,
		Sha256:      descriptor.Sha256,
	}, nil
}

func (r *Resolver) loadDescriptor(ctx context.Context) (*Descriptor, error) {
	body, err := r.blobs.GetObject(ctx, r.config.MetadataKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
	}
	defer body.Close()

	var descriptor Descriptor
	if err := json.NewDecoder(io.LimitReader(body, maxManifestBytes)).Decode(&descriptor); err != nil {
		if errors.Is(err, ErrInvalidMetadata) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
	}

	if err := descriptor.Validate(); err != nil {
		return nil, err
	}
	return &descriptor, nil
}
