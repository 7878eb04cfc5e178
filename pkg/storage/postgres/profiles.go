package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

var profileTracer = otel.Tracer("gatehouse/storage/postgres")

const (
	selectProfileQuery = `SELECT id, role, is_active FROM profiles WHERE id = $1`
	updateActiveQuery  = `UPDATE profiles SET is_active = $1 WHERE id = $2`
)

// ProfileStore reads and writes rows of the profiles table
type ProfileStore struct {
	conns   *ConnectionManager
	metrics *observability.Metrics
}

var (
	_ storage.ProfileStore  = (*ProfileStore)(nil)
	_ storage.HealthChecker = (*ProfileStore)(nil)
)

// NewProfileStore creates a profile store. metrics may be nil.
func NewProfileStore(conns *ConnectionManager, metrics *observability.Metrics) *ProfileStore {
	return &ProfileStore{
		conns:   conns,
		metrics: metrics,
	}
}

// GetProfile loads one profile from a read replica
func (s *ProfileStore) GetProfile(ctx context.Context, id string) (*storage.Profile, error) {
	ctx, span := profileTracer.Start(ctx, "ProfileStore.GetProfile",
		trace.WithAttributes(attribute.String("db.operation", "SELECT")),
	)
	defer span.End()

	start := time.Now()
	var (
		profile storage.Profile
		role    sql.NullString
	)
	err := s.conns.Replica().QueryRowContext(ctx, selectProfileQuery, id).
		Scan(&profile.ID, &role, &profile.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		// a missing row is an answer, not a dependency failure
		s.metrics.ObserveDependency("postgres", "get_profile", start, nil)
		span.SetStatus(codes.Ok, "no profile")
		return nil, storage.ErrProfileNotFound
	}
	s.metrics.ObserveDependency("postgres", "get_profile", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile lookup failed")
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile.Role = role.String
	return &profile, nil
}

// SetActive writes is_active for one profile on the primary
func (s *ProfileStore) SetActive(ctx context.Context, id string, active bool) error {
	ctx, span := profileTracer.Start(ctx, "ProfileStore.SetActive",
		trace.WithAttributes(
			attribute.String("db.operation", "UPDATE"),
			attribute.Bool("profile.is_active", active),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := s.conns.Primary().ExecContext(ctx, updateActiveQuery, active, id)
	if err != nil {
		s.metrics.ObserveDependency("postgres", "set_active", start, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile update failed")
		return fmt.Errorf("failed to update profile: %w", err)
	}

	rows, err := result.RowsAffected()
	s.metrics.ObserveDependency("postgres", "set_active", start, err)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		span.SetStatus(codes.Error, "no profile")
		return storage.ErrProfileNotFound
	}

	return nil
}

// HealthCheck reports the health of the underlying pools
func (s *ProfileStore) HealthCheck(ctx context.Context) error {
	return s.conns.HealthCheck(ctx)
}
