package moderation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/gatehouse/pkg/identity"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

const (
	defaultPageSize    = 100
	defaultConcurrency = 4

	// MaxReportErrors caps Report.Errors; Failed keeps the full count
	MaxReportErrors = 50
)

// UserLister pages through provider users
type UserLister interface {
	ListUsers(ctx context.Context, page, perPage int) ([]identity.User, error)
}

// Report summarizes one reconciliation pass
type Report struct {
	Scanned  int
	Repaired int
	// Missing counts provider users without a profile row; they are never created
	Missing int
	Failed  int
	// Errors holds the first MaxReportErrors failures
	Errors []error
}

// Reconciler rewrites profile rows whose is_active disagrees with the
// provider, which is the system of record for ban state.
type Reconciler struct {
	users       UserLister
	profiles    storage.ProfileStore
	pageSize    int
	concurrency int
	now         func() time.Time
	metrics     *observability.Metrics
	logger      *observability.Logger
}

// NewReconciler creates a reconciler. Zero pageSize uses 100.
func NewReconciler(users UserLister, profiles storage.ProfileStore, pageSize int, metrics *observability.Metrics, logger *observability.Logger) *Reconciler {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	return &Reconciler{
		users:       users,
		profiles:    profiles,
		pageSize:    pageSize,
		concurrency: defaultConcurrency,
		now:         time.Now,
		metrics:     metrics,
		logger:      logger,
	}
}

// Run scans every provider user once. Per-user failures are collected in the
// report; a listing failure or cancelled ctx ends the run with an error.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	var mu sync.Mutex

	record := func(fn func(*Report)) {
		mu.Lock()
		fn(report)
		mu.Unlock()
	}

	start := r.now()
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		users, err := r.users.ListUsers(ctx, page, r.pageSize)
		if err != nil {
			return report, fmt.Errorf("page %d: %w", page, err)
		}

		g := new(errgroup.Group)
		g.SetLimit(r.concurrency)
		for i := range users {
			user := users[i]
			g.Go(func() error {
				repaired, err := r.reconcileOne(ctx, user)
				record(func(rep *Report) {
					rep.Scanned++
					switch {
					case errors.Is(err, storage.ErrProfileNotFound):
						rep.Missing++
					case err != nil:
						rep.Failed++
						if len(rep.Errors) < MaxReportErrors {
							rep.Errors = append(rep.Errors, fmt.Errorf("user %s: %w", user.ID, err))
						}
					case repaired:
						rep.Repaired++
					}
				})
				return nil
			})
		}
		_ = g.Wait()

		if len(users) < r.pageSize {
			break
		}
	}

	r.metrics.AddReconcileRepairs(report.Repaired)
	r.logger.WithFields(map[string]interface{}{
		"scanned":  report.Scanned,
		"repaired": report.Repaired,
		"missing":  report.Missing,
		"failed":   report.Failed,
		"duration": r.now().Sub(start).String(),
	}).Info("Ban state reconciliation finished")

	return report, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, user identity.User) (repaired bool, err error) {
	defer observability.RecoverToError(r.logger, "reconcile user", &err)

	wantActive := !user.IsBanned(r.now())

	profile, err := r.profiles.GetProfile(ctx, user.ID)
	if err != nil {
		return false, err
	}
	if profile.IsActive == wantActive {
		return false, nil
	}

	if err := r.profiles.SetActive(ctx, user.ID, wantActive); err != nil {
		return false, err
	}

	r.logger.WithFields(map[string]interface{}{
		"target_id": user.ID,
		"is_active": wantActive,
	}).Warn("Repaired profile ban flag")
	return true, nil
}
