package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/identity"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

type fakeLister struct {
	mu    sync.Mutex
	users []identity.User
	pages []int
	err   error
}

func (f *fakeLister) ListUsers(ctx context.Context, page, perPage int) ([]identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = append(f.pages, page)
	if f.err != nil {
		return nil, f.err
	}
	start := (page - 1) * perPage
	if start >= len(f.users) {
		return nil, nil
	}
	end := start + perPage
	if end > len(f.users) {
		end = len(f.users)
	}
	return f.users[start:end], nil
}

var testNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func bannedUser(id string) identity.User {
	until := testNow.Add(DefaultPermanentBanDuration)
	return identity.User{ID: id, BannedUntil: &until}
}

func expiredBanUser(id string) identity.User {
	until := testNow.Add(-time.Hour)
	return identity.User{ID: id, BannedUntil: &until}
}

func newTestReconciler(lister UserLister, profiles storage.ProfileStore, pageSize int, metrics *observability.Metrics) *Reconciler {
	r := NewReconciler(lister, profiles, pageSize, metrics, nil)
	r.now = func() time.Time { return testNow }
	return r
}

func TestReconciler_RepairsDivergence(t *testing.T) {
	lister := &fakeLister{users: []identity.User{
		{ID: "u1"},
		bannedUser("u2"),
		expiredBanUser("u3"),
		bannedUser("u4"),
		{ID: "u5"},
	}}
	profiles := newFakeProfiles(
		storage.Profile{ID: "u1", IsActive: true},
		storage.Profile{ID: "u2", IsActive: true},  // stale after a failed profile write
		storage.Profile{ID: "u3", IsActive: false}, // ban expired
		storage.Profile{ID: "u4", IsActive: false},
	)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	report, err := newTestReconciler(lister, profiles, 2, metrics).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 2, report.Repaired)
	assert.Equal(t, 1, report.Missing)
	assert.Equal(t, 0, report.Failed)

	assert.True(t, profiles.active("u1"))
	assert.False(t, profiles.active("u2"))
	assert.True(t, profiles.active("u3"))
	assert.False(t, profiles.active("u4"))

	assert.Equal(t, []int{1, 2, 3}, lister.pages)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ReconcileRepairs))
}

func TestReconciler_NoChangesOnSecondRun(t *testing.T) {
	lister := &fakeLister{users: []identity.User{bannedUser("u2"), {ID: "u3"}}}
	profiles := newFakeProfiles(
		storage.Profile{ID: "u2", IsActive: true},
		storage.Profile{ID: "u3", IsActive: false},
	)
	r := newTestReconciler(lister, profiles, 10, nil)

	first, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Repaired)

	second, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Repaired)
	assert.Equal(t, 2, profiles.writeCount())
}

func TestReconciler_CollectsPerUserFailures(t *testing.T) {
	lister := &fakeLister{users: []identity.User{bannedUser("u2")}}
	profiles := newFakeProfiles(storage.Profile{ID: "u2", IsActive: true})
	profiles.setErr = errors.New("read-only transaction")

	report, err := newTestReconciler(lister, profiles, 10, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Error(), "user u2")
}

func TestReconciler_CapsReportedErrors(t *testing.T) {
	total := MaxReportErrors + 25
	users := make([]identity.User, 0, total)
	rows := make([]storage.Profile, 0, total)
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("u%d", i)
		users = append(users, bannedUser(id))
		rows = append(rows, storage.Profile{ID: id, IsActive: true})
	}
	profiles := newFakeProfiles(rows...)
	profiles.setErr = errors.New("read-only transaction")

	report, err := newTestReconciler(&fakeLister{users: users}, profiles, 20, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, total, report.Scanned)
	assert.Equal(t, total, report.Failed)
	assert.Len(t, report.Errors, MaxReportErrors)
}

func TestReconciler_ListFailureAborts(t *testing.T) {
	lister := &fakeLister{err: &identity.ProviderError{StatusCode: 500, Message: "unavailable"}}

	_, err := newTestReconciler(lister, newFakeProfiles(), 10, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 1")
}

func TestReconciler_StopsOnCancelledContext(t *testing.T) {
	users := make([]identity.User, 0, 20)
	for i := 0; i < 20; i++ {
		users = append(users, identity.User{ID: fmt.Sprintf("u%d", i)})
	}
	lister := &fakeLister{users: users}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestReconciler(lister, newFakeProfiles(), 5, nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, lister.pages)
}

type panickingProfiles struct {
	*fakeProfiles
}

func (p panickingProfiles) GetProfile(ctx context.Context, id string) (*storage.Profile, error) {
	panic("boom")
}

func TestReconciler_RecoversPanics(t *testing.T) {
	lister := &fakeLister{users: []identity.User{{ID: "u1"}}}

	report, err := newTestReconciler(lister, panickingProfiles{newFakeProfiles()}, 10, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Errors[0].Error(), "panic in reconcile user")
}
