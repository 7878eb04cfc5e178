package moderation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/identity"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// DefaultPermanentBanDuration is long enough to outlive any account
const DefaultPermanentBanDuration = 876000 * time.Hour

var (
	// ErrMissingTarget means no target user id was supplied
	ErrMissingTarget = errors.New("user id is required")
	// ErrSelfTarget means the caller tried to ban themselves
	ErrSelfTarget = errors.New("cannot ban yourself")
)

// Action is the applied ban transition
type Action string

const (
	ActionBanned   Action = "banned"
	ActionUnbanned Action = "unbanned"
)

// Stage names the backend a mutation failed in
type Stage string

const (
	StageIdentity Stage = "identity"
	StageProfile  Stage = "profile"
)

// StageError reports which write failed. A profile-stage failure means the
// provider update already took effect and was not rolled back.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IdentityAdmin is the elevated provider capability the mutator needs
type IdentityAdmin interface {
	UpdateUserByID(ctx context.Context, id, banDuration string) (*identity.User, error)
}

// Result describes a completed mutation
type Result struct {
	Action Action
	User   *identity.User
}

// Mutator keeps provider ban state and the profile is_active flag in step
type Mutator struct {
	admin       IdentityAdmin
	profiles    storage.ProfileWriter
	banDuration time.Duration
	metrics     *observability.Metrics
	logger      *observability.Logger
}

// NewMutator creates a mutator. A zero banDuration uses DefaultPermanentBanDuration.
// metrics and logger may be nil.
func NewMutator(admin IdentityAdmin, profiles storage.ProfileWriter, banDuration time.Duration, metrics *observability.Metrics, logger *observability.Logger) *Mutator {
	if banDuration <= 0 {
		banDuration = DefaultPermanentBanDuration
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	return &Mutator{
		admin:       admin,
		profiles:    profiles,
		banDuration: banDuration,
		metrics:     metrics,
		logger:      logger,
	}
}

// FormatBanDuration renders d in whole hours, the form the provider accepts
func FormatBanDuration(d time.Duration) string {
	return fmt.Sprintf("%dh", int64(d/time.Hour))
}

// BanDirective returns the ban_duration value for the desired state
func (m *Mutator) BanDirective(banned bool) string {
	if banned {
		return FormatBanDuration(m.banDuration)
	}
	return identity.UnbanDuration
}

// SetBanState bans or unbans targetID on behalf of callerID. The provider is
// updated first; the profile row is only written once that succeeds.
// The caller must already be authorized as an admin.
func (m *Mutator) SetBanState(ctx context.Context, callerID, targetID string, banned bool) (*Result, error) {
	action := ActionUnbanned
	if banned {
		action = ActionBanned
	}

	logger := m.logger.WithFields(map[string]interface{}{
		"caller_id": callerID,
		"target_id": targetID,
		"action":    string(action),
	})

	if targetID == "" {
		m.metrics.IncBanMutation(string(action), "invalid")
		return nil, ErrMissingTarget
	}
	if targetID == callerID {
		m.metrics.IncBanMutation(string(action), "invalid")
		return nil, ErrSelfTarget
	}

	user, err := m.admin.UpdateUserByID(ctx, targetID, m.BanDirective(banned))
	if err != nil {
		m.metrics.IncBanMutation(string(action), "identity_failed")
		logger.WithError(err).WithField("stage", string(StageIdentity)).Error("Ban update rejected by identity provider")
		return nil, &StageError{Stage: StageIdentity, Err: err}
	}

	if err := m.profiles.SetActive(ctx, targetID, !banned); err != nil {
		m.metrics.IncBanMutation(string(action), "profile_failed")
		logger.WithError(err).WithField("stage", string(StageProfile)).Error("Profile update failed after identity provider update")
		return nil, &StageError{Stage: StageProfile, Err: err}
	}

	m.metrics.IncBanMutation(string(action), "ok")
	logger.Info("Ban state updated")

	return &Result{Action: action, User: user}, nil
}
