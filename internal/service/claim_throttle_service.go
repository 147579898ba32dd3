package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/tutor-identity-api/pkg/errors"
)

type attemptStore interface {
	Count(ctx context.Context, userID string) (int64, error)
	Increment(ctx context.Context, userID string, window time.Duration) (int64, error)
	Reset(ctx context.Context, userID string) error
}

// ClaimThrottleConfig tunes failed-claim limiting.
type ClaimThrottleConfig struct {
	Enabled           bool
	MaxFailedAttempts int
	Window            time.Duration
}

// ClaimThrottleService limits how many bad or expired tokens a user may try. Counter
// storage failures never block a claim.
type ClaimThrottleService struct {
	store  attemptStore
	logger *zap.Logger
	config ClaimThrottleConfig
}

// NewClaimThrottleService constructs the throttle.
func NewClaimThrottleService(store attemptStore, logger *zap.Logger, cfg ClaimThrottleConfig) *ClaimThrottleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	return &ClaimThrottleService{store: store, logger: logger, config: cfg}
}

func (s *ClaimThrottleService) active() bool {
	return s != nil && s.config.Enabled && s.store != nil
}

// Check returns TooManyAttempts once the user exhausted the failure budget.
func (s *ClaimThrottleService) Check(ctx context.Context, userID string) error {
	if !s.active() {
		return nil
	}
	count, err := s.store.Count(ctx, userID)
	if err != nil {
		s.logger.Warn("claim throttle unavailable", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if count >= int64(s.config.MaxFailedAttempts) {
		return appErrors.ErrTooManyAttempts
	}
	return nil
}

// RecordFailure counts one failed claim.
func (s *ClaimThrottleService) RecordFailure(ctx context.Context, userID string) {
	if !s.active() {
		return
	}
	if _, err := s.store.Increment(ctx, userID, s.config.Window); err != nil {
		s.logger.Warn("failed to record claim failure", zap.String("user_id", userID), zap.Error(err))
	}
}

// Reset clears the user's failures after a successful claim.
func (s *ClaimThrottleService) Reset(ctx context.Context, userID string) {
	if !s.active() {
		return
	}
	if err := s.store.Reset(ctx, userID); err != nil {
		s.logger.Warn("failed to reset claim failures", zap.String("user_id", userID), zap.Error(err))
	}
}
