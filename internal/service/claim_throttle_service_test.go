package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/tutor-identity-api/pkg/errors"
)

func TestClaimThrottleServiceCountsFailures(t *testing.T) {
	store := &fakeAttemptStore{counts: map[string]int64{}}
	throttle := NewClaimThrottleService(store, nil, ClaimThrottleConfig{Enabled: true, MaxFailedAttempts: 2, Window: time.Minute})
	ctx := context.Background()

	assert.NoError(t, throttle.Check(ctx, "user-1"))
	throttle.RecordFailure(ctx, "user-1")
	assert.NoError(t, throttle.Check(ctx, "user-1"))
	throttle.RecordFailure(ctx, "user-1")

	err := throttle.Check(ctx, "user-1")
	assert.True(t, errors.Is(err, appErrors.ErrTooManyAttempts))
	assert.NoError(t, throttle.Check(ctx, "user-2"))

	throttle.Reset(ctx, "user-1")
	assert.NoError(t, throttle.Check(ctx, "user-1"))
}

func TestClaimThrottleServiceDisabled(t *testing.T) {
	store := &fakeAttemptStore{counts: map[string]int64{"user-1": 100}}
	ctx := context.Background()

	disabled := NewClaimThrottleService(store, nil, ClaimThrottleConfig{Enabled: false})
	assert.NoError(t, disabled.Check(ctx, "user-1"))

	withoutStore := NewClaimThrottleService(nil, nil, ClaimThrottleConfig{Enabled: true})
	assert.NoError(t, withoutStore.Check(ctx, "user-1"))
	withoutStore.RecordFailure(ctx, "user-1")

	var nilThrottle *ClaimThrottleService
	assert.NoError(t, nilThrottle.Check(ctx, "user-1"))
	nilThrottle.Reset(ctx, "user-1")
}

func TestClaimThrottleServiceFailsOpen(t *testing.T) {
	store := &fakeAttemptStore{counts: map[string]int64{}, countErr: errStoreDown}
	throttle := NewClaimThrottleService(store, nil, ClaimThrottleConfig{Enabled: true, MaxFailedAttempts: 1})

	assert.NoError(t, throttle.Check(context.Background(), "user-1"))
}

func TestClaimThrottleServiceDefaults(t *testing.T) {
	throttle := NewClaimThrottleService(nil, nil, ClaimThrottleConfig{})
	assert.Equal(t, 10, throttle.config.MaxFailedAttempts)
	assert.Equal(t, 15*time.Minute, throttle.config.Window)
}
