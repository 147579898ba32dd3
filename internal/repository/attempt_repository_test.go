package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptRepositoryWithoutClientIsNoop(t *testing.T) {
	repo := NewAttemptRepository(nil)
	ctx := context.Background()

	n, err := repo.Increment(ctx, "user-1", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.Count(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, repo.Reset(ctx, "user-1"))
}

func TestClaimAttemptKey(t *testing.T) {
	assert.Equal(t, "identity:claim_failures:user-1", claimAttemptKey("user-1"))
}
