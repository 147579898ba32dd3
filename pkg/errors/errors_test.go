package errors

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesSentinel(t *testing.T) {
	err := Clone(ErrAlreadyClaimed, "token already used")
	assert.True(t, errors.Is(err, ErrAlreadyClaimed))
	assert.False(t, errors.Is(err, ErrInviteExpired))

	wrapped := fmt.Errorf("claim: %w", err)
	assert.True(t, errors.Is(wrapped, ErrAlreadyClaimed))
}

func TestStoreHidesCause(t *testing.T) {
	err := Store(sql.ErrConnDone)
	assert.Equal(t, ErrStoreFailure.Code, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.ErrorIs(t, err, sql.ErrConnDone)

	body, marshalErr := json.Marshal(err)
	require.NoError(t, marshalErr)
	assert.NotContains(t, string(body), "connection")
	assert.Contains(t, string(body), "something went wrong")
}

func TestFromErrorNormalisesUnknown(t *testing.T) {
	assert.Nil(t, FromError(nil))

	known := FromError(ErrRelationNotFound)
	assert.Equal(t, ErrRelationNotFound, known)

	unknown := FromError(errors.New("boom"))
	assert.Equal(t, ErrStoreFailure.Code, unknown.Code)
}
