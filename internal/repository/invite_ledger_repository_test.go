package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-identity-api/internal/models"
)

func TestInviteLedgerRepositoryRecordAndFind(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewInviteLedgerRepository(db)

	mock.ExpectExec("INSERT INTO consumed_invites").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM consumed_invites WHERE token_hash = $1")).
		WithArgs("hash-1").
		WillReturnRows(sqlmock.NewRows([]string{"token_hash", "student_profile_id", "claimed_by", "claimed_at"}).
			AddRow("hash-1", "sp-1", "user-1", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM consumed_invites WHERE token_hash = $1")).
		WithArgs("hash-2").
		WillReturnError(sql.ErrNoRows)

	entry := &models.ConsumedInvite{TokenHash: "hash-1", StudentProfileID: "sp-1", ClaimedBy: "user-1"}
	require.NoError(t, repo.Record(context.Background(), nil, entry))
	assert.False(t, entry.ClaimedAt.IsZero())

	found, err := repo.FindByHash(context.Background(), nil, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", found.ClaimedBy)

	_, err = repo.FindByHash(context.Background(), nil, "hash-2")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
