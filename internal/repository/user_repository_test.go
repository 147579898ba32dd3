package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-identity-api/internal/models"
)

func newUserMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestUserRepositoryFindByIDLocksRow(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := sqlmock.NewRows([]string{"id", "email", "full_name", "phone", "role", "active", "created_at", "updated_at"}).
		AddRow("user-1", "ali@example.com", "Ali Khan", nil, "STUDENT", true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1 AND active = TRUE FOR UPDATE")).
		WithArgs("user-1").
		WillReturnRows(rows)

	user, err := repo.FindByID(context.Background(), nil, "user-1", true)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindTeacherProfileByUserID(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE tp.user_id = $1 AND u.active = TRUE")).
		WithArgs("user-t").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "display_name", "created_at", "updated_at"}).
			AddRow("teacher-1", "user-t", "Ms. Sara", time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tp.user_id = $1 AND u.active = TRUE")).
		WithArgs("user-s").
		WillReturnError(sql.ErrNoRows)

	profile, err := repo.FindTeacherProfileByUserID(context.Background(), nil, "user-t")
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", profile.ID)

	_, err = repo.FindTeacherProfileByUserID(context.Background(), nil, "user-s")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateAuditLog(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	userID := "user-1"
	entry := &models.AuditLog{UserID: &userID, Action: models.AuditActionClaim, Resource: "student_profile"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), nil, entry))
	assert.NotEmpty(t, entry.ID)

	assert.Error(t, repo.CreateAuditLog(context.Background(), nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
