package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-identity-api/internal/models"
)

// UserRepository reads user and teacher identities. Account management lives in
// the authentication service; this repository never writes users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new repository instance.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns an active user. With forUpdate the row stays locked until the
// surrounding transaction ends.
func (r *UserRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.User, error) {
	query := `SELECT id, email, full_name, phone, role, active, created_at, updated_at FROM users WHERE id = $1 AND active = TRUE`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var user models.User
	if err := sqlx.GetContext(ctx, r.exec(exec), &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindTeacherProfileByUserID returns the teacher profile owned by a user.
func (r *UserRepository) FindTeacherProfileByUserID(ctx context.Context, exec sqlx.ExtContext, userID string) (*models.TeacherProfile, error) {
	const query = `SELECT tp.id, tp.user_id, tp.display_name, tp.created_at, tp.updated_at
FROM teacher_profiles tp
JOIN users u ON u.id = tp.user_id
WHERE tp.user_id = $1 AND u.active = TRUE`
	var profile models.TeacherProfile
	if err := sqlx.GetContext(ctx, r.exec(exec), &profile, query, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindTeacherProfileByID returns a teacher profile by its own identifier.
func (r *UserRepository) FindTeacherProfileByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TeacherProfile, error) {
	const query = `SELECT id, user_id, display_name, created_at, updated_at FROM teacher_profiles WHERE id = $1`
	var profile models.TeacherProfile
	if err := sqlx.GetContext(ctx, r.exec(exec), &profile, query, id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// CreateAuditLog persists an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, exec sqlx.ExtContext, log *models.AuditLog) error {
	if log == nil {
		return fmt.Errorf("audit log is nil")
	}
	return insertAuditLog(ctx, r.exec(exec), log)
}
