package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-identity-api/internal/models"
)

const studentProfileColumns = `id, user_id, is_claimed, temp_first_name, temp_last_name, temp_phone, temp_email, temp_avatar_key,
student_no, grade_level, parent_name, parent_phone, parent_email, invite_token, invite_token_expires, creator_teacher_id,
created_at, updated_at`

// StudentProfileRepository manages persistence for student profiles, shadow and claimed.
type StudentProfileRepository struct {
	db *sqlx.DB
}

// NewStudentProfileRepository constructs a StudentProfileRepository.
func NewStudentProfileRepository(db *sqlx.DB) *StudentProfileRepository {
	return &StudentProfileRepository{db: db}
}

func (r *StudentProfileRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *StudentProfileRepository) findOne(ctx context.Context, exec sqlx.ExtContext, where string, forUpdate bool, arg interface{}) (*models.StudentProfile, error) {
	query := fmt.Sprintf("SELECT %s FROM student_profiles WHERE %s", studentProfileColumns, where)
	if forUpdate {
		query += " FOR UPDATE"
	}
	var profile models.StudentProfile
	if err := sqlx.GetContext(ctx, r.exec(exec), &profile, query, arg); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindByID fetches a profile by ID.
func (r *StudentProfileRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.StudentProfile, error) {
	return r.findOne(ctx, exec, "id = $1", forUpdate, id)
}

// FindByInviteToken fetches the profile holding token.
func (r *StudentProfileRepository) FindByInviteToken(ctx context.Context, exec sqlx.ExtContext, token string, forUpdate bool) (*models.StudentProfile, error) {
	return r.findOne(ctx, exec, "invite_token = $1", forUpdate, token)
}

// FindByUserID fetches the profile owned by a user.
func (r *StudentProfileRepository) FindByUserID(ctx context.Context, exec sqlx.ExtContext, userID string, forUpdate bool) (*models.StudentProfile, error) {
	return r.findOne(ctx, exec, "user_id = $1", forUpdate, userID)
}

// InviteTokenExists checks whether any profile currently holds token.
func (r *StudentProfileRepository) InviteTokenExists(ctx context.Context, exec sqlx.ExtContext, token string) (bool, error) {
	var exists int
	err := sqlx.GetContext(ctx, r.exec(exec), &exists, "SELECT 1 FROM student_profiles WHERE invite_token = $1 LIMIT 1", token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check invite token: %w", err)
	}
	return true, nil
}

// Create inserts a new student profile.
func (r *StudentProfileRepository) Create(ctx context.Context, exec sqlx.ExtContext, profile *models.StudentProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	const query = `INSERT INTO student_profiles (id, user_id, is_claimed, temp_first_name, temp_last_name, temp_phone, temp_email, temp_avatar_key,
student_no, grade_level, parent_name, parent_phone, parent_email, invite_token, invite_token_expires, creator_teacher_id, created_at, updated_at)
VALUES (:id, :user_id, :is_claimed, :temp_first_name, :temp_last_name, :temp_phone, :temp_email, :temp_avatar_key,
:student_no, :grade_level, :parent_name, :parent_phone, :parent_email, :invite_token, :invite_token_expires, :creator_teacher_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, profile); err != nil {
		return fmt.Errorf("create student profile: %w", err)
	}
	return nil
}

// SetInviteToken overwrites (or clears, when token is nil) the invitation of an
// unclaimed profile. It reports false when no unclaimed profile matched.
func (r *StudentProfileRepository) SetInviteToken(ctx context.Context, exec sqlx.ExtContext, id string, token *string, expires *time.Time) (bool, error) {
	const query = `UPDATE student_profiles SET invite_token = $2, invite_token_expires = $3, updated_at = $4 WHERE id = $1 AND is_claimed = FALSE`
	result, err := r.exec(exec).ExecContext(ctx, query, id, token, expires, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set invite token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set invite token rows: %w", err)
	}
	return affected > 0, nil
}

// ClaimShadowParams describes the conversion of a shadow profile into a claimed one.
type ClaimShadowParams struct {
	ProfileID      string
	UserID         string
	KeepGrade      bool
	KeepParentInfo bool
}

// ClaimShadow binds a shadow profile to its user in a single statement: ownership
// set, token consumed, temp identity cleared and opted-out teacher data nulled.
func (r *StudentProfileRepository) ClaimShadow(ctx context.Context, exec sqlx.ExtContext, params ClaimShadowParams) error {
	query := `UPDATE student_profiles SET user_id = $2, is_claimed = TRUE, invite_token = NULL, invite_token_expires = NULL,
temp_first_name = NULL, temp_last_name = NULL, temp_phone = NULL, temp_email = NULL, temp_avatar_key = NULL, updated_at = $3`
	if !params.KeepGrade {
		query += ", student_no = NULL, grade_level = NULL"
	}
	if !params.KeepParentInfo {
		query += ", parent_name = NULL, parent_phone = NULL, parent_email = NULL"
	}
	query += " WHERE id = $1 AND is_claimed = FALSE AND user_id IS NULL"

	result, err := r.exec(exec).ExecContext(ctx, query, params.ProfileID, params.UserID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("claim shadow profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim shadow profile rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TeacherFieldsUpdate carries teacher-authored values merged onto a claimed profile.
// Nil fields are left untouched.
type TeacherFieldsUpdate struct {
	StudentNo   *string
	GradeLevel  *string
	ParentName  *string
	ParentPhone *string
	ParentEmail *string
}

// Empty reports whether the update would change nothing.
func (u TeacherFieldsUpdate) Empty() bool {
	return u.StudentNo == nil && u.GradeLevel == nil && u.ParentName == nil && u.ParentPhone == nil && u.ParentEmail == nil
}

// ApplyTeacherFields overwrites the non-nil fields of update on profile id.
func (r *StudentProfileRepository) ApplyTeacherFields(ctx context.Context, exec sqlx.ExtContext, id string, update TeacherFieldsUpdate) error {
	if update.Empty() {
		return nil
	}
	const query = `UPDATE student_profiles SET
student_no = COALESCE($2, student_no),
grade_level = COALESCE($3, grade_level),
parent_name = COALESCE($4, parent_name),
parent_phone = COALESCE($5, parent_phone),
parent_email = COALESCE($6, parent_email),
updated_at = $7
WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, update.StudentNo, update.GradeLevel, update.ParentName, update.ParentPhone, update.ParentEmail, time.Now().UTC()); err != nil {
		return fmt.Errorf("apply teacher fields: %w", err)
	}
	return nil
}

// Delete removes a profile; relations and classroom links cascade.
func (r *StudentProfileRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, "DELETE FROM student_profiles WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete student profile: %w", err)
	}
	return nil
}
