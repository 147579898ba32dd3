package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-identity-api/internal/models"
)

const relationColumns = `id, teacher_id, student_id, status, is_creator, custom_name, private_notes, created_at, updated_at`

// RelationRepository persists teacher ↔ student relations.
type RelationRepository struct {
	db *sqlx.DB
}

// NewRelationRepository constructs the repository.
func NewRelationRepository(db *sqlx.DB) *RelationRepository {
	return &RelationRepository{db: db}
}

func (r *RelationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a relation row.
func (r *RelationRepository) Create(ctx context.Context, exec sqlx.ExtContext, relation *models.StudentTeacherRelation) error {
	if relation.ID == "" {
		relation.ID = uuid.NewString()
	}
	if relation.Status == "" {
		relation.Status = models.RelationStatusActive
	}
	now := time.Now().UTC()
	if relation.CreatedAt.IsZero() {
		relation.CreatedAt = now
	}
	relation.UpdatedAt = now
	const query = `INSERT INTO student_teacher_relations (id, teacher_id, student_id, status, is_creator, custom_name, private_notes, created_at, updated_at)
VALUES (:id, :teacher_id, :student_id, :status, :is_creator, :custom_name, :private_notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, relation); err != nil {
		return fmt.Errorf("create relation: %w", err)
	}
	return nil
}

// FindByPair returns the relation for a teacher/student pair.
func (r *RelationRepository) FindByPair(ctx context.Context, exec sqlx.ExtContext, teacherID, studentID string, forUpdate bool) (*models.StudentTeacherRelation, error) {
	query := fmt.Sprintf("SELECT %s FROM student_teacher_relations WHERE teacher_id = $1 AND student_id = $2", relationColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}
	var relation models.StudentTeacherRelation
	if err := sqlx.GetContext(ctx, r.exec(exec), &relation, query, teacherID, studentID); err != nil {
		return nil, err
	}
	return &relation, nil
}

// ListByStudent returns every relation pointing at a student profile, oldest first.
func (r *RelationRepository) ListByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string, forUpdate bool) ([]models.StudentTeacherRelation, error) {
	query := fmt.Sprintf("SELECT %s FROM student_teacher_relations WHERE student_id = $1 ORDER BY created_at ASC, id ASC", relationColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}
	var relations []models.StudentTeacherRelation
	if err := sqlx.SelectContext(ctx, r.exec(exec), &relations, query, studentID); err != nil {
		return nil, fmt.Errorf("list relations by student: %w", err)
	}
	return relations, nil
}

// Update persists the mutable columns of a relation, including a re-pointed student.
func (r *RelationRepository) Update(ctx context.Context, exec sqlx.ExtContext, relation *models.StudentTeacherRelation) error {
	relation.UpdatedAt = time.Now().UTC()
	const query = `UPDATE student_teacher_relations SET student_id = :student_id, status = :status, is_creator = :is_creator,
custom_name = :custom_name, private_notes = :private_notes, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, relation); err != nil {
		return fmt.Errorf("update relation: %w", err)
	}
	return nil
}

// Delete removes a relation row.
func (r *RelationRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, "DELETE FROM student_teacher_relations WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete relation: %w", err)
	}
	return nil
}

// ListForTeacher returns the teacher's roster joined with profile and user names.
func (r *RelationRepository) ListForTeacher(ctx context.Context, teacherID string, filter models.RelationFilter) ([]models.RosterEntry, int, error) {
	base := `FROM student_teacher_relations r
JOIN student_profiles sp ON sp.id = r.student_id
LEFT JOIN users u ON u.id = sp.user_id`
	args := []interface{}{teacherID}
	conditions := []string{"r.teacher_id = $1"}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		idx := len(args)
		conditions = append(conditions, fmt.Sprintf(`(LOWER(COALESCE(r.custom_name, '')) LIKE $%d
OR LOWER(COALESCE(u.full_name, '')) LIKE $%d
OR LOWER(COALESCE(sp.temp_first_name, '') || ' ' || COALESCE(sp.temp_last_name, '')) LIKE $%d
OR LOWER(COALESCE(sp.student_no, '')) LIKE $%d)`, idx, idx, idx, idx))
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT r.id, r.teacher_id, r.student_id, r.status, r.is_creator, r.custom_name, r.private_notes, r.created_at, r.updated_at,
sp.is_claimed, sp.temp_first_name, sp.temp_last_name, u.full_name AS user_full_name, sp.student_no, sp.grade_level, sp.invite_token_expires
%s ORDER BY r.created_at DESC LIMIT %d OFFSET %d`, base, size, offset)

	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list roster: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count roster: %w", err)
	}
	return entries, total, nil
}
