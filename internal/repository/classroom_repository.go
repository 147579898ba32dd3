package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ClassroomRepository maintains student ↔ classroom membership.
type ClassroomRepository struct {
	db *sqlx.DB
}

// NewClassroomRepository constructs the repository.
func NewClassroomRepository(db *sqlx.DB) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

func (r *ClassroomRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// AttachOwned links the student to the listed classrooms that belong to teacherID and
// returns the ids actually attached. Classrooms owned by someone else are skipped.
func (r *ClassroomRepository) AttachOwned(ctx context.Context, exec sqlx.ExtContext, studentID, teacherID string, classroomIDs []string) ([]string, error) {
	if len(classroomIDs) == 0 {
		return nil, nil
	}
	const query = `INSERT INTO student_classrooms (student_id, classroom_id)
SELECT $1, c.id FROM classrooms c WHERE c.id = ANY($2) AND c.teacher_id = $3
ON CONFLICT DO NOTHING
RETURNING classroom_id`
	var attached []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &attached, query, studentID, pq.Array(classroomIDs), teacherID); err != nil {
		return nil, fmt.Errorf("attach classrooms: %w", err)
	}
	return attached, nil
}

// CopyMemberships connects target to every classroom source belongs to, keeping the
// memberships target already has.
func (r *ClassroomRepository) CopyMemberships(ctx context.Context, exec sqlx.ExtContext, sourceID, targetID string) (int64, error) {
	const query = `INSERT INTO student_classrooms (student_id, classroom_id)
SELECT $2, classroom_id FROM student_classrooms WHERE student_id = $1
ON CONFLICT DO NOTHING`
	result, err := r.exec(exec).ExecContext(ctx, query, sourceID, targetID)
	if err != nil {
		return 0, fmt.Errorf("copy classroom memberships: %w", err)
	}
	return result.RowsAffected()
}

// DetachAll removes every classroom membership of the student.
func (r *ClassroomRepository) DetachAll(ctx context.Context, exec sqlx.ExtContext, studentID string) error {
	if _, err := r.exec(exec).ExecContext(ctx, "DELETE FROM student_classrooms WHERE student_id = $1", studentID); err != nil {
		return fmt.Errorf("detach classrooms: %w", err)
	}
	return nil
}

// ListIDsByStudent returns the classroom ids the student belongs to.
func (r *ClassroomRepository) ListIDsByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]string, error) {
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, "SELECT classroom_id FROM student_classrooms WHERE student_id = $1 ORDER BY classroom_id", studentID); err != nil {
		return nil, fmt.Errorf("list student classrooms: %w", err)
	}
	return ids, nil
}
