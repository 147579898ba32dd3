package models

import "time"

// RelationStatus describes the teacher-side lifecycle of a student link.
type RelationStatus string

const (
	RelationStatusActive   RelationStatus = "ACTIVE"
	RelationStatusArchived RelationStatus = "ARCHIVED"
)

// StudentTeacherRelation links one teacher to one student profile and carries the
// teacher's private display overrides. Unique per (TeacherID, StudentID).
type StudentTeacherRelation struct {
	ID           string         `db:"id" json:"id"`
	TeacherID    string         `db:"teacher_id" json:"teacher_id"`
	StudentID    string         `db:"student_id" json:"student_id"`
	Status       RelationStatus `db:"status" json:"status"`
	IsCreator    bool           `db:"is_creator" json:"is_creator"`
	CustomName   *string        `db:"custom_name" json:"custom_name,omitempty"`
	PrivateNotes *string        `db:"private_notes" json:"private_notes,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// HasCustomName reports whether the teacher has set a non-blank label.
func (r StudentTeacherRelation) HasCustomName() bool {
	return r.CustomName != nil && *r.CustomName != ""
}

// RelationFilter captures roster listing options for a teacher.
type RelationFilter struct {
	Status   RelationStatus
	Search   string
	Page     int
	PageSize int
}

// RosterEntry is a relation joined with the profile and owning user for display.
type RosterEntry struct {
	StudentTeacherRelation
	IsClaimed          bool       `db:"is_claimed" json:"is_claimed"`
	TempFirstName      *string    `db:"temp_first_name" json:"-"`
	TempLastName       *string    `db:"temp_last_name" json:"-"`
	UserFullName       *string    `db:"user_full_name" json:"-"`
	StudentNo          *string    `db:"student_no" json:"student_no,omitempty"`
	GradeLevel         *string    `db:"grade_level" json:"grade_level,omitempty"`
	InviteTokenExpires *time.Time `db:"invite_token_expires" json:"invite_token_expires,omitempty"`
	DisplayName        string     `db:"-" json:"display_name"`
}
