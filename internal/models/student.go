package models

import (
	"strings"
	"time"
)

// StudentProfile is a student identity in one of two phases. A shadow profile
// (IsClaimed false, UserID nil) carries teacher-authored temp fields and an
// invitation token; a claimed profile takes identity from its User.
type StudentProfile struct {
	ID                 string     `db:"id" json:"id"`
	UserID             *string    `db:"user_id" json:"user_id,omitempty"`
	IsClaimed          bool       `db:"is_claimed" json:"is_claimed"`
	TempFirstName      *string    `db:"temp_first_name" json:"temp_first_name,omitempty"`
	TempLastName       *string    `db:"temp_last_name" json:"temp_last_name,omitempty"`
	TempPhone          *string    `db:"temp_phone" json:"temp_phone,omitempty"`
	TempEmail          *string    `db:"temp_email" json:"temp_email,omitempty"`
	TempAvatarKey      *string    `db:"temp_avatar_key" json:"temp_avatar_key,omitempty"`
	StudentNo          *string    `db:"student_no" json:"student_no,omitempty"`
	GradeLevel         *string    `db:"grade_level" json:"grade_level,omitempty"`
	ParentName         *string    `db:"parent_name" json:"parent_name,omitempty"`
	ParentPhone        *string    `db:"parent_phone" json:"parent_phone,omitempty"`
	ParentEmail        *string    `db:"parent_email" json:"parent_email,omitempty"`
	InviteToken        *string    `db:"invite_token" json:"-"`
	InviteTokenExpires *time.Time `db:"invite_token_expires" json:"invite_token_expires,omitempty"`
	CreatorTeacherID   *string    `db:"creator_teacher_id" json:"creator_teacher_id,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// TempFullName joins the placeholder first and last names.
func (p StudentProfile) TempFullName() string {
	parts := make([]string, 0, 2)
	for _, v := range []*string{p.TempFirstName, p.TempLastName} {
		if v != nil && strings.TrimSpace(*v) != "" {
			parts = append(parts, strings.TrimSpace(*v))
		}
	}
	return strings.Join(parts, " ")
}

// IsShadow reports whether the profile is still an unowned placeholder.
func (p StudentProfile) IsShadow() bool {
	return !p.IsClaimed && p.UserID == nil
}

// InviteExpired reports whether an invitation with the given expiry is no longer
// usable at now. A missing expiry is treated as expired.
func InviteExpired(now time.Time, expires *time.Time) bool {
	if expires == nil {
		return true
	}
	return expires.Before(now)
}
