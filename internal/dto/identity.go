package dto

import "time"

// CreateShadowStudentRequest is the teacher-authored payload for a placeholder student.
type CreateShadowStudentRequest struct {
	FirstName    string   `json:"firstName" validate:"required,min=2,max=100"`
	LastName     string   `json:"lastName" validate:"required,min=2,max=100"`
	StudentNo    string   `json:"studentNo" validate:"max=50"`
	GradeLevel   string   `json:"gradeLevel" validate:"max=50"`
	Phone        string   `json:"phone" validate:"max=32"`
	Email        string   `json:"email" validate:"omitempty,email"`
	ParentName   string   `json:"parentName" validate:"max=200"`
	ParentPhone  string   `json:"parentPhone" validate:"max=32"`
	ParentEmail  string   `json:"parentEmail" validate:"omitempty,email"`
	AvatarKey    string   `json:"avatarKey" validate:"max=512"`
	ClassroomIDs []string `json:"classroomIds" validate:"omitempty,dive,uuid"`
}

// ClaimPreferences selects which teacher-authored data survives a claim.
type ClaimPreferences struct {
	UseTeacherGrade      bool `json:"useTeacherGrade"`
	UseTeacherParentInfo bool `json:"useTeacherParentInfo"`
	UseTeacherClassroom  bool `json:"useTeacherClassroom"`
}

// DefaultClaimPreferences keeps every teacher-authored field.
func DefaultClaimPreferences() ClaimPreferences {
	return ClaimPreferences{UseTeacherGrade: true, UseTeacherParentInfo: true, UseTeacherClassroom: true}
}

// ClaimRequest is the claim payload; omitted preferences default to true.
type ClaimRequest struct {
	UseTeacherGrade      *bool `json:"useTeacherGrade"`
	UseTeacherParentInfo *bool `json:"useTeacherParentInfo"`
	UseTeacherClassroom  *bool `json:"useTeacherClassroom"`
}

// Preferences resolves the request into concrete preferences.
func (r ClaimRequest) Preferences() ClaimPreferences {
	prefs := DefaultClaimPreferences()
	if r.UseTeacherGrade != nil {
		prefs.UseTeacherGrade = *r.UseTeacherGrade
	}
	if r.UseTeacherParentInfo != nil {
		prefs.UseTeacherParentInfo = *r.UseTeacherParentInfo
	}
	if r.UseTeacherClassroom != nil {
		prefs.UseTeacherClassroom = *r.UseTeacherClassroom
	}
	return prefs
}

// ClaimResult summarises the outcome of a successful claim.
type ClaimResult struct {
	StudentProfileID string `json:"studentProfileId"`
	Merged           bool   `json:"merged"`
	RelationsMoved   int    `json:"relationsMoved"`
	RelationsMerged  int    `json:"relationsMerged"`
}

// InviteStatus is the claimability of an invitation as seen by the claim page.
type InviteStatus string

const (
	InviteStatusValid   InviteStatus = "VALID"
	InviteStatusExpired InviteStatus = "EXPIRED"
	InviteStatusClaimed InviteStatus = "CLAIMED"
)

// InvitePreview describes an invitation without consuming it.
type InvitePreview struct {
	Status       InviteStatus `json:"status"`
	StudentName  string       `json:"studentName,omitempty"`
	TeacherName  string       `json:"teacherName,omitempty"`
	GradeLevel   *string      `json:"gradeLevel,omitempty"`
	HasParent    bool         `json:"hasParentInfo"`
	HasClassroom bool         `json:"hasClassroom"`
	ExpiresAt    *time.Time   `json:"expiresAt,omitempty"`
}

// InviteToken is returned whenever a token is issued.
type InviteToken struct {
	StudentProfileID string    `json:"studentProfileId"`
	Token            string    `json:"token"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

// ToggleInviteRequest enables or disables the invitation of a shadow student.
type ToggleInviteRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// UpdateRelationRequest edits the teacher-private display overrides.
type UpdateRelationRequest struct {
	CustomName   *string `json:"customName" validate:"omitempty,max=200"`
	PrivateNotes *string `json:"privateNotes" validate:"omitempty,max=4000"`
}

// DeleteOutcome says what a relation delete actually removed.
type DeleteOutcome string

const (
	DeleteOutcomeUnlinked    DeleteOutcome = "UNLINKED"
	DeleteOutcomeHardDeleted DeleteOutcome = "HARD_DELETED"
)

// DeleteRelationResult is returned by the relation delete operation.
type DeleteRelationResult struct {
	StudentID string        `json:"studentId"`
	Outcome   DeleteOutcome `json:"outcome"`
}

// ShadowStudentResult is returned after a shadow student is created.
type ShadowStudentResult struct {
	StudentProfileID string    `json:"studentProfileId"`
	RelationID       string    `json:"relationId"`
	CustomName       string    `json:"customName"`
	Token            string    `json:"token"`
	ExpiresAt        time.Time `json:"expiresAt"`
	ClassroomIDs     []string  `json:"classroomIds"`
}
