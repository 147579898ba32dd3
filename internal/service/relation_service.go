package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-identity-api/internal/dto"
	"github.com/noah-isme/tutor-identity-api/internal/models"
	appErrors "github.com/noah-isme/tutor-identity-api/pkg/errors"
)

type relationRepository interface {
	FindByPair(ctx context.Context, exec sqlx.ExtContext, teacherID, studentID string, forUpdate bool) (*models.StudentTeacherRelation, error)
	Update(ctx context.Context, exec sqlx.ExtContext, relation *models.StudentTeacherRelation) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	ListForTeacher(ctx context.Context, teacherID string, filter models.RelationFilter) ([]models.RosterEntry, int, error)
}

type relationProfileRepository interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.StudentProfile, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type inviteManager interface {
	Issue(ctx context.Context, exec sqlx.ExtContext, studentProfileID string) (*dto.InviteToken, error)
	Revoke(ctx context.Context, exec sqlx.ExtContext, studentProfileID string) error
	RecordIssued()
	RecordRevoked()
}

// RelationService manages a teacher's links to students after creation.
type RelationService struct {
	relations relationRepository
	profiles  relationProfileRepository
	users     teacherDirectory
	invites   inviteManager
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRelationService wires the relation lifecycle manager.
func NewRelationService(
	relations relationRepository,
	profiles relationProfileRepository,
	users teacherDirectory,
	invites inviteManager,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
) *RelationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelationService{
		relations: relations,
		profiles:  profiles,
		users:     users,
		invites:   invites,
		tx:        tx,
		validator: validate,
		logger:    logger,
	}
}

type relationScope struct {
	tx       *sqlx.Tx
	teacher  *models.TeacherProfile
	relation *models.StudentTeacherRelation
}

// withRelation resolves the caller's teacher profile, then locks its relation to
// studentID and runs fn in the same transaction.
func (s *RelationService) withRelation(ctx context.Context, op, teacherUserID, studentID string, fn func(scope relationScope) error) error {
	teacher, err := resolveTeacher(ctx, s.users, teacherUserID)
	if err != nil {
		return err
	}
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		relation, err := s.relations.FindByPair(ctx, tx, teacher.ID, studentID, true)
		if err != nil {
			if isNoRows(err) {
				return appErrors.ErrRelationNotFound
			}
			return appErrors.Store(err)
		}
		return fn(relationScope{tx: tx, teacher: teacher, relation: relation})
	})
	if err != nil {
		logStoreFailure(ctx, s.logger, op, err)
	}
	return err
}

func (s *RelationService) audit(ctx context.Context, scope relationScope, actorID, action, resourceID string, oldValues, newValues interface{}) error {
	entry := newAuditLog(actorID, action, "student_teacher_relation", resourceID, oldValues, newValues)
	if err := s.users.CreateAuditLog(ctx, scope.tx, entry); err != nil {
		return appErrors.Store(err)
	}
	return nil
}

func (s *RelationService) setStatus(ctx context.Context, op, action string, status models.RelationStatus, teacherUserID, studentID string) (*models.StudentTeacherRelation, error) {
	var out *models.StudentTeacherRelation
	err := s.withRelation(ctx, op, teacherUserID, studentID, func(scope relationScope) error {
		previous := scope.relation.Status
		scope.relation.Status = status
		if err := s.relations.Update(ctx, scope.tx, scope.relation); err != nil {
			return appErrors.Store(err)
		}
		if err := s.audit(ctx, scope, teacherUserID, action, scope.relation.ID,
			map[string]interface{}{"status": previous},
			map[string]interface{}{"status": status}); err != nil {
			return err
		}
		out = scope.relation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Archive hides a student from the teacher's active roster. Archiving twice succeeds.
func (s *RelationService) Archive(ctx context.Context, teacherUserID, studentID string) (*models.StudentTeacherRelation, error) {
	return s.setStatus(ctx, "archive relation", models.AuditActionRelationArchive, models.RelationStatusArchived, teacherUserID, studentID)
}

// Restore brings an archived student back to the active roster.
func (s *RelationService) Restore(ctx context.Context, teacherUserID, studentID string) (*models.StudentTeacherRelation, error) {
	return s.setStatus(ctx, "restore relation", models.AuditActionRelationRestore, models.RelationStatusActive, teacherUserID, studentID)
}

// Delete unlinks a claimed student, or removes a shadow student entirely.
func (s *RelationService) Delete(ctx context.Context, teacherUserID, studentID string) (*dto.DeleteRelationResult, error) {
	result := &dto.DeleteRelationResult{StudentID: studentID}
	err := s.withRelation(ctx, "delete relation", teacherUserID, studentID, func(scope relationScope) error {
		profile, err := s.profiles.FindByID(ctx, scope.tx, studentID, true)
		if err != nil {
			if isNoRows(err) {
				return appErrors.ErrRelationNotFound
			}
			return appErrors.Store(err)
		}

		if profile.IsClaimed {
			if err := s.relations.Delete(ctx, scope.tx, scope.relation.ID); err != nil {
				return appErrors.Store(err)
			}
			result.Outcome = dto.DeleteOutcomeUnlinked
			return s.audit(ctx, scope, teacherUserID, models.AuditActionRelationUnlink, scope.relation.ID,
				map[string]interface{}{"student_id": studentID, "teacher_id": scope.teacher.ID}, nil)
		}

		if err := s.profiles.Delete(ctx, scope.tx, profile.ID); err != nil {
			return appErrors.Store(err)
		}
		result.Outcome = dto.DeleteOutcomeHardDeleted
		return s.audit(ctx, scope, teacherUserID, models.AuditActionShadowDelete, profile.ID,
			map[string]interface{}{"temp_name": profile.TempFullName(), "teacher_id": scope.teacher.ID}, nil)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RelationService) lockShadow(ctx context.Context, scope relationScope, studentID string) (*models.StudentProfile, error) {
	profile, err := s.profiles.FindByID(ctx, scope.tx, studentID, true)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.ErrRelationNotFound
		}
		return nil, appErrors.Store(err)
	}
	if profile.IsClaimed {
		return nil, appErrors.Clone(appErrors.ErrAlreadyClaimed, "claimed students have no invitation")
	}
	return profile, nil
}

// RegenerateToken replaces a shadow student's invitation with a fresh one.
func (s *RelationService) RegenerateToken(ctx context.Context, teacherUserID, studentID string) (*dto.InviteToken, error) {
	var invite *dto.InviteToken
	err := s.withRelation(ctx, "regenerate invite", teacherUserID, studentID, func(scope relationScope) error {
		profile, err := s.lockShadow(ctx, scope, studentID)
		if err != nil {
			return err
		}
		invite, err = s.invites.Issue(ctx, scope.tx, profile.ID)
		if err != nil {
			return err
		}
		return s.audit(ctx, scope, teacherUserID, models.AuditActionInviteRegenerate, profile.ID, nil,
			map[string]interface{}{"expires_at": invite.ExpiresAt})
	})
	if err != nil {
		return nil, err
	}
	s.invites.RecordIssued()
	return invite, nil
}

// ToggleInvite enables (fresh token) or disables (token cleared) a shadow's invitation.
// Disabling returns a nil token.
func (s *RelationService) ToggleInvite(ctx context.Context, teacherUserID, studentID string, enable bool) (*dto.InviteToken, error) {
	if enable {
		return s.RegenerateToken(ctx, teacherUserID, studentID)
	}
	err := s.withRelation(ctx, "revoke invite", teacherUserID, studentID, func(scope relationScope) error {
		profile, err := s.lockShadow(ctx, scope, studentID)
		if err != nil {
			return err
		}
		if err := s.invites.Revoke(ctx, scope.tx, profile.ID); err != nil {
			return err
		}
		return s.audit(ctx, scope, teacherUserID, models.AuditActionInviteRevoke, profile.ID, nil, nil)
	})
	if err != nil {
		return nil, err
	}
	s.invites.RecordRevoked()
	return nil, nil
}

// UpdateLabel edits the teacher-private name and notes. Omitted fields are kept; blank
// values clear them.
func (s *RelationService) UpdateLabel(ctx context.Context, teacherUserID, studentID string, req dto.UpdateRelationRequest) (*models.StudentTeacherRelation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid relation payload")
	}
	if req.CustomName == nil && req.PrivateNotes == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}

	var out *models.StudentTeacherRelation
	err := s.withRelation(ctx, "update relation", teacherUserID, studentID, func(scope relationScope) error {
		before := *scope.relation
		if req.CustomName != nil {
			scope.relation.CustomName = optionalString(*req.CustomName)
		}
		if req.PrivateNotes != nil {
			scope.relation.PrivateNotes = optionalString(*req.PrivateNotes)
		}
		if err := s.relations.Update(ctx, scope.tx, scope.relation); err != nil {
			return appErrors.Store(err)
		}
		if err := s.audit(ctx, scope, teacherUserID, models.AuditActionRelationUpdate, scope.relation.ID,
			map[string]interface{}{"custom_name": before.CustomName},
			map[string]interface{}{"custom_name": scope.relation.CustomName}); err != nil {
			return err
		}
		out = scope.relation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns the caller's roster with display names resolved.
func (s *RelationService) List(ctx context.Context, teacherUserID string, filter models.RelationFilter) ([]models.RosterEntry, *models.Pagination, error) {
	teacher, err := resolveTeacher(ctx, s.users, teacherUserID)
	if err != nil {
		return nil, nil, err
	}
	filter.Search = strings.TrimSpace(filter.Search)

	entries, total, err := s.relations.ListForTeacher(ctx, teacher.ID, filter)
	if err != nil {
		storeErr := appErrors.Store(err)
		logStoreFailure(ctx, s.logger, "list roster", storeErr)
		return nil, nil, storeErr
	}
	for i := range entries {
		entries[i].DisplayName = rosterDisplayName(entries[i])
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// rosterDisplayName prefers the teacher's label, then the account name, then the
// placeholder name.
func rosterDisplayName(entry models.RosterEntry) string {
	if entry.HasCustomName() {
		return *entry.CustomName
	}
	if entry.UserFullName != nil && strings.TrimSpace(*entry.UserFullName) != "" {
		return strings.TrimSpace(*entry.UserFullName)
	}
	placeholder := models.StudentProfile{TempFirstName: entry.TempFirstName, TempLastName: entry.TempLastName}
	return placeholder.TempFullName()
}
