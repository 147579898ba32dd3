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
	"github.com/noah-isme/tutor-identity-api/pkg/logger"
)

type shadowProfileWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, profile *models.StudentProfile) error
}

type shadowRelationWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, relation *models.StudentTeacherRelation) error
}

type shadowClassroomWriter interface {
	AttachOwned(ctx context.Context, exec sqlx.ExtContext, studentID, teacherID string, classroomIDs []string) ([]string, error)
}

type teacherDirectory interface {
	FindTeacherProfileByUserID(ctx context.Context, exec sqlx.ExtContext, userID string) (*models.TeacherProfile, error)
	CreateAuditLog(ctx context.Context, exec sqlx.ExtContext, log *models.AuditLog) error
}

type inviteIssuer interface {
	Issue(ctx context.Context, exec sqlx.ExtContext, studentProfileID string) (*dto.InviteToken, error)
	RecordIssued()
}

// ShadowProfileService lets a teacher register a student before the student has an account.
type ShadowProfileService struct {
	profiles   shadowProfileWriter
	relations  shadowRelationWriter
	classrooms shadowClassroomWriter
	users      teacherDirectory
	invites    inviteIssuer
	tx         txProvider
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewShadowProfileService wires the shadow creator.
func NewShadowProfileService(
	profiles shadowProfileWriter,
	relations shadowRelationWriter,
	classrooms shadowClassroomWriter,
	users teacherDirectory,
	invites inviteIssuer,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
) *ShadowProfileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShadowProfileService{
		profiles:   profiles,
		relations:  relations,
		classrooms: classrooms,
		users:      users,
		invites:    invites,
		tx:         tx,
		validator:  validate,
		logger:     logger,
	}
}

func normalizeShadowRequest(req dto.CreateShadowStudentRequest) dto.CreateShadowStudentRequest {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.StudentNo = strings.TrimSpace(req.StudentNo)
	req.GradeLevel = strings.TrimSpace(req.GradeLevel)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.ParentName = strings.TrimSpace(req.ParentName)
	req.ParentPhone = strings.TrimSpace(req.ParentPhone)
	req.ParentEmail = strings.ToLower(strings.TrimSpace(req.ParentEmail))
	req.AvatarKey = strings.TrimSpace(req.AvatarKey)
	return req
}

// CreateShadow creates a placeholder student owned by the calling teacher, links it
// with a creator relation, attaches the teacher's classrooms and issues an invitation.
func (s *ShadowProfileService) CreateShadow(ctx context.Context, teacherUserID string, req dto.CreateShadowStudentRequest) (*dto.ShadowStudentResult, error) {
	req = normalizeShadowRequest(req)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	teacher, err := resolveTeacher(ctx, s.users, teacherUserID)
	if err != nil {
		return nil, err
	}

	profile := &models.StudentProfile{
		IsClaimed:        false,
		TempFirstName:    stringPtr(req.FirstName),
		TempLastName:     stringPtr(req.LastName),
		TempPhone:        optionalString(req.Phone),
		TempEmail:        optionalString(req.Email),
		TempAvatarKey:    optionalString(req.AvatarKey),
		StudentNo:        optionalString(req.StudentNo),
		GradeLevel:       optionalString(req.GradeLevel),
		ParentName:       optionalString(req.ParentName),
		ParentPhone:      optionalString(req.ParentPhone),
		ParentEmail:      optionalString(req.ParentEmail),
		CreatorTeacherID: stringPtr(teacher.ID),
	}
	customName := profile.TempFullName()

	result := &dto.ShadowStudentResult{CustomName: customName, ClassroomIDs: []string{}}
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.profiles.Create(ctx, tx, profile); err != nil {
			return appErrors.Store(err)
		}

		attached, err := s.classrooms.AttachOwned(ctx, tx, profile.ID, teacher.ID, req.ClassroomIDs)
		if err != nil {
			return appErrors.Store(err)
		}
		if len(attached) < len(req.ClassroomIDs) {
			s.logger.Info("ignored classrooms not owned by teacher",
				zap.String("teacher_id", teacher.ID),
				zap.Int("requested", len(req.ClassroomIDs)),
				zap.Int("attached", len(attached)))
		}

		invite, err := s.invites.Issue(ctx, tx, profile.ID)
		if err != nil {
			return err
		}

		relation := &models.StudentTeacherRelation{
			TeacherID:  teacher.ID,
			StudentID:  profile.ID,
			Status:     models.RelationStatusActive,
			IsCreator:  true,
			CustomName: stringPtr(customName),
		}
		if err := s.relations.Create(ctx, tx, relation); err != nil {
			return appErrors.Store(err)
		}

		audit := newAuditLog(teacherUserID, models.AuditActionShadowCreate, "student_profile", profile.ID, nil, map[string]interface{}{
			"teacher_id":    teacher.ID,
			"relation_id":   relation.ID,
			"custom_name":   customName,
			"classroom_ids": attached,
		})
		if err := s.users.CreateAuditLog(ctx, tx, audit); err != nil {
			return appErrors.Store(err)
		}

		result.StudentProfileID = profile.ID
		result.RelationID = relation.ID
		result.Token = invite.Token
		result.ExpiresAt = invite.ExpiresAt
		if len(attached) > 0 {
			result.ClassroomIDs = attached
		}
		return nil
	})
	if err != nil {
		logStoreFailure(ctx, s.logger, "create shadow profile", err)
		return nil, err
	}
	s.invites.RecordIssued()
	return result, nil
}

// resolveTeacher maps an authenticated user onto its teacher profile.
func resolveTeacher(ctx context.Context, users teacherDirectory, userID string) (*models.TeacherProfile, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	teacher, err := users.FindTeacherProfileByUserID(ctx, nil, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "caller has no teacher profile")
		}
		return nil, appErrors.Store(err)
	}
	return teacher, nil
}

// logStoreFailure logs unexpected persistence failures tagged with the request id; domain
// errors are left to callers.
func logStoreFailure(ctx context.Context, l *zap.Logger, op string, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Code != appErrors.ErrStoreFailure.Code {
		return
	}
	logger.WithContext(ctx, l).Error("identity store failure", zap.String("operation", op), zap.Error(err))
}
