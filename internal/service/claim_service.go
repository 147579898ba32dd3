package service

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-identity-api/internal/dto"
	"github.com/noah-isme/tutor-identity-api/internal/models"
	"github.com/noah-isme/tutor-identity-api/internal/repository"
	appErrors "github.com/noah-isme/tutor-identity-api/pkg/errors"
)

type claimUserRepository interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.User, error)
	CreateAuditLog(ctx context.Context, exec sqlx.ExtContext, log *models.AuditLog) error
}

type claimProfileRepository interface {
	FindByUserID(ctx context.Context, exec sqlx.ExtContext, userID string, forUpdate bool) (*models.StudentProfile, error)
	ClaimShadow(ctx context.Context, exec sqlx.ExtContext, params repository.ClaimShadowParams) error
	ApplyTeacherFields(ctx context.Context, exec sqlx.ExtContext, id string, update repository.TeacherFieldsUpdate) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type claimRelationRepository interface {
	ListByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string, forUpdate bool) ([]models.StudentTeacherRelation, error)
	Update(ctx context.Context, exec sqlx.ExtContext, relation *models.StudentTeacherRelation) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type claimClassroomRepository interface {
	CopyMemberships(ctx context.Context, exec sqlx.ExtContext, sourceID, targetID string) (int64, error)
	DetachAll(ctx context.Context, exec sqlx.ExtContext, studentID string) error
}

type claimLedgerWriter interface {
	Record(ctx context.Context, exec sqlx.ExtContext, entry *models.ConsumedInvite) error
}

type inviteResolver interface {
	Resolve(ctx context.Context, exec sqlx.ExtContext, token string, forUpdate bool) (*models.StudentProfile, error)
	Consumed(ctx context.Context, exec sqlx.ExtContext, token string) (bool, error)
}

// ClaimService converts a shadow profile into a user's profile, or merges it into the
// profile the user already owns.
type ClaimService struct {
	users      claimUserRepository
	profiles   claimProfileRepository
	relations  claimRelationRepository
	classrooms claimClassroomRepository
	ledger     claimLedgerWriter
	invites    inviteResolver
	throttle   *ClaimThrottleService
	metrics    *MetricsService
	tx         txProvider
	logger     *zap.Logger
	now        func() time.Time
}

// NewClaimService wires the reconciliation engine.
func NewClaimService(
	users claimUserRepository,
	profiles claimProfileRepository,
	relations claimRelationRepository,
	classrooms claimClassroomRepository,
	ledger claimLedgerWriter,
	invites inviteResolver,
	throttle *ClaimThrottleService,
	metrics *MetricsService,
	tx txProvider,
	logger *zap.Logger,
) *ClaimService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimService{
		users:      users,
		profiles:   profiles,
		relations:  relations,
		classrooms: classrooms,
		ledger:     ledger,
		invites:    invites,
		throttle:   throttle,
		metrics:    metrics,
		tx:         tx,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Claim redeems token for claimantUserID. Everything happens in one transaction: a
// failure leaves the shadow, its token and all relations untouched.
func (s *ClaimService) Claim(ctx context.Context, token, claimantUserID string, prefs dto.ClaimPreferences) (*dto.ClaimResult, error) {
	if claimantUserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.throttle.Check(ctx, claimantUserID); err != nil {
		s.metrics.ObserveClaim(ClaimOutcomeTooManyAttempts)
		return nil, err
	}

	var result *dto.ClaimResult
	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		var err error
		result, err = s.claimInTx(ctx, tx, token, claimantUserID, prefs)
		return err
	})
	s.recordOutcome(ctx, claimantUserID, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ClaimService) recordOutcome(ctx context.Context, userID string, result *dto.ClaimResult, err error) {
	switch {
	case err == nil && result.Merged:
		s.metrics.ObserveClaim(ClaimOutcomeMerged)
		s.throttle.Reset(ctx, userID)
	case err == nil:
		s.metrics.ObserveClaim(ClaimOutcomeClaimed)
		s.throttle.Reset(ctx, userID)
	case errors.Is(err, appErrors.ErrInvalidToken):
		s.metrics.ObserveClaim(ClaimOutcomeInvalidToken)
		s.throttle.RecordFailure(ctx, userID)
	case errors.Is(err, appErrors.ErrInviteExpired):
		s.metrics.ObserveClaim(ClaimOutcomeExpired)
		s.throttle.RecordFailure(ctx, userID)
	case errors.Is(err, appErrors.ErrAlreadyClaimed):
		s.metrics.ObserveClaim(ClaimOutcomeAlreadyClaimed)
	default:
		s.metrics.ObserveClaim(ClaimOutcomeError)
		logStoreFailure(ctx, s.logger, "claim profile", err)
	}
}

func (s *ClaimService) claimInTx(ctx context.Context, tx *sqlx.Tx, token, claimantUserID string, prefs dto.ClaimPreferences) (*dto.ClaimResult, error) {
	user, err := s.users.FindByID(ctx, tx, claimantUserID, true)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "claimant account not found")
		}
		return nil, appErrors.Store(err)
	}

	shadow, err := s.loadShadow(ctx, tx, token)
	if err != nil {
		return nil, err
	}

	existing, err := s.profiles.FindByUserID(ctx, tx, user.ID, true)
	if err != nil && !isNoRows(err) {
		return nil, appErrors.Store(err)
	}

	var result *dto.ClaimResult
	action := models.AuditActionClaim
	if existing == nil {
		result, err = s.claimShadow(ctx, tx, shadow, user.ID, prefs)
	} else {
		action = models.AuditActionMerge
		result, err = s.mergeShadow(ctx, tx, shadow, existing, prefs)
	}
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Record(ctx, tx, &models.ConsumedInvite{
		TokenHash:        TokenHash(token),
		StudentProfileID: result.StudentProfileID,
		ClaimedBy:        user.ID,
		ClaimedAt:        s.now(),
	}); err != nil {
		return nil, appErrors.Store(err)
	}

	audit := newAuditLog(user.ID, action, "student_profile", result.StudentProfileID,
		map[string]interface{}{"shadow_id": shadow.ID},
		map[string]interface{}{
			"merged":           result.Merged,
			"relations_moved":  result.RelationsMoved,
			"relations_merged": result.RelationsMerged,
			"preferences":      prefs,
		})
	if err := s.users.CreateAuditLog(ctx, tx, audit); err != nil {
		return nil, appErrors.Store(err)
	}
	return result, nil
}

// loadShadow resolves and locks the profile behind token and checks it can be claimed.
// AlreadyClaimed wins over expiry.
func (s *ClaimService) loadShadow(ctx context.Context, tx *sqlx.Tx, token string) (*models.StudentProfile, error) {
	shadow, err := s.invites.Resolve(ctx, tx, token, true)
	if err != nil {
		if !isNoRows(err) {
			return nil, appErrors.FromError(err)
		}
		consumed, ledgerErr := s.invites.Consumed(ctx, tx, token)
		if ledgerErr != nil {
			return nil, appErrors.Store(ledgerErr)
		}
		if consumed {
			return nil, appErrors.Clone(appErrors.ErrAlreadyClaimed, "invitation already used")
		}
		return nil, appErrors.ErrInvalidToken
	}
	if shadow.UserID != nil || shadow.IsClaimed {
		return nil, appErrors.ErrAlreadyClaimed
	}
	if models.InviteExpired(s.now(), shadow.InviteTokenExpires) {
		return nil, appErrors.ErrInviteExpired
	}
	return shadow, nil
}

// claimShadow hands the shadow itself to a user without a profile.
func (s *ClaimService) claimShadow(ctx context.Context, tx *sqlx.Tx, shadow *models.StudentProfile, userID string, prefs dto.ClaimPreferences) (*dto.ClaimResult, error) {
	relations, err := s.relations.ListByStudent(ctx, tx, shadow.ID, true)
	if err != nil {
		return nil, appErrors.Store(err)
	}
	if label := shadow.TempFullName(); label != "" {
		for i := range relations {
			if relations[i].HasCustomName() {
				continue
			}
			relations[i].CustomName = stringPtr(label)
			if err := s.relations.Update(ctx, tx, &relations[i]); err != nil {
				return nil, appErrors.Store(err)
			}
		}
	}

	err = s.profiles.ClaimShadow(ctx, tx, repository.ClaimShadowParams{
		ProfileID:      shadow.ID,
		UserID:         userID,
		KeepGrade:      prefs.UseTeacherGrade,
		KeepParentInfo: prefs.UseTeacherParentInfo,
	})
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.ErrAlreadyClaimed
		}
		return nil, appErrors.Store(err)
	}

	if !prefs.UseTeacherClassroom {
		if err := s.classrooms.DetachAll(ctx, tx, shadow.ID); err != nil {
			return nil, appErrors.Store(err)
		}
	}

	return &dto.ClaimResult{StudentProfileID: shadow.ID}, nil
}

// mergeShadow folds the shadow into the profile the user already owns. Opting out of
// teacher data only skips the copy; the existing profile's own values are never cleared.
func (s *ClaimService) mergeShadow(ctx context.Context, tx *sqlx.Tx, shadow, existing *models.StudentProfile, prefs dto.ClaimPreferences) (*dto.ClaimResult, error) {
	shadowRelations, err := s.relations.ListByStudent(ctx, tx, shadow.ID, true)
	if err != nil {
		return nil, appErrors.Store(err)
	}
	existingRelations, err := s.relations.ListByStudent(ctx, tx, existing.ID, true)
	if err != nil {
		return nil, appErrors.Store(err)
	}

	plan := planRelationMerge(shadow, shadowRelations, existingRelations, existing.ID)
	for _, id := range plan.deletes {
		if err := s.relations.Delete(ctx, tx, id); err != nil {
			return nil, appErrors.Store(err)
		}
	}
	for i := range plan.updates {
		if err := s.relations.Update(ctx, tx, &plan.updates[i]); err != nil {
			return nil, appErrors.Store(err)
		}
	}

	var update repository.TeacherFieldsUpdate
	if prefs.UseTeacherGrade {
		update.StudentNo = shadow.StudentNo
		update.GradeLevel = shadow.GradeLevel
	}
	if prefs.UseTeacherParentInfo {
		update.ParentName = shadow.ParentName
		update.ParentPhone = shadow.ParentPhone
		update.ParentEmail = shadow.ParentEmail
	}
	if err := s.profiles.ApplyTeacherFields(ctx, tx, existing.ID, update); err != nil {
		return nil, appErrors.Store(err)
	}

	if prefs.UseTeacherClassroom {
		if _, err := s.classrooms.CopyMemberships(ctx, tx, shadow.ID, existing.ID); err != nil {
			return nil, appErrors.Store(err)
		}
	}

	if err := s.profiles.Delete(ctx, tx, shadow.ID); err != nil {
		return nil, appErrors.Store(err)
	}

	return &dto.ClaimResult{
		StudentProfileID: existing.ID,
		Merged:           true,
		RelationsMoved:   plan.moved,
		RelationsMerged:  plan.merged,
	}, nil
}
