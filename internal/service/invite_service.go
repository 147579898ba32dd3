package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-identity-api/internal/dto"
	"github.com/noah-isme/tutor-identity-api/internal/models"
	"github.com/noah-isme/tutor-identity-api/pkg/database"
	appErrors "github.com/noah-isme/tutor-identity-api/pkg/errors"
)

const (
	inviteTokenBytes       = 16
	inviteTokenRegenerates = 3
	defaultInviteTTL       = 48 * time.Hour
	inviteTokenConstraint  = "student_profiles_invite_token_key"
)

type inviteProfileRepository interface {
	InviteTokenExists(ctx context.Context, exec sqlx.ExtContext, token string) (bool, error)
	SetInviteToken(ctx context.Context, exec sqlx.ExtContext, id string, token *string, expires *time.Time) (bool, error)
	FindByInviteToken(ctx context.Context, exec sqlx.ExtContext, token string, forUpdate bool) (*models.StudentProfile, error)
}

type inviteLedgerReader interface {
	FindByHash(ctx context.Context, exec sqlx.ExtContext, tokenHash string) (*models.ConsumedInvite, error)
}

type inviteTeacherReader interface {
	FindTeacherProfileByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TeacherProfile, error)
}

type inviteClassroomReader interface {
	ListIDsByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]string, error)
}

// InviteConfig governs invitation token issuance.
type InviteConfig struct {
	TokenTTL time.Duration
}

// InviteService issues, revokes and resolves invitation tokens for shadow profiles.
type InviteService struct {
	profiles   inviteProfileRepository
	ledger     inviteLedgerReader
	teachers   inviteTeacherReader
	classrooms inviteClassroomReader
	metrics    *MetricsService
	logger     *zap.Logger
	config     InviteConfig
	now        func() time.Time
	random     io.Reader
}

// NewInviteService wires the token service.
func NewInviteService(
	profiles inviteProfileRepository,
	ledger inviteLedgerReader,
	teachers inviteTeacherReader,
	classrooms inviteClassroomReader,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg InviteConfig,
) *InviteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultInviteTTL
	}
	return &InviteService{
		profiles:   profiles,
		ledger:     ledger,
		teachers:   teachers,
		classrooms: classrooms,
		metrics:    metrics,
		logger:     logger,
		config:     cfg,
		now:        func() time.Time { return time.Now().UTC() },
		random:     rand.Reader,
	}
}

// TokenHash is the ledger key of a token. Plain tokens are never persisted after use.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (s *InviteService) generateToken() (string, error) {
	buf := make([]byte, inviteTokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("read random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *InviteService) uniqueToken(ctx context.Context, exec sqlx.ExtContext) (string, error) {
	for attempt := 0; attempt <= inviteTokenRegenerates; attempt++ {
		token, err := s.generateToken()
		if err != nil {
			return "", err
		}
		exists, err := s.profiles.InviteTokenExists(ctx, exec, token)
		if err != nil {
			return "", err
		}
		if !exists {
			return token, nil
		}
		s.logger.Warn("invite token collision, regenerating", zap.Int("attempt", attempt+1))
	}
	return "", errors.New("could not generate a unique invite token")
}

// Issue assigns a fresh token to an unclaimed profile, replacing any previous one.
func (s *InviteService) Issue(ctx context.Context, exec sqlx.ExtContext, studentProfileID string) (*dto.InviteToken, error) {
	token, err := s.uniqueToken(ctx, exec)
	if err != nil {
		return nil, appErrors.Store(fmt.Errorf("issue invite: %w", err))
	}
	expires := s.now().Add(s.config.TokenTTL)

	updated, err := s.profiles.SetInviteToken(ctx, exec, studentProfileID, &token, &expires)
	if err != nil {
		if database.IsUniqueViolation(err, inviteTokenConstraint) {
			s.logger.Warn("invite token collided on write", zap.String("student_profile_id", studentProfileID))
		}
		return nil, appErrors.Store(err)
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrAlreadyClaimed, "only unclaimed profiles carry an invitation")
	}

	return &dto.InviteToken{StudentProfileID: studentProfileID, Token: token, ExpiresAt: expires}, nil
}

// Revoke clears the token of an unclaimed profile.
func (s *InviteService) Revoke(ctx context.Context, exec sqlx.ExtContext, studentProfileID string) error {
	updated, err := s.profiles.SetInviteToken(ctx, exec, studentProfileID, nil, nil)
	if err != nil {
		return appErrors.Store(err)
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrAlreadyClaimed, "only unclaimed profiles carry an invitation")
	}
	return nil
}

// RecordIssued counts an issued token. Callers invoke it after the issuing transaction commits.
func (s *InviteService) RecordIssued() {
	s.metrics.ObserveInviteIssued()
}

// RecordRevoked counts a revoked token once its transaction has committed.
func (s *InviteService) RecordRevoked() {
	s.metrics.ObserveInviteRevoked()
}

// Resolve returns the profile currently holding token. With forUpdate the row stays
// locked for the caller's transaction. A miss surfaces as sql.ErrNoRows.
func (s *InviteService) Resolve(ctx context.Context, exec sqlx.ExtContext, token string, forUpdate bool) (*models.StudentProfile, error) {
	if token == "" {
		return nil, appErrors.ErrInvalidToken
	}
	return s.profiles.FindByInviteToken(ctx, exec, token, forUpdate)
}

// Consumed reports whether token was already used for a claim.
func (s *InviteService) Consumed(ctx context.Context, exec sqlx.ExtContext, token string) (bool, error) {
	if _, err := s.ledger.FindByHash(ctx, exec, TokenHash(token)); err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Preview describes an invitation for the claim page without consuming it.
func (s *InviteService) Preview(ctx context.Context, token string) (*dto.InvitePreview, error) {
	preview, err := s.preview(ctx, token)
	if err != nil {
		logStoreFailure(ctx, s.logger, "preview invite", err)
		return nil, err
	}
	return preview, nil
}

func (s *InviteService) preview(ctx context.Context, token string) (*dto.InvitePreview, error) {
	profile, err := s.Resolve(ctx, nil, token, false)
	if err != nil {
		if !isNoRows(err) {
			return nil, appErrors.FromError(err)
		}
		consumed, ledgerErr := s.Consumed(ctx, nil, token)
		if ledgerErr != nil {
			return nil, appErrors.Store(ledgerErr)
		}
		if consumed {
			return &dto.InvitePreview{Status: dto.InviteStatusClaimed}, nil
		}
		return nil, appErrors.ErrInvalidToken
	}

	preview := &dto.InvitePreview{
		Status:      dto.InviteStatusValid,
		StudentName: profile.TempFullName(),
		GradeLevel:  profile.GradeLevel,
		HasParent:   profile.ParentName != nil || profile.ParentPhone != nil || profile.ParentEmail != nil,
		ExpiresAt:   profile.InviteTokenExpires,
	}
	if profile.UserID != nil {
		preview.Status = dto.InviteStatusClaimed
	} else if models.InviteExpired(s.now(), profile.InviteTokenExpires) {
		preview.Status = dto.InviteStatusExpired
	}

	if profile.CreatorTeacherID != nil && s.teachers != nil {
		teacher, err := s.teachers.FindTeacherProfileByID(ctx, nil, *profile.CreatorTeacherID)
		switch {
		case err == nil:
			preview.TeacherName = teacher.DisplayName
		case !isNoRows(err):
			return nil, appErrors.Store(err)
		}
	}
	if s.classrooms != nil {
		ids, err := s.classrooms.ListIDsByStudent(ctx, nil, profile.ID)
		if err != nil {
			return nil, appErrors.Store(err)
		}
		preview.HasClassroom = len(ids) > 0
	}
	return preview, nil
}
