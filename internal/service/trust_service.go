package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-pass-api/internal/models"
	"github.com/noah-isme/campus-pass-api/internal/repository"
	"github.com/noah-isme/campus-pass-api/pkg/config"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
)

type trustLedger interface {
	Adjust(ctx context.Context, params repository.AdjustParams) (*models.TrustHistoryEntry, error)
	History(ctx context.Context, studentID string, limit int) ([]models.TrustHistoryEntry, error)
}

// TrustService owns trust-score mutations and the cooldown tally. Every
// change goes through the ledger; there is no path that writes the cached
// score alone.
type TrustService struct {
	repo      trustLedger
	audit     auditLogger
	policy    config.PassPolicyConfig
	validator *validator.Validate
	logger    *zap.Logger
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// NewTrustService constructs the service.
func NewTrustService(repo trustLedger, audit auditLogger, policy config.PassPolicyConfig, validate *validator.Validate, logger *zap.Logger) *TrustService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrustService{repo: repo, audit: audit, policy: policy, validator: validate, logger: logger}
}

// AdjustTrustRequest describes a manual score override.
type AdjustTrustRequest struct {
	Score  int    `json:"score" validate:"min=0,max=100"`
	Reason string `json:"reason" validate:"required"`
}

// Adjust applies a manual trust override for a student.
func (s *TrustService) Adjust(ctx context.Context, studentID string, req AdjustTrustRequest, claims *models.JWTClaims) (*models.TrustHistoryEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trust adjustment payload")
	}
	score := models.ClampTrustScore(req.Score)
	entry, err := s.repo.Adjust(ctx, repository.AdjustParams{
		StudentID: studentID,
		Kind:      models.TrustEventManual,
		Absolute:  &score,
		Reason:    req.Reason,
		ActorID:   claims.UserID,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to adjust trust score")
	}
	s.recordAudit(ctx, claims.UserID, models.AuditActionTrustAdjust, studentID)
	return entry, nil
}

// ApplyViolation applies the configured penalty and bumps the cooldown
// tally. Called by the mobility processor on late or missing returns.
func (s *TrustService) ApplyViolation(ctx context.Context, studentID string, passID *string, reason string) (*models.TrustHistoryEntry, error) {
	entry, err := s.repo.Adjust(ctx, repository.AdjustParams{
		StudentID:    studentID,
		PassID:       passID,
		Kind:         models.TrustEventViolation,
		Delta:        -s.policy.ViolationPenalty,
		BumpCooldown: true,
		Reason:       reason,
		ActorID:      "system",
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply violation")
	}
	s.logger.Info("violation recorded",
		zap.String("student_id", studentID),
		zap.Int("new_score", entry.NewScore),
		zap.String("reason", reason))
	return entry, nil
}

// ResetCooldown zeroes the violation tally. The reset is trust-neutral and
// leaves an audit row in the ledger.
func (s *TrustService) ResetCooldown(ctx context.Context, studentID string, claims *models.JWTClaims) (*models.TrustHistoryEntry, error) {
	entry, err := s.repo.Adjust(ctx, repository.AdjustParams{
		StudentID:     studentID,
		Kind:          models.TrustEventCooldownReset,
		Delta:         0,
		ResetCooldown: true,
		Reason:        "cooldown reset",
		ActorID:       claims.UserID,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset cooldown")
	}
	s.recordAudit(ctx, claims.UserID, models.AuditActionCooldownReset, studentID)
	return entry, nil
}

// History returns the student's trust ledger, newest first.
func (s *TrustService) History(ctx context.Context, studentID string, limit int) ([]models.TrustHistoryEntry, error) {
	entries, err := s.repo.History(ctx, studentID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list trust history")
	}
	return entries, nil
}

func (s *TrustService) recordAudit(ctx context.Context, actorID, action, studentID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "students",
		ResourceID: &studentID,
	}); err != nil {
		s.logger.Warn("failed to record trust audit log", zap.Error(err))
	}
}
