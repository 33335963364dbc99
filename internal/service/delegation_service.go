package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-pass-api/internal/models"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
)

type delegationStore interface {
	Replace(ctx context.Context, delegation *models.Delegation) error
	Revoke(ctx context.Context, delegatorID string) error
	FindActiveForDelegator(ctx context.Context, delegatorID string) (*models.Delegation, error)
	ListActiveForProxy(ctx context.Context, proxyID string, at time.Time) ([]models.Delegation, error)
	ListWithConflicts(ctx context.Context) ([]models.DelegationView, error)
	HasApprovedLeaveOverlap(ctx context.Context, staffID string, startsOn, endsOn time.Time) (bool, error)
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// DelegationService manages approval-authority handovers. Setting a new
// delegation replaces the delegator's current one; a proxy with an approved
// leave overlapping the window is flagged as a conflict but the set still
// succeeds.
type DelegationService struct {
	delegations delegationStore
	users       userDirectory
	audit       auditLogger
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewDelegationService constructs the service.
func NewDelegationService(delegations delegationStore, users userDirectory, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *DelegationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelegationService{delegations: delegations, users: users, audit: audit, validator: validate, logger: logger}
}

// SetDelegationRequest describes a delegation window. Dates are inclusive.
type SetDelegationRequest struct {
	ProxyID  string    `json:"proxy_id" validate:"required,uuid"`
	StartsOn time.Time `json:"starts_on" validate:"required"`
	EndsOn   time.Time `json:"ends_on" validate:"required"`
}

// SetDelegationResponse carries the stored delegation plus the advisory
// conflict flag computed at set time.
type SetDelegationResponse struct {
	Delegation *models.Delegation `json:"delegation"`
	InConflict bool               `json:"in_conflict"`
}

// Set installs a delegation for the caller, replacing any active one.
func (s *DelegationService) Set(ctx context.Context, req SetDelegationRequest, claims *models.JWTClaims) (*SetDelegationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid delegation payload")
	}
	if req.EndsOn.Before(req.StartsOn) {
		return nil, appErrors.Clone(appErrors.ErrInvalidWindow, "delegation window ends before it starts")
	}
	if req.ProxyID == claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot delegate to yourself")
	}

	proxy, err := s.users.FindByID(ctx, req.ProxyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proxy user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up proxy")
	}
	if !proxy.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proxy account is inactive")
	}
	if proxy.Role == models.RoleStudent || proxy.Role == models.RoleGateDevice {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proxy must be a staff member")
	}

	delegation := &models.Delegation{
		DelegatorID: claims.UserID,
		ProxyID:     req.ProxyID,
		StartsOn:    req.StartsOn,
		EndsOn:      req.EndsOn,
	}
	if err := s.delegations.Replace(ctx, delegation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set delegation")
	}

	conflict, err := s.delegations.HasApprovedLeaveOverlap(ctx, req.ProxyID, req.StartsOn, req.EndsOn)
	if err != nil {
		s.logger.Warn("conflict check failed after delegation set", zap.Error(err))
		conflict = false
	}
	if conflict {
		s.logger.Warn("delegation set with proxy leave conflict",
			zap.String("delegator_id", claims.UserID),
			zap.String("proxy_id", req.ProxyID))
	}
	s.recordAudit(ctx, claims.UserID, models.AuditActionDelegationSet, delegation.ID)
	return &SetDelegationResponse{Delegation: delegation, InConflict: conflict}, nil
}

// Revoke ends the caller's active delegation.
func (s *DelegationService) Revoke(ctx context.Context, claims *models.JWTClaims) error {
	if err := s.delegations.Revoke(ctx, claims.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "no active delegation to revoke")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke delegation")
	}
	s.recordAudit(ctx, claims.UserID, models.AuditActionDelegationDrop, claims.UserID)
	return nil
}

// Current returns the caller's active delegation, if any.
func (s *DelegationService) Current(ctx context.Context, claims *models.JWTClaims) (*models.Delegation, error) {
	delegation, err := s.delegations.FindActiveForDelegator(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load delegation")
	}
	return delegation, nil
}

// List returns all active delegations with their computed conflict flags.
func (s *DelegationService) List(ctx context.Context) ([]models.DelegationView, error) {
	views, err := s.delegations.ListWithConflicts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list delegations")
	}
	return views, nil
}

func (s *DelegationService) recordAudit(ctx context.Context, actorID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "delegations",
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record delegation audit log", zap.Error(err))
	}
}
