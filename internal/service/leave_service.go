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

type leaveStore interface {
	Create(ctx context.Context, leave *models.Leave) error
	GetByID(ctx context.Context, id string) (*models.Leave, error)
	Review(ctx context.Context, id string, status models.LeaveStatus, reviewerID string) error
	ListForStaff(ctx context.Context, staffID string) ([]models.Leave, error)
}

// LeaveService handles staff leave filing and review. Approved leaves feed
// the delegation conflict computation.
type LeaveService struct {
	leaves    leaveStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLeaveService constructs the service.
func NewLeaveService(leaves leaveStore, validate *validator.Validate, logger *zap.Logger) *LeaveService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaveService{leaves: leaves, validator: validate, logger: logger}
}

// FileLeaveRequest describes a staff absence window.
type FileLeaveRequest struct {
	Kind     models.LeaveKind `json:"kind" validate:"required,oneof=CASUAL MEDICAL ON_DUTY"`
	StartsOn time.Time        `json:"starts_on" validate:"required"`
	EndsOn   time.Time        `json:"ends_on" validate:"required"`
	Reason   string           `json:"reason" validate:"required"`
}

// File creates a pending leave for the caller.
func (s *LeaveService) File(ctx context.Context, req FileLeaveRequest, claims *models.JWTClaims) (*models.Leave, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave payload")
	}
	if req.EndsOn.Before(req.StartsOn) {
		return nil, appErrors.Clone(appErrors.ErrInvalidWindow, "leave window ends before it starts")
	}
	leave := &models.Leave{
		StaffID:  claims.UserID,
		Kind:     req.Kind,
		StartsOn: req.StartsOn,
		EndsOn:   req.EndsOn,
		Reason:   req.Reason,
	}
	if err := s.leaves.Create(ctx, leave); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to file leave")
	}
	return leave, nil
}

// ReviewLeaveRequest carries the review decision.
type ReviewLeaveRequest struct {
	Decision models.Decision `json:"decision" validate:"required,oneof=APPROVE REJECT"`
}

// Review decides a pending leave. A leave already reviewed surfaces as an
// invalid transition.
func (s *LeaveService) Review(ctx context.Context, id string, req ReviewLeaveRequest, claims *models.JWTClaims) (*models.Leave, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave review payload")
	}
	leave, err := s.leaves.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave")
	}
	if leave.StaffID == claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot review your own leave")
	}

	status := models.LeaveStatusApproved
	if req.Decision == models.DecisionReject {
		status = models.LeaveStatusRejected
	}
	if err := s.leaves.Review(ctx, id, status, claims.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "leave is no longer pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review leave")
	}
	return s.leaves.GetByID(ctx, id)
}

// ListForStaff returns the staff member's leaves, newest first.
func (s *LeaveService) ListForStaff(ctx context.Context, staffID string) ([]models.Leave, error) {
	leaves, err := s.leaves.ListForStaff(ctx, staffID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leaves")
	}
	return leaves, nil
}
