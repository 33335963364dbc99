package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-pass-api/internal/models"
	"github.com/noah-isme/campus-pass-api/pkg/config"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
)

type restrictionStore interface {
	Upsert(ctx context.Context, restriction *models.CohortRestriction) error
	Deactivate(ctx context.Context, id string) error
	FindActiveForCohort(ctx context.Context, departmentID string, academicYear int) (*models.CohortRestriction, error)
	List(ctx context.Context, filter models.RestrictionFilter) ([]models.CohortRestriction, int, error)
}

type studentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	SetHardBlock(ctx context.Context, studentID string, blocked bool) error
}

// RestrictionService aggregates the three restriction layers into a single
// verdict: per-student hard blocks, cohort restrictions and the cooldown
// tally. Cohort lookups are read-mostly and served through the cache; every
// write invalidates the affected cohort keys so a lift is visible on the
// next check.
type RestrictionService struct {
	restrictions restrictionStore
	students     studentStore
	audit        auditLogger
	cache        *CacheService
	policy       config.PassPolicyConfig
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewRestrictionService constructs the service.
func NewRestrictionService(restrictions restrictionStore, students studentStore, audit auditLogger, cache *CacheService, policy config.PassPolicyConfig, validate *validator.Validate, logger *zap.Logger) *RestrictionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RestrictionService{
		restrictions: restrictions,
		students:     students,
		audit:        audit,
		cache:        cache,
		policy:       policy,
		validator:    validate,
		logger:       logger,
	}
}

func cohortCacheKey(departmentID string, academicYear int) string {
	return fmt.Sprintf("restriction:cohort:%s:%d", departmentID, academicYear)
}

// SetCohortRestrictionRequest describes a cohort-wide block.
type SetCohortRestrictionRequest struct {
	DepartmentID string `json:"department_id" validate:"required,uuid"`
	AcademicYear int    `json:"academic_year" validate:"required,min=1,max=6"`
	Reason       string `json:"reason" validate:"required"`
}

// SetCohortRestriction blocks an entire (department, academic year) cohort.
// Re-setting an already restricted cohort updates the reason in place.
func (s *RestrictionService) SetCohortRestriction(ctx context.Context, req SetCohortRestrictionRequest, claims *models.JWTClaims) (*models.CohortRestriction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cohort restriction payload")
	}
	restriction := &models.CohortRestriction{
		DepartmentID: req.DepartmentID,
		AcademicYear: req.AcademicYear,
		Reason:       req.Reason,
		CreatedBy:    claims.UserID,
	}
	if err := s.restrictions.Upsert(ctx, restriction); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set cohort restriction")
	}
	s.invalidateCohort(ctx, req.DepartmentID, req.AcademicYear)
	s.recordAudit(ctx, claims.UserID, models.AuditActionRestrictionSet, restriction.ID)
	s.logger.Info("cohort restriction set",
		zap.String("department_id", req.DepartmentID),
		zap.Int("academic_year", req.AcademicYear))
	return restriction, nil
}

// ClearCohortRestriction lifts a cohort restriction by id.
func (s *RestrictionService) ClearCohortRestriction(ctx context.Context, id string, claims *models.JWTClaims) error {
	if err := s.restrictions.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "active cohort restriction not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear cohort restriction")
	}
	// The deactivated row's cohort is unknown here without a second read, so
	// drop every cohort key rather than risk serving a stale block.
	if s.cache.Enabled() {
		_ = s.cache.Invalidate(ctx, "restriction:cohort:*")
	}
	s.recordAudit(ctx, claims.UserID, models.AuditActionRestrictionSet, id)
	return nil
}

// List returns cohort restrictions matching the filter.
func (s *RestrictionService) List(ctx context.Context, filter models.RestrictionFilter) ([]models.CohortRestriction, int, error) {
	restrictions, total, err := s.restrictions.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cohort restrictions")
	}
	return restrictions, total, nil
}

// SetHardBlock flips a student's individual block flag.
func (s *RestrictionService) SetHardBlock(ctx context.Context, studentID string, blocked bool, claims *models.JWTClaims) error {
	if err := s.students.SetHardBlock(ctx, studentID, blocked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update hard block")
	}
	s.recordAudit(ctx, claims.UserID, models.AuditActionHardBlockChange, studentID)
	s.logger.Info("hard block updated", zap.String("student_id", studentID), zap.Bool("blocked", blocked))
	return nil
}

// CheckStudent evaluates all restriction layers for a student. The verdict
// reports the first blocking layer found: hard block, then cohort, then
// cooldown at threshold.
func (s *RestrictionService) CheckStudent(ctx context.Context, student *models.Student) (*models.RestrictionCheck, error) {
	check := &models.RestrictionCheck{Cooldown: student.Cooldown}

	if student.HardBlocked {
		check.Blocked = true
		check.HardBlocked = true
		return check, nil
	}

	cohort, hit, err := s.cohortRestriction(ctx, student.DepartmentID, student.AcademicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check cohort restriction")
	}
	check.CacheHit = hit
	if cohort != nil {
		check.Blocked = true
		check.Cohort = cohort
		return check, nil
	}

	if student.Cooldown >= s.policy.CooldownThreshold {
		check.Blocked = true
		check.CooldownAtMax = true
	}
	return check, nil
}

// CheckStudentByID loads the student and evaluates the restriction layers.
func (s *RestrictionService) CheckStudentByID(ctx context.Context, studentID string) (*models.RestrictionCheck, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return s.CheckStudent(ctx, student)
}

// cohortVerdict is the cached shape for cohort lookups. Caching the absence
// of a restriction matters as much as its presence.
type cohortVerdict struct {
	Restricted  bool                      `json:"restricted"`
	Restriction *models.CohortRestriction `json:"restriction,omitempty"`
}

func (s *RestrictionService) cohortRestriction(ctx context.Context, departmentID string, academicYear int) (*models.CohortRestriction, bool, error) {
	key := cohortCacheKey(departmentID, academicYear)
	if s.cache.Enabled() {
		var cached cohortVerdict
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			if !cached.Restricted {
				return nil, true, nil
			}
			return cached.Restriction, true, nil
		}
	}

	restriction, err := s.restrictions.FindActiveForCohort(ctx, departmentID, academicYear)
	if err != nil {
		return nil, false, err
	}
	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, key, cohortVerdict{Restricted: restriction != nil, Restriction: restriction}, s.policy.RestrictionTTL)
	}
	return restriction, false, nil
}

func (s *RestrictionService) invalidateCohort(ctx context.Context, departmentID string, academicYear int) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, cohortCacheKey(departmentID, academicYear)); err != nil {
		s.logger.Warn("cohort cache invalidation failed",
			zap.String("department_id", departmentID),
			zap.Int("academic_year", academicYear),
			zap.Error(err))
	}
}

func (s *RestrictionService) recordAudit(ctx context.Context, actorID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "restrictions",
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record restriction audit log", zap.Error(err))
	}
}
