package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-pass-api/internal/models"
	"github.com/noah-isme/campus-pass-api/internal/repository"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
)

type passStore interface {
	Create(ctx context.Context, pass *models.PassRequest) error
	GetByID(ctx context.Context, id string) (*models.PassRequest, error)
	List(ctx context.Context, filter models.PassFilter) ([]models.PassRequest, int, error)
	ListPendingForRole(ctx context.Context, statuses []models.PassStatus, departmentID string, mentorID string) ([]models.PassRequest, error)
	Transition(ctx context.Context, params repository.TransitionParams) error
	UpdateEmergency(ctx context.Context, id, reason string, departAt, returnAt time.Time) error
	HasOpenPass(ctx context.Context, studentID string) (bool, error)
}

type restrictionChecker interface {
	CheckStudent(ctx context.Context, student *models.Student) (*models.RestrictionCheck, error)
}

type delegationLookup interface {
	ListActiveForProxy(ctx context.Context, proxyID string, at time.Time) ([]models.Delegation, error)
}

// PassService is the authorization engine for pass requests. It walks each
// request through its residency's approval chain, enforces restriction
// layers at submission time and resolves approver authority, direct or
// delegated, on every decision.
type PassService struct {
	passes       passStore
	students     studentStore
	users        userDirectory
	delegations  delegationLookup
	restrictions restrictionChecker
	audit        auditLogger
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewPassService constructs the service.
func NewPassService(passes passStore, students studentStore, users userDirectory, delegations delegationLookup, restrictions restrictionChecker, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PassService{
		passes:       passes,
		students:     students,
		users:        users,
		delegations:  delegations,
		restrictions: restrictions,
		audit:        audit,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SubmitPassRequest is a student's application for an outing or leave pass.
type SubmitPassRequest struct {
	Kind     models.PassKind `json:"kind" validate:"required,oneof=OUTING LEAVE"`
	Reason   string          `json:"reason" validate:"required"`
	DepartAt time.Time       `json:"depart_at" validate:"required"`
	ReturnAt time.Time       `json:"return_at" validate:"required"`
}

// Submit files a new pass request for the calling student. Every restriction
// layer is checked first; a blocked student never reaches the approval chain.
func (s *PassService) Submit(ctx context.Context, req SubmitPassRequest, claims *models.JWTClaims) (*models.PassRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pass request payload")
	}
	if !req.ReturnAt.After(req.DepartAt) {
		return nil, appErrors.Clone(appErrors.ErrInvalidWindow, "return time must be after departure time")
	}
	if claims.StudentID == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can submit pass requests")
	}

	student, err := s.loadStudent(ctx, *claims.StudentID)
	if err != nil {
		return nil, err
	}
	check, err := s.restrictions.CheckStudent(ctx, student)
	if err != nil {
		return nil, err
	}
	if check.Blocked {
		return nil, appErrors.Clone(appErrors.ErrBlocked, blockMessage(check))
	}

	open, err := s.passes.HasOpenPass(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open passes")
	}
	if open {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "student is outside campus on an open pass")
	}

	pass := &models.PassRequest{
		StudentID: student.ID,
		Kind:      req.Kind,
		Reason:    req.Reason,
		DepartAt:  req.DepartAt,
		ReturnAt:  req.ReturnAt,
		Status:    models.PassStatusPending,
	}
	if err := s.passes.Create(ctx, pass); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create pass request")
	}
	s.logger.Info("pass request submitted",
		zap.String("pass_id", pass.ID),
		zap.String("student_id", student.ID),
		zap.String("kind", string(pass.Kind)))
	return pass, nil
}

func blockMessage(check *models.RestrictionCheck) string {
	switch {
	case check.HardBlocked:
		return "student is individually blocked from requesting passes"
	case check.Cohort != nil:
		return fmt.Sprintf("cohort is restricted: %s", check.Cohort.Reason)
	case check.CooldownAtMax:
		return "violation cooldown threshold reached"
	}
	return "student is blocked from requesting passes"
}

// DecisionRequest carries an approver's verdict on a pending request.
type DecisionRequest struct {
	Decision models.Decision `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Reason   string          `json:"reason"`
}

// Advance applies one approver decision. The underlying update is guarded by
// the state the caller observed, so of two concurrent decisions exactly one
// wins and the loser sees an invalid transition.
func (s *PassService) Advance(ctx context.Context, passID string, req DecisionRequest, claims *models.JWTClaims) (*models.PassRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	if req.Decision == models.DecisionReject && req.Reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection requires a reason")
	}

	pass, student, err := s.loadPassWithStudent(ctx, passID)
	if err != nil {
		return nil, err
	}
	required, ok := models.RequiredApprover(pass.Status, student.Residency)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "pass is not awaiting approval")
	}
	delegated, err := s.resolveAuthority(ctx, required, student, claims)
	if err != nil {
		return nil, err
	}

	action := models.PassActionApprove
	if req.Decision == models.DecisionReject {
		action = models.PassActionReject
	}
	next, ok := models.NextStatus(pass.Status, student.Residency, action)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "decision not valid from the current pass state")
	}

	var rejectReason *string
	if action == models.PassActionReject {
		rejectReason = &req.Reason
	}
	approval := &models.PassApproval{
		ActorID:   claims.UserID,
		Role:      required,
		Decision:  req.Decision,
		Delegated: delegated,
	}
	if req.Reason != "" {
		approval.Reason = &req.Reason
	}
	err = s.passes.Transition(ctx, repository.TransitionParams{
		ID:           passID,
		FromStatus:   pass.Status,
		ToStatus:     next,
		RejectReason: rejectReason,
		Approval:     approval,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.recordDecisionMetric("advance", "stale")
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "pass was decided concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	s.recordDecisionMetric("advance", string(req.Decision))
	s.recordAudit(ctx, claims.UserID, models.AuditActionPassDecision, passID)
	s.logger.Info("pass decision recorded",
		zap.String("pass_id", passID),
		zap.String("actor_id", claims.UserID),
		zap.String("decision", string(req.Decision)),
		zap.Bool("delegated", delegated),
		zap.String("status", string(next)))
	return s.passes.GetByID(ctx, passID)
}

// resolveAuthority verifies the caller may act at the required authority
// level for this student, either directly or through an active delegation.
// Delegated authority is re-validated against the database on every call so
// a revocation takes effect immediately.
func (s *PassService) resolveAuthority(ctx context.Context, required models.UserRole, student *models.Student, claims *models.JWTClaims) (bool, error) {
	if claims.Role == models.RoleAdmin {
		return false, nil
	}
	if s.hasDirectAuthority(required, student, claims.UserID, claims.Role, claims.DepartmentID) {
		return false, nil
	}

	delegations, err := s.delegations.ListActiveForProxy(ctx, claims.UserID, s.now())
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve delegated authority")
	}
	for _, d := range delegations {
		if !d.Covers(s.now()) {
			continue
		}
		delegator, err := s.users.FindByID(ctx, d.DelegatorID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve delegated authority")
		}
		if !delegator.Active {
			continue
		}
		if s.hasDirectAuthority(required, student, delegator.ID, delegator.Role, delegator.DepartmentID) {
			return true, nil
		}
	}
	return false, appErrors.Clone(appErrors.ErrForbidden, "caller lacks authority for this approval step")
}

func (s *PassService) hasDirectAuthority(required models.UserRole, student *models.Student, userID string, role models.UserRole, departmentID *string) bool {
	if role != required {
		return false
	}
	switch required {
	case models.RoleMentor:
		return student.MentorID == userID
	case models.RoleDepartmentHead:
		return departmentID != nil && *departmentID == student.DepartmentID
	case models.RoleWarden:
		return true
	}
	return false
}

// Cancel withdraws the caller's own request while it is still cancellable.
func (s *PassService) Cancel(ctx context.Context, passID string, claims *models.JWTClaims) (*models.PassRequest, error) {
	pass, student, err := s.loadPassWithStudent(ctx, passID)
	if err != nil {
		return nil, err
	}
	if claims.Role != models.RoleAdmin {
		if claims.StudentID == nil || *claims.StudentID != pass.StudentID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requesting student can cancel this pass")
		}
	}
	next, ok := models.NextStatus(pass.Status, student.Residency, models.PassActionCancel)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "pass can no longer be cancelled")
	}
	err = s.passes.Transition(ctx, repository.TransitionParams{
		ID:         passID,
		FromStatus: pass.Status,
		ToStatus:   next,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "pass was decided concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel pass")
	}
	s.recordDecisionMetric("cancel", "ok")
	return s.passes.GetByID(ctx, passID)
}

// EmergencyPassRequest lets a warden issue a pass that skips the chain.
type EmergencyPassRequest struct {
	StudentID string    `json:"student_id" validate:"required,uuid"`
	Reason    string    `json:"reason" validate:"required"`
	DepartAt  time.Time `json:"depart_at" validate:"required"`
	ReturnAt  time.Time `json:"return_at" validate:"required"`
}

// IssueEmergency creates an immediately usable pass. The cooldown threshold
// is deliberately not consulted: the issuing warden's judgement overrides it.
// Hard and cohort blocks still hold even here; an override cannot resurrect
// access for a student who is explicitly blocked.
func (s *PassService) IssueEmergency(ctx context.Context, req EmergencyPassRequest, claims *models.JWTClaims) (*models.PassRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid emergency pass payload")
	}
	if !req.ReturnAt.After(req.DepartAt) {
		return nil, appErrors.Clone(appErrors.ErrInvalidWindow, "return time must be after departure time")
	}
	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	check, err := s.restrictions.CheckStudent(ctx, student)
	if err != nil {
		return nil, err
	}
	if check.HardBlocked {
		return nil, appErrors.Clone(appErrors.ErrBlocked, "student is individually blocked; lift the hard block before issuing")
	}
	if check.Cohort != nil {
		return nil, appErrors.Clone(appErrors.ErrBlocked, "student's cohort is blocked; lift the cohort restriction before issuing")
	}

	issuedBy := claims.UserID
	pass := &models.PassRequest{
		StudentID: req.StudentID,
		Kind:      models.PassKindEmergency,
		Reason:    req.Reason,
		DepartAt:  req.DepartAt,
		ReturnAt:  req.ReturnAt,
		Status:    models.PassStatusEmergency,
		IssuedBy:  &issuedBy,
	}
	if err := s.passes.Create(ctx, pass); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create emergency pass")
	}
	err = s.passes.Transition(ctx, repository.TransitionParams{
		ID:         pass.ID,
		FromStatus: models.PassStatusEmergency,
		ToStatus:   models.PassStatusGenerated,
		Approval: &models.PassApproval{
			ActorID:  claims.UserID,
			Role:     claims.Role,
			Decision: models.DecisionApprove,
		},
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate emergency pass")
	}
	s.recordDecisionMetric("emergency_issue", "ok")
	s.recordAudit(ctx, claims.UserID, models.AuditActionEmergencyIssue, pass.ID)
	s.logger.Info("emergency pass issued",
		zap.String("pass_id", pass.ID),
		zap.String("student_id", req.StudentID),
		zap.String("issued_by", claims.UserID))
	return s.passes.GetByID(ctx, pass.ID)
}

// UpdateEmergencyRequest edits an issued emergency pass.
type UpdateEmergencyRequest struct {
	Reason   string    `json:"reason" validate:"required"`
	DepartAt time.Time `json:"depart_at" validate:"required"`
	ReturnAt time.Time `json:"return_at" validate:"required"`
}

// UpdateEmergency edits the reason and window of an emergency pass that has
// not yet closed.
func (s *PassService) UpdateEmergency(ctx context.Context, passID string, req UpdateEmergencyRequest, claims *models.JWTClaims) (*models.PassRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid emergency update payload")
	}
	if !req.ReturnAt.After(req.DepartAt) {
		return nil, appErrors.Clone(appErrors.ErrInvalidWindow, "return time must be after departure time")
	}
	if err := s.passes.UpdateEmergency(ctx, passID, req.Reason, req.DepartAt, req.ReturnAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "pass is not an editable emergency pass")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update emergency pass")
	}
	s.recordAudit(ctx, claims.UserID, models.AuditActionEmergencyIssue, passID)
	return s.passes.GetByID(ctx, passID)
}

// RevokeEmergency cancels an issued emergency pass. The pass stays revocable
// until it completes; revoking while the student is out leaves their eventual
// return to be recorded as an unlinked gate event.
func (s *PassService) RevokeEmergency(ctx context.Context, passID string, claims *models.JWTClaims) (*models.PassRequest, error) {
	pass, err := s.passes.GetByID(ctx, passID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pass not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pass")
	}
	if pass.Kind != models.PassKindEmergency {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only emergency passes can be revoked")
	}
	if pass.Status != models.PassStatusGenerated {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "emergency pass is no longer revocable")
	}
	err = s.passes.Transition(ctx, repository.TransitionParams{
		ID:         passID,
		FromStatus: pass.Status,
		ToStatus:   models.PassStatusCancelled,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "pass was updated concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke emergency pass")
	}
	s.recordDecisionMetric("emergency_revoke", "ok")
	s.recordAudit(ctx, claims.UserID, models.AuditActionEmergencyIssue, passID)
	return s.passes.GetByID(ctx, passID)
}

// Get returns a pass visible to the caller: the owning student, any staff
// member, or the admin.
func (s *PassService) Get(ctx context.Context, passID string, claims *models.JWTClaims) (*models.PassRequest, error) {
	pass, err := s.passes.GetByID(ctx, passID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pass not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pass")
	}
	if claims.Role == models.RoleStudent {
		if claims.StudentID == nil || *claims.StudentID != pass.StudentID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "pass belongs to another student")
		}
	}
	return pass, nil
}

// List returns pass requests matching the filter. Students are always scoped
// to their own requests.
func (s *PassService) List(ctx context.Context, filter models.PassFilter, claims *models.JWTClaims) ([]models.PassRequest, int, error) {
	if claims.Role == models.RoleStudent {
		if claims.StudentID == nil {
			return nil, 0, appErrors.Clone(appErrors.ErrForbidden, "student binding missing from token")
		}
		filter.StudentID = *claims.StudentID
	}
	passes, total, err := s.passes.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list passes")
	}
	return passes, total, nil
}

// ListPending returns the requests currently awaiting the caller's authority
// level, including requests reachable through active delegations.
func (s *PassService) ListPending(ctx context.Context, claims *models.JWTClaims) ([]models.PassRequest, error) {
	type scope struct {
		statuses     []models.PassStatus
		departmentID string
		mentorID     string
	}
	var scopes []scope

	addRole := func(role models.UserRole, userID string, departmentID *string) {
		sc := scope{}
		switch role {
		case models.RoleMentor:
			sc.statuses = []models.PassStatus{models.PassStatusPending}
			sc.mentorID = userID
		case models.RoleDepartmentHead:
			sc.statuses = []models.PassStatus{models.PassStatusMentorApproved}
			if departmentID != nil {
				sc.departmentID = *departmentID
			}
		case models.RoleWarden:
			sc.statuses = []models.PassStatus{models.PassStatusDeptHeadApproved}
		case models.RoleAdmin:
			sc.statuses = []models.PassStatus{
				models.PassStatusPending,
				models.PassStatusMentorApproved,
				models.PassStatusDeptHeadApproved,
			}
		default:
			return
		}
		scopes = append(scopes, sc)
	}

	addRole(claims.Role, claims.UserID, claims.DepartmentID)
	delegations, err := s.delegations.ListActiveForProxy(ctx, claims.UserID, s.now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve delegations")
	}
	for _, d := range delegations {
		delegator, err := s.users.FindByID(ctx, d.DelegatorID)
		if err != nil {
			continue
		}
		addRole(delegator.Role, delegator.ID, delegator.DepartmentID)
	}

	seen := make(map[string]struct{})
	var out []models.PassRequest
	for _, sc := range scopes {
		passes, err := s.passes.ListPendingForRole(ctx, sc.statuses, sc.departmentID, sc.mentorID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending passes")
		}
		for _, p := range passes {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *PassService) loadStudent(ctx context.Context, studentID string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *PassService) loadPassWithStudent(ctx context.Context, passID string) (*models.PassRequest, *models.Student, error) {
	pass, err := s.passes.GetByID(ctx, passID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "pass not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pass")
	}
	student, err := s.loadStudent(ctx, pass.StudentID)
	if err != nil {
		return nil, nil, err
	}
	return pass, student, nil
}

func (s *PassService) recordDecisionMetric(operation, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordPassDecision(operation, outcome)
	}
}

func (s *PassService) recordAudit(ctx context.Context, actorID, action, passID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "pass_requests",
		ResourceID: &passID,
	}); err != nil {
		s.logger.Warn("failed to record pass audit log", zap.Error(err))
	}
}
