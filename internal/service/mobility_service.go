package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-pass-api/internal/models"
	"github.com/noah-isme/campus-pass-api/pkg/config"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
	"github.com/noah-isme/campus-pass-api/pkg/jobs"
)

type mobilityStore interface {
	Create(ctx context.Context, event *models.MobilityEvent) error
	ListForPass(ctx context.Context, passID string) ([]models.MobilityEvent, error)
	ListFlagged(ctx context.Context, limit int) ([]models.MobilityEvent, error)
}

type passMobility interface {
	FindGeneratedForStudent(ctx context.Context, studentID string) (*models.PassRequest, error)
	FindActiveForStudent(ctx context.Context, studentID string) (*models.PassRequest, error)
	MarkOut(ctx context.Context, id string, at time.Time) error
	Close(ctx context.Context, id string, returnedAt time.Time, late bool) error
	ListOverdue(ctx context.Context, deadline time.Time) ([]models.PassRequest, error)
	ListLateUnpenalized(ctx context.Context, limit int) ([]models.PassRequest, error)
}

// sweepReconcileLimit bounds how many lost penalties one sweep re-queues.
const sweepReconcileLimit = 100

type violationApplier interface {
	ApplyViolation(ctx context.Context, studentID string, passID *string, reason string) (*models.TrustHistoryEntry, error)
}

type gateRestrictionChecker interface {
	CheckStudentByID(ctx context.Context, studentID string) (*models.RestrictionCheck, error)
}

// violationJob is the payload handed to the background queue when a late
// return is detected.
type violationJob struct {
	StudentID string
	PassID    string
	Reason    string
}

// MobilityService turns raw gate scans into pass lifecycle changes. Exit
// scans re-check the restriction layers and stamp the pass out, entry scans
// close it, the periodic sweep catches students who never came back. Late
// penalties are written with the close; the sweep re-finds any that were
// lost, so a crash between the close and the ledger write cannot silently
// drop one.
type MobilityService struct {
	events       mobilityStore
	passes       passMobility
	restrictions gateRestrictionChecker
	trust        violationApplier
	metrics      *MetricsService
	policy       config.PassPolicyConfig
	queue        *jobs.Queue
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewMobilityService constructs the service. Call StartQueue before serving
// scans so re-found penalties have somewhere to retry.
func NewMobilityService(events mobilityStore, passes passMobility, restrictions gateRestrictionChecker, trust violationApplier, metrics *MetricsService, policy config.PassPolicyConfig, validate *validator.Validate, logger *zap.Logger) *MobilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MobilityService{
		events:       events,
		passes:       passes,
		restrictions: restrictions,
		trust:        trust,
		metrics:      metrics,
		policy:       policy,
		validator:    validate,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
	s.queue = jobs.NewQueue("violations", s.handleViolationJob, jobs.QueueConfig{
		Workers:    policy.SweepWorkers,
		MaxRetries: policy.SweepRetries,
		Logger:     logger,
	})
	return s
}

// StartQueue starts the violation workers.
func (s *MobilityService) StartQueue(ctx context.Context) {
	s.queue.Start(ctx)
}

// StopQueue drains and stops the violation workers.
func (s *MobilityService) StopQueue() {
	s.queue.Stop()
}

// ScanRequest is one gate-device report.
type ScanRequest struct {
	StudentID  string                `json:"student_id" validate:"required,uuid"`
	Action     models.MobilityAction `json:"action" validate:"required,oneof=EXIT ENTRY"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// RecordScan processes a gate scan. An exit needs a generated, unused pass
// and a student clear of hard and cohort blocks; an entry closes the
// student's active pass and applies the late penalty when the declared
// return plus grace has passed. An entry with no active pass is stored
// flagged so wardens can follow up.
func (s *MobilityService) RecordScan(ctx context.Context, req ScanRequest) (*models.MobilityEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scan payload")
	}
	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	switch req.Action {
	case models.MobilityExit:
		return s.recordExit(ctx, req.StudentID, occurredAt)
	case models.MobilityEntry:
		return s.recordEntry(ctx, req.StudentID, occurredAt)
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "unknown scan action")
}

func (s *MobilityService) recordExit(ctx context.Context, studentID string, occurredAt time.Time) (*models.MobilityEvent, error) {
	// A block set after the pass was generated still holds at the gate.
	// Cooldown applies at submission only; an already generated pass is
	// not invalidated by the tally reaching its threshold afterwards.
	check, err := s.restrictions.CheckStudentByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if check.HardBlocked || check.Cohort != nil {
		s.recordScanMetric(models.MobilityExit, "blocked")
		return nil, appErrors.Clone(appErrors.ErrBlocked, blockMessage(check))
	}

	pass, err := s.passes.FindGeneratedForStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.recordScanMetric(models.MobilityExit, "denied")
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no generated pass to exit on")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find exit pass")
	}
	if err := s.passes.MarkOut(ctx, pass.ID, occurredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.recordScanMetric(models.MobilityExit, "stale")
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "pass was used concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stamp exit")
	}
	event := &models.MobilityEvent{
		StudentID:  studentID,
		Action:     models.MobilityExit,
		OccurredAt: occurredAt,
		PassID:     &pass.ID,
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record exit event")
	}
	s.recordScanMetric(models.MobilityExit, "ok")
	return event, nil
}

func (s *MobilityService) recordEntry(ctx context.Context, studentID string, occurredAt time.Time) (*models.MobilityEvent, error) {
	pass, err := s.passes.FindActiveForStudent(ctx, studentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find active pass")
	}

	event := &models.MobilityEvent{
		StudentID:  studentID,
		Action:     models.MobilityEntry,
		OccurredAt: occurredAt,
	}
	if pass == nil {
		// Keep the scan, flag it. The student walked in without an open
		// pass; dropping the event would hide exactly what needs review.
		event.Flagged = true
		if err := s.events.Create(ctx, event); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record entry event")
		}
		s.recordScanMetric(models.MobilityEntry, "unlinked")
		s.logger.Warn("unlinked entry scan", zap.String("student_id", studentID))
		return event, nil
	}

	late := occurredAt.After(pass.ReturnAt.Add(s.policy.ReturnGrace))
	if err := s.passes.Close(ctx, pass.ID, occurredAt, late); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The sweep closed it between our read and this write. The
			// penalty, if due, was applied by whoever won; just keep the
			// scan linked to the pass.
			s.recordScanMetric(models.MobilityEntry, "stale")
		} else {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close pass")
		}
	} else if late {
		s.applyViolation(ctx, studentID, pass.ID, fmt.Sprintf("late return on pass %s", pass.ID))
	}

	event.PassID = &pass.ID
	if err := s.events.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record entry event")
	}
	s.recordScanMetric(models.MobilityEntry, "ok")
	return event, nil
}

// Admission is the gate device's pre-check: may this student exit right now.
// It reads only; the exit scan does the actual stamping.
func (s *MobilityService) Admission(ctx context.Context, studentID string) (*models.AdmissionCheck, error) {
	check := &models.AdmissionCheck{StudentID: studentID}
	restriction, err := s.restrictions.CheckStudentByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if restriction.HardBlocked || restriction.Cohort != nil {
		check.Reason = blockMessage(restriction)
		return check, nil
	}
	pass, err := s.passes.FindGeneratedForStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			check.Reason = "no generated pass"
			return check, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check admission")
	}
	check.Admitted = true
	check.PassID = &pass.ID
	return check, nil
}

// EventsForPass returns the scans realizing a pass, oldest first.
func (s *MobilityService) EventsForPass(ctx context.Context, passID string) ([]models.MobilityEvent, error) {
	events, err := s.events.ListForPass(ctx, passID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pass events")
	}
	return events, nil
}

// ListAnomalies returns flagged scans for review, newest first.
func (s *MobilityService) ListAnomalies(ctx context.Context, limit int) ([]models.MobilityEvent, error) {
	events, err := s.events.ListFlagged(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list flagged events")
	}
	return events, nil
}

// Sweep closes every open pass whose declared return plus grace lies in the
// past and queues a violation for each. The close is status-guarded, so a
// gate scan racing the sweep yields exactly one penalty.
func (s *MobilityService) Sweep(ctx context.Context) (int, error) {
	deadline := s.now().Add(-s.policy.ReturnGrace)
	overdue, err := s.passes.ListOverdue(ctx, deadline)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overdue passes")
	}

	closed := 0
	for _, pass := range overdue {
		if err := s.passes.Close(ctx, pass.ID, s.now(), true); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			s.logger.Error("sweep failed to close pass", zap.String("pass_id", pass.ID), zap.Error(err))
			continue
		}
		closed++
		s.applyViolation(ctx, pass.StudentID, pass.ID, fmt.Sprintf("no return recorded for pass %s", pass.ID))
	}
	if closed > 0 {
		s.logger.Info("overdue sweep finished", zap.Int("closed", closed), zap.Int("candidates", len(overdue)))
	}
	s.reconcileLostPenalties(ctx)
	return closed, nil
}

// reconcileLostPenalties re-finds completed late returns whose penalty never
// reached the trust ledger and hands them to the retry queue. A row stays
// visible to every sweep until its ledger entry exists, so a crash or a
// dropped job delays the penalty rather than losing it.
func (s *MobilityService) reconcileLostPenalties(ctx context.Context) {
	lost, err := s.passes.ListLateUnpenalized(ctx, sweepReconcileLimit)
	if err != nil {
		s.logger.Error("failed to list unpenalized late returns", zap.Error(err))
		return
	}
	for _, pass := range lost {
		s.enqueueViolation(pass.StudentID, pass.ID, fmt.Sprintf("late return on pass %s", pass.ID))
	}
	if len(lost) > 0 {
		s.logger.Warn("re-queued lost late penalties", zap.Int("count", len(lost)))
	}
}

// RunSweeper runs Sweep on the configured interval until the context ends.
func (s *MobilityService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.policy.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("overdue sweep failed", zap.Error(err))
			}
		}
	}
}

// applyViolation writes the penalty for a close this caller just won. A
// failed write is logged and left for the sweep, which re-finds the closed
// pass through its missing ledger entry.
func (s *MobilityService) applyViolation(ctx context.Context, studentID, passID, reason string) {
	id := passID
	if _, err := s.trust.ApplyViolation(ctx, studentID, &id, reason); err != nil {
		s.logger.Error("failed to apply violation, sweep will retry",
			zap.String("pass_id", passID), zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.RecordViolation()
	}
}

func (s *MobilityService) enqueueViolation(studentID, passID, reason string) {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    "late_return",
		Payload: violationJob{StudentID: studentID, PassID: passID, Reason: reason},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Error("failed to enqueue violation", zap.String("pass_id", passID), zap.Error(err))
	}
}

func (s *MobilityService) handleViolationJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(violationJob)
	if !ok {
		return fmt.Errorf("unexpected violation payload %T", job.Payload)
	}
	passID := payload.PassID
	if _, err := s.trust.ApplyViolation(ctx, payload.StudentID, &passID, payload.Reason); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordViolation()
	}
	return nil
}

func (s *MobilityService) recordScanMetric(action models.MobilityAction, result string) {
	if s.metrics != nil {
		s.metrics.RecordGateScan(string(action), result)
	}
}
