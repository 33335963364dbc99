package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-pass-api/internal/models"
	"github.com/noah-isme/campus-pass-api/pkg/config"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
)

type stubMobilityStore struct {
	events    []*models.MobilityEvent
	createErr error
}

func (s *stubMobilityStore) Create(ctx context.Context, event *models.MobilityEvent) error {
	if s.createErr != nil {
		return s.createErr
	}
	if event.ID == "" {
		event.ID = "m1"
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubMobilityStore) ListForPass(ctx context.Context, passID string) ([]models.MobilityEvent, error) {
	var out []models.MobilityEvent
	for _, e := range s.events {
		if e.PassID != nil && *e.PassID == passID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *stubMobilityStore) ListFlagged(ctx context.Context, limit int) ([]models.MobilityEvent, error) {
	var out []models.MobilityEvent
	for _, e := range s.events {
		if e.Flagged {
			out = append(out, *e)
		}
	}
	return out, nil
}

type stubPassMobility struct {
	generated   *models.PassRequest
	active      *models.PassRequest
	overdue     []models.PassRequest
	unpenalized []models.PassRequest
	markedOut   []string
	closed      []string
	closedLate  map[string]bool
	markOutErr  error
	closeErr    error
}

func (s *stubPassMobility) FindGeneratedForStudent(ctx context.Context, studentID string) (*models.PassRequest, error) {
	if s.generated == nil || s.generated.StudentID != studentID {
		return nil, sql.ErrNoRows
	}
	return s.generated, nil
}

func (s *stubPassMobility) FindActiveForStudent(ctx context.Context, studentID string) (*models.PassRequest, error) {
	if s.active == nil || s.active.StudentID != studentID {
		return nil, sql.ErrNoRows
	}
	return s.active, nil
}

func (s *stubPassMobility) MarkOut(ctx context.Context, id string, at time.Time) error {
	if s.markOutErr != nil {
		return s.markOutErr
	}
	s.markedOut = append(s.markedOut, id)
	return nil
}

func (s *stubPassMobility) Close(ctx context.Context, id string, returnedAt time.Time, late bool) error {
	if s.closeErr != nil {
		return s.closeErr
	}
	if s.closedLate == nil {
		s.closedLate = make(map[string]bool)
	}
	s.closed = append(s.closed, id)
	s.closedLate[id] = late
	return nil
}

func (s *stubPassMobility) ListOverdue(ctx context.Context, deadline time.Time) ([]models.PassRequest, error) {
	return s.overdue, nil
}

func (s *stubPassMobility) ListLateUnpenalized(ctx context.Context, limit int) ([]models.PassRequest, error) {
	out := s.unpenalized
	s.unpenalized = nil
	return out, nil
}

type stubViolationApplier struct {
	applied  chan string
	applyErr error
}

func (s *stubViolationApplier) ApplyViolation(ctx context.Context, studentID string, passID *string, reason string) (*models.TrustHistoryEntry, error) {
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	if s.applied != nil {
		s.applied <- studentID
	}
	return &models.TrustHistoryEntry{StudentID: studentID}, nil
}

type stubGateRestrictions struct {
	check *models.RestrictionCheck
	err   error
}

func (s *stubGateRestrictions) CheckStudentByID(ctx context.Context, studentID string) (*models.RestrictionCheck, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.check != nil {
		return s.check, nil
	}
	return &models.RestrictionCheck{}, nil
}

func mobilityPolicy() config.PassPolicyConfig {
	return config.PassPolicyConfig{
		ViolationPenalty:  10,
		CooldownThreshold: 3,
		ReturnGrace:       30 * time.Minute,
		SweepInterval:     time.Minute,
		SweepWorkers:      1,
		SweepRetries:      1,
	}
}

type mobilityFixture struct {
	svc          *MobilityService
	events       *stubMobilityStore
	passes       *stubPassMobility
	restrictions *stubGateRestrictions
	trust        *stubViolationApplier
}

func newMobilityFixture() *mobilityFixture {
	f := &mobilityFixture{
		events:       &stubMobilityStore{},
		passes:       &stubPassMobility{},
		restrictions: &stubGateRestrictions{},
		trust:        &stubViolationApplier{applied: make(chan string, 8)},
	}
	f.svc = NewMobilityService(f.events, f.passes, f.restrictions, f.trust, nil, mobilityPolicy(), nil, nil)
	return f
}

func awaitViolation(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case studentID := <-ch:
		return studentID
	case <-time.After(2 * time.Second):
		t.Fatal("expected a violation to be applied")
		return ""
	}
}

func generatedPass(studentID string, returnAt time.Time) *models.PassRequest {
	return &models.PassRequest{
		ID:        "p1",
		StudentID: studentID,
		Kind:      models.PassKindOuting,
		Status:    models.PassStatusGenerated,
		DepartAt:  returnAt.Add(-4 * time.Hour),
		ReturnAt:  returnAt,
	}
}

func TestRecordExitWithoutGeneratedPass(t *testing.T) {
	f := newMobilityFixture()

	_, err := f.svc.RecordScan(context.Background(), ScanRequest{StudentID: testStudentID, Action: models.MobilityExit})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	assert.Empty(t, f.events.events)
}

func TestRecordExitStampsPass(t *testing.T) {
	f := newMobilityFixture()
	f.passes.generated = generatedPass(testStudentID, time.Now().Add(4*time.Hour))

	event, err := f.svc.RecordScan(context.Background(), ScanRequest{StudentID: testStudentID, Action: models.MobilityExit})
	require.NoError(t, err)
	assert.Equal(t, models.MobilityExit, event.Action)
	require.NotNil(t, event.PassID)
	assert.Equal(t, "p1", *event.PassID)
	assert.Equal(t, []string{"p1"}, f.passes.markedOut)
}

func TestRecordExitConcurrentUse(t *testing.T) {
	f := newMobilityFixture()
	f.passes.generated = generatedPass(testStudentID, time.Now().Add(4*time.Hour))
	f.passes.markOutErr = sql.ErrNoRows

	_, err := f.svc.RecordScan(context.Background(), ScanRequest{StudentID: testStudentID, Action: models.MobilityExit})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestRecordEntryOnTimeClosesPass(t *testing.T) {
	f := newMobilityFixture()
	f.passes.active = generatedPass(testStudentID, time.Now().Add(time.Hour))

	event, err := f.svc.RecordScan(context.Background(), ScanRequest{StudentID: testStudentID, Action: models.MobilityEntry})
	require.NoError(t, err)
	assert.False(t, event.Flagged)
	require.NotNil(t, event.PassID)
	assert.Equal(t, []string{"p1"}, f.passes.closed)
	assert.False(t, f.passes.closedLate["p1"])
	select {
	case <-f.trust.applied:
		t.Fatal("on-time return must not apply a violation")
	default:
	}
}

func TestRecordEntryLateAppliesViolation(t *testing.T) {
	f := newMobilityFixture()
	returnAt := time.Now().Add(-2 * time.Hour)
	f.passes.active = generatedPass(testStudentID, returnAt)

	event, err := f.svc.RecordScan(context.Background(), ScanRequest{StudentID: testStudentID, Action: models.MobilityEntry})
	require.NoError(t, err)
	require.NotNil(t, event.PassID)
	assert.True(t, f.passes.closedLate["p1"])
	// The penalty is written with the close, not queued behind it.
	select {
	case studentID := <-f.trust.applied:
		assert.Equal(t, testStudentID, studentID)
	default:
		t.Fatal("late return must apply the violation before responding")
	}
}

func TestRecordEntryLateLedgerFailureLeavesScanIntact(t *testing.T) {
	f := newMobilityFixture()
	returnAt := time.Now().Add(-2 * time.Hour)
	f.passes.active = generatedPass(testStudentID, returnAt)
	f.trust.applyErr = assert.AnError

	event, err := f.svc.RecordScan(context.Background(), ScanRequest{StudentID: testStudentID, Action: models.MobilityEntry})
	require.NoError(t, err)
	require.NotNil(t, event.PassID)
	assert.True(t, f.passes.closedLate["p1"])
}

func TestRecordEntryWithinGraceNotLate(t *testing.T) {
	f := newMobilityFixture()
	returnAt := time.Now().Add(-10 * time.Minute)
	f.passes.active = generatedPass(testStudentID, returnAt)

	_, err := f.svc.RecordScan(context.Background(), ScanRequest{StudentID: testStudentID, Action: models.MobilityEntry})
	require.NoError(t, err)
	assert.False(t, f.passes.closedLate["p1"])
}

func TestRecordEntryUnlinkedScanFlagged(t *testing.T) {
	f := newMobilityFixture()

	event, err := f.svc.RecordScan(context.Background(), ScanRequest{StudentID: testStudentID, Action: models.MobilityEntry})
	require.NoError(t, err)
	assert.True(t, event.Flagged)
	assert.Nil(t, event.PassID)

	flagged, err := f.svc.ListAnomalies(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, testStudentID, flagged[0].StudentID)
}

func TestRecordEntryRacingSweepSkipsSecondPenalty(t *testing.T) {
	f := newMobilityFixture()
	returnAt := time.Now().Add(-2 * time.Hour)
	f.passes.active = generatedPass(testStudentID, returnAt)
	f.passes.closeErr = sql.ErrNoRows

	event, err := f.svc.RecordScan(context.Background(), ScanRequest{StudentID: testStudentID, Action: models.MobilityEntry})
	require.NoError(t, err)
	require.NotNil(t, event.PassID)
	select {
	case <-f.trust.applied:
		t.Fatal("losing a close race must not apply a second violation")
	default:
	}
}

func TestAdmission(t *testing.T) {
	f := newMobilityFixture()

	check, err := f.svc.Admission(context.Background(), testStudentID)
	require.NoError(t, err)
	assert.False(t, check.Admitted)
	assert.Equal(t, "no generated pass", check.Reason)

	f.passes.generated = generatedPass(testStudentID, time.Now().Add(4*time.Hour))
	check, err = f.svc.Admission(context.Background(), testStudentID)
	require.NoError(t, err)
	assert.True(t, check.Admitted)
	require.NotNil(t, check.PassID)
	assert.Equal(t, "p1", *check.PassID)
}

func TestSweepClosesOverduePasses(t *testing.T) {
	f := newMobilityFixture()
	out := time.Now().Add(-6 * time.Hour)
	f.passes.overdue = []models.PassRequest{
		{ID: "p1", StudentID: testStudentID, Status: models.PassStatusGenerated, ReturnAt: time.Now().Add(-2 * time.Hour), OutAt: &out},
	}

	closed, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.True(t, f.passes.closedLate["p1"])
	assert.Equal(t, testStudentID, awaitViolation(t, f.trust.applied))
}

func TestSweepToleratesConcurrentEntryScan(t *testing.T) {
	f := newMobilityFixture()
	out := time.Now().Add(-6 * time.Hour)
	f.passes.overdue = []models.PassRequest{
		{ID: "p1", StudentID: testStudentID, Status: models.PassStatusGenerated, ReturnAt: time.Now().Add(-2 * time.Hour), OutAt: &out},
	}
	f.passes.closeErr = sql.ErrNoRows

	closed, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
}

func TestRecordExitHardBlockedDenied(t *testing.T) {
	f := newMobilityFixture()
	f.passes.generated = generatedPass(testStudentID, time.Now().Add(4*time.Hour))
	f.restrictions.check = &models.RestrictionCheck{Blocked: true, HardBlocked: true}

	_, err := f.svc.RecordScan(context.Background(), ScanRequest{StudentID: testStudentID, Action: models.MobilityExit})
	assert.True(t, appErrors.Is(err, appErrors.ErrBlocked))
	assert.Empty(t, f.passes.markedOut)
	assert.Empty(t, f.events.events)
}

func TestRecordExitCohortBlockedDenied(t *testing.T) {
	f := newMobilityFixture()
	f.passes.generated = generatedPass(testStudentID, time.Now().Add(4*time.Hour))
	f.restrictions.check = &models.RestrictionCheck{
		Blocked: true,
		Cohort:  &models.CohortRestriction{Reason: "exam week"},
	}

	_, err := f.svc.RecordScan(context.Background(), ScanRequest{StudentID: testStudentID, Action: models.MobilityExit})
	assert.True(t, appErrors.Is(err, appErrors.ErrBlocked))
	assert.Empty(t, f.passes.markedOut)
}

// Cooldown applies when a request is submitted; a pass that was generated
// before the tally maxed out is still usable at the gate.
func TestRecordExitCooldownDoesNotBlockGate(t *testing.T) {
	f := newMobilityFixture()
	f.passes.generated = generatedPass(testStudentID, time.Now().Add(4*time.Hour))
	f.restrictions.check = &models.RestrictionCheck{Blocked: true, CooldownAtMax: true, Cooldown: 3}

	event, err := f.svc.RecordScan(context.Background(), ScanRequest{StudentID: testStudentID, Action: models.MobilityExit})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, f.passes.markedOut)
	require.NotNil(t, event.PassID)
}

// A blocked student who is already outside must still be able to scan back
// in; only the exit direction is gated.
func TestRecordEntryAllowedWhileBlocked(t *testing.T) {
	f := newMobilityFixture()
	f.passes.active = generatedPass(testStudentID, time.Now().Add(time.Hour))
	f.restrictions.check = &models.RestrictionCheck{Blocked: true, HardBlocked: true}

	event, err := f.svc.RecordScan(context.Background(), ScanRequest{StudentID: testStudentID, Action: models.MobilityEntry})
	require.NoError(t, err)
	require.NotNil(t, event.PassID)
	assert.Equal(t, []string{"p1"}, f.passes.closed)
}

func TestAdmissionBlockedStudent(t *testing.T) {
	f := newMobilityFixture()
	f.passes.generated = generatedPass(testStudentID, time.Now().Add(4*time.Hour))
	f.restrictions.check = &models.RestrictionCheck{Blocked: true, HardBlocked: true}

	check, err := f.svc.Admission(context.Background(), testStudentID)
	require.NoError(t, err)
	assert.False(t, check.Admitted)
	assert.Contains(t, check.Reason, "blocked")
	assert.Nil(t, check.PassID)
}

func TestSweepRequeuesLostPenalties(t *testing.T) {
	f := newMobilityFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.StartQueue(ctx)
	defer f.svc.StopQueue()

	f.passes.unpenalized = []models.PassRequest{
		{ID: "p9", StudentID: testStudentID, Status: models.PassStatusCompleted, LateReturn: true},
	}

	closed, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
	assert.Equal(t, testStudentID, awaitViolation(t, f.trust.applied))
}

func TestScanRequiresKnownAction(t *testing.T) {
	f := newMobilityFixture()

	_, err := f.svc.RecordScan(context.Background(), ScanRequest{StudentID: testStudentID, Action: "LOITER"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
