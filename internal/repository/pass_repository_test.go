package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-pass-api/internal/models"
)

func passRows(now time.Time, status models.PassStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "kind", "reason", "depart_at", "return_at", "status", "reject_reason", "issued_by", "out_at", "returned_at", "late_return", "created_at", "updated_at"}).
		AddRow("p1", "st1", string(models.PassKindOuting), "library run", now, now.Add(4*time.Hour), string(status), nil, nil, nil, nil, false, now, now)
}

func TestCreatePass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPassRepository(db)

	mock.ExpectExec("INSERT INTO pass_requests").WillReturnResult(sqlmock.NewResult(1, 1))

	pass := &models.PassRequest{StudentID: "st1", Kind: models.PassKindOuting, Reason: "library run", DepartAt: time.Now(), ReturnAt: time.Now().Add(4 * time.Hour), Status: models.PassStatusPending}
	err := repo.Create(context.Background(), pass)
	require.NoError(t, err)
	assert.NotEmpty(t, pass.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRecordsApproval(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPassRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE pass_requests SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO pass_approvals").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Transition(context.Background(), TransitionParams{
		ID:         "p1",
		FromStatus: models.PassStatusPending,
		ToStatus:   models.PassStatusMentorApproved,
		Approval:   &models.PassApproval{ActorID: "u-mentor", Role: models.RoleMentor, Decision: models.DecisionApprove},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStaleState(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPassRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE pass_requests SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Transition(context.Background(), TransitionParams{
		ID:         "p1",
		FromStatus: models.PassStatusPending,
		ToStatus:   models.PassStatusMentorApproved,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPassesByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPassRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT id, student_id, kind, reason, depart_at, return_at, status, reject_reason, issued_by, out_at, returned_at, late_return, created_at, updated_at FROM pass_requests WHERE 1=1").
		WillReturnRows(passRows(now, models.PassStatusPending))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM pass_requests WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	passes, total, err := repo.List(context.Background(), models.PassFilter{Status: []models.PassStatus{models.PassStatusPending}})
	require.NoError(t, err)
	assert.Len(t, passes, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkOutAlreadyScanned(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPassRepository(db)

	mock.ExpectExec("UPDATE pass_requests SET out_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkOut(context.Background(), "p1", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseGuardedAgainstConcurrentClose(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPassRepository(db)

	mock.ExpectExec("UPDATE pass_requests SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Close(context.Background(), "p1", time.Now(), true)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE pass_requests SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Close(context.Background(), "p1", time.Now(), false)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindGeneratedForStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPassRepository(db)

	mock.ExpectQuery("SELECT id, student_id, kind, reason, depart_at, return_at, status, reject_reason, issued_by, out_at, returned_at, late_return, created_at, updated_at FROM pass_requests").
		WithArgs("st1", string(models.PassStatusGenerated)).
		WillReturnRows(passRows(time.Now(), models.PassStatusGenerated))

	pass, err := repo.FindGeneratedForStudent(context.Background(), "st1")
	require.NoError(t, err)
	assert.Equal(t, models.PassStatusGenerated, pass.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOverdue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPassRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "kind", "reason", "depart_at", "return_at", "status", "reject_reason", "issued_by", "out_at", "returned_at", "late_return", "created_at", "updated_at"}).
		AddRow("p1", "st1", string(models.PassKindOuting), "overdue", now.Add(-6*time.Hour), now.Add(-2*time.Hour), string(models.PassStatusGenerated), nil, nil, now.Add(-5*time.Hour), nil, false, now, now)
	mock.ExpectQuery("SELECT id, student_id, kind, reason, depart_at, return_at, status, reject_reason, issued_by, out_at, returned_at, late_return, created_at, updated_at FROM pass_requests").
		WillReturnRows(rows)

	passes, err := repo.ListOverdue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.NotNil(t, passes[0].OutAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLateUnpenalized(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPassRepository(db)

	now := time.Now()
	out := now.Add(-6 * time.Hour)
	rows := sqlmock.NewRows([]string{"id", "student_id", "kind", "reason", "depart_at", "return_at", "status", "reject_reason", "issued_by", "out_at", "returned_at", "late_return", "created_at", "updated_at"}).
		AddRow("p1", "st1", string(models.PassKindOuting), "late", out, now.Add(-2*time.Hour), string(models.PassStatusCompleted), nil, nil, out, now, true, now, now)
	mock.ExpectQuery("SELECT id, student_id, kind, reason, depart_at, return_at, status, reject_reason, issued_by, out_at, returned_at, late_return, created_at, updated_at FROM pass_requests").
		WithArgs(string(models.PassStatusCompleted), string(models.TrustEventViolation)).
		WillReturnRows(rows)

	passes, err := repo.ListLateUnpenalized(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.True(t, passes[0].LateReturn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasOpenPass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPassRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM pass_requests`).
		WithArgs("st1", string(models.PassStatusGenerated)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	open, err := repo.HasOpenPass(context.Background(), "st1")
	require.NoError(t, err)
	assert.True(t, open)
	assert.NoError(t, mock.ExpectationsWereMet())
}
