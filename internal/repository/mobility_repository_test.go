package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-pass-api/internal/models"
)

func TestCreateMobilityEvent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMobilityRepository(db)

	mock.ExpectExec("INSERT INTO mobility_events").WillReturnResult(sqlmock.NewResult(1, 1))

	event := &models.MobilityEvent{StudentID: "st1", Action: models.MobilityExit, OccurredAt: time.Now()}
	err := repo.Create(context.Background(), event)
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForPass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMobilityRepository(db)

	now := time.Now()
	passID := "p1"
	rows := sqlmock.NewRows([]string{"id", "student_id", "action", "occurred_at", "pass_id", "flagged", "created_at"}).
		AddRow("m1", "st1", string(models.MobilityExit), now.Add(-2*time.Hour), passID, false, now).
		AddRow("m2", "st1", string(models.MobilityEntry), now, passID, false, now)
	mock.ExpectQuery("SELECT id, student_id, action, occurred_at, pass_id, flagged, created_at FROM mobility_events WHERE pass_id").
		WithArgs("p1").
		WillReturnRows(rows)

	events, err := repo.ListForPass(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.MobilityExit, events[0].Action)
	assert.Equal(t, models.MobilityEntry, events[1].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListFlagged(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMobilityRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "action", "occurred_at", "pass_id", "flagged", "created_at"}).
		AddRow("m3", "st2", string(models.MobilityEntry), now, nil, true, now)
	mock.ExpectQuery("SELECT id, student_id, action, occurred_at, pass_id, flagged, created_at FROM mobility_events WHERE flagged = TRUE").
		WillReturnRows(rows)

	events, err := repo.ListFlagged(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Flagged)
	assert.Nil(t, events[0].PassID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
