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

func TestReplaceDeactivatesPriorDelegation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDelegationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE delegations SET active = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO delegations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	delegation := &models.Delegation{DelegatorID: "u-head", ProxyID: "u-mentor", StartsOn: time.Now(), EndsOn: time.Now().AddDate(0, 0, 7)}
	err := repo.Replace(context.Background(), delegation)
	require.NoError(t, err)
	assert.NotEmpty(t, delegation.ID)
	assert.True(t, delegation.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeWithoutActiveDelegation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDelegationRepository(db)

	mock.ExpectExec("UPDATE delegations SET active = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Revoke(context.Background(), "u-head")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveForProxyWindow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDelegationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "delegator_id", "proxy_id", "starts_on", "ends_on", "active", "created_at", "revoked_at"}).
		AddRow("d1", "u-head", "u-mentor", now.AddDate(0, 0, -1), now.AddDate(0, 0, 5), true, now, nil)
	mock.ExpectQuery("SELECT id, delegator_id, proxy_id, starts_on, ends_on, active, created_at, revoked_at FROM delegations").
		WithArgs("u-mentor", now).
		WillReturnRows(rows)

	delegations, err := repo.ListActiveForProxy(context.Background(), "u-mentor", now)
	require.NoError(t, err)
	require.Len(t, delegations, 1)
	assert.Equal(t, "u-head", delegations[0].DelegatorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListWithConflicts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDelegationRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "delegator_id", "proxy_id", "starts_on", "ends_on", "active", "created_at", "revoked_at", "delegator_role", "proxy_name", "in_conflict"}).
		AddRow("d1", "u-head", "u-mentor", now, now.AddDate(0, 0, 7), true, now, nil, string(models.RoleDepartmentHead), "Mentor One", true)
	mock.ExpectQuery("SELECT d.id, d.delegator_id, d.proxy_id").WillReturnRows(rows)

	views, err := repo.ListWithConflicts(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].InConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasApprovedLeaveOverlap(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDelegationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM leaves")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	overlap, err := repo.HasApprovedLeaveOverlap(context.Background(), "u-mentor", time.Now(), time.Now().AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.True(t, overlap)
	assert.NoError(t, mock.ExpectationsWereMet())
}
