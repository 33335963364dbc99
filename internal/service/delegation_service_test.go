package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-pass-api/internal/models"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
)

type stubDelegationStore struct {
	byDelegator map[string]*models.Delegation
	views       []models.DelegationView
	overlap     bool
	revokeErr   error
	replaceErr  error
}

func newStubDelegationStore() *stubDelegationStore {
	return &stubDelegationStore{byDelegator: make(map[string]*models.Delegation)}
}

func (s *stubDelegationStore) Replace(ctx context.Context, delegation *models.Delegation) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	if delegation.ID == "" {
		delegation.ID = "d-" + delegation.DelegatorID
	}
	delegation.Active = true
	s.byDelegator[delegation.DelegatorID] = delegation
	return nil
}

func (s *stubDelegationStore) Revoke(ctx context.Context, delegatorID string) error {
	if s.revokeErr != nil {
		return s.revokeErr
	}
	delegation, ok := s.byDelegator[delegatorID]
	if !ok || !delegation.Active {
		return sql.ErrNoRows
	}
	delegation.Active = false
	return nil
}

func (s *stubDelegationStore) FindActiveForDelegator(ctx context.Context, delegatorID string) (*models.Delegation, error) {
	delegation, ok := s.byDelegator[delegatorID]
	if !ok || !delegation.Active {
		return nil, nil
	}
	return delegation, nil
}

func (s *stubDelegationStore) ListActiveForProxy(ctx context.Context, proxyID string, at time.Time) ([]models.Delegation, error) {
	var out []models.Delegation
	for _, d := range s.byDelegator {
		if d.Active && d.ProxyID == proxyID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *stubDelegationStore) ListWithConflicts(ctx context.Context) ([]models.DelegationView, error) {
	return s.views, nil
}

func (s *stubDelegationStore) HasApprovedLeaveOverlap(ctx context.Context, staffID string, startsOn, endsOn time.Time) (bool, error) {
	return s.overlap, nil
}

func newDelegationFixture(proxy *models.User) (*DelegationService, *stubDelegationStore) {
	store := newStubDelegationStore()
	users := &stubUserDirectory{users: make(map[string]*models.User)}
	if proxy != nil {
		users.users[proxy.ID] = proxy
	}
	svc := NewDelegationService(store, users, &stubAuditLogger{}, nil, nil)
	return svc, store
}

func activeProxy() *models.User {
	return &models.User{ID: testProxyID, Role: models.RoleMentor, Active: true}
}

func delegationWindow() (time.Time, time.Time) {
	start := time.Now().Truncate(24 * time.Hour)
	return start, start.AddDate(0, 0, 7)
}

func TestSetDelegation(t *testing.T) {
	svc, store := newDelegationFixture(activeProxy())
	start, end := delegationWindow()

	resp, err := svc.Set(context.Background(), SetDelegationRequest{ProxyID: testProxyID, StartsOn: start, EndsOn: end}, staffClaims("u-head", models.RoleDepartmentHead, testDeptID))
	require.NoError(t, err)
	assert.False(t, resp.InConflict)
	assert.True(t, resp.Delegation.Active)
	assert.Equal(t, "u-head", store.byDelegator["u-head"].DelegatorID)
}

func TestSetDelegationReplacesActiveOne(t *testing.T) {
	svc, store := newDelegationFixture(activeProxy())
	start, end := delegationWindow()

	_, err := svc.Set(context.Background(), SetDelegationRequest{ProxyID: testProxyID, StartsOn: start, EndsOn: end}, staffClaims("u-head", models.RoleDepartmentHead, testDeptID))
	require.NoError(t, err)
	first := store.byDelegator["u-head"].ID

	_, err = svc.Set(context.Background(), SetDelegationRequest{ProxyID: testProxyID, StartsOn: start.AddDate(0, 0, 1), EndsOn: end.AddDate(0, 0, 1)}, staffClaims("u-head", models.RoleDepartmentHead, testDeptID))
	require.NoError(t, err)
	assert.Len(t, store.byDelegator, 1)
	assert.Equal(t, first, store.byDelegator["u-head"].ID)
}

func TestSetDelegationFlagsLeaveConflict(t *testing.T) {
	svc, store := newDelegationFixture(activeProxy())
	store.overlap = true
	start, end := delegationWindow()

	resp, err := svc.Set(context.Background(), SetDelegationRequest{ProxyID: testProxyID, StartsOn: start, EndsOn: end}, staffClaims("u-head", models.RoleDepartmentHead, testDeptID))
	require.NoError(t, err)
	assert.True(t, resp.InConflict)
	assert.True(t, resp.Delegation.Active)
}

func TestSetDelegationRejectsSelfProxy(t *testing.T) {
	svc, _ := newDelegationFixture(activeProxy())
	start, end := delegationWindow()

	_, err := svc.Set(context.Background(), SetDelegationRequest{ProxyID: testProxyID, StartsOn: start, EndsOn: end}, &models.JWTClaims{UserID: testProxyID, Role: models.RoleDepartmentHead})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSetDelegationRejectsInvertedWindow(t *testing.T) {
	svc, _ := newDelegationFixture(activeProxy())
	start, end := delegationWindow()

	_, err := svc.Set(context.Background(), SetDelegationRequest{ProxyID: testProxyID, StartsOn: end, EndsOn: start}, staffClaims("u-head", models.RoleDepartmentHead, testDeptID))
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidWindow))
}

func TestSetDelegationRejectsStudentProxy(t *testing.T) {
	proxy := activeProxy()
	proxy.Role = models.RoleStudent
	svc, _ := newDelegationFixture(proxy)
	start, end := delegationWindow()

	_, err := svc.Set(context.Background(), SetDelegationRequest{ProxyID: testProxyID, StartsOn: start, EndsOn: end}, staffClaims("u-head", models.RoleDepartmentHead, testDeptID))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSetDelegationRejectsInactiveProxy(t *testing.T) {
	proxy := activeProxy()
	proxy.Active = false
	svc, _ := newDelegationFixture(proxy)
	start, end := delegationWindow()

	_, err := svc.Set(context.Background(), SetDelegationRequest{ProxyID: testProxyID, StartsOn: start, EndsOn: end}, staffClaims("u-head", models.RoleDepartmentHead, testDeptID))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestRevokeWithoutDelegation(t *testing.T) {
	svc, _ := newDelegationFixture(activeProxy())

	err := svc.Revoke(context.Background(), staffClaims("u-head", models.RoleDepartmentHead, testDeptID))
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestRevokeEndsDelegation(t *testing.T) {
	svc, store := newDelegationFixture(activeProxy())
	start, end := delegationWindow()

	_, err := svc.Set(context.Background(), SetDelegationRequest{ProxyID: testProxyID, StartsOn: start, EndsOn: end}, staffClaims("u-head", models.RoleDepartmentHead, testDeptID))
	require.NoError(t, err)

	err = svc.Revoke(context.Background(), staffClaims("u-head", models.RoleDepartmentHead, testDeptID))
	require.NoError(t, err)
	assert.False(t, store.byDelegator["u-head"].Active)

	current, err := svc.Current(context.Background(), staffClaims("u-head", models.RoleDepartmentHead, testDeptID))
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestListDelegationsWithConflicts(t *testing.T) {
	svc, store := newDelegationFixture(activeProxy())
	store.views = []models.DelegationView{{DelegatorRole: models.RoleDepartmentHead, ProxyName: "Mentor One", InConflict: true}}

	views, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].InConflict)
}
