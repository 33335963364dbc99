package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-pass-api/internal/models"
	"github.com/noah-isme/campus-pass-api/pkg/config"
	appErrors "github.com/noah-isme/campus-pass-api/pkg/errors"
)

type stubRestrictionStore struct {
	restrictions  map[string]*models.CohortRestriction
	active        *models.CohortRestriction
	findCalls     int
	deactivateErr error
	upsertErr     error
}

func (s *stubRestrictionStore) Upsert(ctx context.Context, restriction *models.CohortRestriction) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	if restriction.ID == "" {
		restriction.ID = "r1"
	}
	restriction.Active = true
	if s.restrictions == nil {
		s.restrictions = make(map[string]*models.CohortRestriction)
	}
	s.restrictions[restriction.ID] = restriction
	return nil
}

func (s *stubRestrictionStore) Deactivate(ctx context.Context, id string) error {
	if s.deactivateErr != nil {
		return s.deactivateErr
	}
	restriction, ok := s.restrictions[id]
	if !ok || !restriction.Active {
		return sql.ErrNoRows
	}
	restriction.Active = false
	return nil
}

func (s *stubRestrictionStore) FindActiveForCohort(ctx context.Context, departmentID string, academicYear int) (*models.CohortRestriction, error) {
	s.findCalls++
	if s.active != nil && s.active.DepartmentID == departmentID && s.active.AcademicYear == academicYear {
		return s.active, nil
	}
	return nil, nil
}

func (s *stubRestrictionStore) List(ctx context.Context, filter models.RestrictionFilter) ([]models.CohortRestriction, int, error) {
	var out []models.CohortRestriction
	for _, r := range s.restrictions {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func defaultPolicy() config.PassPolicyConfig {
	return config.PassPolicyConfig{
		TrustBaseline:     70,
		ViolationPenalty:  10,
		CooldownThreshold: 3,
	}
}

func newRestrictionFixture(student *models.Student) (*RestrictionService, *stubRestrictionStore, *stubStudentStore) {
	store := &stubRestrictionStore{}
	students := newStubStudentStore(student)
	svc := NewRestrictionService(store, students, &stubAuditLogger{}, nil, defaultPolicy(), nil, nil)
	return svc, store, students
}

func TestCheckStudentHardBlockWins(t *testing.T) {
	student := hostelStudent()
	student.HardBlocked = true
	student.Cooldown = 5
	svc, store, _ := newRestrictionFixture(student)
	store.active = &models.CohortRestriction{ID: "r1", DepartmentID: student.DepartmentID, AcademicYear: student.AcademicYear, Active: true}

	check, err := svc.CheckStudent(context.Background(), student)
	require.NoError(t, err)
	assert.True(t, check.Blocked)
	assert.True(t, check.HardBlocked)
	assert.Nil(t, check.Cohort)
	assert.Equal(t, 0, store.findCalls)
}

func TestCheckStudentCohortLayer(t *testing.T) {
	student := hostelStudent()
	svc, store, _ := newRestrictionFixture(student)
	store.active = &models.CohortRestriction{ID: "r1", DepartmentID: student.DepartmentID, AcademicYear: student.AcademicYear, Reason: "exam week", Active: true}

	check, err := svc.CheckStudent(context.Background(), student)
	require.NoError(t, err)
	assert.True(t, check.Blocked)
	require.NotNil(t, check.Cohort)
	assert.Equal(t, "exam week", check.Cohort.Reason)
	assert.False(t, check.CooldownAtMax)
}

func TestCheckStudentCooldownThreshold(t *testing.T) {
	student := hostelStudent()
	student.Cooldown = 3
	svc, _, _ := newRestrictionFixture(student)

	check, err := svc.CheckStudent(context.Background(), student)
	require.NoError(t, err)
	assert.True(t, check.Blocked)
	assert.True(t, check.CooldownAtMax)
}

func TestCheckStudentBelowThresholdClear(t *testing.T) {
	student := hostelStudent()
	student.Cooldown = 2
	svc, _, _ := newRestrictionFixture(student)

	check, err := svc.CheckStudent(context.Background(), student)
	require.NoError(t, err)
	assert.False(t, check.Blocked)
	assert.Equal(t, 2, check.Cooldown)
}

func TestSetCohortRestriction(t *testing.T) {
	svc, store, _ := newRestrictionFixture(hostelStudent())

	restriction, err := svc.SetCohortRestriction(context.Background(), SetCohortRestrictionRequest{
		DepartmentID: testDeptID,
		AcademicYear: 3,
		Reason:       "exam week",
	}, staffClaims("u-head", models.RoleDepartmentHead, testDeptID))
	require.NoError(t, err)
	assert.True(t, restriction.Active)
	assert.Equal(t, "u-head", restriction.CreatedBy)
	assert.Len(t, store.restrictions, 1)
}

func TestSetCohortRestrictionValidatesPayload(t *testing.T) {
	svc, _, _ := newRestrictionFixture(hostelStudent())

	_, err := svc.SetCohortRestriction(context.Background(), SetCohortRestrictionRequest{
		DepartmentID: "not-a-uuid",
		AcademicYear: 3,
		Reason:       "exam week",
	}, staffClaims("u-head", models.RoleDepartmentHead, testDeptID))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestClearCohortRestrictionMissing(t *testing.T) {
	svc, store, _ := newRestrictionFixture(hostelStudent())
	store.deactivateErr = sql.ErrNoRows

	err := svc.ClearCohortRestriction(context.Background(), "r-missing", staffClaims("u-admin", models.RoleAdmin, ""))
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestSetHardBlockUnknownStudentNotFound(t *testing.T) {
	svc, _, _ := newRestrictionFixture(hostelStudent())

	err := svc.SetHardBlock(context.Background(), "missing", true, staffClaims("u-warden", models.RoleWarden, ""))
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestSetHardBlockFlipsFlag(t *testing.T) {
	student := hostelStudent()
	svc, _, students := newRestrictionFixture(student)

	err := svc.SetHardBlock(context.Background(), student.ID, true, staffClaims("u-warden", models.RoleWarden, ""))
	require.NoError(t, err)
	assert.True(t, students.students[student.ID].HardBlocked)
}
