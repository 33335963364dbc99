package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalChainByResidency(t *testing.T) {
	assert.Equal(t, []UserRole{RoleMentor, RoleDepartmentHead, RoleWarden}, ApprovalChain(ResidencyHostel))
	assert.Equal(t, []UserRole{RoleMentor, RoleDepartmentHead}, ApprovalChain(ResidencyDayScholar))
}

func TestNextStatusApproveWalksChain(t *testing.T) {
	cases := []struct {
		name      string
		residency Residency
		from      PassStatus
		want      PassStatus
	}{
		{"hostel mentor", ResidencyHostel, PassStatusPending, PassStatusMentorApproved},
		{"hostel dept head", ResidencyHostel, PassStatusMentorApproved, PassStatusDeptHeadApproved},
		{"hostel warden generates", ResidencyHostel, PassStatusDeptHeadApproved, PassStatusGenerated},
		{"day scholar mentor", ResidencyDayScholar, PassStatusPending, PassStatusMentorApproved},
		{"day scholar dept head generates", ResidencyDayScholar, PassStatusMentorApproved, PassStatusGenerated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, ok := NextStatus(tc.from, tc.residency, PassActionApprove)
			require.True(t, ok)
			assert.Equal(t, tc.want, next)
		})
	}
}

// Every approval status must be reachable as the output of some approve
// transition; a final approval maps straight to GENERATED, so the chain
// statuses stop one short of the longest chain.
func TestChainStatusesAllReachable(t *testing.T) {
	reachable := map[PassStatus]bool{PassStatusPending: true}
	for _, residency := range []Residency{ResidencyHostel, ResidencyDayScholar} {
		status := PassStatusPending
		for {
			next, ok := NextStatus(status, residency, PassActionApprove)
			if !ok {
				break
			}
			reachable[next] = true
			if next == PassStatusGenerated {
				break
			}
			status = next
		}
	}
	for _, status := range []PassStatus{PassStatusPending, PassStatusMentorApproved, PassStatusDeptHeadApproved} {
		assert.True(t, reachable[status], string(status))
	}
}

func TestNextStatusDayScholarNeverWaitsOnWarden(t *testing.T) {
	_, ok := NextStatus(PassStatusDeptHeadApproved, ResidencyDayScholar, PassActionApprove)
	assert.False(t, ok)
}

func TestNextStatusRejectFromAnyPendingStage(t *testing.T) {
	for _, from := range []PassStatus{PassStatusPending, PassStatusMentorApproved, PassStatusDeptHeadApproved} {
		next, ok := NextStatus(from, ResidencyHostel, PassActionReject)
		require.True(t, ok, string(from))
		assert.Equal(t, PassStatusRejected, next)
	}
}

func TestNextStatusNoDecisionAfterGeneration(t *testing.T) {
	for _, action := range []PassAction{PassActionApprove, PassActionReject, PassActionCancel} {
		_, ok := NextStatus(PassStatusGenerated, ResidencyHostel, action)
		assert.False(t, ok, string(action))
	}
	next, ok := NextStatus(PassStatusGenerated, ResidencyHostel, PassActionComplete)
	require.True(t, ok)
	assert.Equal(t, PassStatusCompleted, next)
}

func TestNextStatusEmergency(t *testing.T) {
	next, ok := NextStatus(PassStatusEmergency, ResidencyHostel, PassActionApprove)
	require.True(t, ok)
	assert.Equal(t, PassStatusGenerated, next)

	next, ok = NextStatus(PassStatusEmergency, ResidencyHostel, PassActionCancel)
	require.True(t, ok)
	assert.Equal(t, PassStatusCancelled, next)
}

func TestRequiredApprover(t *testing.T) {
	role, ok := RequiredApprover(PassStatusPending, ResidencyHostel)
	require.True(t, ok)
	assert.Equal(t, RoleMentor, role)

	role, ok = RequiredApprover(PassStatusDeptHeadApproved, ResidencyHostel)
	require.True(t, ok)
	assert.Equal(t, RoleWarden, role)

	_, ok = RequiredApprover(PassStatusDeptHeadApproved, ResidencyDayScholar)
	assert.False(t, ok)

	_, ok = RequiredApprover(PassStatusGenerated, ResidencyHostel)
	assert.False(t, ok)
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []PassStatus{PassStatusCompleted, PassStatusRejected, PassStatusCancelled} {
		assert.True(t, s.Terminal(), string(s))
	}
	for _, s := range []PassStatus{PassStatusPending, PassStatusGenerated, PassStatusEmergency} {
		assert.False(t, s.Terminal(), string(s))
	}
}

func TestClampTrustScore(t *testing.T) {
	assert.Equal(t, 0, ClampTrustScore(-5))
	assert.Equal(t, 100, ClampTrustScore(140))
	assert.Equal(t, 55, ClampTrustScore(55))
}
