package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveTrainingStatus(t *testing.T) {
	now := day(2024, 6, 1)
	completed := day(2024, 5, 20)
	late := day(2024, 8, 1)
	zero := time.Time{}
	cases := []struct {
		name       string
		due        time.Time
		completion *time.Time
		want       TrainingStatus
	}{
		{"completed before due", day(2024, 7, 1), &completed, TrainingCompleted},
		{"completed after due", day(2024, 1, 1), &late, TrainingCompleted},
		{"past due", day(2024, 5, 31), nil, TrainingOverdue},
		{"due today", now, nil, TrainingInProgress},
		{"due in thirty days", now.Add(30 * 24 * time.Hour), nil, TrainingInProgress},
		{"due in thirty one days", now.Add(31 * 24 * time.Hour), nil, TrainingNotStarted},
		{"zero completion is ignored", day(2024, 5, 1), &zero, TrainingOverdue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first := DeriveTrainingStatus(tc.due, tc.completion, now)
			second := DeriveTrainingStatus(tc.due, tc.completion, now)
			assert.Equal(t, tc.want, first)
			assert.Equal(t, first, second)
		})
	}
}

func TestDeriveTrainingStatusCustomWindow(t *testing.T) {
	now := day(2024, 6, 1)
	due := day(2024, 6, 10)
	assert.Equal(t, TrainingNotStarted, DeriveTrainingStatusWithin(due, nil, now, 7*24*time.Hour))
	assert.Equal(t, TrainingInProgress, DeriveTrainingStatusWithin(due, nil, now, 14*24*time.Hour))
}

var allEquipmentCommands = []EquipmentCommand{
	EquipmentMarkOperational, EquipmentStartMaintenance, EquipmentReportFault, EquipmentRetire,
}

func TestRetiredEquipmentRejectsEveryCommand(t *testing.T) {
	now := day(2024, 6, 1)
	eq := Equipment{ID: "eq-1", Status: EquipmentRetired}
	for _, cmd := range allEquipmentCommands {
		_, err := ApplyEquipmentCommand(eq, cmd, now)
		require.Error(t, err)
		assert.Equal(t, KindInvalidTransition, KindOf(err), "command %s", cmd)
	}
	_, _, err := RecordEquipmentInspection(eq, now, now)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestEquipmentMovesBetweenLiveStates(t *testing.T) {
	now := day(2024, 6, 1)
	live := []EquipmentStatus{EquipmentOperational, EquipmentMaintenance, EquipmentFault}
	for _, from := range live {
		for _, to := range append(live, EquipmentRetired) {
			cmd, ok := EquipmentCommandFor(to)
			require.True(t, ok)
			tr, err := ApplyEquipmentCommand(Equipment{ID: "eq", Status: from}, cmd, now)
			if from == to {
				assert.Equal(t, KindInvalidTransition, KindOf(err), "%s -> %s", from, to)
				continue
			}
			require.NoError(t, err, "%s -> %s", from, to)
			assert.Equal(t, to, tr.Equipment.Status)
			assert.Equal(t, from, tr.From)
			assert.Equal(t, to == EquipmentFault, tr.FaultEntered)
			assert.Equal(t, now, tr.Equipment.UpdatedAt)
		}
	}
}

func TestRetiredNeverASourceInTable(t *testing.T) {
	assert.Empty(t, EquipmentTransitions.Commands(EquipmentRetired))
	for _, cmd := range allEquipmentCommands {
		_, ok := EquipmentTransitions.Next(EquipmentRetired, cmd)
		assert.False(t, ok)
	}
}

func TestResolveOpenAlertIsInvalid(t *testing.T) {
	now := day(2024, 6, 1)
	a := Alert{ID: "a-1", Status: AlertOpen}
	_, err := ResolveAlert(a, ResolveAlertInput{ResolvedBy: "u1", Resolution: "fixed", ActionsTaken: []string{"x"}}, now)
	assert.Equal(t, KindInvalidTransition, KindOf(err))
}

func TestAcknowledgeTwiceIsInvalid(t *testing.T) {
	now := day(2024, 6, 1)
	a, err := AcknowledgeAlert(Alert{ID: "a-1", Status: AlertOpen}, "u1", nil, now)
	require.NoError(t, err)
	require.NotNil(t, a.AcknowledgedAt)
	_, err = AcknowledgeAlert(a, "u1", nil, now)
	assert.Equal(t, KindInvalidTransition, KindOf(err))
}

func TestResolvedAlertRejectsWithAlreadyResolved(t *testing.T) {
	now := day(2024, 6, 1)
	a := Alert{ID: "a-1", Status: AlertResolved}
	_, err := AcknowledgeAlert(a, "u2", nil, now)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	_, err = ResolveAlert(a, ResolveAlertInput{}, now)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestResolveValidatesInput(t *testing.T) {
	now := day(2024, 6, 1)
	a := Alert{ID: "a-1", Status: AlertAcknowledged}
	_, err := ResolveAlert(a, ResolveAlertInput{ActionsTaken: []string{"  "}}, now)
	require.ErrorIs(t, err, ErrValidation)
	fields := map[string]bool{}
	for _, f := range FieldErrors(err) {
		fields[f.Field] = true
	}
	assert.Equal(t, map[string]bool{"resolved_by": true, "resolution": true, "actions_taken": true}, fields)
}

func TestTaskTerminalStates(t *testing.T) {
	now := day(2024, 6, 1)
	reason := "duplicate"
	for _, status := range []TaskStatus{TaskCompleted, TaskCancelled} {
		for _, cmd := range []TaskCommand{TaskStart, TaskComplete, TaskCancel} {
			_, err := ApplyTaskCommand(MaintenanceTask{ID: "t", Status: status}, cmd, TaskCommandInput{Reason: &reason}, now)
			assert.Equal(t, KindInvalidTransition, KindOf(err), "%s from %s", cmd, status)
		}
	}
	_, err := ApplyTaskCommand(MaintenanceTask{ID: "t", Status: TaskPending}, TaskComplete, TaskCommandInput{}, now)
	assert.Equal(t, KindInvalidTransition, KindOf(err))
	_, err = ApplyTaskCommand(MaintenanceTask{ID: "t", Status: TaskPending}, TaskCancel, TaskCommandInput{}, now)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestReviewExpiredPermit(t *testing.T) {
	p := WorkPermit{ID: "p-1", Status: PermitPending, RequestedBy: "req", ValidUntil: day(2024, 1, 1)}
	review, err := ReviewPermit(p, PermitApprove, ReviewPermitInput{Reviewer: "boss"}, day(2024, 2, 1))
	require.ErrorIs(t, err, ErrPermitExpired)
	assert.False(t, errors.Is(err, ErrInvalidTransition))
	assert.True(t, review.Expired)
	assert.Equal(t, PermitExpiredStatus, review.Permit.Status)
	assert.Nil(t, review.Permit.ApprovedBy)

	_, err = ReviewPermit(review.Permit, PermitReject, ReviewPermitInput{Reviewer: "boss"}, day(2024, 2, 1))
	assert.ErrorIs(t, err, ErrPermitExpired)
}

func TestReviewPermitRequiresDistinctReviewer(t *testing.T) {
	now := day(2024, 1, 1)
	p := WorkPermit{ID: "p-1", Status: PermitPending, RequestedBy: "Alice", ValidUntil: day(2024, 2, 1)}
	_, err := ReviewPermit(p, PermitApprove, ReviewPermitInput{Reviewer: "alice"}, now)
	assert.Equal(t, KindValidation, KindOf(err))

	review, err := ReviewPermit(p, PermitReject, ReviewPermitInput{Reviewer: "bob"}, now)
	require.NoError(t, err)
	assert.Equal(t, PermitRejected, review.Permit.Status)
	require.NotNil(t, review.Permit.RejectedBy)
	assert.Nil(t, review.Permit.ApprovedBy)

	_, err = ReviewPermit(review.Permit, PermitApprove, ReviewPermitInput{Reviewer: "bob"}, now)
	assert.Equal(t, KindInvalidTransition, KindOf(err))
}

func TestAppendCertificateRequiresCompletion(t *testing.T) {
	now := day(2024, 6, 1)
	r := TrainingRequirement{ID: "r-1"}
	_, _, err := AppendCertificate(r, "c-1", NewCertificate{CertificateNumber: "N-1", IssueDate: now}, now)
	assert.Equal(t, KindInvalidTransition, KindOf(err))

	r.CompletionDate = &now
	expiry := day(2024, 5, 1)
	_, _, err = AppendCertificate(r, "c-1", NewCertificate{CertificateNumber: "N-1", IssueDate: now, ExpiryDate: &expiry}, now)
	assert.Equal(t, KindValidation, KindOf(err))

	next, cert, err := AppendCertificate(r, "c-1", NewCertificate{CertificateNumber: "N-1", IssueDate: now}, now)
	require.NoError(t, err)
	assert.Equal(t, "r-1", cert.RequirementID)
	assert.Len(t, next.Certificates, 1)
	assert.Empty(t, r.Certificates)
}
