package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from    ParticipantStatus
		to      ParticipantStatus
		allowed bool
	}{
		{StatusUnderReview, StatusWaiting, true},
		{StatusUnderReview, StatusNeedsDocuments, true},
		{StatusUnderReview, StatusRejected, true},
		{StatusUnderReview, StatusAdmitted, false},
		{StatusNeedsDocuments, StatusUnderReview, true},
		{StatusNeedsDocuments, StatusWaiting, true},
		{StatusWaiting, StatusAdmitted, true},
		{StatusWaiting, StatusWithdrawn, true},
		{StatusWaiting, StatusRevokePending, true},
		{StatusWaiting, StatusUnderReview, false},
		{StatusRevokePending, StatusWithdrawn, true},
		{StatusRevokePending, StatusWaiting, true},
		{StatusRevokePending, StatusAdmitted, false},
		{StatusAdmitted, StatusWaiting, false},
		{StatusRejected, StatusWaiting, false},
		{StatusWithdrawn, StatusWaiting, false},
		{StatusWaiting, StatusWaiting, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, status := range []ParticipantStatus{StatusAdmitted, StatusRejected, StatusWithdrawn} {
		assert.True(t, status.Terminal(), "%s", status)
		for _, next := range []ParticipantStatus{StatusUnderReview, StatusNeedsDocuments, StatusWaiting, StatusAdmitted, StatusRejected, StatusWithdrawn, StatusRevokePending} {
			assert.False(t, status.CanTransitionTo(next), "%s -> %s", status, next)
		}
	}
}

func TestTierForIdentity(t *testing.T) {
	assert.Equal(t, TierFirst, TierForIdentity(1))
	assert.Equal(t, TierSecond, TierForIdentity(2))
	assert.Equal(t, TierThird, TierForIdentity(0))
	assert.Equal(t, TierThird, TierForIdentity(3))
	assert.Equal(t, TierThird, TierForIdentity(99))
}

func TestClassAcceptsAge(t *testing.T) {
	class := Class{MinAgeMonths: 12, MaxAgeMonths: 24, Capacity: 1}
	assert.False(t, class.AcceptsAge(11))
	assert.True(t, class.AcceptsAge(12))
	assert.True(t, class.AcceptsAge(23))
	assert.False(t, class.AcceptsAge(24))
}
