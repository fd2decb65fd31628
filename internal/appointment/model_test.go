package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"scheduled to confirmed", StatusScheduled, StatusConfirmed, true},
		{"scheduled to checked in", StatusScheduled, StatusCheckedIn, true},
		{"scheduled to cancelled", StatusScheduled, StatusCancelled, true},
		{"scheduled to no show", StatusScheduled, StatusNoShow, true},
		{"scheduled to completed skips check in", StatusScheduled, StatusCompleted, false},
		{"pending to confirmed", StatusPendingConfirmation, StatusConfirmed, true},
		{"pending to checked in", StatusPendingConfirmation, StatusCheckedIn, false},
		{"pending to no show", StatusPendingConfirmation, StatusNoShow, false},
		{"confirmed to checked in", StatusConfirmed, StatusCheckedIn, true},
		{"checked in to in progress", StatusCheckedIn, StatusInProgress, true},
		{"checked in to completed", StatusCheckedIn, StatusCompleted, true},
		{"checked in to cancelled", StatusCheckedIn, StatusCancelled, false},
		{"in progress to completed", StatusInProgress, StatusCompleted, true},
		{"in progress to cancelled", StatusInProgress, StatusCancelled, false},
		{"completed is terminal", StatusCompleted, StatusConfirmed, false},
		{"cancelled is terminal", StatusCancelled, StatusScheduled, false},
		{"no show is terminal", StatusNoShow, StatusScheduled, false},
		{"rescheduled is terminal", StatusRescheduled, StatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestHoldsCapacity(t *testing.T) {
	holding := []Status{StatusScheduled, StatusPendingConfirmation, StatusConfirmed, StatusCheckedIn, StatusInProgress}
	for _, s := range holding {
		assert.True(t, s.HoldsCapacity(), "%s should hold capacity", s)
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}

	released := []Status{StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled}
	for _, s := range released {
		assert.False(t, s.HoldsCapacity(), "%s should not hold capacity", s)
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
}

func TestPriorityRank(t *testing.T) {
	assert.Less(t, PriorityUrgent.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.Greater(t, Priority("bogus").Rank(), PriorityLow.Rank())
}
