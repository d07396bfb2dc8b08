package followup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dukerupert/shepherd/internal/model"
)

func TestComputeStatus(t *testing.T) {
	today := model.NewDate(2026, time.February, 21)
	done := today

	tests := []struct {
		name        string
		a           model.Assignment
		wantStatus  Status
		wantOverdue int
	}{
		{"future", model.Assignment{AssignedDate: today.AddDays(3)}, StatusUpcoming, 0},
		{"today", model.Assignment{AssignedDate: today}, StatusDueToday, 0},
		{"six days past", model.Assignment{AssignedDate: today.AddDays(-6)}, StatusPastDue, 6},
		{"seven days past", model.Assignment{AssignedDate: today.AddDays(-7)}, StatusOverdue, 7},
		{"ten days past", model.Assignment{AssignedDate: today.AddDays(-10)}, StatusOverdue, 10},
		{"completed overdue", model.Assignment{AssignedDate: today.AddDays(-10), Completed: true, CompletedDate: &done}, StatusCompleted, 10},
		{"completed future", model.Assignment{AssignedDate: today.AddDays(5), Completed: true}, StatusCompleted, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, overdue := ComputeStatus(tt.a, today)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantOverdue, overdue)
		})
	}
}
