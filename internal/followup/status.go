package followup

import "github.com/dukerupert/shepherd/internal/model"

// OverdueAfterDays is how many days past its date an incomplete assignment
// must be before it resurfaces in the daily list.
const OverdueAfterDays = 7

type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusDueToday  Status = "due_today"
	StatusPastDue   Status = "past_due"
	StatusOverdue   Status = "overdue"
	StatusCompleted Status = "completed"
)

// ComputeStatus derives an assignment's status on the given day along with
// how many days it is past its assigned date (never negative). Completed is
// absorbing regardless of dates.
func ComputeStatus(a model.Assignment, today model.Date) (Status, int) {
	daysOverdue := max(today.DaysSince(a.AssignedDate), 0)

	switch {
	case a.Completed:
		return StatusCompleted, daysOverdue
	case a.AssignedDate.Equal(today):
		return StatusDueToday, 0
	case a.AssignedDate.After(today):
		return StatusUpcoming, 0
	case daysOverdue >= OverdueAfterDays:
		return StatusOverdue, daysOverdue
	default:
		return StatusPastDue, daysOverdue
	}
}
