package model

import "time"

type Assignment struct {
	PersonID      string `json:"person_id"`
	PersonName    string `json:"person_name"`
	HouseholdID   string `json:"household_id"`
	HouseholdName string `json:"household_name"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	AssignedDate  Date   `json:"assigned_date"`
	Completed     bool   `json:"completed"`
	CompletedDate *Date  `json:"completed_date"`
	Notes         string `json:"notes"`
}

// MonthlyState holds one month's assignments. Theme is the theme name as
// it was when the month was generated.
type MonthlyState struct {
	Month       string       `json:"month"`
	Theme       string       `json:"theme"`
	Assignments []Assignment `json:"assignments"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (s *MonthlyState) Clone() *MonthlyState {
	if s == nil {
		return nil
	}
	c := *s
	c.Assignments = make([]Assignment, len(s.Assignments))
	for i, a := range s.Assignments {
		if a.CompletedDate != nil {
			d := *a.CompletedDate
			a.CompletedDate = &d
		}
		c.Assignments[i] = a
	}
	return &c
}
