package followup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukerupert/shepherd/internal/model"
)

const questionsPerSource = 2

// Followup is an assignment as presented to the caller on a given day.
type Followup struct {
	PersonID         string     `json:"person_id"`
	PersonName       string     `json:"person_name"`
	Household        string     `json:"household"`
	Phone            string     `json:"phone,omitempty"`
	Email            string     `json:"email,omitempty"`
	AssignedDate     model.Date `json:"assigned_date"`
	Status           Status     `json:"status"`
	DaysOverdue      int        `json:"days_overdue"`
	IsOverdue        bool       `json:"is_overdue"`
	IsToday          bool       `json:"is_today"`
	Theme            string     `json:"theme"`
	ThemeQuestions   []string   `json:"theme_questions"`
	HistoryQuestions []string   `json:"history_questions"`
	PreviousContacts int        `json:"total_previous_contacts"`
}

// Summary reports a month's progress.
type Summary struct {
	Month           string             `json:"month"`
	Theme           string             `json:"theme"`
	TotalHouseholds int                `json:"total_households"`
	Completed       int                `json:"completed"`
	Remaining       int                `json:"remaining"`
	CompletionRate  string             `json:"completion_rate"`
	Assignments     []model.Assignment `json:"assignments"`
}

// Engine answers "who should I follow up with" questions against the store,
// generating the current month on first use.
type Engine struct {
	store      Store
	generator  *Generator
	themes     ThemeCatalog
	history    ContactHistory
	contactLog ContactLogger
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Engine)

// WithClock sets the source of "today". The calendar day is taken in the
// returned time's location.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
		e.generator.now = now
	}
}

// WithContactLogger records completion notes in the contact history.
func WithContactLogger(l ContactLogger) Option {
	return func(e *Engine) {
		e.contactLog = l
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

func NewEngine(store Store, directory ContactDirectory, themes ThemeCatalog, history ContactHistory, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		generator: NewGenerator(store, directory, themes),
		themes:    themes,
		history:   history,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Today returns the engine's current calendar day.
func (e *Engine) Today() model.Date {
	return model.DateOf(e.now())
}

// Generate creates the month's assignments unless they exist and force is false.
func (e *Engine) Generate(ctx context.Context, year int, month time.Month, force bool) (*model.MonthlyState, error) {
	e.refresh()
	return e.generator.Generate(ctx, year, month, force)
}

// refresh picks up writes made by other processes. On failure the engine
// keeps answering from what it last read.
func (e *Engine) refresh() {
	if err := e.store.Refresh(); err != nil {
		e.logger.Warn("reload follow-up state", "error", err)
	}
}

func (e *Engine) currentMonth(ctx context.Context) (*model.MonthlyState, model.Date, error) {
	e.refresh()
	today := e.Today()
	state := e.store.Get(today.MonthKey())
	if state != nil {
		return state, today, nil
	}
	e.logger.Info("generating follow-ups for current month", "month", today.MonthKey())
	state, err := e.generator.Generate(ctx, today.Year(), today.Month(), false)
	if err != nil {
		return nil, today, err
	}
	return state, today, nil
}

// TodaysFollowups returns incomplete assignments dated today and, when
// includeOverdue is set, those at least OverdueAfterDays past their date.
// Today's come first, then the longest overdue.
func (e *Engine) TodaysFollowups(ctx context.Context, includeOverdue bool) ([]Followup, error) {
	state, today, err := e.currentMonth(ctx)
	if err != nil {
		return nil, err
	}

	var followups []Followup
	for _, a := range state.Assignments {
		status, _ := ComputeStatus(a, today)
		if status != StatusDueToday && !(includeOverdue && status == StatusOverdue) {
			continue
		}
		f := e.present(ctx, state, a, today)
		f.IsOverdue = f.DaysOverdue >= OverdueAfterDays
		followups = append(followups, f)
	}

	sort.SliceStable(followups, func(i, j int) bool {
		if followups[i].IsToday != followups[j].IsToday {
			return followups[i].IsToday
		}
		return followups[i].DaysOverdue > followups[j].DaysOverdue
	})
	return followups, nil
}

// NextFollowup returns the single most pressing incomplete assignment of the
// current month: the oldest past-dated one, else today's, else the soonest
// upcoming. It returns nil when everything is complete.
func (e *Engine) NextFollowup(ctx context.Context) (*Followup, error) {
	state, today, err := e.currentMonth(ctx)
	if err != nil {
		return nil, err
	}

	var best *model.Assignment
	bestRank := 0
	for i := range state.Assignments {
		a := &state.Assignments[i]
		if a.Completed {
			continue
		}
		rank := urgencyRank(a.AssignedDate, today)
		if best == nil || rank < bestRank || (rank == bestRank && a.AssignedDate.Before(best.AssignedDate)) {
			best, bestRank = a, rank
		}
	}
	if best == nil {
		return nil, nil
	}

	f := e.present(ctx, state, *best, today)
	f.IsOverdue = f.DaysOverdue > 0
	return &f, nil
}

func urgencyRank(assigned, today model.Date) int {
	switch {
	case assigned.Before(today):
		return 0
	case assigned.Equal(today):
		return 1
	default:
		return 2
	}
}

// present snapshots an assignment with its theme and history prompts.
// History lookups are best effort and never fail the caller.
func (e *Engine) present(ctx context.Context, state *model.MonthlyState, a model.Assignment, today model.Date) Followup {
	status, daysOverdue := ComputeStatus(a, today)
	f := Followup{
		PersonID:         a.PersonID,
		PersonName:       a.PersonName,
		Household:        a.HouseholdName,
		Phone:            a.Phone,
		Email:            a.Email,
		AssignedDate:     a.AssignedDate,
		Status:           status,
		DaysOverdue:      daysOverdue,
		IsToday:          a.AssignedDate.Equal(today),
		Theme:            state.Theme,
		ThemeQuestions:   firstN(themeFor(e.themes, state.Month).Questions, questionsPerSource),
		HistoryQuestions: []string{},
	}

	if e.history != nil {
		note, total, ok := e.history.LastNote(ctx, a.PersonName)
		if ok {
			f.PreviousContacts = total
			if note != "" {
				f.HistoryQuestions = firstN(SuggestQuestions(note), questionsPerSource)
			}
		}
	}
	return f
}

// MarkComplete completes the current month's assignment for the named
// person and returns it. Earlier months cannot be completed through this
// path. It returns nil when no assignment matched.
func (e *Engine) MarkComplete(ctx context.Context, personName, notes string) (*model.Assignment, error) {
	today := e.Today()
	a, err := e.store.MarkComplete(today.MonthKey(), personName, notes, today)
	if err != nil {
		return nil, fmt.Errorf("mark complete %q: %w", personName, err)
	}
	if a != nil {
		e.logContact(ctx, a.PersonName, notes)
	}
	return a, nil
}

// MarkCompleteByID completes the current month's assignment for a person id.
func (e *Engine) MarkCompleteByID(ctx context.Context, personID, notes string) (*model.Assignment, error) {
	today := e.Today()
	a, err := e.store.MarkCompleteByID(today.MonthKey(), personID, notes, today)
	if err != nil {
		return nil, fmt.Errorf("mark complete %s: %w", personID, err)
	}
	if a != nil {
		e.logContact(ctx, a.PersonName, notes)
	}
	return a, nil
}

// MarkContacted completes the named person's current assignment after the
// caller has already written the contact note to the history itself.
func (e *Engine) MarkContacted(personName, notes string) (*model.Assignment, error) {
	today := e.Today()
	a, err := e.store.MarkComplete(today.MonthKey(), personName, notes, today)
	if err != nil {
		return nil, fmt.Errorf("mark contacted %q: %w", personName, err)
	}
	return a, nil
}

func (e *Engine) logContact(ctx context.Context, personName, notes string) {
	if e.contactLog == nil || notes == "" {
		return
	}
	if err := e.contactLog.LogContact(ctx, personName, notes); err != nil {
		e.logger.Warn("log contact note", "person", personName, "error", err)
	}
}

// MonthlySummary reports progress for the given month; a zero year or month
// selects the current month.
func (e *Engine) MonthlySummary(year int, month time.Month) (*Summary, error) {
	if year == 0 || month == 0 {
		today := e.Today()
		year, month = today.Year(), today.Month()
	}
	key := model.MonthKey(year, month)

	e.refresh()
	state := e.store.Get(key)
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDataForMonth, key)
	}

	completed := 0
	for _, a := range state.Assignments {
		if a.Completed {
			completed++
		}
	}
	total := len(state.Assignments)

	rate := "0%"
	if total > 0 {
		rate = fmt.Sprintf("%.1f%%", float64(completed)/float64(total)*100)
	}

	assignments := state.Assignments
	if assignments == nil {
		assignments = []model.Assignment{}
	}
	sort.SliceStable(assignments, func(i, j int) bool {
		return assignments[i].AssignedDate.Before(assignments[j].AssignedDate)
	})

	return &Summary{
		Month:           key,
		Theme:           state.Theme,
		TotalHouseholds: total,
		Completed:       completed,
		Remaining:       total - completed,
		CompletionRate:  rate,
		Assignments:     assignments,
	}, nil
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return append([]string{}, s...)
	}
	return append([]string{}, s[:n]...)
}
