package followup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/shepherd/internal/model"
	"github.com/dukerupert/shepherd/internal/store"
)

func newTestEngine(t *testing.T, s Store, history ContactHistory, now func() time.Time, opts ...Option) (*Engine, *fakeDirectory) {
	t.Helper()
	dir := &fakeDirectory{people: threeHouseholdRoster()}
	opts = append([]Option{WithClock(now)}, opts...)
	return NewEngine(s, dir, newTestCatalog(t), history, opts...), dir
}

func feb(day int) model.Date {
	return model.NewDate(2026, time.February, day)
}

func TestTodaysFollowupsOverdueScenario(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02", assignment("John Smith", feb(11)))
	e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.February, 21))
	ctx := context.Background()

	got, err := e.TodaysFollowups(ctx, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	f := got[0]
	assert.Equal(t, "John Smith", f.PersonName)
	assert.True(t, f.IsOverdue)
	assert.Equal(t, 10, f.DaysOverdue)
	assert.False(t, f.IsToday)
	assert.Equal(t, StatusOverdue, f.Status)

	got, err = e.TodaysFollowups(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTodaysFollowupsThreshold(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02",
		assignment("Six Days", feb(15)),
		assignment("Seven Days", feb(14)),
	)
	e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.February, 21))

	got, err := e.TodaysFollowups(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Seven Days", got[0].PersonName)
	assert.Equal(t, 7, got[0].DaysOverdue)
	assert.True(t, got[0].IsOverdue)
}

func TestTodaysFollowupsOrdering(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02",
		assignment("Eight Days", feb(13)),
		assignment("Today One", feb(21)),
		assignment("Twenty Days", feb(1)),
		assignment("Tomorrow", feb(23)),
		assignment("Today Two", feb(21)),
		assignment("Also Eight", feb(13)),
	)
	e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.February, 21))

	got, err := e.TodaysFollowups(context.Background(), true)
	require.NoError(t, err)

	want := []string{"Today One", "Today Two", "Twenty Days", "Eight Days", "Also Eight"}
	var names []string
	for _, f := range got {
		names = append(names, f.PersonName)
	}
	assert.Equal(t, want, names)
	assert.True(t, got[0].IsToday)
	assert.False(t, got[0].IsOverdue)
}

func TestTodaysFollowupsEnrichment(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02", assignment("Jane Doe", feb(21)), assignment("No History", feb(21)))
	history := fakeHistory{
		"Jane Doe": {note: "📞 [2026-01-10 18:00] Had a job interview, praying for results", total: 4},
	}
	e, _ := newTestEngine(t, s, history, fixedClock(2026, time.February, 21))

	got, err := e.TodaysFollowups(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, got, 2)

	jane := got[0]
	require.Len(t, jane.ThemeQuestions, 2)
	assert.Equal(t, "How is your family's spiritual rhythm going?", jane.ThemeQuestions[0])
	assert.Equal(t, []string{"How is the job situation going?", "How did the interview go?"}, jane.HistoryQuestions)
	assert.Equal(t, 4, jane.PreviousContacts)
	assert.Equal(t, "Spiritual Growth at Home", jane.Theme)

	other := got[1]
	assert.Empty(t, other.HistoryQuestions)
	assert.Zero(t, other.PreviousContacts)
}

func TestCompletedAssignmentsAreAbsorbed(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02", assignment("Jane Doe", feb(2)))
	ctx := context.Background()

	e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.February, 2))
	done, err := e.MarkComplete(ctx, "jane doe", "")
	require.NoError(t, err)
	require.NotNil(t, done)

	for _, day := range []int{2, 9, 20, 28} {
		e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.February, day))
		today, err := e.TodaysFollowups(ctx, true)
		require.NoError(t, err)
		assert.Empty(t, today, "day %d: completed assignment resurfaced in today's list", day)

		next, err := e.NextFollowup(ctx)
		require.NoError(t, err)
		assert.Nil(t, next, "day %d: completed assignment returned as next", day)
	}
}

func TestNextFollowupPriority(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02",
		assignment("Upcoming Late", feb(27)),
		assignment("Upcoming Soon", feb(23)),
		assignment("Today", feb(21)),
		assignment("Past Recent", feb(19)),
		assignment("Past Oldest", feb(3)),
	)
	ctx := context.Background()
	e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.February, 21))

	for _, want := range []string{"Past Oldest", "Past Recent", "Today", "Upcoming Soon", "Upcoming Late"} {
		next, err := e.NextFollowup(ctx)
		require.NoError(t, err)
		require.NotNil(t, next)
		require.Equal(t, want, next.PersonName)
		_, err = e.MarkComplete(ctx, want, "")
		require.NoError(t, err)
	}

	next, err := e.NextFollowup(ctx)
	require.NoError(t, err)
	assert.Nil(t, next, "want nil when all complete")
}

func TestNextFollowupOverdueFlag(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02", assignment("Two Days", feb(19)))
	e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.February, 21))

	next, err := e.NextFollowup(context.Background())
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.IsOverdue)
	assert.Equal(t, 2, next.DaysOverdue)
	assert.Equal(t, StatusPastDue, next.Status)
}

func TestLazyGenerationOfCurrentMonth(t *testing.T) {
	s := newTestStore(t)
	e, dir := newTestEngine(t, s, nil, fixedClock(2026, time.February, 2))
	ctx := context.Background()

	got, err := e.TodaysFollowups(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, dir.callCount())
	require.Len(t, got, 1)
	assert.Equal(t, "Alice Adams", got[0].PersonName, "due on the first working day")

	_, err = e.NextFollowup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dir.callCount(), "second query must not regenerate")
}

func TestQueriesSurfaceDirectoryFailure(t *testing.T) {
	s := newTestStore(t)
	dir := &fakeDirectory{err: errDirectoryDown}
	e := NewEngine(s, dir, newTestCatalog(t), nil, WithClock(fixedClock(2026, time.February, 2)))
	ctx := context.Background()

	_, err := e.TodaysFollowups(ctx, true)
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	_, err = e.NextFollowup(ctx)
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
}

func TestMarkCompleteScenario(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02", assignment("Jane Doe", feb(9)), assignment("John Smith", feb(11)))
	contactLog := &fakeContactLog{}
	e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.February, 12), WithContactLogger(contactLog))
	ctx := context.Background()

	before, err := e.MonthlySummary(0, 0)
	require.NoError(t, err)

	done, err := e.MarkComplete(ctx, "Jane Doe", "doing well")
	require.NoError(t, err)
	require.NotNil(t, done, "expected Jane Doe to be found")
	assert.Equal(t, "id-Jane Doe", done.PersonID)
	assert.Equal(t, "Jane Doe", done.PersonName)

	after, err := e.MonthlySummary(0, 0)
	require.NoError(t, err)
	assert.Equal(t, before.Completed+1, after.Completed)

	jane := after.Assignments[0]
	require.NotNil(t, jane.CompletedDate)
	assert.True(t, jane.CompletedDate.Equal(feb(12)))
	assert.Equal(t, "doing well", jane.Notes)
	assert.Equal(t, []string{"Jane Doe: doing well"}, contactLog.logged)
}

func TestMarkCompleteLogsCanonicalName(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02", assignment("Jane Doe", feb(9)))
	contactLog := &fakeContactLog{}
	e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.February, 12), WithContactLogger(contactLog))

	done, err := e.MarkComplete(context.Background(), "JANE DOE", "called")
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, []string{"Jane Doe: called"}, contactLog.logged)
}

func TestMarkCompleteNotFound(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02", assignment("Jane Doe", feb(9)))
	contactLog := &fakeContactLog{}
	e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.February, 12), WithContactLogger(contactLog))

	done, err := e.MarkComplete(context.Background(), "Nobody", "note")
	require.NoError(t, err)
	assert.Nil(t, done)
	assert.Empty(t, contactLog.logged, "contact log written for unmatched completion")
}

func TestMarkCompleteIgnoresPriorMonths(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02", assignment("Jane Doe", feb(9)))
	e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.March, 2))

	done, err := e.MarkComplete(context.Background(), "Jane Doe", "")
	require.NoError(t, err)
	assert.Nil(t, done, "prior month's assignment should not be completable")
	assert.False(t, s.Get("2026-02").Assignments[0].Completed)
}

func TestMarkCompleteContactLogFailureIsAbsorbed(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02", assignment("Jane Doe", feb(9)))
	contactLog := &fakeContactLog{err: errors.New("notion down")}
	e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.February, 12), WithContactLogger(contactLog))

	done, err := e.MarkCompleteByID(context.Background(), "id-Jane Doe", "left a voicemail")
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Len(t, contactLog.logged, 1)
}

func TestMarkContactedSkipsContactLog(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02", assignment("Jane Doe", feb(9)))
	contactLog := &fakeContactLog{}
	e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.February, 12), WithContactLogger(contactLog))

	done, err := e.MarkContacted("jane doe", "texted")
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, "Jane Doe", done.PersonName)
	assert.Equal(t, "texted", done.Notes)
	assert.Empty(t, contactLog.logged)

	done, err = e.MarkContacted("Nobody", "")
	require.NoError(t, err)
	assert.Nil(t, done)
}

func TestMonthlySummary(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02",
		assignment("Cara Cole", feb(20)),
		assignment("Alice Adams", feb(2)),
		assignment("Bob Baker", feb(11)),
	)
	e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.February, 12))
	_, err := e.MarkComplete(context.Background(), "Bob Baker", "")
	require.NoError(t, err)

	sum, err := e.MonthlySummary(2026, time.February)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalHouseholds)
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 2, sum.Remaining)
	assert.Equal(t, "33.3%", sum.CompletionRate)
	for i, want := range []string{"Alice Adams", "Bob Baker", "Cara Cole"} {
		assert.Equal(t, want, sum.Assignments[i].PersonName)
	}
}

func TestMonthlySummaryEmptyMonth(t *testing.T) {
	s := newTestStore(t)
	putState(t, s, "2026-02")
	e, _ := newTestEngine(t, s, nil, fixedClock(2026, time.February, 12))

	sum, err := e.MonthlySummary(2026, time.February)
	require.NoError(t, err)
	assert.Equal(t, "0%", sum.CompletionRate)
	assert.NotNil(t, sum.Assignments, "assignments should be an empty slice, not nil")
}

func TestMonthlySummaryNoData(t *testing.T) {
	e, dir := newTestEngine(t, newTestStore(t), nil, fixedClock(2026, time.February, 12))

	_, err := e.MonthlySummary(2025, time.December)
	assert.ErrorIs(t, err, ErrNoDataForMonth)
	assert.Zero(t, dir.callCount(), "summary must not trigger generation")
}

// A long-running process and a one-shot command share the state file. The
// long-running side must see the command's completion and must not drop it
// when it later writes the next month.
func TestEnginesSharingFileKeepCompletions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "followup_state.json")
	ctx := context.Background()

	daemonStore := store.NewFollowupStore(store.NewFileBackend(path))
	require.NoError(t, daemonStore.Load())
	now := time.Date(2026, time.February, 2, 9, 0, 0, 0, time.UTC)
	daemon, _ := newTestEngine(t, daemonStore, nil, func() time.Time { return now })

	_, err := daemon.TodaysFollowups(ctx, true)
	require.NoError(t, err)

	cliStore := store.NewFollowupStore(store.NewFileBackend(path))
	require.NoError(t, cliStore.Load())
	cli, _ := newTestEngine(t, cliStore, nil, fixedClock(2026, time.February, 12))
	done, err := cli.MarkComplete(ctx, "Bob Baker", "called")
	require.NoError(t, err)
	require.NotNil(t, done)

	next, err := daemon.NextFollowup(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.NotEqual(t, "Bob Baker", next.PersonName)

	sum, err := daemon.MonthlySummary(2026, time.February)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Completed)

	// Month rollover: the daemon generates March and rewrites the file.
	now = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	_, err = daemon.TodaysFollowups(ctx, true)
	require.NoError(t, err)

	check := store.NewFollowupStore(store.NewFileBackend(path))
	require.NoError(t, check.Load())
	require.NotNil(t, check.Get("2026-03"))
	february := check.Get("2026-02")
	require.NotNil(t, february)
	assert.True(t, february.Assignments[1].Completed, "completion written by the other process was lost")
}
