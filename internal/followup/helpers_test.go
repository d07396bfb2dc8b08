package followup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/shepherd/internal/model"
	"github.com/dukerupert/shepherd/internal/store"
	"github.com/dukerupert/shepherd/internal/theme"
)

type memBackend struct {
	data []byte
}

func (b *memBackend) Read() ([]byte, error)   { return b.data, nil }
func (b *memBackend) Write(data []byte) error { b.data = data; return nil }

type fakeDirectory struct {
	mu     sync.Mutex
	people []model.Person
	err    error
	calls  int
}

func (d *fakeDirectory) ShepherdingRoster(ctx context.Context) ([]model.Person, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.people, nil
}

func (d *fakeDirectory) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type historyEntry struct {
	note  string
	total int
}

type fakeHistory map[string]historyEntry

func (h fakeHistory) LastNote(ctx context.Context, name string) (string, int, bool) {
	e, ok := h[name]
	return e.note, e.total, ok
}

type fakeContactLog struct {
	logged []string
	err    error
}

func (l *fakeContactLog) LogContact(ctx context.Context, name, note string) error {
	l.logged = append(l.logged, name+": "+note)
	return l.err
}

var errDirectoryDown = errors.New("401 unauthorized")

func fixedClock(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 9, 30, 0, 0, time.UTC) }
}

func newTestStore(t *testing.T) *store.FollowupStore {
	t.Helper()
	s := store.NewFollowupStore(&memBackend{})
	require.NoError(t, s.Load())
	return s
}

func newTestCatalog(t *testing.T) *theme.Catalog {
	t.Helper()
	c, err := theme.NewCatalog()
	require.NoError(t, err)
	return c
}

// threeHouseholdRoster has households A (two adults and a child), B and C.
func threeHouseholdRoster() []model.Person {
	return []model.Person{
		{ID: "a1", Name: "Alice Adams", HouseholdID: "A", HouseholdName: "Adams", Phone: "555-0101"},
		{ID: "a2", Name: "Aaron Adams", HouseholdID: "A", HouseholdName: "Adams"},
		{ID: "a3", Name: "Annie Adams", HouseholdID: "A", HouseholdName: "Adams", IsChild: true},
		{ID: "b1", Name: "Bob Baker", HouseholdID: "B", HouseholdName: "Baker", Email: "bob@example.com"},
		{ID: "c1", Name: "Cara Cole", HouseholdID: "C", HouseholdName: "Cole"},
	}
}

func putState(t *testing.T, s *store.FollowupStore, month string, assignments ...model.Assignment) {
	t.Helper()
	require.NoError(t, s.Put(&model.MonthlyState{
		Month:       month,
		Theme:       "Spiritual Growth at Home",
		Assignments: assignments,
		CreatedAt:   time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
	}))
}

func assignment(name string, d model.Date) model.Assignment {
	return model.Assignment{
		PersonID:      "id-" + name,
		PersonName:    name,
		HouseholdID:   "hh-" + name,
		HouseholdName: name + " Household",
		AssignedDate:  d,
	}
}
