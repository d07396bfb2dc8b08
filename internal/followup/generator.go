package followup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dukerupert/shepherd/internal/model"
)

// Generator builds a month's assignments: one adult per household, spread
// evenly across the month's working days.
type Generator struct {
	// mu serializes generation so concurrent callers cannot both build
	// the same month.
	mu        sync.Mutex
	store     Store
	directory ContactDirectory
	themes    ThemeCatalog
	now       func() time.Time
}

func NewGenerator(store Store, directory ContactDirectory, themes ThemeCatalog) *Generator {
	return &Generator{
		store:     store,
		directory: directory,
		themes:    themes,
		now:       time.Now,
	}
}

// Generate returns the month's state, creating and persisting it if it does
// not exist yet. With force set, an existing month is rebuilt from the
// current roster and its completion state is discarded.
func (g *Generator) Generate(ctx context.Context, year int, month time.Month, force bool) (*model.MonthlyState, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("generate: invalid month %d", month)
	}
	key := model.MonthKey(year, month)

	g.mu.Lock()
	defer g.mu.Unlock()

	if !force {
		if existing := g.store.Get(key); existing != nil {
			return existing, nil
		}
	}

	roster, err := g.directory.ShepherdingRoster(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w: %w", key, ErrDirectoryUnavailable, err)
	}

	var adults []model.Person
	for _, p := range roster {
		if !p.IsChild {
			adults = append(adults, p)
		}
	}
	households := GroupHouseholds(adults)
	workingDays := WorkingDays(year, month)

	assignments := make([]model.Assignment, 0, len(households))
	for i, hh := range households {
		primary := hh.Members[0]
		day := workingDays[(i*len(workingDays))/len(households)]
		assignments = append(assignments, model.Assignment{
			PersonID:      primary.ID,
			PersonName:    primary.Name,
			HouseholdID:   hh.ID,
			HouseholdName: hh.Name,
			Phone:         primary.Phone,
			Email:         primary.Email,
			AssignedDate:  day,
		})
	}

	state := &model.MonthlyState{
		Month:       key,
		Theme:       themeFor(g.themes, key).Name,
		Assignments: assignments,
		CreatedAt:   g.now().UTC(),
	}
	if err := g.store.Put(state); err != nil {
		return nil, fmt.Errorf("generate %s: %w", key, err)
	}
	return state, nil
}

// GroupHouseholds groups people by household in first-seen order, keeping
// each household's members in input order. People without a household id
// become their own single-member household keyed by person id.
func GroupHouseholds(people []model.Person) []model.Household {
	var households []model.Household
	index := make(map[string]int)

	for _, p := range people {
		id, name := p.HouseholdID, p.HouseholdName
		if id == "" {
			id, name = "person:"+p.ID, p.Name
		}
		i, ok := index[id]
		if !ok {
			i = len(households)
			index[id] = i
			households = append(households, model.Household{ID: id, Name: name})
		}
		households[i].Members = append(households[i].Members, p)
	}
	return households
}

// WorkingDays returns every day of the month except Sundays, ascending.
func WorkingDays(year int, month time.Month) []model.Date {
	var days []model.Date
	for d := model.NewDate(year, month, 1); d.Month() == month; d = d.AddDays(1) {
		if d.Weekday() != time.Sunday {
			days = append(days, d)
		}
	}
	return days
}
