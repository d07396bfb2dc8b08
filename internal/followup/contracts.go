package followup

import (
	"context"

	"github.com/dukerupert/shepherd/internal/model"
	"github.com/dukerupert/shepherd/internal/theme"
)

// ContactDirectory supplies the current shepherding roster.
type ContactDirectory interface {
	ShepherdingRoster(ctx context.Context) ([]model.Person, error)
}

// ContactHistory looks up the most recent contact note for a person and the
// number of notes on record. ok is false when there is no history or the
// lookup failed; implementations never return errors.
type ContactHistory interface {
	LastNote(ctx context.Context, personName string) (note string, total int, ok bool)
}

// ContactLogger records a completed follow-up's note in the contact history.
type ContactLogger interface {
	LogContact(ctx context.Context, personName, note string) error
}

type ThemeCatalog interface {
	Lookup(month string) (theme.Theme, bool)
}

// Store is the persistence the generator and engine work through. Refresh
// picks up changes written by other processes; mutations must apply to the
// latest document rather than a stale copy.
type Store interface {
	Refresh() error
	Get(month string) *model.MonthlyState
	Put(state *model.MonthlyState) error
	MarkComplete(month, personName, notes string, today model.Date) (*model.Assignment, error)
	MarkCompleteByID(month, personID, notes string, today model.Date) (*model.Assignment, error)
}

func themeFor(c ThemeCatalog, month string) theme.Theme {
	if c != nil {
		if t, ok := c.Lookup(month); ok {
			return t
		}
	}
	t := theme.Default
	t.Month = month
	return t
}
