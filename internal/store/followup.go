package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/shepherd/internal/model"
)

// ErrStoreCorrupted is returned by Load when the persisted document cannot
// be decoded or fails validation. The store is left empty and usable.
var ErrStoreCorrupted = errors.New("follow-up store corrupted")

const documentVersion = 1

type document struct {
	Version int                            `json:"version"`
	Months  map[string]*model.MonthlyState `json:"months"`
}

// legacyState is a month as written before the document was versioned:
// the top level maps month keys straight to states, and created_at has no
// zone.
type legacyState struct {
	Month       string             `json:"month"`
	Theme       string             `json:"theme"`
	Assignments []model.Assignment `json:"assignments"`
	CreatedAt   string             `json:"created_at"`
}

var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// FollowupStore owns the month key to MonthlyState mapping. Every mutation
// re-reads the document if another process changed it, then rewrites it
// whole. Within a process it is safe for concurrent use.
type FollowupStore struct {
	mu      sync.RWMutex
	backend Backend
	months  map[string]*model.MonthlyState
	loaded  bool
	stamp   string
	// corrupt holds an unreadable document until it has been preserved.
	corrupt []byte
}

func NewFollowupStore(backend Backend) *FollowupStore {
	return &FollowupStore{
		backend: backend,
		months:  make(map[string]*model.MonthlyState),
	}
}

// Load replaces the in-memory map with the persisted document. A missing
// document yields an empty map and no error.
func (s *FollowupStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Refresh reloads the document if it changed since this store last read or
// wrote it. Backends that are not Stampers are reloaded every time.
func (s *FollowupStore) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked()
}

func (s *FollowupStore) refreshLocked() error {
	if _, ok := s.backend.(Stamper); ok && s.loaded {
		if stamp := s.readStamp(); stamp != "" && stamp == s.stamp {
			return nil
		}
	}
	return s.loadLocked()
}

func (s *FollowupStore) readStamp() string {
	st, ok := s.backend.(Stamper)
	if !ok {
		return ""
	}
	stamp, err := st.Stamp()
	if err != nil {
		return ""
	}
	return stamp
}

func (s *FollowupStore) loadLocked() error {
	stamp := s.readStamp()
	data, err := s.backend.Read()
	if err != nil {
		return fmt.Errorf("load follow-up state: %w", err)
	}

	s.loaded = true
	s.stamp = stamp
	s.corrupt = nil
	s.months = make(map[string]*model.MonthlyState)
	if len(data) == 0 {
		return nil
	}

	months, err := decodeDocument(data)
	if err != nil {
		s.corrupt = data
		return fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
	}
	s.months = months
	return nil
}

func decodeDocument(data []byte) (map[string]*model.MonthlyState, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	var months map[string]*model.MonthlyState
	if _, versioned := top["version"]; versioned {
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		if doc.Version != documentVersion {
			return nil, fmt.Errorf("unsupported document version %d", doc.Version)
		}
		months = doc.Months
	} else {
		var err error
		if months, err = decodeLegacy(top); err != nil {
			return nil, err
		}
	}

	if err := validateMonths(months); err != nil {
		return nil, err
	}
	if months == nil {
		months = make(map[string]*model.MonthlyState)
	}
	return months, nil
}

func decodeLegacy(top map[string]json.RawMessage) (map[string]*model.MonthlyState, error) {
	months := make(map[string]*model.MonthlyState, len(top))
	for key, raw := range top {
		var ls legacyState
		if err := json.Unmarshal(raw, &ls); err != nil {
			return nil, fmt.Errorf("decode month %s: %w", key, err)
		}
		createdAt, err := parseLegacyTime(ls.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("month %s: %w", key, err)
		}
		months[key] = &model.MonthlyState{
			Month:       ls.Month,
			Theme:       ls.Theme,
			Assignments: ls.Assignments,
			CreatedAt:   createdAt,
		}
	}
	return months, nil
}

// parseLegacyTime accepts zoned and naive timestamps. Naive ones are local.
func parseLegacyTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised created_at %q", s)
}

func validateMonths(months map[string]*model.MonthlyState) error {
	for key, state := range months {
		if state == nil {
			return fmt.Errorf("month %s: empty state", key)
		}
		if _, _, err := model.ParseMonthKey(key); err != nil {
			return err
		}
		if state.Month != key {
			return fmt.Errorf("month %s: state labelled %q", key, state.Month)
		}
		for i, a := range state.Assignments {
			if a.AssignedDate.IsZero() {
				return fmt.Errorf("month %s: assignment %d has no assigned date", key, i)
			}
			if a.AssignedDate.MonthKey() != key {
				return fmt.Errorf("month %s: assignment %d dated %s", key, i, a.AssignedDate)
			}
		}
	}
	return nil
}

// ValidateDocument reports whether data would load cleanly. Errors wrap
// ErrStoreCorrupted.
func ValidateDocument(data []byte) error {
	if _, err := decodeDocument(data); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
	}
	return nil
}

// Save serializes the entire map and overwrites the document.
func (s *FollowupStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *FollowupStore) saveLocked() error {
	if s.corrupt != nil {
		if p, ok := s.backend.(Preserver); ok {
			suffix := time.Now().UTC().Format("20060102T150405Z")
			if _, err := p.Preserve(s.corrupt, suffix); err != nil {
				return fmt.Errorf("save follow-up state: %w", err)
			}
		}
		s.corrupt = nil
	}

	data, err := json.MarshalIndent(document{Version: documentVersion, Months: s.months}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode follow-up state: %w", err)
	}
	if err := s.backend.Write(data); err != nil {
		return fmt.Errorf("save follow-up state: %w", err)
	}
	s.loaded = true
	s.stamp = s.readStamp()
	return nil
}

// prepareWrite brings the map up to date before a mutation. A corrupted
// document is not an obstacle: it is preserved and replaced on save.
func (s *FollowupStore) prepareWrite() error {
	if err := s.refreshLocked(); err != nil && !errors.Is(err, ErrStoreCorrupted) {
		return err
	}
	return nil
}

// Get returns a copy of the month's state, or nil if it was never generated.
func (s *FollowupStore) Get(month string) *model.MonthlyState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.months[month].Clone()
}

// Put replaces the month's state and persists the document.
func (s *FollowupStore) Put(state *model.MonthlyState) error {
	if state == nil {
		return errors.New("put follow-up state: nil state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.prepareWrite(); err != nil {
		return err
	}

	prev, had := s.months[state.Month]
	s.months[state.Month] = state.Clone()
	if err := s.saveLocked(); err != nil {
		if had {
			s.months[state.Month] = prev
		} else {
			delete(s.months, state.Month)
		}
		return err
	}
	return nil
}

// Months returns the generated month keys in ascending order.
func (s *FollowupStore) Months() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.months))
	for k := range s.months {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarkComplete completes the first assignment in the month whose person
// name matches case-insensitively and returns it, or nil if none matched.
func (s *FollowupStore) MarkComplete(month, personName, notes string, today model.Date) (*model.Assignment, error) {
	return s.complete(month, notes, today, func(a *model.Assignment) bool {
		return strings.EqualFold(a.PersonName, personName)
	})
}

// MarkCompleteByID completes the month's assignment for the given person id.
func (s *FollowupStore) MarkCompleteByID(month, personID, notes string, today model.Date) (*model.Assignment, error) {
	return s.complete(month, notes, today, func(a *model.Assignment) bool {
		return a.PersonID == personID
	})
}

func (s *FollowupStore) complete(month, notes string, today model.Date, match func(*model.Assignment) bool) (*model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.prepareWrite(); err != nil {
		return nil, err
	}

	state, ok := s.months[month]
	if !ok {
		return nil, nil
	}
	for i := range state.Assignments {
		a := &state.Assignments[i]
		if !match(a) {
			continue
		}
		prev := *a
		completed := today
		a.Completed = true
		a.CompletedDate = &completed
		a.Notes = notes
		if err := s.saveLocked(); err != nil {
			*a = prev
			return nil, err
		}

		done := *a
		d := *a.CompletedDate
		done.CompletedDate = &d
		return &done, nil
	}
	return nil, nil
}
