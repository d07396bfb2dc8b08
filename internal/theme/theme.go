// Package theme maps month keys to pastoral themes and their suggested
// questions. Themes are static configuration: a built-in set, optionally
// extended or overridden by a YAML file.
package theme

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/shepherd/internal/model"
)

//go:embed themes.yaml
var builtin []byte

type Theme struct {
	Month     string   `yaml:"-" json:"month,omitempty"`
	Name      string   `yaml:"name" json:"name"`
	Questions []string `yaml:"questions" json:"questions"`
}

// Default is used for months without a configured theme.
var Default = Theme{
	Name:      "General Check-in",
	Questions: []string{"How are you doing?", "Any prayer requests?"},
}

type Catalog struct {
	themes map[string]Theme
}

// NewCatalog returns a catalog holding the built-in themes.
func NewCatalog() (*Catalog, error) {
	c := &Catalog{themes: make(map[string]Theme)}
	if err := c.merge(builtin); err != nil {
		return nil, fmt.Errorf("builtin themes: %w", err)
	}
	return c, nil
}

// Load returns the built-in catalog extended by the YAML file at path.
// Entries in the file replace built-in entries for the same month. An empty
// path or a missing file yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	c, err := NewCatalog()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read themes file: %w", err)
	}
	if err := c.merge(data); err != nil {
		return nil, fmt.Errorf("themes file %s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) merge(data []byte) error {
	var entries map[string]Theme
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode themes: %w", err)
	}
	for month, t := range entries {
		if _, _, err := model.ParseMonthKey(month); err != nil {
			return err
		}
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return fmt.Errorf("theme %s: name is required", month)
		}
		t.Month = month
		c.themes[month] = t
	}
	return nil
}

// Lookup returns the theme configured for the month key.
func (c *Catalog) Lookup(month string) (Theme, bool) {
	t, ok := c.themes[month]
	return t, ok
}

// LookupOrDefault returns the month's theme, falling back to Default.
func (c *Catalog) LookupOrDefault(month string) Theme {
	if t, ok := c.Lookup(month); ok {
		return t
	}
	d := Default
	d.Month = month
	return d
}

// All returns every configured theme ordered by month.
func (c *Catalog) All() []Theme {
	themes := make([]Theme, 0, len(c.themes))
	for _, t := range c.themes {
		themes = append(themes, t)
	}
	sort.Slice(themes, func(i, j int) bool { return themes[i].Month < themes[j].Month })
	return themes
}
