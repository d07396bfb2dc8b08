// Package pco reads the shepherding list from the Planning Center People API.
package pco

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/dukerupert/shepherd/internal/model"
)

const DefaultBaseURL = "https://api.planningcenteronline.com"

// Planning Center allows 100 requests per 20 seconds per application.
const defaultRequestInterval = 200 * time.Millisecond

type Config struct {
	AppID   string
	Secret  string
	ListID  string
	BaseURL string
}

type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithLimiter(l *rate.Limiter) Option {
	return func(cl *Client) {
		cl.limiter = l
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	c := &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(defaultRequestInterval), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if credentials and a list id are set.
func (c *Client) Configured() bool {
	return c.config.AppID != "" && c.config.Secret != "" && c.config.ListID != ""
}

type resource struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id"`
	Attributes    json.RawMessage         `json:"attributes"`
	Relationships map[string]relationship `json:"relationships"`
}

type relationship struct {
	Data []resourceRef `json:"data"`
}

type resourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type listResponse struct {
	Data     []resource `json:"data"`
	Included []resource `json:"included"`
	Links    struct {
		Next string `json:"next"`
	} `json:"links"`
}

type personAttrs struct {
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Child     bool   `json:"child"`
}

type contactAttrs struct {
	Address string `json:"address"`
	Number  string `json:"number"`
	E164    string `json:"e164"`
	Primary bool   `json:"primary"`
}

type householdAttrs struct {
	Name string `json:"name"`
}

type rosterEntry struct {
	person    model.Person
	firstName string
	lastName  string
}

// ShepherdingRoster fetches every person on the configured list with their
// primary phone, primary email and first household. People are returned
// ordered by last name, first name and id so household representatives are
// chosen the same way on every run.
func (c *Client) ShepherdingRoster(ctx context.Context) ([]model.Person, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("planning center client not configured")
	}

	q := url.Values{}
	q.Set("include", "emails,phone_numbers,households")
	q.Set("per_page", "100")
	next := fmt.Sprintf("%s/people/v2/lists/%s/people?%s", c.config.BaseURL, url.PathEscape(c.config.ListID), q.Encode())

	var entries []rosterEntry
	for next != "" {
		page, err := c.get(ctx, next)
		if err != nil {
			return nil, err
		}
		parsed, err := parsePage(page)
		if err != nil {
			return nil, err
		}
		entries = append(entries, parsed...)
		next = page.Links.Next
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.lastName != b.lastName {
			return a.lastName < b.lastName
		}
		if a.firstName != b.firstName {
			return a.firstName < b.firstName
		}
		return a.person.ID < b.person.ID
	})

	people := make([]model.Person, len(entries))
	for i, e := range entries {
		people[i] = e.person
	}
	return people, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (*listResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("planning center rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.config.AppID, c.config.Secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("planning center request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("planning center API returned status %d", resp.StatusCode)
	}

	var page listResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode planning center response: %w", err)
	}
	return &page, nil
}

func parsePage(page *listResponse) ([]rosterEntry, error) {
	included := make(map[resourceRef]resource, len(page.Included))
	for _, r := range page.Included {
		included[resourceRef{Type: r.Type, ID: r.ID}] = r
	}

	entries := make([]rosterEntry, 0, len(page.Data))
	for _, r := range page.Data {
		var attrs personAttrs
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("decode person %s: %w", r.ID, err)
		}
		p := model.Person{
			ID:      r.ID,
			Name:    attrs.Name,
			IsChild: attrs.Child,
		}

		p.Phone = primaryContact(included, r.Relationships["phone_numbers"], "PhoneNumber", func(a contactAttrs) string {
			if a.Number != "" {
				return a.Number
			}
			return a.E164
		})
		p.Email = primaryContact(included, r.Relationships["emails"], "Email", func(a contactAttrs) string {
			return a.Address
		})

		if refs := r.Relationships["households"].Data; len(refs) > 0 {
			if hh, ok := included[resourceRef{Type: "Household", ID: refs[0].ID}]; ok {
				var hattrs householdAttrs
				if err := json.Unmarshal(hh.Attributes, &hattrs); err != nil {
					return nil, fmt.Errorf("decode household %s: %w", hh.ID, err)
				}
				p.HouseholdID = hh.ID
				p.HouseholdName = hattrs.Name
			}
		}

		entries = append(entries, rosterEntry{person: p, firstName: attrs.FirstName, lastName: attrs.LastName})
	}
	return entries, nil
}

// primaryContact returns the value of the first included contact marked
// primary, else the first one found.
func primaryContact(included map[resourceRef]resource, rel relationship, typ string, value func(contactAttrs) string) string {
	var first string
	for _, ref := range rel.Data {
		r, ok := included[resourceRef{Type: typ, ID: ref.ID}]
		if !ok {
			continue
		}
		var attrs contactAttrs
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			continue
		}
		v := value(attrs)
		if attrs.Primary {
			return v
		}
		if first == "" {
			first = v
		}
	}
	return first
}
