// Package notion reads and writes contact notes on person pages in a Notion
// people database.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
)

// Contact notes start with one of these markers; other paragraphs on a
// person page are ignored.
var noteMarkers = []string{"📞", "💬", "🤝", "📧", "📝"}

var methodMarkers = map[string]string{
	"call":      "📞",
	"text":      "💬",
	"in-person": "🤝",
	"email":     "📧",
}

// ErrPersonNotFound means no page in the people database matched the name.
var ErrPersonNotFound = errors.New("notion person page not found")

// MethodMarker returns the note prefix for a contact method. Unknown methods
// get the generic note marker.
func MethodMarker(method string) string {
	if m, ok := methodMarkers[strings.ToLower(method)]; ok {
		return m
	}
	return "📝"
}

type Config struct {
	Token          string
	PeopleDatabase string
	BaseURL        string
}

type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(cl *Client) {
		cl.now = now
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	c := &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Notion averages three requests per second per integration.
		limiter: rate.NewLimiter(3, 3),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the token and people database are set.
func (c *Client) Configured() bool {
	return c.config.Token != "" && c.config.PeopleDatabase != ""
}

type richText struct {
	PlainText string `json:"plain_text"`
}

type page struct {
	ID     string `json:"id"`
	Parent struct {
		DatabaseID string `json:"database_id"`
	} `json:"parent"`
	Properties struct {
		Name struct {
			Title []richText `json:"title"`
		} `json:"Name"`
	} `json:"properties"`
}

type searchResponse struct {
	Results []page `json:"results"`
}

type block struct {
	Type      string `json:"type"`
	Paragraph struct {
		RichText []richText `json:"rich_text"`
	} `json:"paragraph"`
}

type childrenResponse struct {
	Results    []block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor string  `json:"next_cursor"`
}

// LastNote returns the most recent contact note on the person's page and the
// number of contact notes found. Any failure is logged and reported as
// ok == false.
func (c *Client) LastNote(ctx context.Context, personName string) (string, int, bool) {
	if !c.Configured() {
		return "", 0, false
	}
	notes, err := c.ContactNotes(ctx, personName)
	if err != nil {
		c.logger.Debug("notion contact history failed", "person", personName, "error", err)
		return "", 0, false
	}
	if len(notes) == 0 {
		return "", 0, true
	}
	return notes[len(notes)-1], len(notes), true
}

// ContactNotes returns every contact note on the person's page, oldest first.
func (c *Client) ContactNotes(ctx context.Context, personName string) ([]string, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("notion client not configured")
	}
	pageID, err := c.findPerson(ctx, personName)
	if err != nil {
		return nil, err
	}
	if pageID == "" {
		return nil, fmt.Errorf("%w: %s", ErrPersonNotFound, personName)
	}
	return c.contactNotes(ctx, pageID)
}

// LogContact appends a timestamped contact note to the person's page.
func (c *Client) LogContact(ctx context.Context, personName, note string) error {
	return c.LogContactVia(ctx, personName, "", note)
}

// LogContactVia is LogContact with the note prefixed by the contact method's
// marker (call, text, in-person or email).
func (c *Client) LogContactVia(ctx context.Context, personName, method, note string) error {
	if !c.Configured() {
		return fmt.Errorf("notion client not configured")
	}
	pageID, err := c.findPerson(ctx, personName)
	if err != nil {
		return err
	}
	if pageID == "" {
		return fmt.Errorf("%w: %s", ErrPersonNotFound, personName)
	}

	text := fmt.Sprintf("%s [%s] %s", MethodMarker(method), c.now().Format("2006-01-02 15:04"), note)
	payload := map[string]any{
		"children": []any{
			map[string]any{
				"type": "paragraph",
				"paragraph": map[string]any{
					"rich_text": []any{
						map[string]any{"type": "text", "text": map[string]string{"content": text}},
					},
				},
			},
		},
	}
	return c.do(ctx, http.MethodPatch, "/blocks/"+pageID+"/children", payload, nil)
}

// nameVariants lists the search terms tried in order. Person pages are
// titled like "@JohnSmith".
func nameVariants(name string) []string {
	compact := strings.Join(strings.Fields(name), "")
	return []string{"@" + compact, name}
}

func (c *Client) findPerson(ctx context.Context, name string) (string, error) {
	wantDB := normalizeID(c.config.PeopleDatabase)

	var lastErr error
	for _, term := range nameVariants(name) {
		var resp searchResponse
		err := c.do(ctx, http.MethodPost, "/search", map[string]any{
			"query":  term,
			"filter": map[string]string{"property": "object", "value": "page"},
		}, &resp)
		if err != nil {
			lastErr = err
			continue
		}

		needle := strings.ToLower(term)
		for _, p := range resp.Results {
			if normalizeID(p.Parent.DatabaseID) != wantDB || len(p.Properties.Name.Title) == 0 {
				continue
			}
			title := strings.ToLower(p.Properties.Name.Title[0].PlainText)
			if title == "" {
				continue
			}
			if strings.Contains(title, needle) || strings.Contains(needle, title) {
				return p.ID, nil
			}
		}
	}
	return "", lastErr
}

func (c *Client) contactNotes(ctx context.Context, pageID string) ([]string, error) {
	var notes []string
	cursor := ""
	for {
		path := "/blocks/" + pageID + "/children?page_size=100"
		if cursor != "" {
			path += "&start_cursor=" + cursor
		}
		var resp childrenResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, err
		}
		for _, b := range resp.Results {
			if b.Type != "paragraph" || len(b.Paragraph.RichText) == 0 {
				continue
			}
			text := b.Paragraph.RichText[0].PlainText
			if isContactNote(text) {
				notes = append(notes, text)
			}
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return notes, nil
		}
		cursor = resp.NextCursor
	}
}

func isContactNote(text string) bool {
	for _, m := range noteMarkers {
		if strings.HasPrefix(text, m) {
			return true
		}
	}
	return false
}

func normalizeID(id string) string {
	return strings.ReplaceAll(id, "-", "")
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notion rate limit: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal notion request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Notion-Version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notion API %s %s returned status %d", method, strings.SplitN(path, "?", 2)[0], resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode notion response: %w", err)
	}
	return nil
}
