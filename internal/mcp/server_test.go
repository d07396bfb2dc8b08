package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/shepherd/internal/followup"
	"github.com/dukerupert/shepherd/internal/model"
	"github.com/dukerupert/shepherd/internal/store"
	"github.com/dukerupert/shepherd/internal/theme"
)

type staticDirectory []model.Person

func (d staticDirectory) ShepherdingRoster(ctx context.Context) ([]model.Person, error) {
	return d, nil
}

type fakeContacts struct {
	notes  map[string][]string
	logged []string
}

func (c *fakeContacts) ContactNotes(ctx context.Context, name string) ([]string, error) {
	return c.notes[name], nil
}

func (c *fakeContacts) LogContactVia(ctx context.Context, name, method, note string) error {
	c.logged = append(c.logged, name+"|"+method+"|"+note)
	return nil
}

var testRoster = staticDirectory{
	{ID: "1", Name: "Alice Adams", HouseholdID: "A", HouseholdName: "Adams", Phone: "555-0101"},
	{ID: "3", Name: "Annie Adams", HouseholdID: "A", HouseholdName: "Adams", IsChild: true},
	{ID: "2", Name: "Bob Baker", HouseholdID: "B", HouseholdName: "Baker", Email: "bob@example.com"},
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s := store.NewFollowupStore(store.NewFileBackend(filepath.Join(t.TempDir(), "state.json")))
	require.NoError(t, s.Load())
	catalog, err := theme.NewCatalog()
	require.NoError(t, err)

	clock := func() time.Time { return time.Date(2026, time.February, 2, 8, 0, 0, 0, time.UTC) }
	engine := followup.NewEngine(s, testRoster, catalog, nil, followup.WithClock(clock))
	return NewServer(engine, "test", slog.Default(), opts...)
}

// session runs the given request lines through Run and decodes each response line.
func session(t *testing.T, srv *Server, lines ...string) []Response {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, srv.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out))

	var responses []Response
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func call(id int, tool string, args map[string]any) string {
	data, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params":  map[string]any{"name": tool, "arguments": args},
	})
	return string(data)
}

func toolText(t *testing.T, resp Response) (string, bool) {
	t.Helper()
	require.Nil(t, resp.Error)
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var res ToolResult
	require.NoError(t, json.Unmarshal(data, &res))
	require.Len(t, res.Content, 1)
	return res.Content[0].Text, res.IsError
}

func TestInitializeAndList(t *testing.T) {
	responses := session(t, newTestServer(t),
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	)
	require.Len(t, responses, 2)

	assert.Contains(t, mustJSON(t, responses[0].Result), `"name":"shepherd"`)

	list := mustJSON(t, responses[1].Result)
	for _, name := range []string{"followups_today", "followup_next", "followup_complete", "followup_summary", "followup_generate", "contact_history", "contact_log", "shepherding_list"} {
		assert.Contains(t, list, `"`+name+`"`)
	}
}

func TestProtocolErrors(t *testing.T) {
	responses := session(t, newTestServer(t),
		`not json`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`,
		call(4, "no_such_tool", nil),
	)
	require.Len(t, responses, 3)
	assert.Equal(t, codeParseError, responses[0].Error.Code)
	assert.Equal(t, codeMethodNotFound, responses[1].Error.Code)
	assert.Equal(t, codeMethodNotFound, responses[2].Error.Code)
}

func TestFollowupTools(t *testing.T) {
	responses := session(t, newTestServer(t),
		call(1, "followups_today", nil),
		call(2, "followup_complete", map[string]any{"person_name": "alice adams", "notes": "Coffee on Sunday"}),
		call(3, "followup_next", nil),
		call(4, "followup_summary", map[string]any{"month": "2026-02"}),
	)
	require.Len(t, responses, 4)

	today, isErr := toolText(t, responses[0])
	assert.False(t, isErr)
	assert.Contains(t, today, "Follow up with Alice Adams")
	assert.Contains(t, today, "Spiritual Growth at Home")

	done, isErr := toolText(t, responses[1])
	assert.False(t, isErr)
	assert.Equal(t, "✓ Marked follow-up with Alice Adams as complete", done)

	next, _ := toolText(t, responses[2])
	assert.Contains(t, next, "Bob Baker")

	summary, _ := toolText(t, responses[3])
	assert.Contains(t, summary, "Progress: 1/2 (50.0%)")
}

func TestCompleteUnknownPerson(t *testing.T) {
	srv := newTestServer(t)
	responses := session(t, srv,
		call(1, "followup_generate", nil),
		call(2, "followup_complete", map[string]any{"person_name": "Zed"}),
		call(3, "followup_complete", map[string]any{}),
	)
	require.Len(t, responses, 3)

	gen, _ := toolText(t, responses[0])
	assert.Equal(t, "2 follow-ups for 2026-02 (theme: Spiritual Growth at Home)", gen)

	text, isErr := toolText(t, responses[1])
	assert.True(t, isErr)
	assert.Contains(t, text, "Zed has no follow-up in 2026-02")

	_, isErr = toolText(t, responses[2])
	assert.True(t, isErr)
}

func TestSummaryWithoutData(t *testing.T) {
	responses := session(t, newTestServer(t), call(1, "followup_summary", map[string]any{"month": "2025-11"}))
	require.Len(t, responses, 1)

	text, isErr := toolText(t, responses[0])
	assert.False(t, isErr)
	assert.Equal(t, "No follow-ups generated for 2025-11 yet.", text)
}

func TestGenerateBadMonth(t *testing.T) {
	responses := session(t, newTestServer(t), call(1, "followup_generate", map[string]any{"month": "Feb"}))
	_, isErr := toolText(t, responses[0])
	assert.True(t, isErr)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestContactHistory(t *testing.T) {
	contacts := &fakeContacts{notes: map[string][]string{
		"Alice Adams": {
			"📞 [2026-01-05 18:00] Caught up after the holidays",
			"💬 [2026-01-20 09:15] Starting a new job next week",
		},
	}}
	responses := session(t, newTestServer(t, WithContacts(contacts)),
		call(1, "contact_history", map[string]any{"person_name": "Alice Adams"}),
		call(2, "contact_history", map[string]any{"person_name": "Bob Baker"}),
		call(3, "contact_history", map[string]any{}),
	)
	require.Len(t, responses, 3)

	text, isErr := toolText(t, responses[0])
	assert.False(t, isErr)
	assert.Contains(t, text, "Alice Adams: 2 previous contacts")
	assert.Contains(t, text, "Starting a new job next week")
	assert.Contains(t, text, "• How is the job situation going?")

	text, isErr = toolText(t, responses[1])
	assert.False(t, isErr)
	assert.Equal(t, "No contact notes recorded for Bob Baker.", text)

	_, isErr = toolText(t, responses[2])
	assert.True(t, isErr)
}

func TestContactLogCompletesFollowup(t *testing.T) {
	contacts := &fakeContacts{}
	responses := session(t, newTestServer(t, WithContacts(contacts)),
		call(1, "followup_generate", nil),
		call(2, "contact_log", map[string]any{"person_name": "bob baker", "note": "Quick check-in", "contact_method": "text"}),
		call(3, "contact_log", map[string]any{"person_name": "Zed Zulu", "note": "Met at the door"}),
		call(4, "followup_summary", nil),
		call(5, "contact_log", map[string]any{"person_name": "Bob Baker"}),
	)
	require.Len(t, responses, 5)

	text, isErr := toolText(t, responses[1])
	assert.False(t, isErr)
	assert.Equal(t, "✓ Logged text with bob baker\nThis month's follow-up is now complete.", text)

	text, isErr = toolText(t, responses[2])
	assert.False(t, isErr)
	assert.Equal(t, "✓ Logged call with Zed Zulu", text)

	summary, _ := toolText(t, responses[3])
	assert.Contains(t, summary, "Progress: 1/2 (50.0%)")

	_, isErr = toolText(t, responses[4])
	assert.True(t, isErr, "note is required")

	assert.Equal(t, []string{
		"bob baker|text|Quick check-in",
		"Zed Zulu|call|Met at the door",
	}, contacts.logged)
}

func TestContactToolsRequireContacts(t *testing.T) {
	responses := session(t, newTestServer(t),
		call(1, "contact_history", map[string]any{"person_name": "Alice Adams"}),
		call(2, "contact_log", map[string]any{"person_name": "Alice Adams", "note": "hi"}),
	)
	require.Len(t, responses, 2)
	for _, resp := range responses {
		text, isErr := toolText(t, resp)
		assert.True(t, isErr)
		assert.Contains(t, text, "not configured")
	}
}

func TestShepherdingList(t *testing.T) {
	responses := session(t, newTestServer(t, WithDirectory(testRoster)),
		call(1, "shepherding_list", nil),
		call(2, "shepherding_list", map[string]any{"adults_only": true}),
	)
	require.Len(t, responses, 2)

	all, isErr := toolText(t, responses[0])
	assert.False(t, isErr)
	assert.Equal(t, strings.Join([]string{
		"3 people in 2 households",
		"",
		"Adams",
		"  • Alice Adams: 555-0101",
		"  • Annie Adams (child)",
		"",
		"Baker",
		"  • Bob Baker: bob@example.com",
	}, "\n"), all)

	adults, _ := toolText(t, responses[1])
	assert.True(t, strings.HasPrefix(adults, "2 people in 2 households"))
	assert.NotContains(t, adults, "Annie")
}

func TestShepherdingListRequiresDirectory(t *testing.T) {
	responses := session(t, newTestServer(t), call(1, "shepherding_list", nil))
	_, isErr := toolText(t, responses[0])
	assert.True(t, isErr)
}
