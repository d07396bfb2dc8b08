// Package mcp serves the follow-up engine as Model Context Protocol tools
// over newline-delimited JSON-RPC on stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/shepherd/internal/followup"
	"github.com/dukerupert/shepherd/internal/model"
)

const protocolVersion = "2024-11-05"

// Engine is the subset of the follow-up engine exposed as tools.
type Engine interface {
	Today() model.Date
	TodaysFollowups(ctx context.Context, includeOverdue bool) ([]followup.Followup, error)
	NextFollowup(ctx context.Context) (*followup.Followup, error)
	MarkComplete(ctx context.Context, personName, notes string) (*model.Assignment, error)
	MarkCompleteByID(ctx context.Context, personID, notes string) (*model.Assignment, error)
	MarkContacted(personName, notes string) (*model.Assignment, error)
	MonthlySummary(year int, month time.Month) (*followup.Summary, error)
	Generate(ctx context.Context, year int, month time.Month, force bool) (*model.MonthlyState, error)
}

// Directory supplies the full shepherding roster.
type Directory interface {
	ShepherdingRoster(ctx context.Context) ([]model.Person, error)
}

// Contacts reads and appends contact notes.
type Contacts interface {
	ContactNotes(ctx context.Context, personName string) ([]string, error)
	LogContactVia(ctx context.Context, personName, method, note string) error
}

type Server struct {
	engine    Engine
	directory Directory
	contacts  Contacts
	version   string
	logger    *slog.Logger
}

type Option func(*Server)

func WithDirectory(d Directory) Option {
	return func(s *Server) {
		s.directory = d
	}
}

// WithContacts enables the contact history tools.
func WithContacts(c Contacts) Option {
	return func(s *Server) {
		s.contacts = c
	}
}

func NewServer(engine Engine, version string, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{engine: engine, version: version, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ServerInfo      serverInfo     `json:"serverInfo"`
	Capabilities    map[string]any `json:"capabilities"`
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ToolResult struct {
	Content []TextContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Run reads requests from in and writes responses to out until in is
// exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if err := writeResponse(out, &Response{JSONRPC: "2.0", Error: &RPCError{Code: codeParseError, Message: "Parse error"}}); err != nil {
				return err
			}
			continue
		}

		resp := s.Handle(ctx, &req)
		if resp == nil {
			continue
		}
		if err := writeResponse(out, resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Handle answers one request. Notifications get a nil response.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	s.logger.Debug("mcp request", "method", req.Method)

	switch req.Method {
	case "initialize":
		return result(req, initializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      serverInfo{Name: "shepherd", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return result(req, map[string]any{})
	case "tools/list":
		return result(req, map[string]any{"tools": tools()})
	case "tools/call":
		var params callToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return rpcError(req, codeInvalidParams, "Invalid params")
		}
		call, ok := s.toolHandlers()[params.Name]
		if !ok {
			return rpcError(req, codeMethodNotFound, "Unknown tool: "+params.Name)
		}
		text, err := call(ctx, params.Arguments)
		if err != nil {
			s.logger.Warn("tool failed", "tool", params.Name, "error", err)
			return result(req, ToolResult{Content: []TextContent{{Type: "text", Text: "Error: " + err.Error()}}, IsError: true})
		}
		return result(req, ToolResult{Content: []TextContent{{Type: "text", Text: text}}})
	default:
		if req.ID == nil {
			return nil
		}
		return rpcError(req, codeMethodNotFound, "Method not found")
	}
}

type toolFunc func(ctx context.Context, args map[string]any) (string, error)

func (s *Server) toolHandlers() map[string]toolFunc {
	return map[string]toolFunc{
		"followups_today":   s.today,
		"followup_next":     s.next,
		"followup_complete": s.complete,
		"followup_summary":  s.summary,
		"followup_generate": s.generate,
		"contact_history":   s.contactHistory,
		"contact_log":       s.contactLog,
		"shepherding_list":  s.shepherdingList,
	}
}

func tools() []Tool {
	monthProp := map[string]any{"type": "string", "description": "Month as YYYY-MM (default: current month)"}
	return []Tool{
		{
			Name:        "followups_today",
			Description: "List follow-ups assigned for today, with overdue ones, themes and suggested questions",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"include_overdue": map[string]any{"type": "boolean", "description": "Include follow-ups a week or more overdue (default true)"},
				},
			},
		},
		{
			Name:        "followup_next",
			Description: "Get the single most urgent incomplete follow-up",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        "followup_complete",
			Description: "Mark this month's follow-up with a person as done and log the note",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"person_name": map[string]any{"type": "string", "description": "Full name as assigned"},
					"person_id":   map[string]any{"type": "string", "description": "Directory id; takes precedence over the name"},
					"notes":       map[string]any{"type": "string", "description": "What was discussed"},
				},
			},
		},
		{
			Name:        "followup_summary",
			Description: "Show progress and assignments for a month",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"month": monthProp},
			},
		},
		{
			Name:        "followup_generate",
			Description: "Create a month's follow-up assignments from the directory",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"month": monthProp,
					"force": map[string]any{"type": "boolean", "description": "Regenerate even if the month exists, discarding completions"},
				},
			},
		},
		{
			Name:        "contact_history",
			Description: "Show the contact notes recorded for a person, with suggested questions",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"person_name": map[string]any{"type": "string", "description": "Name of the person"},
				},
				"required": []string{"person_name"},
			},
		},
		{
			Name:        "contact_log",
			Description: "Record a contact note for a person and complete this month's follow-up with them",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"person_name": map[string]any{"type": "string", "description": "Name of the person contacted"},
					"note":        map[string]any{"type": "string", "description": "What was discussed"},
					"contact_method": map[string]any{
						"type":        "string",
						"enum":        []string{"call", "text", "in-person", "email"},
						"description": "How contact was made (default call)",
					},
				},
				"required": []string{"person_name", "note"},
			},
		},
		{
			Name:        "shepherding_list",
			Description: "List everyone on the shepherding list by household with contact details",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"adults_only": map[string]any{"type": "boolean", "description": "Only include adults (default false)"},
				},
			},
		},
	}
}

func (s *Server) today(ctx context.Context, args map[string]any) (string, error) {
	includeOverdue := true
	if v, ok := args["include_overdue"].(bool); ok {
		includeOverdue = v
	}
	followups, err := s.engine.TodaysFollowups(ctx, includeOverdue)
	if err != nil {
		return "", err
	}
	return followup.FormatDigest(followups), nil
}

func (s *Server) next(ctx context.Context, args map[string]any) (string, error) {
	f, err := s.engine.NextFollowup(ctx)
	if err != nil {
		return "", err
	}
	if f == nil {
		return "All follow-ups for this month are complete.", nil
	}
	return followup.FormatReminder(*f), nil
}

func (s *Server) complete(ctx context.Context, args map[string]any) (string, error) {
	name, _ := args["person_name"].(string)
	id, _ := args["person_id"].(string)
	notes, _ := args["notes"].(string)
	if name == "" && id == "" {
		return "", fmt.Errorf("person_name or person_id is required")
	}

	var done *model.Assignment
	var err error
	if id != "" {
		done, err = s.engine.MarkCompleteByID(ctx, id, notes)
	} else {
		done, err = s.engine.MarkComplete(ctx, name, notes)
	}
	if err != nil {
		return "", err
	}
	if done == nil {
		who := name
		if id != "" {
			who = "person " + id
		}
		return "", fmt.Errorf("%w: %s has no follow-up in %s", followup.ErrNotFound, who, s.engine.Today().MonthKey())
	}
	return fmt.Sprintf("✓ Marked follow-up with %s as complete", done.PersonName), nil
}

func (s *Server) summary(ctx context.Context, args map[string]any) (string, error) {
	year, month, err := s.monthArg(args)
	if err != nil {
		return "", err
	}
	sum, err := s.engine.MonthlySummary(year, month)
	if errors.Is(err, followup.ErrNoDataForMonth) {
		return fmt.Sprintf("No follow-ups generated for %s yet.", model.MonthKey(year, month)), nil
	}
	if err != nil {
		return "", err
	}
	return followup.FormatSummary(sum), nil
}

func (s *Server) generate(ctx context.Context, args map[string]any) (string, error) {
	year, month, err := s.monthArg(args)
	if err != nil {
		return "", err
	}
	force, _ := args["force"].(bool)

	state, err := s.engine.Generate(ctx, year, month, force)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d follow-ups for %s (theme: %s)", len(state.Assignments), state.Month, state.Theme), nil
}

func (s *Server) contactHistory(ctx context.Context, args map[string]any) (string, error) {
	if s.contacts == nil {
		return "", errors.New("contact history is not configured")
	}
	name, _ := args["person_name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("person_name is required")
	}

	notes, err := s.contacts.ContactNotes(ctx, name)
	if err != nil {
		return "", err
	}
	if len(notes) == 0 {
		return fmt.Sprintf("No contact notes recorded for %s.", name), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d previous contacts\n\n", name, len(notes))
	for _, n := range notes {
		fmt.Fprintf(&b, "%s\n", n)
	}
	b.WriteString("\nSuggested questions:\n")
	for _, q := range followup.SuggestQuestions(notes[len(notes)-1]) {
		fmt.Fprintf(&b, "• %s\n", q)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Server) contactLog(ctx context.Context, args map[string]any) (string, error) {
	if s.contacts == nil {
		return "", errors.New("contact history is not configured")
	}
	name, _ := args["person_name"].(string)
	note, _ := args["note"].(string)
	method, _ := args["contact_method"].(string)
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(note) == "" {
		return "", errors.New("person_name and note are required")
	}
	if method == "" {
		method = "call"
	}

	if err := s.contacts.LogContactVia(ctx, name, method, note); err != nil {
		return "", err
	}
	text := fmt.Sprintf("✓ Logged %s with %s", method, name)

	done, err := s.engine.MarkContacted(name, note)
	if err != nil {
		s.logger.Warn("complete follow-up after logging contact", "person", name, "error", err)
		return text, nil
	}
	if done != nil {
		text += "\nThis month's follow-up is now complete."
	}
	return text, nil
}

func (s *Server) shepherdingList(ctx context.Context, args map[string]any) (string, error) {
	if s.directory == nil {
		return "", errors.New("contact directory is not configured")
	}
	adultsOnly, _ := args["adults_only"].(bool)

	roster, err := s.directory.ShepherdingRoster(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", followup.ErrDirectoryUnavailable, err)
	}
	var people []model.Person
	for _, p := range roster {
		if adultsOnly && p.IsChild {
			continue
		}
		people = append(people, p)
	}
	households := followup.GroupHouseholds(people)

	var b strings.Builder
	fmt.Fprintf(&b, "%d people in %d households\n", len(people), len(households))
	for _, hh := range households {
		fmt.Fprintf(&b, "\n%s\n", hh.Name)
		for _, p := range hh.Members {
			line := "• " + p.Name
			if p.IsChild {
				line += " (child)"
			}
			var contact []string
			for _, v := range []string{p.Phone, p.Email} {
				if v != "" {
					contact = append(contact, v)
				}
			}
			if len(contact) > 0 {
				line += ": " + strings.Join(contact, ", ")
			}
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Server) monthArg(args map[string]any) (int, time.Month, error) {
	v, _ := args["month"].(string)
	if v == "" {
		today := s.engine.Today()
		return today.Year(), today.Month(), nil
	}
	return model.ParseMonthKey(v)
}

func result(req *Request, v any) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: v}
}

func rpcError(req *Request, code int, msg string) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: code, Message: msg}}
}

func writeResponse(w io.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
