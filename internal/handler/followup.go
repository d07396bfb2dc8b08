package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/shepherd/internal/followup"
	"github.com/dukerupert/shepherd/internal/model"
)

// Notifier is told about changes so live clients can refresh.
type Notifier interface {
	FollowupCompleted(month, personID, personName string)
	MonthGenerated(month string, assignments int)
}

type FollowupHandler struct {
	engine   *followup.Engine
	notifier Notifier
	logger   *slog.Logger
}

func NewFollowupHandler(engine *followup.Engine, notifier Notifier, logger *slog.Logger) *FollowupHandler {
	return &FollowupHandler{engine: engine, notifier: notifier, logger: logger}
}

// Today handles GET /api/followups/today?include_overdue=true|false.
func (h *FollowupHandler) Today(w http.ResponseWriter, r *http.Request) {
	includeOverdue := true
	if v := r.URL.Query().Get("include_overdue"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "include_overdue must be true or false")
			return
		}
		includeOverdue = b
	}

	followups, err := h.engine.TodaysFollowups(r.Context(), includeOverdue)
	if err != nil {
		h.engineError(w, "load today's follow-ups", err)
		return
	}
	if followups == nil {
		followups = []followup.Followup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":      h.engine.Today(),
		"count":     len(followups),
		"followups": followups,
	})
}

// Next handles GET /api/followups/next. A null followup means the month is done.
func (h *FollowupHandler) Next(w http.ResponseWriter, r *http.Request) {
	next, err := h.engine.NextFollowup(r.Context())
	if err != nil {
		h.engineError(w, "load next follow-up", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"followup": next})
}

type completeRequest struct {
	PersonName string `json:"person_name"`
	PersonID   string `json:"person_id"`
	Notes      string `json:"notes"`
}

// Complete handles POST /api/followups/complete.
func (h *FollowupHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.PersonName = strings.TrimSpace(req.PersonName)
	req.PersonID = strings.TrimSpace(req.PersonID)
	if req.PersonName == "" && req.PersonID == "" {
		writeError(w, http.StatusBadRequest, "person_name or person_id is required")
		return
	}

	var done *model.Assignment
	var err error
	if req.PersonID != "" {
		done, err = h.engine.MarkCompleteByID(r.Context(), req.PersonID, req.Notes)
	} else {
		done, err = h.engine.MarkComplete(r.Context(), req.PersonName, req.Notes)
	}
	if err != nil {
		h.logger.Error("mark complete", "person", req.PersonName, "person_id", req.PersonID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark follow-up complete")
		return
	}
	if done == nil {
		writeError(w, http.StatusNotFound, "no follow-up this month for that person")
		return
	}

	month := done.AssignedDate.MonthKey()
	if h.notifier != nil {
		h.notifier.FollowupCompleted(month, done.PersonID, done.PersonName)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"completed":  true,
		"month":      month,
		"assignment": done,
	})
}

type generateRequest struct {
	Month string `json:"month"`
	Force bool   `json:"force"`
}

// Generate handles POST /api/followups/generate. An empty month means the current one.
func (h *FollowupHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	year, month, ok := h.parseMonth(w, req.Month)
	if !ok {
		return
	}

	state, err := h.engine.Generate(r.Context(), year, month, req.Force)
	if err != nil {
		h.engineError(w, "generate follow-ups", err)
		return
	}
	if h.notifier != nil {
		h.notifier.MonthGenerated(state.Month, len(state.Assignments))
	}
	writeJSON(w, http.StatusOK, state)
}

// Summary handles GET /api/followups/summary?month=YYYY-MM.
func (h *FollowupHandler) Summary(w http.ResponseWriter, r *http.Request) {
	year, month, ok := h.parseMonth(w, r.URL.Query().Get("month"))
	if !ok {
		return
	}

	summary, err := h.engine.MonthlySummary(year, month)
	if err != nil {
		h.engineError(w, "load summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *FollowupHandler) parseMonth(w http.ResponseWriter, v string) (int, time.Month, bool) {
	if v == "" {
		today := h.engine.Today()
		return today.Year(), today.Month(), true
	}
	year, month, err := model.ParseMonthKey(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return 0, 0, false
	}
	return year, month, true
}

func (h *FollowupHandler) engineError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, followup.ErrNoDataForMonth):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, followup.ErrDirectoryUnavailable):
		h.logger.Error(action, "error", err)
		writeError(w, http.StatusBadGateway, "contact directory unavailable")
	default:
		h.logger.Error(action, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+action)
	}
}
