package handler

import (
	"net/http"

	"github.com/dukerupert/shepherd/internal/theme"
)

type ThemeHandler struct {
	catalog *theme.Catalog
}

func NewThemeHandler(catalog *theme.Catalog) *ThemeHandler {
	return &ThemeHandler{catalog: catalog}
}

// List handles GET /api/themes.
func (h *ThemeHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.All())
}

// Get handles GET /api/themes/{month}, falling back to the default theme.
func (h *ThemeHandler) Get(w http.ResponseWriter, r *http.Request) {
	month := r.PathValue("month")
	_, ok := h.catalog.Lookup(month)
	writeJSON(w, http.StatusOK, map[string]any{
		"month":    month,
		"theme":    h.catalog.LookupOrDefault(month),
		"fallback": !ok,
	})
}
