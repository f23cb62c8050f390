package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"tally/internal/categories"
	"tally/internal/core"
)

// categoryJSON mirrors one configured category with its keyword list.
type categoryJSON struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

func toCategoryList(cfg categories.Config) []categoryJSON {
	out := make([]categoryJSON, 0, len(cfg.Categories))
	for _, c := range cfg.Categories {
		kws := c.Keywords
		if kws == nil {
			kws = []string{}
		}
		out = append(out, categoryJSON{Name: c.Name, Keywords: kws})
	}
	return out
}

// handleCategories lists the category configuration and creates categories.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listCategories(w, r)
	case http.MethodPost:
		s.createCategory(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.ledger.Categories(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List categories failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": toCategoryList(cfg)})
}

type createCategoryRequest struct {
	Name string `json:"name"`
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := sanitizeInput(req.Name)
	if name == "" {
		writeError(w, http.StatusUnprocessableEntity, "missing category name")
		return
	}

	created, err := s.ledger.AddCategory(r.Context(), name)
	if err != nil {
		slog.ErrorContext(r.Context(), "Add category failed", "error", err, "category", name)
		writeError(w, http.StatusInternalServerError, "failed to add category")
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"created": created, "name": name})
}

type learnRequest struct {
	Description string `json:"description"`
	Category    string `json:"category"`
}

// handleLearn binds a transaction description to a category. Derived
// categories change on the next read, so the cached snapshot is dropped.
func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req learnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	description := sanitizeInput(req.Description)
	category := sanitizeInput(req.Category)

	if err := s.ledger.Learn(r.Context(), description, category); err != nil {
		if errors.Is(err, core.ErrEmptyDescription) {
			writeError(w, http.StatusUnprocessableEntity, "missing description")
			return
		}
		if category == "" || category == core.Uncategorized {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("cannot learn into %q", category))
			return
		}
		slog.ErrorContext(r.Context(), "Learn keyword failed", "error", err, "category", category)
		writeError(w, http.StatusInternalServerError, "failed to learn keyword")
		return
	}

	s.invalidateTransactions()
	writeJSON(w, http.StatusOK, map[string]string{
		"category": category,
		"keyword":  description,
	})
}

type removeKeywordRequest struct {
	Category string `json:"category"`
	Keyword  string `json:"keyword"`
}

// handleRemoveKeyword detaches a keyword from a category.
func (s *Server) handleRemoveKeyword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}

	var req removeKeywordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	category := sanitizeInput(req.Category)
	keyword := sanitizeInput(req.Keyword)
	if category == "" || keyword == "" {
		writeError(w, http.StatusUnprocessableEntity, "missing category or keyword")
		return
	}

	if err := s.ledger.RemoveKeyword(r.Context(), category, keyword); err != nil {
		slog.ErrorContext(r.Context(), "Remove keyword failed", "error", err, "category", category)
		writeError(w, http.StatusInternalServerError, "failed to remove keyword")
		return
	}

	s.invalidateTransactions()
	writeJSON(w, http.StatusOK, map[string]string{
		"category": category,
		"keyword":  keyword,
	})
}

// handleExportCategories snapshots the category config to the configured
// JSON file.
func (s *Server) handleExportCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := s.ledger.ExportCategories(r.Context(), s.categoriesFile); err != nil {
		slog.ErrorContext(r.Context(), "Export categories failed", "error", err, "path", s.categoriesFile)
		writeError(w, http.StatusInternalServerError, "failed to export categories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": s.categoriesFile})
}

// handleImportCategories merges the configured JSON file into the stored
// category config. Import only adds; derived categories may change, so the
// snapshot cache is dropped.
func (s *Server) handleImportCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	imported, err := s.ledger.ImportCategories(r.Context(), s.categoriesFile)
	if err != nil {
		slog.ErrorContext(r.Context(), "Import categories failed", "error", err, "path", s.categoriesFile)
		writeError(w, http.StatusInternalServerError, "failed to import categories")
		return
	}

	s.invalidateTransactions()
	writeJSON(w, http.StatusOK, map[string]any{
		"path":     s.categoriesFile,
		"imported": imported,
	})
}
