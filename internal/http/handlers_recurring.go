package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"tally/internal/core"
)

// recurringJSON is the API shape of a recurring definition.
type recurringJSON struct {
	ID          int64  `json:"id"`
	DayOfMonth  int    `json:"day_of_month"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Source      string `json:"source"`
}

func toRecurringList(defs []core.RecurringDefinition) []recurringJSON {
	out := make([]recurringJSON, 0, len(defs))
	for _, d := range defs {
		out = append(out, recurringJSON{
			ID:          d.ID,
			DayOfMonth:  d.DayOfMonth,
			Description: d.Description,
			AmountCents: d.Amount.Cents,
			Currency:    d.Currency,
			Source:      d.Source,
		})
	}
	return out
}

// handleRecurring manages recurring subscription definitions.
func (s *Server) handleRecurring(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listRecurring(w, r)
	case http.MethodPost:
		s.createRecurring(w, r)
	case http.MethodDelete:
		s.deleteRecurring(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (s *Server) listRecurring(w http.ResponseWriter, r *http.Request) {
	defs, err := s.ledger.Recurring(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List recurring failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list recurring definitions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recurring": toRecurringList(defs),
		"count":     len(defs),
	})
}

type createRecurringRequest struct {
	DayOfMonth  int    `json:"day_of_month"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Source      string `json:"source"`
}

func (s *Server) createRecurring(w http.ResponseWriter, r *http.Request) {
	var req createRecurringRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cents, err := core.ParseAmountToCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	def := core.RecurringDefinition{
		DayOfMonth:  req.DayOfMonth,
		Description: sanitizeInput(req.Description),
		Amount:      core.Money{Cents: cents},
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		Source:      sanitizeInput(req.Source),
	}

	id, err := s.ledger.AddRecurring(r.Context(), def)
	if err != nil {
		if errors.Is(err, core.ErrInvalidDay) || errors.Is(err, core.ErrEmptyDescription) || errors.Is(err, core.ErrInvalidAmount) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Add recurring failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add recurring definition")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) deleteRecurring(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "missing or invalid id")
		return
	}

	if err := s.ledger.DeleteRecurring(r.Context(), id); err != nil {
		slog.ErrorContext(r.Context(), "Delete recurring failed", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to delete recurring definition")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}
