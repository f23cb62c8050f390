package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"tally/internal/core"
)

// handleSources lists the distinct source tags present in the ledger.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	sources, err := s.ledger.Sources(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List sources failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

// handleSummaryByCategory sums spending per derived category, largest first.
func (s *Server) handleSummaryByCategory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	txs, err := s.cachedTransactions(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Category summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}

	txs, err = filterByWindow(txs, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	type row struct {
		Category    string `json:"category"`
		AmountCents int64  `json:"amount_cents"`
	}
	totals := core.TotalsByCategory(txs)
	out := make([]row, 0, len(totals))
	for _, t := range totals {
		out = append(out, row{Category: t.Category, AmountCents: t.Amount.Cents})
	}
	writeJSON(w, http.StatusOK, map[string]any{"totals": out})
}

// handleSpendingSeries buckets spending by day, ISO week, or month.
func (s *Server) handleSpendingSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	level := r.URL.Query().Get("level")
	if level == "" {
		level = core.AggregateMonthly
	}

	txs, err := s.cachedTransactions(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Spending series failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build series")
		return
	}

	txs, err = filterByWindow(txs, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := core.SpendingSeries(txs, level)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	type point struct {
		Label       string `json:"label"`
		AmountCents int64  `json:"amount_cents"`
	}
	out := make([]point, 0, len(points))
	for _, p := range points {
		out = append(out, point{Label: p.Label, AmountCents: p.Amount.Cents})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"level":  level,
		"series": out,
	})
}

// handleHighExpenses lists transactions above the alert threshold. The
// configured threshold applies unless the query overrides it.
func (s *Server) handleHighExpenses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	threshold := s.threshold
	if raw := r.URL.Query().Get("threshold_cents"); raw != "" {
		cents, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || cents < 0 {
			writeError(w, http.StatusBadRequest, "invalid threshold_cents")
			return
		}
		threshold = core.Money{Cents: cents}
	}

	txs, err := s.cachedTransactions(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "High expense summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}

	high := core.HighExpenses(txs, threshold)
	writeJSON(w, http.StatusOK, map[string]any{
		"threshold_cents": threshold.Cents,
		"transactions":    toTransactionList(high),
		"count":           len(high),
	})
}

// handleGmailFetch previews transaction candidates extracted from card
// notification emails without recording anything.
func (s *Server) handleGmailFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.mail == nil {
		writeError(w, http.StatusServiceUnavailable, "gmail integration not configured")
		return
	}

	ctx, cancel := contextWithTimeout(r, 30*time.Second)
	defer cancel()

	candidates, err := s.mail.FetchAll(ctx, s.gmailMax)
	if err != nil {
		slog.ErrorContext(ctx, "Gmail fetch failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch from gmail")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"candidates": toTransactionList(candidates),
		"count":      len(candidates),
	})
}

// handleGmailImport fetches candidates and records them. The identity key
// makes reruns safe; already-recorded notifications count as skipped.
func (s *Server) handleGmailImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.mail == nil {
		writeError(w, http.StatusServiceUnavailable, "gmail integration not configured")
		return
	}

	ctx, cancel := contextWithTimeout(r, 60*time.Second)
	defer cancel()

	candidates, err := s.mail.FetchAll(ctx, s.gmailMax)
	if err != nil {
		slog.ErrorContext(ctx, "Gmail fetch failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch from gmail")
		return
	}

	inserted := 0
	for _, tx := range candidates {
		ok, err := s.ledger.AddTransaction(ctx, tx)
		if err != nil {
			slog.ErrorContext(ctx, "Gmail import failed", "error", err, "description", tx.Description)
			writeError(w, http.StatusInternalServerError, "failed to record fetched transactions")
			return
		}
		if ok {
			inserted++
		}
	}

	if inserted > 0 {
		s.invalidateTransactions()
	}

	slog.InfoContext(ctx, "Gmail import completed",
		"fetched", len(candidates),
		"inserted", inserted,
		"duplicates_skipped", len(candidates)-inserted)

	writeJSON(w, http.StatusOK, map[string]any{
		"fetched":            len(candidates),
		"inserted":           inserted,
		"duplicates_skipped": len(candidates) - inserted,
	})
}
