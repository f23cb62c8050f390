package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"tally/internal/core"
	"tally/internal/ledger"
)

// maxStatementBytes bounds an uploaded statement file.
const maxStatementBytes = 16 << 20

// transactionJSON is the API shape of a ledger entry. Charges are positive
// cents, credits negative. An unknown date serializes as an empty string.
type transactionJSON struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Source      string `json:"source"`
	Category    string `json:"category"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		Date:        t.Date.ISO(),
		Description: t.Description,
		AmountCents: t.Amount.Cents,
		Currency:    t.Currency,
		Source:      t.Source,
		Category:    t.Category,
	}
}

func toTransactionList(txs []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionJSON(t))
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"timestamp":           time.Now().Format(time.RFC3339),
		"uptime":              time.Since(s.startedAt).String(),
		"rate_limit_hits":     atomic.LoadInt64(&s.metrics.rateLimitHits),
		"suspicious_requests": atomic.LoadInt64(&s.metrics.suspiciousRequests),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 10*time.Second)
	defer cancel()

	// A cheap ledger read verifies the SQLite connection end to end.
	if _, err := s.ledger.Sources(ctx); err != nil {
		slog.ErrorContext(ctx, "Readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleTransactions serves the categorized ledger and accepts manual entries.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTransactions(w, r)
	case http.MethodPost:
		s.createTransaction(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.cachedTransactions(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List transactions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	txs, err = filterByWindow(txs, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": toTransactionList(txs),
		"count":        len(txs),
	})
}

// filterByWindow narrows to the inclusive [from, to] date window when either
// bound is given. Unknown-date rows only survive an unbounded query.
func filterByWindow(txs []core.Transaction, fromRaw, toRaw string) ([]core.Transaction, error) {
	if fromRaw == "" && toRaw == "" {
		return txs, nil
	}

	from := time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
	if fromRaw != "" {
		d, err := parseDate(fromRaw)
		if err != nil {
			return nil, fmt.Errorf("from: %s", err)
		}
		from = d.Time
	}
	if toRaw != "" {
		d, err := parseDate(toRaw)
		if err != nil {
			return nil, fmt.Errorf("to: %s", err)
		}
		to = d.Time
	}
	return core.Between(txs, from, to), nil
}

type createTransactionRequest struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Source      string `json:"source"`
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	cents, err := core.ParseAmountToCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	tx := core.Transaction{
		Date:        date,
		Description: sanitizeInput(req.Description),
		Amount:      core.Money{Cents: cents},
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		Source:      sanitizeInput(req.Source),
	}

	inserted, err := s.ledger.AddTransaction(r.Context(), tx)
	if err != nil {
		if errors.Is(err, core.ErrEmptyDescription) || errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrEmptySource) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Add transaction failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record transaction")
		return
	}

	if inserted {
		s.invalidateTransactions()
		s.logger.LogTransactionRecorded(r.Context(), tx.Description, tx.Amount.Cents, tx.Source, "")
	}

	status := http.StatusCreated
	if !inserted {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"inserted": inserted})
}

// handleUploadStatement stores a statement file and queues it for parsing.
// The source tag doubles as the statement identity; resubmitting a tag the
// ledger has already seen is a conflict.
func (s *Server) handleUploadStatement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := r.ParseMultipartForm(maxStatementBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing statement file")
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if filename == "" {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	source := sanitizeInput(r.FormValue("source"))
	if source == "" {
		source = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	if source == "" {
		writeError(w, http.StatusBadRequest, "missing source tag")
		return
	}

	path := filepath.Join(s.uploadDir, filename)
	dst, err := os.Create(path)
	if err != nil {
		slog.ErrorContext(r.Context(), "Statement save failed", "error", err, "path", path)
		writeError(w, http.StatusInternalServerError, "failed to store statement")
		return
	}
	if _, err := io.Copy(dst, io.LimitReader(file, maxStatementBytes)); err != nil {
		dst.Close()
		slog.ErrorContext(r.Context(), "Statement write failed", "error", err, "path", path)
		writeError(w, http.StatusInternalServerError, "failed to store statement")
		return
	}
	if err := dst.Close(); err != nil {
		slog.ErrorContext(r.Context(), "Statement close failed", "error", err, "path", path)
		writeError(w, http.StatusInternalServerError, "failed to store statement")
		return
	}

	if err := s.ledger.SubmitStatement(r.Context(), path, source); err != nil {
		switch {
		case errors.Is(err, core.ErrDuplicateStatement):
			writeError(w, http.StatusConflict, fmt.Sprintf("statement %q already ingested", source))
		case errors.Is(err, ledger.ErrBrokerUnavailable):
			writeError(w, http.StatusServiceUnavailable, "statement ingestion unavailable")
		default:
			slog.ErrorContext(r.Context(), "Statement submit failed", "error", err, "source", source)
			writeError(w, http.StatusInternalServerError, "failed to queue statement")
		}
		return
	}

	// With no broker configured the submission ingests inline, so the
	// snapshot must be dropped for the new rows to be visible.
	s.invalidateTransactions()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
		"source": source,
	})
}
