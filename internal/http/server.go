package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/config"
	"tally/internal/core"
	"tally/internal/ledger"
	applog "tally/internal/log"
)

// MailFetcher pulls transaction candidates out of a mailbox. Nil means the
// Gmail integration is not configured and its endpoints answer 503.
type MailFetcher interface {
	FetchAll(ctx context.Context, maxPerSender int64) ([]core.Transaction, error)
}

// transactionsCacheKey is the single key under which the categorized ledger
// snapshot is cached. Every write invalidates it.
const transactionsCacheKey = "transactions"

type Server struct {
	http.Server

	ledger         *ledger.Service
	mail           MailFetcher
	uploadDir      string
	categoriesFile string
	threshold      core.Money
	gmailMax       int64
	rateLimiter    *rateLimiter
	metrics        *securityMetrics
	logger         *applog.StructuredLogger
	startedAt      time.Time

	txCache *lruCache[[]core.Transaction]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(cfg *config.Config, svc *ledger.Service, mail MailFetcher) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    ":" + cfg.Port,
			Handler: mux,
		},
		ledger:           svc,
		mail:             mail,
		uploadDir:        cfg.UploadDir,
		categoriesFile:   cfg.CategoriesFile,
		threshold:        core.Money{Cents: cfg.HighExpenseThresholdCents},
		gmailMax:         cfg.GmailMaxResults,
		rateLimiter:      newRateLimiter(),
		metrics:          &securityMetrics{},
		logger:           applog.NewStructuredLogger(applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)),
		startedAt:        time.Now(),
		txCache:          newLRUCache[[]core.Transaction](4, time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/api/transactions", s.withSecurityHeaders(s.handleTransactions))
	mux.HandleFunc("/api/statements", s.withSecurityHeaders(s.handleUploadStatement))
	mux.HandleFunc("/api/categories", s.withSecurityHeaders(s.handleCategories))
	mux.HandleFunc("/api/categories/learn", s.withSecurityHeaders(s.handleLearn))
	mux.HandleFunc("/api/categories/keywords", s.withSecurityHeaders(s.handleRemoveKeyword))
	mux.HandleFunc("/api/categories/export", s.withSecurityHeaders(s.handleExportCategories))
	mux.HandleFunc("/api/categories/import", s.withSecurityHeaders(s.handleImportCategories))
	mux.HandleFunc("/api/recurring", s.withSecurityHeaders(s.handleRecurring))
	mux.HandleFunc("/api/sources", s.withSecurityHeaders(s.handleSources))
	mux.HandleFunc("/api/summary/categories", s.withSecurityHeaders(s.handleSummaryByCategory))
	mux.HandleFunc("/api/summary/series", s.withSecurityHeaders(s.handleSpendingSeries))
	mux.HandleFunc("/api/summary/high-expenses", s.withSecurityHeaders(s.handleHighExpenses))
	mux.HandleFunc("/api/gmail/fetch", s.withSecurityHeaders(s.handleGmailFetch))
	mux.HandleFunc("/api/gmail/import", s.withSecurityHeaders(s.handleGmailImport))

	return s
}

// startCacheCleanup evicts expired snapshot entries periodically.
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.txCache.CleanExpired(); removed > 0 {
				slog.Debug("Cache cleanup completed", "entries_removed", removed)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown stops the cleanup goroutines before draining in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// cachedTransactions returns the categorized ledger, serving a recent
// snapshot when one exists.
func (s *Server) cachedTransactions(ctx context.Context) ([]core.Transaction, error) {
	if txs, found := s.txCache.Get(transactionsCacheKey); found {
		slog.DebugContext(ctx, "Transactions cache hit", "count", len(txs))
		result := make([]core.Transaction, len(txs))
		copy(result, txs)
		return result, nil
	}

	cctx, cancel := context.WithTimeout(ctx, 7*time.Second)
	defer cancel()
	txs, err := s.ledger.Transactions(cctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	s.txCache.Set(transactionsCacheKey, txs)
	return txs, nil
}

func (s *Server) invalidateTransactions() {
	s.txCache.Delete(transactionsCacheKey)
}

// withSecurityHeaders adds security headers, rate limiting, and request
// logging to every API route.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		if detectSuspiciousRequest(r, s.metrics) {
			slog.WarnContext(ctx, "Suspicious request detected",
				"request_id", requestID,
				"method", r.Method,
				"url", r.URL.Path,
				"client_ip", clientIP)
		}

		s.logger.LogHTTPStart(ctx, r, clientIP)

		if isWriteMethod(r.Method) && !s.rateLimiter.allow(clientIP, s.metrics) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		s.logger.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), clientIP)
	}
}

// requestIDKey is the context key for the per-request trace ID.
type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	return "req_" + uuid.NewString()
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
