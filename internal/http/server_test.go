package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"tally/internal/config"
	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/storage"
)

// fakeMail is a MailFetcher returning canned candidates.
type fakeMail struct {
	candidates []core.Transaction
	err        error
}

func (f *fakeMail) FetchAll(ctx context.Context, maxPerSender int64) ([]core.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func newTestServer(t *testing.T, mail MailFetcher) *Server {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}

	svc := ledger.NewService(repo, nil, nil)
	cfg := &config.Config{
		Port:                      "8081",
		UploadDir:                 t.TempDir(),
		CategoriesFile:            filepath.Join(t.TempDir(), "categories.json"),
		GmailMaxResults:           10,
		HighExpenseThresholdCents: 20000,
	}

	s := NewServer(cfg, svc, mail)
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
		_ = svc.Close()
	})
	return s
}

func doJSON(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestCreateAndListTransactions(t *testing.T) {
	s := newTestServer(t, nil)

	create := map[string]string{
		"date":        "2025-07-01",
		"description": "Netflix.com",
		"amount":      "15.98",
	}

	rec := doJSON(t, s, http.MethodPost, "/api/transactions", create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/transactions status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Inserted bool `json:"inserted"`
	}
	decodeBody(t, rec, &created)
	if !created.Inserted {
		t.Error("first insert reported inserted=false")
	}

	// Replaying the identical entry is not an error, just not an insert.
	rec = doJSON(t, s, http.MethodPost, "/api/transactions", create)
	if rec.Code != http.StatusOK {
		t.Fatalf("replayed POST status = %d", rec.Code)
	}
	decodeBody(t, rec, &created)
	if created.Inserted {
		t.Error("replayed insert reported inserted=true")
	}

	rec = doJSON(t, s, http.MethodGet, "/api/transactions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/transactions status = %d", rec.Code)
	}
	var listed struct {
		Count        int               `json:"count"`
		Transactions []transactionJSON `json:"transactions"`
	}
	decodeBody(t, rec, &listed)
	if listed.Count != 1 {
		t.Fatalf("count = %d, want 1", listed.Count)
	}
	got := listed.Transactions[0]
	if got.Description != "Netflix.com" || got.AmountCents != 1598 {
		t.Errorf("transaction = %+v", got)
	}
	if got.Currency != core.DefaultCurrency || got.Source != "manual" {
		t.Errorf("defaults not applied: %+v", got)
	}
	if got.Category != core.Uncategorized {
		t.Errorf("category = %q, want %q", got.Category, core.Uncategorized)
	}
}

func TestCreateTransactionRejectsInvalid(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"bad amount", map[string]string{"description": "x", "amount": "abc"}, http.StatusUnprocessableEntity},
		{"bad date", map[string]string{"description": "x", "amount": "1.00", "date": "01/07/2025"}, http.StatusUnprocessableEntity},
		{"empty description", map[string]string{"description": "   ", "amount": "1.00"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/transactions", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestLearnRecategorizesOnRead(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/transactions", map[string]string{
		"date": "2025-07-01", "description": "Netflix.com", "amount": "15.98",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	// Warm the snapshot cache so the learn path has to invalidate it.
	rec = doJSON(t, s, http.MethodGet, "/api/transactions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("warm read status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/categories", map[string]string{"name": "Subscriptions"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/categories/learn", map[string]string{
		"description": "Netflix.com", "category": "Subscriptions",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("learn status = %d, body %s", rec.Code, rec.Body.String())
	}

	var listed struct {
		Transactions []transactionJSON `json:"transactions"`
	}
	rec = doJSON(t, s, http.MethodGet, "/api/transactions", nil)
	decodeBody(t, rec, &listed)
	if len(listed.Transactions) != 1 || listed.Transactions[0].Category != "Subscriptions" {
		t.Errorf("transactions after learn = %+v", listed.Transactions)
	}
}

func TestLearnRejectsReservedCategory(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/categories/learn", map[string]string{
		"description": "Netflix.com", "category": core.Uncategorized,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("learn into reserved category status = %d", rec.Code)
	}
}

func TestRemoveKeyword(t *testing.T) {
	s := newTestServer(t, nil)

	doJSON(t, s, http.MethodPost, "/api/categories", map[string]string{"name": "Food"})
	doJSON(t, s, http.MethodPost, "/api/categories/learn", map[string]string{
		"description": "Grab Food", "category": "Food",
	})

	rec := doJSON(t, s, http.MethodDelete, "/api/categories/keywords", map[string]string{
		"category": "Food", "keyword": "Grab Food",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("remove keyword status = %d", rec.Code)
	}

	var listed struct {
		Categories []categoryJSON `json:"categories"`
	}
	rec = doJSON(t, s, http.MethodGet, "/api/categories", nil)
	decodeBody(t, rec, &listed)
	for _, c := range listed.Categories {
		if c.Name == "Food" && len(c.Keywords) != 0 {
			t.Errorf("Food keywords = %v, want none", c.Keywords)
		}
	}
}

func TestSummaryEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	seed := []map[string]string{
		{"date": "2025-07-01", "description": "Netflix.com", "amount": "159.80"},
		{"date": "2025-07-01", "description": "FairPrice", "amount": "80.20"},
		{"date": "2025-08-02", "description": "Air Ticket", "amount": "450.00"},
	}
	for _, body := range seed {
		if rec := doJSON(t, s, http.MethodPost, "/api/transactions", body); rec.Code != http.StatusCreated {
			t.Fatalf("seed status = %d for %v", rec.Code, body)
		}
	}

	t.Run("totals by category", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/summary/categories", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp struct {
			Totals []struct {
				Category    string `json:"category"`
				AmountCents int64  `json:"amount_cents"`
			} `json:"totals"`
		}
		decodeBody(t, rec, &resp)
		if len(resp.Totals) != 1 {
			t.Fatalf("totals = %+v, want single bucket", resp.Totals)
		}
		if resp.Totals[0].Category != core.Uncategorized || resp.Totals[0].AmountCents != 69000 {
			t.Errorf("totals[0] = %+v", resp.Totals[0])
		}
	})

	t.Run("monthly series", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/summary/series?level=monthly", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp struct {
			Series []struct {
				Label       string `json:"label"`
				AmountCents int64  `json:"amount_cents"`
			} `json:"series"`
		}
		decodeBody(t, rec, &resp)
		if len(resp.Series) != 2 {
			t.Fatalf("series = %+v, want 2 buckets", resp.Series)
		}
		if resp.Series[0].Label != "July 2025" || resp.Series[0].AmountCents != 24000 {
			t.Errorf("series[0] = %+v", resp.Series[0])
		}
	})

	t.Run("unknown series level", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/summary/series?level=hourly", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("high expenses with override", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/summary/high-expenses?threshold_cents=40000", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp struct {
			Count        int               `json:"count"`
			Transactions []transactionJSON `json:"transactions"`
		}
		decodeBody(t, rec, &resp)
		if resp.Count != 1 || resp.Transactions[0].Description != "Air Ticket" {
			t.Errorf("high expenses = %+v", resp)
		}
	})

	t.Run("date window filter", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/transactions?from=2025-08-01&to=2025-08-31", nil)
		var resp struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &resp)
		if resp.Count != 1 {
			t.Errorf("windowed count = %d, want 1", resp.Count)
		}
	})
}

func TestUploadStatementWithoutBroker(t *testing.T) {
	s := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "2025-07-statement.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := fw.Write([]byte("%PDF-1.4 test")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/statements", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)

	// No AMQP connection in tests, so queueing is reported unavailable.
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 (body %s)", rec.Code, rec.Body.String())
	}
}

// stubParser feeds fixed rows to the inline ingestion path.
type stubParser struct {
	txs []core.Transaction
}

func (p *stubParser) Parse(path string, now time.Time) ([]core.Transaction, error) {
	return p.txs, nil
}

func TestUploadStatementInlineRefreshesListing(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}

	parser := &stubParser{txs: []core.Transaction{
		{
			Date:        core.NewDate(2025, 7, 3),
			Description: "GRAB 1234",
			Amount:      core.Money{Cents: 1250},
			Currency:    "SGD",
			Source:      "2025-07-statement",
		},
	}}
	svc := ledger.NewService(repo, nil, parser)
	cfg := &config.Config{
		Port:                      "8081",
		UploadDir:                 t.TempDir(),
		CategoriesFile:            filepath.Join(t.TempDir(), "categories.json"),
		GmailMaxResults:           10,
		HighExpenseThresholdCents: 20000,
	}
	s := NewServer(cfg, svc, nil)
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
		_ = svc.Close()
	})

	// Warm the snapshot cache before the upload.
	rec := doJSON(t, s, http.MethodGet, "/api/transactions", nil)
	var listed struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &listed)
	if listed.Count != 0 {
		t.Fatalf("pre-upload count = %d, want 0", listed.Count)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "2025-07-statement.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := fw.Write([]byte("%PDF-1.4 test")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/statements", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}

	// The inline ingestion happens synchronously, so the listing must show
	// the new row right away rather than serving the warmed snapshot.
	rec = doJSON(t, s, http.MethodGet, "/api/transactions", nil)
	decodeBody(t, rec, &listed)
	if listed.Count != 1 {
		t.Errorf("post-upload count = %d, want 1", listed.Count)
	}
}

func TestGmailFetchAndImport(t *testing.T) {
	mail := &fakeMail{candidates: []core.Transaction{
		{
			Date:        core.NewDate(2025, 7, 21),
			Description: "chagee",
			Amount:      core.Money{Cents: 1598},
			Currency:    "SGD",
			Source:      "wise",
		},
		{
			Date:        core.NewDate(2025, 7, 22),
			Description: "ya kun kaya toast",
			Amount:      core.Money{Cents: 620},
			Currency:    "SGD",
			Source:      "instarem",
		},
	}}
	s := newTestServer(t, mail)

	rec := doJSON(t, s, http.MethodGet, "/api/gmail/fetch", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch status = %d", rec.Code)
	}
	var fetched struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &fetched)
	if fetched.Count != 2 {
		t.Errorf("fetched count = %d, want 2", fetched.Count)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/gmail/import", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d", rec.Code)
	}
	var imported struct {
		Inserted int `json:"inserted"`
		Skipped  int `json:"duplicates_skipped"`
	}
	decodeBody(t, rec, &imported)
	if imported.Inserted != 2 {
		t.Errorf("inserted = %d, want 2", imported.Inserted)
	}

	// Importing again hits the identity key for every candidate.
	rec = doJSON(t, s, http.MethodPost, "/api/gmail/import", nil)
	decodeBody(t, rec, &imported)
	if imported.Inserted != 0 || imported.Skipped != 2 {
		t.Errorf("reimport inserted = %d skipped = %d, want 0/2", imported.Inserted, imported.Skipped)
	}
}

func TestGmailEndpointsWithoutIntegration(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodGet, "/api/gmail/fetch", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("fetch status = %d, want 503", rec.Code)
	}
	rec = doJSON(t, s, http.MethodPost, "/api/gmail/import", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("import status = %d, want 503", rec.Code)
	}
}

func TestRecurringEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/recurring", map[string]any{
		"day_of_month": 15, "description": "Spotify", "amount": "10.99",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, rec, &created)
	if created.ID == 0 {
		t.Fatal("create returned id 0")
	}

	rec = doJSON(t, s, http.MethodPost, "/api/recurring", map[string]any{
		"day_of_month": 31, "description": "Rent", "amount": "2000.00",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("day 31 status = %d, want 422", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/recurring", nil)
	var listed struct {
		Count     int             `json:"count"`
		Recurring []recurringJSON `json:"recurring"`
	}
	decodeBody(t, rec, &listed)
	if listed.Count != 1 || listed.Recurring[0].Description != "Spotify" {
		t.Fatalf("listed = %+v", listed)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/recurring?id="+strconv.FormatInt(created.ID, 10), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/recurring", nil)
	decodeBody(t, rec, &listed)
	if listed.Count != 0 {
		t.Errorf("count after delete = %d, want 0", listed.Count)
	}
}

func TestCategoryExportImportRoundTrip(t *testing.T) {
	s := newTestServer(t, nil)

	doJSON(t, s, http.MethodPost, "/api/categories", map[string]string{"name": "Food"})
	doJSON(t, s, http.MethodPost, "/api/categories/learn", map[string]string{
		"description": "FairPrice", "category": "Food",
	})

	rec := doJSON(t, s, http.MethodPost, "/api/categories/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d, body %s", rec.Code, rec.Body.String())
	}

	// A fresh server sharing only the exported file recovers the config.
	other := newTestServer(t, nil)
	other.categoriesFile = s.categoriesFile
	rec = doJSON(t, other, http.MethodPost, "/api/categories/import", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d, body %s", rec.Code, rec.Body.String())
	}

	var listed struct {
		Categories []categoryJSON `json:"categories"`
	}
	rec = doJSON(t, other, http.MethodGet, "/api/categories", nil)
	decodeBody(t, rec, &listed)

	found := false
	for _, c := range listed.Categories {
		if c.Name == "Food" && len(c.Keywords) == 1 && c.Keywords[0] == "FairPrice" {
			found = true
		}
	}
	if !found {
		t.Errorf("imported categories = %+v, want Food with FairPrice", listed.Categories)
	}
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPut, "/api/transactions", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); !strings.Contains(allow, http.MethodGet) {
		t.Errorf("Allow = %q", allow)
	}
}
