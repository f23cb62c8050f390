package pdf

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"tally/internal/core"
)

// transactionLine matches one statement row: a day-month date, a free-form
// description, and a trailing amount with an optional CR marker for credits.
var transactionLine = regexp.MustCompile(`^\s*(\d{1,2} [A-Za-z]{3})\s+(.+?)\s+(-?\d{1,3}(?:,\d{3})*\.\d{2})\s*(CR)?\s*$`)

// Parser extracts transactions from credit card statement PDFs.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse reads a statement PDF and returns cleaned transactions. A statement
// that cannot be opened or yields no recognizable rows produces an empty slice
// so ingestion degrades to a no-op rather than failing the whole upload.
func (p *Parser) Parse(path string, now time.Time) ([]core.Transaction, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("statement file: %w", err)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var raw []core.Transaction
	totalPages := r.NumPage()
	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("Failed to extract statement page text",
				"path", path,
				"page", pageIndex,
				"error", err)
			continue
		}

		raw = append(raw, ExtractLines(strings.Split(text, "\n"), now)...)
	}

	cleaned := Clean(raw)
	slog.Info("Parsed statement",
		"path", path,
		"pages", totalPages,
		"raw_rows", len(raw),
		"transactions", len(cleaned))

	return cleaned, nil
}

// ExtractLines scans statement text lines for transaction rows. Amounts keep
// the statement's sign convention: charges negative, CR-marked credits
// positive. Clean flips them into ledger convention.
func ExtractLines(lines []string, now time.Time) []core.Transaction {
	var txs []core.Transaction
	for _, line := range lines {
		m := transactionLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		cents, err := core.ParseAmountToCents(strings.ReplaceAll(m[3], ",", ""))
		if err != nil {
			continue
		}
		// Statement convention: spend is an outflow.
		if m[4] == "" {
			cents = -cents
		}

		tx := core.Transaction{
			Description: strings.TrimSpace(m[2]),
			Amount:      core.Money{Cents: cents},
		}
		if d, ok := core.ParseStatementDate(m[1], now); ok {
			tx.Date = d
		}
		txs = append(txs, tx)
	}
	return txs
}
