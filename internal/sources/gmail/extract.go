package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"tally/internal/core"
)

const (
	// Gmail search queries for the supported notification senders.
	WiseQuery     = `from:noreply@wise.com subject:"spent at"`
	InstaremQuery = `from:donotreply@instarem.com subject:"Transaction successful"`

	SourceWise     = "Wise"
	SourceInstarem = "Instarem"
)

var (
	wiseSubject      = regexp.MustCompile(`([\d.,]+)\s+([A-Z]{3}) spent at (.+)`)
	instaremDateTime = regexp.MustCompile(`(?i)Date,?\s*time\s*([^\n]+)`)
	instaremMerchant = regexp.MustCompile(`Merchant\s*([^\n]+)`)
	instaremAmount   = regexp.MustCompile(`Amount paid\s*([\d.,]+\s+[A-Z]{3})`)
	ordinalSuffix    = regexp.MustCompile(`(\d+)(st|nd|rd|th)`)
)

// Instarem prints local Singapore wall-clock time without a zone marker.
var singapore = time.FixedZone("Asia/Singapore", 8*3600)

var instaremLayouts = []string{
	"2 January 2006, 3:04 PM",
	"2 January 2006 3:04 PM",
	"2 Jan 2006, 3:04 PM",
	"2 Jan 2006 3:04 PM",
	"2 January 2006, 15:04",
	"2006-01-02 15:04:05",
}

// Fetcher pulls transaction notifications out of a mailbox.
type Fetcher struct {
	mailbox Mailbox
}

func NewFetcher(mailbox Mailbox) *Fetcher {
	return &Fetcher{mailbox: mailbox}
}

// FetchAll returns the transactions found in Wise and Instarem notification
// mail, newest first per sender. Messages whose expected fields cannot be
// extracted are skipped with a log line rather than failing the fetch.
func (f *Fetcher) FetchAll(ctx context.Context, maxPerSender int64) ([]core.Transaction, error) {
	var out []core.Transaction

	wise, err := f.mailbox.Search(ctx, WiseQuery, maxPerSender)
	if err != nil {
		return nil, fmt.Errorf("search wise mail: %w", err)
	}
	for _, msg := range wise {
		tx, ok := ExtractWise(msg)
		if !ok {
			slog.WarnContext(ctx, "Unrecognized notification subject", "sender", SourceWise, "message_id", msg.ID)
			continue
		}
		out = append(out, tx)
	}

	instarem, err := f.mailbox.Search(ctx, InstaremQuery, maxPerSender)
	if err != nil {
		return nil, fmt.Errorf("search instarem mail: %w", err)
	}
	for _, msg := range instarem {
		tx, ok := ExtractInstarem(msg)
		if !ok {
			slog.WarnContext(ctx, "Unrecognized notification body", "sender", SourceInstarem, "message_id", msg.ID)
			continue
		}
		out = append(out, tx)
	}

	return out, nil
}

// ExtractWise parses a Wise card notification. The subject carries everything:
// "12.34 EUR spent at Merchant Name.". The header date, in UTC, becomes the
// transaction date.
func ExtractWise(msg Message) (core.Transaction, bool) {
	m := wiseSubject.FindStringSubmatch(msg.Subject)
	if m == nil {
		return core.Transaction{}, false
	}

	cents, err := core.ParseAmountToCents(m[1])
	if err != nil {
		return core.Transaction{}, false
	}

	tx := core.Transaction{
		Description: strings.TrimSuffix(strings.TrimSpace(m[3]), "."),
		Amount:      core.Money{Cents: cents},
		Currency:    m[2],
		Source:      SourceWise,
	}
	if !msg.Date.IsZero() {
		utc := msg.Date.UTC()
		tx.Date = core.NewDate(utc.Year(), int(utc.Month()), utc.Day())
	}
	return tx, true
}

// ExtractInstarem parses an Instarem "Transaction successful" mail body. The
// body lists Merchant, Amount paid, and a "Date,time" line in Singapore local
// time with ordinal day suffixes.
func ExtractInstarem(msg Message) (core.Transaction, bool) {
	merchant := instaremMerchant.FindStringSubmatch(msg.Body)
	paid := instaremAmount.FindStringSubmatch(msg.Body)
	if merchant == nil || paid == nil {
		return core.Transaction{}, false
	}

	amountField := strings.TrimSpace(paid[1])
	idx := strings.LastIndex(amountField, " ")
	if idx < 0 {
		return core.Transaction{}, false
	}
	cents, err := core.ParseAmountToCents(strings.TrimSpace(amountField[:idx]))
	if err != nil {
		return core.Transaction{}, false
	}

	tx := core.Transaction{
		Description: strings.TrimSpace(merchant[1]),
		Amount:      core.Money{Cents: cents},
		Currency:    strings.TrimSpace(amountField[idx+1:]),
		Source:      SourceInstarem,
	}

	when := msg.Date
	if dtm := instaremDateTime.FindStringSubmatch(msg.Body); dtm != nil {
		if parsed, ok := parseInstaremTime(strings.TrimSpace(dtm[1])); ok {
			when = parsed
		}
	}
	if !when.IsZero() {
		utc := when.UTC()
		tx.Date = core.NewDate(utc.Year(), int(utc.Month()), utc.Day())
	}
	return tx, true
}

// parseInstaremTime parses timestamps like "21st July 2025, 9:15 PM",
// stripping ordinal suffixes and assuming Singapore time.
func parseInstaremTime(raw string) (time.Time, bool) {
	clean := ordinalSuffix.ReplaceAllString(raw, "$1")
	for _, layout := range instaremLayouts {
		if t, err := time.ParseInLocation(layout, clean, singapore); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
