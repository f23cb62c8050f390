package core

import (
	"errors"
	"strings"
	"time"
)

const (
	// Uncategorized is the reserved default category. It always exists and
	// never carries keywords.
	Uncategorized = "Uncategorized"

	// DefaultCurrency is assumed when a source adapter cannot determine one.
	DefaultCurrency = "SGD"
)

type (
	// Date wraps time.Time; the zero value means the date is unknown.
	// Unknown dates are storable but excluded from time-series aggregation.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is a canonical ledger record. Category is derived from the
	// keyword configuration on every read and never stored on the row.
	Transaction struct {
		Date        Date
		Description string
		Amount      Money
		Currency    string
		Source      string
		Category    string
	}

	// Key is the five-field identity tuple that decides uniqueness.
	Key struct {
		Date        string
		Description string
		AmountCents int64
		Currency    string
		Source      string
	}

	// RecurringDefinition synthesizes one transaction candidate per calendar
	// month on a fixed day. Days 29-31 are rejected to avoid short-month
	// ambiguity.
	RecurringDefinition struct {
		ID          int64
		DayOfMonth  int
		Description string
		Amount      Money
		Currency    string
		Source      string
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptySource      = errors.New("empty source")
	ErrInvalidDay       = errors.New("day of month must be between 1 and 28")

	// ErrDuplicateStatement marks a statement whose source tag is already in
	// the ledger.
	ErrDuplicateStatement = errors.New("duplicate statement")
)

// NewDate builds a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// IsEmpty reports whether the date is unknown.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// ISO returns the date in YYYY-MM-DD form, or "" when unknown. ISO form is
// what the identity key and the database column carry.
func (d Date) ISO() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// Key returns the transaction's identity tuple. All five fields are compared
// by exact value equality; datamodel normalization (ISO date, trimmed source)
// must happen before this point.
func (t Transaction) Key() Key {
	return Key{
		Date:        t.Date.ISO(),
		Description: t.Description,
		AmountCents: t.Amount.Cents,
		Currency:    t.Currency,
		Source:      t.Source,
	}
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if strings.TrimSpace(t.Source) == "" {
		return ErrEmptySource
	}
	return nil
}

func (rd RecurringDefinition) Validate() error {
	if rd.DayOfMonth < 1 || rd.DayOfMonth > 28 {
		return ErrInvalidDay
	}
	if strings.TrimSpace(rd.Description) == "" {
		return ErrEmptyDescription
	}
	if rd.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(rd.Source) == "" {
		return ErrEmptySource
	}
	return nil
}

// Candidate materializes the definition into a transaction dated midnight UTC
// of the given day. The result goes through the same dedup insert path as any
// other source.
func (rd RecurringDefinition) Candidate(now time.Time) Transaction {
	return Transaction{
		Date:        NewDate(now.Year(), int(now.Month()), now.Day()),
		Description: rd.Description,
		Amount:      rd.Amount,
		Currency:    rd.Currency,
		Source:      rd.Source,
	}
}

// DueOn reports whether the definition fires on the given day. Months shorter
// than the configured day simply never trigger; days above 28 are rejected at
// validation time so that case cannot arise.
func (rd RecurringDefinition) DueOn(now time.Time) bool {
	return now.Day() == rd.DayOfMonth
}
