package core

import (
	"fmt"
	"sort"
	"time"
)

// CategoryTotal is an amount aggregated by derived category.
type CategoryTotal struct {
	Category string
	Amount   Money
}

// SeriesPoint is one bucket of a spending time series.
type SeriesPoint struct {
	Label  string
	Amount Money
}

// Aggregation levels for SpendingSeries.
const (
	AggregateDaily   = "daily"
	AggregateWeekly  = "weekly"
	AggregateMonthly = "monthly"
)

// TotalsByCategory sums amounts per derived category, largest first.
func TotalsByCategory(txs []Transaction) []CategoryTotal {
	byCat := map[string]int64{}
	for _, t := range txs {
		cat := t.Category
		if cat == "" {
			cat = Uncategorized
		}
		byCat[cat] += t.Amount.Cents
	}
	out := make([]CategoryTotal, 0, len(byCat))
	for name, cents := range byCat {
		out = append(out, CategoryTotal{Category: name, Amount: Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// SpendingSeries buckets amounts by calendar day, ISO week, or month.
// Transactions with an unknown date are skipped. Buckets come back in
// chronological order.
func SpendingSeries(txs []Transaction, level string) ([]SeriesPoint, error) {
	type bucket struct {
		sortKey string
		label   string
	}
	keyFor := func(d Date) bucket {
		switch level {
		case AggregateDaily:
			iso := d.ISO()
			return bucket{sortKey: iso, label: iso}
		case AggregateWeekly:
			year, week := d.ISOWeek()
			key := fmt.Sprintf("%04d-W%02d", year, week)
			return bucket{sortKey: key, label: key}
		case AggregateMonthly:
			return bucket{
				sortKey: d.Format("2006-01"),
				label:   d.Format("January 2006"),
			}
		}
		return bucket{}
	}

	switch level {
	case AggregateDaily, AggregateWeekly, AggregateMonthly:
	default:
		return nil, fmt.Errorf("unknown aggregation level: %q", level)
	}

	sums := map[bucket]int64{}
	for _, t := range txs {
		if t.Date.IsEmpty() {
			continue
		}
		sums[keyFor(t.Date)] += t.Amount.Cents
	}

	out := make([]SeriesPoint, 0, len(sums))
	keys := make([]bucket, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].sortKey < keys[j].sortKey })
	for _, k := range keys {
		out = append(out, SeriesPoint{Label: k.label, Amount: Money{Cents: sums[k]}})
	}
	return out, nil
}

// HighExpenses returns transactions whose amount exceeds the threshold,
// largest first. Used by the dashboard alert view.
func HighExpenses(txs []Transaction, threshold Money) []Transaction {
	var out []Transaction
	for _, t := range txs {
		if t.Amount.Cents > threshold.Cents {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Amount.Cents > out[j].Amount.Cents })
	return out
}

// Between filters transactions to the inclusive [from, to] date window,
// dropping unknown dates.
func Between(txs []Transaction, from, to time.Time) []Transaction {
	var out []Transaction
	for _, t := range txs {
		if t.Date.IsEmpty() {
			continue
		}
		if t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		out = append(out, t)
	}
	return out
}
