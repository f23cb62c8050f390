package pdf

import (
	"regexp"
	"strings"

	"tally/internal/core"
)

// Rows that are statement bookkeeping, not spending. Matched against the
// trimmed, uppercased description.
var droppedDescriptions = map[string]bool{
	"PREVIOUS BALANCE":                   true,
	"PAYMENT - DBS INTERNET/WIRELESS":    true,
	"BALANCE PREVIOUS STATEMENT":         true,
	"MONEYSEND NG WEI MENG SINGAPORE SG": true,
}

var (
	amazePrefix   = regexp.MustCompile(`(?i)^AMAZE\*\s*(.*?)\s*SINGAPORE\s+SG$`)
	grabCode      = regexp.MustCompile(`(?i)^(Grab)\*\s+[A-Z0-9-]+\s+(.+)$`)
	conversionFee = regexp.MustCompile(`(?i)CONVERSION FEE`)
	trailingFX    = regexp.MustCompile(`\s+[A-Z]{3}\s+\d+(\.\d+)?$`)
)

// Clean normalizes raw statement rows into ledger transactions: signs flip so
// charges are positive, bookkeeping rows drop out, card-network noise is
// stripped from descriptions, and the default currency fills in when the
// statement names none.
func Clean(raw []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, 0, len(raw))
	for _, tx := range raw {
		desc := strings.TrimSpace(tx.Description)
		if droppedDescriptions[strings.ToUpper(desc)] {
			continue
		}

		desc = CleanDescription(desc)

		tx.Description = desc
		tx.Amount = tx.Amount.Neg()
		if tx.Currency == "" {
			tx.Currency = core.DefaultCurrency
		}
		out = append(out, tx)
	}
	return out
}

// CleanDescription strips card-network wrapping from a merchant description.
func CleanDescription(desc string) string {
	// Amaze card passthrough: "AMAZE* MERCHANT SINGAPORE SG" -> "MERCHANT".
	if m := amazePrefix.FindStringSubmatch(desc); m != nil {
		desc = m[1]
	}

	// "Grab* A-5X7K9 SOME LOCATION" -> "Grab SOME LOCATION".
	if m := grabCode.FindStringSubmatch(desc); m != nil {
		desc = m[1] + " " + m[2]
	}

	// Conversion fee rows carry the foreign amount in the description.
	if conversionFee.MatchString(desc) {
		desc = trailingFX.ReplaceAllString(desc, "")
	}

	return desc
}
