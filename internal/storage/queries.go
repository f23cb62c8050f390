package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// TransactionRow mirrors the transactions table. Nullable columns stay
// nullable here; the repository maps them to zero values.
type TransactionRow struct {
	ID          int64
	Date        sql.NullString
	Description string
	AmountCents int64
	Currency    sql.NullString
	Source      sql.NullString
}

type CategoryRow struct {
	ID       int64
	Name     string
	Position int64
}

type KeywordRow struct {
	ID         int64
	CategoryID int64
	Keyword    string
}

type RecurringRow struct {
	ID          int64
	DayOfMonth  int64
	Description string
	AmountCents int64
	Currency    string
	Source      string
}

const insertTransaction = `
INSERT INTO transactions (date, description, amount_cents, currency, source)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING
`

type InsertTransactionParams struct {
	Date        sql.NullString
	Description string
	AmountCents int64
	Currency    sql.NullString
	Source      string
}

// InsertTransaction reports whether a row was actually inserted; a conflict on
// the identity index counts as not inserted.
func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertTransaction,
		arg.Date, arg.Description, arg.AmountCents, arg.Currency, arg.Source)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const listTransactions = `
SELECT id, date, description, amount_cents, currency, source
FROM transactions
ORDER BY date IS NULL, date ASC, id ASC
`

func (q *Queries) ListTransactions(ctx context.Context) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		var r TransactionRow
		if err := rows.Scan(&r.ID, &r.Date, &r.Description, &r.AmountCents, &r.Currency, &r.Source); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const listSources = `
SELECT DISTINCT source FROM transactions WHERE source != '' ORDER BY source
`

func (q *Queries) ListSources(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listSources)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const listCategories = `
SELECT id, name, position FROM categories ORDER BY position ASC, id ASC
`

func (q *Queries) ListCategories(ctx context.Context) ([]CategoryRow, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategoryRow
	for rows.Next() {
		var r CategoryRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Position); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const listKeywordsByCategory = `
SELECT id, category_id, keyword FROM keywords WHERE category_id = ? ORDER BY id ASC
`

func (q *Queries) ListKeywordsByCategory(ctx context.Context, categoryID int64) ([]KeywordRow, error) {
	rows, err := q.db.QueryContext(ctx, listKeywordsByCategory, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []KeywordRow
	for rows.Next() {
		var r KeywordRow
		if err := rows.Scan(&r.ID, &r.CategoryID, &r.Keyword); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const insertCategory = `
INSERT INTO categories (name, position)
VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM categories))
ON CONFLICT (name) DO NOTHING
`

func (q *Queries) InsertCategory(ctx context.Context, name string) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertCategory, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const getCategoryID = `
SELECT id FROM categories WHERE name = ?
`

func (q *Queries) GetCategoryID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, getCategoryID, name).Scan(&id)
	return id, err
}

const insertKeyword = `
INSERT INTO keywords (category_id, keyword)
VALUES (?, ?)
ON CONFLICT (category_id, keyword) DO NOTHING
`

func (q *Queries) InsertKeyword(ctx context.Context, categoryID int64, keyword string) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertKeyword, categoryID, keyword)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const deleteKeyword = `
DELETE FROM keywords WHERE category_id = ? AND keyword = ?
`

func (q *Queries) DeleteKeyword(ctx context.Context, categoryID int64, keyword string) (bool, error) {
	res, err := q.db.ExecContext(ctx, deleteKeyword, categoryID, keyword)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const listRecurring = `
SELECT id, day_of_month, description, amount_cents, currency, source
FROM recurring_definitions
ORDER BY day_of_month ASC, id ASC
`

func (q *Queries) ListRecurring(ctx context.Context) ([]RecurringRow, error) {
	rows, err := q.db.QueryContext(ctx, listRecurring)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecurringRow
	for rows.Next() {
		var r RecurringRow
		if err := rows.Scan(&r.ID, &r.DayOfMonth, &r.Description, &r.AmountCents, &r.Currency, &r.Source); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const insertRecurring = `
INSERT INTO recurring_definitions (day_of_month, description, amount_cents, currency, source)
VALUES (?, ?, ?, ?, ?)
`

type InsertRecurringParams struct {
	DayOfMonth  int64
	Description string
	AmountCents int64
	Currency    string
	Source      string
}

func (q *Queries) InsertRecurring(ctx context.Context, arg InsertRecurringParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertRecurring,
		arg.DayOfMonth, arg.Description, arg.AmountCents, arg.Currency, arg.Source)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const deleteRecurring = `
DELETE FROM recurring_definitions WHERE id = ?
`

func (q *Queries) DeleteRecurring(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteRecurring, id)
	return err
}
