package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultPerPage is used when a filter does not set PerPage.
const DefaultPerPage = 10

// MaxPerPage bounds a single page.
const MaxPerPage = 500

const selectTransaction = `SELECT id, transaction_id, transaction_type, amount, fee, sender, recipient,
    phone_number, transaction_date, balance, message FROM transactions`

// Filter narrows ListTransactions. Zero values mean "no constraint".
type Filter struct {
	Type      string
	StartDate string // YYYY-MM-DD, inclusive, compared on the calendar date
	EndDate   string // YYYY-MM-DD, inclusive
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Search    string // substring of message, sender, recipient or phone number
	Page      int    // 1-based
	PerPage   int
}

func (f Filter) normalized() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	return f
}

// where builds the WHERE clause for f with ? placeholders.
func (s *Store) where(f Filter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	day := s.dialect.Day("transaction_date")

	if t := strings.TrimSpace(f.Type); t != "" {
		clauses = append(clauses, "transaction_type = ?")
		args = append(args, t)
	}
	if d := strings.TrimSpace(f.StartDate); d != "" {
		clauses = append(clauses, day+" >= ?")
		args = append(args, d)
	}
	if d := strings.TrimSpace(f.EndDate); d != "" {
		clauses = append(clauses, day+" <= ?")
		args = append(args, d)
	}
	if f.MinAmount != nil {
		clauses = append(clauses, "amount >= ?")
		args = append(args, f.MinAmount.InexactFloat64())
	}
	if f.MaxAmount != nil {
		clauses = append(clauses, "amount <= ?")
		args = append(args, f.MaxAmount.InexactFloat64())
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		like := s.dialect.Like()
		clauses = append(clauses, fmt.Sprintf(
			"(message %[1]s ? OR sender %[1]s ? OR recipient %[1]s ? OR phone_number %[1]s ?)", like))
		pattern := "%" + q + "%"
		args = append(args, pattern, pattern, pattern, pattern)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListTransactions returns one page of transactions matching f, newest first.
func (s *Store) ListTransactions(ctx context.Context, f Filter) (*Page, error) {
	f = f.normalized()
	where, args := s.where(f)

	var total int64
	if err := s.db.QueryRowContext(ctx, s.dialect.Rebind("SELECT COUNT(*) FROM transactions"+where), args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("ListTransactions: counting: %w", err)
	}

	query := s.dialect.Rebind(selectTransaction + where + " ORDER BY transaction_date DESC, id DESC LIMIT ? OFFSET ?")
	pageArgs := append(append([]interface{}{}, args...), f.PerPage, (f.Page-1)*f.PerPage)

	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: querying: %w", err)
	}
	defer rows.Close()

	txs := make([]TransactionRow, 0, f.PerPage)
	for rows.Next() {
		row, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: %w", err)
		}
		txs = append(txs, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTransactions: iterating: %w", err)
	}

	perPage := int64(f.PerPage)
	return &Page{
		Transactions: txs,
		Total:        total,
		Page:         f.Page,
		PerPage:      f.PerPage,
		TotalPages:   (total + perPage - 1) / perPage,
	}, nil
}

// GetTransaction returns the first stored row carrying transactionID.
func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*TransactionRow, error) {
	query := s.dialect.Rebind(selectTransaction + " WHERE transaction_id = ? ORDER BY id ASC LIMIT 1")
	row, err := scanTransaction(s.db.QueryRowContext(ctx, query, transactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return row, nil
}

// Truncate removes every stored transaction.
func (s *Store) Truncate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.TruncateSQL()); err != nil {
		return fmt.Errorf("Truncate: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(sc scanner) (*TransactionRow, error) {
	var r TransactionRow
	err := sc.Scan(
		&r.ID,
		&r.TransactionID,
		&r.TransactionType,
		&r.Amount,
		&r.Fee,
		&r.Sender,
		&r.Recipient,
		&r.PhoneNumber,
		&r.TransactionDate,
		&r.Balance,
		&r.Message,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning transaction: %w", err)
	}
	return &r, nil
}
