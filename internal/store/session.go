package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/dvloznov/momo-tracker/internal/pipeline"
)

const insertTransaction = `INSERT INTO transactions (
    transaction_id, transaction_type, amount, fee, sender, recipient,
    phone_number, transaction_date, balance, message
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// session holds one pooled connection for the duration of a batch.
type session struct {
	conn    *sql.Conn
	dialect Dialect
	mode    domain.ImportMode
}

// Open implements pipeline.Sink by reserving a connection for one batch.
func (s *Store) Open(ctx context.Context, mode domain.ImportMode) (pipeline.Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("Open: acquiring connection: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("Open: pinging database: %w", err)
	}
	return &session{conn: conn, dialect: s.dialect, mode: mode}, nil
}

func (s *session) Clear(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, s.dialect.TruncateSQL()); err != nil {
		return fmt.Errorf("Clear: %w", err)
	}
	return nil
}

func (s *session) Insert(ctx context.Context, rec *domain.TransactionRecord) (bool, error) {
	if rec.TransactionDate == nil {
		return false, fmt.Errorf("Insert: transaction_date is required")
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("Insert: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if s.mode == domain.ImportModeAppend {
		exists, err := s.exists(ctx, tx, rec)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}

	_, err = tx.ExecContext(ctx, s.dialect.Rebind(insertTransaction),
		rec.TransactionID,
		string(rec.TransactionType),
		rec.Amount.Round(2),
		rec.Fee.Round(2),
		rec.Sender,
		rec.Recipient,
		rec.PhoneNumber,
		rec.TransactionDate.UTC(),
		rec.Balance.Round(2),
		rec.Message,
	)
	if err != nil {
		return false, fmt.Errorf("Insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("Insert: committing: %w", err)
	}
	return true, nil
}

// exists matches on transaction id plus date. Records without an id are
// matched on date plus message body instead.
func (s *session) exists(ctx context.Context, tx *sql.Tx, rec *domain.TransactionRecord) (bool, error) {
	var (
		query string
		args  []interface{}
	)
	if rec.TransactionID != nil {
		query = `SELECT COUNT(*) FROM transactions WHERE transaction_id = ? AND transaction_date = ?`
		args = []interface{}{*rec.TransactionID, rec.TransactionDate.UTC()}
	} else {
		query = `SELECT COUNT(*) FROM transactions WHERE transaction_id IS NULL AND transaction_date = ? AND message = ?`
		args = []interface{}{rec.TransactionDate.UTC(), rec.Message}
	}

	var n int64
	if err := tx.QueryRowContext(ctx, s.dialect.Rebind(query), args...).Scan(&n); err != nil {
		return false, fmt.Errorf("Insert: checking for existing record: %w", err)
	}
	return n > 0, nil
}

func (s *session) Close() error {
	return s.conn.Close()
}

// Ensure Store implements pipeline.Sink.
var _ pipeline.Sink = (*Store)(nil)
