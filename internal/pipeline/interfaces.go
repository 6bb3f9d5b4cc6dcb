package pipeline

import (
	"context"

	"github.com/dvloznov/momo-tracker/internal/domain"
)

// MessageSource loads every message of a backup container.
type MessageSource interface {
	Open(ctx context.Context, uri string) ([]domain.RawMessage, error)
}

// Sink hands out persistence sessions. Open fails when the destination is
// unreachable. In append mode the returned session skips records that are
// already stored; in replace mode every record is inserted.
type Sink interface {
	Open(ctx context.Context, mode domain.ImportMode) (Session, error)
}

// Session is one connection to the destination, held for a single batch.
type Session interface {
	// Clear removes every stored record.
	Clear(ctx context.Context) error

	// Insert stores rec as one atomic unit, committing on success and rolling
	// back on failure. It reports inserted=false without error when the
	// record already exists and the session skips duplicates.
	Insert(ctx context.Context, rec *domain.TransactionRecord) (inserted bool, err error)

	// Close releases the connection.
	Close() error
}
