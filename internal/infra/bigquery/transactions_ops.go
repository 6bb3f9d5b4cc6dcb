package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/dvloznov/momo-tracker/internal/pipeline"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const transactionsTable = "transactions"

// WarehouseSink streams imported transactions into a BigQuery table. It holds
// a shared client for all sessions.
type WarehouseSink struct {
	client    *bigquery.Client
	datasetID string
}

// NewWarehouseSink creates a BigQuery client for projectID writing to datasetID.
func NewWarehouseSink(ctx context.Context, projectID, datasetID string) (*WarehouseSink, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewWarehouseSink: creating client: %w", err)
	}
	return &WarehouseSink{client: client, datasetID: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (s *WarehouseSink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *WarehouseSink) table() *bigquery.Table {
	return s.client.Dataset(s.datasetID).Table(transactionsTable)
}

func (s *WarehouseSink) qualifiedTable() string {
	return fmt.Sprintf("`%s.%s.%s`", s.client.Project(), s.datasetID, transactionsTable)
}

// EnsureTable creates the transactions table from TransactionRow when it does not exist.
func (s *WarehouseSink) EnsureTable(ctx context.Context) error {
	_, err := s.table().Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("EnsureTable: reading table metadata: %w", err)
	}

	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: inferring schema: %w", err)
	}
	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.MonthPartitioningType,
			Field: "transaction_date",
		},
	}
	if err := s.table().Create(ctx, meta); err != nil {
		return fmt.Errorf("EnsureTable: creating table: %w", err)
	}
	return nil
}

// Open implements pipeline.Sink. It fails when the table is not reachable.
func (s *WarehouseSink) Open(ctx context.Context, mode domain.ImportMode) (pipeline.Session, error) {
	if _, err := s.table().Metadata(ctx); err != nil {
		return nil, fmt.Errorf("Open: reading table metadata: %w", err)
	}
	return &warehouseSession{sink: s, loadID: uuid.NewString(), mode: mode}, nil
}

// ListTransactions returns the most recent rows, newest first.
func (s *WarehouseSink) ListTransactions(ctx context.Context, limit int) ([]*TransactionRow, error) {
	if limit <= 0 {
		limit = 10
	}
	q := s.client.Query(`
		SELECT load_id, transaction_id, transaction_date, transaction_type, amount, fee, balance,
		       sender, recipient, phone_number, message, loaded_ts
		FROM ` + s.qualifiedTable() + `
		ORDER BY transaction_date DESC
		LIMIT @limit
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// runQuery runs a DML statement and waits for the job to finish.
func (s *WarehouseSink) runQuery(ctx context.Context, sql string, params ...bigquery.QueryParameter) error {
	q := s.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}

// warehouseSession streams rows one at a time. Each streamed row is its own
// unit of work, so there is nothing to roll back on failure.
type warehouseSession struct {
	sink   *WarehouseSink
	loadID string
	mode   domain.ImportMode
}

func (w *warehouseSession) Clear(ctx context.Context) error {
	if err := w.sink.runQuery(ctx, "TRUNCATE TABLE "+w.sink.qualifiedTable()); err != nil {
		return fmt.Errorf("Clear: %w", err)
	}
	return nil
}

func (w *warehouseSession) Insert(ctx context.Context, rec *domain.TransactionRecord) (bool, error) {
	if rec.TransactionDate == nil {
		return false, fmt.Errorf("Insert: transaction_date is required")
	}

	if w.mode == domain.ImportModeAppend && rec.TransactionID != nil {
		exists, err := w.exists(ctx, *rec.TransactionID, civil.DateTimeOf(rec.TransactionDate.UTC()))
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}

	row := NewTransactionRow(w.loadID, rec, time.Now().UTC())
	if err := w.sink.table().Inserter().Put(ctx, row); err != nil {
		return false, fmt.Errorf("Insert: inserting row: %w", err)
	}
	return true, nil
}

func (w *warehouseSession) exists(ctx context.Context, transactionID string, date civil.DateTime) (bool, error) {
	q := w.sink.client.Query(`
		SELECT COUNT(*) AS n
		FROM ` + w.sink.qualifiedTable() + `
		WHERE transaction_id = @transaction_id AND transaction_date = @transaction_date
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: transactionID},
		{Name: "transaction_date", Value: date},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("Insert: checking for existing row: %w", err)
	}
	var row struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return false, fmt.Errorf("Insert: reading existing row count: %w", err)
	}
	return row.N > 0, nil
}

// Close is a no-op; the client belongs to the sink.
func (w *warehouseSession) Close() error {
	return nil
}

// Ensure WarehouseSink implements pipeline.Sink.
var _ pipeline.Sink = (*WarehouseSink)(nil)
