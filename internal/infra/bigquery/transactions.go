package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/momo-tracker/internal/domain"
)

// TransactionRow is the warehouse shape of one imported transaction.
type TransactionRow struct {
	LoadID string `bigquery:"load_id"` // REQUIRED, one per sink session

	TransactionID   bigquery.NullString `bigquery:"transaction_id"`   // NULLABLE
	TransactionDate civil.DateTime      `bigquery:"transaction_date"` // REQUIRED
	TransactionType string              `bigquery:"transaction_type"` // REQUIRED

	Amount  *big.Rat `bigquery:"amount"`  // REQUIRED NUMERIC
	Fee     *big.Rat `bigquery:"fee"`     // NULLABLE NUMERIC
	Balance *big.Rat `bigquery:"balance"` // NULLABLE NUMERIC

	Sender      bigquery.NullString `bigquery:"sender"`
	Recipient   bigquery.NullString `bigquery:"recipient"`
	PhoneNumber bigquery.NullString `bigquery:"phone_number"`

	Message string `bigquery:"message"` // REQUIRED, verbatim body

	LoadedTS time.Time `bigquery:"loaded_ts"` // REQUIRED
}

// NewTransactionRow maps an assembled record into a warehouse row. The
// record must carry a transaction date.
func NewTransactionRow(loadID string, rec *domain.TransactionRecord, loadedAt time.Time) *TransactionRow {
	return &TransactionRow{
		LoadID:          loadID,
		TransactionID:   nullString(rec.TransactionID),
		TransactionDate: civil.DateTimeOf(rec.TransactionDate.UTC()),
		TransactionType: string(rec.TransactionType),
		Amount:          rec.Amount.Round(2).Rat(),
		Fee:             rec.Fee.Round(2).Rat(),
		Balance:         rec.Balance.Round(2).Rat(),
		Sender:          nullString(rec.Sender),
		Recipient:       nullString(rec.Recipient),
		PhoneNumber:     nullString(rec.PhoneNumber),
		Message:         rec.Message,
		LoadedTS:        loadedAt,
	}
}

func nullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}
