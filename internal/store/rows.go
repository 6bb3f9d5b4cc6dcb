package store

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DateTimeLayout is how transaction dates are rendered in API responses.
const DateTimeLayout = "2006-01-02 15:04:05"

// TransactionRow is one stored transaction.
type TransactionRow struct {
	ID              int64
	TransactionID   *string
	TransactionType string
	Amount          decimal.Decimal
	Fee             decimal.NullDecimal
	Sender          *string
	Recipient       *string
	PhoneNumber     *string
	TransactionDate time.Time
	Balance         decimal.NullDecimal
	Message         string
}

// MarshalJSON renders money as fixed two-decimal strings and the date in DateTimeLayout.
func (r TransactionRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID              int64   `json:"id"`
		TransactionID   *string `json:"transaction_id"`
		TransactionType string  `json:"transaction_type"`
		Amount          string  `json:"amount"`
		Fee             *string `json:"fee"`
		Sender          *string `json:"sender"`
		Recipient       *string `json:"recipient"`
		PhoneNumber     *string `json:"phone_number"`
		TransactionDate string  `json:"transaction_date"`
		Balance         *string `json:"balance"`
		Message         string  `json:"message"`
	}{
		ID:              r.ID,
		TransactionID:   r.TransactionID,
		TransactionType: r.TransactionType,
		Amount:          r.Amount.StringFixed(2),
		Fee:             fixed(r.Fee),
		Sender:          r.Sender,
		Recipient:       r.Recipient,
		PhoneNumber:     r.PhoneNumber,
		TransactionDate: r.TransactionDate.Format(DateTimeLayout),
		Balance:         fixed(r.Balance),
		Message:         r.Message,
	})
}

func fixed(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}

// Page is one page of a filtered transaction listing.
type Page struct {
	Transactions []TransactionRow `json:"transactions"`
	Total        int64            `json:"total"`
	Page         int              `json:"page"`
	PerPage      int              `json:"per_page"`
	TotalPages   int64            `json:"total_pages"`
}
