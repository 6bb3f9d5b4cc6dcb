package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Summary aggregates the stored transactions for the dashboard.
type Summary struct {
	TotalTransactions int64               `json:"total_transactions"`
	TotalVolume       decimal.Decimal     `json:"total_volume"`
	Statistics        Statistics          `json:"statistics"`
	ByType            []TypeBreakdown     `json:"by_type"`
	MonthlyTrends     []MonthlyTrend      `json:"monthly_trends"`
	PaymentDeposit    []CategoryBreakdown `json:"payment_deposit"`
}

// Statistics are computed over transactions with a positive amount, except
// the most active day which counts every transaction.
type Statistics struct {
	AvgAmount          decimal.Decimal `json:"avg_amount"`
	MaxAmount          decimal.Decimal `json:"max_amount"`
	TotalFees          decimal.Decimal `json:"total_fees"`
	MostActiveDay      *string         `json:"most_active_day"`
	MostActiveDayCount int64           `json:"most_active_day_count"`
}

// TypeBreakdown is the count and volume of one transaction type.
type TypeBreakdown struct {
	TransactionType string          `json:"transaction_type"`
	Count           int64           `json:"count"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AvgAmount       decimal.Decimal `json:"avg_amount"`
}

// MonthlyTrend is the activity of one calendar month (YYYY-MM).
type MonthlyTrend struct {
	Month       string          `json:"month"`
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Inflow      decimal.Decimal `json:"inflow"`
	Outflow     decimal.Decimal `json:"outflow"`
}

// CategoryBreakdown groups transaction types into Deposits, Payments and Others.
type CategoryBreakdown struct {
	Category    string          `json:"category"`
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

const categoryCase = `CASE
    WHEN transaction_type IN ('MONEY_RECEIVED', 'BANK_DEPOSIT') THEN 'Deposits'
    WHEN transaction_type IN ('PAYMENT', 'TRANSFER', 'WITHDRAWAL') THEN 'Payments'
    ELSE 'Others'
END`

// Summary computes dashboard statistics over all stored transactions.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		ByType:         []TypeBreakdown{},
		MonthlyTrends:  []MonthlyTrend{},
		PaymentDeposit: []CategoryBreakdown{},
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&sum.TotalTransactions); err != nil {
		return nil, fmt.Errorf("Summary: counting: %w", err)
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0), COALESCE(AVG(amount), 0), COALESCE(MAX(amount), 0), COALESCE(SUM(fee), 0)
		FROM transactions
		WHERE amount > 0`).Scan(&sum.TotalVolume, &sum.Statistics.AvgAmount, &sum.Statistics.MaxAmount, &sum.Statistics.TotalFees)
	if err != nil {
		return nil, fmt.Errorf("Summary: statistics: %w", err)
	}
	sum.TotalVolume = sum.TotalVolume.Round(2)
	sum.Statistics.AvgAmount = sum.Statistics.AvgAmount.Round(2)
	sum.Statistics.MaxAmount = sum.Statistics.MaxAmount.Round(2)
	sum.Statistics.TotalFees = sum.Statistics.TotalFees.Round(2)

	if err := s.mostActiveDay(ctx, &sum.Statistics); err != nil {
		return nil, err
	}
	if sum.ByType, err = s.byType(ctx); err != nil {
		return nil, err
	}
	if sum.MonthlyTrends, err = s.monthlyTrends(ctx); err != nil {
		return nil, err
	}
	if sum.PaymentDeposit, err = s.paymentDeposit(ctx); err != nil {
		return nil, err
	}

	return sum, nil
}

func (s *Store) mostActiveDay(ctx context.Context, st *Statistics) error {
	day := s.dialect.Day("transaction_date")
	query := fmt.Sprintf(`SELECT %[1]s AS day, COUNT(*) AS n FROM transactions GROUP BY %[1]s ORDER BY n DESC, day ASC LIMIT 1`, day)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("Summary: most active day: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		var d string
		if err := rows.Scan(&d, &st.MostActiveDayCount); err != nil {
			return fmt.Errorf("Summary: scanning most active day: %w", err)
		}
		st.MostActiveDay = &d
	}
	return rows.Err()
}

func (s *Store) byType(ctx context.Context) ([]TypeBreakdown, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_type, COUNT(*) AS n, COALESCE(SUM(amount), 0), COALESCE(AVG(amount), 0)
		FROM transactions
		WHERE amount > 0
		GROUP BY transaction_type
		ORDER BY n DESC, transaction_type ASC`)
	if err != nil {
		return nil, fmt.Errorf("Summary: by type: %w", err)
	}
	defer rows.Close()

	out := []TypeBreakdown{}
	for rows.Next() {
		var b TypeBreakdown
		if err := rows.Scan(&b.TransactionType, &b.Count, &b.TotalAmount, &b.AvgAmount); err != nil {
			return nil, fmt.Errorf("Summary: scanning by type: %w", err)
		}
		b.TotalAmount = b.TotalAmount.Round(2)
		b.AvgAmount = b.AvgAmount.Round(2)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) monthlyTrends(ctx context.Context) ([]MonthlyTrend, error) {
	month := s.dialect.Month("transaction_date")
	query := fmt.Sprintf(`
		SELECT %[1]s AS month,
		       COUNT(*),
		       COALESCE(SUM(amount), 0),
		       COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN amount < 0 THEN ABS(amount) ELSE 0 END), 0)
		FROM transactions
		GROUP BY %[1]s
		ORDER BY month`, month)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("Summary: monthly trends: %w", err)
	}
	defer rows.Close()

	out := []MonthlyTrend{}
	for rows.Next() {
		var m MonthlyTrend
		if err := rows.Scan(&m.Month, &m.Count, &m.TotalAmount, &m.Inflow, &m.Outflow); err != nil {
			return nil, fmt.Errorf("Summary: scanning monthly trends: %w", err)
		}
		m.TotalAmount = m.TotalAmount.Round(2)
		m.Inflow = m.Inflow.Round(2)
		m.Outflow = m.Outflow.Round(2)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) paymentDeposit(ctx context.Context) ([]CategoryBreakdown, error) {
	query := fmt.Sprintf(`
		SELECT %[1]s AS category, COUNT(*), COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE amount > 0
		GROUP BY %[1]s
		ORDER BY category`, categoryCase)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("Summary: payment/deposit split: %w", err)
	}
	defer rows.Close()

	out := []CategoryBreakdown{}
	for rows.Next() {
		var c CategoryBreakdown
		if err := rows.Scan(&c.Category, &c.Count, &c.TotalAmount); err != nil {
			return nil, fmt.Errorf("Summary: scanning payment/deposit split: %w", err)
		}
		c.TotalAmount = c.TotalAmount.Round(2)
		out = append(out, c)
	}
	return out, rows.Err()
}
