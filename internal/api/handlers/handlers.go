package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/momo-tracker/internal/api/middleware"
	"github.com/dvloznov/momo-tracker/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransactionStore is the read and maintenance side of the transaction store.
type TransactionStore interface {
	ListTransactions(ctx context.Context, f store.Filter) (*store.Page, error)
	GetTransaction(ctx context.Context, transactionID string) (*store.TransactionRow, error)
	Summary(ctx context.Context) (*store.Summary, error)
	Truncate(ctx context.Context) error
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	store TransactionStore
	log   zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(store TransactionStore, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		store: store,
		log:   log,
	}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.store.ListTransactions(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}

	if page.Transactions == nil {
		page.Transactions = []store.TransactionRow{}
	}
	middleware.WriteJSON(w, http.StatusOK, page)
}

// GetTransaction handles GET /api/transaction/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tx, err := h.store.GetTransaction(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to get transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// Summary handles GET /api/summary
func (h *TransactionsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.Summary(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute summary")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute summary")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, summary)
}

// Truncate handles POST /api/truncate
func (h *TransactionsHandler) Truncate(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Truncate(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Failed to truncate transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to clear transactions")
		return
	}

	reqLog := middleware.RequestLogger(r, h.log)
	reqLog.Warn().Msg("All transactions cleared")
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "All transactions cleared successfully",
	})
}

func parseFilter(r *http.Request) (store.Filter, error) {
	query := r.URL.Query()
	f := store.Filter{
		Type:      query.Get("type"),
		StartDate: strings.TrimSpace(query.Get("start_date")),
		EndDate:   strings.TrimSpace(query.Get("end_date")),
		Search:    query.Get("search"),
	}

	for name, date := range map[string]string{"start_date": f.StartDate, "end_date": f.EndDate} {
		if date == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return f, errors.New("Invalid " + name + " format, expected YYYY-MM-DD")
		}
	}

	var err error
	if f.MinAmount, err = optionalDecimal(query.Get("min_amount")); err != nil {
		return f, errors.New("Invalid min_amount")
	}
	if f.MaxAmount, err = optionalDecimal(query.Get("max_amount")); err != nil {
		return f, errors.New("Invalid max_amount")
	}

	if f.Page, err = optionalInt(query.Get("page"), 1); err != nil || f.Page < 1 {
		return f, errors.New("Invalid page")
	}
	if f.PerPage, err = optionalInt(query.Get("per_page"), store.DefaultPerPage); err != nil || f.PerPage < 1 {
		return f, errors.New("Invalid per_page")
	}

	return f, nil
}

func optionalDecimal(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optionalInt(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health handles GET /health. It reports 503 when the database is unreachable.
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				status, code = "unhealthy", http.StatusServiceUnavailable
			}
		}
		middleware.WriteJSON(w, code, map[string]string{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}
