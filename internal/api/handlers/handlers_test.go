package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/dvloznov/momo-tracker/internal/jobs"
	"github.com/dvloznov/momo-tracker/internal/pipeline"
	"github.com/dvloznov/momo-tracker/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MockStore is a mock implementation of TransactionStore.
type MockStore struct {
	ListTransactionsFunc func(ctx context.Context, f store.Filter) (*store.Page, error)
	GetTransactionFunc   func(ctx context.Context, id string) (*store.TransactionRow, error)
	SummaryFunc          func(ctx context.Context) (*store.Summary, error)
	TruncateFunc         func(ctx context.Context) error
}

func (m *MockStore) ListTransactions(ctx context.Context, f store.Filter) (*store.Page, error) {
	if m.ListTransactionsFunc != nil {
		return m.ListTransactionsFunc(ctx, f)
	}
	return &store.Page{Page: f.Page, PerPage: f.PerPage}, nil
}

func (m *MockStore) GetTransaction(ctx context.Context, id string) (*store.TransactionRow, error) {
	if m.GetTransactionFunc != nil {
		return m.GetTransactionFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) Summary(ctx context.Context) (*store.Summary, error) {
	if m.SummaryFunc != nil {
		return m.SummaryFunc(ctx)
	}
	return &store.Summary{}, nil
}

func (m *MockStore) Truncate(ctx context.Context) error {
	if m.TruncateFunc != nil {
		return m.TruncateFunc(ctx)
	}
	return nil
}

// MockImporter is a mock implementation of Importer.
type MockImporter struct {
	ImportFunc func(ctx context.Context, req pipeline.ImportRequest) (*pipeline.ImportResult, error)
}

func (m *MockImporter) Import(ctx context.Context, log zerolog.Logger, req pipeline.ImportRequest) (*pipeline.ImportResult, error) {
	return m.ImportFunc(ctx, req)
}

// MockPublisher is a mock implementation of jobs.Publisher.
type MockPublisher struct {
	PublishImportFunc func(ctx context.Context, job *jobs.ImportJob) error
}

func (m *MockPublisher) PublishImport(ctx context.Context, job *jobs.ImportJob) error {
	return m.PublishImportFunc(ctx, job)
}

func (m *MockPublisher) Close() error { return nil }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
	return body
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestListTransactions_ParsesFilter(t *testing.T) {
	var got store.Filter
	h := NewTransactionsHandler(&MockStore{
		ListTransactionsFunc: func(ctx context.Context, f store.Filter) (*store.Page, error) {
			got = f
			return &store.Page{Page: f.Page, PerPage: f.PerPage}, nil
		},
	}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet,
		"/api/transactions?type=PAYMENT&start_date=2024-01-01&end_date=2024-01-31&search=jane&min_amount=100&max_amount=2500.50&page=2&per_page=25", nil)
	rec := httptest.NewRecorder()
	h.ListTransactions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got.Type != "PAYMENT" || got.StartDate != "2024-01-01" || got.EndDate != "2024-01-31" || got.Search != "jane" {
		t.Errorf("unexpected filter %+v", got)
	}
	if got.MinAmount == nil || !got.MinAmount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("MinAmount = %v", got.MinAmount)
	}
	if got.MaxAmount == nil || !got.MaxAmount.Equal(decimal.RequireFromString("2500.5")) {
		t.Errorf("MaxAmount = %v", got.MaxAmount)
	}
	if got.Page != 2 || got.PerPage != 25 {
		t.Errorf("page = %d per_page = %d", got.Page, got.PerPage)
	}

	body := decodeBody(t, rec)
	if txs, ok := body["transactions"].([]interface{}); !ok || len(txs) != 0 {
		t.Errorf("expected empty transactions array, got %v", body["transactions"])
	}
}

func TestListTransactions_Defaults(t *testing.T) {
	var got store.Filter
	h := NewTransactionsHandler(&MockStore{
		ListTransactionsFunc: func(ctx context.Context, f store.Filter) (*store.Page, error) {
			got = f
			return &store.Page{}, nil
		},
	}, zerolog.Nop())

	h.ListTransactions(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/transactions", nil))

	if got.Page != 1 || got.PerPage != store.DefaultPerPage || got.MinAmount != nil || got.MaxAmount != nil {
		t.Errorf("unexpected default filter %+v", got)
	}
}

func TestListTransactions_TrimsDates(t *testing.T) {
	var got store.Filter
	h := NewTransactionsHandler(&MockStore{
		ListTransactionsFunc: func(ctx context.Context, f store.Filter) (*store.Page, error) {
			got = f
			return &store.Page{}, nil
		},
	}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListTransactions(rec, httptest.NewRequest(http.MethodGet, "/api/transactions?start_date=%202024-01-05&end_date=2024-01-31%20", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got.StartDate != "2024-01-05" || got.EndDate != "2024-01-31" {
		t.Errorf("dates = %q %q, want trimmed", got.StartDate, got.EndDate)
	}
}

func TestListTransactions_BadInput(t *testing.T) {
	h := NewTransactionsHandler(&MockStore{}, zerolog.Nop())

	tests := []struct {
		name  string
		query string
	}{
		{"bad start date", "start_date=01/02/2024"},
		{"bad end date", "end_date=2024-13-01"},
		{"bad min amount", "min_amount=abc"},
		{"bad max amount", "max_amount=1e"},
		{"bad page", "page=x"},
		{"zero page", "page=0"},
		{"negative per page", "per_page=-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ListTransactions(rec, httptest.NewRequest(http.MethodGet, "/api/transactions?"+tt.query, nil))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestListTransactions_StoreError(t *testing.T) {
	h := NewTransactionsHandler(&MockStore{
		ListTransactionsFunc: func(ctx context.Context, f store.Filter) (*store.Page, error) {
			return nil, errors.New("connection refused")
		},
	}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListTransactions(rec, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestGetTransaction(t *testing.T) {
	id := "76662021700"
	h := NewTransactionsHandler(&MockStore{
		GetTransactionFunc: func(ctx context.Context, txID string) (*store.TransactionRow, error) {
			if txID != id {
				return nil, store.ErrNotFound
			}
			return &store.TransactionRow{TransactionID: &id, TransactionType: "MONEY_RECEIVED", Amount: decimal.NewFromInt(2000)}, nil
		},
	}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetTransaction(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/transaction/"+id, nil), "id", id))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["transaction_id"] != id || body["amount"] != "2000.00" {
		t.Errorf("unexpected body %v", body)
	}

	rec = httptest.NewRecorder()
	h.GetTransaction(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/transaction/nope", nil), "id", "nope"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "Transaction not found" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestTruncate(t *testing.T) {
	called := false
	h := NewTransactionsHandler(&MockStore{
		TruncateFunc: func(ctx context.Context) error {
			called = true
			return nil
		},
	}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Truncate(rec, httptest.NewRequest(http.MethodPost, "/api/truncate", nil))
	if rec.Code != http.StatusOK || !called {
		t.Fatalf("status = %d, called = %v", rec.Code, called)
	}
	if decodeBody(t, rec)["message"] != "All transactions cleared successfully" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestSummary(t *testing.T) {
	h := NewTransactionsHandler(&MockStore{
		SummaryFunc: func(ctx context.Context) (*store.Summary, error) {
			return &store.Summary{TotalTransactions: 3, TotalVolume: decimal.NewFromInt(4500)}, nil
		},
	}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Summary(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if decodeBody(t, rec)["total_transactions"] != float64(3) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(pingFunc(func(context.Context) error { return nil }))(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || decodeBody(t, rec)["status"] != "healthy" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	Health(pingFunc(func(context.Context) error { return errors.New("down") }))(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func multipartRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	} else {
		mw.WriteField("other", "value")
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload_ImportsAndRemovesFile(t *testing.T) {
	dir := t.TempDir()
	var imported pipeline.ImportRequest
	var content []byte
	h := NewUploadHandler(&MockImporter{
		ImportFunc: func(ctx context.Context, req pipeline.ImportRequest) (*pipeline.ImportResult, error) {
			imported = req
			var err error
			content, err = os.ReadFile(req.SourceURI)
			if err != nil {
				return nil, err
			}
			return &pipeline.ImportResult{BatchID: "b-1", Persisted: 12}, nil
		},
	}, dir, 1<<20, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartRequest(t, "file", "sms-backup.XML", "<smses/>"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["processed_count"] != float64(12) || body["message"] != "File uploaded and processed successfully" {
		t.Errorf("unexpected body %v", body)
	}
	if imported.Mode != domain.ImportModeReplace {
		t.Errorf("mode = %q, want replace", imported.Mode)
	}
	if !strings.HasSuffix(imported.SourceURI, "-sms-backup.XML") || string(content) != "<smses/>" {
		t.Errorf("unexpected saved file %q with %q", imported.SourceURI, content)
	}
	if _, err := os.Stat(imported.SourceURI); !os.IsNotExist(err) {
		t.Errorf("expected uploaded file to be removed, stat err = %v", err)
	}
}

func TestUpload_Rejects(t *testing.T) {
	importer := &MockImporter{
		ImportFunc: func(ctx context.Context, req pipeline.ImportRequest) (*pipeline.ImportResult, error) {
			t.Fatal("importer must not be called")
			return nil, nil
		},
	}

	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		maxBytes int64
		status   int
		message  string
	}{
		{
			name:     "missing file part",
			req:      func(t *testing.T) *http.Request { return multipartRequest(t, "", "", "") },
			maxBytes: 1 << 20,
			status:   http.StatusBadRequest,
			message:  "No file part",
		},
		{
			name:     "wrong extension",
			req:      func(t *testing.T) *http.Request { return multipartRequest(t, "file", "backup.txt", "x") },
			maxBytes: 1 << 20,
			status:   http.StatusBadRequest,
			message:  "Invalid file type",
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "file", "backup.xml", strings.Repeat("a", 4096))
			},
			maxBytes: 512,
			status:   http.StatusRequestEntityTooLarge,
			message:  "File too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewUploadHandler(importer, t.TempDir(), tt.maxBytes, zerolog.Nop())
			rec := httptest.NewRecorder()
			h.Upload(rec, tt.req(t))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if decodeBody(t, rec)["error"] != tt.message {
				t.Errorf("unexpected body %s", rec.Body.String())
			}
		})
	}
}

func TestUpload_ImportFailure(t *testing.T) {
	dir := t.TempDir()
	h := NewUploadHandler(&MockImporter{
		ImportFunc: func(ctx context.Context, req pipeline.ImportRequest) (*pipeline.ImportResult, error) {
			return nil, pipeline.ErrSourceUnreadable
		},
	}, dir, 1<<20, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartRequest(t, "file", "backup.xml", "not xml"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected upload dir to be empty, found %d entries", len(entries))
	}
}

func TestEnqueueImport(t *testing.T) {
	var published *jobs.ImportJob
	h := NewJobsHandler(&MockPublisher{
		PublishImportFunc: func(ctx context.Context, job *jobs.ImportJob) error {
			job.JobID = "job-1"
			job.Status = jobs.JobStatusPending
			published = job
			return nil
		},
	}, nil, domain.ImportModeAppend, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.EnqueueImport(rec, httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(`{"source_uri":"gs://b/sms.xml"}`)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if published.Mode != "append" || published.SourceURI != "gs://b/sms.xml" {
		t.Errorf("unexpected job %+v", published)
	}
	if decodeBody(t, rec)["job_id"] != "job-1" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestEnqueueImport_BadRequests(t *testing.T) {
	h := NewJobsHandler(&MockPublisher{
		PublishImportFunc: func(ctx context.Context, job *jobs.ImportJob) error {
			t.Fatal("publisher must not be called")
			return nil
		},
	}, nil, "", zerolog.Nop())

	for _, body := range []string{`not json`, `{}`, `{"source_uri":"a.xml","mode":"merge"}`} {
		rec := httptest.NewRecorder()
		h.EnqueueImport(rec, httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}
