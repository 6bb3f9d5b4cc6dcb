package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/dvloznov/momo-tracker/internal/events"
	"github.com/dvloznov/momo-tracker/internal/metrics"
	"github.com/dvloznov/momo-tracker/internal/parser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

// MockSource is a mock implementation of MessageSource for testing.
type MockSource struct {
	OpenFunc func(ctx context.Context, uri string) ([]domain.RawMessage, error)
}

func (m *MockSource) Open(ctx context.Context, uri string) ([]domain.RawMessage, error) {
	return m.OpenFunc(ctx, uri)
}

// MockSink is a mock implementation of Sink and Session that records calls.
type MockSink struct {
	OpenErr    error
	ClearErr   error
	InsertFunc func(rec *domain.TransactionRecord) (bool, error)

	Mode     domain.ImportMode
	Opened   int
	Cleared  int
	Closed   int
	Inserted []*domain.TransactionRecord
	calls    []string
}

func (m *MockSink) Open(ctx context.Context, mode domain.ImportMode) (Session, error) {
	m.calls = append(m.calls, "open")
	m.Mode = mode
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.Opened++
	return m, nil
}

func (m *MockSink) Clear(ctx context.Context) error {
	m.calls = append(m.calls, "clear")
	if m.ClearErr != nil {
		return m.ClearErr
	}
	m.Cleared++
	return nil
}

func (m *MockSink) Insert(ctx context.Context, rec *domain.TransactionRecord) (bool, error) {
	m.calls = append(m.calls, "insert")
	if m.InsertFunc != nil {
		ok, err := m.InsertFunc(rec)
		if err != nil || !ok {
			return ok, err
		}
	}
	m.Inserted = append(m.Inserted, rec)
	return true, nil
}

func (m *MockSink) Close() error {
	m.calls = append(m.calls, "close")
	m.Closed++
	return nil
}

// MockPublisher records published events.
type MockPublisher struct {
	PublishFunc func(ev events.ImportCompleted) error
	Events      []events.ImportCompleted
}

func (m *MockPublisher) PublishImportCompleted(ctx context.Context, ev events.ImportCompleted) error {
	m.Events = append(m.Events, ev)
	if m.PublishFunc != nil {
		return m.PublishFunc(ev)
	}
	return nil
}

func (m *MockPublisher) Close() {}

func staticSource(msgs ...domain.RawMessage) *MockSource {
	return &MockSource{OpenFunc: func(ctx context.Context, uri string) ([]domain.RawMessage, error) {
		return msgs, nil
	}}
}

func momo(body string) domain.RawMessage {
	return domain.RawMessage{SenderAddress: DefaultSenderAddress, Body: body}
}

func received(n int) string {
	return fmt.Sprintf("You have received %d RWF from Jane Smith at 2024-01-05 10:%02d:00. TxId: %d", 1000+n, n%60, n)
}

func TestImportPersistsProviderMessagesOnly(t *testing.T) {
	src := staticSource(
		momo(received(1)),
		domain.RawMessage{SenderAddress: "+250788000000", Body: received(2)},
		momo(received(3)),
		domain.RawMessage{SenderAddress: "MTN", Body: received(4)},
	)
	sink := &MockSink{}

	res, err := NewImporter(src, sink).Import(context.Background(), zerolog.Nop(), ImportRequest{SourceURI: "sms.xml"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Persisted != 2 || res.Messages != 4 || res.Matched != 2 {
		t.Errorf("got %+v, want persisted=2 messages=4 matched=2", res)
	}
	if len(sink.Inserted) != 2 {
		t.Errorf("inserted %d records, want 2", len(sink.Inserted))
	}
	if res.BatchID == "" {
		t.Error("expected batch id")
	}
}

func TestImportClearsBeforeInsertAndCloses(t *testing.T) {
	sink := &MockSink{}
	_, err := NewImporter(staticSource(momo(received(1))), sink).
		Import(context.Background(), zerolog.Nop(), ImportRequest{SourceURI: "sms.xml"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	want := []string{"open", "clear", "insert", "close"}
	if strings.Join(sink.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", sink.calls, want)
	}
}

func TestImportAppendModeSkipsClearAndCountsDuplicates(t *testing.T) {
	seen := map[string]bool{}
	sink := &MockSink{InsertFunc: func(rec *domain.TransactionRecord) (bool, error) {
		key := *rec.TransactionID
		if seen[key] {
			return false, nil
		}
		seen[key] = true
		return true, nil
	}}
	src := staticSource(momo(received(1)), momo(received(1)), momo(received(2)))

	res, err := NewImporter(src, sink).Import(context.Background(), zerolog.Nop(),
		ImportRequest{SourceURI: "sms.xml", Mode: domain.ImportModeAppend})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if sink.Cleared != 0 {
		t.Error("append mode must not clear")
	}
	if sink.Mode != domain.ImportModeAppend {
		t.Errorf("sink opened in %s mode, want append", sink.Mode)
	}
	if res.Persisted != 2 || res.Duplicates != 1 {
		t.Errorf("got %+v, want persisted=2 duplicates=1", res)
	}
}

func TestImportSkipsDroppedAndUndated(t *testing.T) {
	src := staticSource(
		momo("Your payment was completed at 2024-01-05 10:00:00"), // no amount
		momo("You have received 500 RWF from Alex Doe"),           // no date
		momo("You bought airtime at 2024-01-05 11:00:00"),         // kept with zero amount
		momo(received(7)),
	)
	sink := &MockSink{}

	res, err := NewImporter(src, sink).Import(context.Background(), zerolog.Nop(), ImportRequest{SourceURI: "x"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Dropped != 1 || res.MissingDate != 1 || res.Persisted != 2 {
		t.Errorf("got %+v", res)
	}
	if sink.Inserted[0].TransactionType != domain.TypeAirtime {
		t.Errorf("first inserted type = %s, want AIRTIME", sink.Inserted[0].TransactionType)
	}
}

func TestImportContinuesAfterInsertFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	calls := 0
	sink := &MockSink{InsertFunc: func(rec *domain.TransactionRecord) (bool, error) {
		calls++
		if calls == 2 {
			return false, errors.New("constraint violation")
		}
		return true, nil
	}}
	src := staticSource(momo(received(1)), momo(received(2)), momo(received(3)))

	res, err := NewImporter(src, sink).Import(context.Background(), zerolog.New(buf), ImportRequest{SourceURI: "x"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Persisted != 2 || res.Failed != 1 {
		t.Errorf("got %+v, want persisted=2 failed=1", res)
	}
	out := buf.String()
	if !strings.Contains(out, "constraint violation") || !strings.Contains(out, `"transaction_id":"2"`) {
		t.Errorf("expected failing record in log, got %s", out)
	}
}

func TestImportSourceFailureIsFatal(t *testing.T) {
	src := &MockSource{OpenFunc: func(ctx context.Context, uri string) ([]domain.RawMessage, error) {
		return nil, errors.New("no such file")
	}}
	sink := &MockSink{}

	res, err := NewImporter(src, sink).Import(context.Background(), zerolog.Nop(), ImportRequest{SourceURI: "x"})
	if !errors.Is(err, ErrSourceUnreadable) {
		t.Fatalf("expected ErrSourceUnreadable, got %v", err)
	}
	if res != nil {
		t.Error("expected nil result on fatal error")
	}
	if sink.Opened != 0 {
		t.Error("sink must not be opened when the source fails")
	}
}

func TestImportSinkFailureIsFatal(t *testing.T) {
	sink := &MockSink{OpenErr: errors.New("connection refused")}
	_, err := NewImporter(staticSource(momo(received(1))), sink).
		Import(context.Background(), zerolog.Nop(), ImportRequest{SourceURI: "x"})
	if !errors.Is(err, ErrSinkUnavailable) {
		t.Fatalf("expected ErrSinkUnavailable, got %v", err)
	}
}

func TestImportClearFailureClosesSession(t *testing.T) {
	sink := &MockSink{ClearErr: errors.New("permission denied")}
	_, err := NewImporter(staticSource(momo(received(1))), sink).
		Import(context.Background(), zerolog.Nop(), ImportRequest{SourceURI: "x"})
	if !errors.Is(err, ErrSinkUnavailable) {
		t.Fatalf("expected ErrSinkUnavailable, got %v", err)
	}
	if sink.Closed != 1 {
		t.Errorf("session closed %d times, want 1", sink.Closed)
	}
	if len(sink.Inserted) != 0 {
		t.Error("no records should be inserted after a failed clear")
	}
}

func TestImportRejectsUnknownMode(t *testing.T) {
	_, err := NewImporter(staticSource(), &MockSink{}).
		Import(context.Background(), zerolog.Nop(), ImportRequest{SourceURI: "x", Mode: "merge"})
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestImportCustomSenderAndNames(t *testing.T) {
	src := staticSource(
		domain.RawMessage{SenderAddress: "MoMo", Body: "You have received 900 RWF from Grace Uwase at 2024-03-01 09:00:00"},
		momo(received(1)),
	)
	sink := &MockSink{}
	asm := parser.NewAssembler(parser.NewNameDirectory([]string{"Grace Uwase"}), nil)

	res, err := NewImporter(src, sink, WithSenderAddress("MoMo"), WithAssembler(asm)).
		Import(context.Background(), zerolog.Nop(), ImportRequest{SourceURI: "x"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Persisted != 1 || *sink.Inserted[0].Sender != "Grace Uwase" {
		t.Errorf("got %+v", res)
	}
}

func TestImportRecordsMetricsAndPublishes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewImportMetrics(reg)
	pub := &MockPublisher{PublishFunc: func(ev events.ImportCompleted) error {
		return errors.New("broker down")
	}}
	src := staticSource(momo(received(1)), momo("Your payment was completed"))

	res, err := NewImporter(src, &MockSink{}, WithMetrics(m), WithPublisher(pub)).
		Import(context.Background(), zerolog.Nop(), ImportRequest{SourceURI: "gs://b/sms.xml"})
	if err != nil {
		t.Fatalf("publish failure must not fail the import: %v", err)
	}
	if len(pub.Events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.Events))
	}
	ev := pub.Events[0]
	if ev.BatchID != res.BatchID || ev.Persisted != 1 || ev.Dropped != 1 || ev.SourceURI != "gs://b/sms.xml" {
		t.Errorf("unexpected event %+v", ev)
	}

	count, err := testutil.GatherAndCount(reg, "momo_import_records_total")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("record outcome series = %d, want 2", count)
	}
}

func TestImportProgressLogging(t *testing.T) {
	msgs := make([]domain.RawMessage, 0, 205)
	for n := 0; n < 205; n++ {
		msgs = append(msgs, momo(received(n)))
	}
	buf := &bytes.Buffer{}
	log := zerolog.New(buf).Level(zerolog.InfoLevel)

	res, err := NewImporter(staticSource(msgs...), &MockSink{}).Import(context.Background(), log, ImportRequest{SourceURI: "x"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Persisted != 205 {
		t.Errorf("persisted = %d, want 205", res.Persisted)
	}
	if got := strings.Count(buf.String(), "import progress"); got != 2 {
		t.Errorf("progress lines = %d, want 2", got)
	}
	if !strings.Contains(buf.String(), res.BatchID) {
		t.Error("expected batch id on log lines")
	}
}
