package parser

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestAssembleReceivedScenario(t *testing.T) {
	a := NewAssembler(nil, nil)
	body := "You have received 1,000 RWF from Jane Smith (*********013) at 2024-01-05 10:00:00. " +
		"Fee was 10 RWF. Your new balance: 5,000 RWF. Financial Transaction Id: 76662021700."

	rec, ok := a.Assemble(zerolog.Nop(), body)
	if !ok {
		t.Fatal("expected record to be kept")
	}
	if !rec.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("amount = %s, want 1000", rec.Amount)
	}
	if !rec.Fee.Equal(decimal.NewFromInt(10)) {
		t.Errorf("fee = %s, want 10", rec.Fee)
	}
	if !rec.Balance.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("balance = %s, want 5000", rec.Balance)
	}
	if deref(rec.Sender) != "Jane Smith" {
		t.Errorf("sender = %s, want Jane Smith", deref(rec.Sender))
	}
	if rec.Recipient != nil {
		t.Errorf("recipient = %s, want nil", *rec.Recipient)
	}
	if rec.TransactionType != domain.TypeMoneyReceived {
		t.Errorf("type = %s, want MONEY_RECEIVED", rec.TransactionType)
	}
	wantDate := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	if rec.TransactionDate == nil || !rec.TransactionDate.Equal(wantDate) {
		t.Errorf("date = %v, want %v", rec.TransactionDate, wantDate)
	}
	if deref(rec.TransactionID) != "76662021700" {
		t.Errorf("transaction id = %s", deref(rec.TransactionID))
	}
	if rec.Message != body {
		t.Error("message should be kept verbatim")
	}
}

func TestAssembleDropRule(t *testing.T) {
	a := NewAssembler(nil, nil)

	if rec, ok := a.Assemble(zerolog.Nop(), "Your payment was completed"); ok || rec != nil {
		t.Error("PAYMENT without amount should be dropped")
	}

	rec, ok := a.Assemble(zerolog.Nop(), "You bought airtime")
	if !ok {
		t.Fatal("AIRTIME without amount should be kept")
	}
	if !rec.Amount.IsZero() || rec.TransactionType != domain.TypeAirtime {
		t.Errorf("got amount=%s type=%s", rec.Amount, rec.TransactionType)
	}

	rec, ok = a.Assemble(zerolog.Nop(), "You have purchased an internet bundle")
	if !ok {
		t.Fatal("BUNDLE_PURCHASE without amount should be kept")
	}
	if rec.TransactionType != domain.TypeBundlePurchase || !rec.Amount.IsZero() {
		t.Errorf("got amount=%s type=%s", rec.Amount, rec.TransactionType)
	}
	if rec.TransactionDate != nil {
		t.Error("expected no date")
	}
}

func TestAssembleKeepsRecordWithoutDate(t *testing.T) {
	a := NewAssembler(nil, nil)
	rec, ok := a.Assemble(zerolog.Nop(), "You have received 2000 RWF from Alex Doe")
	if !ok {
		t.Fatal("expected candidate record")
	}
	if rec.TransactionDate != nil {
		t.Error("expected absent date")
	}
}

func TestAssembleLogsUnparseableDate(t *testing.T) {
	buf := &bytes.Buffer{}
	log := zerolog.New(buf)
	a := NewAssembler(nil, nil)

	rec, ok := a.Assemble(log, "received 100 RWF at 2024-99-99 10:00:00")
	if !ok || rec.TransactionDate != nil {
		t.Fatalf("expected kept record without date, got ok=%v", ok)
	}
	if !strings.Contains(buf.String(), "failed to parse transaction date") {
		t.Errorf("expected parse error in log, got %s", buf.String())
	}
}

func TestAssembleWithCustomDirectory(t *testing.T) {
	a := NewAssembler(NewNameDirectory([]string{"Grace Uwase"}), nil)
	rec, ok := a.Assemble(zerolog.Nop(), "5000 RWF transferred to Grace Uwase at 2024-02-01 08:30:00")
	if !ok {
		t.Fatal("expected record")
	}
	if deref(rec.Recipient) != "Grace Uwase" {
		t.Errorf("recipient = %s", deref(rec.Recipient))
	}
	if rec.TransactionType != domain.TypeTransfer {
		t.Errorf("type = %s, want TRANSFER", rec.TransactionType)
	}
}

func TestPreview(t *testing.T) {
	short := "short"
	if Preview(short) != short {
		t.Error("short bodies should be unchanged")
	}
	long := strings.Repeat("a", 150)
	if got := Preview(long); len(got) != previewLen+3 {
		t.Errorf("len(Preview) = %d", len(got))
	}
}
