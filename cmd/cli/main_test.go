package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

const backup = `<smses>
  <sms address="M-Money" body="You have received 2000 RWF from Jane Smith (*********013) at 2024-05-10 16:30:51. Your new balance:2000 RWF. Financial Transaction Id: 76662021700." />
  <sms address="M-Money" body="TxId: 73214484437. Your payment of 1,000 RWF to Jane Smith 12845 has been completed at 2024-05-10 21:32:32. Your new balance: 1,000 RWF. Fee was 0 RWF." />
  <sms address="M-Money" body="Your payment has been processed." />
</smses>`

func setup(t *testing.T) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(dir, "momo.db"))
	t.Setenv("SENDER_ADDRESS", "M-Money")
	t.Setenv("NAMES_FILE", "")
	t.Setenv("IMPORT_MODE", "replace")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("LOG_LEVEL", "error")

	path := filepath.Join(dir, "sms.xml")
	if err := os.WriteFile(path, []byte(backup), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	out := &bytes.Buffer{}
	root := newRootCmd(out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseDryRun(t *testing.T) {
	path := setup(t)

	out, err := execute(t, "parse", path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, want := range []string{"MONEY_RECEIVED", "PAYMENT", "2000.00", "73214484437", "2 records from 3 messages"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	out, err = execute(t, "parse", path, "--json", "--limit", "1")
	if err != nil {
		t.Fatalf("parse --json: %v", err)
	}
	var records []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}

func TestImportInspectTruncate(t *testing.T) {
	path := setup(t)

	out, err := execute(t, "import", path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "2 persisted") || !strings.Contains(out, "1 dropped") {
		t.Errorf("unexpected import output %q", out)
	}

	out, err = execute(t, "import", path, "--mode", "append")
	if err != nil {
		t.Fatalf("import append: %v", err)
	}
	if !strings.Contains(out, "0 persisted") || !strings.Contains(out, "2 duplicates") {
		t.Errorf("unexpected append output %q", out)
	}

	out, err = execute(t, "inspect", "--type", "PAYMENT")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "73214484437") || !strings.Contains(out, "1 of 1 transactions") {
		t.Errorf("unexpected inspect output:\n%s", out)
	}

	if _, err := execute(t, "truncate"); err == nil {
		t.Fatal("expected truncate without --yes to fail")
	}
	if _, err := execute(t, "truncate", "--yes"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	out, err = execute(t, "inspect")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "0 of 0 transactions") {
		t.Errorf("expected empty store after truncate:\n%s", out)
	}
}

func TestImportRejectsUnknownSink(t *testing.T) {
	path := setup(t)
	if _, err := execute(t, "import", path, "--sink", "kafka"); err == nil {
		t.Fatal("expected error for unknown sink")
	}
	if _, err := execute(t, "import", path, "--mode", "merge"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestUploadRequiresBucket(t *testing.T) {
	path := setup(t)
	t.Setenv("GCS_BUCKET", "")
	if _, err := execute(t, "upload", path); err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("expected bucket error, got %v", err)
	}
}
