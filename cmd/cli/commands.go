package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/momo-tracker/internal/app"
	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/dvloznov/momo-tracker/internal/gcsuploader"
	infraBQ "github.com/dvloznov/momo-tracker/internal/infra/bigquery"
	"github.com/dvloznov/momo-tracker/internal/logger"
	"github.com/dvloznov/momo-tracker/internal/parser"
	"github.com/dvloznov/momo-tracker/internal/pipeline"
	"github.com/dvloznov/momo-tracker/internal/source"
	"github.com/dvloznov/momo-tracker/internal/store"
	"github.com/spf13/cobra"
)

const (
	sinkSQL      = "sql"
	sinkBigQuery = "bigquery"
)

func (c *cli) importCmd() *cobra.Command {
	var mode, sink string
	cmd := &cobra.Command{
		Use:   "import SOURCE",
		Short: "Import a backup file (local path or gs:// URI)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, c.cfg, nil, c.log)
			if err != nil {
				return err
			}
			defer a.Close()

			var target pipeline.Sink
			switch sink {
			case sinkSQL:
			case sinkBigQuery:
				wh, err := infraBQ.NewWarehouseSink(ctx, c.cfg.BigQueryProject, c.cfg.BigQueryDataset)
				if err != nil {
					return err
				}
				defer wh.Close()
				target = wh
			default:
				return fmt.Errorf("unknown sink %q", sink)
			}

			importMode := c.cfg.Mode()
			if mode != "" {
				importMode = domain.ImportMode(mode)
			}

			res, err := a.Importer(target).Import(ctx, c.log, pipeline.ImportRequest{
				SourceURI: args[0],
				Mode:      importMode,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(c.out, "Batch %s: %d messages, %d matched, %d persisted, %d dropped, %d missing date, %d duplicates, %d failed\n",
				res.BatchID, res.Messages, res.Matched, res.Persisted, res.Dropped, res.MissingDate, res.Duplicates, res.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Import mode: replace or append (default IMPORT_MODE)")
	cmd.Flags().StringVar(&sink, "sink", sinkSQL, "Destination: sql or bigquery")
	return cmd
}

func (c *cli) parseCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "parse SOURCE",
		Short: "Print the records a backup file would produce without storing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			names := parser.DefaultNameDirectory()
			if c.cfg.NamesFile != "" {
				var err error
				if names, err = parser.LoadNameDirectory(c.cfg.NamesFile); err != nil {
					return err
				}
			}
			assembler := parser.NewAssembler(names, parser.DefaultClassifier())

			var fetcher source.Fetcher
			if gcsuploader.IsGCSURI(args[0]) {
				svc, err := gcsuploader.NewGCSStorageService(ctx)
				if err != nil {
					return err
				}
				defer svc.Close()
				fetcher = svc
			}

			msgs, err := source.NewOpener(fetcher).Open(ctx, args[0])
			if err != nil {
				return err
			}

			var records []*domain.TransactionRecord
			for _, m := range msgs {
				if m.SenderAddress != c.cfg.SenderAddress {
					continue
				}
				if rec, ok := assembler.Assemble(c.log, m.Body); ok {
					records = append(records, rec)
					if limit > 0 && len(records) >= limit {
						break
					}
				}
			}

			if asJSON {
				enc := json.NewEncoder(c.out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tTYPE\tAMOUNT\tFEE\tSENDER\tRECIPIENT\tTX ID")
			for _, r := range records {
				date := "-"
				if r.TransactionDate != nil {
					date = r.TransactionDate.Format(parser.DateLayout)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", date, r.TransactionType,
					r.Amount.StringFixed(2), r.Fee.StringFixed(2), orDash(r.Sender), orDash(r.Recipient), orDash(r.TransactionID))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%d records from %d messages\n", len(records), len(msgs))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many records (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func (c *cli) truncateCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "truncate",
		Short: "Delete every stored transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete all transactions without --yes")
			}
			s, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Truncate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "All transactions cleared successfully")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.Migrate(logger.WithContext(cmd.Context(), c.log), "momo-cli")
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Applied %d migration(s)\n", n)
			return nil
		},
	}
}

func (c *cli) uploadCmd() *cobra.Command {
	var bucket, object string
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a backup file to Cloud Storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if bucket == "" {
				bucket = c.cfg.GCSBucket
			}
			if bucket == "" {
				return fmt.Errorf("--bucket or GCS_BUCKET is required")
			}
			if object == "" {
				object = fmt.Sprintf("backups/%s/%s", time.Now().UTC().Format("2006/01/02"), filepath.Base(args[0]))
			}

			svc, err := gcsuploader.NewGCSStorageService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.UploadFile(cmd.Context(), bucket, object, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Uploaded %s to gs://%s/%s\n", args[0], bucket, object)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket name (default GCS_BUCKET)")
	cmd.Flags().StringVar(&object, "object", "", "Object name (default backups/YYYY/MM/DD/<file>)")
	return cmd
}

func (c *cli) inspectCmd() *cobra.Command {
	var (
		limit int
		from  string
		typ   string
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List the most recent stored transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tTYPE\tAMOUNT\tTX ID\tCOUNTERPARTY")

			switch from {
			case sinkSQL:
				s, err := c.connect(ctx)
				if err != nil {
					return err
				}
				defer s.Close()

				page, err := s.ListTransactions(ctx, store.Filter{Type: typ, PerPage: limit})
				if err != nil {
					return err
				}
				for _, r := range page.Transactions {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.TransactionDate.Format(store.DateTimeLayout),
						r.TransactionType, r.Amount.StringFixed(2), orDash(r.TransactionID), counterparty(r.Sender, r.Recipient))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "%d of %d transactions\n", len(page.Transactions), page.Total)
			case sinkBigQuery:
				wh, err := infraBQ.NewWarehouseSink(ctx, c.cfg.BigQueryProject, c.cfg.BigQueryDataset)
				if err != nil {
					return err
				}
				defer wh.Close()

				rows, err := wh.ListTransactions(ctx, limit)
				if err != nil {
					return err
				}
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.TransactionDate.String(), r.TransactionType,
						r.Amount.FloatString(2), r.TransactionID.StringVal, r.Sender.StringVal+r.Recipient.StringVal)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unknown source %q", from)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of transactions to show")
	cmd.Flags().StringVar(&from, "from", sinkSQL, "Read from sql or bigquery")
	cmd.Flags().StringVar(&typ, "type", "", "Only show this transaction type (sql only)")
	return cmd
}

func (c *cli) connect(ctx context.Context) (*store.Store, error) {
	return store.Connect(ctx, c.cfg.DatabaseDriver, c.cfg.DatabaseURL)
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func counterparty(sender, recipient *string) string {
	if sender != nil {
		return "from " + *sender
	}
	if recipient != nil {
		return "to " + *recipient
	}
	return "-"
}
