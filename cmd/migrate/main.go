package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/momo-tracker/internal/config"
	infraBQ "github.com/dvloznov/momo-tracker/internal/infra/bigquery"
	"github.com/dvloznov/momo-tracker/internal/logger"
	"github.com/dvloznov/momo-tracker/internal/store"
	"github.com/rs/zerolog"
)

func main() {
	config.LoadDotEnv()
	log := logger.New()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, log); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

func run(ctx context.Context, args []string, out io.Writer, log zerolog.Logger) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(out)
	var (
		driver    = fs.String("driver", os.Getenv("DATABASE_DRIVER"), "Database driver: sqlite or postgres (default from config)")
		dsn       = fs.String("database-url", os.Getenv("DATABASE_URL"), "Database URL or sqlite path (default from config)")
		appliedBy = fs.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		status    = fs.Bool("status", false, "List applied migrations instead of applying")
		bqProject = fs.String("bigquery-project", os.Getenv("BIGQUERY_PROJECT"), "Also provision the BigQuery transactions table in this project")
		bqDataset = fs.String("bigquery-dataset", "momo", "BigQuery dataset for -bigquery-project")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *driver == "" || *dsn == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if *driver == "" {
			*driver = cfg.DatabaseDriver
		}
		if *dsn == "" {
			*dsn = cfg.DatabaseURL
		}
	}

	s, err := store.Connect(ctx, *driver, *dsn)
	if err != nil {
		return err
	}
	defer s.Close()

	log.Info().Str("driver", *driver).Msg("Connected to database")

	if !*status {
		n, err := s.Migrate(logger.WithContext(ctx, log), *appliedBy)
		if err != nil {
			return err
		}
		if n == 0 {
			log.Info().Msg("No new migrations to apply. Database is up to date.")
		} else {
			log.Info().Int("applied", n).Msg("Successfully applied migrations")
		}
	}

	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED AT\tAPPLIED BY")
	for _, m := range applied {
		fmt.Fprintf(tw, "%04d\t%s\t%s\t%s\n", m.Version, m.Name, m.AppliedAt.UTC().Format(time.RFC3339), m.AppliedBy)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if *bqProject != "" && !*status {
		sink, err := infraBQ.NewWarehouseSink(ctx, *bqProject, *bqDataset)
		if err != nil {
			return err
		}
		defer sink.Close()
		if err := sink.EnsureTable(ctx); err != nil {
			return err
		}
		log.Info().Str("project", *bqProject).Str("dataset", *bqDataset).Msg("BigQuery transactions table ready")
	}

	return nil
}
