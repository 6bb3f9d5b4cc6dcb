package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dvloznov/momo-tracker/internal/config"
	"github.com/dvloznov/momo-tracker/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	config.LoadDotEnv()
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// cli carries state shared by subcommands.
type cli struct {
	out      io.Writer
	cfg      *config.Config
	log      zerolog.Logger
	logLevel string
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out, log: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "momo",
		Short: "MoMo transaction tracker",
		Long: `Extract, classify and store mobile money transactions from SMS backup files.

Configuration is read from the environment (and an optional .env file):
DATABASE_DRIVER, DATABASE_URL, SENDER_ADDRESS, NAMES_FILE, IMPORT_MODE, ...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			c.cfg = cfg

			level := cfg.LogLevel
			if c.logLevel != "" {
				level = c.logLevel
			}
			c.log = logger.New().Level(logger.ParseLevel(level))
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")

	root.AddCommand(
		c.importCmd(),
		c.parseCmd(),
		c.truncateCmd(),
		c.migrateCmd(),
		c.uploadCmd(),
		c.inspectCmd(),
	)
	return root
}
