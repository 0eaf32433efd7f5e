// Command kitahours runs the Kita parent-hours pipeline: it reads the hours
// and names tables from Nextcloud Tables, derives the per-family progress
// report, and writes it back. Backup and export of the same tables live
// behind subcommands.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fwittke/kitahours/internal/backup"
	"github.com/fwittke/kitahours/internal/config"
	"github.com/fwittke/kitahours/internal/database"
	"github.com/fwittke/kitahours/internal/export"
	"github.com/fwittke/kitahours/internal/logging"
	"github.com/fwittke/kitahours/internal/nctables"
	"github.com/fwittke/kitahours/internal/pipeline"
	"github.com/fwittke/kitahours/internal/report"
	"github.com/fwittke/kitahours/internal/store"
)

const summaryRounding = 10 * time.Millisecond

var (
	envFile  string
	logLevel string
)

func main() {
	root := &cobra.Command{
		Use:           "kitahours",
		Short:         "ETL pipeline for the Kita parent-hours tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default: ./.env if present)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	root.AddCommand(runCmd(), backupCmd(), exportCmd(), tablesCmd(), runsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads the configuration and installs the process logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	return cfg, logging.Setup(level), nil
}

func newClient(cfg *config.Config) (*nctables.Client, error) {
	return nctables.NewClient(nctables.Config{
		BaseURL:  cfg.BaseURL,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	})
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch the source tables, build the family report and upload it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if err := cfg.ValidatePipeline(); err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}

			var runs *store.RunStore
			if cfg.DBPath != "" {
				db, err := database.Open(cfg.DBPath)
				if err != nil {
					return err
				}
				defer db.Close()
				runs = store.NewRunStore(db)
			}

			runner := &pipeline.Runner{Client: client, Runs: runs, Logger: logger, Config: cfg}
			summary, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Report uploaded: %d families, %d rows in %s\n",
				summary.Families, summary.RowsUploaded, summary.Duration.Round(summaryRounding))
			return nil
		},
	}
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot every reachable table to delimited files with rotation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if err := cfg.ValidateBackup(); err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}

			mgr := backup.NewManager(backup.Config{
				Dir:        cfg.BackupDir,
				Keep:       cfg.KeepBackups,
				Passphrase: cfg.BackupPassphrase,
				S3:         cfg.S3,
			}, client, logger)

			res, err := mgr.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Backed up %d tables (%d old snapshots pruned)\n", res.Tables, res.Pruned)
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Build the family report and write it to a local file instead of uploading",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			if err := cfg.ValidatePipeline(); err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}

			runner := &pipeline.Runner{Client: client, Config: cfg}
			records, err := runner.BuildReport(cmd.Context())
			if err != nil {
				return err
			}

			switch {
			case strings.HasSuffix(out, ".xlsx"):
				err = export.WriteXLSX(out, records)
			case strings.HasSuffix(out, ".csv"):
				err = export.WriteCSVFile(out, report.ReportTable(records))
			default:
				return fmt.Errorf("output file %q must end in .csv or .xlsx", out)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d families to %s\n", len(records), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "familienstunden.xlsx", "output file (.csv or .xlsx)")
	return cmd
}

func tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables visible to the configured account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}

			tables, err := client.ListTables(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Printf("%d\t%s\n", t.ID, t.Title)
			}
			return nil
		},
	}
}

func runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("KITAHOURS_DB_PATH is not configured")
			}
			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := store.NewRunStore(db).ListRecent(limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				line := fmt.Sprintf("%s  %s  %s  families=%d rows=%d",
					r.StartedAt.Format("2006-01-02 15:04:05"), r.ID, r.Status, r.Families, r.RowsUploaded)
				if r.Error != "" {
					line += "  error=" + r.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	return cmd
}
