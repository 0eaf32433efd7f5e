// Package pipeline runs the fetch-transform-upload cycle.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fwittke/kitahours/internal/config"
	"github.com/fwittke/kitahours/internal/nctables"
	"github.com/fwittke/kitahours/internal/report"
	"github.com/fwittke/kitahours/internal/store"
)

// Runner executes one full pipeline run: fetch the hours table (exploded)
// and the names table, derive the family report, replace the report table's
// contents, and record the run. Runs are fail-fast; the first unrecovered
// error halts everything, and a failed run is recorded with its error.
type Runner struct {
	Client *nctables.Client
	Runs   *store.RunStore // optional; nil disables run recording
	Logger *slog.Logger
	Config *config.Config
}

// Summary describes a completed run.
type Summary struct {
	RunID        string
	Families     int
	RowsUploaded int
	Duration     time.Duration
}

// Run executes the pipeline once.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	started := time.Now()
	runID := uuid.NewString()
	if r.Runs != nil {
		if err := r.Runs.Create(runID, started); err != nil {
			return nil, err
		}
	}

	summary, err := r.run(ctx, logger)
	if r.Runs != nil {
		status := store.RunStatusOK
		errMsg := ""
		families, rows := 0, 0
		if err != nil {
			status = store.RunStatusError
			errMsg = err.Error()
		} else {
			families, rows = summary.Families, summary.RowsUploaded
		}
		if recErr := r.Runs.Finish(runID, time.Now(), families, rows, status, errMsg); recErr != nil {
			logger.Error("failed to record run outcome", "run_id", runID, "error", recErr)
		}
	}
	if err != nil {
		return nil, err
	}

	summary.RunID = runID
	summary.Duration = time.Since(started)
	return summary, nil
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger) (*Summary, error) {
	cfg := r.Config

	logger.Info("fetching hours table", "table_id", cfg.HoursTableID)
	hours, err := r.Client.FetchTable(ctx, cfg.HoursTableID, true)
	if err != nil {
		return nil, err
	}

	logger.Info("fetching names table", "table_id", cfg.NamesTableID)
	names, err := r.Client.FetchTable(ctx, cfg.NamesTableID, false)
	if err != nil {
		return nil, err
	}

	policy := report.BoundaryExclusive
	if cfg.InclusiveYearStart {
		policy = report.BoundaryInclusiveStart
	}
	window := report.KitaYearWindow(cfg.KitaYear, policy)

	logger.Info("building family report", "kita_year", cfg.KitaYear,
		"hours_rows", len(hours.Rows), "names_rows", len(names.Rows))
	records, err := report.Build(hours, names, window)
	if err != nil {
		return nil, err
	}

	logger.Info("uploading report", "table_id", cfg.ReportTableID, "families", len(records))
	ids, err := r.Client.Upload(ctx, cfg.ReportTableID, report.ReportTable(records), true)
	if err != nil {
		return nil, err
	}

	logger.Info("report uploaded", "rows", len(ids))
	return &Summary{Families: len(records), RowsUploaded: len(ids)}, nil
}

// BuildReport fetches the source tables and derives the records without
// uploading anything. Used by the export command.
func (r *Runner) BuildReport(ctx context.Context) ([]report.FamilyRecord, error) {
	cfg := r.Config
	hours, err := r.Client.FetchTable(ctx, cfg.HoursTableID, true)
	if err != nil {
		return nil, err
	}
	names, err := r.Client.FetchTable(ctx, cfg.NamesTableID, false)
	if err != nil {
		return nil, err
	}
	policy := report.BoundaryExclusive
	if cfg.InclusiveYearStart {
		policy = report.BoundaryInclusiveStart
	}
	return report.Build(hours, names, report.KitaYearWindow(cfg.KitaYear, policy))
}
