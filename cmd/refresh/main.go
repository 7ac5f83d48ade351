package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-runway/internal/archive"
	bq "github.com/dvloznov/finance-runway/internal/bigquery"
	"github.com/dvloznov/finance-runway/internal/config"
	"github.com/dvloznov/finance-runway/internal/domain"
	infraBQ "github.com/dvloznov/finance-runway/internal/infra/bigquery"
	"github.com/dvloznov/finance-runway/internal/logger"
	"github.com/dvloznov/finance-runway/internal/pipeline"
	"github.com/dvloznov/finance-runway/internal/pocketsmith"
	"github.com/dvloznov/finance-runway/internal/processor"
	"github.com/dvloznov/finance-runway/internal/snapshot"
	"github.com/spf13/cobra"
)

type options struct {
	configPath  string
	date        string
	dryRun      bool
	rounding    string
	logLevel    string
	perPage     int
	timeout     time.Duration
	httpTimeout time.Duration
}

func main() {
	log := logger.New()

	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Refresh failed")
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Pull PocketSmith data and replace today's runway snapshot",
		Args:  cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "rules file (YAML or JSON); overrides CONFIG_JSON")
	cmd.Flags().StringVar(&opts.date, "date", "", "snapshot date YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "log warehouse operations instead of running them")
	cmd.Flags().StringVar(&opts.rounding, "rounding", "", "grand total rounding: none or nearest_hundred (overrides rules)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	cmd.Flags().IntVar(&opts.perPage, "per-page", 0, "transactions page size (0 uses the API default)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "overall run timeout")
	cmd.Flags().DurationVar(&opts.httpTimeout, "http-timeout", time.Minute, "per-request timeout for the PocketSmith API")

	return cmd
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.LoadFromEnv(opts.configPath)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	log := logger.NewWithLevel(os.Stdout, level)
	ctx = logger.WithContext(ctx, log)

	if !opts.dryRun {
		if err := cfg.RequireWarehouse(); err != nil {
			return err
		}
	}

	snapshotDate, err := resolveSnapshotDate(opts.date, time.Now())
	if err != nil {
		return err
	}

	rules, err := buildRules(cfg.Rules, opts.rounding)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	clientOpts := []pocketsmith.Option{pocketsmith.WithTimeout(opts.httpTimeout)}
	if opts.perPage > 0 {
		clientOpts = append(clientOpts, pocketsmith.WithPerPage(opts.perPage))
	}
	source := pocketsmith.NewClient(cfg.PocketSmith.BaseURL, cfg.PocketSmith.APIKey, cfg.PocketSmith.UserID, clientOpts...)

	var warehouse bq.Warehouse = bq.LoggingWarehouse{}
	if !opts.dryRun {
		wh, err := infraBQ.NewBigQueryWarehouse(ctx, cfg.Warehouse.ProjectID, cfg.Warehouse.DatasetID)
		if err != nil {
			return err
		}
		defer wh.Close()
		warehouse = wh
	}

	deps := pipeline.Deps{
		Source:              source,
		Writer:              snapshot.NewWriter(warehouse, snapshot.TablesFrom(cfg.Warehouse)),
		Rules:               rules,
		MandatoryCategories: cfg.Rules.APICalculatedCategories,
	}
	if cfg.Archive.Bucket != "" && !opts.dryRun {
		store, err := archive.NewGCSStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		deps.Archive = archive.NewArchiver(store, cfg.Archive.Bucket)
	}

	state := pipeline.NewState(snapshotDate)
	log.Info().
		Str("run_id", state.RunID).
		Str("snapshot_date", snapshotDate.String()).
		Bool("dry_run", opts.dryRun).
		Msg("Starting refresh")

	if err := pipeline.NewRefreshPipeline(deps).Execute(ctx, state); err != nil {
		return fmt.Errorf("run %s: %w", state.RunID, err)
	}

	for _, r := range state.Results {
		log.Info().
			Str("table", r.Table).
			Int("rows", r.RowsLoaded).
			Int("duplicates_removed", r.DuplicatesRemoved).
			Bool("skipped", r.Skipped).
			Msg("Snapshot written")
	}
	log.Info().Str("run_id", state.RunID).Msg("Refresh completed")
	return nil
}

// resolveSnapshotDate returns the --date value or the calendar date of now.
func resolveSnapshotDate(flag string, now time.Time) (civil.Date, error) {
	if flag == "" {
		return domain.Today(now), nil
	}
	return domain.ParseDate(flag)
}

// buildRules normalizes the rules blob and applies a --rounding override.
func buildRules(cfg config.Rules, rounding string) (processor.Rules, error) {
	rules := processor.NewRules(cfg)
	switch rounding {
	case "":
		return rules, nil
	case config.RoundingNone, config.RoundingNearestHundred:
		return rules.WithRounding(processor.RoundingMode(rounding)), nil
	default:
		return processor.Rules{}, fmt.Errorf("invalid --rounding %q: want %s or %s", rounding, config.RoundingNone, config.RoundingNearestHundred)
	}
}
