package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/finance-runway/internal/archive"
	bq "github.com/dvloznov/finance-runway/internal/bigquery"
	"github.com/dvloznov/finance-runway/internal/config"
	"github.com/dvloznov/finance-runway/internal/domain"
	infraBQ "github.com/dvloznov/finance-runway/internal/infra/bigquery"
	"github.com/dvloznov/finance-runway/internal/logger"
	"github.com/dvloznov/finance-runway/internal/pipeline"
	"github.com/dvloznov/finance-runway/internal/processor"
	"github.com/dvloznov/finance-runway/internal/snapshot"
	"github.com/spf13/cobra"
)

func main() {
	log := logger.New()

	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cli",
		Short: "Finance runway operator tools",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newSchemaCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newReplaceCommand())

	return rootCmd
}

// openWarehouse loads the local configuration and connects to BigQuery.
func openWarehouse(ctx context.Context) (*config.Config, *infraBQ.BigQueryWarehouse, error) {
	cfg, err := config.LoadLocal(os.Getenv, "")
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.RequireWarehouse(); err != nil {
		return nil, nil, err
	}
	wh, err := infraBQ.NewBigQueryWarehouse(ctx, cfg.Warehouse.ProjectID, cfg.Warehouse.DatasetID)
	if err != nil {
		return nil, nil, err
	}
	return cfg, wh, nil
}

func newSchemaCommand() *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the column layout of the snapshot tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.WithContext(cmd.Context(), logger.New())
			cfg, wh, err := openWarehouse(ctx)
			if err != nil {
				return err
			}
			defer wh.Close()

			tables := cfg.Warehouse.Tables()
			if table != "" {
				tables = []string{table}
			}
			return printSchemas(ctx, cmd.OutOrStdout(), wh, tables)
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "single table to describe (default all snapshot tables)")
	return cmd
}

func printSchemas(ctx context.Context, out io.Writer, inspector bq.Inspector, tables []string) error {
	for _, table := range tables {
		columns, err := inspector.TableSchema(ctx, table)
		if err != nil {
			return fmt.Errorf("schema %s: %w", table, err)
		}

		fmt.Fprintf(out, "\n=== %s ===\n", table)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "COLUMN\tTYPE\tMODE")
		for _, c := range columns {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Type, c.Mode)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func newHistoryCommand() *cobra.Command {
	var (
		table string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored snapshot dates with their row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.WithContext(cmd.Context(), logger.New())
			cfg, wh, err := openWarehouse(ctx)
			if err != nil {
				return err
			}
			defer wh.Close()

			if table == "" {
				table = cfg.Warehouse.AccountsTable
			}
			return printHistory(ctx, cmd.OutOrStdout(), wh, table, limit)
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "table to inspect (default the accounts table)")
	cmd.Flags().IntVar(&limit, "limit", 30, "number of most recent dates to show")
	return cmd
}

func printHistory(ctx context.Context, out io.Writer, inspector bq.Inspector, table string, limit int) error {
	history, err := inspector.SnapshotHistory(ctx, table, limit)
	if err != nil {
		return fmt.Errorf("history %s: %w", table, err)
	}

	fmt.Fprintf(out, "\n=== %s (%d dates) ===\n", table, len(history))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SNAPSHOT_DATE\tROWS")
	for _, h := range history {
		fmt.Fprintf(tw, "%s\t%d\n", h.SnapshotDate, h.Rows)
	}
	return tw.Flush()
}

func newReplaceCommand() *cobra.Command {
	var (
		date       string
		configPath string
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "replace",
		Short: "Re-derive a snapshot from its archived raw payload and replace it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshotDate, err := domain.ParseDate(date)
			if err != nil {
				return err
			}

			cfg, err := config.LoadLocal(os.Getenv, configPath)
			if err != nil {
				return err
			}
			if cfg.Archive.Bucket == "" {
				return fmt.Errorf("replace: ARCHIVE_BUCKET is not set")
			}

			log := logger.NewWithLevel(os.Stdout, cfg.LogLevel)
			ctx, cancel := context.WithTimeout(logger.WithContext(cmd.Context(), log), 5*time.Minute)
			defer cancel()

			store, err := archive.NewGCSStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var warehouse bq.Warehouse = bq.LoggingWarehouse{}
			if !dryRun {
				if err := cfg.RequireWarehouse(); err != nil {
					return err
				}
				wh, err := infraBQ.NewBigQueryWarehouse(ctx, cfg.Warehouse.ProjectID, cfg.Warehouse.DatasetID)
				if err != nil {
					return err
				}
				defer wh.Close()
				warehouse = wh
			}

			deps := pipeline.Deps{
				Archive:             archive.NewArchiver(store, cfg.Archive.Bucket),
				Writer:              snapshot.NewWriter(warehouse, snapshot.TablesFrom(cfg.Warehouse)),
				Rules:               processor.NewRules(cfg.Rules),
				MandatoryCategories: cfg.Rules.APICalculatedCategories,
			}

			state := pipeline.NewState(snapshotDate)
			log.Info().Str("run_id", state.RunID).Str("snapshot_date", date).Msg("Replaying archived snapshot")
			if err := pipeline.NewReplayPipeline(deps).Execute(ctx, state); err != nil {
				return err
			}

			for _, r := range state.Results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows for %s\n", r.Table, r.RowsLoaded, r.SnapshotDate)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "snapshot date to replay, YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("date")
	cmd.Flags().StringVar(&configPath, "config", "", "rules file (YAML or JSON); overrides CONFIG_JSON")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log warehouse operations instead of running them")
	return cmd
}
