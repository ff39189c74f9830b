package cli

import (
	"fmt"

	"jobpulse/internal/worker"

	"github.com/spf13/cobra"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-enrich stored jobs with missing or mis-sized embeddings",
	Long: `Scan storage for jobs whose embedding is absent or does not match the
configured dimensionality and run them through the enrichment transform
again. The upsert preserves each row's original created_at.

Runs one batch and exits; for continuous operation enable the scheduled
backfill on the worker.`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().Int("batch-size", 0, "Batch size (default from config)")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	if batchSize, _ := cmd.Flags().GetInt("batch-size"); batchSize > 0 {
		cfg.Worker.Backfill.BatchSize = batchSize
	}

	dispatcher, err := buildDispatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = dispatcher.Close() }()

	jobStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer jobStore.Close()

	transformer := buildTransformer(dispatcher, cfg)
	backfiller := worker.NewBackfiller(jobStore, transformer,
		cfg.Worker.Backfill, cfg.AI.EmbeddingDim, logger)

	done, err := backfiller.RunOnce(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Backfilled %d job(s)\n", done)
	return nil
}
