package cli

import (
	"jobpulse/internal/stream"
	"jobpulse/internal/worker"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the stream worker that enriches raw jobs from the log",
	Long: `Consume raw job postings from the durable log, enrich each through the
LLM dispatcher (structured fields plus embedding), and upsert the result
into storage keyed by job id.

Replicas share the consumer group: the log assigns disjoint partitions, and
restarts resume from committed positions. Transport and parse failures follow
a bounded retry policy; credential exhaustion waits and retries the same
message without a limit; undecodable messages are skipped as poison.`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	om, err := buildObservability(cfg, Version)
	if err != nil {
		return err
	}
	defer func() { _ = om.Shutdown(ctx) }()

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

	jobCache, err := buildCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = jobCache.Close() }()

	stopWatcher, err := startPromptWatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer stopWatcher()

	transformer := buildTransformer(dispatcher, cfg)

	log := stream.NewKafkaLog(cfg.Kafka, logger)
	defer func() { _ = log.Close() }()

	w := worker.NewWorker(log, transformer, jobStore, jobCache,
		cfg.Worker, cfg.Kafka.PollTimeout, dispatcher.RetryBackoff(), logger)

	// Scheduled backfill runs beside the stream loop when enabled.
	if cfg.Worker.Backfill.Enabled {
		backfiller := worker.NewBackfiller(jobStore, transformer,
			cfg.Worker.Backfill, cfg.AI.EmbeddingDim, logger)
		scheduler, err := backfiller.Schedule(ctx)
		if err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
