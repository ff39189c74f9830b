package cli

import (
	"jobpulse/internal/resume"
	"jobpulse/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for resume matching",
	Long: `Start an HTTP server that matches uploaded resumes against enriched jobs.

Available endpoints:
- POST /api/resume/match: Upload a resume and get ranked job matches with skill gaps
- GET /health: Health check including dispatcher pool state
- GET /stats: Server statistics, rate limiting, and dispatcher counters

The dispatcher's credential pool is shared with nothing: this process owns
its own throttle and rotation state.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")

	bindFlag := func(key, flagName string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(flagName)); err != nil {
			panic(err)
		}
	}

	bindFlag("server.port", "port")
	bindFlag("server.host", "host")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	// The serve path reads the cache only for health; a missing cache does
	// not block serving.
	jobCache, err := buildCache(ctx, cfg, logger)
	if err != nil {
		logger.Warn("Cache unavailable; serving without it", "error", err.Error())
		jobCache = nil
	} else {
		defer func() { _ = jobCache.Close() }()
	}

	stopWatcher, err := startPromptWatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer stopWatcher()

	analyzer := buildAnalyzer(dispatcher, jobStore, cfg, logger)

	serverCfg := server.ServerConfig{
		Version:    Version,
		Analyzer:   analyzer,
		Dispatcher: dispatcher,
		Extractor:  &resume.PlainTextExtractor{},
		Store:      jobStore,
		Obs:        om,
	}
	if jobCache != nil {
		serverCfg.Cache = jobCache
	}

	return server.NewServer(cfg, serverCfg, logger).Start(ctx)
}
