// -----------------------------------------------------------------------
// bidscout - government procurement crawl-and-extract pipeline
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/common"
	"github.com/bidscout/bidscout/internal/services/auth"
	"github.com/bidscout/bidscout/internal/services/crawler"
	"github.com/bidscout/bidscout/internal/services/embeddings"
	"github.com/bidscout/bidscout/internal/services/extraction"
	"github.com/bidscout/bidscout/internal/services/llm"
	"github.com/bidscout/bidscout/internal/services/orchestrator"
	"github.com/bidscout/bidscout/internal/services/processing"
	"github.com/bidscout/bidscout/internal/services/scheduler"
	badgerstore "github.com/bidscout/bidscout/internal/storage/badger"
)

// stringList is a custom flag type allowing a flag to repeat
type stringList []string

func (s *stringList) String() string {
	return fmt.Sprintf("%v", *s)
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

var (
	configFiles  stringList
	conditions   stringList
	runOnce      = flag.Bool("once", false, "Run one pipeline pass and exit")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
	flag.Var(&conditions, "condition", "Search condition (can be specified multiple times, overrides config)")
}

func main() {
	defer common.RecoverWithCrashFile()

	common.LoadVersionFromFile()
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Bidscout version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> files -> env)
	// 2. Initialize logger
	// 3. Print banner
	// 4. Wire services

	// Auto-discover config file when none given
	if len(configFiles) == 0 {
		if _, err := os.Stat("bidscout.toml"); err == nil {
			configFiles = append(configFiles, "bidscout.toml")
		} else if _, err := os.Stat("deployments/local/bidscout.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/bidscout.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		common.GetLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())
	common.InstallCrashHandler("./logs")

	if err := run(); err != nil {
		logger.Fatal().Err(err).Msg("Bidscout exited with error")
		os.Exit(1)
	}
}

// run wires the services and executes either one pass or the scheduler loop
func run() error {
	storage, err := badgerstore.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer storage.Close()

	authSvc := auth.NewService(&config.Portal, &config.Crawler, storage.KVStorage(), logger)
	rateLimiter := crawler.NewRateLimiter(config.Crawler.RequestDelay, config.Crawler.RandomDelay)
	fetcher := crawler.NewPageFetcher(&config.Crawler, authSvc, rateLimiter, logger)
	searchSvc := crawler.NewSearchService(&config.Portal, &config.Crawler, fetcher, logger)
	resolver := crawler.NewDocumentService(&config.Portal, &config.Crawler, authSvc, fetcher, storage.ManifestStorage(), storage.KVStorage(), logger)

	processor := processing.NewProcessor(storage.KVStorage(), &config.Pipeline, logger)

	factory := llm.NewProviderFactory(&config.Gemini, &config.Claude, &config.LLM, logger)
	defer factory.Close()

	pipeline := extraction.NewService(factory, &config.Pipeline, &config.LLM, &config.Gemini, &config.Claude, logger)
	embeddingSvc := embeddings.NewService(factory, &config.Embeddings, storage.EmbeddingStorage(), logger)

	orch := orchestrator.NewService(
		&config.Pipeline,
		authSvc,
		searchSvc,
		resolver,
		processor,
		pipeline,
		embeddingSvc,
		storage,
		logger,
	)

	searchConditions := []string(conditions)
	if len(searchConditions) == 0 {
		searchConditions = config.Pipeline.SearchCondition
	}
	if len(searchConditions) == 0 {
		return fmt.Errorf("no search conditions configured; set -condition or pipeline.search_conditions")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *runOnce || !config.Scheduler.Enabled {
		summary, err := orch.Run(ctx, searchConditions)
		if err != nil {
			return err
		}
		logger.Info().
			Str("status", summary.Status).
			Int("processed", summary.Processed).
			Msg("Single run completed")
		return nil
	}

	sched := scheduler.NewService(&config.Scheduler, &config.Pipeline, orch, logger)
	if err := sched.Start(); err != nil {
		return err
	}

	logger.Info().Str("schedule", config.Scheduler.Schedule).Msg("Bidscout running, waiting for scheduled triggers")
	<-ctx.Done()

	logger.Info().Msg("Shutdown signal received")
	sched.Stop()
	return nil
}
