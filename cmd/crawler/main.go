package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"driftwatch/crawler/internal/cache"
	"driftwatch/crawler/internal/config"
	"driftwatch/crawler/internal/crawler"
	"driftwatch/crawler/internal/database"
	"driftwatch/crawler/internal/dedup"
	"driftwatch/crawler/internal/fetcher"
	"driftwatch/crawler/internal/notify"
	"driftwatch/crawler/internal/ratelimit"
	"driftwatch/crawler/internal/server"
	"driftwatch/crawler/internal/storage"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func usage() {
	fmt.Println("Usage: crawler [command] [options]")
	fmt.Println("Commands:")
	fmt.Println("  start  Run the crawl loop and the read API")
	fmt.Println("  once   Run a single crawl cycle over every enabled source and exit")
	fmt.Println("\nFor command-specific options, use: crawler [command] -h")
}

func main() {
	cfg := config.DefaultConfig()

	startCmd := flag.NewFlagSet("start", flag.ExitOnError)
	var startLogLevelStr string
	addCommonFlags(startCmd, cfg, &startLogLevelStr)
	startCmd.StringVar(&cfg.ServerHost, "host", cfg.ServerHost,
		"Host to bind the API server to (env: CRAWLER_HOST)")
	startCmd.IntVar(&cfg.ServerPort, "port", cfg.ServerPort,
		"Port for the API server (env: CRAWLER_PORT)")
	startCmd.IntVar(&cfg.IntervalSeconds, "interval", cfg.IntervalSeconds,
		"Seconds between crawl cycles (env: CRAWLER_INTERVAL)")
	startCmd.IntVar(&cfg.RetentionDays, "retention", cfg.RetentionDays,
		"Days to retain dedup records and items (env: CRAWLER_RETENTION_DAYS)")

	onceCmd := flag.NewFlagSet("once", flag.ExitOnError)
	var onceLogLevelStr string
	addCommonFlags(onceCmd, cfg, &onceLogLevelStr)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		startCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, startLogLevelStr)

		if err := runStart(cfg); err != nil {
			log.Error().Err(err).Msg("Crawler failed")
			os.Exit(1)
		}

	case "once":
		onceCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, onceLogLevelStr)

		if err := runOnce(cfg); err != nil {
			log.Error().Err(err).Msg("Cycle failed")
			os.Exit(1)
		}

	case "-h", "--help", "help":
		usage()
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		usage()
		os.Exit(1)
	}
}

func addCommonFlags(fs *flag.FlagSet, cfg *config.Config, logLevelStr *string) {
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath,
		"Path to the SQLite database file (env: CRAWLER_DB_PATH)")
	fs.StringVar(&cfg.SourcesPath, "sources", cfg.SourcesPath,
		"Path to the sources YAML file (env: CRAWLER_SOURCES_PATH)")
	fs.IntVar(&cfg.MaxConcurrent, "workers", cfg.MaxConcurrent,
		"Maximum concurrent fetches (env: CRAWLER_MAX_CONCURRENT)")
	fs.StringVar(logLevelStr, "log-level", config.GetEnvString("CRAWLER_LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn, error (env: CRAWLER_LOG_LEVEL)")
}

func applyLogLevel(cfg *config.Config, levelStr string) {
	if level, err := zerolog.ParseLevel(levelStr); err == nil {
		cfg.LogLevel = level
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
}

// buildPipeline wires the full chain: database, dedup store, rate
// limiter, fetcher, cache, sinks and the crawl loop itself.
func buildPipeline(cfg *config.Config) (*crawler.Crawler, *storage.Repository, *database.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sources, err := config.LoadSources(cfg.SourcesPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info().
		Int("sources", len(sources.Sources)).
		Int("enabled", len(sources.EnabledSources())).
		Str("path", cfg.SourcesPath).
		Msg("Sources loaded")

	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	repo := storage.NewRepository(db)

	overrides := make(map[string]ratelimit.DomainLimit, len(sources.DomainLimits))
	for domain, limit := range sources.DomainLimits {
		overrides[domain] = ratelimit.DomainLimit{PerSecond: limit.PerSecond, Burst: limit.Burst}
	}

	limiter := ratelimit.New(ratelimit.Config{
		GlobalConcurrent: cfg.MaxConcurrent,
		DefaultPerSecond: cfg.DomainPerSecond,
		DefaultBurst:     cfg.DomainBurst,
		AcquireTimeout:   cfg.AcquireTimeout(),
		Overrides:        overrides,
		BlockedDomains:   sources.BlockedDomains,
	})

	f := fetcher.New(cfg, limiter, log.Logger)
	d := dedup.New(repo)
	c := cache.New(cfg.CacheMaxEntries, cfg.CacheTTL())
	sinks := []notify.Sink{notify.NewLogSink(log.Logger)}

	cr, err := crawler.New(cfg, sources, f, d, c, repo, sinks, log.Logger)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return cr, repo, db, nil
}

// runStart runs the periodic crawl loop alongside the read API until a
// shutdown signal arrives.
func runStart(cfg *config.Config) error {
	cr, repo, db, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cr.Start(ctx); err != nil {
		return err
	}

	srv := server.New(cfg, repo, cr, log.Logger)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Run(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)

	for {
		select {
		case err := <-serverErr:
			cancel()
			cr.Stop()
			return err

		case <-reload:
			sources, err := config.LoadSources(cfg.SourcesPath)
			if err != nil {
				log.Error().Err(err).Str("path", cfg.SourcesPath).Msg("Sources reload failed, keeping current list")
				continue
			}
			if err := cr.Reload(sources); err != nil {
				log.Error().Err(err).Msg("Sources reload rejected, keeping current list")
			}

		case sig := <-shutdown:
			log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
			cancel()
			cr.Stop()
			if err := <-serverErr; err != nil {
				log.Error().Err(err).Msg("API server error during shutdown")
			}
			log.Info().Msg("Crawler exiting")
			return nil
		}
	}
}

// runOnce executes one forced cycle covering every enabled source, prints
// nothing but logs, and exits with the cycle outcome.
func runOnce(cfg *config.Config) error {
	cr, _, db, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report := cr.RunCycle(ctx, true)
	if report.SourcesFailed > 0 {
		return fmt.Errorf("%d of %d sources failed", report.SourcesFailed, report.SourcesFailed+report.SourcesOK)
	}
	return nil
}
