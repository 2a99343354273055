package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Viktoriusw/seriously-crawler/internal/api"
	"github.com/Viktoriusw/seriously-crawler/internal/clock"
	"github.com/Viktoriusw/seriously-crawler/internal/clock/system"
	"github.com/Viktoriusw/seriously-crawler/internal/config"
	"github.com/Viktoriusw/seriously-crawler/internal/crawler"
	"github.com/Viktoriusw/seriously-crawler/internal/logging"
	"github.com/Viktoriusw/seriously-crawler/internal/policy/ratelimit"
	"github.com/Viktoriusw/seriously-crawler/internal/progress"
	"github.com/Viktoriusw/seriously-crawler/internal/progress/sinks"
	pubsubpub "github.com/Viktoriusw/seriously-crawler/internal/publisher/pubsub"
	"github.com/Viktoriusw/seriously-crawler/internal/storage/memory"
	"github.com/Viktoriusw/seriously-crawler/internal/storage/postgres"
	"github.com/Viktoriusw/seriously-crawler/internal/storage/sqlite"
)

func newCrawlCmd() *cobra.Command {
	var maxPages int
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Runs one crawl session and reports the final stats",
		Long: `Runs a single crawl session over the configured seed URLs plus any
URLs given as arguments. The session ends when the page budget is reached
or the frontier drains.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd.Context(), args, maxPages)
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "override the configured page budget")
	return cmd
}

func runCrawl(ctx context.Context, extraSeeds []string, maxPages int) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg.Crawler.Seeds = append(cfg.Crawler.Seeds, extraSeeds...)

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure is harmless

	sess, err := buildSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.cleanup()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := sess.engine.Start(ctx, maxPages)
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}
	logger.Info("crawl complete",
		zap.Int64("pages_crawled", snap.PagesCrawled),
		zap.Int64("pages_failed", snap.PagesFailed),
		zap.Int64("bytes_downloaded", snap.BytesDownloaded),
		zap.Int64("links_discovered", snap.LinksDiscovered),
		zap.Float64("pages_per_second", snap.PagesPerSecond),
	)
	return nil
}

// session bundles the engine with everything that needs closing afterwards.
type session struct {
	engine  *crawler.Engine
	hub     *progress.Hub
	cleanup func()
}

func buildSession(ctx context.Context, cfg config.Config, logger *zap.Logger) (*session, error) {
	crawlerCfg, err := cfg.CrawlerSettings()
	if err != nil {
		return nil, err
	}
	if err := crawlerCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawler configuration: %w", err)
	}

	clk := system.New()

	fetcher, err := crawler.NewCollyFetcher(crawlerCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	processor := crawler.NewHTMLLinkProcessor(crawlerCfg.SeedDomains(), crawlerCfg.AllowSubdomains)

	store, closeStore, err := buildStorage(ctx, cfg, clk)
	if err != nil {
		return nil, err
	}

	robots := crawler.NewRobotsPolicy(
		crawlerCfg.RespectRobots,
		crawlerCfg.UserAgent,
		crawlerCfg.RobotsCacheTTL,
		crawlerCfg.RequestTimeout,
		clk,
		logger,
	)
	limiter := ratelimit.New(crawlerCfg.CrawlDelay, clk)

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	hub := progress.NewHub(progress.HubConfig{
		BufferSize:    cfg.Progress.BufferSize,
		BatchSize:     cfg.Progress.BatchSize,
		FlushInterval: time.Duration(cfg.Progress.FlushMs) * time.Millisecond,
		SinkTimeout:   time.Duration(cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		Logger:        logger,
	}, sinks.NewLogSink(logger), promSink)

	var publisher crawler.Publisher
	var closePublisher func()
	if cfg.PubSub.TopicName != "" {
		p, err := pubsubpub.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		publisher = p
		closePublisher = func() {
			if err := p.Close(); err != nil {
				logger.Warn("close pubsub publisher failed", zap.Error(err))
			}
		}
	}

	engine := crawler.NewEngine(
		crawlerCfg,
		fetcher,
		processor,
		store,
		robots,
		limiter,
		hub,
		publisher,
		clk,
		logger,
	)

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := engine.Shutdown(shutdownCtx); err != nil {
			logger.Warn("engine shutdown failed", zap.Error(err))
		}
		if err := hub.Close(shutdownCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
		if closePublisher != nil {
			closePublisher()
		}
		if closeStore != nil {
			closeStore()
		}
	}
	return &session{engine: engine, hub: hub, cleanup: cleanup}, nil
}

func buildStorage(ctx context.Context, cfg config.Config, clk clock.Clock) (crawler.Storage, func(), error) {
	switch cfg.Storage.Backend {
	case "memory":
		return memory.NewStore(clk), nil, nil
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath, clk)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case "postgres":
		store, err := postgres.NewStore(ctx, postgres.StoreConfig{
			DSN:      cfg.Storage.DSN,
			MaxConns: cfg.Storage.MaxConns,
			MinConns: cfg.Storage.MinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if err := store.InitSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

var _ api.Controller = (*crawler.Engine)(nil)
