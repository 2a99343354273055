package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Viktoriusw/seriously-crawler/internal/api"
	"github.com/Viktoriusw/seriously-crawler/internal/config"
	"github.com/Viktoriusw/seriously-crawler/internal/logging"
)

func newServeCmd() *cobra.Command {
	var maxPages int
	cmd := &cobra.Command{
		Use:   "serve [url...]",
		Short: "Runs a crawl session with the HTTP control surface",
		Long: `Runs a crawl session like the crawl command while also exposing an
HTTP API for progress, pause/resume/stop, and Prometheus metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), args, maxPages)
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "override the configured page budget")
	return cmd
}

func runServe(ctx context.Context, extraSeeds []string, maxPages int) error {
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

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(sess.engine, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("control server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		snap, err := sess.engine.Start(gctx, maxPages)
		if err != nil {
			return fmt.Errorf("run crawl: %w", err)
		}
		logger.Info("crawl complete",
			zap.Int64("pages_crawled", snap.PagesCrawled),
			zap.Int64("pages_failed", snap.PagesFailed),
			zap.Int64("bytes_downloaded", snap.BytesDownloaded),
		)
		// The session is over; bring the control surface down with it.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("control server shutdown failed", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}
