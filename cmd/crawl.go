package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dealerwatch/dealercrawl/internal/catalog"
	"github.com/dealerwatch/dealercrawl/internal/crawl"
	"github.com/dealerwatch/dealercrawl/internal/extract"
	"github.com/dealerwatch/dealercrawl/internal/metrics"
	"github.com/dealerwatch/dealercrawl/internal/output"
	"github.com/dealerwatch/dealercrawl/internal/render"
	"github.com/dealerwatch/dealercrawl/internal/storage/postgres"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs a full dealer crawl and writes the result set",
		Long: `Builds the target matrix from the configured brands and the location
catalog, crawls every target under the configured pacing and retry
policy, then writes accepted records, the failure ledger, and the run
summary to the output directory.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		srv := metrics.Serve(cfg.Metrics.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics endpoint started", zap.String("addr", cfg.Metrics.Addr))
	}

	cat := catalog.New(cfg.CatalogConfigFor(), logger.Named("catalog"))
	if err := cat.Load(); err != nil {
		return fmt.Errorf("load location catalog: %w", err)
	}

	targets, warnings := crawl.BuildTargets(cfg.BrandConfigs(), cat)
	for _, w := range warnings {
		logger.Warn("skipping unknown location",
			zap.String("brand", w.Brand),
			zap.String("location", w.Location),
		)
	}
	if len(targets) == 0 {
		return errors.New("no fetch targets after matrix expansion")
	}
	logger.Info("target matrix built",
		zap.Int("targets", len(targets)),
		zap.Int("unknown_locations", len(warnings)),
	)

	renderers, closeRenderers, err := render.NewPool(
		cfg.RenderConfig(),
		logger.Named("render"),
		cfg.Crawler.ConcurrencyWidth,
	)
	if err != nil {
		return fmt.Errorf("init renderer pool: %w", err)
	}
	defer closeRenderers()

	scheduler := crawl.NewScheduler(
		cfg.SchedulerConfig(),
		renderers,
		extract.New("", logger.Named("extract")),
		extract.NewValidator(cfg.Crawler.ValidateStrict),
		logger.Named("scheduler"),
	)

	agg, runErr := scheduler.Run(ctx, targets)
	summary := agg.Summary()
	logger.Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)),
		zap.Int("succeeded", summary.TargetsSucceeded),
		zap.Int("failed", summary.TargetsFailed),
		zap.Int("records", summary.RecordsAccepted),
		zap.Int("duplicates", summary.DuplicatesSuppressed),
		zap.Duration("duration", summary.Duration),
	)

	// Partial results are worth keeping even when the run aborted.
	if err := writeOutputs(agg); err != nil {
		logger.Error("write outputs", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	if cfg.DB.DSN != "" {
		if err := persistRun(ctx, agg); err != nil {
			logger.Error("persist run to postgres", zap.Error(err))
			if runErr == nil {
				runErr = err
			}
		}
	}

	return runErr
}

func writeOutputs(agg *crawl.Aggregator) error {
	stamp := time.Now().Format("20060102_150405")
	dir := cfg.Output.Dir

	if slices.Contains(cfg.Output.Formats, "csv") {
		path := filepath.Join(dir, fmt.Sprintf("dealers_%s.csv", stamp))
		if err := output.WriteCSV(path, agg.Records()); err != nil {
			return err
		}
		logger.Info("wrote csv output", zap.String("path", path))
	}
	if slices.Contains(cfg.Output.Formats, "json") {
		path := filepath.Join(dir, fmt.Sprintf("dealers_%s.json", stamp))
		if err := output.WriteJSON(path, agg.Records()); err != nil {
			return err
		}
		logger.Info("wrote json output", zap.String("path", path))
	}
	if failures := agg.Failures(); len(failures) > 0 {
		path := filepath.Join(dir, fmt.Sprintf("failed_targets_%s.csv", stamp))
		if err := output.WriteFailureReport(path, failures); err != nil {
			return err
		}
		logger.Warn("some targets failed", zap.Int("count", len(failures)), zap.String("report", path))
	}
	return output.WriteSummary(filepath.Join(dir, fmt.Sprintf("summary_%s.json", stamp)), agg.Summary())
}

func persistRun(ctx context.Context, agg *crawl.Aggregator) error {
	store, err := postgres.NewDealerStore(ctx, postgres.DealerStoreConfig{DSN: cfg.DB.DSN})
	if err != nil {
		return err
	}
	defer store.Close()
	return store.StoreRun(ctx, agg.RunID(), agg.Records())
}
