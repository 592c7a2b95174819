// Command ingest runs one batch ingestion pass (fetch -> normalize ->
// recompute) across every tenant and source, then exits. It is the
// operator-triggered alternative to waiting on the scheduler's cron entries.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/tenantsync/engine/internal/app"
	"github.com/tenantsync/engine/internal/config"
	tserrors "github.com/tenantsync/engine/internal/errors"
)

// Exit codes per the batch ingestion CLI contract: 0 success, 1 configuration
// error, 2 source unavailable, 3 partial (some data types failed).
const (
	exitSuccess = 0
	exitConfig  = 1
	exitSource  = 2
	exitPartial = 3
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overrides CONFIG_FILE)")
	metricsOnly := flag.Bool("metrics-only", false, "recompute derived metrics without re-fetching sources")
	flag.Parse()

	if trimmed := *configPath; trimmed != "" {
		os.Setenv("CONFIG_FILE", trimmed)
	}

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(exitConfig)
	}

	pipeline, log, db, err := app.NewPipeline(cfg)
	if err != nil {
		os.Stderr.WriteString("wire pipeline: " + err.Error() + "\n")
		os.Exit(exitConfig)
	}
	if db != nil {
		defer db.Close()
	}

	ctx := context.Background()

	if *metricsOnly {
		count, err := pipeline.RecomputeAllMetrics(ctx)
		if err != nil {
			log.WithError(err).Error("metrics recompute failed")
			os.Exit(exitSource)
		}
		log.WithField("legislators", count).Info("metrics recompute complete")
		os.Exit(exitSuccess)
	}

	processed, errored, err := pipeline.IngestAllSources(ctx)
	if err != nil {
		if kerr, ok := tserrors.As(err); ok && kerr.Kind == tserrors.KindTransientIO {
			log.WithError(err).Error("source unavailable")
			os.Exit(exitSource)
		}
		log.WithError(err).Error("ingest failed")
		os.Exit(exitSource)
	}
	log.WithField("processed", processed).WithField("errored", errored).Info("ingest complete")
	if errored > 0 {
		os.Exit(exitPartial)
	}
	os.Exit(exitSuccess)
}
