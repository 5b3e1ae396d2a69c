package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/renalytics-ai/platform/pkg/common/config"
	"github.com/renalytics-ai/platform/pkg/common/logger"
	"github.com/renalytics-ai/platform/pkg/dataset"
	"github.com/renalytics-ai/platform/pkg/features/aggregate"
)

func main() {
	var fetch = flag.Bool("fetch", false, "Download the raw dialysis dataset files")
	var dir = flag.String("dir", "data", "Base directory for downloaded dataset files")
	var keepTemp = flag.Bool("keep-temp", false, "Keep the temp download directory after fetching")
	var in = flag.String("in", "", "Sessionized CSV to load")
	var out = flag.String("out", "", "Path to write the normalized sessions CSV (requires -in)")
	var summarize = flag.Bool("summarize", false, "Aggregate the loaded sessions and print feature counts (requires -in)")
	flag.Parse()

	logger.Init()
	cfg := config.Load()

	if !*fetch && *in == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if *fetch {
		fetcher := dataset.NewFetcher(*dir)
		tempDir, err := fetcher.DownloadRawFiles(ctx)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to download dataset files")
		}
		logger.Log.WithField("dir", tempDir).Info("Raw dataset files downloaded")

		if !*keepTemp {
			if err := fetcher.DeleteTempDir(tempDir); err != nil {
				logger.Log.WithError(err).Warn("Failed to remove temp directory")
			}
		}
	}

	if *in == "" {
		return
	}

	records, err := dataset.LoadSessions(*in)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load sessions CSV")
	}
	logger.Log.WithFields(map[string]interface{}{
		"path":    *in,
		"records": len(records),
	}).Info("Sessions loaded")

	if *out != "" {
		if err := dataset.SaveSessions(records, *out); err != nil {
			logger.Log.WithError(err).Fatal("Failed to write sessions CSV")
		}
		logger.Log.WithField("path", *out).Info("Sessions written")
	}

	if *summarize {
		rows, err := aggregate.Aggregate(records, aggregate.Params{
			IntervalMinutes:     cfg.Pipeline.IntervalMinutes,
			RollingWindow:       cfg.Pipeline.RollingWindow,
			PredictionIntervals: cfg.Pipeline.PredictionIntervals,
			HypotensionLimit:    cfg.Pipeline.HypotensionLimit,
		})
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to aggregate sessions")
		}

		sessions := map[string]struct{}{}
		positive := 0
		for _, row := range rows {
			sessions[row.SessionID] = struct{}{}
			if row.Label == 1 {
				positive++
			}
		}

		fmt.Printf("feature rows: %d\n", len(rows))
		fmt.Printf("sessions:     %d\n", len(sessions))
		fmt.Printf("positive:     %d\n", positive)
	}
}
