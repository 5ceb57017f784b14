package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/govtools/archive-resistance/internal/cdx"
	"github.com/govtools/archive-resistance/internal/config"
	"github.com/govtools/archive-resistance/internal/domainlist"
	"github.com/govtools/archive-resistance/internal/harvest"
	"github.com/govtools/archive-resistance/internal/metrics"
	"github.com/govtools/archive-resistance/internal/report"
	"github.com/govtools/archive-resistance/internal/storage"
	"github.com/govtools/archive-resistance/internal/version"
)

func main() {
	// Configure logging
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	logrus.Infof("Archive Resistance Harvester v%s starting...", version.Version)

	// Load configuration
	cfgPath := "config.json"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.Warnf("Unknown log level %q, staying at info", cfg.LogLevel)
	}

	logrus.Infof("Configuration loaded: input=%s, workers=%d, max_pages=%d, max_duration=%s",
		cfg.InputFile, cfg.Workers, cfg.MaxPages, cfg.MaxDuration())

	// Load the domain working set
	domains, err := domainlist.Load(cfg.InputFile)
	if err != nil {
		logrus.Fatalf("Failed to load domain list: %v", err)
	}
	if len(domains) == 0 {
		logrus.Fatal("Domain list is empty, nothing to harvest")
	}
	logrus.Infof("Loaded %d unique domains from %s", len(domains), cfg.InputFile)

	// Initialize the checkpoint store
	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	logrus.Infof("Database initialized: %s", cfg.DBPath)

	// Initialize metrics tracker
	tracker := metrics.NewTracker()

	// Assemble the harvest pipeline
	client := cdx.NewClient(cdx.ClientConfig{
		BaseURL:           cfg.CDXBaseURL,
		StartDate:         cfg.StartDate,
		PageLimit:         cfg.PageLimit,
		RequestTimeout:    cfg.RequestTimeout(),
		RequestsPerSecond: cfg.RequestsPerSecond,
		Backoff: cdx.Backoff{
			Base:       cfg.BackoffBaseSeconds,
			MaxRetries: cfg.MaxRetries,
		},
	})

	harvester := harvest.NewHarvester(client, harvest.Limits{
		MaxPages:        cfg.MaxPages,
		MaxDuration:     cfg.MaxDuration(),
		StableThreshold: cfg.StableThresholdCount,
	})

	writer := report.NewWriter(cfg.SummaryCSVPath, cfg.MonthlyCSVPath)
	coordinator := harvest.NewCoordinator(harvester, store, writer, tracker, cfg.Workers, cfg.RetryPartial)

	// Setup signal handling: first signal drains in-flight domains, second
	// forces an immediate exit after an emergency metrics save
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	interrupted := false
	go func() {
		sig := <-sigChan
		logrus.Infof("Received signal %v, finishing in-flight domains (send again to force quit)...", sig)
		interrupted = true
		cancel()

		sig = <-sigChan
		logrus.Warnf("Received second signal (%v) - forcing immediate exit!", sig)
		logrus.Warn("Attempting emergency metrics save...")
		if err := tracker.WriteToFile(cfg.MetricsPath, "forced_exit"); err != nil {
			logrus.Errorf("Emergency metrics save failed: %v", err)
		}
		os.Exit(1)
	}()

	// Start progress logger
	stopProgress := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logrus.Info(tracker.LogProgress())
			case <-stopProgress:
				return
			}
		}
	}()

	runErr := coordinator.Run(ctx, domains)

	// Stop progress logger
	close(stopProgress)
	wg.Wait()

	terminationReason := "completed"
	if interrupted {
		terminationReason = "signal"
	}
	if runErr != nil {
		logrus.Errorf("Harvest run error: %v", runErr)
		terminationReason = "error"
	}

	// Final progress log
	logrus.Info("Final stats: " + tracker.LogProgress())

	// Write metrics to file
	if err := tracker.WriteToFile(cfg.MetricsPath, terminationReason); err != nil {
		logrus.Errorf("Failed to write metrics: %v", err)
	} else {
		logrus.Infof("Metrics written to %s", cfg.MetricsPath)
	}

	logrus.Info("Shutdown complete. Goodbye!")
}
