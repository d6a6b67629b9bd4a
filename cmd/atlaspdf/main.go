package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/blingblang/atlas-fluvial/pkg/compose"
	"github.com/blingblang/atlas-fluvial/pkg/config"
	"github.com/blingblang/atlas-fluvial/pkg/geo"
	"github.com/blingblang/atlas-fluvial/pkg/logging"
	"github.com/blingblang/atlas-fluvial/pkg/pipeline"
	"github.com/blingblang/atlas-fluvial/pkg/publish"
	"github.com/blingblang/atlas-fluvial/pkg/renderer"
	"github.com/blingblang/atlas-fluvial/pkg/request"
	"github.com/blingblang/atlas-fluvial/pkg/scheduler"
	"github.com/blingblang/atlas-fluvial/pkg/store"
	"github.com/blingblang/atlas-fluvial/pkg/tracker"
	"github.com/blingblang/atlas-fluvial/pkg/version"
)

var (
	configPath    = flag.String("config", "configs/atlaspdf.yaml", "Path to config file")
	initConfig    = flag.Bool("init-config", false, "Generate default config file and exit")
	latitude      = flag.Float64("latitude", math.NaN(), "Northwest corner latitude in decimal degrees (required)")
	longitude     = flag.Float64("longitude", math.NaN(), "Northwest corner longitude in decimal degrees (required)")
	intervalHours = flag.Int("interval", 0, "Regeneration interval in hours (overrides config)")
	once          = flag.Bool("once", false, "Run a single generation and exit")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	anchor := geo.Point{Lat: *latitude, Lon: *longitude}
	if math.IsNaN(anchor.Lat) || math.IsNaN(anchor.Lon) {
		return fmt.Errorf("--latitude and --longitude are required")
	}
	if !anchor.Valid() {
		return fmt.Errorf("invalid anchor coordinates: lat=%v lon=%v", anchor.Lat, anchor.Lon)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *intervalHours > 0 {
		cfg.Scheduler.Interval = config.Duration(time.Duration(*intervalHours) * time.Hour)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("atlaspdf started", "version", version.Version,
		"lat", anchor.Lat, "lon", anchor.Lon, "once", *once,
		"interval", time.Duration(cfg.Scheduler.Interval))

	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	trk := tracker.New()

	var hist pipeline.History
	if cfg.History.Path != "" {
		st, err := store.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		defer st.Close()
		hist = st
	}

	client := request.New(time.Duration(cfg.Request.Timeout))
	source := renderer.NewStaticSource(client, cfg.Map.ProviderURL)
	rend := renderer.New(source, &cfg.Map, &cfg.Request)
	comp := compose.New(&cfg.Document)
	pub := publish.New(client, &cfg.Publish, &cfg.Request, creds)
	coord := pipeline.NewCoordinator(rend, comp, pub, trk, hist)
	loop := scheduler.New(coord, anchor, &cfg.Scheduler, &cfg.Map, trk)

	if *once {
		state, err := loop.RunOnce(ctx)
		if err != nil {
			return err
		}
		slog.Info("One-shot run succeeded",
			"url", state.Artifact.URL, "filename", state.Artifact.Filename,
			"size_bytes", state.Artifact.SizeBytes)
		return nil
	}

	loop.Run(ctx)
	logSummary(trk)
	return nil
}

func logSummary(trk *tracker.Tracker) {
	snap := trk.Snapshot()
	slog.Info("Pipeline summary",
		"runs_succeeded", snap.RunsSucceeded,
		"runs_failed", snap.RunsFailed,
		"missed_intervals", snap.MissedIntervals)
	for stage, stats := range snap.Stages {
		slog.Info("Stage summary", "stage", stage,
			"started", stats.Started, "succeeded", stats.Succeeded,
			"failed", stats.Failed, "attempts", stats.Attempts,
			"elapsed", time.Duration(stats.ElapsedNS))
	}
}
