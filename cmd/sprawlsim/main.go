// Command sprawlsim runs the residential relocation simulation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/nicolas-f/gdms-usm/internal/agents"
	"github.com/nicolas-f/gdms-usm/internal/api"
	"github.com/nicolas-f/gdms-usm/internal/config"
	"github.com/nicolas-f/gdms-usm/internal/decision"
	"github.com/nicolas-f/gdms-usm/internal/engine"
	"github.com/nicolas-f/gdms-usm/internal/entropy"
	"github.com/nicolas-f/gdms-usm/internal/persistence"
	"github.com/nicolas-f/gdms-usm/internal/persistence/steplog"
	"github.com/nicolas-f/gdms-usm/internal/selection"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	if err := run(*configPath); err != nil {
		slog.Error("sprawlsim failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Seed == 0 {
		rng := entropy.NewClient(os.Getenv("RANDOM_ORG_API_KEY"))
		cfg.Seed = rng.Seed(context.Background())
		slog.Info("seed drawn", "random_org", rng.Enabled())
	}
	slog.Info("residential relocation simulation",
		"seed", cfg.Seed,
		"decision", cfg.Decision.Model,
		"selection", cfg.Selection.Model,
		"workers", cfg.Workers,
	)

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.Storage.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
			return err
		}
		db, err = persistence.Open(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.Storage.DBPath)
	}

	// ── Population source (resume or generate) ───────────────────────
	var src engine.PopulationSource
	if db != nil && db.HasState() {
		last, _ := db.LastStep()
		slog.Info("found saved state, resuming", "step", last.Step, "year", last.Year,
			"households", humanize.Comma(int64(last.Population)))
		src = db
	} else {
		slog.Info("no saved state found, generating parcel field",
			"radius", cfg.World.Radius, "fill", cfg.World.Fill)
		src = &engine.GeneratedSource{
			Gen:       cfg.GenConfig(),
			Fill:      cfg.World.Fill,
			Spawner:   agents.NewSpawner(cfg.Seed),
			StartYear: cfg.StartYear,
		}
	}

	// ── Strategies ───────────────────────────────────────────────────
	decider, err := decision.New(cfg.Decision)
	if err != nil {
		return err
	}
	selector, err := selection.New(cfg.Selection, rand.New(rand.NewSource(cfg.Seed+500)))
	if err != nil {
		return err
	}

	// ── Simulation ────────────────────────────────────────────────────
	simOpts := engine.Options{
		Decider:           decider,
		Selector:          selector,
		Thresholds:        cfg.Thresholds(),
		NeighborInfluence: cfg.Build.NeighborInfluence,
		Workers:           cfg.Workers,
	}
	if db != nil {
		simOpts.Sink = db
	}
	sim, err := engine.NewSimulation(simOpts)
	if err != nil {
		return err
	}

	var logger *steplog.Logger
	logDone := make(chan error, 1)
	if cfg.Storage.StepLogDir != "" {
		logger = steplog.NewLogger(cfg.Storage.StepLogDir, sim.RunID.String())
		sim.AddListener(logger)
		_, reports := sim.Subscribe()
		go func() { logDone <- logger.Follow(reports) }()
		slog.Info("step logs enabled", "dir", cfg.Storage.StepLogDir)
	}

	if err := sim.Initialize(src); err != nil {
		return err
	}
	stats := sim.Stats()
	slog.Info("population ready",
		"households", humanize.Comma(int64(stats.Households)),
		"parcels", humanize.Comma(int64(stats.Parcels)),
		"full_parcels", stats.FullParcels,
		"year", sim.Year(),
	)

	eng := engine.NewEngine(sim)
	eng.Interval = cfg.StepInterval
	eng.MaxSteps = cfg.Steps

	// ── HTTP API ──────────────────────────────────────────────────────
	var apiServer *api.Server
	if cfg.API.Port > 0 {
		if cfg.API.AdminKey == "" {
			slog.Warn(config.AdminKeyEnv + " not set, admin endpoints will be disabled")
		}
		apiServer = &api.Server{
			Sim:      sim,
			Eng:      eng,
			DB:       db,
			Port:     cfg.API.Port,
			AdminKey: cfg.API.AdminKey,
		}
		apiServer.Start()
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	runErr := eng.Run()
	sim.Terminate()

	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			slog.Warn("HTTP shutdown", "error", err)
		}
	}
	if logger != nil {
		err := <-logDone
		err = errors.Join(err, logger.Close())
		if err != nil {
			slog.Error("step log", "error", err)
		}
	}

	final := sim.Stats()
	slog.Info("simulation stopped",
		"step", sim.StepCount(),
		"year", sim.Year(),
		"households", humanize.Comma(int64(final.Households)),
		"total_moves", humanize.Comma(int64(final.TotalMoves)),
	)
	return runErr
}
