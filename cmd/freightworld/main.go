// Command freightworld runs the cargo distribution simulation: a
// scenario of stations, links and vehicles where cargo picks its next
// hop from flow tables learned while the network runs.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/talgya/freightworld/internal/api"
	"github.com/talgya/freightworld/internal/engine"
	"github.com/talgya/freightworld/internal/persistence"
	"github.com/talgya/freightworld/internal/scenario"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	scenarioPath := envOr("FREIGHTWORLD_SCENARIO", "scenarios/heartland.yaml")
	dbPath := envOr("FREIGHTWORLD_DB", "data/freightworld.db")
	apiPort := envInt("FREIGHTWORLD_PORT", 8080)
	speed := envFloat("FREIGHTWORLD_SPEED", 1.0)
	headlessTicks := envInt("FREIGHTWORLD_TICKS", 0)
	resumeRun := os.Getenv("FREIGHTWORLD_RESUME")

	// ── Scenario ──────────────────────────────────────────────────────
	cfg, err := scenario.Load(scenarioPath)
	if err != nil {
		slog.Error("failed to load scenario", "path", scenarioPath, "error", err)
		os.Exit(1)
	}
	w, err := cfg.Build()
	if err != nil {
		slog.Error("failed to build world", "error", err)
		os.Exit(1)
	}
	slog.Info("scenario loaded",
		"name", cfg.Name,
		"stations", len(w.Stations),
		"vehicles", len(w.Vehicles),
		"cargo_classes", len(w.Classes),
	)

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(dbPath), 0755)
	db, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	eng := engine.NewEngine()
	eng.Speed = speed

	// ── Resume or Seed ────────────────────────────────────────────────
	if resumeRun != "" {
		tick, err := db.LoadSnapshot(w, resumeRun)
		if err != nil {
			slog.Error("failed to resume run", "run", resumeRun, "error", err)
			os.Exit(1)
		}
		eng.Tick = tick
	} else {
		scenario.SeedFlows(cfg, w)
	}

	// ── HTTP API + websocket feed ─────────────────────────────────────
	adminKey := os.Getenv("FREIGHTWORLD_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("FREIGHTWORLD_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}

	hub := api.NewHub()
	go hub.Run()

	apiServer := &api.Server{
		World:    w,
		Eng:      eng,
		DB:       db,
		Hub:      hub,
		Port:     apiPort,
		Scenario: cfg.Name,
		AdminKey: adminKey,
	}
	apiServer.Start()

	// ── Tick wiring ───────────────────────────────────────────────────
	eng.OnTick = func(tick uint64) {
		w.TickVehicles(tick)
		if tick%20 == 0 {
			apiServer.PublishPulse(tick)
		}
	}
	eng.OnAging = w.AgeCargo
	eng.OnFlowDecay = w.DecayFlows
	eng.OnSnapshot = func(tick uint64) {
		if _, err := db.SaveSnapshot(w, cfg.Name, tick); err != nil {
			slog.Error("periodic snapshot failed", "error", err)
		}
	}

	// ── Run ───────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\n%s: %d stations, %d vehicles.\n", cfg.Name, len(w.Stations), len(w.Vehicles))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", apiPort)
	if eng.Tick > 0 {
		fmt.Printf("Resuming from tick %d\n", eng.Tick)
	}

	if headlessTicks > 0 {
		fmt.Printf("Running %d ticks headless...\n", headlessTicks)
		eng.RunTicks(uint64(headlessTicks))
	} else {
		fmt.Println("Starting simulation... (Ctrl+C to stop)")
		eng.Run()
	}

	// Final snapshot on shutdown.
	if runID, err := db.SaveSnapshot(w, cfg.Name, eng.Tick); err != nil {
		slog.Error("final snapshot failed", "error", err)
	} else {
		slog.Info("final snapshot saved", "run", runID)
	}

	fmt.Printf("\nRun summary at tick %s:\n", humanize.Comma(int64(eng.Tick)))
	fmt.Printf("  produced:        %s units\n", humanize.Comma(int64(w.Stats.Produced)))
	fmt.Printf("  delivered:       %s units\n", humanize.Comma(int64(w.Stats.Delivered)))
	fmt.Printf("  discarded:       %s units\n", humanize.Comma(int64(w.Stats.Discarded)))
	fmt.Printf("  route earnings:  %s\n", humanize.Comma(int64(w.Stats.RouteEarnings)))
	fmt.Printf("  feeder credits:  %s\n", humanize.Comma(int64(w.Stats.FeederCredits)))
	fmt.Printf("  deferred unpaid: %s\n", humanize.Comma(int64(w.Ledger.Outstanding())))
}

func logLevel() slog.Level {
	switch os.Getenv("FREIGHTWORLD_LOG") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
