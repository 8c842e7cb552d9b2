// Command openmemoryd wires the full OpenMemory Core container together and
// runs its scheduled maintenance tasks: load .env, init the logger, load
// config, build collaborators, then block until signaled.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"

	"github.com/openmemory/core/internal/config"
	"github.com/openmemory/core/internal/container"
	"github.com/openmemory/core/internal/model"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	log := newLogger(os.Getenv("OM_LOG_LEVEL"))

	cfg, err := config.Load(".env")
	if err != nil {
		pterm.Error.Printf("failed to load config: %v\n", err)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	c, err := container.Build(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build container")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registerMaintenanceTasks(c)

	pterm.Success.Printf("openmemoryd started: tier=%s metadata=%s vector=%s\n", cfg.Tier, cfg.MetadataBackend, cfg.VectorBackend)
	log.Info().Str("tier", string(cfg.Tier)).Msg("openmemoryd started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutdown signal received")
	stillRunning := c.Scheduler.StopAll(10 * time.Second)
	for _, name := range stillRunning {
		log.Warn().Str("task", name).Msg("task did not stop within shutdown deadline")
	}
	if err := c.Close(ctx); err != nil {
		log.Error().Err(err).Msg("error closing container resources")
	}
}

// registerMaintenanceTasks installs the periodic sweeps spec §4.9 expects
// running against the live container (decay sweep; reflective-sector
// consolidation is triggered from the dynamics API directly by callers and
// isn't scheduled here).
func registerMaintenanceTasks(c *container.Container) {
	sourceSector := func(memoryID string) (model.Sector, bool) {
		m, err := c.Memories.Memories.GetByID(context.Background(), memoryID)
		if err != nil || m == nil {
			return "", false
		}
		return m.PrimarySector, true
	}

	c.Scheduler.Register("decay-sweep", c.Cfg.Decay.SleepMs*100, func(ctx context.Context) error {
		report, err := c.Dynamics.DecaySweep(ctx, sourceSector)
		if err != nil {
			return err
		}
		c.Log.Info().
			Int("memories_processed", report.MemoriesProcessed).
			Int("memories_deleted", report.MemoriesDeleted).
			Int("waypoints_processed", report.WaypointsProcessed).
			Int64("waypoints_pruned", report.WaypointsPruned).
			Int("vectors_orphaned_deleted", report.VectorsOrphanedDeleted).
			Msg("decay sweep completed")
		return nil
	})
}

func newLogger(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = os.Stdout
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
