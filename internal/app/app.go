package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"proxysheet/internal/app/version"
	"proxysheet/internal/config"
	jobruntime "proxysheet/internal/jobs/runtime"
	"proxysheet/internal/publisher"
	"proxysheet/internal/support"
)

// ErrInterrupted is returned when the run was cancelled before publishing.
var ErrInterrupted = errors.New("run interrupted")

// Run performs one check-and-publish cycle. A returned error means the process
// should exit non-zero.
func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	cfg, err := config.Load(support.GetEnv("SETTINGS_FILE", config.DefaultSettingsPath))
	if err != nil {
		return err
	}
	configureLogging(cfg.LogLevel)

	runID := uuid.NewString()
	info := version.Get()
	log.Info("Starting proxysheet", "version", info.BuildVersion, "built_at", info.BuiltAt, "run_id", runID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Execute(ctx, cfg, runID)
}

// Execute runs the pipeline with an already loaded configuration. It fails
// for unreadable input, invalid configuration and interrupted runs; backends
// that cannot be reached and sinks that fail are logged.
func Execute(ctx context.Context, cfg config.Config, runID string) error {
	lines, err := support.ReadProxyFile(cfg.Input.File)
	if err != nil {
		return err
	}

	var redisClient redis.UniversalClient
	if cfg.Redis.URL != "" && (cfg.RunLock.Enabled || hasSink(cfg, config.SinkRedis)) {
		client, err := support.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			log.Error("Redis unavailable, continuing without run lock and redis sink", "error", err)
		} else {
			defer client.Close()
			redisClient = client
		}
	}

	if cfg.RunLock.Enabled && redisClient != nil {
		lock, err := support.TryAcquireRunLock(ctx, redisClient, cfg.Redis.KeyPrefix+":lock", runID, cfg.RunLockTTL())
		if errors.Is(err, support.ErrRunLockHeld) {
			log.Info("Another run holds the lock, skipping this run")
			return nil
		}
		if err != nil {
			log.Error("Run lock unavailable, continuing without it", "error", err)
		} else {
			defer lock.Release()
			ctx = lock.Context()
		}
	}

	publishOpts, err := buildPublishOptions(cfg)
	if err != nil {
		return err
	}

	sinks, closeSinks, err := buildSinks(ctx, cfg, redisClient, runID)
	if err != nil {
		return err
	}
	defer closeSinks()

	enricher, closeEnricher := buildEnricher(ctx, cfg)
	defer closeEnricher()

	blocked, err := blockedHosts(ctx, cfg)
	if err != nil {
		return err
	}

	stats := jobruntime.NewProbeStatistics()
	pipeline, err := buildPipeline(cfg, blocked, enricher, stats)
	if err != nil {
		return err
	}

	runCtx := ctx
	if timeout := cfg.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	report := pipeline.RunLines(runCtx, lines)

	stats.Log()
	log.Info("Active proxies", "count", report.Active, "checked", report.Checked, "duration", report.Duration())

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	_, err = publisher.Publish(ctx, sinks, report.Records, publishOpts)
	switch {
	case errors.Is(err, publisher.ErrAllSinksFailed):
		log.Error("No sink was updated", "error", err)
	case err != nil:
		log.Warn("Some sinks were not updated", "error", err)
	}

	return nil
}

func configureLogging(level string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.Warn("Unknown log level, using info", "level", level)
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}
