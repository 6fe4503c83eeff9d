package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"reply-tracker/internal/access"
	"reply-tracker/internal/backup"
	"reply-tracker/internal/clock"
	"reply-tracker/internal/config"
	"reply-tracker/internal/export"
	"reply-tracker/internal/logging"
	"reply-tracker/internal/metrics"
	"reply-tracker/internal/msgcache"
	"reply-tracker/internal/scheduler"
	"reply-tracker/internal/storage"
	"reply-tracker/internal/telegram"
	"reply-tracker/internal/tracking"
)

func main() {
	envFile := pflag.String("env-file", ".env", "path to a .env file")
	logLevel := pflag.String("log-level", "", "override LOG_LEVEL")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", *envFile, err)
	}

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("bot startup failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(metrics.WithNamespace("reply_tracker"))
	clk := clock.New(clock.Settings{
		AutoDST:          cfg.AutoDST,
		Timezone:         cfg.Timezone,
		FixedOffsetHours: cfg.FixedUTCOffset,
	}, logging.Component(log, "clock"))

	reportLock := storage.NewFileLock(cfg.ResponseReportFile, cfg.LockTimeout)
	backups, err := backup.New(cfg.BackupDir, []backup.Target{
		// the store calls the manager while holding its own lock
		{Path: cfg.ResponseDataFile},
		{Path: cfg.ResponseReportFile, Lock: reportLock, Optional: true},
	},
		backup.WithRetentionDays(cfg.BackupRetentionDays),
		backup.WithMinKeep(cfg.MinBackupsToKeep),
		backup.WithClock(clk),
		backup.WithLogger(logging.Component(log, "backup")),
		backup.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	store, err := storage.NewFileStore(cfg.ResponseDataFile,
		storage.WithBackupInterval(cfg.BackupInterval),
		storage.WithSnapshotter(backups),
		storage.WithLockTimeout(cfg.LockTimeout),
		storage.WithLogger(logging.Component(log, "storage")),
		storage.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	tracker := tracking.New(clk, store, backups,
		tracking.WithBufferCapacity(cfg.BufferCapacity),
		tracking.WithLogger(logging.Component(log, "tracking")),
		tracking.WithMetrics(m),
	)

	gate, err := access.Open(cfg.AdminUsersFile, cfg.TargetUsersFile, logging.Component(log, "access"))
	if err != nil {
		return err
	}
	if len(cfg.BootstrapAdmins) > 0 {
		added, err := gate.Seed(cfg.BootstrapAdmins)
		if err != nil {
			return err
		}
		log.Info().Int("added", added).Msg("bootstrap admins applied")
	}

	cache, err := msgcache.NewFileRepository(cfg.MessageCacheFile)
	if err != nil {
		return err
	}
	logStartupState(ctx, log, store, cache)

	exporter := export.New(cfg.ResponseReportFile, reportLock, logging.Component(log, "export"))

	bot, err := telegram.New(cfg.TelegramBotToken, telegram.Deps{
		Gate:        gate,
		Tracker:     tracker,
		Exporter:    exporter,
		Backups:     backups,
		Clock:       clk,
		CleanupDays: cfg.CleanupDefaultDays,
		Log:         logging.Component(log, "telegram"),
	})
	if err != nil {
		return err
	}

	sched := scheduler.New(cfg.FlushInterval, logging.Component(log, "scheduler"))
	sched.SetFlushFunction(func(ctx context.Context) error {
		_, err := tracker.Flush(ctx)
		return err
	})
	if err := sched.Start(); err != nil {
		return err
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
	}

	// Blocks until a signal arrives and running handlers are done.
	bot.Start(ctx)

	sched.Stop()
	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := tracker.Close(closeCtx); err != nil {
		log.Error().Err(err).Int("pending", tracker.Pending()).Msg("final flush failed")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(closeCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
	log.Info().Msg("shutdown complete")
	return nil
}

func logStartupState(ctx context.Context, log zerolog.Logger, store *storage.FileStore, cache *msgcache.FileRepository) {
	events, err := store.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read existing responses")
	}
	entries, err := cache.LoadAll()
	if err != nil {
		log.Warn().Err(err).Msg("failed to read message cache")
	}
	log.Info().Int("responses", len(events)).Int("cached_messages", len(entries)).Msg("bot started with existing data")
}
