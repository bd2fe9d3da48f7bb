package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/usagereporter/internal/api"
	"github.com/goodtune/usagereporter/internal/apps"
	"github.com/goodtune/usagereporter/internal/clock"
	"github.com/goodtune/usagereporter/internal/config"
	"github.com/goodtune/usagereporter/internal/metrics"
	"github.com/goodtune/usagereporter/internal/pipeline"
	"github.com/goodtune/usagereporter/internal/report"
	"github.com/goodtune/usagereporter/internal/scheduler"
	"github.com/goodtune/usagereporter/internal/sendresult"
	"github.com/goodtune/usagereporter/internal/settings"
	"github.com/goodtune/usagereporter/internal/storage"
	"github.com/goodtune/usagereporter/internal/storage/bolt"
	"github.com/goodtune/usagereporter/internal/storage/redis"
	"github.com/goodtune/usagereporter/internal/systemd"
	"github.com/goodtune/usagereporter/internal/usage"
	"github.com/goodtune/usagereporter/internal/webhook"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// retentionDelay is how long after first start the usage retention job
// runs for the first time.
const retentionDelay = time.Hour

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the usagereporter daemon",
	Long:  `Start the daemon: activity tracking, the daily report schedule, the control API and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting usagereporter")

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("failed to load report timezone: %w", err)
	}
	defaultHour, defaultMinute, err := cfg.DefaultSendTime()
	if err != nil {
		return err
	}

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Str("redis_host", cfg.Storage.Redis.Host).
		Msg("Storage initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.RealClock{}

	// Usage tracking
	tracker := usage.NewTracker(store.Usage(), clk, usage.Config{
		Enabled:            cfg.Usage.Enabled,
		InactivityTimeout:  config.Duration(cfg.Usage.InactivityTimeout),
		MinSessionDuration: config.Duration(cfg.Usage.MinSessionDuration),
	}, logger)
	tracker.Start()

	// Application names
	resolver, err := apps.NewResolver(cfg.Applications.InventoryPath, cfg.Applications.CacheSize, logger)
	if err != nil {
		return fmt.Errorf("failed to load application inventory: %w", err)
	}

	var watcher *apps.Watcher
	if cfg.Applications.Watch && cfg.Applications.InventoryPath != "" {
		watcher, err = apps.NewWatcher(resolver, logger)
		if err == nil {
			err = watcher.Start()
		}
		if err != nil {
			logger.Warn().Err(err).Msg("Application inventory will not be reloaded on change")
			watcher = nil
		}
	}

	// Report pipeline
	results := sendresult.New(store.Outcomes(), logger)
	settingsService := settings.New(store.Settings(), storage.ReportSettings{
		SendHour:   defaultHour,
		SendMinute: defaultMinute,
	}, logger)

	reportPipeline := pipeline.New(pipeline.Deps{
		Settings: settingsService,
		Usage:    usage.NewAggregator(tracker, clk, loc),
		Composer: report.NewComposer(cfg.Report.TopN, cfg.Report.TargetMinutes, resolver),
		Delivery: webhook.NewClient(webhook.Config{Timeout: config.Duration(cfg.Webhook.Timeout)}, logger),
		Outcomes: results,
		Notifier: pipeline.NewStatusNotifier(logger),
		Clock:    clk,
	}, logger)

	stopOutcomeMetrics := watchOutcomes(ctx, results, logger)
	defer stopOutcomeMetrics()

	// Scheduling
	var probe scheduler.NetworkProbe = scheduler.AlwaysOnline
	if cfg.Scheduler.NetworkCheckAddr != "" {
		probe = scheduler.DialProbe{
			Addr:    cfg.Scheduler.NetworkCheckAddr,
			Timeout: config.Duration(cfg.Scheduler.NetworkCheckTimeout),
		}
	}

	runner := scheduler.NewRunner(store.Jobs(), clk, scheduler.RunnerConfig{
		PollInterval: config.Duration(cfg.Scheduler.PollInterval),
		Location:     loc,
		Probe:        probe,
	}, logger)
	reportScheduler := scheduler.New(runner, clk, loc, logger)

	runner.Register(scheduler.DailyReportJob, func(ctx context.Context) error {
		result := reportPipeline.Run(ctx, pipeline.Scheduled)
		if !result.OK() {
			return result.Err
		}
		return nil
	})

	retention := usage.NewRetention(store.Usage(), clk, cfg.Usage.RetentionDays, logger)
	runner.Register(scheduler.RetentionJob, retention.Run)
	if _, err := runner.EnsureEnqueued(ctx, scheduler.JobDefinition{
		Name:         scheduler.RetentionJob,
		Interval:     24 * time.Hour,
		InitialDelay: retentionDelay,
	}); err != nil {
		return fmt.Errorf("failed to register usage retention job: %w", err)
	}

	settingsService.OnChange(reportScheduler.Apply)
	applySchedule(ctx, settingsService, logger)

	runner.Start(ctx)

	// Control API
	apiServer := api.NewServer(api.Config{
		ListenAddr: fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort),
	}, api.Dependencies{
		Reporter: reportPipeline,
		Settings: settingsService,
		Outcomes: results,
		Schedule: reportScheduler,
		Activity: tracker,
		Catalog:  resolver,
	}, logger)

	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Initialize Metrics Server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	logger.Info().Msg("usagereporter startup complete")
	logger.Info().Msgf("API: http://%s:%d/api/v1", cfg.Server.BindAddress, cfg.Server.APIPort)
	logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	if interval := systemd.WatchdogInterval(); interval > 0 {
		go runWatchdog(ctx, interval, logger)
	}

	// Wait for signals (shutdown or reload)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// Signal handling loop
	for {
		sig := <-sigChan

		switch sig {
		case syscall.SIGHUP:
			logger.Info().Msg("SIGHUP received, reloading application inventory and schedule...")
			_ = systemd.NotifyReloading()
			if err := resolver.Reload(); err != nil {
				logger.Error().Err(err).Msg("Failed to reload application inventory")
			}
			applySchedule(ctx, settingsService, logger)
			_ = systemd.NotifyReady()
			// Continue running
			continue

		case os.Interrupt, syscall.SIGTERM:
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			// Break out of loop to shutdown
		}

		// Only reached on shutdown signals
		break
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}

	runner.Stop()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	tracker.Stop(stopCtx)
	stopCancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping inventory watcher")
		}
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("usagereporter stopped")

	return nil
}

// applySchedule pushes the stored settings through the change hooks so the
// daily job matches them.
func applySchedule(ctx context.Context, settingsService *settings.Service, logger zerolog.Logger) {
	current, err := settingsService.Notify(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to apply daily report schedule")
		return
	}
	logger.Info().
		Bool("send_enabled", current.SendEnabled).
		Bool("webhook_configured", current.WebhookConfigured()).
		Str("send_time", fmt.Sprintf("%02d:%02d", current.SendHour, current.SendMinute)).
		Msg("Daily report schedule applied")
}

// watchOutcomes mirrors the send outcome into metrics.
func watchOutcomes(ctx context.Context, results *sendresult.Store, logger zerolog.Logger) func() {
	if current, err := results.Current(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to read last send outcome")
	} else {
		recordOutcome(current)
	}

	updates, cancel := results.Subscribe()
	go func() {
		for outcome := range updates {
			recordOutcome(outcome)
		}
	}()
	return cancel
}

func recordOutcome(outcome storage.SendOutcome) {
	metrics.SetLastOutcome(string(outcome.Status))
	if outcome.Status == storage.StatusSuccess && outcome.LastSentAt != nil {
		metrics.LastSuccessTimestamp.Set(float64(outcome.LastSentAt.Unix()))
	}
}

func runWatchdog(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := systemd.NotifyWatchdog(); err != nil {
				logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
			}
		}
	}
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "bolt"
	}

	switch storageType {
	case "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be bolt or redis)", storageType)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
