// engagement captures EEG epochs from a headset stream, scores cognitive
// engagement per epoch, persists the results and exports the session.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"eeg-backend/internal/aggregator"
	"eeg-backend/internal/database"
	"eeg-backend/internal/engagement"
	"eeg-backend/internal/epoch"
	"eeg-backend/internal/export"
	"eeg-backend/internal/models"
	"eeg-backend/internal/mqtt"
	"eeg-backend/internal/services"
	"eeg-backend/pkg/config"
)

var version = "dev"

type runFlags struct {
	envFile   string
	repeats   int
	window    time.Duration
	threshold float64
	source    string
	store     string
	exportDir string
}

// logOutput receives the JSON service log
var logOutput io.Writer = os.Stdout

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "engagement",
		Short: "Score cognitive engagement from a live EEG stream",
		Long: `engagement runs a fixed number of acquisition windows against the
headset stream, computes theta/alpha/beta band powers per channel, derives
the engagement index beta/(alpha+theta) and stores one engagement row and
one raw row per window. At the end of the run the scores, raw snapshots,
spectra and an EDF recording are written to the export directory.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.envFile, "env-file", "", "load environment from this file instead of .env")
	f.IntVar(&flags.repeats, "repeats", 0, "number of epoch cycles (RUN_REPEATS)")
	f.DurationVar(&flags.window, "window", 0, "acquisition window per epoch (EPOCH_WINDOW)")
	f.Float64Var(&flags.threshold, "threshold", 0, "focus threshold on coef_avg (ENGAGEMENT_THRESHOLD)")
	f.StringVar(&flags.source, "source", "", "sample source: mqtt or synthetic (EEG_SOURCE)")
	f.StringVar(&flags.store, "store", "", "store backend: clickhouse, postgres or memory (STORE_BACKEND)")
	f.StringVar(&flags.exportDir, "export-dir", "", "directory for end-of-run exports (EXPORT_DIR)")

	return cmd
}

// loadConfig builds the configuration from the environment and applies any
// flags set on the command line
func loadConfig(cmd *cobra.Command, flags runFlags) (*config.Config, error) {
	var cfg *config.Config
	if flags.envFile != "" {
		cfg = config.Load(flags.envFile)
	} else {
		cfg = config.Load()
	}

	changed := cmd.Flags().Changed
	if changed("repeats") {
		cfg.RunRepeats = flags.repeats
	}
	if changed("window") {
		cfg.EpochWindow = flags.window
	}
	if changed("threshold") {
		cfg.EngagementThreshold = flags.threshold
	}
	if changed("source") {
		cfg.Source = flags.source
	}
	if changed("store") {
		cfg.StoreBackend = flags.store
	}
	if changed("export-dir") {
		cfg.ExportDir = flags.exportDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger returns the JSON logger used for all service output
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, cmd *cobra.Command, flags runFlags) error {
	// config warnings are logged before the configured level is known
	slog.SetDefault(newLogger(logOutput, slog.LevelInfo))

	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	slog.SetDefault(newLogger(logOutput, cfg.SlogLevel()))
	slog.Info("Starting EEG engagement service", "version", version)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// === Engagement scorer ===
	base := config.DefaultEngagementSettings(cfg.EngagementThreshold)
	settings := base
	if cfg.EngagementProfile != "" {
		settings, err = config.LoadProfile(cfg.EngagementProfile, base)
		if err != nil {
			return err
		}
	}
	scorer := engagement.NewScorer(settings)

	if cfg.EngagementProfile != "" {
		go func() {
			if err := config.WatchProfile(ctx, cfg.EngagementProfile, base, scorer.SetSettings); err != nil {
				slog.Error("Profile watcher stopped", "err", err)
			}
		}()
	}

	// === Store ===
	store, err := database.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}
	defer store.Close()

	// === Sample source -> channel buffer ===
	frames := make(chan *models.SampleFrame, 64)
	var engagementChan chan *models.EngagementMessage

	scale := cfg.SampleScale
	if cfg.Source == "synthetic" {
		// generated values are already in millivolts
		scale = 1
	}
	buffer := aggregator.NewChannelBuffer(cfg.BufferSamples(), scale)
	go buffer.Start(ctx, frames)

	switch cfg.Source {
	case "synthetic":
		synth := aggregator.NewSyntheticSource(aggregator.DefaultSyntheticConfig(cfg.DeviceID, cfg.SampleRate))
		go synth.Start(ctx, frames)

	case "mqtt":
		mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			// stale samples must not be captured as a new epoch
			OnConnectionLost: func(error) { buffer.Reset() },
		})
		if err != nil {
			return err
		}
		defer mqttClient.Close()

		subscriber := mqtt.NewSubscriber(mqttClient.GetNativeClient(), mqtt.SubscriberConfig{
			SamplesTopic: cfg.MQTTTopicSamples,
			DeviceID:     cfg.DeviceID,
		}, frames)
		if err := subscriber.SubscribeAll(); err != nil {
			return err
		}

		engagementChan = make(chan *models.EngagementMessage, 16)
		publisher := mqtt.NewPublisher(mqttClient.GetNativeClient(), mqtt.PublisherConfig{
			EngagementTopic: cfg.MQTTTopicEngagement,
		}, engagementChan)
		go publisher.Start(ctx)
	}

	// === Session ===
	controller := epoch.NewController(buffer, epoch.Config{
		Window:       cfg.EpochWindow,
		SampleRate:   cfg.SampleRate,
		PollInterval: cfg.EpochPollInterval,
	})

	exporter := &export.Exporter{
		Dir:      cfg.ExportDir,
		EDF:      cfg.ExportEDF,
		DeviceID: cfg.DeviceID,
	}

	session := services.NewSessionService(controller, scorer, store, exporter, services.SessionConfig{
		DeviceID:         cfg.DeviceID,
		Repeats:          cfg.RunRepeats,
		PersistQueueSize: cfg.PersistQueueSize,
		PersistTimeout:   10 * time.Second,
		Quality:          aggregator.DefaultQualityConfig(),
	})
	session.EngagementChan = engagementChan

	slog.Info("Session configured",
		"source", cfg.Source,
		"store", cfg.StoreBackend,
		"window", cfg.EpochWindow,
		"sample_rate", cfg.SampleRate,
		"repeats", cfg.RunRepeats,
		"threshold", settings.Threshold)

	summary, err := session.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		slog.Info("Run interrupted by signal", "cycles", summary.Cycles)
	}

	if summary.ExportErr != nil {
		return fmt.Errorf("export failed: %w", summary.ExportErr)
	}

	frameCount, lastFrame := buffer.Stats()
	slog.Info("Shutdown complete",
		"frames", frameCount,
		"last_frame", lastFrame,
		"persisted", summary.Persisted,
		"skipped", summary.Skipped,
		"rejected", summary.Rejected,
		"failed", summary.Failed)
	return nil
}
