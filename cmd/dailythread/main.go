package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/dailythread/internal/chart"
	"github.com/rewired-gh/dailythread/internal/config"
	"github.com/rewired-gh/dailythread/internal/dataset"
	"github.com/rewired-gh/dailythread/internal/logger"
	"github.com/rewired-gh/dailythread/internal/metrics"
	"github.com/rewired-gh/dailythread/internal/scheduler"
	"github.com/rewired-gh/dailythread/internal/storage"
	"github.com/rewired-gh/dailythread/internal/telegram"
	"github.com/rewired-gh/dailythread/internal/thread"
	"github.com/rewired-gh/dailythread/internal/updater"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file (empty for defaults and environment only)")
	once       = flag.Bool("once", false, "Run a single update cycle and exit")
	dryRun     = flag.Bool("dry-run", false, "Log posts instead of publishing them")
	force      = flag.Bool("force", false, "Publish even if the dataset has not advanced")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

// run wires the service and returns the process exit code. Failures return
// instead of exiting so deferred cleanup always happens.
func run() int {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	cfg.DryRun = cfg.DryRun || *dryRun
	cfg.Force = cfg.Force || *force
	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		return 1
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync() //nolint:errcheck
	logger.Info("Configuration loaded from %s", *configPath)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Failed to load timezone: %v", err)
		return 1
	}

	store, err := storage.New(cfg.Storage.MaxRuns, cfg.Storage.DBPath)
	if err != nil {
		logger.Error("Failed to initialize storage: %v", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	datasetClient := dataset.NewClient(
		cfg.Dataset.URL,
		cfg.Dataset.Timeout,
		dataset.ClientConfig{
			MaxRetries:     cfg.Dataset.MaxRetries,
			RetryDelayBase: cfg.Dataset.RetryDelayBase,
		},
	)

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Error("Failed to initialize Telegram client: %v", err)
			return 1
		}
		telegramClient.SetRunSource(store)
		logger.Info("Telegram client initialized successfully")
	}

	var publisher thread.Publisher = thread.DryRunPublisher{}
	if cfg.DryRun {
		logger.Info("Dry run: posts are logged, not published, and the marker is not advanced")
	} else {
		publisher = telegramClient
	}

	var renderer chart.Renderer = chart.Disabled{}
	if cfg.Charts.Enabled {
		renderer = chart.NewPNGRenderer(cfg.Charts.MovingAverageDays)
	}

	upd := updater.New(updater.Deps{
		Fetcher:   datasetClient,
		Renderer:  renderer,
		Publisher: publisher,
		Store:     store,
	}, updater.Config{
		MarkerPath: cfg.Storage.MarkerPath,
		ChartsDir:  cfg.Charts.Dir,
		Location:   loc,
		Digest:     cfg.DigestOptions(),
		Force:      cfg.Force,
		DryRun:     cfg.DryRun,
	})

	sched, err := scheduler.New(nil, cfg.Dataset.PollInterval, upd.RunCycle, notifyHooks(cfg, telegramClient))
	if err != nil {
		logger.Error("Failed to create scheduler: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		if err := sched.RunOnce(ctx); err != nil {
			logger.Error("Update cycle failed: %v", err)
			return 1
		}
		return 0
	}

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	logger.Info("Starting daily thread service (interval: %v, marker: %s, dry run: %t)",
		cfg.Dataset.PollInterval, cfg.Storage.MarkerPath, cfg.DryRun)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.ListenAddr)
		g.Go(func() error {
			logger.Info("Serving metrics on %s", cfg.Metrics.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error: %v", err)
		return 1
	}
	logger.Info("Service stopped")
	return 0
}

// notifyHooks reports the first failure of a streak and the recovery after it.
func notifyHooks(cfg *config.Config, tg *telegram.Client) scheduler.Hooks {
	notify := tg != nil && cfg.Telegram.NotifyErrors
	return scheduler.Hooks{
		OnFailure: func(ctx context.Context, err error, consecutive int) {
			metrics.ConsecutiveFailures.Set(float64(consecutive))
			if notify && consecutive == 1 {
				if sendErr := tg.SendError(ctx, err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		},
		OnRecovery: func(ctx context.Context, failures int) {
			metrics.ConsecutiveFailures.Set(0)
			if notify {
				if sendErr := tg.SendRecovery(ctx, failures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
		},
	}
}
