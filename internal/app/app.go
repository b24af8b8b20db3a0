package app

import (
	"context"
	"errors"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"llm-price-tracker/internal/alerting"
	"llm-price-tracker/internal/config"
	"llm-price-tracker/internal/fetcher"
	"llm-price-tracker/internal/metrics"
	"llm-price-tracker/internal/scheduler"
	"llm-price-tracker/internal/service"
	"llm-price-tracker/internal/sources"
	"llm-price-tracker/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetchers() []fetcher.SourceFetcher {
	cfg := a.Config.Sources
	rawDir := a.rawDir()

	var out []fetcher.SourceFetcher
	for _, name := range a.Config.EnabledSources() {
		if cfg.Offline {
			out = append(out, fetcher.NewFileSource(name, fetcher.DocumentPath(rawDir, name)))
			continue
		}
		switch name {
		case sources.SourceOpenRouter:
			out = append(out, fetcher.NewOpenRouter(fetcher.Options{
				URL:       cfg.OpenRouter.URL,
				Timeout:   cfg.RequestTimeout,
				UserAgent: cfg.UserAgent,
			}, a.Logger))
		case sources.SourceLiteLLM:
			out = append(out, fetcher.NewLiteLLM(fetcher.Options{
				URL:       cfg.LiteLLM.URL,
				Timeout:   cfg.RequestTimeout,
				UserAgent: cfg.UserAgent,
			}, a.Logger))
		}
	}
	return out
}

func (a *App) rawDir() string {
	return filepath.Join(a.Config.Storage.DataDir, "current")
}

func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting
	var multi alerting.Multi
	if cfg.Telegram.Enabled {
		multi = append(multi, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.Timeout, a.Logger))
	}
	if cfg.Discord.Enabled {
		multi = append(multi, alerting.NewDiscordNotifier(cfg.Discord.WebhookURL, cfg.WebsiteURL, cfg.Timeout, a.Logger))
	}
	switch len(multi) {
	case 0:
		return nil
	case 1:
		return multi[0]
	default:
		return multi
	}
}

func (a *App) newMetrics() (*metrics.Recorder, metrics.Pusher) {
	recorder := metrics.NewRecorder()
	if !a.Config.Metrics.Enabled {
		return recorder, nil
	}
	pusher := metrics.NewPushgatewayPusher(a.Config.Metrics.PushgatewayURL, a.Config.Metrics.Job, map[string]string{
		"environment": a.Config.App.Environment,
	}, a.Logger)
	return recorder, pusher
}

func (a *App) openStore(ctx context.Context) (storage.Repository, func(), error) {
	store, err := storage.Open(ctx, a.Config.Storage, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) newService(store storage.Repository, sched *scheduler.Scheduler) *service.Service {
	recorder, pusher := a.newMetrics()
	return service.New(a.Config, service.Deps{
		Scheduler: sched,
		Fetchers:  a.newFetchers(),
		Registry:  sources.DefaultRegistry(a.Config.Normalize.FallbackProvider),
		Store:     store,
		Notifier:  a.newNotifier(),
		Recorder:  recorder,
		Pusher:    pusher,
	}, a.Logger)
}

// Run executes the long-running tracking service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sched, err := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: true,
	}, a.Logger)
	if err != nil {
		return err
	}

	svc := a.newService(store, sched)

	a.Logger.Info().Strs("sources", a.Config.EnabledSources()).Msg("starting price tracker")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("price tracker stopped")
	return nil
}

// Once performs a single pipeline run stamped with at.
func (a *App) Once(ctx context.Context, at time.Time) (service.RunResult, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return service.RunResult{}, err
	}
	defer closeStore()

	return a.newService(store, nil).RunOnce(ctx, at)
}

// ExportOptions hold parameters for exporting a model's price history.
type ExportOptions struct {
	ModelID   string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Date  string
	Limit int
}

// BackfillOptions configure the changelog backfill job.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}
