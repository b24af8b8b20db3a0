package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"llm-price-tracker/internal/alerting"
	"llm-price-tracker/internal/changes"
	"llm-price-tracker/internal/config"
	"llm-price-tracker/internal/fetcher"
	"llm-price-tracker/internal/metrics"
	"llm-price-tracker/internal/normalize"
	"llm-price-tracker/internal/pricing"
	"llm-price-tracker/internal/scheduler"
	"llm-price-tracker/internal/sources"
	"llm-price-tracker/internal/storage"
)

// ErrNoDocuments is returned when every source failed to deliver a document.
var ErrNoDocuments = errors.New("no source documents available")

// RunResult describes one completed pipeline run.
type RunResult struct {
	Skipped         bool
	Schema          pricing.Schema
	Report          normalize.Report
	ChangeLog       changes.ChangeLog
	PreviousKey     storage.DateKey
	SnapshotExisted bool
	Notified        bool
}

// Service orchestrates fetching, normalization, persistence, and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	fetchers  []fetcher.SourceFetcher
	engine    *normalize.Engine
	detector  *changes.Detector
	store     storage.Repository
	notifier  alerting.Notifier
	recorder  *metrics.Recorder
	pusher    metrics.Pusher
	logger    zerolog.Logger

	rawDir   string
	alertsOn bool
	locker   storage.AdvisoryLocker
	lockKey  int64
}

// Deps bundles the collaborators of a Service. Nil members are optional
// except Store.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Fetchers  []fetcher.SourceFetcher
	Registry  *sources.Registry
	Store     storage.Repository
	Notifier  alerting.Notifier
	Recorder  *metrics.Recorder
	Pusher    metrics.Pusher
}

// New constructs the pricing service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := deps.Store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	rawDir := ""
	if !cfg.Sources.Offline {
		rawDir = filepath.Join(cfg.Storage.DataDir, "current")
	}

	return &Service{
		scheduler: deps.Scheduler,
		fetchers:  deps.Fetchers,
		engine:    normalize.New(cfg.Normalize, deps.Registry, logger),
		detector:  changes.New(cfg.Changes, logger),
		store:     deps.Store,
		notifier:  deps.Notifier,
		recorder:  deps.Recorder,
		pusher:    deps.Pusher,
		logger:    logger.With().Str("component", "service").Logger(),
		rawDir:    rawDir,
		alertsOn:  cfg.Alerting.Enabled,
		locker:    locker,
		lockKey:   cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the scheduled loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, at time.Time) error {
		_, err := s.RunOnce(ctx, at)
		return err
	})
}

// RunOnce 执行一次完整的抓取、归一化与变更检测。
func (s *Service) RunOnce(ctx context.Context, at time.Time) (RunResult, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return RunResult{}, err
	}
	if !proceed {
		s.logger.Info().Time("at", at).Msg("skip run because advisory lock held elsewhere")
		return RunResult{Skipped: true}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	result, err := s.execute(ctx, at.UTC())
	if err != nil {
		if s.recorder != nil {
			s.recorder.ObserveFailure()
			s.pushMetrics(ctx)
		}
		return result, err
	}
	return result, nil
}

func (s *Service) execute(ctx context.Context, at time.Time) (RunResult, error) {
	var result RunResult

	raw, err := s.collect(ctx)
	if err != nil {
		return result, err
	}

	schema, report, err := s.engine.Normalize(raw, at)
	if err != nil {
		return result, fmt.Errorf("normalize: %w", err)
	}
	result.Schema, result.Report = schema, report

	if err := s.store.PutCurrent(ctx, schema); err != nil {
		return result, fmt.Errorf("write current schema: %w", err)
	}

	key := storage.KeyFor(at)
	previous, prevKey, err := s.store.LatestSnapshotBefore(ctx, key)
	if err != nil {
		return result, fmt.Errorf("load previous snapshot: %w", err)
	}
	result.PreviousKey = prevKey

	if err := s.store.PutSnapshot(ctx, key, schema); err != nil {
		if !errors.Is(err, storage.ErrSnapshotExists) {
			return result, fmt.Errorf("archive snapshot: %w", err)
		}
		result.SnapshotExisted = true
		s.logger.Warn().Str("key", key.String()).Msg("snapshot already archived, keeping the existing one")
	}

	log := s.detector.Detect(schema, previous)
	result.ChangeLog = log

	if err := s.store.PutChangelog(ctx, log); err != nil {
		if !errors.Is(err, storage.ErrChangelogExists) {
			return result, fmt.Errorf("write changelog: %w", err)
		}
		s.logger.Warn().Str("date", log.Date).Msg("dated changelog already exists, keeping the existing one")
	}
	if err := s.store.SetLatestChangelog(ctx, log); err != nil {
		return result, fmt.Errorf("write latest changelog: %w", err)
	}

	s.logger.Info().
		Str("date", log.Date).
		Str("previous", prevKey.String()).
		Int("models", len(schema.Models)).
		Int("dropped", len(report.Dropped)).
		Int("increases", log.Summary.PriceIncreases).
		Int("decreases", log.Summary.PriceDecreases).
		Int("added", log.Summary.NewModels).
		Int("removed", log.Summary.RemovedModels).
		Msg("run complete")

	if s.alertsOn && s.notifier != nil && !log.Empty() {
		if err := s.notifier.Notify(ctx, log); err != nil {
			s.logger.Error().Err(err).Str("date", log.Date).Msg("failed to dispatch alert")
		} else {
			result.Notified = true
		}
	}

	if s.recorder != nil {
		s.recorder.ObserveRun(metrics.RunStats{
			Models:   len(schema.Models),
			Dropped:  len(report.Dropped),
			Accepted: report.Accepted,
			Summary:  log.Summary,
			Finished: time.Now().UTC(),
		})
		s.pushMetrics(ctx)
	}

	return result, nil
}

// collect fetches every source. A failing source is logged and skipped.
func (s *Service) collect(ctx context.Context) (map[string][]sources.RawRecord, error) {
	raw := make(map[string][]sources.RawRecord, len(s.fetchers))
	for _, f := range s.fetchers {
		doc, err := f.Fetch(ctx)
		if err != nil {
			s.logger.Error().Err(err).Str("source", f.Source()).Msg("fetch failed")
			continue
		}
		records, err := doc.Records()
		if err != nil {
			s.logger.Error().Err(err).Str("source", f.Source()).Msg("decode document failed")
			continue
		}
		if s.rawDir != "" {
			path := fetcher.DocumentPath(s.rawDir, f.Source())
			if err := fetcher.SaveDocument(path, doc); err != nil {
				s.logger.Warn().Err(err).Str("path", path).Msg("failed to save raw document")
			}
		}
		s.logger.Debug().Str("source", f.Source()).Int("records", len(records)).Msg("source collected")
		raw[f.Source()] = records
	}
	if len(raw) == 0 {
		return nil, ErrNoDocuments
	}
	return raw, nil
}

// Diff compares two archived snapshots without writing anything.
func (s *Service) Diff(ctx context.Context, from, to storage.DateKey) (changes.ChangeLog, error) {
	previous, err := s.store.GetSnapshot(ctx, from)
	if err != nil {
		return changes.ChangeLog{}, fmt.Errorf("load snapshot %s: %w", from, err)
	}
	current, err := s.store.GetSnapshot(ctx, to)
	if err != nil {
		return changes.ChangeLog{}, fmt.Errorf("load snapshot %s: %w", to, err)
	}
	return s.detector.Detect(current, &previous), nil
}

func (s *Service) pushMetrics(ctx context.Context) {
	if s.pusher == nil {
		return
	}
	if err := s.pusher.Push(ctx, s.recorder.Registry()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to push metrics")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
