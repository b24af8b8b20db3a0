package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llm-price-tracker/internal/changes"
	"llm-price-tracker/internal/config"
	"llm-price-tracker/internal/fetcher"
	"llm-price-tracker/internal/metrics"
	"llm-price-tracker/internal/normalize"
	"llm-price-tracker/internal/sources"
	"llm-price-tracker/internal/storage"
)

type stubFetcher struct {
	source string
	data   string
	err    error
}

func (s *stubFetcher) Source() string { return s.source }

func (s *stubFetcher) Fetch(context.Context) (fetcher.Document, error) {
	if s.err != nil {
		return fetcher.Document{}, s.err
	}
	return fetcher.Document{Source: s.source, FetchedAt: time.Now().UTC(), Data: json.RawMessage(s.data)}, nil
}

type stubNotifier struct {
	logs []changes.ChangeLog
}

func (n *stubNotifier) Notify(_ context.Context, log changes.ChangeLog) error {
	n.logs = append(n.logs, log)
	return nil
}

func openRouterPayload(gpt4oPrompt string) string {
	return `[
		{"id": "openai/gpt-4o", "name": "GPT-4o", "context_length": 128000,
		 "pricing": {"prompt": "` + gpt4oPrompt + `", "completion": "0.00001"}},
		{"id": "anthropic/claude-3-haiku", "name": "Claude 3 Haiku",
		 "pricing": {"prompt": "0.00000025", "completion": "0.00000125"}}
	]`
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Storage:   config.StorageConfig{Backend: config.BackendMemory, DataDir: t.TempDir()},
		Normalize: normalize.Config{SourcePriority: []string{sources.SourceOpenRouter, sources.SourceLiteLLM}},
		Alerting:  config.AlertingConfig{Enabled: true},
	}
}

func TestRunOnceFirstRunThenPriceChange(t *testing.T) {
	cfg := testConfig(t)
	store := storage.NewMemoryStore()
	notifier := &stubNotifier{}
	or := &stubFetcher{source: sources.SourceOpenRouter, data: openRouterPayload("0.0000025")}

	svc := New(cfg, Deps{Fetchers: []fetcher.SourceFetcher{or}, Store: store, Notifier: notifier, Recorder: metrics.NewRecorder()}, zerolog.Nop())
	ctx := context.Background()
	day1 := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

	first, err := svc.RunOnce(ctx, day1)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.PreviousKey != "" {
		t.Fatalf("first run should have no previous snapshot, got %q", first.PreviousKey)
	}
	if first.ChangeLog.Summary.NewModels != 2 || len(first.ChangeLog.Changes) != 2 {
		t.Fatalf("first run should report every model added: %+v", first.ChangeLog.Summary)
	}
	if got := *first.Schema.Models["openai/gpt-4o"].Pricing.InputPerMillion; got != 2.5 {
		t.Fatalf("input per million = %v, want 2.5", got)
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.DataDir, "current", "openrouter.json")); err != nil {
		t.Fatalf("raw document should be saved: %v", err)
	}

	or.data = openRouterPayload("0.000005")
	day2 := day1.Add(24 * time.Hour)
	second, err := svc.RunOnce(ctx, day2)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.PreviousKey != storage.KeyFor(day1) {
		t.Fatalf("previous key = %q", second.PreviousKey)
	}
	if len(second.ChangeLog.Changes) != 1 {
		t.Fatalf("expected one change, got %+v", second.ChangeLog.Changes)
	}
	rec := second.ChangeLog.Changes[0]
	if rec.ChangeType != changes.Increased || rec.PercentChange == nil || *rec.PercentChange != 100 {
		t.Fatalf("unexpected record %+v", rec)
	}

	latest, err := store.LatestChangelog(ctx)
	if err != nil {
		t.Fatalf("latest changelog: %v", err)
	}
	if latest.Date != "2026-10-15" || latest.PreviousDate != "2026-10-14" {
		t.Fatalf("unexpected latest pointer %s <- %s", latest.Date, latest.PreviousDate)
	}
	if len(notifier.logs) != 2 {
		t.Fatalf("expected two notifications, got %d", len(notifier.logs))
	}
}

func TestRunOnceSameDayReplay(t *testing.T) {
	cfg := testConfig(t)
	store := storage.NewMemoryStore()
	or := &stubFetcher{source: sources.SourceOpenRouter, data: openRouterPayload("0.0000025")}
	svc := New(cfg, Deps{Fetchers: []fetcher.SourceFetcher{or}, Store: store}, zerolog.Nop())

	ctx := context.Background()
	at := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	first, err := svc.RunOnce(ctx, at)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	again, err := svc.RunOnce(ctx, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !again.SnapshotExisted {
		t.Fatal("replay should keep the existing snapshot")
	}
	if again.PreviousKey != "" || len(again.ChangeLog.Changes) != len(first.ChangeLog.Changes) {
		t.Fatalf("replay should diff against the same baseline: %+v", again.ChangeLog.Summary)
	}
}

func TestRunOnceNoChangesSkipsNotify(t *testing.T) {
	cfg := testConfig(t)
	store := storage.NewMemoryStore()
	notifier := &stubNotifier{}
	or := &stubFetcher{source: sources.SourceOpenRouter, data: openRouterPayload("0.0000025")}
	svc := New(cfg, Deps{Fetchers: []fetcher.SourceFetcher{or}, Store: store, Notifier: notifier}, zerolog.Nop())

	ctx := context.Background()
	day1 := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	if _, err := svc.RunOnce(ctx, day1); err != nil {
		t.Fatalf("first run: %v", err)
	}
	res, err := svc.RunOnce(ctx, day1.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !res.ChangeLog.Empty() || res.Notified {
		t.Fatalf("unchanged prices should produce an empty changelog without alert: %+v", res)
	}
	if len(notifier.logs) != 1 {
		t.Fatalf("only the first run should notify, got %d", len(notifier.logs))
	}
	if _, err := store.GetChangelog(ctx, "2026-10-15"); err != nil {
		t.Fatalf("empty changelog should still be written: %v", err)
	}
}

func TestRunOnceFailsWithoutValidRecords(t *testing.T) {
	cfg := testConfig(t)
	store := storage.NewMemoryStore()
	bad := &stubFetcher{source: sources.SourceOpenRouter, data: `[{"id": "x/y", "pricing": {}}]`}
	svc := New(cfg, Deps{Fetchers: []fetcher.SourceFetcher{bad}, Store: store, Recorder: metrics.NewRecorder()}, zerolog.Nop())

	_, err := svc.RunOnce(context.Background(), time.Now())
	if !errors.Is(err, normalize.ErrNoValidRecords) {
		t.Fatalf("expected ErrNoValidRecords, got %v", err)
	}
	if _, err := store.Current(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("nothing should be written, got %v", err)
	}
}

func TestRunOnceAllSourcesFail(t *testing.T) {
	cfg := testConfig(t)
	down := &stubFetcher{source: sources.SourceOpenRouter, err: errors.New("connection refused")}
	svc := New(cfg, Deps{Fetchers: []fetcher.SourceFetcher{down}, Store: storage.NewMemoryStore()}, zerolog.Nop())

	if _, err := svc.RunOnce(context.Background(), time.Now()); !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("expected ErrNoDocuments, got %v", err)
	}
}

func TestDiffBetweenSnapshots(t *testing.T) {
	cfg := testConfig(t)
	store := storage.NewMemoryStore()
	or := &stubFetcher{source: sources.SourceOpenRouter, data: openRouterPayload("0.0000025")}
	svc := New(cfg, Deps{Fetchers: []fetcher.SourceFetcher{or}, Store: store}, zerolog.Nop())

	ctx := context.Background()
	day1 := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
	if _, err := svc.RunOnce(ctx, day1); err != nil {
		t.Fatalf("run 1: %v", err)
	}
	or.data = openRouterPayload("0.000002")
	if _, err := svc.RunOnce(ctx, day2); err != nil {
		t.Fatalf("run 2: %v", err)
	}

	log, err := svc.Diff(ctx, storage.KeyFor(day1), storage.KeyFor(day2))
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if log.Summary.PriceDecreases != 1 || log.PreviousDate != "2026-10-01" {
		t.Fatalf("unexpected diff %+v", log)
	}

	if _, err := svc.Diff(ctx, "2020/01/01", storage.KeyFor(day2)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing snapshot should be ErrNotFound, got %v", err)
	}
}
