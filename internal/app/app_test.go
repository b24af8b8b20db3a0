package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llm-price-tracker/internal/alerting"
	"llm-price-tracker/internal/changes"
	"llm-price-tracker/internal/config"
	"llm-price-tracker/internal/pricing"
	"llm-price-tracker/internal/storage"
)

func testApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		Storage: config.StorageConfig{Backend: config.BackendMemory, DataDir: t.TempDir()},
		Export:  config.ExportConfig{MaxDataPoints: 365},
	}
	return NewApp(cfg, zerolog.Nop())
}

func seedSnapshot(t *testing.T, store storage.Repository, day time.Time, input float64) {
	t.Helper()
	schema := pricing.NewSchema(day, map[string]pricing.Model{
		"openai/gpt-4o": {
			ModelID:  "openai/gpt-4o",
			Provider: "openai",
			Name:     "gpt-4o",
			Pricing: pricing.Info{
				InputPerMillion:  pricing.Float(input),
				OutputPerMillion: pricing.Float(10),
				Currency:         pricing.DefaultCurrency,
			},
			Sources: []string{"openrouter"},
		},
	})
	if err := store.PutSnapshot(context.Background(), storage.KeyFor(day), schema); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
}

func TestBackfillWritesMissingChangelogs(t *testing.T) {
	a := testApp(t)
	store := storage.NewMemoryStore()
	ctx := context.Background()

	day := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	seedSnapshot(t, store, day, 5)
	seedSnapshot(t, store, day.AddDate(0, 0, 1), 4)
	seedSnapshot(t, store, day.AddDate(0, 0, 2), 4)

	dry, err := a.backfill(ctx, store, BackfillOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry-run backfill: %v", err)
	}
	if dry.Written != 2 {
		t.Fatalf("dry-run should plan two changelogs, got %+v", dry)
	}
	if _, err := store.GetChangelog(ctx, "2026-10-02"); err == nil {
		t.Fatal("dry-run must not write")
	}

	res, err := a.backfill(ctx, store, BackfillOptions{})
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if res.Written != 2 || res.Skipped != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	log, err := store.GetChangelog(ctx, "2026-10-02")
	if err != nil {
		t.Fatalf("changelog not written: %v", err)
	}
	if log.Summary.PriceDecreases != 1 || log.PreviousDate != "2026-10-01" {
		t.Fatalf("unexpected changelog %+v", log)
	}

	again, err := a.backfill(ctx, store, BackfillOptions{})
	if err != nil {
		t.Fatalf("second backfill: %v", err)
	}
	if again.Written != 0 || again.Skipped != 2 {
		t.Fatalf("existing changelogs should be skipped, got %+v", again)
	}
}

func TestModelHistoryAndCSV(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedSnapshot(t, store, day.AddDate(0, 0, i), float64(5-i))
	}

	from := day.AddDate(0, 0, 1)
	to := day.AddDate(0, 0, 3)
	points, err := ModelHistory(ctx, store, "openai/gpt-4o", &from, &to)
	if err != nil {
		t.Fatalf("ModelHistory: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected inclusive window of 3 points, got %d", len(points))
	}
	if *points[0].Pricing.InputPerMillion != 4 {
		t.Fatalf("points should be in date order, first input = %v", *points[0].Pricing.InputPerMillion)
	}

	missing, err := ModelHistory(ctx, store, "acme/none", nil, nil)
	if err != nil || len(missing) != 0 {
		t.Fatalf("unknown model should yield no points: %v %d", err, len(missing))
	}

	path := filepath.Join(t.TempDir(), "out", "history.csv")
	if err := writePointsCSV(path, points); err != nil {
		t.Fatalf("writePointsCSV: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(rows))
	}
	// cache columns stay empty when the price is unknown
	if rows[1][0] != "2026-09-02" || rows[1][1] != "" || rows[1][3] != "4" {
		t.Fatalf("unexpected row %v", rows[1])
	}
}

func TestDownsamplePoints(t *testing.T) {
	points := make([]PricePoint, 10)
	for i := range points {
		points[i].Date = time.Unix(int64(i), 0)
	}
	got := downsamplePoints(points, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 points, got %d", len(got))
	}
	if !got[0].Date.Equal(points[0].Date) || !got[3].Date.Equal(points[9].Date) {
		t.Fatal("downsampling should keep the endpoints")
	}
	if len(downsamplePoints(points, 0)) != 10 {
		t.Fatal("max <= 0 keeps every point")
	}
}

func TestPrintChangeLog(t *testing.T) {
	log := SimulatedChangeLog(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), "openai/gpt-4o", 5, 2.5)
	var buf bytes.Buffer
	if err := PrintChangeLog(&buf, log, 0); err != nil {
		t.Fatalf("PrintChangeLog: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Changelog 2026-10-15 (previous 2026-10-14)", "openai/gpt-4o", "price_decreased", "$5.00", "$2.50", "-50.0%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	empty := changes.ChangeLog{Date: "2026-10-15"}
	if err := PrintChangeLog(&buf, empty, 0); err != nil {
		t.Fatalf("PrintChangeLog: %v", err)
	}
	if !strings.Contains(buf.String(), "no changes") {
		t.Fatalf("empty changelog output: %s", buf.String())
	}
}

func TestSimulatedChangeLog(t *testing.T) {
	log := SimulatedChangeLog(time.Now(), "anthropic/claude-3-opus", 15, 18)
	if log.Summary.PriceIncreases != 2 {
		t.Fatalf("input and output should both increase: %+v", log.Summary)
	}
	for _, r := range log.Changes {
		if r.PercentChange == nil || *r.PercentChange != 20 {
			t.Fatalf("unexpected percent %+v", r)
		}
	}
}

func TestNewNotifierSelection(t *testing.T) {
	a := testApp(t)
	if a.newNotifier() != nil {
		t.Fatal("no channels configured should yield nil")
	}

	a.Config.Alerting.Telegram = config.TelegramConfig{Enabled: true, BotToken: "t", ChatID: "c"}
	if _, ok := a.newNotifier().(*alerting.TelegramNotifier); !ok {
		t.Fatal("single channel should be returned directly")
	}

	a.Config.Alerting.Discord = config.DiscordConfig{Enabled: true, WebhookURL: "http://localhost/hook"}
	if m, ok := a.newNotifier().(alerting.Multi); !ok || len(m) != 2 {
		t.Fatal("two channels should fan out")
	}
}
