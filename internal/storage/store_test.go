package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"llm-price-tracker/internal/changes"
	"llm-price-tracker/internal/pricing"
)

func testSchema(at time.Time, input float64) pricing.Schema {
	return pricing.NewSchema(at, map[string]pricing.Model{
		"openai/gpt-4o": {
			ModelID:  "openai/gpt-4o",
			Provider: "openai",
			Name:     "gpt-4o",
			Pricing:  pricing.Info{InputPerMillion: pricing.Float(input), OutputPerMillion: pricing.Float(10), Currency: "USD"},
		},
	})
}

func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	d1 := time.Date(2025, 1, 30, 6, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 2, 1, 6, 0, 0, 0, time.UTC)

	prev, _, err := repo.LatestSnapshotBefore(ctx, KeyFor(d2))
	if err != nil || prev != nil {
		t.Fatalf("empty store should have no history, got %v (%v)", prev, err)
	}

	if err := repo.PutSnapshot(ctx, KeyFor(d1), testSchema(d1, 2.5)); err != nil {
		t.Fatalf("put snapshot: %v", err)
	}
	if err := repo.PutSnapshot(ctx, KeyFor(d2), testSchema(d2, 3)); err != nil {
		t.Fatalf("put snapshot: %v", err)
	}
	if err := repo.PutSnapshot(ctx, KeyFor(d2), testSchema(d2, 99)); !errors.Is(err, ErrSnapshotExists) {
		t.Fatalf("second write must be rejected, got %v", err)
	}

	got, err := repo.GetSnapshot(ctx, KeyFor(d2))
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if *got.Models["openai/gpt-4o"].Pricing.InputPerMillion != 3 {
		t.Fatal("snapshot was overwritten")
	}

	prev, key, err := repo.LatestSnapshotBefore(ctx, KeyFor(d2))
	if err != nil || prev == nil || key != "2025/01/30" {
		t.Fatalf("expected 2025/01/30 snapshot, got %v %s (%v)", prev, key, err)
	}
	prev, key, err = repo.LatestSnapshotBefore(ctx, KeyFor(d2.AddDate(0, 0, 1)))
	if err != nil || prev == nil || key != "2025/02/01" {
		t.Fatalf("expected 2025/02/01 snapshot, got %s (%v)", key, err)
	}

	keys, err := repo.ListSnapshotKeys(ctx)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if !reflect.DeepEqual(keys, []DateKey{"2025/01/30", "2025/02/01"}) {
		t.Fatalf("unexpected keys %v", keys)
	}

	if _, err := repo.GetSnapshot(ctx, "1999/01/01"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing snapshot should be ErrNotFound, got %v", err)
	}

	log := changes.ChangeLog{Date: "2025-02-01", GeneratedAt: d2, Changes: []changes.Record{}}
	if err := repo.PutChangelog(ctx, log); err != nil {
		t.Fatalf("put changelog: %v", err)
	}
	if err := repo.PutChangelog(ctx, log); !errors.Is(err, ErrChangelogExists) {
		t.Fatalf("dated changelog must be write-once, got %v", err)
	}
	if _, err := repo.LatestChangelog(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("latest should be missing before first set, got %v", err)
	}
	if err := repo.SetLatestChangelog(ctx, log); err != nil {
		t.Fatalf("set latest: %v", err)
	}
	log.Date = "2025-02-02"
	if err := repo.SetLatestChangelog(ctx, log); err != nil {
		t.Fatalf("latest pointer must be overwritable: %v", err)
	}
	latest, err := repo.LatestChangelog(ctx)
	if err != nil || latest.Date != "2025-02-02" {
		t.Fatalf("unexpected latest %+v (%v)", latest, err)
	}
	if dated, err := repo.GetChangelog(ctx, "2025-02-01"); err != nil || dated.Date != "2025-02-01" {
		t.Fatalf("dated changelog lost: %+v (%v)", dated, err)
	}

	if err := repo.PutCurrent(ctx, testSchema(d2, 3)); err != nil {
		t.Fatalf("put current: %v", err)
	}
	if err := repo.PutCurrent(ctx, testSchema(d2, 4)); err != nil {
		t.Fatalf("current must be overwritable: %v", err)
	}
	cur, err := repo.Current(ctx)
	if err != nil || *cur.Models["openai/gpt-4o"].Pricing.InputPerMillion != 4 {
		t.Fatalf("unexpected current %+v (%v)", cur, err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseRepository(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	exerciseRepository(t, store)

	for _, rel := range []string{
		"history/2025/01/30.json",
		"history/2025/02/01.json",
		"changelog/2025-02-01.json",
		"changelog/latest.json",
		"current/prices.json",
	} {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			t.Fatalf("expected %s on disk: %v", rel, err)
		}
	}
}

func TestFileStoreIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "history", "notes.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	keys, err := store.ListSnapshotKeys(context.Background())
	if err != nil || len(keys) != 0 {
		t.Fatalf("foreign file should be ignored, got %v (%v)", keys, err)
	}
}

func TestParseKey(t *testing.T) {
	for _, in := range []string{"2025/03/07", "2025-03-07", " 2025-03-07 "} {
		key, err := ParseKey(in)
		if err != nil || key != "2025/03/07" {
			t.Fatalf("%q: got %s (%v)", in, key, err)
		}
	}
	if _, err := ParseKey("2025/13/01"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("invalid month should fail, got %v", err)
	}
	key := DateKey("2025/03/07")
	if key.ChangelogDate() != "2025-03-07" || !key.Time().Equal(time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected conversions for %s", key)
	}
}
