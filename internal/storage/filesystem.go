package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"llm-price-tracker/internal/changes"
	"llm-price-tracker/internal/pricing"
)

const (
	currentDir   = "current"
	historyDir   = "history"
	changelogDir = "changelog"
	pricesFile   = "prices.json"
	latestFile   = "latest.json"
)

// FileStore persists artefacts as JSON files under a data directory:
//
//	current/prices.json
//	history/YYYY/MM/DD.json
//	changelog/YYYY-MM-DD.json
//	changelog/latest.json
type FileStore struct {
	root string
}

// NewFileStore prepares the directory layout under root.
func NewFileStore(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: data directory is required")
	}
	for _, dir := range []string{currentDir, historyDir, changelogDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", dir, err)
		}
	}
	return &FileStore{root: root}, nil
}

// Root returns the data directory.
func (s *FileStore) Root() string { return s.root }

// Close is a no-op for the filesystem store.
func (s *FileStore) Close() {}

func (s *FileStore) snapshotPath(key DateKey) string {
	return filepath.Join(s.root, historyDir, filepath.FromSlash(string(key))+".json")
}

func (s *FileStore) changelogPath(date string) string {
	return filepath.Join(s.root, changelogDir, date+".json")
}

// PutSnapshot writes the snapshot once; an existing file is never replaced.
func (s *FileStore) PutSnapshot(_ context.Context, key DateKey, schema pricing.Schema) error {
	if err := writeOnce(s.snapshotPath(key), schema); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrSnapshotExists, key)
		}
		return fmt.Errorf("write snapshot %s: %w", key, err)
	}
	return nil
}

// GetSnapshot reads one snapshot.
func (s *FileStore) GetSnapshot(_ context.Context, key DateKey) (pricing.Schema, error) {
	var schema pricing.Schema
	if err := readJSON(s.snapshotPath(key), &schema); err != nil {
		return pricing.Schema{}, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	return schema, nil
}

// LatestSnapshotBefore implements SnapshotStore.
func (s *FileStore) LatestSnapshotBefore(ctx context.Context, before DateKey) (*pricing.Schema, DateKey, error) {
	keys, err := s.ListSnapshotKeys(ctx)
	if err != nil {
		return nil, "", err
	}
	for i := len(keys) - 1; i >= 0; i-- {
		if keys[i] < before {
			schema, err := s.GetSnapshot(ctx, keys[i])
			if err != nil {
				return nil, "", err
			}
			return &schema, keys[i], nil
		}
	}
	return nil, "", nil
}

// ListSnapshotKeys returns every archived date in ascending order. Files that
// do not follow the YYYY/MM/DD.json layout are ignored.
func (s *FileStore) ListSnapshotKeys(_ context.Context) ([]DateKey, error) {
	base := filepath.Join(s.root, historyDir)
	var keys []DateKey
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		raw := strings.TrimSuffix(filepath.ToSlash(rel), ".json")
		key, err := ParseKey(raw)
		if err != nil || string(key) != raw {
			return nil
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// PutChangelog writes the dated changelog once.
func (s *FileStore) PutChangelog(_ context.Context, log changes.ChangeLog) error {
	if err := writeOnce(s.changelogPath(log.Date), log); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrChangelogExists, log.Date)
		}
		return fmt.Errorf("write changelog %s: %w", log.Date, err)
	}
	return nil
}

// GetChangelog reads the changelog of a YYYY-MM-DD date.
func (s *FileStore) GetChangelog(_ context.Context, date string) (changes.ChangeLog, error) {
	var log changes.ChangeLog
	if err := readJSON(s.changelogPath(date), &log); err != nil {
		return changes.ChangeLog{}, fmt.Errorf("read changelog %s: %w", date, err)
	}
	return log, nil
}

// SetLatestChangelog overwrites the latest pointer.
func (s *FileStore) SetLatestChangelog(_ context.Context, log changes.ChangeLog) error {
	if err := writeReplace(filepath.Join(s.root, changelogDir, latestFile), log); err != nil {
		return fmt.Errorf("write latest changelog: %w", err)
	}
	return nil
}

// LatestChangelog reads the latest pointer.
func (s *FileStore) LatestChangelog(_ context.Context) (changes.ChangeLog, error) {
	var log changes.ChangeLog
	if err := readJSON(filepath.Join(s.root, changelogDir, latestFile), &log); err != nil {
		return changes.ChangeLog{}, fmt.Errorf("read latest changelog: %w", err)
	}
	return log, nil
}

// PutCurrent overwrites current/prices.json.
func (s *FileStore) PutCurrent(_ context.Context, schema pricing.Schema) error {
	if err := writeReplace(filepath.Join(s.root, currentDir, pricesFile), schema); err != nil {
		return fmt.Errorf("write current prices: %w", err)
	}
	return nil
}

// Current reads current/prices.json.
func (s *FileStore) Current(_ context.Context) (pricing.Schema, error) {
	var schema pricing.Schema
	if err := readJSON(filepath.Join(s.root, currentDir, pricesFile), &schema); err != nil {
		return pricing.Schema{}, fmt.Errorf("read current prices: %w", err)
	}
	return schema, nil
}

func marshal(v any) ([]byte, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(body, '\n'), nil
}

func writeOnce(path string, v any) error {
	body, err := marshal(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func writeReplace(path string, v any) error {
	body, err := marshal(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readJSON(path string, out any) error {
	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(body, out)
}

var _ Repository = (*FileStore)(nil)
