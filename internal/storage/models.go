package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"llm-price-tracker/internal/changes"
	"llm-price-tracker/internal/pricing"
)

var (
	// ErrSnapshotExists indicates a write-once snapshot already exists for the date.
	ErrSnapshotExists = errors.New("storage: snapshot already exists")
	// ErrChangelogExists indicates a dated changelog was already written.
	ErrChangelogExists = errors.New("storage: changelog already exists")
	// ErrNotFound indicates the requested artefact does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidKey indicates a malformed date key.
	ErrInvalidKey = errors.New("storage: invalid date key")
)

const keyLayout = "2006/01/02"

// DateKey identifies a history snapshot as YYYY/MM/DD. Keys order
// lexicographically by date.
type DateKey string

// KeyFor returns the UTC date key of t.
func KeyFor(t time.Time) DateKey {
	return DateKey(t.UTC().Format(keyLayout))
}

// ParseKey accepts YYYY/MM/DD or YYYY-MM-DD.
func ParseKey(s string) (DateKey, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), "-", "/")
	t, err := time.Parse(keyLayout, normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return KeyFor(t), nil
}

// Time returns midnight UTC of the key's date.
func (k DateKey) Time() time.Time {
	t, _ := time.Parse(keyLayout, string(k))
	return t
}

// ChangelogDate returns the key in the changelog's YYYY-MM-DD form.
func (k DateKey) ChangelogDate() string {
	return strings.ReplaceAll(string(k), "/", "-")
}

func (k DateKey) String() string { return string(k) }

// SnapshotStore is the append-only history archive.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, key DateKey, schema pricing.Schema) error
	GetSnapshot(ctx context.Context, key DateKey) (pricing.Schema, error)
	// LatestSnapshotBefore returns the newest snapshot strictly older than
	// before, or a nil schema when none exists.
	LatestSnapshotBefore(ctx context.Context, before DateKey) (*pricing.Schema, DateKey, error)
	ListSnapshotKeys(ctx context.Context) ([]DateKey, error)
}

// ChangelogStore keeps dated changelogs and the mutable latest pointer.
type ChangelogStore interface {
	PutChangelog(ctx context.Context, log changes.ChangeLog) error
	GetChangelog(ctx context.Context, date string) (changes.ChangeLog, error)
	SetLatestChangelog(ctx context.Context, log changes.ChangeLog) error
	LatestChangelog(ctx context.Context) (changes.ChangeLog, error)
}

// CurrentStore holds the most recent unified schema.
type CurrentStore interface {
	PutCurrent(ctx context.Context, schema pricing.Schema) error
	Current(ctx context.Context) (pricing.Schema, error)
}

// Repository combines every persistence concern of a run.
type Repository interface {
	SnapshotStore
	ChangelogStore
	CurrentStore
	Close()
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}
