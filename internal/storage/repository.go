package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"llm-price-tracker/internal/changes"
	"llm-price-tracker/internal/pricing"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertSnapshotSQL = `INSERT INTO price_snapshots (
        date_key,
        taken_at,
        total_models,
        payload
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (date_key) DO NOTHING;`

	getSnapshotSQL = `SELECT payload FROM price_snapshots WHERE date_key = $1;`

	latestSnapshotBeforeSQL = `SELECT date_key, payload
    FROM price_snapshots
    WHERE date_key < $1
    ORDER BY date_key DESC
    LIMIT 1;`

	listSnapshotKeysSQL = `SELECT date_key FROM price_snapshots ORDER BY date_key;`

	insertChangelogSQL = `INSERT INTO changelogs (
        log_date,
        change_count,
        payload
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (log_date) DO NOTHING;`

	getChangelogSQL = `SELECT payload FROM changelogs WHERE log_date = $1;`

	upsertPointerSQL = `INSERT INTO latest_pointers (
        name,
        payload,
        updated_at
    ) VALUES (
        $1,$2,NOW()
    )
    ON CONFLICT (name) DO UPDATE
    SET payload    = EXCLUDED.payload,
        updated_at = EXCLUDED.updated_at;`

	getPointerSQL = `SELECT payload FROM latest_pointers WHERE name = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

const (
	pointerChangelog = "changelog"
	pointerCurrent   = "current"
)

// Store persists snapshots and changelogs in PostgreSQL as JSONB documents.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the session lock is dropped with the connection if this fails
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// PutSnapshot inserts a snapshot once; a second insert for the date is rejected.
func (s *Store) PutSnapshot(ctx context.Context, key DateKey, schema pricing.Schema) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tag, execErr := pool.Exec(ctx, insertSnapshotSQL, string(key), schema.Timestamp, len(schema.Models), payload)
	if execErr != nil {
		return fmt.Errorf("insert snapshot: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSnapshotExists, key)
	}
	return nil
}

// GetSnapshot loads one snapshot.
func (s *Store) GetSnapshot(ctx context.Context, key DateKey) (pricing.Schema, error) {
	pool, err := s.getPool()
	if err != nil {
		return pricing.Schema{}, err
	}
	var schema pricing.Schema
	if err := scanJSON(pool.QueryRow(ctx, getSnapshotSQL, string(key)), &schema); err != nil {
		return pricing.Schema{}, fmt.Errorf("get snapshot %s: %w", key, err)
	}
	return schema, nil
}

// LatestSnapshotBefore implements SnapshotStore.
func (s *Store) LatestSnapshotBefore(ctx context.Context, before DateKey) (*pricing.Schema, DateKey, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, "", err
	}

	var (
		key     string
		payload []byte
	)
	if scanErr := pool.QueryRow(ctx, latestSnapshotBeforeSQL, string(before)).Scan(&key, &payload); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("latest snapshot: %w", scanErr)
	}

	var schema pricing.Schema
	if err := json.Unmarshal(payload, &schema); err != nil {
		return nil, "", fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return &schema, DateKey(key), nil
}

// ListSnapshotKeys implements SnapshotStore.
func (s *Store) ListSnapshotKeys(ctx context.Context) ([]DateKey, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotKeysSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshot keys: %w", queryErr)
	}
	defer rows.Close()

	keys := make([]DateKey, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, DateKey(key))
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return keys, nil
}

// PutChangelog inserts a dated changelog once.
func (s *Store) PutChangelog(ctx context.Context, log changes.ChangeLog) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshal changelog: %w", err)
	}

	tag, execErr := pool.Exec(ctx, insertChangelogSQL, log.Date, len(log.Changes), payload)
	if execErr != nil {
		return fmt.Errorf("insert changelog: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrChangelogExists, log.Date)
	}
	return nil
}

// GetChangelog loads the changelog of a YYYY-MM-DD date.
func (s *Store) GetChangelog(ctx context.Context, date string) (changes.ChangeLog, error) {
	pool, err := s.getPool()
	if err != nil {
		return changes.ChangeLog{}, err
	}
	var log changes.ChangeLog
	if err := scanJSON(pool.QueryRow(ctx, getChangelogSQL, date), &log); err != nil {
		return changes.ChangeLog{}, fmt.Errorf("get changelog %s: %w", date, err)
	}
	return log, nil
}

// SetLatestChangelog overwrites the latest changelog pointer.
func (s *Store) SetLatestChangelog(ctx context.Context, log changes.ChangeLog) error {
	return s.setPointer(ctx, pointerChangelog, log)
}

// LatestChangelog reads the latest changelog pointer.
func (s *Store) LatestChangelog(ctx context.Context) (changes.ChangeLog, error) {
	var log changes.ChangeLog
	if err := s.getPointer(ctx, pointerChangelog, &log); err != nil {
		return changes.ChangeLog{}, err
	}
	return log, nil
}

// PutCurrent overwrites the current schema.
func (s *Store) PutCurrent(ctx context.Context, schema pricing.Schema) error {
	return s.setPointer(ctx, pointerCurrent, schema)
}

// Current reads the current schema.
func (s *Store) Current(ctx context.Context) (pricing.Schema, error) {
	var schema pricing.Schema
	if err := s.getPointer(ctx, pointerCurrent, &schema); err != nil {
		return pricing.Schema{}, err
	}
	return schema, nil
}

func (s *Store) setPointer(ctx context.Context, name string, v any) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if _, execErr := pool.Exec(ctx, upsertPointerSQL, name, payload); execErr != nil {
		return fmt.Errorf("upsert %s pointer: %w", name, execErr)
	}
	return nil
}

func (s *Store) getPointer(ctx context.Context, name string, out any) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if err := scanJSON(pool.QueryRow(ctx, getPointerSQL, name), out); err != nil {
		return fmt.Errorf("get %s pointer: %w", name, err)
	}
	return nil
}

func scanJSON(row pgx.Row, out any) error {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(payload, out)
}

var (
	_ Repository     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
