package app

import (
	"context"
	"errors"
	"fmt"

	"llm-price-tracker/internal/storage"
)

// BackfillResult counts what a changelog backfill did.
type BackfillResult struct {
	Written int
	Skipped int
	Failed  int
}

// Backfill 为已归档快照之间缺失的日期补写变更日志。
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) (BackfillResult, error) {
	if !opts.From.IsZero() && !opts.To.IsZero() && opts.To.Before(opts.From) {
		return BackfillResult{}, errors.New("回填范围为空，请检查 --from/--to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return BackfillResult{}, err
	}
	defer closeStore()

	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入存储")
	}
	return a.backfill(ctx, store, opts)
}

func (a *App) backfill(ctx context.Context, store storage.Repository, opts BackfillOptions) (BackfillResult, error) {
	var res BackfillResult

	keys, err := store.ListSnapshotKeys(ctx)
	if err != nil {
		return res, err
	}
	svc := a.newService(store, nil)

	var fromKey, toKey storage.DateKey
	if !opts.From.IsZero() {
		fromKey = storage.KeyFor(opts.From)
	}
	if !opts.To.IsZero() {
		toKey = storage.KeyFor(opts.To)
	}

	for i := 1; i < len(keys); i++ {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		prev, cur := keys[i-1], keys[i]
		if (fromKey != "" && cur < fromKey) || (toKey != "" && cur > toKey) {
			continue
		}

		if _, err := store.GetChangelog(ctx, cur.ChangelogDate()); err == nil {
			res.Skipped++
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return res, err
		}

		log, err := svc.Diff(ctx, prev, cur)
		if err != nil {
			res.Failed++
			a.Logger.Error().Err(err).Str("date", cur.ChangelogDate()).Msg("回填失败")
			continue
		}
		if opts.DryRun {
			a.Logger.Info().Str("date", log.Date).Int("changes", len(log.Changes)).Msg("dry-run: changelog not written")
			res.Written++
			continue
		}
		if err := store.PutChangelog(ctx, log); err != nil && !errors.Is(err, storage.ErrChangelogExists) {
			res.Failed++
			a.Logger.Error().Err(err).Str("date", log.Date).Msg("回填失败")
			continue
		}
		res.Written++
	}

	a.Logger.Info().Int("written", res.Written).Int("skipped", res.Skipped).Int("failed", res.Failed).Msg("回填完成")
	if res.Failed > 0 {
		return res, fmt.Errorf("%d changelogs failed to backfill, check the logs", res.Failed)
	}
	return res, nil
}
