package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"llm-price-tracker/internal/alerting"
	"llm-price-tracker/internal/changes"
	"llm-price-tracker/internal/storage"
)

// Show prints the latest changelog, or the one of opts.Date.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var log changes.ChangeLog
	if opts.Date != "" {
		key, err := storage.ParseKey(opts.Date)
		if err != nil {
			return err
		}
		log, err = store.GetChangelog(ctx, key.ChangelogDate())
		if err != nil {
			return err
		}
	} else {
		log, err = store.LatestChangelog(ctx)
		if err != nil {
			return err
		}
	}

	return PrintChangeLog(os.Stdout, log, opts.Limit)
}

// Diff prints the changes between two archived snapshots without writing.
func (a *App) Diff(ctx context.Context, from, to string, limit int) error {
	fromKey, err := storage.ParseKey(from)
	if err != nil {
		return err
	}
	toKey, err := storage.ParseKey(to)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	log, err := a.newService(store, nil).Diff(ctx, fromKey, toKey)
	if err != nil {
		return err
	}
	return PrintChangeLog(os.Stdout, log, limit)
}

// PrintChangeLog renders a changelog as an aligned table. limit <= 0 prints
// every record.
func PrintChangeLog(w io.Writer, log changes.ChangeLog, limit int) error {
	previous := log.PreviousDate
	if previous == "" {
		previous = "-"
	}
	fmt.Fprintf(w, "Changelog %s (previous %s): +%d models, -%d models, %d increases, %d decreases\n",
		log.Date, previous,
		log.Summary.NewModels, log.Summary.RemovedModels,
		log.Summary.PriceIncreases, log.Summary.PriceDecreases)

	if log.Empty() {
		fmt.Fprintln(w, "no changes")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Model\tChange\tField\tOld\tNew\tChange%")

	records := log.Changes
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	for _, r := range records {
		oldValue, newValue := r.OldValue, r.NewValue
		if r.Pricing != nil {
			if r.ChangeType == changes.Added {
				newValue = r.Pricing.InputPerMillion
			} else {
				oldValue = r.Pricing.InputPerMillion
			}
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			sanitizeInline(r.ModelID),
			r.ChangeType,
			r.Field,
			alerting.FormatPrice(oldValue),
			alerting.FormatPrice(newValue),
			strings.Trim(alerting.FormatPercent(r.PercentChange), "()"),
		)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	if len(records) < len(log.Changes) {
		fmt.Fprintf(w, "... %d more\n", len(log.Changes)-len(records))
	}
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
