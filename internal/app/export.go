package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"llm-price-tracker/internal/changes"
	"llm-price-tracker/internal/pricing"
	"llm-price-tracker/internal/storage"
)

// PricePoint is one model's pricing as archived on one date.
type PricePoint struct {
	Date    time.Time
	Pricing pricing.Info
}

// Export renders one model's price history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.ModelID == "" {
		return errors.New("--model is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	points, err := ModelHistory(ctx, store, opts.ModelID, opts.From, opts.To)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Info().Str("model_id", opts.ModelID).Msg("no snapshots contain this model")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, opts.ModelID, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// ModelHistory walks archived snapshots in date order and collects the
// pricing of modelID. Bounds are inclusive; nil means open.
func ModelHistory(ctx context.Context, store storage.SnapshotStore, modelID string, from, to *time.Time) ([]PricePoint, error) {
	keys, err := store.ListSnapshotKeys(ctx)
	if err != nil {
		return nil, err
	}

	var points []PricePoint
	for _, key := range keys {
		day := key.Time()
		if from != nil && day.Before(storage.KeyFor(*from).Time()) {
			continue
		}
		if to != nil && day.After(storage.KeyFor(*to).Time()) {
			continue
		}
		snapshot, err := store.GetSnapshot(ctx, key)
		if err != nil {
			return nil, err
		}
		model, ok := snapshot.Models[modelID]
		if !ok {
			continue
		}
		points = append(points, PricePoint{Date: day, Pricing: model.Pricing})
	}
	return points, nil
}

func downsamplePoints(points []PricePoint, max int) []PricePoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]PricePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path string, points []PricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := append([]string{"date"}, pricing.PriceFields...)
	header = append(header, "currency")
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{p.Date.Format(changes.DateLayout)}
		for _, field := range pricing.PriceFields {
			record = append(record, formatOptional(p.Pricing.Get(field)))
		}
		record = append(record, p.Pricing.Currency)
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writePointsPNG(path, modelID string, points []PricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	var series []chart.Series
	for _, field := range []string{pricing.FieldInput, pricing.FieldOutput, pricing.FieldCacheRead} {
		var x []time.Time
		var y []float64
		for _, p := range points {
			if v := p.Pricing.Get(field); v != nil {
				x = append(x, p.Date)
				y = append(y, *v)
			}
		}
		if len(x) < 2 {
			continue
		}
		series = append(series, chart.TimeSeries{Name: field, XValues: x, YValues: y})
	}
	if len(series) == 0 {
		return fmt.Errorf("not enough data points to chart %s", modelID)
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Title:  modelID,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "USD per 1M tokens",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
