package changes

import (
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"llm-price-tracker/internal/pricing"
)

// Config tunes change detection.
type Config struct {
	// ThresholdPct is the minimum absolute percent move reported for a
	// numeric-to-numeric price change. Zero reports any exact change.
	ThresholdPct float64 `mapstructure:"threshold_pct"`
}

// Detector diffs two schemas.
type Detector struct {
	threshold decimal.Decimal
	logger    zerolog.Logger
}

var hundred = decimal.NewFromInt(100)

// New constructs a Detector.
func New(cfg Config, logger zerolog.Logger) *Detector {
	threshold := decimal.Zero
	if cfg.ThresholdPct > 0 {
		threshold = decimal.NewFromFloat(cfg.ThresholdPct)
	}
	return &Detector{
		threshold: threshold,
		logger:    logger.With().Str("component", "changes").Logger(),
	}
}

// Detect compares current against previous. A nil previous is a first run:
// every current model is reported as added.
func (d *Detector) Detect(current pricing.Schema, previous *pricing.Schema) ChangeLog {
	log := ChangeLog{
		Date:        current.Timestamp.UTC().Format(DateLayout),
		GeneratedAt: current.Timestamp.UTC(),
		Changes:     []Record{},
	}
	prevModels := map[string]pricing.Model{}
	if previous != nil {
		prevModels = previous.Models
		log.PreviousDate = previous.Timestamp.UTC().Format(DateLayout)
	}

	for id, cur := range current.Models {
		prev, ok := prevModels[id]
		if !ok {
			p := cur.Pricing
			log.Changes = append(log.Changes, Record{ModelID: id, ChangeType: Added, Field: FieldModel, Pricing: &p})
			continue
		}
		log.Changes = append(log.Changes, d.compare(id, prev.Pricing, cur.Pricing)...)
	}
	for id, prev := range prevModels {
		if _, ok := current.Models[id]; ok {
			continue
		}
		p := prev.Pricing
		log.Changes = append(log.Changes, Record{ModelID: id, ChangeType: Removed, Field: FieldModel, Pricing: &p})
	}

	sortRecords(log.Changes)
	log.Summary = summarize(log.Changes)

	d.logger.Debug().
		Int("changes", len(log.Changes)).
		Bool("first_run", previous == nil).
		Msg("change detection complete")
	return log
}

func (d *Detector) compare(id string, old, cur pricing.Info) []Record {
	var out []Record
	for _, field := range pricing.PriceFields {
		o, n := old.Get(field), cur.Get(field)
		switch {
		case o == nil && n == nil:
			continue
		case o == nil:
			out = append(out, Record{ModelID: id, ChangeType: Increased, Field: field, NewValue: n})
		case n == nil:
			out = append(out, Record{ModelID: id, ChangeType: Decreased, Field: field, OldValue: o})
		default:
			if rec, ok := d.numeric(id, field, *o, *n); ok {
				out = append(out, rec)
			}
		}
	}
	return out
}

// numeric classifies a value-to-value move. A zero old price has no defined
// percentage; it is classified by the sign of the delta and always reported.
func (d *Detector) numeric(id, field string, old, cur float64) (Record, bool) {
	od, nd := decimal.NewFromFloat(old), decimal.NewFromFloat(cur)
	delta := nd.Sub(od)
	if delta.IsZero() {
		return Record{}, false
	}

	rec := Record{ModelID: id, Field: field, OldValue: pricing.Float(old), NewValue: pricing.Float(cur)}
	if delta.Sign() > 0 {
		rec.ChangeType = Increased
	} else {
		rec.ChangeType = Decreased
	}
	if od.IsZero() {
		return rec, true
	}

	pct := delta.Div(od).Mul(hundred)
	if !pct.Abs().GreaterThan(d.threshold) {
		return Record{}, false
	}
	rec.PercentChange = pricing.Float(pct.Round(4).InexactFloat64())
	return rec, true
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.ModelID != b.ModelID {
			return a.ModelID < b.ModelID
		}
		if pa, pb := a.ChangeType.precedence(), b.ChangeType.precedence(); pa != pb {
			return pa < pb
		}
		return a.Field < b.Field
	})
}
