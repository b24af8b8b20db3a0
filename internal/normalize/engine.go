package normalize

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"llm-price-tracker/internal/pricing"
	"llm-price-tracker/internal/sources"
)

// ErrNoValidRecords is fatal: persisting an empty schema would corrupt history.
var ErrNoValidRecords = errors.New("normalize: no valid records across all sources")

// ErrValidation marks a merged model that violates schema invariants.
var ErrValidation = errors.New("normalize: validation failed")

// Config tunes merge and identifier handling.
type Config struct {
	SourcePriority   []string `mapstructure:"source_priority"`
	FallbackProvider string   `mapstructure:"fallback_provider"`
}

// Dropped describes a record excluded from the schema.
type Dropped struct {
	Source  string
	Index   int
	ModelID string
	Reason  string
}

// Report summarises one normalization pass.
type Report struct {
	Accepted       map[string]int
	Dropped        []Dropped
	Merged         int
	UnknownSources []string
}

// Engine turns raw per-source documents into a unified schema.
type Engine struct {
	registry *sources.Registry
	priority map[string]int
	logger   zerolog.Logger
}

// New constructs an Engine.
func New(cfg Config, registry *sources.Registry, logger zerolog.Logger) *Engine {
	if registry == nil {
		registry = sources.DefaultRegistry(cfg.FallbackProvider)
	}
	priority := make(map[string]int, len(cfg.SourcePriority))
	for i, name := range cfg.SourcePriority {
		name = strings.TrimSpace(name)
		if _, seen := priority[name]; !seen {
			priority[name] = i
		}
	}
	return &Engine{
		registry: registry,
		priority: priority,
		logger:   logger.With().Str("component", "normalize").Logger(),
	}
}

// Normalize runs adapters over every record, merges duplicates and validates
// the result. Malformed or invalid records are dropped and reported.
func (e *Engine) Normalize(raw map[string][]sources.RawRecord, at time.Time) (pricing.Schema, Report, error) {
	report := Report{Accepted: make(map[string]int)}
	candidates := make(map[string][]pricing.Model)

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		adapter, ok := e.registry.Lookup(name)
		if !ok {
			report.UnknownSources = append(report.UnknownSources, name)
			e.logger.Warn().Str("source", name).Int("records", len(raw[name])).Msg("no adapter registered for source; skipping")
			continue
		}

		for i, record := range raw[name] {
			model, err := adapter.Adapt(record)
			if err != nil {
				e.drop(&report, Dropped{Source: name, Index: i, Reason: err.Error()})
				continue
			}
			if model == nil {
				continue
			}
			candidates[model.ModelID] = append(candidates[model.ModelID], *model)
			report.Accepted[name]++
		}
	}

	models := make(map[string]pricing.Model, len(candidates))
	for id, list := range candidates {
		if len(list) > 1 {
			report.Merged++
		}
		merged := e.merge(list)
		if err := Validate(merged); err != nil {
			e.drop(&report, Dropped{Source: strings.Join(merged.Sources, ","), Index: -1, ModelID: id, Reason: err.Error()})
			continue
		}
		models[id] = merged
	}

	sort.Slice(report.Dropped, func(i, j int) bool {
		a, b := report.Dropped[i], report.Dropped[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.ModelID < b.ModelID
	})

	if len(models) == 0 {
		return pricing.Schema{}, report, ErrNoValidRecords
	}

	e.logger.Info().
		Int("models", len(models)).
		Int("dropped", len(report.Dropped)).
		Int("merged", report.Merged).
		Msg("normalization complete")

	return pricing.NewSchema(at, models), report, nil
}

func (e *Engine) drop(report *Report, d Dropped) {
	report.Dropped = append(report.Dropped, d)
	e.logger.Warn().
		Str("source", d.Source).
		Int("index", d.Index).
		Str("model_id", d.ModelID).
		Str("reason", d.Reason).
		Msg("dropping record")
}

// rank orders candidates: more complete pricing first, then configured
// source priority, then source name.
func (e *Engine) rank(list []pricing.Model) []pricing.Model {
	ranked := append([]pricing.Model(nil), list...)
	sort.SliceStable(ranked, func(i, j int) bool {
		ci, cj := ranked[i].Pricing.Completeness(), ranked[j].Pricing.Completeness()
		if ci != cj {
			return ci > cj
		}
		pi, pj := e.sourceRank(ranked[i]), e.sourceRank(ranked[j])
		if pi != pj {
			return pi < pj
		}
		return sourceOf(ranked[i]) < sourceOf(ranked[j])
	})
	return ranked
}

func (e *Engine) sourceRank(m pricing.Model) int {
	if p, ok := e.priority[sourceOf(m)]; ok {
		return p
	}
	return len(e.priority)
}

func sourceOf(m pricing.Model) string {
	if len(m.Sources) == 0 {
		return ""
	}
	return m.Sources[0]
}

// merge takes the top-ranked candidate and fills each missing field from the
// next candidate that has it. Conflicting non-null values keep the winner's.
func (e *Engine) merge(list []pricing.Model) pricing.Model {
	ranked := e.rank(list)
	out := ranked[0]
	out.Sources = nil

	sourceSet := make(map[string]struct{})
	for _, m := range ranked {
		for _, s := range m.Sources {
			sourceSet[s] = struct{}{}
		}
	}
	for s := range sourceSet {
		out.Sources = append(out.Sources, s)
	}
	sort.Strings(out.Sources)

	for _, m := range ranked[1:] {
		for _, field := range pricing.PriceFields {
			if out.Pricing.Get(field) == nil && m.Pricing.Get(field) != nil {
				out.Pricing.Set(field, m.Pricing.Get(field))
			}
		}
		if out.ContextWindow == nil {
			out.ContextWindow = m.ContextWindow
		}
		if out.MaxOutputTokens == nil {
			out.MaxOutputTokens = m.MaxOutputTokens
		}
		if out.Modality == "" {
			out.Modality = m.Modality
		}
		if out.Pricing.Currency == "" {
			out.Pricing.Currency = m.Pricing.Currency
		}
	}
	if out.Pricing.Currency == "" {
		out.Pricing.Currency = pricing.DefaultCurrency
	}
	return out
}

// Validate checks the invariants of a unified model.
func Validate(m pricing.Model) error {
	if m.Provider == "" || m.Name == "" || m.ModelID != m.Provider+"/"+m.Name {
		return fmt.Errorf("%w: malformed model id %q", ErrValidation, m.ModelID)
	}
	if m.Pricing.InputPerMillion == nil {
		return fmt.Errorf("%w: %s missing %s", ErrValidation, m.ModelID, pricing.FieldInput)
	}
	if m.Pricing.OutputPerMillion == nil {
		return fmt.Errorf("%w: %s missing %s", ErrValidation, m.ModelID, pricing.FieldOutput)
	}
	for _, field := range pricing.PriceFields {
		if v := m.Pricing.Get(field); v != nil && *v < 0 {
			return fmt.Errorf("%w: %s has negative %s", ErrValidation, m.ModelID, field)
		}
	}
	return nil
}
