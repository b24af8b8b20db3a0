package pricing

import (
	"sort"
	"time"
)

// DefaultCurrency is applied when a source does not state one.
const DefaultCurrency = "USD"

// Info holds per-million-token prices for one model.
type Info struct {
	InputPerMillion         *float64 `json:"input_per_million"`
	OutputPerMillion        *float64 `json:"output_per_million"`
	CacheReadPerMillion     *float64 `json:"cache_read_per_million"`
	CacheCreationPerMillion *float64 `json:"cache_creation_per_million"`
	Currency                string   `json:"currency"`
}

// Field names used in changelogs.
const (
	FieldInput         = "input_per_million"
	FieldOutput        = "output_per_million"
	FieldCacheRead     = "cache_read_per_million"
	FieldCacheCreation = "cache_creation_per_million"
)

// PriceFields lists the comparable price fields in a stable order.
var PriceFields = []string{FieldCacheCreation, FieldCacheRead, FieldInput, FieldOutput}

// Get returns the value of a named price field.
func (p Info) Get(field string) *float64 {
	switch field {
	case FieldInput:
		return p.InputPerMillion
	case FieldOutput:
		return p.OutputPerMillion
	case FieldCacheRead:
		return p.CacheReadPerMillion
	case FieldCacheCreation:
		return p.CacheCreationPerMillion
	}
	return nil
}

// Set assigns a named price field. Unknown names are ignored.
func (p *Info) Set(field string, v *float64) {
	switch field {
	case FieldInput:
		p.InputPerMillion = v
	case FieldOutput:
		p.OutputPerMillion = v
	case FieldCacheRead:
		p.CacheReadPerMillion = v
	case FieldCacheCreation:
		p.CacheCreationPerMillion = v
	}
}

// Completeness counts the non-null price fields.
func (p Info) Completeness() int {
	n := 0
	for _, f := range PriceFields {
		if p.Get(f) != nil {
			n++
		}
	}
	return n
}

// Model is one entry of the unified schema.
type Model struct {
	ModelID         string   `json:"model_id"`
	Provider        string   `json:"provider"`
	Name            string   `json:"name"`
	Pricing         Info     `json:"pricing"`
	ContextWindow   *int     `json:"context_window,omitempty"`
	MaxOutputTokens *int     `json:"max_output_tokens,omitempty"`
	Modality        string   `json:"modality,omitempty"`
	Sources         []string `json:"sources,omitempty"`
}

// Metadata summarises a schema.
type Metadata struct {
	TotalModels int      `json:"total_models"`
	Sources     []string `json:"sources"`
	Providers   []string `json:"providers"`
}

// Schema is a point-in-time snapshot of every model's pricing.
type Schema struct {
	Timestamp time.Time        `json:"timestamp"`
	Models    map[string]Model `json:"models"`
	Metadata  Metadata         `json:"metadata"`
}

// NewSchema builds a schema and derives its metadata.
func NewSchema(at time.Time, models map[string]Model) Schema {
	if models == nil {
		models = map[string]Model{}
	}
	sourceSet := make(map[string]struct{})
	providerSet := make(map[string]struct{})
	for _, m := range models {
		providerSet[m.Provider] = struct{}{}
		for _, s := range m.Sources {
			sourceSet[s] = struct{}{}
		}
	}
	return Schema{
		Timestamp: at.UTC(),
		Models:    models,
		Metadata: Metadata{
			TotalModels: len(models),
			Sources:     sortedKeys(sourceSet),
			Providers:   sortedKeys(providerSet),
		},
	}
}

// ModelIDs returns the schema's model ids sorted ascending.
func (s Schema) ModelIDs() []string {
	ids := make([]string, 0, len(s.Models))
	for id := range s.Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
