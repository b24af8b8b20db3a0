package sources

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"llm-price-tracker/internal/pricing"
)

// RawRecord is one source-native record as parsed from JSON.
type RawRecord map[string]any

var (
	// ErrMissingField indicates a record lacks a required field.
	ErrMissingField = errors.New("sources: missing required field")
	// ErrMalformedRecord indicates a record could not be decoded.
	ErrMalformedRecord = errors.New("sources: malformed record")
)

// Adapter maps raw records of one source to unified models.
// A nil model with a nil error means the record is intentionally skipped.
type Adapter interface {
	Name() string
	Adapt(record RawRecord) (*pricing.Model, error)
}

// Registry looks adapters up by source name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// DefaultRegistry registers every built-in source.
func DefaultRegistry(fallbackProvider string) *Registry {
	return NewRegistry(
		NewOpenRouter(fallbackProvider),
		NewLiteLLM(fallbackProvider),
	)
}

// Register adds or replaces the adapter for its source name.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Lookup returns the adapter for a source.
func (r *Registry) Lookup(source string) (Adapter, bool) {
	a, ok := r.adapters[source]
	return a, ok
}

// Names lists registered sources in ascending order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func decode(record RawRecord, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook:       emptyStringToNilHook,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(record)); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}

// emptyStringToNilHook keeps blank numeric strings from decoding as zero.
func emptyStringToNilHook(from reflect.Type, _ reflect.Type, data any) (any, error) {
	if from.Kind() == reflect.String && strings.TrimSpace(reflect.ValueOf(data).String()) == "" {
		return nil, nil
	}
	return data, nil
}

// convertPrices turns per-token prices into a per-million Info.
func convertPrices(input, output, cacheRead, cacheCreation *float64) (pricing.Info, error) {
	info := pricing.Info{Currency: pricing.DefaultCurrency}
	fields := []struct {
		name  string
		value *float64
	}{
		{pricing.FieldInput, input},
		{pricing.FieldOutput, output},
		{pricing.FieldCacheRead, cacheRead},
		{pricing.FieldCacheCreation, cacheCreation},
	}
	for _, f := range fields {
		v, err := pricing.ToPerMillion(f.value)
		if err != nil {
			return pricing.Info{}, fmt.Errorf("%s: %w", f.name, err)
		}
		info.Set(f.name, v)
	}
	if info.InputPerMillion == nil && info.OutputPerMillion == nil {
		return pricing.Info{}, fmt.Errorf("%w: input or output price", ErrMissingField)
	}
	return info, nil
}

// qualify returns a "provider/name" id, prefixing bare ids with provider.
func qualify(id, provider, fallback string) (modelID, prov, name string) {
	id = strings.TrimSpace(id)
	if !strings.Contains(strings.TrimPrefix(id, "/"), "/") {
		if provider == "" {
			provider = fallback
		}
		if provider == "" {
			provider = pricing.DefaultFallbackProvider
		}
		id = provider + "/" + strings.TrimPrefix(id, "/")
	}
	prov, name = pricing.SplitModelID(id, fallback)
	return prov + "/" + name, prov, name
}
