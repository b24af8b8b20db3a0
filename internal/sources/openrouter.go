package sources

import (
	"fmt"
	"strings"

	"llm-price-tracker/internal/pricing"
)

// SourceOpenRouter names the OpenRouter models API.
const SourceOpenRouter = "openrouter"

type openRouterRecord struct {
	ID            string `mapstructure:"id"`
	Name          string `mapstructure:"name"`
	ContextLength *int   `mapstructure:"context_length"`
	Architecture  struct {
		Modality string `mapstructure:"modality"`
	} `mapstructure:"architecture"`
	TopProvider struct {
		MaxCompletionTokens *int `mapstructure:"max_completion_tokens"`
	} `mapstructure:"top_provider"`
	Pricing struct {
		Prompt          *float64 `mapstructure:"prompt"`
		Completion      *float64 `mapstructure:"completion"`
		InputCacheRead  *float64 `mapstructure:"input_cache_read"`
		InputCacheWrite *float64 `mapstructure:"input_cache_write"`
	} `mapstructure:"pricing"`
}

// OpenRouter adapts entries of https://openrouter.ai/api/v1/models.
// Prices are published as per-token decimal strings.
type OpenRouter struct {
	fallback string
}

// NewOpenRouter constructs the OpenRouter adapter.
func NewOpenRouter(fallbackProvider string) *OpenRouter {
	return &OpenRouter{fallback: fallbackProvider}
}

// Name implements Adapter.
func (o *OpenRouter) Name() string { return SourceOpenRouter }

// Adapt implements Adapter.
func (o *OpenRouter) Adapt(record RawRecord) (*pricing.Model, error) {
	var rec openRouterRecord
	if err := decode(record, &rec); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rec.ID) == "" {
		return nil, fmt.Errorf("%w: id", ErrMissingField)
	}

	info, err := convertPrices(rec.Pricing.Prompt, rec.Pricing.Completion, rec.Pricing.InputCacheRead, rec.Pricing.InputCacheWrite)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rec.ID, err)
	}

	modelID, provider, name := qualify(rec.ID, "", o.fallback)
	return &pricing.Model{
		ModelID:         modelID,
		Provider:        provider,
		Name:            name,
		Pricing:         info,
		ContextWindow:   positive(rec.ContextLength),
		MaxOutputTokens: positive(rec.TopProvider.MaxCompletionTokens),
		Modality:        rec.Architecture.Modality,
		Sources:         []string{SourceOpenRouter},
	}, nil
}

func positive(v *int) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

var _ Adapter = (*OpenRouter)(nil)
