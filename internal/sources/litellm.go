package sources

import (
	"fmt"
	"strings"

	"llm-price-tracker/internal/pricing"
)

// SourceLiteLLM names the LiteLLM model_prices_and_context_window.json file.
const SourceLiteLLM = "litellm"

// LiteLLMKeyField carries the object key of a LiteLLM entry, since the
// upstream document is a map rather than a list.
const LiteLLMKeyField = "key"

const liteLLMSampleSpec = "sample_spec"

type liteLLMRecord struct {
	Key                         string   `mapstructure:"key"`
	Provider                    string   `mapstructure:"litellm_provider"`
	Mode                        string   `mapstructure:"mode"`
	MaxInputTokens              *int     `mapstructure:"max_input_tokens"`
	MaxOutputTokens             *int     `mapstructure:"max_output_tokens"`
	InputCostPerToken           *float64 `mapstructure:"input_cost_per_token"`
	OutputCostPerToken          *float64 `mapstructure:"output_cost_per_token"`
	CacheReadInputTokenCost     *float64 `mapstructure:"cache_read_input_token_cost"`
	CacheCreationInputTokenCost *float64 `mapstructure:"cache_creation_input_token_cost"`
}

// LiteLLM adapts entries of the LiteLLM pricing map.
type LiteLLM struct {
	fallback string
}

// NewLiteLLM constructs the LiteLLM adapter.
func NewLiteLLM(fallbackProvider string) *LiteLLM {
	return &LiteLLM{fallback: fallbackProvider}
}

// Name implements Adapter.
func (l *LiteLLM) Name() string { return SourceLiteLLM }

// Adapt implements Adapter.
func (l *LiteLLM) Adapt(record RawRecord) (*pricing.Model, error) {
	var rec liteLLMRecord
	if err := decode(record, &rec); err != nil {
		return nil, err
	}
	key := strings.TrimSpace(rec.Key)
	if key == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, LiteLLMKeyField)
	}
	if key == liteLLMSampleSpec {
		return nil, nil
	}

	info, err := convertPrices(rec.InputCostPerToken, rec.OutputCostPerToken, rec.CacheReadInputTokenCost, rec.CacheCreationInputTokenCost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	modelID, provider, name := qualify(key, strings.TrimSpace(rec.Provider), l.fallback)
	return &pricing.Model{
		ModelID:         modelID,
		Provider:        provider,
		Name:            name,
		Pricing:         info,
		ContextWindow:   positive(rec.MaxInputTokens),
		MaxOutputTokens: positive(rec.MaxOutputTokens),
		Modality:        rec.Mode,
		Sources:         []string{SourceLiteLLM},
	}, nil
}

var _ Adapter = (*LiteLLM)(nil)
