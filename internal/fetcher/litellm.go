package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"llm-price-tracker/internal/sources"
)

// LiteLLM fetches the LiteLLM model price map from GitHub.
type LiteLLM struct {
	httpSource
}

// NewLiteLLM constructs the LiteLLM fetcher.
func NewLiteLLM(opts Options, logger zerolog.Logger) *LiteLLM {
	if opts.URL == "" {
		opts.URL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"
	}
	return &LiteLLM{httpSource: newHTTPSource(opts, "litellm_fetcher", logger)}
}

// Source implements SourceFetcher.
func (l *LiteLLM) Source() string { return sources.SourceLiteLLM }

// Fetch implements SourceFetcher.
func (l *LiteLLM) Fetch(ctx context.Context) (Document, error) {
	payload, err := l.get(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("fetch litellm: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(payload, &entries); err != nil {
		return Document{}, fmt.Errorf("litellm data is not a JSON object: %w", err)
	}

	l.logger.Info().Int("models", len(entries)).Msg("fetched litellm price map")
	return Document{
		Source:     sources.SourceLiteLLM,
		FetchedAt:  time.Now().UTC(),
		URL:        l.opts.URL,
		ModelCount: len(entries),
		Data:       json.RawMessage(payload),
	}, nil
}

var _ SourceFetcher = (*LiteLLM)(nil)
