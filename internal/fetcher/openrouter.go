package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"llm-price-tracker/internal/sources"
)

// OpenRouter fetches the OpenRouter models listing.
type OpenRouter struct {
	httpSource
}

// NewOpenRouter constructs the OpenRouter fetcher.
func NewOpenRouter(opts Options, logger zerolog.Logger) *OpenRouter {
	if opts.URL == "" {
		opts.URL = "https://openrouter.ai/api/v1/models"
	}
	return &OpenRouter{httpSource: newHTTPSource(opts, "openrouter_fetcher", logger)}
}

// Source implements SourceFetcher.
func (o *OpenRouter) Source() string { return sources.SourceOpenRouter }

// Fetch implements SourceFetcher.
func (o *OpenRouter) Fetch(ctx context.Context) (Document, error) {
	payload, err := o.get(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("fetch openrouter: %w", err)
	}

	var body struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return Document{}, fmt.Errorf("decode openrouter response: %w", err)
	}
	if body.Data == nil {
		return Document{}, errors.New("openrouter response missing 'data' field")
	}

	data, err := json.Marshal(body.Data)
	if err != nil {
		return Document{}, err
	}

	o.logger.Info().Int("models", len(body.Data)).Msg("fetched openrouter models")
	return Document{
		Source:     sources.SourceOpenRouter,
		FetchedAt:  time.Now().UTC(),
		URL:        o.opts.URL,
		ModelCount: len(body.Data),
		Data:       data,
	}, nil
}

var _ SourceFetcher = (*OpenRouter)(nil)
