package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"llm-price-tracker/internal/version"
)

// Options parameterise an HTTP source fetcher.
type Options struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

type httpSource struct {
	opts   Options
	client *http.Client
	logger zerolog.Logger
}

func newHTTPSource(opts Options, component string, logger zerolog.Logger) httpSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return httpSource{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", component).Logger(),
	}
}

func (h httpSource) get(ctx context.Context) ([]byte, error) {
	if strings.TrimSpace(h.opts.URL) == "" {
		return nil, fmt.Errorf("source url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.opts.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}
	return payload, nil
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error.Message != "" {
			return fmt.Errorf("source api error (%d): %s", status, apiErr.Error.Message)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("source api error (%d): %s", status, apiErr.Message)
		}
	}
	if body := strings.TrimSpace(string(payload)); body != "" {
		if len(body) > 200 {
			body = body[:200]
		}
		return fmt.Errorf("source api error (%d): %s", status, body)
	}
	return fmt.Errorf("source api error (%d)", status)
}
