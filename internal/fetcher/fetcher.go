package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"llm-price-tracker/internal/sources"
)

// SourceFetcher retrieves the raw document of one upstream source.
type SourceFetcher interface {
	Source() string
	Fetch(ctx context.Context) (Document, error)
}

// Document is a raw source payload plus retrieval metadata. Data holds either
// a JSON array of records or a JSON object keyed by model.
type Document struct {
	Source     string          `json:"source"`
	FetchedAt  time.Time       `json:"fetched_at"`
	URL        string          `json:"source_url,omitempty"`
	ModelCount int             `json:"model_count"`
	Data       json.RawMessage `json:"data"`
}

// Records decodes Data into source-native records. Object payloads are
// flattened in key order with the key stored under sources.LiteLLMKeyField.
func (d Document) Records() ([]sources.RawRecord, error) {
	if len(d.Data) == 0 {
		return nil, fmt.Errorf("%s document has no data", d.Source)
	}

	var list []sources.RawRecord
	if err := json.Unmarshal(d.Data, &list); err == nil {
		return list, nil
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(d.Data, &keyed); err != nil {
		return nil, fmt.Errorf("decode %s data: %w", d.Source, err)
	}
	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]sources.RawRecord, 0, len(keys))
	for _, k := range keys {
		rec := sources.RawRecord{}
		if err := json.Unmarshal(keyed[k], &rec); err != nil {
			// non-object entries become key-only records and are dropped downstream
			rec = sources.RawRecord{}
		}
		rec[sources.LiteLLMKeyField] = k
		records = append(records, rec)
	}
	return records, nil
}
