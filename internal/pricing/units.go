package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultFallbackProvider is used for model ids without a provider segment.
const DefaultFallbackProvider = "unknown"

// ErrInvalidPrice reports a negative price.
var ErrInvalidPrice = errors.New("pricing: invalid price")

var perMillion = decimal.NewFromInt(1_000_000)

// ToPerMillion converts a per-token price to a per-million-token price.
// A nil input yields nil.
func ToPerMillion(perToken *float64) (*float64, error) {
	if perToken == nil {
		return nil, nil
	}
	if *perToken < 0 {
		return nil, fmt.Errorf("%w: %v per token", ErrInvalidPrice, *perToken)
	}
	v := decimal.NewFromFloat(*perToken).Mul(perMillion).InexactFloat64()
	return &v, nil
}

// ExtractProvider returns the segment before the first "/" of a model id.
func ExtractProvider(modelID, fallback string) string {
	provider, _ := SplitModelID(modelID, fallback)
	return provider
}

// SplitModelID splits "provider/name". Ids without "/" get the fallback
// provider and keep the whole id as the name.
func SplitModelID(modelID, fallback string) (string, string) {
	if fallback == "" {
		fallback = DefaultFallbackProvider
	}
	provider, name, found := strings.Cut(modelID, "/")
	if !found || provider == "" {
		return fallback, strings.TrimPrefix(modelID, "/")
	}
	return provider, name
}
