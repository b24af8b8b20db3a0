package changes

import (
	"time"

	"llm-price-tracker/internal/pricing"
)

// Type classifies a change record.
type Type string

const (
	Added     Type = "added"
	Removed   Type = "removed"
	Increased Type = "price_increased"
	Decreased Type = "price_decreased"
)

// FieldModel is the field of whole-model records.
const FieldModel = "model"

// DateLayout formats changelog dates.
const DateLayout = "2006-01-02"

func (t Type) precedence() int {
	switch t {
	case Added:
		return 0
	case Removed:
		return 1
	case Increased:
		return 2
	case Decreased:
		return 3
	}
	return 4
}

// Record is one field-level difference between two snapshots.
type Record struct {
	ModelID       string        `json:"model_id"`
	ChangeType    Type          `json:"change_type"`
	Field         string        `json:"field"`
	OldValue      *float64      `json:"old_value"`
	NewValue      *float64      `json:"new_value"`
	PercentChange *float64      `json:"percent_change"`
	Pricing       *pricing.Info `json:"pricing,omitempty"`
}

// Summary counts records per change type.
type Summary struct {
	PriceIncreases int `json:"price_increases"`
	PriceDecreases int `json:"price_decreases"`
	NewModels      int `json:"new_models"`
	RemovedModels  int `json:"removed_models"`
}

// ChangeLog is the ordered result of one comparison.
type ChangeLog struct {
	Date         string    `json:"date"`
	GeneratedAt  time.Time `json:"generated_at"`
	PreviousDate string    `json:"previous_date,omitempty"`
	Changes      []Record  `json:"changes"`
	Summary      Summary   `json:"summary"`
}

// Empty reports whether the changelog holds no records.
func (c ChangeLog) Empty() bool {
	return len(c.Changes) == 0
}

// ByType returns the records of one change type, preserving order.
func (c ChangeLog) ByType(t Type) []Record {
	var out []Record
	for _, r := range c.Changes {
		if r.ChangeType == t {
			out = append(out, r)
		}
	}
	return out
}

func summarize(records []Record) Summary {
	var s Summary
	for _, r := range records {
		switch r.ChangeType {
		case Added:
			s.NewModels++
		case Removed:
			s.RemovedModels++
		case Increased:
			s.PriceIncreases++
		case Decreased:
			s.PriceDecreases++
		}
	}
	return s
}
