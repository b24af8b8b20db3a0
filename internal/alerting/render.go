package alerting

import (
	"fmt"
	"strings"

	"llm-price-tracker/internal/changes"
)

const (
	groupLimit   = 10
	removedLimit = 5
)

type group struct {
	title string
	typ   changes.Type
	limit int
}

var groups = []group{
	{"Price Decreases", changes.Decreased, groupLimit},
	{"Price Increases", changes.Increased, groupLimit},
	{"New Models", changes.Added, groupLimit},
	{"Removed Models", changes.Removed, removedLimit},
}

// FormatPrice renders a per-million price with precision scaled to its size.
func FormatPrice(v *float64) string {
	if v == nil {
		return "n/a"
	}
	switch p := *v; {
	case p < 0.01:
		return fmt.Sprintf("$%.4f", p)
	case p < 1:
		return fmt.Sprintf("$%.3f", p)
	default:
		return fmt.Sprintf("$%.2f", p)
	}
}

// FormatPercent renders a signed percentage, or nothing when undefined.
func FormatPercent(v *float64) string {
	if v == nil {
		return ""
	}
	sign := ""
	if *v > 0 {
		sign = "+"
	}
	return fmt.Sprintf("(%s%.1f%%)", sign, *v)
}

func shortName(modelID string) string {
	if i := strings.LastIndex(modelID, "/"); i >= 0 {
		return modelID[i+1:]
	}
	return modelID
}

// FormatLine renders one change record as a bullet.
func FormatLine(r changes.Record) string {
	name := shortName(r.ModelID)
	switch r.ChangeType {
	case changes.Added:
		if r.Pricing != nil {
			return fmt.Sprintf("• %s: %s/%s per M tokens", name, FormatPrice(r.Pricing.InputPerMillion), FormatPrice(r.Pricing.OutputPerMillion))
		}
		return "• " + name
	case changes.Removed:
		return "• " + name
	default:
		field := strings.TrimSuffix(r.Field, "_per_million")
		line := fmt.Sprintf("• %s (%s): %s → %s", name, field, FormatPrice(r.OldValue), FormatPrice(r.NewValue))
		if pct := FormatPercent(r.PercentChange); pct != "" {
			line += " " + pct
		}
		return line
	}
}

// renderText builds the grouped plain-text body shared by every channel.
func renderText(log changes.ChangeLog, header string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	if log.PreviousDate != "" {
		b.WriteString(fmt.Sprintf("%s → %s\n", log.PreviousDate, log.Date))
	} else {
		b.WriteString(fmt.Sprintf("Date: %s\n", log.Date))
	}
	for _, g := range groups {
		records := log.ByType(g.typ)
		if len(records) == 0 {
			continue
		}
		b.WriteString("\n")
		b.WriteString(g.title)
		b.WriteString(":\n")
		for i, r := range records {
			if i == g.limit {
				b.WriteString(fmt.Sprintf("  ...and %d more\n", len(records)-g.limit))
				break
			}
			b.WriteString(FormatLine(r))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// dominantColor mirrors the embed colour rules: green when decreases dominate,
// red when any increase exists, blue otherwise.
func dominantColor(s changes.Summary) int {
	switch {
	case s.PriceDecreases > s.PriceIncreases:
		return 0x00ff00
	case s.PriceIncreases > 0:
		return 0xff0000
	default:
		return 0x0099ff
	}
}
