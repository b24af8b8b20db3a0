package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"llm-price-tracker/internal/changes"
	"llm-price-tracker/internal/pricing"
)

// SimulateAlert 构造一份模拟变更日志并走一遍告警通道。
func (a *App) SimulateAlert(ctx context.Context, modelID string, oldPrice, newPrice float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	return notifier.Notify(ctx, SimulatedChangeLog(time.Now(), modelID, oldPrice, newPrice))
}

// SimulatedChangeLog runs the detector over two one-model schemas that
// differ only in input price.
func SimulatedChangeLog(at time.Time, modelID string, oldPrice, newPrice float64) changes.ChangeLog {
	build := func(ts time.Time, input float64) pricing.Schema {
		provider, name := pricing.SplitModelID(modelID, "")
		return pricing.NewSchema(ts, map[string]pricing.Model{
			modelID: {
				ModelID:  modelID,
				Provider: provider,
				Name:     name,
				Pricing: pricing.Info{
					InputPerMillion:  pricing.Float(input),
					OutputPerMillion: pricing.Float(input * 4),
					Currency:         pricing.DefaultCurrency,
				},
				Sources: []string{"simulated"},
			},
		})
	}

	previous := build(at.Add(-24*time.Hour), oldPrice)
	return changes.New(changes.Config{}, zerolog.Nop()).Detect(build(at, newPrice), &previous)
}
