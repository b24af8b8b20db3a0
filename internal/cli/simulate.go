package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateModel string
	simulateOld   float64
	simulateNew   float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次价格变动并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOld <= 0 || simulateNew <= 0 {
			return errors.New("--old 与 --new 必须大于 0")
		}
		if simulateOld == simulateNew {
			return errors.New("--old 与 --new 不能相同")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateModel, simulateOld, simulateNew)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateModel, "model", "openai/gpt-4o", "模型 id")
	simulateCmd.Flags().Float64Var(&simulateOld, "old", 5, "原输入价格 (USD / 1M tokens)")
	simulateCmd.Flags().Float64Var(&simulateNew, "new", 2.5, "新输入价格 (USD / 1M tokens)")
}
