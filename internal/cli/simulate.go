package cli

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"token-price-tracker/internal/domain"
)

var (
	simulateChain string
	simulateOld   float64
	simulateNew   float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-spike",
	Short: "模拟一次价格飙升并触发告警邮件",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOld <= 0 || simulateNew <= 0 {
			return errors.New("--old 与 --new 必须大于 0")
		}

		chain, err := domain.ParseChain(simulateChain)
		if err != nil {
			return fmt.Errorf("invalid --chain value: %w", err)
		}

		oldPrice := decimal.NewFromFloat(simulateOld)
		newPrice := decimal.NewFromFloat(simulateNew)
		return getApp().SimulateSpike(cmd.Context(), chain, oldPrice, newPrice)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateChain, "chain", "ethereum", "Chain to simulate")
	simulateCmd.Flags().Float64Var(&simulateOld, "old", 0, "一小时前的 USD 价格")
	simulateCmd.Flags().Float64Var(&simulateNew, "new", 0, "当前 USD 价格")
}
