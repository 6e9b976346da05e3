package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tradefolio/platform/cmd/tradefolio/internal/output"
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Show current holdings and value",
	Long:  "Display your portfolio: open positions, cash balance and total value.",
	RunE:  runPortfolio,
}

func init() {
	rootCmd.AddCommand(portfolioCmd)
}

func runPortfolio(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return nil
	}

	p, err := c.GetPortfolio()
	if err != nil {
		output.Error(err.Error())
		return nil
	}

	if getFormat() == "json" {
		return output.JSON(p)
	}

	output.Header("Portfolio")
	fmt.Println()

	if len(p.Holdings) == 0 {
		output.Info("No open positions")
	} else {
		symbols := make([]string, 0, len(p.Holdings))
		for symbol := range p.Holdings {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)

		rows := make([][]string, 0, len(symbols))
		for _, symbol := range symbols {
			h := p.Holdings[symbol]
			price := p.Prices[symbol]
			marketValue := price * float64(h.Quantity)
			unrealized := (price - h.AvgCost) * float64(h.Quantity)
			rows = append(rows, []string{
				symbol,
				fmt.Sprintf("%d", h.Quantity),
				fmt.Sprintf("%.2f", h.AvgCost),
				fmt.Sprintf("%.2f", price),
				fmt.Sprintf("%.2f", marketValue),
				output.PnL(unrealized),
			})
		}
		output.Table([]string{"Symbol", "Qty", "Avg Cost", "Price", "Value", "Unrealized"}, rows)
	}

	fmt.Println()
	output.KeyValue([][]string{
		{"Cash", output.Money(p.CashBalance)},
		{"Stocks", output.Money(p.StocksValue)},
		{"Total", output.Money(p.TotalValue)},
	})

	return nil
}
