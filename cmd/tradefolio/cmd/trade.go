package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tradefolio/platform/cmd/tradefolio/internal/client"
	"github.com/tradefolio/platform/cmd/tradefolio/internal/output"
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Place trades",
	Long:  "Buy and sell whole shares against your cash balance.",
}

var buyCmd = &cobra.Command{
	Use:   "buy SYMBOL",
	Short: "Buy shares",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrade("buy", args[0])
	},
}

var sellCmd = &cobra.Command{
	Use:   "sell SYMBOL",
	Short: "Sell shares",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrade("sell", args[0])
	},
}

var (
	qtyFlag   int64
	priceFlag float64
)

func init() {
	rootCmd.AddCommand(tradeCmd)
	tradeCmd.AddCommand(buyCmd)
	tradeCmd.AddCommand(sellCmd)

	for _, c := range []*cobra.Command{buyCmd, sellCmd} {
		c.Flags().Int64VarP(&qtyFlag, "qty", "q", 0, "number of shares (whole shares only)")
		c.Flags().Float64VarP(&priceFlag, "price", "p", 0, "limit price (default: current market price)")
	}
}

func runTrade(side, symbol string) error {
	if qtyFlag <= 0 {
		output.Error("--qty must be a positive whole number of shares")
		return nil
	}

	c, err := newClient()
	if err != nil {
		return nil
	}

	res, err := c.PlaceTrade(client.TradeRequest{
		Symbol:   strings.ToUpper(symbol),
		Side:     side,
		Quantity: qtyFlag,
		Price:    priceFlag,
	})
	if err != nil {
		output.Error(err.Error())
		return nil
	}

	if getFormat() == "json" {
		return output.JSON(res)
	}

	verb := "Bought"
	if res.Side == "sell" {
		verb = "Sold"
	}
	output.Success(fmt.Sprintf("%s %d %s @ %.2f", verb, res.ExecutedQty, res.Symbol, res.ExecutedPrice))
	fmt.Println()
	output.KeyValue([][]string{
		{"Trade ID", res.TradeID},
		{"Total", output.Money(float64(res.ExecutedQty) * res.ExecutedPrice)},
		{"Committed", res.CommittedAt},
	})

	return nil
}
