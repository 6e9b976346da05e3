package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradefolio/platform/cmd/tradefolio/internal/output"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Portfolio snapshot commands",
	Long:  "Create and list point-in-time records of portfolio value and PnL.",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Record a snapshot now",
	RunE:  runSnapshotCreate,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshot history",
	RunE:  runSnapshotList,
}

var (
	fromFlag string
	toFlag   string
)

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotListCmd)

	snapshotListCmd.Flags().StringVar(&fromFlag, "from", "", "start of range (RFC 3339)")
	snapshotListCmd.Flags().StringVar(&toFlag, "to", "", "end of range (RFC 3339)")
}

func runSnapshotCreate(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return nil
	}

	snap, err := c.CreateSnapshot()
	if err != nil {
		output.Error(err.Error())
		return nil
	}

	if getFormat() == "json" {
		return output.JSON(snap)
	}

	output.Success("Snapshot recorded")
	fmt.Println()
	output.KeyValue([][]string{
		{"Total value", output.Money(snap.TotalPortfolioValue)},
		{"Cash", output.Money(snap.CashBalance)},
		{"Stocks", output.Money(snap.StocksValue)},
		{"Realized PnL", output.PnL(snap.RealizedPnL)},
		{"Unrealized PnL", output.PnL(snap.UnrealizedPnL)},
		{"Total PnL", output.PnL(snap.TotalPnL)},
		{"Change", output.Percent(snap.PercentChange)},
		{"Since start", output.Percent(snap.PercentChangeFromStart)},
	})

	return nil
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return nil
	}

	snapshots, err := c.ListSnapshots(fromFlag, toFlag)
	if err != nil {
		output.Error(err.Error())
		return nil
	}

	if getFormat() == "json" {
		return output.JSON(snapshots)
	}

	if len(snapshots) == 0 {
		output.Info("No snapshots found")
		return nil
	}

	output.Header("Snapshot History")
	fmt.Println()

	rows := make([][]string, len(snapshots))
	for i, s := range snapshots {
		date := s.CreatedAt
		if len(date) >= 10 {
			date = date[:10]
		}
		rows[i] = []string{
			date,
			fmt.Sprintf("%.2f", s.TotalPortfolioValue),
			output.PnL(s.RealizedPnL),
			output.PnL(s.UnrealizedPnL),
			output.PnL(s.TotalPnL),
			output.Percent(s.PercentChange),
		}
	}
	output.Table([]string{"Date", "Total Value", "Realized", "Unrealized", "Total PnL", "Change"}, rows)

	return nil
}
