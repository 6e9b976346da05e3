package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tradefolio/platform/cmd/tradefolio/internal/client"
	"github.com/tradefolio/platform/cmd/tradefolio/internal/output"
)

var (
	cfgFile string
	format  string

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

var rootCmd = &cobra.Command{
	Use:   "tradefolio",
	Short: "Tradefolio - portfolio and trading from your terminal",
	Long: titleStyle.Render(`
╔═══════════════════════════════════════════════════════════╗
║  Tradefolio CLI - Portfolios, Trades and Snapshots        ║
╚═══════════════════════════════════════════════════════════╝
`) + `
Inspect your portfolio, place trades and manage value snapshots.

Get started:
  tradefolio portfolio         Show current holdings and value
  tradefolio trade buy ACME    Buy shares
  tradefolio snapshot create   Record a portfolio snapshot
  tradefolio --help            Show all commands`,
	Version: "1.0.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.tradefolio/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "table", "output format: table, json")

	viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".tradefolio")
		if err := os.MkdirAll(configDir, 0700); err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Error creating config dir: ")+err.Error())
		}

		viper.AddConfigPath(configDir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetDefault("api_url", "http://localhost:8003")
	viper.SetDefault("format", "table")

	viper.SetEnvPrefix("TRADEFOLIO")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

func getFormat() string {
	if format != "" && format != "table" {
		return format
	}
	return viper.GetString("format")
}

// newClient builds an API client carrying the access token from config
// or the TRADEFOLIO_TOKEN environment variable.
func newClient() (*client.Client, error) {
	token := viper.GetString("token")
	if token == "" {
		output.Error("No access token configured. Set TRADEFOLIO_TOKEN or 'token' in ~/.tradefolio/config.yaml.")
		return nil, fmt.Errorf("not authenticated")
	}

	c := client.New()
	c.SetToken(token)
	return c, nil
}
