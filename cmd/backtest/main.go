package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"SMCScan/pkg/config"
	"SMCScan/pkg/logger"
)

var (
	configPath string
	logLevel   string
	noColor    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay SMC setups over historical bars",
	Long: `Walks a bar series the way the live scanner would, emits setups and
replays each one over the bars that followed it.

Examples:
  backtest run --csv btc_5m.csv --symbol BTCUSDT
  backtest run --symbol ETHUSDT --from 2024-03-01 --to 2024-04-01
  backtest replay --setup setup.json --csv future.csv`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of a table")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Defaults(), nil
	}
	return config.LoadWithEnv(configPath)
}

func newLogger() (*logger.Logger, error) {
	return logger.New(&logger.Config{Level: logLevel, Format: "console", Output: "stderr"})
}
