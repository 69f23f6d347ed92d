package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"SMCScan/internal/di"
	"SMCScan/internal/domain/models"
)

var (
	replaySetup     string
	replayCSV       string
	replayLookahead int
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay one setup over the bars after its entry",
	RunE:  runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVar(&replaySetup, "setup", "", "Setup JSON file")
	replayCmd.Flags().StringVar(&replayCSV, "csv", "", "CSV file of bars following the entry")
	replayCmd.Flags().IntVar(&replayLookahead, "lookahead", 0, "Bars before timeout (config default when 0)")
	_ = replayCmd.MarkFlagRequired("setup")
	_ = replayCmd.MarkFlagRequired("csv")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l, err := newLogger()
	if err != nil {
		return err
	}

	setup, err := readSetupFile(replaySetup)
	if err != nil {
		return err
	}
	future, err := readBarsFile(replayCSV, setup.Symbol)
	if err != nil {
		return fmt.Errorf("read %s: %w", replayCSV, err)
	}
	future = barsAfter(future, setup.Timestamp)

	res, err := di.BuildBacktester(cfg, nil, nil, nil, l).Replay(setup, future, replayLookahead)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printResult(cmd.OutOrStdout(), res)
	return nil
}

func readSetupFile(path string) (models.Setup, error) {
	var s models.Setup
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}
