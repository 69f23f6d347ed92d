package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"SMCScan/internal/di"
	"SMCScan/internal/domain/repository"
	"SMCScan/internal/usecase"
	"SMCScan/pkg/config"
	"SMCScan/pkg/logger"
)

var (
	runCSV     string
	runSymbol  string
	runFrom    string
	runTo      string
	runWorkers int
	runPersist bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Backtest a symbol over a CSV file or a date range",
	Long: `Backtest a symbol. With --csv the bars come from the file; otherwise
they are fetched for [--from, --to] from the configured bar source.`,
	RunE: runBacktest,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runCSV, "csv", "", "CSV file of bars (timestamp,open,high,low,close,volume)")
	runCmd.Flags().StringVar(&runSymbol, "symbol", "BTCUSDT", "Symbol to label setups with")
	runCmd.Flags().StringVar(&runFrom, "from", "", "Range start (2006-01-02 or RFC3339)")
	runCmd.Flags().StringVar(&runTo, "to", "", "Range end (2006-01-02 or RFC3339)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Replay workers (config default when 0)")
	runCmd.Flags().BoolVar(&runPersist, "persist", false, "Journal outcomes to ClickHouse")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l, err := newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var outcomes repository.OutcomeStore
	if runPersist {
		if !cfg.ClickHouse.Enabled {
			return fmt.Errorf("--persist requires clickhouse.enabled")
		}
		ch, err := di.ProvideClickHouseClient(cfg)
		if err != nil {
			return err
		}
		defer ch.Close()
		store, err := di.ProvideSetupStore(ch)
		if err != nil {
			return err
		}
		outcomes = di.ProvideOutcomeStore(store)
	}

	if runCSV != "" {
		bars, err := readBarsFile(runCSV, runSymbol)
		if err != nil {
			return fmt.Errorf("read %s: %w", runCSV, err)
		}
		rep, err := di.BuildBacktester(cfg, nil, outcomes, nil, l).RunBars(ctx, runSymbol, bars, runWorkers, runPersist)
		if err != nil {
			return err
		}
		return emit(cmd, rep)
	}

	if runFrom == "" {
		return fmt.Errorf("either --csv or --from is required")
	}
	from, err := parseDay(runFrom)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to := time.Now().UTC()
	if runTo != "" {
		if to, err = parseDay(runTo); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}
	if !to.After(from) {
		return fmt.Errorf("--to must be after --from")
	}

	source, closeSource, err := barSource(cfg, l)
	if err != nil {
		return err
	}
	defer closeSource()

	rep, err := di.BuildBacktester(cfg, source, outcomes, nil, l).Run(ctx, runSymbol, from, to, runWorkers, runPersist)
	if err != nil {
		return err
	}
	return emit(cmd, rep)
}

func emit(cmd *cobra.Command, rep *usecase.BacktestReport) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), rep)
	}
	printReport(cmd.OutOrStdout(), rep)
	return nil
}

// barSource resolves bars.source the way the server does.
func barSource(cfg *config.Config, l *logger.Logger) (repository.BarSource, func(), error) {
	ch, err := di.ProvideClickHouseClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}
	if ch != nil {
		closeFn = func() { _ = ch.Close() }
	}
	store, err := di.ProvideBarStore(ch, l)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return di.ProvideBarSource(cfg, store, di.ProvideBinanceClient(cfg, l)), closeFn, nil
}
