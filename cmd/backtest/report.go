package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"SMCScan/internal/domain/models"
	"SMCScan/internal/usecase"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func signedR(r float64) string {
	s := fmt.Sprintf("%+.2fR", r)
	switch {
	case r > 0:
		return green(s)
	case r < 0:
		return red(s)
	default:
		return s
	}
}

func printReport(w io.Writer, rep *usecase.BacktestReport) {
	fmt.Fprintf(w, "%s %s  %s → %s  (%d bars)\n",
		bold("Backtest"), rep.Symbol,
		rep.From.Format(time.RFC3339), rep.To.Format(time.RFC3339), rep.Bars)
	if rep.RunID != "" {
		fmt.Fprintf(w, "%s %s\n", faint("run"), rep.RunID)
	}
	fmt.Fprintln(w)

	if len(rep.Outcomes) == 0 {
		fmt.Fprintln(w, faint("no setups"))
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY TIME\tDIR\tENTRY\tSTOP\tOUTCOME\tR\tBARS")
	for i, o := range rep.Outcomes {
		s := rep.Setups[i]
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%s\t%s\t%d\n",
			o.EntryTime.Format("2006-01-02 15:04"), o.Direction, s.Entry, s.Stop,
			phaseLabel(o.Phase), signedR(o.RealizedR), o.BarsElapsed)
	}
	_ = tw.Flush()
	fmt.Fprintln(w)
	printStats(w, rep.Stats)
}

func printStats(w io.Writer, st models.ReplayStats) {
	phases := make([]string, 0, len(st.Counts))
	for p := range st.Counts {
		phases = append(phases, string(p))
	}
	sort.Strings(phases)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%d\n", bold("setups"), st.Total)
	for _, p := range phases {
		fmt.Fprintf(tw, "  %s\t%d\n", phaseLabel(models.Phase(p)), st.Counts[models.Phase(p)])
	}
	fmt.Fprintf(tw, "%s\t%.1f%%\n", bold("win rate"), st.WinRate*100)
	fmt.Fprintf(tw, "%s\t%s\n", bold("total"), signedR(st.TotalR))
	fmt.Fprintf(tw, "%s\t%s\n", bold("expectancy"), signedR(st.Expectancy))
	fmt.Fprintf(tw, "%s\t%.2fR\n", bold("max drawdown"), st.MaxDrawdownR)
	_ = tw.Flush()
}

func printResult(w io.Writer, res models.ReplayResult) {
	fmt.Fprintf(w, "%s %s %s at %s\n", bold("Replay"), res.Symbol, res.Direction, res.EntryTime.Format(time.RFC3339))
	fmt.Fprintf(w, "  outcome  %s\n", phaseLabel(res.Phase))
	fmt.Fprintf(w, "  realized %s\n", signedR(res.RealizedR))
	fmt.Fprintf(w, "  bars     %d\n", res.BarsElapsed)
	fmt.Fprintf(w, "  exit     %.8g\n", res.ExitPrice)
}

func phaseLabel(p models.Phase) string {
	switch {
	case p.Win():
		return green(string(p))
	case p == models.PhaseLoss:
		return red(string(p))
	default:
		return string(p)
	}
}
