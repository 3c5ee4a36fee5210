package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/catalog"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/engine"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/scenario"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/scheduler"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/ticker"
)

var (
	runCatalogDir string
	runScenario   string
	runTicks      int
	runStep       time.Duration
	runSeed       uint64
	runJSON       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario headless and print completions",
	Long: `Run loads a catalog and a scenario, then advances the simulation a fixed
number of ticks. Completion events print as they happen; a status report
per facility prints at the end.

Examples:
  magnate run --scenario day_one.yaml
  magnate run --scenario day_one.yaml --ticks 480 --step 30s
  magnate run --scenario day_one.yaml --seed 42 --json`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runCatalogDir, "catalog", "c", "./catalog", "catalog directory")
	runCmd.Flags().StringVarP(&runScenario, "scenario", "s", "", "scenario file (required)")
	runCmd.Flags().IntVarP(&runTicks, "ticks", "n", 60, "number of ticks to run")
	runCmd.Flags().DurationVar(&runStep, "step", time.Second, "simulated time per tick")
	runCmd.Flags().Uint64Var(&runSeed, "seed", 0, "quality roll seed, 0 seeds from the clock")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit events and reports as JSON")
	_ = runCmd.MarkFlagRequired("scenario")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runTicks <= 0 {
		return fmt.Errorf("ticks must be positive, got %d", runTicks)
	}
	if runStep <= 0 {
		return fmt.Errorf("step must be positive, got %s", runStep)
	}

	cat, err := catalog.LoadDir(runCatalogDir)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	scn, err := scenario.Load(runScenario)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}

	seed := runSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	eng, err := engine.New(engine.Config{Catalog: cat, Seed: seed, Logger: cliLogger()})
	if err != nil {
		return err
	}
	if err := scn.Apply(eng); err != nil {
		return fmt.Errorf("apply scenario: %w", err)
	}

	out := cmd.OutOrStdout()
	sink := &eventPrinter{w: out, json: runJSON}
	driver := ticker.New(ticker.Config{Step: runStep}, eng, scn, sink, cliLogger())

	ctx := cmd.Context()
	for i := 0; i < runTicks; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		driver.Tick(ctx)
	}

	if !runJSON {
		fmt.Fprintf(out, "\nran %d ticks, clock %s\n", runTicks, driver.Clock())
	}
	for _, id := range eng.Facilities() {
		report, err := eng.Report(id)
		if err != nil {
			return err
		}
		if err := printReport(out, report, runJSON); err != nil {
			return err
		}
	}
	return nil
}

// eventPrinter writes completion events to the terminal as the driver
// drains them.
type eventPrinter struct {
	w    io.Writer
	json bool
}

func (p *eventPrinter) Broadcast(events []scheduler.CompletionEvent) {
	for _, ev := range events {
		if p.json {
			_ = json.NewEncoder(p.w).Encode(ev)
			continue
		}
		fmt.Fprintf(p.w, "%-10s %-16s %s x%d  quality %.0f  job %s\n",
			ev.At, ev.Facility, ev.Product, ev.Quantity, ev.Quality, ev.JobID)
	}
}

func printReport(w io.Writer, report scheduler.StatusReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(w, "\n%s @ %s\n", report.Facility, report.Clock)
	for _, m := range report.Machines {
		fmt.Fprintf(w, "  machine %-14s %-22s %-12s condition %.0f%%", m.ID, m.Name, m.Status, m.Condition)
		if m.Op != "" {
			fmt.Fprintf(w, "  %s %.0f%%", m.Op, m.Percent*100)
		}
		fmt.Fprintln(w)
	}
	for _, v := range report.Active {
		fmt.Fprintf(w, "  active %s  %s op %d/%d %s\n", v.ID, v.Product, v.OpIndex+1, v.OpCount, v.CurrentOp)
	}
	for _, v := range report.Queue {
		fmt.Fprintf(w, "  queued %s  %s via %s\n", v.ID, v.Product, v.Method)
	}
	for _, s := range report.Stalled {
		fmt.Fprintf(w, "  stalled %s  %s\n", s.JobID, s.Reason)
	}
	for _, it := range report.Stock {
		fmt.Fprintf(w, "  stock %s x%d  quality %.0f\n", it.Type, it.Quantity, it.Quality)
	}
	fmt.Fprintf(w, "  archived %d, undelivered events %d\n", report.Archived, report.Pending)
	return nil
}
