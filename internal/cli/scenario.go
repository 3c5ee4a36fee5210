package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/catalog"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/scenario"
)

var scenarioCatalogDir string

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Inspect scenario files",
}

var scenarioCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a scenario file against a catalog",
	Long: `Check parses the scenario and verifies every reference against the
catalog: equipment and item ids in facility setups, product and method
ids in job requests, and that each method actually produces its job's
product.

Examples:
  magnate scenario check day_one.yaml
  magnate scenario check day_one.yaml --catalog ./catalog`,
	Args: cobra.ExactArgs(1),
	RunE: runScenarioCheck,
}

func init() {
	scenarioCheckCmd.Flags().StringVarP(&scenarioCatalogDir, "catalog", "c", "./catalog", "catalog directory")
	scenarioCmd.AddCommand(scenarioCheckCmd)
}

func runScenarioCheck(cmd *cobra.Command, args []string) error {
	cat, err := catalog.LoadDir(scenarioCatalogDir)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	scn, err := scenario.Load(args[0])
	if err != nil {
		return err
	}
	if err := scn.Validate(cat); err != nil {
		return err
	}

	deferred := 0
	for _, j := range scn.Jobs {
		if j.At > 0 {
			deferred++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scenario ok: %d facilities, %d jobs (%d deferred)\n",
		len(scn.Facilities), len(scn.Jobs), deferred)
	return nil
}
