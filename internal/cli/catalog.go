package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect catalog directories",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Load a catalog directory and report what it defines",
	Long: `Validate parses every catalog file in the directory and runs the
cross-reference checks, for example that methods only consume and
produce defined items.

Examples:
  magnate catalog validate
  magnate catalog validate ./catalog -v`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCatalogValidate,
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
}

func runCatalogValidate(cmd *cobra.Command, args []string) error {
	dir := "./catalog"
	if len(args) == 1 {
		dir = args[0]
	}

	cat, err := catalog.LoadDir(dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "catalog ok: %d equipment, %d items, %d methods\n",
		len(cat.EquipmentIDs()), len(cat.ItemIDs()), len(cat.MethodIDs()))
	if !verbose {
		return nil
	}
	for _, id := range cat.EquipmentIDs() {
		fmt.Fprintf(out, "  equipment %s\n", id)
	}
	for _, id := range cat.ItemIDs() {
		fmt.Fprintf(out, "  item %s\n", id)
	}
	for _, id := range cat.MethodIDs() {
		m, _ := cat.Method(id)
		fmt.Fprintf(out, "  method %s -> %s (%d ops)\n", id, m.Product, len(m.Operations))
	}
	return nil
}
