package cli

import (
	"fmt"

	"github.com/picklr-io/provprobe/internal/engine"
	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the ledger of in-flight resources",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources recorded in the ledger",
	Args:  cobra.NoArgs,
	RunE:  runLedgerList,
}

var ledgerRmCmd = &cobra.Command{
	Use:   "rm <kind> <handle>",
	Short: "Forget a resource without deleting it",
	Args:  cobra.ExactArgs(2),
	RunE:  runLedgerRm,
}

func init() {
	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerRmCmd)
}

func runLedgerList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadProbeConfig(ctx)
	if err != nil {
		return err
	}
	ledger, err := openLedger(cfg, effectiveRegion(cfg))
	if err != nil {
		return err
	}
	if ledger == nil {
		return fmt.Errorf("ledger is disabled by --no-ledger")
	}

	entries, err := ledger.Entries(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No resources in ledger.")
		return nil
	}
	fmt.Fprintf(out, "%-14s %-28s %-12s %s\n", "KIND", "HANDLE", "REGION", "CREATED")
	for _, e := range entries {
		fmt.Fprintf(out, "%-14s %-28s %-12s %s\n", e.Kind, e.Handle, e.Region, e.CreatedAt)
	}
	return nil
}

func runLedgerRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadProbeConfig(ctx)
	if err != nil {
		return err
	}
	ledger, err := openLedger(cfg, effectiveRegion(cfg))
	if err != nil {
		return err
	}
	if ledger == nil {
		return fmt.Errorf("ledger is disabled by --no-ledger")
	}

	if err := ledger.Release(ctx, args[0], engine.Handle(args[1])); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s %s from the ledger.\n", args[0], args[1])
	return nil
}
