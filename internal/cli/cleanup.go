package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/picklr-io/provprobe/internal/engine"
	"github.com/picklr-io/provprobe/internal/logging"
	"github.com/picklr-io/provprobe/internal/provider"
	"github.com/picklr-io/provprobe/internal/state"
	"github.com/spf13/cobra"
)

// defaultCleanupAge is the default for --older-than.
const defaultCleanupAge = time.Hour

var (
	cleanupOlderThan time.Duration
	cleanupTimeout   time.Duration
	cleanupDryRun    bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete resources left behind by interrupted runs",
	Long: `Reads the ledger and deletes every recorded resource older than
--older-than. Entries are removed from the ledger once their resource is gone;
a resource that no longer exists counts as deleted.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", defaultCleanupAge,
		"Only delete resources created at least this long ago; keep it above the longest run (max-attempts x interval + teardown-timeout) or live resources get deleted")
	cleanupCmd.Flags().DurationVar(&cleanupTimeout, "timeout", engine.DefaultTeardownTimeout, "Deadline for each delete call")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "List what would be deleted without deleting")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if noLedger {
		return fmt.Errorf("cleanup needs a ledger; drop --no-ledger")
	}

	cfg, err := loadProbeConfig(ctx)
	if err != nil {
		return err
	}

	defaultRegion := effectiveRegion(cfg)
	awsProfile := effectiveProfile(cfg)
	registries := make(map[string]*provider.Registry)
	lookup := func(ctx context.Context, kind, region string) (engine.ControlPlane, error) {
		if region == "" {
			region = defaultRegion
		}
		r, ok := registries[region]
		if !ok {
			r = provider.NewRegistry(region, awsProfile)
			registries[region] = r
		}
		return r.ControlPlane(ctx, kind)
	}

	ledger, err := openLedger(cfg, defaultRegion)
	if err != nil {
		return err
	}

	c := &cleaner{
		ledger:        ledger,
		controlPlanes: lookup,
		olderThan:     cleanupOlderThan,
		timeout:       cleanupTimeout,
		dryRun:        cleanupDryRun,
		now:           time.Now,
	}
	return c.run(ctx, cmd.OutOrStdout())
}

// controlPlaneLookup returns the control plane for a kind in a region.
type controlPlaneLookup func(ctx context.Context, kind, region string) (engine.ControlPlane, error)

// cleaner deletes ledger entries whose lifecycle never finished.
type cleaner struct {
	ledger        *state.Ledger
	controlPlanes controlPlaneLookup
	olderThan     time.Duration
	timeout       time.Duration
	dryRun        bool
	now           func() time.Time
}

func (c *cleaner) run(ctx context.Context, w io.Writer) error {
	entries, err := c.ledger.Entries(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No resources in ledger.")
		return nil
	}

	var errs []error
	deleted, skipped := 0, 0
	for _, e := range entries {
		if age, ok := entryAge(e.CreatedAt, c.now()); ok && age < c.olderThan {
			fmt.Fprintf(w, "  skip %s %s (created %s ago)\n", e.Kind, e.Handle, age.Round(time.Second))
			skipped++
			continue
		}
		if c.dryRun {
			fmt.Fprintf(w, "  would delete %s %s\n", e.Kind, e.Handle)
			continue
		}

		if err := c.delete(ctx, e.Kind, e.Region, engine.Handle(e.Handle)); err != nil {
			fmt.Fprintf(w, "%s  failed %s %s: %v%s\n", colorize(colorRed), e.Kind, e.Handle, err, colorize(colorReset))
			errs = append(errs, fmt.Errorf("%s %s: %w", e.Kind, e.Handle, err))
			continue
		}
		fmt.Fprintf(w, "%s  - deleted %s %s%s\n", colorize(colorRed), e.Kind, e.Handle, colorize(colorReset))
		deleted++
	}

	if c.dryRun {
		fmt.Fprintf(w, "\nDry run: %d would be deleted, %d skipped.\n", len(entries)-skipped, skipped)
		return nil
	}
	fmt.Fprintf(w, "\nCleanup complete: %d deleted, %d skipped, %d failed.\n", deleted, skipped, len(errs))
	return errors.Join(errs...)
}

func (c *cleaner) delete(ctx context.Context, kind, region string, handle engine.Handle) error {
	cp, err := c.controlPlanes(ctx, kind, region)
	if err != nil {
		return err
	}

	callCtx, cancel := engine.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := cp.Delete(callCtx, handle); err != nil {
		if !errors.Is(err, engine.ErrNotFound) {
			return err
		}
		logging.Debug("resource already gone", "kind", kind, "handle", handle.String())
	}

	return c.ledger.Release(ctx, kind, handle)
}

// entryAge reports how long ago createdAt was. ok is false when the
// timestamp cannot be parsed, in which case the entry is treated as old.
func entryAge(createdAt string, now time.Time) (time.Duration, bool) {
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return 0, false
	}
	return now.Sub(t), true
}
