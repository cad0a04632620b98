package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/picklr-io/provprobe/internal/engine"
	"github.com/picklr-io/provprobe/internal/logging"
	"github.com/picklr-io/provprobe/internal/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	runPolicy          policyFlags
	runFailOnExhausted bool
	runMetricsAddr     string
	runCount           int
	runParallelism     int
)

var runCmd = &cobra.Command{
	Use:   "run [kind]",
	Short: "Create a resource, wait until it is ready, then delete it",
	Long: `Creates one resource of the given kind with a generated name, describes it
until it reports ready or max-attempts is used up, and deletes it.

Supported kinds: cache-cluster (default), db-instance, instance, null.

Running out of attempts is reported but is not an error unless
--fail-on-exhausted is set. Interrupting the run still deletes the resource.

With --count above 1 the lifecycles run concurrently, up to --parallelism at
a time; each resource gets its own name and is deleted independently.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: provider.Kinds(),
	RunE:      runRun,
}

func init() {
	runPolicy.register(runCmd)
	runCmd.Flags().BoolVar(&runFailOnExhausted, "fail-on-exhausted", false, "Exit non-zero when the resource never became ready")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run (e.g. :9090)")
	runCmd.Flags().IntVar(&runCount, "count", 1, "Number of resources to run through the lifecycle")
	runCmd.Flags().IntVar(&runParallelism, "parallelism", engine.DefaultParallelism, "Maximum number of lifecycles in flight when --count is above 1")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadProbeConfig(ctx)
	if err != nil {
		return err
	}

	kind, err := provider.Lookup(resolveKind(args, cfg))
	if err != nil {
		return err
	}

	policy, err := runPolicy.buildPolicy(cmd, kind, cfg.Poll)
	if err != nil {
		return err
	}
	if runCount < 1 {
		return fmt.Errorf("count must be at least 1, got %d", runCount)
	}

	registry := provider.NewRegistry(effectiveRegion(cfg), effectiveProfile(cfg))
	controlPlane, err := registry.ControlPlane(ctx, kind.Name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	opts := []engine.Option{engine.WithCallback(progressPrinter(out))}

	ledger, err := openLedger(cfg, registry.Region())
	if err != nil {
		return err
	}
	if ledger != nil {
		opts = append(opts, engine.WithTracker(ledger))
	}

	if runMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, engine.WithMetrics(engine.NewMetrics(reg)))

		addr, shutdown, err := serveMetrics(runMetricsAddr, reg)
		if err != nil {
			return err
		}
		defer shutdown()
		logging.Info("serving metrics", "addr", addr)
	}

	logging.Info("starting lifecycle",
		"kind", kind.Name,
		"region", registry.Region(),
		"interval", policy.Interval,
		"max_attempts", policy.MaxAttempts,
		"keep_polling_when_ready", policy.KeepPollingWhenReady)

	if life := policy.MaxLifetime(); life > defaultCleanupAge {
		logging.Warn("run may outlive the default cleanup age; pass a larger --older-than to cleanup while it runs",
			"max_lifetime", life, "cleanup_age", defaultCleanupAge)
	}

	controller := engine.NewController(controlPlane, opts...)
	spec := kind.Spec(cfg)

	if runCount == 1 {
		result, err := controller.Run(ctx, spec, policy)
		if result != nil {
			printSummary(out, result)
		}
		if err != nil {
			return err
		}
		return checkExhausted([]*engine.Result{result})
	}

	results, err := controller.RunAll(ctx, engine.ExpandCount(spec, policy, runCount), runParallelism)
	var finished []*engine.Result
	for _, r := range results {
		if r.Result != nil {
			printSummary(out, r.Result)
			finished = append(finished, r.Result)
		}
	}
	if err != nil {
		return err
	}
	return checkExhausted(finished)
}

// checkExhausted fails when --fail-on-exhausted is set and any resource never
// became ready.
func checkExhausted(results []*engine.Result) error {
	if !runFailOnExhausted {
		return nil
	}
	for _, r := range results {
		if r.Outcome == engine.OutcomeExhausted {
			return fmt.Errorf("%s %s did not become ready after %d calls", r.Kind, r.Handle, r.Attempts)
		}
	}
	return nil
}

func printSummary(w io.Writer, r *engine.Result) {
	outcome := colorize(colorGreen) + string(r.Outcome) + colorize(colorReset)
	if r.Outcome == engine.OutcomeExhausted {
		outcome = colorize(colorYellow) + string(r.Outcome) + colorize(colorReset)
	}
	deleted := "yes"
	if !r.Deleted {
		deleted = colorize(colorRed) + "no" + colorize(colorReset)
	}

	fmt.Fprintf(w, "\n%s %s (%s)\n", r.Kind, r.Handle, r.Name)
	fmt.Fprintf(w, "  outcome:  %s\n", outcome)
	fmt.Fprintf(w, "  calls:    %d\n", r.Attempts)
	fmt.Fprintf(w, "  deleted:  %s\n", deleted)
	fmt.Fprintf(w, "  duration: %s\n", r.Duration.Round(time.Second))
}
