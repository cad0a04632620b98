package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/picklr-io/provprobe/internal/engine"
	"github.com/picklr-io/provprobe/internal/eval"
	"github.com/picklr-io/provprobe/internal/ir"
	"github.com/picklr-io/provprobe/internal/provider"
	"github.com/picklr-io/provprobe/internal/state"
	"github.com/spf13/cobra"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// defaultKind is used when neither an argument nor the config file names one.
const defaultKind = "cache-cluster"

// colorize returns the ANSI code, or "" if color is disabled.
func colorize(code string) string {
	if noColor {
		return ""
	}
	return code
}

// loadProbeConfig evaluates --config. Without a config file every setting
// comes from flags and defaults.
func loadProbeConfig(ctx context.Context) (*ir.ProbeConfig, error) {
	if configFile == "" {
		return &ir.ProbeConfig{}, nil
	}

	absPath, err := filepath.Abs(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", configFile, err)
	}

	evaluator := eval.NewEvaluator(filepath.Dir(absPath))
	cfg, err := evaluator.LoadConfig(ctx, filepath.Base(absPath), configProps)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// resolveKind picks the resource kind: argument, then config, then default.
func resolveKind(args []string, cfg *ir.ProbeConfig) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	if cfg.Kind != "" {
		return cfg.Kind
	}
	return defaultKind
}

// effectiveRegion prefers the flag, then the config file, then AWS_REGION.
// An empty result lets the AWS provider fall back to its default.
func effectiveRegion(cfg *ir.ProbeConfig) string {
	if region != "" {
		return region
	}
	if cfg.Region != "" {
		return cfg.Region
	}
	return os.Getenv("AWS_REGION")
}

func effectiveProfile(cfg *ir.ProbeConfig) string {
	if profile != "" {
		return profile
	}
	return cfg.Profile
}

// policyFlags holds the poll policy flags shared by commands that run a
// lifecycle.
type policyFlags struct {
	interval        time.Duration
	maxAttempts     int
	readyState      string
	readyMatch      string
	namePrefix      string
	noStopWhenReady bool
	teardownTimeout time.Duration
	callTimeout     time.Duration
}

func (p *policyFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.DurationVar(&p.interval, "interval", engine.DefaultInterval, "Wait between describe calls")
	f.IntVar(&p.maxAttempts, "max-attempts", engine.DefaultMaxAttempts, "Maximum number of describe calls")
	f.StringVar(&p.readyState, "ready-state", "", "Status that counts as ready (default depends on kind)")
	f.StringVar(&p.readyMatch, "ready-match", "", "How the ready state is matched: contains or equals (default depends on kind)")
	f.StringVar(&p.namePrefix, "name-prefix", engine.DefaultNamePrefix, "Prefix for generated resource names")
	f.BoolVar(&p.noStopWhenReady, "no-stop-when-ready", false, "Keep polling after the resource is ready until max-attempts is used up")
	f.DurationVar(&p.teardownTimeout, "teardown-timeout", engine.DefaultTeardownTimeout, "Deadline for the delete call, independent of interrupts")
	f.DurationVar(&p.callTimeout, "call-timeout", 0, "Deadline for each control plane call (0 for none)")
}

// buildPolicy layers explicitly set flags over the config file over defaults.
func (p *policyFlags) buildPolicy(cmd *cobra.Command, kind provider.Kind, poll *ir.PollConfig) (engine.Policy, error) {
	policy := engine.DefaultPolicy()
	if poll == nil {
		poll = &ir.PollConfig{}
	}
	changed := cmd.Flags().Changed

	if poll.Interval != nil {
		policy.Interval = poll.Interval.GoDuration()
	}
	if changed("interval") {
		policy.Interval = p.interval
	}
	if policy.Interval < 0 {
		return engine.Policy{}, fmt.Errorf("interval must not be negative, got %s", policy.Interval)
	}

	if poll.MaxAttempts != 0 {
		policy.MaxAttempts = poll.MaxAttempts
	}
	if changed("max-attempts") {
		policy.MaxAttempts = p.maxAttempts
	}
	if policy.MaxAttempts <= 0 {
		return engine.Policy{}, fmt.Errorf("max-attempts must be positive, got %d", policy.MaxAttempts)
	}

	readyState, readyMatch := poll.ReadyState, poll.ReadyMatch
	if changed("ready-state") {
		readyState = p.readyState
	}
	if changed("ready-match") {
		readyMatch = p.readyMatch
	}
	isReady, err := kind.Readiness(readyState, readyMatch)
	if err != nil {
		return engine.Policy{}, err
	}
	policy.IsReady = isReady

	prefix := engine.DefaultNamePrefix
	if poll.NamePrefix != "" {
		prefix = poll.NamePrefix
	}
	if changed("name-prefix") {
		prefix = p.namePrefix
	}
	policy.Namer = engine.TimestampNamer(prefix)

	if poll.StopWhenReady != nil {
		policy.KeepPollingWhenReady = !*poll.StopWhenReady
	}
	if changed("no-stop-when-ready") {
		policy.KeepPollingWhenReady = p.noStopWhenReady
	}

	if poll.TeardownTimeout != nil {
		policy.TeardownTimeout = poll.TeardownTimeout.GoDuration()
	}
	if changed("teardown-timeout") {
		policy.TeardownTimeout = p.teardownTimeout
	}

	if poll.CallTimeout != nil {
		policy.CallTimeout = poll.CallTimeout.GoDuration()
	}
	if changed("call-timeout") {
		policy.CallTimeout = p.callTimeout
	}

	return policy, nil
}

// openLedger returns nil when ledger tracking is disabled.
func openLedger(cfg *ir.ProbeConfig, region string) (*state.Ledger, error) {
	if noLedger {
		return nil, nil
	}

	lc := cfg.Ledger
	if ledgerPath != "" {
		lc = &ir.LedgerConfig{Backend: "local", Path: ledgerPath}
	}

	backend, err := state.NewBackend(lc, eval.NewEvaluator(""))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return state.NewLedger(backend, region), nil
}

// progressPrinter renders lifecycle events as they happen. Events from
// concurrent lifecycles are serialised.
func progressPrinter(w io.Writer) engine.EventCallback {
	var mu sync.Mutex
	return func(ev engine.Event) {
		mu.Lock()
		defer mu.Unlock()

		switch ev.Type {
		case engine.EventCreated:
			fmt.Fprintf(w, "%s+ created %s %s%s\n", colorize(colorGreen), ev.Kind, ev.Handle, colorize(colorReset))
		case engine.EventPolled:
			status := ev.Status.State
			if !ev.Status.Found {
				status = "(not found)"
			}
			fmt.Fprintf(w, "# of calls: %d  status: %s\n", ev.Attempt, status)
		case engine.EventReady:
			fmt.Fprintf(w, "%s✓ %s is ready after %d calls%s\n", colorize(colorGreen), ev.Handle, ev.Attempt, colorize(colorReset))
		case engine.EventExhausted:
			fmt.Fprintf(w, "%s! %s not ready after %d calls (last status: %q)%s\n", colorize(colorYellow), ev.Handle, ev.Attempt, ev.Status.State, colorize(colorReset))
		case engine.EventDeleted:
			fmt.Fprintf(w, "%s- deleted %s %s (%s)%s\n", colorize(colorRed), ev.Kind, ev.Handle, ev.Duration.Round(time.Millisecond), colorize(colorReset))
		case engine.EventFailed:
			fmt.Fprintf(w, "%s✗ %s failed for %s %s: %v%s\n", colorize(colorRed), ev.Phase, ev.Kind, ev.Handle, ev.Err, colorize(colorReset))
		}
	}
}
