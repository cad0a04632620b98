package eval

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/apple/pkl-go/pkl"
	"github.com/picklr-io/provprobe/internal/ir"
)

// Evaluator handles PKL evaluation into IR types.
type Evaluator struct {
	baseDir string
}

func NewEvaluator(baseDir string) *Evaluator {
	return &Evaluator{
		baseDir: baseDir,
	}
}

// resolve makes path absolute relative to the evaluator's base directory.
func (e *Evaluator) resolve(path string) string {
	if filepath.IsAbs(path) || e.baseDir == "" {
		return path
	}
	return filepath.Join(e.baseDir, path)
}

func withProperties(properties map[string]string) func(*pkl.EvaluatorOptions) {
	return func(o *pkl.EvaluatorOptions) {
		if len(properties) == 0 {
			return
		}
		if o.Properties == nil {
			o.Properties = make(map[string]string)
		}
		for k, v := range properties {
			o.Properties[k] = v
		}
	}
}

// LoadConfig evaluates a probe configuration file. properties are exposed to
// the module as external properties (read("prop:<name>")).
func (e *Evaluator) LoadConfig(ctx context.Context, file string, properties map[string]string) (*ir.ProbeConfig, error) {
	evaluator, err := pkl.NewEvaluator(ctx, pkl.PreconfiguredOptions, withProperties(properties))
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var cfg ir.ProbeConfig
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(e.resolve(file)), &cfg); err != nil {
		return nil, fmt.Errorf("failed to evaluate config: %w", err)
	}

	return &cfg, nil
}

// LoadLedger evaluates a ledger file written by the state package.
func (e *Evaluator) LoadLedger(ctx context.Context, file string) (*ir.Ledger, error) {
	evaluator, err := pkl.NewEvaluator(ctx, pkl.PreconfiguredOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var ledger ir.Ledger
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(e.resolve(file)), &ledger); err != nil {
		return nil, fmt.Errorf("failed to evaluate ledger: %w", err)
	}

	return &ledger, nil
}
