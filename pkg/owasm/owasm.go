// Package owasm is the public entry point for embedders: compile a raw
// Wasm oracle script into its canonical form once, then run its
// prepare/execute phases any number of times against a Cache, per
// spec.md §6's compile/run entries.
package owasm

import (
	"context"

	"github.com/sandrolain/oraclewasm/internal/cache"
	"github.com/sandrolain/oraclewasm/internal/compiler"
	"github.com/sandrolain/oraclewasm/internal/config"
	"github.com/sandrolain/oraclewasm/internal/querier"
	"github.com/sandrolain/oraclewasm/internal/runner"
)

// Phase re-exports querier.Phase so callers need not import the
// internal package to select prepare or execute.
type Phase = querier.Phase

const (
	PhasePrepare = querier.PhasePrepare
	PhaseExecute = querier.PhaseExecute
)

// Querier re-exports the host contract a caller must implement to run
// a script.
type Querier = querier.Querier

// Cache re-exports the Module Cache a caller constructs once and reuses
// across many Compile/Run calls.
type Cache = cache.Cache

// Config re-exports the construction-time tunables shared by Compile
// and Run.
type Config = config.RuntimeConfig

// DefaultConfig returns the runtime's fixed configuration: the gas
// schedule, allow-list, memory cap and stack cap documented in
// SPEC_FULL.md.
func DefaultConfig() Config { return config.Default() }

// NewCache constructs a Module Cache bounded by cfg.CacheCapacity.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	return cache.New(ctx, cfg, nil)
}

// Compile runs the full Compiler pipeline over raw Wasm bytes and
// returns the canonical form a Cache can later compile and run, or a
// typed error per spec.md §7.
func Compile(cfg Config, raw []byte) ([]byte, error) {
	return compiler.Compile(cfg, raw)
}

// Run executes canonical's prepare or execute entry point against q,
// metered at gasLimit, reusing c's compiled-module cache. It returns
// the gas actually consumed, or a typed error per spec.md §7.
func Run(ctx context.Context, c *Cache, canonical []byte, gasLimit uint64, phase Phase, q Querier) (gasUsed uint64, err error) {
	return runner.Run(ctx, c, canonical, gasLimit, phase, q)
}
