// Package runner implements the Runner: the per-invocation orchestrator
// that wires a cached compiled module, a fresh Sandbox Environment, and
// the host-import surface together, and executes one of a script's two
// entry points under metering (spec.md §4.5).
package runner

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"

	"github.com/sandrolain/oraclewasm/internal/cache"
	"github.com/sandrolain/oraclewasm/internal/errs"
	"github.com/sandrolain/oraclewasm/internal/hostimport"
	"github.com/sandrolain/oraclewasm/internal/querier"
	"github.com/sandrolain/oraclewasm/internal/sandbox"
)

const (
	entryPrepare = "prepare"
	entryExecute = "execute"
)

// entryFor maps a Phase to the export name the Runner must invoke.
func entryFor(phase querier.Phase) string {
	if phase == querier.PhaseExecute {
		return entryExecute
	}
	return entryPrepare
}

// Run executes canonical's prepare or execute entry point against q,
// metered at gasLimit, reusing c for compilation and for c's single
// "env" host module. It returns the gas actually consumed, or a typed
// error per spec.md §7.
//
// canonical must already be the output of internal/compiler.Compile;
// Run does not re-validate script structure, only instantiates and
// invokes it. Concurrent Run calls against the same Cache are safe:
// each gets its own guest instance (named uniquely to avoid colliding
// in c.Runtime()'s namespace) and its own Sandbox Environment, carried
// to the shared host module through the call's context.
func Run(ctx context.Context, c *cache.Cache, canonical []byte, gasLimit uint64, phase querier.Phase, q querier.Querier) (gasUsed uint64, err error) {
	mod, _, err := c.GetInstance(canonical)
	if err != nil {
		return 0, err
	}

	env := sandbox.New(q)

	instance, err := c.Runtime().InstantiateModule(ctx, mod.Compiled, wazero.NewModuleConfig().WithName(uuid.NewString()))
	if err != nil {
		return 0, errs.NewInstantiationError(fmt.Sprintf("instantiating guest module: %v", err))
	}
	defer func() { _ = instance.Close(ctx) }()

	if err := env.SetInstance(instance, gasLimit); err != nil {
		return 0, err
	}

	entry := entryFor(phase)
	fn := instance.ExportedFunction(entry)
	if fn == nil {
		return 0, errs.NewBadEntrySignatureError(fmt.Sprintf("module does not export %q", entry))
	}
	def := fn.Definition()
	if len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 0 {
		return 0, errs.NewBadEntrySignatureError(fmt.Sprintf("%q must have signature () -> ()", entry))
	}

	callCtx := hostimport.WithEnvironment(ctx, env)
	_, callErr := fn.Call(callCtx)
	if callErr != nil {
		if oe, ok := errs.AsOwasmError(callErr); ok {
			return 0, oe
		}
		remaining, gerr := env.GasLeft()
		if gerr == nil && remaining == 0 {
			return 0, errs.NewOutOfGasError(callErr.Error())
		}
		return 0, errs.NewRuntimeError(callErr.Error())
	}

	remaining, err := env.GasLeft()
	if err != nil {
		return 0, err
	}
	return gasLimit - remaining, nil
}
