// Package compiler implements the Module Validator/Rewriter: it turns
// arbitrary bytes into a canonical, stack-height-guarded Wasm module or
// fails with a typed error, per the pipeline in spec.md §4.1.
//
// Structural well-formedness is checked by internal/wasmbin.Decode; a
// second, independent pass asks wazero itself (configured as a
// deterministic interpreter, so this never touches the host's native
// compiler) to compile the raw bytes and immediately discards the
// result, which is the only validator in this package that actually
// understands Wasm's type system.
package compiler

import (
	"context"
	"fmt"

	"github.com/sandrolain/oraclewasm/internal/config"
	"github.com/sandrolain/oraclewasm/internal/errs"
	"github.com/sandrolain/oraclewasm/internal/wasmbin"
	"github.com/tetratelabs/wazero"
)

const (
	entryPrepare = "prepare"
	entryExecute = "execute"

	opGlobalGet = 0x23
	opGlobalSet = 0x24
	opI32Const  = 0x41
	opI32Add    = 0x6A
	opI32Sub    = 0x6B
	opI32GtU    = 0x4B
	opIf        = 0x04
	opBlockType = 0x40 // empty block type: no params, no results
)

// Compile runs the full §4.1 pipeline: engine validation, structural
// parse, export/import checks, memory rewrite, stack-height
// instrumentation, and re-serialization. Earlier failures shadow later
// ones, matching the documented pipeline order.
func Compile(cfg config.RuntimeConfig, raw []byte) (out []byte, err error) {
	if verr := validateWithEngine(raw); verr != nil {
		return nil, errs.NewValidationError(verr.Error())
	}

	m, derr := wasmbin.Decode(raw)
	if derr != nil {
		return nil, errs.NewDeserializationError(derr.Error())
	}

	if err := checkExports(m); err != nil {
		return nil, err
	}
	if err := checkImports(m, cfg.AllowedImports); err != nil {
		return nil, err
	}
	if err := rewriteMemory(m, cfg.MaxMemoryPages); err != nil {
		return nil, err
	}
	if err := injectStackGuard(m, cfg.MaxStackDepth); err != nil {
		return nil, errs.NewStackHeightInjectionError(err.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, errs.NewSerializationError(fmt.Sprintf("re-serializing canonical module: %v", r))
		}
	}()
	return wasmbin.Encode(m), nil
}

// validateWithEngine asks wazero to compile raw as a throwaway module,
// relying on its own semantic validator rather than reimplementing
// Wasm's type-checking rules by hand.
func validateWithEngine(raw []byte) error {
	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer func() { _ = rt.Close(ctx) }()

	cm, err := rt.CompileModule(ctx, raw)
	if err != nil {
		return err
	}
	return cm.Close(ctx)
}

// checkExports enforces CanonicalModule invariant (iii): prepare and
// execute are both exported as nullary functions.
func checkExports(m *wasmbin.Module) error {
	found := map[string]bool{}
	for _, e := range m.Exports {
		if e.Name != entryPrepare && e.Name != entryExecute {
			continue
		}
		if e.Kind != wasmbin.KindFunc {
			return errs.NewInvalidExportsError(fmt.Sprintf("export %q must be a function", e.Name))
		}
		sig, ok := m.FuncSignature(e.Idx)
		if !ok || !sig.IsNullary() {
			return errs.NewInvalidExportsError(fmt.Sprintf("export %q must have signature () -> ()", e.Name))
		}
		found[e.Name] = true
	}
	if !found[entryPrepare] || !found[entryExecute] {
		return errs.NewInvalidExportsError("module must export both prepare and execute")
	}
	return nil
}

// checkImports enforces invariant (ii): every import is a function from
// the env module whose field is allow-listed.
func checkImports(m *wasmbin.Module, allowed map[string]struct{}) error {
	for _, im := range m.Imports {
		if im.Module != "env" {
			return errs.NewInvalidImportsError(fmt.Sprintf("import %q.%q: only the env module is permitted", im.Module, im.Field))
		}
		if im.Kind != wasmbin.KindFunc {
			return errs.NewInvalidImportsError(fmt.Sprintf("import env.%s must be a function", im.Field))
		}
		if _, ok := allowed[im.Field]; !ok {
			return errs.NewInvalidImportsError(fmt.Sprintf("import env.%s is not allow-listed", im.Field))
		}
	}
	return nil
}

// rewriteMemory enforces invariant (iv): exactly one memory, no declared
// maximum, initial size within cap, rewritten to carry the fixed cap as
// its maximum.
func rewriteMemory(m *wasmbin.Module, maxPages uint32) error {
	if len(m.Mems) != 1 {
		return errs.NewBadMemorySectionError(fmt.Sprintf("module must declare exactly one memory, found %d", len(m.Mems)))
	}
	mem := m.Mems[0]
	if mem.Max != nil {
		return errs.NewBadMemorySectionError("module must not declare its own memory maximum")
	}
	if mem.Min > maxPages {
		return errs.NewBadMemorySectionError(fmt.Sprintf("initial memory of %d pages exceeds the %d page cap", mem.Min, maxPages))
	}
	newMax := maxPages
	m.Mems[0] = wasmbin.Limits{Min: mem.Min, Max: &newMax}
	return nil
}

// injectStackGuard enforces invariant (v): it appends a fresh mutable
// i32 global initialized to zero and rewrites every function body to
// increment it (trapping via unreachable past MaxStackDepth) on entry
// and decrement it before every return and before the function's own
// closing end.
func injectStackGuard(m *wasmbin.Module, maxDepth uint32) error {
	globalIdx := uint32(len(m.Globals))
	for i := range m.Code {
		body, err := instrumentBody(m.Code[i].Body, globalIdx, maxDepth)
		if err != nil {
			return fmt.Errorf("function %d: %w", i, err)
		}
		m.Code[i].Body = body
	}
	initExpr := wasmbin.NewWriter()
	initExpr.WriteByte(opI32Const)
	initExpr.WriteI32(0)
	initExpr.WriteByte(wasmbin.OpEnd)
	m.Globals = append(m.Globals, wasmbin.Global{
		Type: wasmbin.GlobalType{ValType: wasmbin.ValI32, Mutable: true},
		Init: initExpr.Bytes(),
	})
	return nil
}

// instrumentBody re-emits a function body verbatim, byte range by byte
// range, except at the points the stack guard must run: once at entry,
// and once before every instruction that can leave the function (an
// explicit return, or the body's own terminal end).
func instrumentBody(body []byte, globalIdx, maxDepth uint32) ([]byte, error) {
	r := wasmbin.NewReader(body)
	w := wasmbin.NewWriter()
	writePrologue(w, globalIdx, maxDepth)

	depth := 0
	for {
		start := r.Pos()
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}

		switch {
		case op == wasmbin.OpEnd && depth == 0:
			writeEpilogue(w, globalIdx)
			w.WriteByte(wasmbin.OpEnd)
			if !r.Done() {
				return nil, fmt.Errorf("%w: trailing bytes after function end", wasmbin.ErrMalformed)
			}
			return w.Bytes(), nil
		case op == wasmbin.OpEnd:
			depth--
		case op == wasmbin.OpReturn:
			writeEpilogue(w, globalIdx)
		case op == wasmbin.OpBlock, op == wasmbin.OpLoop, op == wasmbin.OpIf:
			depth++
		}

		if err := wasmbin.SkipImmediate(r, op); err != nil {
			return nil, err
		}
		w.WriteBytes(r.Slice(start, r.Pos()))
	}
}

func writePrologue(w *wasmbin.Writer, globalIdx, maxDepth uint32) {
	w.WriteByte(opGlobalGet)
	w.WriteU32(globalIdx)
	w.WriteByte(opI32Const)
	w.WriteI32(1)
	w.WriteByte(opI32Add)
	w.WriteByte(opGlobalSet)
	w.WriteU32(globalIdx)

	w.WriteByte(opGlobalGet)
	w.WriteU32(globalIdx)
	w.WriteByte(opI32Const)
	w.WriteI32(int32(maxDepth))
	w.WriteByte(opI32GtU)
	w.WriteByte(opIf)
	w.WriteByte(opBlockType)
	w.WriteByte(wasmbin.OpUnreachable)
	w.WriteByte(wasmbin.OpEnd)
}

func writeEpilogue(w *wasmbin.Writer, globalIdx uint32) {
	w.WriteByte(opGlobalGet)
	w.WriteU32(globalIdx)
	w.WriteByte(opI32Const)
	w.WriteI32(1)
	w.WriteByte(opI32Sub)
	w.WriteByte(opGlobalSet)
	w.WriteU32(globalIdx)
}
