package cache

import (
	"fmt"

	"github.com/sandrolain/oraclewasm/internal/config"
	"github.com/sandrolain/oraclewasm/internal/wasmbin"
)

const (
	envModule     = "env"
	gasImportName = "gas"
	gasFuncIdx    = 0 // env.gas is always prepended as the first import
	funcIdxShift  = 1
)

// injectGasMetering rewrites a canonical module into the engine-facing
// metered form described in spec.md §4.5 ("a fresh engine whose compiler
// inserts the metering middleware"): it prepends a synthetic env.gas
// import of type (i32) -> (), shifts every existing function reference
// by one slot, and threads a gas-checkpoint call through every function
// body ahead of each control-transfer instruction. This runs only on a
// cache miss; the canonical bytes handed in are never mutated.
func injectGasMetering(canonical []byte, gas config.GasSchedule) ([]byte, error) {
	m, err := wasmbin.Decode(canonical)
	if err != nil {
		return nil, fmt.Errorf("decoding canonical module: %w", err)
	}

	gasTypeIdx := uint32(len(m.Types))
	m.Types = append(m.Types, wasmbin.FuncType{Params: []byte{wasmbin.ValI32}})

	m.Imports = append([]wasmbin.Import{
		{Module: envModule, Field: gasImportName, Kind: wasmbin.KindFunc, FuncTypeIdx: gasTypeIdx},
	}, m.Imports...)

	if m.Start != nil {
		shifted := *m.Start + funcIdxShift
		m.Start = &shifted
	}

	for i := range m.Exports {
		if m.Exports[i].Kind == wasmbin.KindFunc {
			m.Exports[i].Idx += funcIdxShift
		}
	}

	for i := range m.Elems {
		seg := &m.Elems[i]
		for j := range seg.FuncIdxs {
			seg.FuncIdxs[j] += funcIdxShift
		}
		if seg.Offset != nil {
			shifted, err := shiftFuncRefsInExpr(seg.Offset, funcIdxShift)
			if err != nil {
				return nil, fmt.Errorf("element segment %d offset: %w", i, err)
			}
			seg.Offset = shifted
		}
		for j := range seg.Exprs {
			shifted, err := shiftFuncRefsInExpr(seg.Exprs[j], funcIdxShift)
			if err != nil {
				return nil, fmt.Errorf("element segment %d entry %d: %w", i, j, err)
			}
			seg.Exprs[j] = shifted
		}
	}

	for i := range m.Globals {
		shifted, err := shiftFuncRefsInExpr(m.Globals[i].Init, funcIdxShift)
		if err != nil {
			return nil, fmt.Errorf("global %d init: %w", i, err)
		}
		m.Globals[i].Init = shifted
	}

	for i := range m.Code {
		body, err := injectGasCheckpoints(m.Code[i].Body, gas.BaseOperatorCost, gas.BranchOperatorCost)
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", i, err)
		}
		m.Code[i].Body = body
	}

	return wasmbin.Encode(m), nil
}

// shiftFuncRefsInExpr renumbers the operand of any ref.func instruction
// in a constant expression (global initializer or element offset), the
// only place outside function bodies that can name a function index.
func shiftFuncRefsInExpr(expr []byte, shift uint32) ([]byte, error) {
	r := wasmbin.NewReader(expr)
	w := wasmbin.NewWriter()
	for !r.Done() {
		start := r.Pos()
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if op == wasmbin.OpRefFunc {
			idx, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			w.WriteByte(wasmbin.OpRefFunc)
			w.WriteU32(idx + shift)
			continue
		}
		if err := wasmbin.SkipImmediate(r, op); err != nil {
			return nil, err
		}
		w.WriteBytes(r.Slice(start, r.Pos()))
	}
	return w.Bytes(), nil
}

// emitCheckpoint writes `i32.const amount; call env.gas`.
func emitCheckpoint(w *wasmbin.Writer, amount uint64) {
	w.WriteByte(0x41) // i32.const
	w.WriteI32(int32(amount))
	w.WriteByte(wasmbin.OpCall)
	w.WriteU32(gasFuncIdx)
}

// injectGasCheckpoints re-emits a function body, renumbering call/ref.func
// targets past the prepended import and inserting a gas-checkpoint call
// at function entry and before every loop, end, else, br, br_if,
// br_table, call, call_indirect and return — the accumulated flat cost
// of the straight-line run since the last checkpoint, plus the branch
// rate for the triggering instruction itself.
func injectGasCheckpoints(body []byte, base, branch uint64) ([]byte, error) {
	r := wasmbin.NewReader(body)
	w := wasmbin.NewWriter()

	var pending uint64
	emitCheckpoint(w, 0)

	depth := 0
	for {
		start := r.Pos()
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}

		if wasmbin.IsBranchOrCall(op) {
			emitCheckpoint(w, pending+branch)
			pending = 0
		} else {
			pending += base
		}

		terminalEnd := op == wasmbin.OpEnd && depth == 0
		switch {
		case op == wasmbin.OpEnd:
			if depth > 0 {
				depth--
			}
		case op == wasmbin.OpBlock, op == wasmbin.OpLoop, op == wasmbin.OpIf:
			depth++
		}

		switch op {
		case wasmbin.OpCall, wasmbin.OpRefFunc:
			idx, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			w.WriteByte(op)
			w.WriteU32(idx + funcIdxShift)
		default:
			if err := wasmbin.SkipImmediate(r, op); err != nil {
				return nil, err
			}
			w.WriteBytes(r.Slice(start, r.Pos()))
		}

		if terminalEnd {
			if !r.Done() {
				return nil, fmt.Errorf("%w: trailing bytes after function end", wasmbin.ErrMalformed)
			}
			return w.Bytes(), nil
		}
	}
}
