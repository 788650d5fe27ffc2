package runner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sandrolain/oraclewasm/internal/cache"
	"github.com/sandrolain/oraclewasm/internal/compiler"
	"github.com/sandrolain/oraclewasm/internal/config"
	"github.com/sandrolain/oraclewasm/internal/errs"
	"github.com/sandrolain/oraclewasm/internal/querier"
	"github.com/sandrolain/oraclewasm/internal/runner"
	"github.com/sandrolain/oraclewasm/internal/testutil"
	"github.com/sandrolain/oraclewasm/internal/wasmbin"
)

const (
	opLocalGet = 0x20
	opLocalSet = 0x21
	opI32Const = 0x41
	opI32Add   = 0x6A
	opI32LtS   = 0x48
)

// loopModule builds a canonical module whose execute entry spins a
// ~100000-iteration i32 counter loop and whose prepare entry is a
// trivial no-op, per S6.
func loopModule(t *testing.T) []byte {
	t.Helper()

	w := wasmbin.NewWriter()
	w.WriteByte(wasmbin.OpLoop)
	w.WriteByte(0x40) // empty blocktype
	w.WriteByte(opLocalGet)
	w.WriteU32(0)
	w.WriteByte(opI32Const)
	w.WriteI32(1)
	w.WriteByte(opI32Add)
	w.WriteByte(opLocalSet)
	w.WriteU32(0)
	w.WriteByte(opLocalGet)
	w.WriteU32(0)
	w.WriteByte(opI32Const)
	w.WriteI32(100_000)
	w.WriteByte(opI32LtS)
	w.WriteByte(wasmbin.OpBrIf)
	w.WriteU32(0)
	w.WriteByte(wasmbin.OpEnd) // end loop
	w.WriteByte(wasmbin.OpEnd) // end function
	loopBody := w.Bytes()

	m := &wasmbin.Module{
		Types:     []wasmbin.FuncType{{}},
		FuncTypes: []uint32{0, 0},
		Mems:      []wasmbin.Limits{{Min: 1}},
		Exports: []wasmbin.Export{
			{Name: "prepare", Kind: wasmbin.KindFunc, Idx: 0},
			{Name: "execute", Kind: wasmbin.KindFunc, Idx: 1},
		},
		Code: []wasmbin.Code{
			{Body: []byte{wasmbin.OpEnd}},
			{Locals: []wasmbin.LocalEntry{{Count: 1, ValType: wasmbin.ValI32}}, Body: loopBody},
		},
	}

	canonical, err := compiler.Compile(config.Default(), wasmbin.Encode(m))
	require.NoError(t, err)
	return canonical
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	ctx := context.Background()
	c, err := cache.New(ctx, config.Default(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// TestRunExhaustsGasOnTightLoop is S6: gas_limit=0 must fail with
// OutOfGasError before the loop ever gets to iterate.
func TestRunExhaustsGasOnTightLoop(t *testing.T) {
	c := newCache(t)
	canonical := loopModule(t)
	q := testutil.NewStubQuerier(nil)

	_, err := runner.Run(context.Background(), c, canonical, 0, querier.PhaseExecute, q)
	require.Error(t, err)
	require.True(t, errs.IsOutOfGas(err))
}

// TestRunSucceedsWithSufficientGas is S6's positive case: a generous
// limit lets the loop run to completion, and gas_used is deterministic
// across repeated runs against the same cached module.
func TestRunSucceedsWithSufficientGas(t *testing.T) {
	c := newCache(t)
	canonical := loopModule(t)

	var used [2]uint64
	for i := range used {
		q := testutil.NewStubQuerier(nil)
		gasUsed, err := runner.Run(context.Background(), c, canonical, 100_000_000, querier.PhaseExecute, q)
		require.NoError(t, err)
		require.LessOrEqual(t, gasUsed, uint64(100_000_000))
		used[i] = gasUsed
	}
	require.Equal(t, used[0], used[1], "gas_used must be deterministic across repeated runs")
}

// TestRunPrepareNoOpSucceeds exercises the prepare phase. It builds its
// own Cache, so its single Run takes the cache-miss path.
func TestRunPrepareNoOpSucceeds(t *testing.T) {
	c := newCache(t)
	canonical := loopModule(t)
	q := testutil.NewStubQuerier([]byte("hello"))

	gasUsed, err := runner.Run(context.Background(), c, canonical, 1_000_000, querier.PhasePrepare, q)
	require.NoError(t, err)
	require.Greater(t, gasUsed, uint64(0))
}

func TestRunRejectsMissingEntryPoint(t *testing.T) {
	c := newCache(t)

	m := &wasmbin.Module{
		Types:     []wasmbin.FuncType{{}},
		FuncTypes: []uint32{0},
		Mems:      []wasmbin.Limits{{Min: 1}},
		Exports: []wasmbin.Export{
			{Name: "prepare", Kind: wasmbin.KindFunc, Idx: 0},
		},
		Code: []wasmbin.Code{{Body: []byte{wasmbin.OpEnd}}},
	}
	// Skip the Compiler (which would itself reject this for missing
	// "execute"): feed a hand-built canonical-shaped module directly to
	// the Runner to exercise its own entry-point check in isolation.
	canonical := wasmbin.Encode(m)
	// rewrite memory to carry the fixed max, as the Compiler would.
	decoded, err := wasmbin.Decode(canonical)
	require.NoError(t, err)
	maxPages := config.Default().MaxMemoryPages
	decoded.Mems[0].Max = &maxPages
	canonical = wasmbin.Encode(decoded)

	q := testutil.NewStubQuerier(nil)
	_, err = runner.Run(context.Background(), c, canonical, 1_000_000, querier.PhaseExecute, q)
	require.Error(t, err)
	oe, ok := errs.AsOwasmError(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeBadEntrySignatureError, oe.Code())
}
