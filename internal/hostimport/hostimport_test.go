package hostimport

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	"github.com/sandrolain/oraclewasm/internal/config"
	"github.com/sandrolain/oraclewasm/internal/errs"
	"github.com/sandrolain/oraclewasm/internal/querier"
	"github.com/sandrolain/oraclewasm/internal/sandbox"
	"github.com/sandrolain/oraclewasm/internal/testutil"
	"github.com/sandrolain/oraclewasm/internal/wasmbin"
)

// newTestEnv compiles and instantiates a one-page-memory module and
// returns an Environment already published against it, so every import
// helper under test can reach real guest memory.
func newTestEnv(t *testing.T, q *testutil.StubQuerier, gasLimit uint64) *sandbox.Environment {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())

	m := &wasmbin.Module{
		Mems: []wasmbin.Limits{{Min: 1}},
		Exports: []wasmbin.Export{
			{Name: "memory", Kind: wasmbin.KindMemory, Idx: 0},
		},
	}
	compiled, err := rt.CompileModule(ctx, wasmbin.Encode(m))
	require.NoError(t, err)
	instance, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("hostimport-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	env := sandbox.New(q)
	require.NoError(t, env.SetInstance(instance, gasLimit))
	return env
}

// panicCode runs f, requiring it to panic with a typed owasm error, and
// returns that error's code.
func panicCode(t *testing.T, f func()) (code errs.ErrorCode) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value must be an error, got %T", r)
		oe, ok := errs.AsOwasmError(err)
		require.True(t, ok, "panic value must be a typed owasm error, got %v", err)
		code = oe.Code()
	}()
	f()
	return code
}

func TestReadCalldataWritesAndReturnsLength(t *testing.T) {
	q := testutil.NewStubQuerier([]byte("abcde"))
	env := newTestEnv(t, q, 1_000_000)

	n := readCalldata(env, config.Default().Gas, 0)
	require.Equal(t, int64(5), n)

	got, err := env.ReadMemory(0, 5)
	require.NoError(t, err)
	require.Equal(t, []byte("abcde"), got)
}

func TestReadCalldataRejectsNegativePointer(t *testing.T) {
	q := testutil.NewStubQuerier([]byte("abcde"))
	env := newTestEnv(t, q, 1_000_000)

	code := panicCode(t, func() { readCalldata(env, config.Default().Gas, -1) })
	require.Equal(t, errs.CodeMemoryOutOfBoundError, code)
}

func TestSetReturnDataHugeLengthIsSpanTooSmall(t *testing.T) {
	q := testutil.NewStubQuerier(nil)
	env := newTestEnv(t, q, 1_000_000)

	code := panicCode(t, func() { setReturnData(env, config.Default().Gas, 0, math.MaxInt64) })
	require.Equal(t, errs.CodeSpanTooSmallError, code)
}

func TestSetReturnDataNegativeLengthIsDataLengthOutOfBound(t *testing.T) {
	q := testutil.NewStubQuerier(nil)
	env := newTestEnv(t, q, 1_000_000)

	code := panicCode(t, func() { setReturnData(env, config.Default().Gas, 0, -1) })
	require.Equal(t, errs.CodeDataLengthOutOfBound, code)
}

func TestSetReturnDataForwardsToQuerier(t *testing.T) {
	q := testutil.NewStubQuerier(nil)
	env := newTestEnv(t, q, 1_000_000)
	require.NoError(t, env.WriteMemory(0, []byte("world")))

	setReturnData(env, config.Default().Gas, 0, 5)
	require.Equal(t, []byte("world"), q.ReturnData)
	require.Equal(t, 1, q.SetReturnDataCalls)
}

func TestGasCheckpointDebitsExactAmount(t *testing.T) {
	q := testutil.NewStubQuerier(nil)
	env := newTestEnv(t, q, 100)

	gasCheckpoint(env, 37)
	left, err := env.GasLeft()
	require.NoError(t, err)
	require.Equal(t, uint64(63), left)
}

func TestGasCheckpointExhaustionIsOutOfGas(t *testing.T) {
	q := testutil.NewStubQuerier(nil)
	env := newTestEnv(t, q, 10)

	code := panicCode(t, func() { gasCheckpoint(env, 11) })
	require.Equal(t, errs.CodeOutOfGasError, code)
}

func TestFallibleQueryPropagatesPhaseError(t *testing.T) {
	q := testutil.NewStubQuerier(nil) // stays in PhasePrepare
	env := newTestEnv(t, q, 1_000_000)

	defer func() {
		r := recover()
		require.NotNil(t, r, "get_execute_time outside execute phase must trap")
	}()
	fallibleQuery(env, config.Default().Gas, querier.Querier.GetExecuteTime)
}

func TestEcvrfVerifyRejectsMalformedKey(t *testing.T) {
	q := testutil.NewStubQuerier(nil)
	env := newTestEnv(t, q, 100_000_000)
	require.NoError(t, env.WriteMemory(0, make([]byte, 16))) // too short for a 32-byte key

	code := panicCode(t, func() {
		ecvrfVerify(env, config.Default().Gas, 0, 16, 0, 0, 0, 0)
	})
	require.Equal(t, errs.CodeInvalidPubkeyFormat, code)
}
