package sandbox_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/sandrolain/oraclewasm/internal/errs"
	"github.com/sandrolain/oraclewasm/internal/querier"
	"github.com/sandrolain/oraclewasm/internal/sandbox"
	"github.com/sandrolain/oraclewasm/internal/testutil"
	"github.com/sandrolain/oraclewasm/internal/wasmbin"
)

// newTestInstance compiles and instantiates a module exporting one
// single-page memory, with no imports, good enough to exercise every
// Environment accessor without pulling in the Compiler or Cache.
func newTestInstance(t *testing.T) (wazero.Runtime, api.Module) {
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

	instance, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("sandbox-test"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = rt.Close(ctx) })
	return rt, instance
}

func codeOf(t *testing.T, err error) errs.ErrorCode {
	t.Helper()
	oe, ok := errs.AsOwasmError(err)
	require.True(t, ok, "expected a typed owasm error, got %v", err)
	return oe.Code()
}

func TestUninitializedAccessorsFail(t *testing.T) {
	env := sandbox.New(testutil.NewStubQuerier(nil))

	_, err := env.GasLeft()
	require.Equal(t, errs.CodeUninitializedContextData, codeOf(t, err))

	_, err = env.Memory()
	require.Equal(t, errs.CodeUninitializedContextData, codeOf(t, err))

	err = env.SetGasLeft(10)
	require.Equal(t, errs.CodeUninitializedContextData, codeOf(t, err))

	err = env.WithQuerier(func(querier.Querier) {})
	require.Equal(t, errs.CodeUninitializedContextData, codeOf(t, err))
}

func TestSetInstanceTwiceFails(t *testing.T) {
	_, instance := newTestInstance(t)
	env := sandbox.New(testutil.NewStubQuerier(nil))

	require.NoError(t, env.SetInstance(instance, 1000))
	err := env.SetInstance(instance, 1000)
	require.Equal(t, errs.CodeInstantiationError, codeOf(t, err))
}

func TestGasAccounting(t *testing.T) {
	_, instance := newTestInstance(t)
	env := sandbox.New(testutil.NewStubQuerier(nil))
	require.NoError(t, env.SetInstance(instance, 100))

	left, err := env.GasLeft()
	require.NoError(t, err)
	require.Equal(t, uint64(100), left)

	require.NoError(t, env.DecreaseGasLeft(40))
	left, err = env.GasLeft()
	require.NoError(t, err)
	require.Equal(t, uint64(60), left)

	err = env.DecreaseGasLeft(61)
	require.Equal(t, errs.CodeOutOfGasError, codeOf(t, err))

	left, err = env.GasLeft()
	require.NoError(t, err)
	require.Equal(t, uint64(60), left, "underflowing decrement must leave the counter unchanged")

	require.NoError(t, env.SetGasLeft(5))
	left, err = env.GasLeft()
	require.NoError(t, err)
	require.Equal(t, uint64(5), left)
}

func TestMemoryReadWriteRoundTrip(t *testing.T) {
	_, instance := newTestInstance(t)
	env := sandbox.New(testutil.NewStubQuerier(nil))
	require.NoError(t, env.SetInstance(instance, 100))

	require.NoError(t, env.WriteMemory(0, []byte("hello")))
	data, err := env.ReadMemory(0, 5)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	_, err = env.ReadMemory(1<<20, 5)
	require.Equal(t, errs.CodeMemoryOutOfBoundError, codeOf(t, err))
}

func TestWithQuerierRunsUnderLock(t *testing.T) {
	_, instance := newTestInstance(t)
	q := testutil.NewStubQuerier(nil)
	env := sandbox.New(q)
	require.NoError(t, env.SetInstance(instance, 100))

	var observed int64
	require.NoError(t, env.WithQuerier(func(q querier.Querier) {
		observed = q.GetSpanSize()
	}))
	require.Equal(t, int64(4096), observed)
}
