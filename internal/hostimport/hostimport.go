// Package hostimport builds the wazero host module that backs every
// env.<name> import a canonical module is allowed to declare (spec.md
// §4.4), plus the synthetic env.gas metering hook injected by
// internal/cache. Every exported function follows the same shape:
// validate arguments, debit gas, perform the effect — in that order, so
// an out-of-gas trap is reproducible regardless of which import
// triggered it. The one exception is ecvrf_verify, which debits its
// flat fee before validating its arguments.
//
// Each function panics with a typed error from internal/errs on
// failure rather than returning one: wazero recovers a host function's
// panic and re-surfaces it, unchanged, as the error from the guest
// call, which is exactly the "typed host error propagated unchanged"
// behavior spec.md §4.5 step 6 requires of the Runner's trap
// translation.
//
// The "env" host module is instantiated exactly once per wazero
// runtime (wazero rejects a second module instance under the same
// name in one namespace), so it cannot close over a particular
// invocation's Sandbox Environment the way a per-call host module
// could. Instead every function reads its Environment out of the
// context.Context passed by wazero on each call; the Runner attaches
// it once per invocation via WithEnvironment before calling the guest
// entry point, so concurrent invocations sharing one Cache and runtime
// each see their own Environment despite sharing one host module
// instance.
package hostimport

import (
	"context"
	"math"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/sandrolain/oraclewasm/internal/config"
	"github.com/sandrolain/oraclewasm/internal/ecvrf"
	"github.com/sandrolain/oraclewasm/internal/errs"
	"github.com/sandrolain/oraclewasm/internal/querier"
	"github.com/sandrolain/oraclewasm/internal/sandbox"
)

const envModuleName = "env"

type envContextKey struct{}

// WithEnvironment returns a copy of ctx carrying env, so that a guest
// call made with the returned context resolves every env.* host
// import against env. Must be called once per invocation before
// calling the guest entry point.
func WithEnvironment(ctx context.Context, env *sandbox.Environment) context.Context {
	return context.WithValue(ctx, envContextKey{}, env)
}

// environmentFromContext recovers the Environment WithEnvironment
// attached. A missing value means a host import fired outside of a
// Runner-managed invocation, which is a programming error, not a
// guest-triggered fault.
func environmentFromContext(ctx context.Context) *sandbox.Environment {
	env, ok := ctx.Value(envContextKey{}).(*sandbox.Environment)
	if !ok {
		panic("hostimport: env.* import called without a Sandbox Environment in context")
	}
	return env
}

// Instantiate builds and instantiates the "env" host module against
// rt, wiring every allow-listed import plus env.gas, billed against
// gas. Call once per wazero runtime (e.g. once per Cache); the
// returned module must outlive every guest instantiation against rt.
func Instantiate(ctx context.Context, rt wazero.Runtime, gas config.GasSchedule) (api.Module, error) {
	b := rt.NewHostModuleBuilder(envModuleName)

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, n int32) {
		gasCheckpoint(environmentFromContext(ctx), int64(n))
	}).Export("gas")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) int64 {
		return getSpanSize(environmentFromContext(ctx), gas)
	}).Export("get_span_size")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, ptr int64) int64 {
		return readCalldata(environmentFromContext(ctx), gas, ptr)
	}).Export("read_calldata")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, ptr, length int64) {
		setReturnData(environmentFromContext(ctx), gas, ptr, length)
	}).Export("set_return_data")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) int64 {
		return flatQuery(environmentFromContext(ctx), gas, querier.Querier.GetAskCount)
	}).Export("get_ask_count")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) int64 {
		return flatQuery(environmentFromContext(ctx), gas, querier.Querier.GetMinCount)
	}).Export("get_min_count")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) int64 {
		return flatQuery(environmentFromContext(ctx), gas, querier.Querier.GetPrepareTime)
	}).Export("get_prepare_time")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) int64 {
		return fallibleQuery(environmentFromContext(ctx), gas, querier.Querier.GetExecuteTime)
	}).Export("get_execute_time")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) int64 {
		return fallibleQuery(environmentFromContext(ctx), gas, querier.Querier.GetAnsCount)
	}).Export("get_ans_count")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, eid, did, ptr, length int64) {
		askExternalData(environmentFromContext(ctx), gas, eid, did, ptr, length)
	}).Export("ask_external_data")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, eid, vid int64) int64 {
		return getExternalDataStatus(environmentFromContext(ctx), gas, eid, vid)
	}).Export("get_external_data_status")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, eid, vid, ptr int64) int64 {
		return readExternalData(environmentFromContext(ctx), gas, eid, vid, ptr)
	}).Export("read_external_data")

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, yPtr, yLen, piPtr, piLen, alphaPtr, alphaLen int64) int64 {
		return ecvrfVerify(environmentFromContext(ctx), gas, yPtr, yLen, piPtr, piLen, alphaPtr, alphaLen)
	}).Export("ecvrf_verify")

	return b.Instantiate(ctx)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func charge(env *sandbox.Environment, amount uint64) {
	must(env.DecreaseGasLeft(amount))
}

func querySpanSize(env *sandbox.Environment) int64 {
	var sz int64
	must(env.WithQuerier(func(q querier.Querier) { sz = q.GetSpanSize() }))
	return sz
}

// validatePtr enforces the "pointer must be >= 0 and representable as a
// 32-bit guest address" rule shared by every import that touches memory.
func validatePtr(ptr int64) uint32 {
	if ptr < 0 {
		panic(errs.NewMemoryOutOfBoundError("pointer argument is negative"))
	}
	if ptr > math.MaxUint32 {
		panic(errs.NewConvertTypeOutOfBound("pointer argument exceeds 32-bit address space"))
	}
	return uint32(ptr)
}

// validateLen enforces "length >= 0" then "length <= span_size", in
// that order, matching S8's set_return_data(0,-1) -> DataLengthOutOfBound
// vs set_return_data(0, MaxInt64) -> SpanTooSmallError.
func validateLen(length, spanSize int64) uint32 {
	if length < 0 {
		panic(errs.NewDataLengthOutOfBound("length argument is negative"))
	}
	if length > spanSize {
		panic(errs.NewSpanTooSmallError("length exceeds the querier-declared span size"))
	}
	if length > math.MaxUint32 {
		panic(errs.NewConvertTypeOutOfBound("length argument exceeds 32-bit address space"))
	}
	return uint32(length)
}

func checkBounds(env *sandbox.Environment, ptr, length uint32) {
	mem, err := env.Memory()
	must(err)
	if uint64(ptr)+uint64(length) > uint64(mem.Size()) {
		panic(errs.NewMemoryOutOfBoundError("pointer+length exceeds linear memory size"))
	}
}

// readSpan validates a (ptr,len) pair, bills it at the standard
// per-import read rate, then reads it from guest memory.
func readSpan(env *sandbox.Environment, gas config.GasSchedule, ptr, length int64) []byte {
	p, ln := validateSpan(env, ptr, length)
	charge(env, gas.ImportFee+gas.MemoryReadPerByte*uint64(ln))
	data, err := env.ReadMemory(p, ln)
	must(err)
	return data
}

// readSpanNoCharge validates and reads a (ptr,len) pair without billing
// anything, for callers like ecvrf_verify whose single flat ECVRFFee
// already covers every byte the call touches.
func readSpanNoCharge(env *sandbox.Environment, ptr, length int64) []byte {
	p, ln := validateSpan(env, ptr, length)
	data, err := env.ReadMemory(p, ln)
	must(err)
	return data
}

// validateSpan applies the shared pointer/length/bounds rules for any
// (ptr,len) pair crossing the sandbox boundary.
func validateSpan(env *sandbox.Environment, ptr, length int64) (uint32, uint32) {
	p := validatePtr(ptr)
	ln := validateLen(length, querySpanSize(env))
	checkBounds(env, p, ln)
	return p, ln
}

// writeSpan validates ptr against data's own length, bills it at the
// standard per-import write rate, then writes data into guest memory.
// Used by imports whose length is determined by a querier result rather
// than a caller-supplied argument (read_calldata, read_external_data).
func writeSpan(env *sandbox.Environment, gas config.GasSchedule, ptr int64, data []byte) int64 {
	p, ln := validateSpan(env, ptr, int64(len(data)))
	charge(env, gas.ImportFee+gas.MemoryWritePerByte*uint64(ln))
	must(env.WriteMemory(p, data))
	return int64(ln)
}

// gasCheckpoint is the metering middleware's own hook: n is the
// accumulated flat operator/branch cost since the previous checkpoint,
// computed entirely by internal/cache's instrumentation pass, so it is
// debited directly rather than taxed again with ImportFee.
func gasCheckpoint(env *sandbox.Environment, n int64) {
	if n < 0 {
		panic(errs.NewGenericErr("metering checkpoint carried a negative amount"))
	}
	charge(env, uint64(n))
}

func getSpanSize(env *sandbox.Environment, gas config.GasSchedule) int64 {
	charge(env, gas.ImportFee)
	return querySpanSize(env)
}

func readCalldata(env *sandbox.Environment, gas config.GasSchedule, ptr int64) int64 {
	validatePtr(ptr) // fail fast on a negative pointer before touching the querier
	var data []byte
	must(env.WithQuerier(func(q querier.Querier) { data = q.GetCalldata() }))
	return writeSpan(env, gas, ptr, data)
}

func setReturnData(env *sandbox.Environment, gas config.GasSchedule, ptr, length int64) {
	data := readSpan(env, gas, ptr, length)
	must(env.WithQuerier(func(q querier.Querier) { q.SetReturnData(data) }))
}

// flatQuery wires a no-argument, non-fallible Querier getter behind the
// shared flat ImportFee.
func flatQuery(env *sandbox.Environment, gas config.GasSchedule, get func(querier.Querier) int64) int64 {
	charge(env, gas.ImportFee)
	var v int64
	must(env.WithQuerier(func(q querier.Querier) { v = get(q) }))
	return v
}

// fallibleQuery wires get_execute_time/get_ans_count, whose Querier
// methods return an error when called outside the execute phase; that
// error is a typed host error and propagates unchanged.
func fallibleQuery(env *sandbox.Environment, gas config.GasSchedule, get func(querier.Querier) (int64, error)) int64 {
	charge(env, gas.ImportFee)
	var v int64
	must(env.WithQuerier(func(q querier.Querier) {
		val, err := get(q)
		if err != nil {
			panic(err)
		}
		v = val
	}))
	return v
}

func askExternalData(env *sandbox.Environment, gas config.GasSchedule, eid, did, ptr, length int64) {
	data := readSpan(env, gas, ptr, length)
	must(env.WithQuerier(func(q querier.Querier) {
		if err := q.AskExternalData(eid, did, data); err != nil {
			panic(err)
		}
	}))
}

func getExternalDataStatus(env *sandbox.Environment, gas config.GasSchedule, eid, vid int64) int64 {
	charge(env, gas.ImportFee)
	var v int64
	must(env.WithQuerier(func(q querier.Querier) { v = q.GetExternalDataStatus(eid, vid) }))
	return v
}

func readExternalData(env *sandbox.Environment, gas config.GasSchedule, eid, vid, ptr int64) int64 {
	validatePtr(ptr) // fail fast on a negative pointer before touching the querier
	var data []byte
	must(env.WithQuerier(func(q querier.Querier) {
		d, err := q.GetExternalData(eid, vid)
		if err != nil {
			panic(err)
		}
		data = d
	}))
	return writeSpan(env, gas, ptr, data)
}

func ecvrfVerify(env *sandbox.Environment, gas config.GasSchedule, yPtr, yLen, piPtr, piLen, alphaPtr, alphaLen int64) int64 {
	charge(env, gas.ECVRFFee)
	y := readSpanNoCharge(env, yPtr, yLen)
	pi := readSpanNoCharge(env, piPtr, piLen)
	alpha := readSpanNoCharge(env, alphaPtr, alphaLen)

	ok, err := ecvrf.Verify(y, pi, alpha)
	if err != nil {
		panic(err)
	}
	if ok {
		return 1
	}
	return 0
}
