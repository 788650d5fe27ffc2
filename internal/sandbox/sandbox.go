// Package sandbox implements the Sandbox Environment: the shared,
// read-write-locked handle every host-import closure goes through,
// grounded on spec.md §4.3 and the two-phase-init note in spec.md §9
// ("Environment{instance: None} -> publish pointer -> invoke -> drop").
// Concurrency is modeled with sync.RWMutex, mirroring the teacher's
// sync.Mutex-guarded WasmRunner.
package sandbox

import (
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/sandrolain/oraclewasm/internal/errs"
	"github.com/sandrolain/oraclewasm/internal/querier"
)

// Environment is created fresh for each Runner invocation and wraps one
// Querier and, once published, one live Wasm instance. It must not be
// reused across invocations.
type Environment struct {
	mu sync.RWMutex

	q        querier.Querier
	instance api.Module // nil until SetInstance is called
	gasLeft  uint64
}

// New constructs an Environment bound to q, with no instance published
// and gas uninitialized; the Runner sets both before the first call.
func New(q querier.Querier) *Environment {
	return &Environment{q: q}
}

// SetInstance publishes the live instance pointer and seeds the gas
// counter. It must be called exactly once, after the instance is
// constructed and before any host import can run.
func (e *Environment) SetInstance(instance api.Module, gasLimit uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.instance != nil {
		return errs.NewInstantiationError("sandbox: SetInstance called more than once")
	}
	e.instance = instance
	e.gasLeft = gasLimit
	return nil
}

// requireInstance reports whether the two-phase init has completed; the
// caller must hold e.mu in either mode.
func (e *Environment) requireInstance() error {
	if e.instance == nil {
		return errs.NewUninitializedContextData("sandbox: accessed before SetInstance")
	}
	return nil
}

// WithQuerier runs f with read-only access to the Querier.
func (e *Environment) WithQuerier(f func(q querier.Querier)) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.requireInstance(); err != nil {
		return err
	}
	f(e.q)
	return nil
}

// Memory returns the active instance's single exported linear memory.
func (e *Environment) Memory() (api.Memory, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.requireInstance(); err != nil {
		return nil, err
	}
	mem := e.instance.Memory()
	if mem == nil {
		return nil, errs.NewBadMemorySectionError("sandbox: instance exports no memory")
	}
	return mem, nil
}

// ReadMemory reads length bytes at ptr, bounds-checked by the underlying
// wazero memory view.
func (e *Environment) ReadMemory(ptr, length uint32) ([]byte, error) {
	mem, err := e.Memory()
	if err != nil {
		return nil, err
	}
	data, ok := mem.Read(ptr, length)
	if !ok {
		return nil, errs.NewMemoryOutOfBoundError("sandbox: read out of bounds")
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteMemory writes data at ptr, bounds-checked by the underlying
// wazero memory view.
func (e *Environment) WriteMemory(ptr uint32, data []byte) error {
	mem, err := e.Memory()
	if err != nil {
		return err
	}
	if !mem.Write(ptr, data) {
		return errs.NewMemoryOutOfBoundError("sandbox: write out of bounds")
	}
	return nil
}

// GasLeft returns the current value of the metering counter.
func (e *Environment) GasLeft() (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.requireInstance(); err != nil {
		return 0, err
	}
	return e.gasLeft, nil
}

// SetGasLeft overwrites the metering counter.
func (e *Environment) SetGasLeft(n uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInstance(); err != nil {
		return err
	}
	e.gasLeft = n
	return nil
}

// DecreaseGasLeft debits n from the metering counter. On underflow the
// counter is left unchanged and OutOfGasError is returned.
func (e *Environment) DecreaseGasLeft(n uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInstance(); err != nil {
		return err
	}
	if n > e.gasLeft {
		return errs.NewOutOfGasError("sandbox: gas counter underflow")
	}
	e.gasLeft -= n
	return nil
}
