// Package querier defines the host contract the sandbox consults for
// everything outside the Wasm instance's own linear memory: calldata,
// execution-phase counters, and external-data lookups (spec.md §6).
package querier

// Phase identifies which of the two Wasm entry points is running;
// several Querier methods are only valid during one of them.
type Phase int

const (
	PhasePrepare Phase = iota
	PhaseExecute
)

// Querier is implemented by the host embedding the runtime. The core
// never performs I/O itself; every externally observable effect of a
// script crosses this boundary.
type Querier interface {
	GetSpanSize() int64
	GetCalldata() []byte
	SetReturnData(data []byte)

	GetAskCount() int64
	GetMinCount() int64
	GetPrepareTime() int64

	// GetExecuteTime and GetAnsCount must fail when called outside the
	// execute phase.
	GetExecuteTime() (int64, error)
	GetAnsCount() (int64, error)

	// AskExternalData is valid only during the prepare phase.
	AskExternalData(eid, did int64, data []byte) error

	GetExternalDataStatus(eid, vid int64) int64
	GetExternalData(eid, vid int64) ([]byte, error)
}
