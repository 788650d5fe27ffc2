// Package testutil provides a configurable in-memory Querier stub for
// the cache, sandbox, host-import, and runner test suites, mirroring
// the teacher's src/testutil/stub.go: plain configurable fields, call
// counters, and per-method error overrides rather than a mocking
// framework.
package testutil

import (
	"fmt"

	"github.com/sandrolain/oraclewasm/internal/querier"
)

// StubQuerier implements querier.Querier with fields a test can set
// directly instead of recording expectations up front.
type StubQuerier struct {
	SpanSize     int64
	Calldata     []byte
	AskCount     int64
	MinCount     int64
	PrepareTime  int64
	ExecuteTime  int64
	AnsCount     int64
	Phase        querier.Phase

	ExternalData   map[externalKey][]byte
	ExternalStatus map[externalKey]int64

	ReturnData []byte

	AskExternalDataErr error
	ExecuteTimeErr     error
	AnsCountErr        error

	AskExternalDataCalls int
	SetReturnDataCalls   int
}

type externalKey struct {
	EID, VID int64
}

// NewStubQuerier creates a prepare-phase stub with sensible defaults.
func NewStubQuerier(calldata []byte) *StubQuerier {
	return &StubQuerier{
		SpanSize:       4096,
		Calldata:       calldata,
		Phase:          querier.PhasePrepare,
		ExternalData:   make(map[externalKey][]byte),
		ExternalStatus: make(map[externalKey]int64),
	}
}

// WithExecutePhase switches the stub into the execute phase, required
// for GetExecuteTime/GetAnsCount to succeed.
func (s *StubQuerier) WithExecutePhase(executeTime, ansCount int64) *StubQuerier {
	s.Phase = querier.PhaseExecute
	s.ExecuteTime = executeTime
	s.AnsCount = ansCount
	return s
}

// SetExternalData records a canned response for a given (eid, vid) pair.
func (s *StubQuerier) SetExternalData(eid, vid, status int64, data []byte) {
	key := externalKey{eid, vid}
	s.ExternalData[key] = data
	s.ExternalStatus[key] = status
}

func (s *StubQuerier) GetSpanSize() int64   { return s.SpanSize }
func (s *StubQuerier) GetCalldata() []byte  { return s.Calldata }
func (s *StubQuerier) SetReturnData(d []byte) {
	s.SetReturnDataCalls++
	s.ReturnData = append([]byte(nil), d...)
}

func (s *StubQuerier) GetAskCount() int64    { return s.AskCount }
func (s *StubQuerier) GetMinCount() int64    { return s.MinCount }
func (s *StubQuerier) GetPrepareTime() int64 { return s.PrepareTime }

func (s *StubQuerier) GetExecuteTime() (int64, error) {
	if s.ExecuteTimeErr != nil {
		return 0, s.ExecuteTimeErr
	}
	if s.Phase != querier.PhaseExecute {
		return 0, fmt.Errorf("testutil: get_execute_time called outside execute phase")
	}
	return s.ExecuteTime, nil
}

func (s *StubQuerier) GetAnsCount() (int64, error) {
	if s.AnsCountErr != nil {
		return 0, s.AnsCountErr
	}
	if s.Phase != querier.PhaseExecute {
		return 0, fmt.Errorf("testutil: get_ans_count called outside execute phase")
	}
	return s.AnsCount, nil
}

func (s *StubQuerier) AskExternalData(eid, did int64, data []byte) error {
	s.AskExternalDataCalls++
	if s.AskExternalDataErr != nil {
		return s.AskExternalDataErr
	}
	if s.Phase != querier.PhasePrepare {
		return fmt.Errorf("testutil: ask_external_data called outside prepare phase")
	}
	s.SetExternalData(eid, did, 0, data)
	return nil
}

func (s *StubQuerier) GetExternalDataStatus(eid, vid int64) int64 {
	return s.ExternalStatus[externalKey{eid, vid}]
}

func (s *StubQuerier) GetExternalData(eid, vid int64) ([]byte, error) {
	data, ok := s.ExternalData[externalKey{eid, vid}]
	if !ok {
		return nil, fmt.Errorf("testutil: no external data for eid=%d vid=%d", eid, vid)
	}
	return data, nil
}
