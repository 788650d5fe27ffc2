// Package errs defines the oraclewasm error taxonomy: one constructor
// and one stable numeric code per kind named in the specification, all
// returning one shared error type, so a host embedding the runtime can
// switch on kind without string-matching a message. This mirrors the teacher's
// small-named-error-struct pattern (config.UnsupportedExtensionError)
// rather than sentinel errors.New values, because callers here need to
// both errors.As and read a code for cross-process/host consumption.
package errs

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable, documented numeric identifier for one taxonomy
// entry, suitable for a host that only wants to switch on kind.
type ErrorCode uint32

const (
	CodeValidationError ErrorCode = iota + 1
	CodeDeserializationError
	CodeSerializationError
	CodeInvalidExportsError
	CodeInvalidImportsError
	CodeBadMemorySectionError
	CodeStackHeightInjectionError

	CodeInstantiationError
	CodeBadEntrySignatureError
	CodeUninitializedContextData

	CodeOutOfGasError
	CodeRuntimeError
	CodeMemoryOutOfBoundError
	CodeSpanTooSmallError
	CodeDataLengthOutOfBound
	CodeConvertTypeOutOfBound

	CodeInvalidPubkeyFormat
	CodeInvalidProofFormat
	CodeInvalidPointOnCurve
	CodeInvalidHashFormat
	CodeGenericErr
)

// OwasmError is satisfied by every taxonomy entry, letting callers
// errors.As against the interface instead of enumerating every
// concrete type.
type OwasmError interface {
	error
	Code() ErrorCode
}

// simple is the shared shape behind nearly every taxonomy entry: a
// code, a fixed label, and an optional contextual message.
type simple struct {
	code  ErrorCode
	label string
	msg   string
}

func (e *simple) Error() string {
	if e.msg == "" {
		return e.label
	}
	return fmt.Sprintf("%s: %s", e.label, e.msg)
}

func (e *simple) Code() ErrorCode { return e.code }

func newSimple(code ErrorCode, label string) func(msg string) *simple {
	return func(msg string) *simple {
		return &simple{code: code, label: label, msg: msg}
	}
}

// Module validation & rewriting.
var (
	newValidationError            = newSimple(CodeValidationError, "validation error")
	newDeserializationError       = newSimple(CodeDeserializationError, "deserialization error")
	newSerializationError         = newSimple(CodeSerializationError, "serialization error")
	newInvalidExportsError        = newSimple(CodeInvalidExportsError, "invalid exports")
	newInvalidImportsError        = newSimple(CodeInvalidImportsError, "invalid imports")
	newBadMemorySectionError      = newSimple(CodeBadMemorySectionError, "bad memory section")
	newStackHeightInjectionError  = newSimple(CodeStackHeightInjectionError, "stack height injection failed")
)

func NewValidationError(msg string) error           { return newValidationError(msg) }
func NewDeserializationError(msg string) error       { return newDeserializationError(msg) }
func NewSerializationError(msg string) error         { return newSerializationError(msg) }
func NewInvalidExportsError(msg string) error        { return newInvalidExportsError(msg) }
func NewInvalidImportsError(msg string) error        { return newInvalidImportsError(msg) }
func NewBadMemorySectionError(msg string) error      { return newBadMemorySectionError(msg) }
func NewStackHeightInjectionError(msg string) error  { return newStackHeightInjectionError(msg) }

// Instantiation.
var (
	newInstantiationError       = newSimple(CodeInstantiationError, "instantiation error")
	newBadEntrySignatureError   = newSimple(CodeBadEntrySignatureError, "bad entry point signature")
	newUninitializedContextData = newSimple(CodeUninitializedContextData, "uninitialized context data")
)

func NewInstantiationError(msg string) error       { return newInstantiationError(msg) }
func NewBadEntrySignatureError(msg string) error   { return newBadEntrySignatureError(msg) }
func NewUninitializedContextData(msg string) error { return newUninitializedContextData(msg) }

// Runtime traps.
var (
	newOutOfGasError           = newSimple(CodeOutOfGasError, "out of gas")
	newRuntimeError             = newSimple(CodeRuntimeError, "runtime error")
	newMemoryOutOfBoundError    = newSimple(CodeMemoryOutOfBoundError, "memory access out of bound")
	newSpanTooSmallError        = newSimple(CodeSpanTooSmallError, "span too small")
	newDataLengthOutOfBound     = newSimple(CodeDataLengthOutOfBound, "data length out of bound")
	newConvertTypeOutOfBound    = newSimple(CodeConvertTypeOutOfBound, "type conversion out of bound")
)

func NewOutOfGasError(msg string) error        { return newOutOfGasError(msg) }
func NewRuntimeError(msg string) error          { return newRuntimeError(msg) }
func NewMemoryOutOfBoundError(msg string) error { return newMemoryOutOfBoundError(msg) }
func NewSpanTooSmallError(msg string) error     { return newSpanTooSmallError(msg) }
func NewDataLengthOutOfBound(msg string) error  { return newDataLengthOutOfBound(msg) }
func NewConvertTypeOutOfBound(msg string) error { return newConvertTypeOutOfBound(msg) }

// Crypto.
var (
	newInvalidPubkeyFormat = newSimple(CodeInvalidPubkeyFormat, "invalid public key format")
	newInvalidProofFormat  = newSimple(CodeInvalidProofFormat, "invalid proof format")
	newInvalidPointOnCurve = newSimple(CodeInvalidPointOnCurve, "invalid point: not on curve")
	newInvalidHashFormat   = newSimple(CodeInvalidHashFormat, "invalid hash format")
	newGenericErr          = newSimple(CodeGenericErr, "generic error")
)

func NewInvalidPubkeyFormat(msg string) error { return newInvalidPubkeyFormat(msg) }
func NewInvalidProofFormat(msg string) error  { return newInvalidProofFormat(msg) }
func NewInvalidPointOnCurve(msg string) error { return newInvalidPointOnCurve(msg) }
func NewInvalidHashFormat(msg string) error   { return newInvalidHashFormat(msg) }
func NewGenericErr(msg string) error          { return newGenericErr(msg) }

// IsOutOfGas reports whether err is, anywhere in its chain, an
// OutOfGasError — the one taxonomy entry the Runner must distinguish
// without a typed host payload (spec.md §4.5 step 6).
func IsOutOfGas(err error) bool {
	var oe OwasmError
	if errors.As(err, &oe) {
		return oe.Code() == CodeOutOfGasError
	}
	return false
}

// AsOwasmError reports whether err carries a typed taxonomy error
// anywhere in its chain, returning it for the Runner's trap-translation
// step (spec.md §4.5 step 6).
func AsOwasmError(err error) (OwasmError, bool) {
	var oe OwasmError
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}
