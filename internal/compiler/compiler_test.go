package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sandrolain/oraclewasm/internal/compiler"
	"github.com/sandrolain/oraclewasm/internal/config"
	"github.com/sandrolain/oraclewasm/internal/errs"
	"github.com/sandrolain/oraclewasm/internal/wasmbin"
)

// nullaryModule returns a minimal module exporting prepare/execute, each
// `() -> ()`, with one memory of the given initial size and no imports.
// Tests mutate the returned struct to introduce the violation under test.
func nullaryModule(memPages uint32) *wasmbin.Module {
	return &wasmbin.Module{
		Types:     []wasmbin.FuncType{{}},
		FuncTypes: []uint32{0, 0},
		Mems:      []wasmbin.Limits{{Min: memPages}},
		Exports: []wasmbin.Export{
			{Name: "prepare", Kind: wasmbin.KindFunc, Idx: 0},
			{Name: "execute", Kind: wasmbin.KindFunc, Idx: 1},
		},
		Code: []wasmbin.Code{
			{Body: []byte{wasmbin.OpEnd}},
			{Body: []byte{wasmbin.OpEnd}},
		},
	}
}

func TestCompileAccepts(t *testing.T) {
	raw := wasmbin.Encode(nullaryModule(1))
	out, err := compiler.Compile(config.Default(), raw)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	m, err := wasmbin.Decode(out)
	require.NoError(t, err)
	require.Len(t, m.Mems, 1)
	require.NotNil(t, m.Mems[0].Max)
	require.Equal(t, uint32(512), *m.Mems[0].Max)
	require.Len(t, m.Globals, 1, "stack-height guard global must be injected")
}

func TestCompileRejectsTwoMemories(t *testing.T) {
	m := nullaryModule(1)
	m.Mems = append(m.Mems, wasmbin.Limits{Min: 1})
	raw := wasmbin.Encode(m)

	_, err := compiler.Compile(config.Default(), raw)
	require.Error(t, err)
	oe, ok := errs.AsOwasmError(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeValidationError, oe.Code())
}

func TestCompileRejectsOversizedMemory(t *testing.T) {
	raw := wasmbin.Encode(nullaryModule(513))

	_, err := compiler.Compile(config.Default(), raw)
	require.Error(t, err)
	oe, ok := errs.AsOwasmError(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeBadMemorySectionError, oe.Code())
}

func TestCompileRejectsUnknownImport(t *testing.T) {
	m := &wasmbin.Module{
		Types: []wasmbin.FuncType{{}},
		Imports: []wasmbin.Import{
			{Module: "env", Field: "beeb", Kind: wasmbin.KindFunc, FuncTypeIdx: 0},
		},
		FuncTypes: []uint32{0, 0},
		Mems:      []wasmbin.Limits{{Min: 1}},
		Exports: []wasmbin.Export{
			{Name: "prepare", Kind: wasmbin.KindFunc, Idx: 1},
			{Name: "execute", Kind: wasmbin.KindFunc, Idx: 2},
		},
		Code: []wasmbin.Code{
			{Body: []byte{wasmbin.OpEnd}},
			{Body: []byte{wasmbin.OpEnd}},
		},
	}
	raw := wasmbin.Encode(m)

	_, err := compiler.Compile(config.Default(), raw)
	require.Error(t, err)
	oe, ok := errs.AsOwasmError(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeInvalidImportsError, oe.Code())
}

func TestCompileRejectsMissingPrepareExport(t *testing.T) {
	m := &wasmbin.Module{
		Types:     []wasmbin.FuncType{{}},
		FuncTypes: []uint32{0},
		Mems:      []wasmbin.Limits{{Min: 1}},
		Exports: []wasmbin.Export{
			{Name: "execute", Kind: wasmbin.KindFunc, Idx: 0},
		},
		Code: []wasmbin.Code{
			{Body: []byte{wasmbin.OpEnd}},
		},
	}
	raw := wasmbin.Encode(m)

	_, err := compiler.Compile(config.Default(), raw)
	require.Error(t, err)
	oe, ok := errs.AsOwasmError(err)
	require.True(t, ok)
	require.Equal(t, errs.CodeInvalidExportsError, oe.Code())
}
