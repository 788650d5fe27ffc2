package wasmbin

// Section identifiers. The Wasm binary format requires sections in
// ascending id order, except that the data count section sits between
// the element and code sections.
const (
	SecCustom    = 0
	SecType      = 1
	SecImport    = 2
	SecFunction  = 3
	SecTable     = 4
	SecMemory    = 5
	SecGlobal    = 6
	SecExport    = 7
	SecStart     = 8
	SecElement   = 9
	SecCode      = 10
	SecData      = 11
	SecDataCount = 12
)

// Value types, as encoded in the binary format.
const (
	ValI32       = 0x7F
	ValI64       = 0x7E
	ValF32       = 0x7D
	ValF64       = 0x7C
	ValFuncRef   = 0x70
	ValExternRef = 0x6F
)

// Import/export kinds.
const (
	KindFunc   = 0x00
	KindTable  = 0x01
	KindMemory = 0x02
	KindGlobal = 0x03
)

const (
	Magic   = 0x6d736100 // "\0asm"
	Version = 1
)

// FuncType is a function signature: a vector of parameter and result types.
type FuncType struct {
	Params  []byte
	Results []byte
}

// IsNullary reports whether the signature is `() -> ()`.
func (f FuncType) IsNullary() bool { return len(f.Params) == 0 && len(f.Results) == 0 }

// Limits describes a table or memory's page/element bounds.
type Limits struct {
	Min uint32
	Max *uint32
}

type TableType struct {
	ElemType byte
	Limits   Limits
}

type GlobalType struct {
	ValType byte
	Mutable bool
}

// Import describes one entry of the import section. Exactly one of the
// Type-specific fields is meaningful, selected by Kind.
type Import struct {
	Module string
	Field  string
	Kind   byte

	FuncTypeIdx uint32
	Table       TableType
	Memory      Limits
	Global      GlobalType
}

// Global is a module-defined global: its type plus a raw constant
// initializer expression (opcode stream ending in 0x0B).
type Global struct {
	Type GlobalType
	Init []byte
}

// Export is one entry of the export section.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// ElemSegment models the variants defined by the bulk-memory proposal.
// FuncIdxs holds direct function-index lists (flags 0,1,2,3); Exprs
// holds raw init-expression bytes (flags 4,5,6,7), each ending in 0x0B,
// used for reference-typed segments (commonly ref.func/ref.null).
type ElemSegment struct {
	Flag     uint32
	TableIdx uint32
	Offset   []byte // active segments only
	ElemKind byte
	RefType  byte
	FuncIdxs []uint32
	Exprs    [][]byte
}

// Code is one entry of the code section: a function's locals and body.
type Code struct {
	Locals []LocalEntry
	Body   []byte // instruction stream, ending in the function's closing 0x0B
}

type LocalEntry struct {
	Count   uint32
	ValType byte
}

// DataSegment is kept opaque; the compiler never needs to inspect data contents.
type DataSegment struct {
	Raw []byte
}

// Module is the decoded, structurally-typed form of a Wasm binary. Custom
// sections (including the name section) are intentionally dropped: the
// compiler only round-trips the sections that determine the module's
// behavior and ABI.
type Module struct {
	Types     []FuncType
	Imports   []Import
	FuncTypes []uint32 // type index per locally-defined function
	Tables    []TableType
	Mems      []Limits
	Globals   []Global
	Exports   []Export
	Start     *uint32
	Elems     []ElemSegment
	Code      []Code
	DataCount *uint32
	Datas     []DataSegment
}

// NumImportedFuncs returns how many entries of the import section are functions.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, im := range m.Imports {
		if im.Kind == KindFunc {
			n++
		}
	}
	return n
}

// FuncSignature resolves the FuncType of the function at the given index
// in the combined (imports-then-locals) function index space.
func (m *Module) FuncSignature(idx uint32) (FuncType, bool) {
	n := uint32(0)
	for _, im := range m.Imports {
		if im.Kind != KindFunc {
			continue
		}
		if n == idx {
			if int(im.FuncTypeIdx) >= len(m.Types) {
				return FuncType{}, false
			}
			return m.Types[im.FuncTypeIdx], true
		}
		n++
	}
	local := idx - n
	if local >= uint32(len(m.FuncTypes)) {
		return FuncType{}, false
	}
	ti := m.FuncTypes[local]
	if int(ti) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[ti], true
}
