package wasmbin

import "fmt"

// Decode parses a raw Wasm binary into a structural Module. It performs
// no semantic (type-checking) validation — that is wazero's job, invoked
// separately by the compiler package — only well-formedness of the
// sections it understands.
func Decode(raw []byte) (*Module, error) {
	r := NewReader(raw)

	if r.Len() < 8 {
		return nil, fmt.Errorf("%w: input shorter than header", ErrMalformed)
	}
	magic, err := r.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if magic[0] != 0x00 || magic[1] != 'a' || magic[2] != 's' || magic[3] != 'm' {
		return nil, fmt.Errorf("%w: bad magic number", ErrMalformed)
	}
	ver, err := r.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if ver[0] != 1 || ver[1] != 0 || ver[2] != 0 || ver[3] != 0 {
		return nil, fmt.Errorf("%w: unsupported version", ErrMalformed)
	}

	m := &Module{}
	lastID, lastRank := -1, -1
	for !r.Done() {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		body, err := r.ReadBytes(size)
		if err != nil {
			return nil, err
		}
		if id == SecCustom {
			continue // dropped; see Module doc comment
		}
		rank := 2 * int(id)
		if id == SecDataCount {
			rank = 2*SecElement + 1 // data count sits between element and code
		}
		if rank <= lastRank {
			return nil, fmt.Errorf("%w: sections out of order (id %d after %d)", ErrMalformed, id, lastID)
		}
		lastID, lastRank = int(id), rank

		sr := NewReader(body)
		switch id {
		case SecType:
			if err := decodeTypeSection(sr, m); err != nil {
				return nil, err
			}
		case SecImport:
			if err := decodeImportSection(sr, m); err != nil {
				return nil, err
			}
		case SecFunction:
			if err := decodeFunctionSection(sr, m); err != nil {
				return nil, err
			}
		case SecTable:
			if err := decodeTableSection(sr, m); err != nil {
				return nil, err
			}
		case SecMemory:
			if err := decodeMemorySection(sr, m); err != nil {
				return nil, err
			}
		case SecGlobal:
			if err := decodeGlobalSection(sr, m); err != nil {
				return nil, err
			}
		case SecExport:
			if err := decodeExportSection(sr, m); err != nil {
				return nil, err
			}
		case SecStart:
			idx, err := sr.ReadU32()
			if err != nil {
				return nil, err
			}
			m.Start = &idx
		case SecElement:
			if err := decodeElementSection(sr, m); err != nil {
				return nil, err
			}
		case SecCode:
			if err := decodeCodeSection(sr, m); err != nil {
				return nil, err
			}
		case SecData:
			if err := decodeDataSection(sr, m); err != nil {
				return nil, err
			}
		case SecDataCount:
			n, err := sr.ReadU32()
			if err != nil {
				return nil, err
			}
			m.DataCount = &n
		default:
			return nil, fmt.Errorf("%w: unknown section id %d", ErrMalformed, id)
		}
		if !sr.Done() {
			return nil, fmt.Errorf("%w: trailing bytes in section %d", ErrMalformed, id)
		}
	}
	return m, nil
}

func readValType(r *Reader) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case ValI32, ValI64, ValF32, ValF64, ValFuncRef, ValExternRef:
		return b, nil
	default:
		return 0, fmt.Errorf("%w: unknown value type 0x%x", ErrMalformed, b)
	}
}

func decodeTypeSection(r *Reader, m *Module) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, n)
	for i := range m.Types {
		tag, err := r.ReadByte()
		if err != nil {
			return err
		}
		if tag != 0x60 {
			return fmt.Errorf("%w: expected func type tag 0x60, got 0x%x", ErrMalformed, tag)
		}
		np, err := r.ReadU32()
		if err != nil {
			return err
		}
		params := make([]byte, np)
		for j := range params {
			if params[j], err = readValType(r); err != nil {
				return err
			}
		}
		nr, err := r.ReadU32()
		if err != nil {
			return err
		}
		results := make([]byte, nr)
		for j := range results {
			if results[j], err = readValType(r); err != nil {
				return err
			}
		}
		m.Types[i] = FuncType{Params: params, Results: results}
	}
	return nil
}

func readLimits(r *Reader) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	min, err := r.ReadU32()
	if err != nil {
		return Limits{}, err
	}
	l := Limits{Min: min}
	if flag == 1 {
		max, err := r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		l.Max = &max
	} else if flag != 0 {
		return Limits{}, fmt.Errorf("%w: bad limits flag 0x%x", ErrMalformed, flag)
	}
	return l, nil
}

func decodeImportSection(r *Reader, m *Module) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Imports = make([]Import, n)
	for i := range m.Imports {
		mod, err := r.ReadName()
		if err != nil {
			return err
		}
		field, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		im := Import{Module: mod, Field: field, Kind: kind}
		switch kind {
		case KindFunc:
			im.FuncTypeIdx, err = r.ReadU32()
		case KindTable:
			im.Table.ElemType, err = readValType(r)
			if err == nil {
				im.Table.Limits, err = readLimits(r)
			}
		case KindMemory:
			im.Memory, err = readLimits(r)
		case KindGlobal:
			im.Global.ValType, err = readValType(r)
			if err == nil {
				var mut byte
				mut, err = r.ReadByte()
				im.Global.Mutable = mut == 1
			}
		default:
			return fmt.Errorf("%w: unknown import kind 0x%x", ErrMalformed, kind)
		}
		if err != nil {
			return err
		}
		m.Imports[i] = im
	}
	return nil
}

func decodeFunctionSection(r *Reader, m *Module) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.FuncTypes = make([]uint32, n)
	for i := range m.FuncTypes {
		if m.FuncTypes[i], err = r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func decodeTableSection(r *Reader, m *Module) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Tables = make([]TableType, n)
	for i := range m.Tables {
		et, err := readValType(r)
		if err != nil {
			return err
		}
		lim, err := readLimits(r)
		if err != nil {
			return err
		}
		m.Tables[i] = TableType{ElemType: et, Limits: lim}
	}
	return nil
}

func decodeMemorySection(r *Reader, m *Module) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Mems = make([]Limits, n)
	for i := range m.Mems {
		if m.Mems[i], err = readLimits(r); err != nil {
			return err
		}
	}
	return nil
}

// readInitExpr consumes a constant expression (a handful of opcodes
// terminated by 0x0B) and returns its raw encoding, 0x0B included.
func readInitExpr(r *Reader) ([]byte, error) {
	start := r.Pos()
	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if op == 0x0B {
			return append([]byte(nil), r.Slice(start, r.Pos())...), nil
		}
		if err := SkipImmediate(r, op); err != nil {
			return nil, err
		}
	}
}

func decodeGlobalSection(r *Reader, m *Module) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Globals = make([]Global, n)
	for i := range m.Globals {
		vt, err := readValType(r)
		if err != nil {
			return err
		}
		mutB, err := r.ReadByte()
		if err != nil {
			return err
		}
		init, err := readInitExpr(r)
		if err != nil {
			return err
		}
		m.Globals[i] = Global{Type: GlobalType{ValType: vt, Mutable: mutB == 1}, Init: init}
	}
	return nil
}

func decodeExportSection(r *Reader, m *Module) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Exports = make([]Export, n)
	for i := range m.Exports {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Exports[i] = Export{Name: name, Kind: kind, Idx: idx}
	}
	return nil
}

func decodeElementSection(r *Reader, m *Module) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Elems = make([]ElemSegment, n)
	for i := range m.Elems {
		flag, err := r.ReadU32()
		if err != nil {
			return err
		}
		seg := ElemSegment{Flag: flag}
		switch flag {
		case 0:
			if seg.Offset, err = readInitExpr(r); err != nil {
				return err
			}
			if seg.FuncIdxs, err = readFuncIdxVec(r); err != nil {
				return err
			}
		case 1:
			if seg.ElemKind, err = r.ReadByte(); err != nil {
				return err
			}
			if seg.FuncIdxs, err = readFuncIdxVec(r); err != nil {
				return err
			}
		case 2:
			if seg.TableIdx, err = r.ReadU32(); err != nil {
				return err
			}
			if seg.Offset, err = readInitExpr(r); err != nil {
				return err
			}
			if seg.ElemKind, err = r.ReadByte(); err != nil {
				return err
			}
			if seg.FuncIdxs, err = readFuncIdxVec(r); err != nil {
				return err
			}
		case 3:
			if seg.ElemKind, err = r.ReadByte(); err != nil {
				return err
			}
			if seg.FuncIdxs, err = readFuncIdxVec(r); err != nil {
				return err
			}
		case 4:
			if seg.Offset, err = readInitExpr(r); err != nil {
				return err
			}
			if seg.Exprs, err = readExprVec(r); err != nil {
				return err
			}
		case 5:
			if seg.RefType, err = readValType(r); err != nil {
				return err
			}
			if seg.Exprs, err = readExprVec(r); err != nil {
				return err
			}
		case 6:
			if seg.TableIdx, err = r.ReadU32(); err != nil {
				return err
			}
			if seg.Offset, err = readInitExpr(r); err != nil {
				return err
			}
			if seg.RefType, err = readValType(r); err != nil {
				return err
			}
			if seg.Exprs, err = readExprVec(r); err != nil {
				return err
			}
		case 7:
			if seg.RefType, err = readValType(r); err != nil {
				return err
			}
			if seg.Exprs, err = readExprVec(r); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown element segment flag %d", ErrMalformed, flag)
		}
		m.Elems[i] = seg
	}
	return nil
}

func readFuncIdxVec(r *Reader) ([]uint32, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		if out[i], err = r.ReadU32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readExprVec(r *Reader) ([][]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, n)
	for i := range out {
		if out[i], err = readInitExpr(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeCodeSection(r *Reader, m *Module) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Code = make([]Code, n)
	for i := range m.Code {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		body, err := r.ReadBytes(size)
		if err != nil {
			return err
		}
		br := NewReader(body)
		nl, err := br.ReadU32()
		if err != nil {
			return err
		}
		locals := make([]LocalEntry, nl)
		for j := range locals {
			cnt, err := br.ReadU32()
			if err != nil {
				return err
			}
			vt, err := readValType(br)
			if err != nil {
				return err
			}
			locals[j] = LocalEntry{Count: cnt, ValType: vt}
		}
		m.Code[i] = Code{Locals: locals, Body: append([]byte(nil), br.Remaining()...)}
	}
	return nil
}

func decodeDataSection(r *Reader, m *Module) error {
	n, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Datas = make([]DataSegment, n)
	for i := range m.Datas {
		start := r.Pos()
		flag, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flag == 0 {
			if _, err := readInitExpr(r); err != nil {
				return err
			}
		} else if flag == 2 {
			if _, err := r.ReadU32(); err != nil {
				return err
			}
			if _, err := readInitExpr(r); err != nil {
				return err
			}
		}
		// flag == 1: passive, no offset
		n2, err := r.ReadU32()
		if err != nil {
			return err
		}
		if _, err := r.ReadBytes(n2); err != nil {
			return err
		}
		m.Datas[i] = DataSegment{Raw: append([]byte(nil), r.Slice(start, r.Pos())...)}
	}
	return nil
}
