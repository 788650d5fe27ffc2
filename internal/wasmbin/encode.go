package wasmbin

// Encode serializes a Module back into a well-formed Wasm binary. It is
// the inverse of Decode, re-emitting exactly the sections Decode keeps;
// custom sections (name section included) are not reproduced.
func Encode(m *Module) []byte {
	w := NewWriter()
	w.WriteByte(0x00)
	w.WriteByte('a')
	w.WriteByte('s')
	w.WriteByte('m')
	w.WriteByte(1)
	w.WriteByte(0)
	w.WriteByte(0)
	w.WriteByte(0)

	if len(m.Types) > 0 {
		w.WriteSection(SecType, encodeTypeSection(m))
	}
	if len(m.Imports) > 0 {
		w.WriteSection(SecImport, encodeImportSection(m))
	}
	if len(m.FuncTypes) > 0 {
		w.WriteSection(SecFunction, encodeFunctionSection(m))
	}
	if len(m.Tables) > 0 {
		w.WriteSection(SecTable, encodeTableSection(m))
	}
	if len(m.Mems) > 0 {
		w.WriteSection(SecMemory, encodeMemorySection(m))
	}
	if len(m.Globals) > 0 {
		w.WriteSection(SecGlobal, encodeGlobalSection(m))
	}
	if len(m.Exports) > 0 {
		w.WriteSection(SecExport, encodeExportSection(m))
	}
	if m.Start != nil {
		sw := NewWriter()
		sw.WriteU32(*m.Start)
		w.WriteSection(SecStart, sw.Bytes())
	}
	if len(m.Elems) > 0 {
		w.WriteSection(SecElement, encodeElementSection(m))
	}
	if m.DataCount != nil {
		dw := NewWriter()
		dw.WriteU32(*m.DataCount)
		w.WriteSection(SecDataCount, dw.Bytes())
	}
	if len(m.Code) > 0 {
		w.WriteSection(SecCode, encodeCodeSection(m))
	}
	if len(m.Datas) > 0 {
		w.WriteSection(SecData, encodeDataSection(m))
	}
	return w.Bytes()
}

func writeValType(w *Writer, b byte) { w.WriteByte(b) }

func writeLimits(w *Writer, l Limits) {
	if l.Max != nil {
		w.WriteByte(1)
		w.WriteU32(l.Min)
		w.WriteU32(*l.Max)
	} else {
		w.WriteByte(0)
		w.WriteU32(l.Min)
	}
}

func encodeTypeSection(m *Module) []byte {
	w := NewWriter()
	w.WriteU32(uint32(len(m.Types)))
	for _, t := range m.Types {
		w.WriteByte(0x60)
		w.WriteU32(uint32(len(t.Params)))
		for _, p := range t.Params {
			writeValType(w, p)
		}
		w.WriteU32(uint32(len(t.Results)))
		for _, r := range t.Results {
			writeValType(w, r)
		}
	}
	return w.Bytes()
}

func encodeImportSection(m *Module) []byte {
	w := NewWriter()
	w.WriteU32(uint32(len(m.Imports)))
	for _, im := range m.Imports {
		w.WriteName(im.Module)
		w.WriteName(im.Field)
		w.WriteByte(im.Kind)
		switch im.Kind {
		case KindFunc:
			w.WriteU32(im.FuncTypeIdx)
		case KindTable:
			writeValType(w, im.Table.ElemType)
			writeLimits(w, im.Table.Limits)
		case KindMemory:
			writeLimits(w, im.Memory)
		case KindGlobal:
			writeValType(w, im.Global.ValType)
			if im.Global.Mutable {
				w.WriteByte(1)
			} else {
				w.WriteByte(0)
			}
		}
	}
	return w.Bytes()
}

func encodeFunctionSection(m *Module) []byte {
	w := NewWriter()
	w.WriteU32(uint32(len(m.FuncTypes)))
	for _, ti := range m.FuncTypes {
		w.WriteU32(ti)
	}
	return w.Bytes()
}

func encodeTableSection(m *Module) []byte {
	w := NewWriter()
	w.WriteU32(uint32(len(m.Tables)))
	for _, t := range m.Tables {
		writeValType(w, t.ElemType)
		writeLimits(w, t.Limits)
	}
	return w.Bytes()
}

func encodeMemorySection(m *Module) []byte {
	w := NewWriter()
	w.WriteU32(uint32(len(m.Mems)))
	for _, mem := range m.Mems {
		writeLimits(w, mem)
	}
	return w.Bytes()
}

func encodeGlobalSection(m *Module) []byte {
	w := NewWriter()
	w.WriteU32(uint32(len(m.Globals)))
	for _, g := range m.Globals {
		writeValType(w, g.Type.ValType)
		if g.Type.Mutable {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
		w.WriteBytes(g.Init)
	}
	return w.Bytes()
}

func encodeExportSection(m *Module) []byte {
	w := NewWriter()
	w.WriteU32(uint32(len(m.Exports)))
	for _, e := range m.Exports {
		w.WriteName(e.Name)
		w.WriteByte(e.Kind)
		w.WriteU32(e.Idx)
	}
	return w.Bytes()
}

func encodeElementSection(m *Module) []byte {
	w := NewWriter()
	w.WriteU32(uint32(len(m.Elems)))
	for _, seg := range m.Elems {
		w.WriteU32(seg.Flag)
		switch seg.Flag {
		case 0:
			w.WriteBytes(seg.Offset)
			writeFuncIdxVec(w, seg.FuncIdxs)
		case 1:
			w.WriteByte(seg.ElemKind)
			writeFuncIdxVec(w, seg.FuncIdxs)
		case 2:
			w.WriteU32(seg.TableIdx)
			w.WriteBytes(seg.Offset)
			w.WriteByte(seg.ElemKind)
			writeFuncIdxVec(w, seg.FuncIdxs)
		case 3:
			w.WriteByte(seg.ElemKind)
			writeFuncIdxVec(w, seg.FuncIdxs)
		case 4:
			w.WriteBytes(seg.Offset)
			writeExprVec(w, seg.Exprs)
		case 5:
			writeValType(w, seg.RefType)
			writeExprVec(w, seg.Exprs)
		case 6:
			w.WriteU32(seg.TableIdx)
			w.WriteBytes(seg.Offset)
			writeValType(w, seg.RefType)
			writeExprVec(w, seg.Exprs)
		case 7:
			writeValType(w, seg.RefType)
			writeExprVec(w, seg.Exprs)
		}
	}
	return w.Bytes()
}

func writeFuncIdxVec(w *Writer, idxs []uint32) {
	w.WriteU32(uint32(len(idxs)))
	for _, i := range idxs {
		w.WriteU32(i)
	}
}

func writeExprVec(w *Writer, exprs [][]byte) {
	w.WriteU32(uint32(len(exprs)))
	for _, e := range exprs {
		w.WriteBytes(e)
	}
}

func encodeCodeSection(m *Module) []byte {
	w := NewWriter()
	w.WriteU32(uint32(len(m.Code)))
	for _, c := range m.Code {
		bw := NewWriter()
		bw.WriteU32(uint32(len(c.Locals)))
		for _, l := range c.Locals {
			bw.WriteU32(l.Count)
			writeValType(bw, l.ValType)
		}
		bw.WriteBytes(c.Body)
		w.WriteU32(uint32(bw.Len()))
		w.WriteBytes(bw.Bytes())
	}
	return w.Bytes()
}

func encodeDataSection(m *Module) []byte {
	w := NewWriter()
	w.WriteU32(uint32(len(m.Datas)))
	for _, d := range m.Datas {
		w.WriteBytes(d.Raw)
	}
	return w.Bytes()
}
