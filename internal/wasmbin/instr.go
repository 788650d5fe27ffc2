package wasmbin

import "fmt"

// Control-flow and call opcodes the compiler's instrumentation passes
// need to recognize explicitly. Every other opcode is immaterial to
// stack-height/gas instrumentation and is only skipped correctly so the
// instruction stream can be walked.
const (
	OpUnreachable = 0x00
	OpNop         = 0x01
	OpBlock       = 0x02
	OpLoop        = 0x03
	OpIf          = 0x04
	OpElse        = 0x05
	OpEnd         = 0x0B
	OpBr          = 0x0C
	OpBrIf        = 0x0D
	OpBrTable     = 0x0E
	OpReturn      = 0x0F
	OpCall        = 0x10
	OpCallIndirect = 0x11
	OpRefFunc     = 0xD2

	PrefixMisc   = 0xFC
	PrefixSIMD   = 0xFD
	PrefixAtomic = 0xFE
)

// IsBranchOrCall reports whether op is one of the control-transfer
// opcodes the gas schedule charges at the higher, "branch" rate, and
// that the metering injector treats as a checkpoint boundary.
func IsBranchOrCall(op byte) bool {
	switch op {
	case OpLoop, OpEnd, OpElse, OpBr, OpBrIf, OpBrTable, OpCall, OpCallIndirect, OpReturn:
		return true
	default:
		return false
	}
}

// readBlockType consumes a blocktype immediate (0x40, a value type, or
// a signed LEB128 type index) without interpreting it further.
func readBlockType(r *Reader) error {
	_, err := r.ReadI64()
	return err
}

// SkipImmediate advances r past the immediate operand(s) of the
// instruction whose opcode was already consumed, without interpreting
// their values. It covers the MVP instruction set plus sign-extension,
// reference-types, bulk-memory and saturating-truncation opcodes
// (the ones contemporary toolchains emit by default); SIMD and
// threads/atomics opcodes are rejected, matching the non-determinism
// non-goal.
func SkipImmediate(r *Reader, op byte) error {
	switch op {
	case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn,
		0x1A, 0x1B, // drop, select
		0xD1, // ref.is_null
		// comparison / arithmetic / conversion opcodes carry no immediate
		0x45, 0x46, 0x47, 0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F,
		0x50, 0x51, 0x52, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5A,
		0x5B, 0x5C, 0x5D, 0x5E, 0x5F, 0x60, 0x61, 0x62, 0x63, 0x64, 0x65,
		0x66, 0x67, 0x68, 0x69, 0x6A, 0x6B, 0x6C, 0x6D, 0x6E, 0x6F, 0x70,
		0x71, 0x72, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7A, 0x7B,
		0x7C, 0x7D, 0x7E, 0x7F, 0x80, 0x81, 0x82, 0x83, 0x84, 0x85, 0x86,
		0x87, 0x88, 0x89, 0x8A, 0x8B, 0x8C, 0x8D, 0x8E, 0x8F, 0x90, 0x91,
		0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99, 0x9A, 0x9B, 0x9C,
		0x9D, 0x9E, 0x9F, 0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6, 0xA7,
		0xA8, 0xA9, 0xAA, 0xAB, 0xAC, 0xAD, 0xAE, 0xAF, 0xB0, 0xB1, 0xB2,
		0xB3, 0xB4, 0xB5, 0xB6, 0xB7, 0xB8, 0xB9, 0xBA, 0xBB, 0xBC, 0xBD,
		0xBE, 0xBF, 0xC0, 0xC1, 0xC2, 0xC3, 0xC4:
		return nil

	case OpBlock, OpLoop, OpIf:
		return readBlockType(r)

	case OpBr, OpBrIf:
		_, err := r.ReadU32()
		return err

	case OpBrTable:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := r.ReadU32(); err != nil {
				return err
			}
		}
		_, err = r.ReadU32() // default label
		return err

	case OpCall:
		_, err := r.ReadU32()
		return err

	case OpCallIndirect:
		if _, err := r.ReadU32(); err != nil { // type index
			return err
		}
		_, err := r.ReadU32() // table index
		return err

	case 0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26: // local/global/table get/set/tee
		_, err := r.ReadU32()
		return err

	case 0x28, 0x29, 0x2A, 0x2B, 0x2C, 0x2D, 0x2E, 0x2F, 0x30, 0x31, 0x32,
		0x33, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39, 0x3A, 0x3B, 0x3C, 0x3D, 0x3E:
		if _, err := r.ReadU32(); err != nil { // align
			return err
		}
		_, err := r.ReadU32() // offset
		return err

	case 0x3F, 0x40: // memory.size, memory.grow
		_, err := r.ReadU32()
		return err

	case 0x41: // i32.const
		_, err := r.ReadI32()
		return err
	case 0x42: // i64.const
		_, err := r.ReadI64()
		return err
	case 0x43: // f32.const
		_, err := r.ReadBytes(4)
		return err
	case 0x44: // f64.const
		_, err := r.ReadBytes(8)
		return err

	case 0x1C: // select t*
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := readValType(r); err != nil {
				return err
			}
		}
		return nil

	case 0xD0: // ref.null
		_, err := readValType(r)
		return err

	case OpRefFunc:
		_, err := r.ReadU32()
		return err

	case PrefixMisc:
		return skipMisc(r)

	case PrefixSIMD:
		return fmt.Errorf("%w: SIMD opcodes are not permitted", ErrMalformed)

	case PrefixAtomic:
		return fmt.Errorf("%w: thread/atomic opcodes are not permitted", ErrMalformed)

	default:
		return fmt.Errorf("%w: unknown opcode 0x%02x", ErrMalformed, op)
	}
}

// skipMisc handles the 0xFC-prefixed sub-opcodes: saturating truncation
// (no immediate) and bulk-memory/table operations.
func skipMisc(r *Reader) error {
	sub, err := r.ReadU32()
	if err != nil {
		return err
	}
	switch sub {
	case 0, 1, 2, 3, 4, 5, 6, 7: // trunc_sat variants
		return nil
	case 8: // memory.init dataidx, memidx
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		_, err := r.ReadU32()
		return err
	case 9: // data.drop dataidx
		_, err := r.ReadU32()
		return err
	case 10: // memory.copy dst, src
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		_, err := r.ReadU32()
		return err
	case 11: // memory.fill memidx
		_, err := r.ReadU32()
		return err
	case 12: // table.init elemidx, tableidx
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		_, err := r.ReadU32()
		return err
	case 13: // elem.drop elemidx
		_, err := r.ReadU32()
		return err
	case 14: // table.copy dst, src
		if _, err := r.ReadU32(); err != nil {
			return err
		}
		_, err := r.ReadU32()
		return err
	case 15, 16, 17: // table.grow, table.size, table.fill
		_, err := r.ReadU32()
		return err
	default:
		return fmt.Errorf("%w: unknown 0xFC sub-opcode %d", ErrMalformed, sub)
	}
}
