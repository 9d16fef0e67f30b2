// Package isa is the instruction-set description shared by everything that
// walks V4 bytecode: the relocation engine, the reference VM and the
// disassembler.
//
// The operand width of every opcode lives here and nowhere else. A walker that
// meets an opcode missing from this table cannot stay aligned, so callers treat
// UnknownOpcodeError as fatal for the buffer being walked. Bump Version whenever
// an opcode or width changes.
package isa

import "fmt"

// Version identifies the opcode table revision.
const Version = 2

// Opcode is one bytecode instruction byte.
type Opcode byte

const (
	// ========================================================================
	// Stack (0x00-0x0F)
	// ========================================================================

	OpLit  Opcode = 0x00 // Push literal: LIT <value:i32>
	OpDup  Opcode = 0x01 // a -- a a
	OpDrop Opcode = 0x02 // a --
	OpSwap Opcode = 0x03 // a b -- b a
	OpOver Opcode = 0x04 // a b -- a b a
	OpRot  Opcode = 0x05 // a b c -- b c a
	OpNip  Opcode = 0x06 // a b -- b

	// ========================================================================
	// Arithmetic (0x10-0x1F)
	// ========================================================================

	OpAdd Opcode = 0x10
	OpSub Opcode = 0x11
	OpMul Opcode = 0x12
	OpDiv Opcode = 0x13
	OpMod Opcode = 0x14
	OpNeg Opcode = 0x15
	OpInc Opcode = 0x16
	OpDec Opcode = 0x17

	// ========================================================================
	// Comparison (0x20-0x2F), true is -1
	// ========================================================================

	OpEq Opcode = 0x20
	OpNe Opcode = 0x21
	OpLt Opcode = 0x22
	OpLe Opcode = 0x23
	OpGt Opcode = 0x24
	OpGe Opcode = 0x25

	// ========================================================================
	// Bitwise (0x30-0x3F)
	// ========================================================================

	OpAnd    Opcode = 0x30
	OpOr     Opcode = 0x31
	OpXor    Opcode = 0x32
	OpInvert Opcode = 0x33
	OpShl    Opcode = 0x34
	OpShr    Opcode = 0x35

	// ========================================================================
	// Control flow (0x40-0x4F), offsets relative to the next instruction
	// ========================================================================

	OpJmp    Opcode = 0x40 // JMP <offset:i16>
	OpJz     Opcode = 0x41 // JZ <offset:i16>, pops condition
	OpJnz    Opcode = 0x42 // JNZ <offset:i16>, pops condition
	OpToR    Opcode = 0x48 // >R
	OpFromR  Opcode = 0x49 // R>
	OpRFetch Opcode = 0x4A // R@

	// ========================================================================
	// Words (0x50-0x5F)
	// ========================================================================

	OpCall Opcode = 0x50 // CALL <word:u16>
	OpRet  Opcode = 0x51

	// ========================================================================
	// System (0x60-0x6F)
	// ========================================================================

	OpSys Opcode = 0x60 // SYS <id:u8> <args:15>

	// ========================================================================
	// Memory and short literals (0x70-0x7F)
	// ========================================================================

	OpLoad    Opcode = 0x70 // addr -- u32
	OpStore   Opcode = 0x71 // value addr --
	OpLoad8   Opcode = 0x72
	OpStore8  Opcode = 0x73
	OpLoad16  Opcode = 0x74
	OpStore16 Opcode = 0x75
	OpLitU8   Opcode = 0x76 // LIT_U8 <value:u8>
	OpLitI16  Opcode = 0x77 // LIT_I16 <value:i16>
	OpLit0    Opcode = 0x78
	OpLit1    Opcode = 0x79
	OpLitN1   Opcode = 0x7A
)

// SysOperandLen is the fixed SYS operand size: one id byte followed by
// SysArgLen argument bytes.
const (
	SysOperandLen = 16
	SysArgLen     = SysOperandLen - 1
)

// Info describes one opcode.
type Info struct {
	Name       string
	OperandLen int  // bytes following the opcode
	Signed     bool // operand is two's complement
}

var table = map[Opcode]Info{
	OpLit:  {"LIT", 4, true},
	OpDup:  {"DUP", 0, false},
	OpDrop: {"DROP", 0, false},
	OpSwap: {"SWAP", 0, false},
	OpOver: {"OVER", 0, false},
	OpRot:  {"ROT", 0, false},
	OpNip:  {"NIP", 0, false},

	OpAdd: {"ADD", 0, false},
	OpSub: {"SUB", 0, false},
	OpMul: {"MUL", 0, false},
	OpDiv: {"DIV", 0, false},
	OpMod: {"MOD", 0, false},
	OpNeg: {"NEG", 0, false},
	OpInc: {"INC", 0, false},
	OpDec: {"DEC", 0, false},

	OpEq: {"EQ", 0, false},
	OpNe: {"NE", 0, false},
	OpLt: {"LT", 0, false},
	OpLe: {"LE", 0, false},
	OpGt: {"GT", 0, false},
	OpGe: {"GE", 0, false},

	OpAnd:    {"AND", 0, false},
	OpOr:     {"OR", 0, false},
	OpXor:    {"XOR", 0, false},
	OpInvert: {"INVERT", 0, false},
	OpShl:    {"SHL", 0, false},
	OpShr:    {"SHR", 0, false},

	OpJmp:    {"JMP", 2, true},
	OpJz:     {"JZ", 2, true},
	OpJnz:    {"JNZ", 2, true},
	OpToR:    {">R", 0, false},
	OpFromR:  {"R>", 0, false},
	OpRFetch: {"R@", 0, false},

	OpCall: {"CALL", 2, false},
	OpRet:  {"RET", 0, false},

	OpSys: {"SYS", SysOperandLen, false},

	OpLoad:    {"LOAD", 0, false},
	OpStore:   {"STORE", 0, false},
	OpLoad8:   {"LOAD8", 0, false},
	OpStore8:  {"STORE8", 0, false},
	OpLoad16:  {"LOAD16", 0, false},
	OpStore16: {"STORE16", 0, false},
	OpLitU8:   {"LIT_U8", 1, false},
	OpLitI16:  {"LIT_I16", 2, true},
	OpLit0:    {"LIT0", 0, false},
	OpLit1:    {"LIT1", 0, false},
	OpLitN1:   {"LIT_N1", 0, false},
}

// Lookup returns the table entry for op.
func Lookup(op Opcode) (Info, bool) {
	info, ok := table[op]
	return info, ok
}

func (op Opcode) String() string {
	if info, ok := table[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))
}

// Opcodes returns every defined opcode in ascending order.
func Opcodes() []Opcode {
	out := make([]Opcode, 0, len(table))
	for i := 0; i < 256; i++ {
		if _, ok := table[Opcode(i)]; ok {
			out = append(out, Opcode(i))
		}
	}
	return out
}
