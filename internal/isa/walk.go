package isa

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrTruncatedOperand reports an instruction whose operand runs past the end of the code.
var ErrTruncatedOperand = errors.New("isa: truncated operand")

// UnknownOpcodeError reports a byte with no table entry at an instruction boundary.
type UnknownOpcodeError struct {
	PC int
	Op Opcode
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("isa: unknown opcode 0x%02X at pc=%d", byte(e.Op), e.PC)
}

// Instruction is one decoded instruction. Operand aliases the walked code.
type Instruction struct {
	PC      int
	Op      Opcode
	Operand []byte
}

// Len returns the encoded size of the instruction.
func (in Instruction) Len() int {
	return 1 + len(in.Operand)
}

// Value returns the operand as an integer, sign-extended for signed operands.
func (in Instruction) Value() int64 {
	info, _ := Lookup(in.Op)
	switch len(in.Operand) {
	case 1:
		if info.Signed {
			return int64(int8(in.Operand[0]))
		}
		return int64(in.Operand[0])
	case 2:
		v := binary.LittleEndian.Uint16(in.Operand)
		if info.Signed {
			return int64(int16(v))
		}
		return int64(v)
	case 4:
		v := binary.LittleEndian.Uint32(in.Operand)
		if info.Signed {
			return int64(int32(v))
		}
		return int64(v)
	default:
		return 0
	}
}

func (in Instruction) String() string {
	switch {
	case len(in.Operand) == 0:
		return in.Op.String()
	case in.Op == OpSys:
		return fmt.Sprintf("%s %d", in.Op, in.Operand[0])
	}
	return fmt.Sprintf("%s %d", in.Op, in.Value())
}

// Decode decodes the instruction starting at pc.
func Decode(code []byte, pc int) (Instruction, error) {
	if pc < 0 || pc >= len(code) {
		return Instruction{}, fmt.Errorf("%w: pc=%d outside code of %d bytes", ErrTruncatedOperand, pc, len(code))
	}
	op := Opcode(code[pc])
	info, ok := table[op]
	if !ok {
		return Instruction{}, &UnknownOpcodeError{PC: pc, Op: op}
	}
	end := pc + 1 + info.OperandLen
	if end > len(code) {
		return Instruction{}, fmt.Errorf("%w: %s at pc=%d needs %d bytes", ErrTruncatedOperand, info.Name, pc, info.OperandLen)
	}
	return Instruction{PC: pc, Op: op, Operand: code[pc+1 : end]}, nil
}

// Walk calls fn for every instruction in code, in order. It stops at the
// first decode error or the first error returned by fn.
func Walk(code []byte, fn func(Instruction) error) error {
	for pc := 0; pc < len(code); {
		in, err := Decode(code, pc)
		if err != nil {
			return err
		}
		if err := fn(in); err != nil {
			return err
		}
		pc += in.Len()
	}
	return nil
}

// Disassemble returns a listing of code, one instruction per line. Bytes that
// cannot be decoded are listed as a trailing data line.
func Disassemble(code []byte) string {
	var sb strings.Builder
	pc := 0
	err := Walk(code, func(in Instruction) error {
		fmt.Fprintf(&sb, "%04x  %-12s", in.PC, hexBytes(code[in.PC:in.PC+in.Len()]))
		sb.WriteString(in.String())
		sb.WriteByte('\n')
		pc = in.PC + in.Len()
		return nil
	})
	if err != nil {
		fmt.Fprintf(&sb, "%04x  %-12s; %v\n", pc, hexBytes(code[pc:]), err)
	}
	return sb.String()
}

func hexBytes(b []byte) string {
	if len(b) > 5 {
		return fmt.Sprintf("% x ..", b[:4])
	}
	return fmt.Sprintf("% x", b)
}
