// Package reloc rewrites word references in bytecode so code compiled against
// file-relative word indices can run against a device's dictionary.
package reloc

import (
	"encoding/binary"

	"github.com/danmuck/v4link/internal/isa"
)

// Calls adds offset to every CALL operand in code, in place, and returns the
// number of operands it patched. Operands wrap modulo 2^16.
//
// The walk stops at the first unknown opcode or truncated operand. Operands
// patched before that point stay patched; a truncated trailing operand is
// left untouched.
func Calls(code []byte, offset int) (int, error) {
	if offset == 0 {
		return 0, nil
	}
	patched := 0
	err := isa.Walk(code, func(in isa.Instruction) error {
		if in.Op != isa.OpCall {
			return nil
		}
		idx := binary.LittleEndian.Uint16(in.Operand)
		binary.LittleEndian.PutUint16(in.Operand, uint16(int(idx)+offset))
		patched++
		return nil
	})
	return patched, err
}

// Targets returns the word indices named by CALL instructions in code, in order.
func Targets(code []byte) ([]uint16, error) {
	var out []uint16
	err := isa.Walk(code, func(in isa.Instruction) error {
		if in.Op == isa.OpCall {
			out = append(out, binary.LittleEndian.Uint16(in.Operand))
		}
		return nil
	})
	return out, err
}
