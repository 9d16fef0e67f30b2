package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/v4link/internal/isa"
)

type callFrame struct {
	word int
	pc   int
}

// Execute runs word idx to completion. Falling off the end of a word returns
// to its caller. Stacks are left as they were when an error stopped the run.
func (m *Machine) Execute(idx int) error {
	if idx < 0 || idx >= len(m.words) {
		return fmt.Errorf("%w: %d", ErrUnknownWord, idx)
	}
	frames := make([]callFrame, 1, 8)
	frames[0] = callFrame{word: idx}
	steps := 0

	for len(frames) > 0 {
		top := &frames[len(frames)-1]
		code := m.words[top.word].code
		if top.pc >= len(code) {
			frames = frames[:len(frames)-1]
			continue
		}
		in, err := isa.Decode(code, top.pc)
		if err != nil {
			return fmt.Errorf("vm: word %d: %w", top.word, err)
		}
		steps++
		if steps > m.cfg.MaxSteps {
			return fmt.Errorf("%w: %d", ErrStepLimit, m.cfg.MaxSteps)
		}
		next := top.pc + in.Len()
		top.pc = next

		switch in.Op {
		case isa.OpCall:
			target := int(binary.LittleEndian.Uint16(in.Operand))
			if target >= len(m.words) {
				return fmt.Errorf("%w: CALL %d from word %d", ErrUnknownWord, target, top.word)
			}
			if len(frames) >= m.cfg.CallDepth {
				return ErrCallDepth
			}
			frames = append(frames, callFrame{word: target})
		case isa.OpRet:
			frames = frames[:len(frames)-1]
		case isa.OpJmp, isa.OpJz, isa.OpJnz:
			take := true
			if in.Op != isa.OpJmp {
				cond, err := m.Pop()
				if err != nil {
					return err
				}
				take = (cond == 0) == (in.Op == isa.OpJz)
			}
			if take {
				target := next + int(in.Value())
				if target < 0 || target > len(code) {
					return fmt.Errorf("%w: pc=%d target=%d", ErrBadJump, in.PC, target)
				}
				top.pc = target
			}
		default:
			if err := m.step(in); err != nil {
				return fmt.Errorf("vm: word %d pc=%d %s: %w", top.word, in.PC, in.Op, err)
			}
		}
	}
	return nil
}

func (m *Machine) step(in isa.Instruction) error {
	switch in.Op {
	case isa.OpLit, isa.OpLitU8, isa.OpLitI16:
		return m.Push(int32(in.Value()))
	case isa.OpLit0:
		return m.Push(0)
	case isa.OpLit1:
		return m.Push(1)
	case isa.OpLitN1:
		return m.Push(-1)

	case isa.OpDup:
		v, err := m.Peek(0)
		if err != nil {
			return err
		}
		return m.Push(v)
	case isa.OpDrop:
		_, err := m.Pop()
		return err
	case isa.OpSwap:
		if err := m.need(2); err != nil {
			return err
		}
		n := len(m.ds)
		m.ds[n-1], m.ds[n-2] = m.ds[n-2], m.ds[n-1]
	case isa.OpOver:
		v, err := m.Peek(1)
		if err != nil {
			return err
		}
		return m.Push(v)
	case isa.OpRot:
		if err := m.need(3); err != nil {
			return err
		}
		n := len(m.ds)
		a, b, c := m.ds[n-3], m.ds[n-2], m.ds[n-1]
		m.ds[n-3], m.ds[n-2], m.ds[n-1] = b, c, a
	case isa.OpNip:
		if err := m.need(2); err != nil {
			return err
		}
		n := len(m.ds)
		m.ds[n-2] = m.ds[n-1]
		m.ds = m.ds[:n-1]

	case isa.OpNeg, isa.OpInc, isa.OpDec, isa.OpInvert:
		if err := m.need(1); err != nil {
			return err
		}
		top := &m.ds[len(m.ds)-1]
		switch in.Op {
		case isa.OpNeg:
			*top = -*top
		case isa.OpInc:
			*top++
		case isa.OpDec:
			*top--
		default:
			*top = ^*top
		}

	case isa.OpAdd, isa.OpSub, isa.OpMul, isa.OpDiv, isa.OpMod,
		isa.OpEq, isa.OpNe, isa.OpLt, isa.OpLe, isa.OpGt, isa.OpGe,
		isa.OpAnd, isa.OpOr, isa.OpXor, isa.OpShl, isa.OpShr:
		return m.binary(in.Op)

	case isa.OpToR:
		v, err := m.Pop()
		if err != nil {
			return err
		}
		if len(m.rs) >= m.cfg.ReturnStackSize {
			return ErrReturnStackOverflow
		}
		m.rs = append(m.rs, v)
	case isa.OpFromR, isa.OpRFetch:
		n := len(m.rs)
		if n == 0 {
			return ErrReturnStackUnderflow
		}
		v := m.rs[n-1]
		if in.Op == isa.OpFromR {
			m.rs = m.rs[:n-1]
		}
		return m.Push(v)

	case isa.OpSys:
		id := in.Operand[0]
		fn, ok := m.sys[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownSys, id)
		}
		return fn(m, in.Operand[1:])

	case isa.OpLoad, isa.OpLoad8, isa.OpLoad16:
		addr, err := m.Pop()
		if err != nil {
			return err
		}
		b, err := m.span(uint32(addr), accessWidth(in.Op))
		if err != nil {
			return err
		}
		return m.Push(int32(readLE(b)))
	case isa.OpStore, isa.OpStore8, isa.OpStore16:
		if err := m.need(2); err != nil {
			return err
		}
		addr, _ := m.Pop()
		v, _ := m.Pop()
		b, err := m.span(uint32(addr), accessWidth(in.Op))
		if err != nil {
			return err
		}
		writeLE(b, uint32(v))

	default:
		return &isa.UnknownOpcodeError{PC: in.PC, Op: in.Op}
	}
	return nil
}

func (m *Machine) binary(op isa.Opcode) error {
	if err := m.need(2); err != nil {
		return err
	}
	n := len(m.ds)
	a, b := m.ds[n-2], m.ds[n-1]
	var r int32
	switch op {
	case isa.OpAdd:
		r = a + b
	case isa.OpSub:
		r = a - b
	case isa.OpMul:
		r = a * b
	case isa.OpDiv, isa.OpMod:
		if b == 0 {
			return ErrDivideByZero
		}
		if op == isa.OpDiv {
			r = a / b
		} else {
			r = a % b
		}
	case isa.OpEq:
		r = flag(a == b)
	case isa.OpNe:
		r = flag(a != b)
	case isa.OpLt:
		r = flag(a < b)
	case isa.OpLe:
		r = flag(a <= b)
	case isa.OpGt:
		r = flag(a > b)
	case isa.OpGe:
		r = flag(a >= b)
	case isa.OpAnd:
		r = a & b
	case isa.OpOr:
		r = a | b
	case isa.OpXor:
		r = a ^ b
	case isa.OpShl:
		r = int32(uint32(a) << (uint32(b) & 31))
	case isa.OpShr:
		r = int32(uint32(a) >> (uint32(b) & 31))
	}
	m.ds[n-2] = r
	m.ds = m.ds[:n-1]
	return nil
}

func (m *Machine) need(n int) error {
	if len(m.ds) < n {
		return ErrStackUnderflow
	}
	return nil
}

func flag(ok bool) int32 {
	if ok {
		return -1
	}
	return 0
}

func accessWidth(op isa.Opcode) int {
	switch op {
	case isa.OpLoad8, isa.OpStore8:
		return 1
	case isa.OpLoad16, isa.OpStore16:
		return 2
	default:
		return 4
	}
}

func readLE(b []byte) uint32 {
	var v uint32
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint32(b[i])
	}
	return v
}

func writeLE(b []byte, v uint32) {
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
}
