// Package vm is a reference interpreter for the v4 bytecode set. It backs the
// device simulator and the link tests.
package vm

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/v4link/internal/link"
)

var (
	ErrStackUnderflow       = errors.New("vm: data stack underflow")
	ErrStackOverflow        = errors.New("vm: data stack overflow")
	ErrReturnStackUnderflow = errors.New("vm: return stack underflow")
	ErrReturnStackOverflow  = errors.New("vm: return stack overflow")
	ErrCallDepth            = errors.New("vm: call depth exceeded")
	ErrDivideByZero         = errors.New("vm: division by zero")
	ErrMemoryBounds         = errors.New("vm: memory access out of bounds")
	ErrUnknownWord          = errors.New("vm: unknown word")
	ErrDictionaryFull       = errors.New("vm: dictionary full")
	ErrStepLimit            = errors.New("vm: step limit exceeded")
	ErrBadJump              = errors.New("vm: jump target outside word")
	ErrUnknownSys           = errors.New("vm: unknown system call")
)

// Config sizes the machine. Zero fields take DefaultConfig values.
type Config struct {
	MemorySize      int
	DataStackSize   int
	ReturnStackSize int
	CallDepth       int
	MaxWords        int
	MaxSteps        int
	Output          io.Writer
}

func DefaultConfig() Config {
	return Config{
		MemorySize:      64 * 1024,
		DataStackSize:   256,
		ReturnStackSize: 64,
		CallDepth:       64,
		MaxWords:        1 << 16,
		MaxSteps:        1_000_000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MemorySize <= 0 {
		c.MemorySize = d.MemorySize
	}
	if c.DataStackSize <= 0 {
		c.DataStackSize = d.DataStackSize
	}
	if c.ReturnStackSize <= 0 {
		c.ReturnStackSize = d.ReturnStackSize
	}
	if c.CallDepth <= 0 {
		c.CallDepth = d.CallDepth
	}
	if c.MaxWords <= 0 || c.MaxWords > d.MaxWords {
		c.MaxWords = d.MaxWords
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	return c
}

// SysFunc handles one SYS id. args holds the isa.SysArgLen operand bytes
// that follow the id and aliases the executing word's code.
type SysFunc func(m *Machine, args []byte) error

type entry struct {
	name string
	code []byte
}

// Machine implements link.VM and link.IndexPredictor.
type Machine struct {
	cfg   Config
	ds    []int32
	rs    []int32
	mem   []byte
	words []entry
	sys   map[byte]SysFunc
}

var (
	_ link.VM             = (*Machine)(nil)
	_ link.IndexPredictor = (*Machine)(nil)
)

func New(cfg Config) *Machine {
	cfg = cfg.withDefaults()
	m := &Machine{
		cfg: cfg,
		ds:  make([]int32, 0, cfg.DataStackSize),
		rs:  make([]int32, 0, cfg.ReturnStackSize),
		mem: make([]byte, cfg.MemorySize),
		sys: make(map[byte]SysFunc),
	}
	m.installSys()
	return m
}

// HandleSys installs or replaces the handler for a SYS id.
func (m *Machine) HandleSys(id byte, fn SysFunc) {
	if fn == nil {
		delete(m.sys, id)
		return
	}
	m.sys[id] = fn
}

// RegisterWord appends code to the dictionary. code is retained, not copied.
func (m *Machine) RegisterWord(name string, code []byte) (int, error) {
	if len(m.words) >= m.cfg.MaxWords {
		return 0, fmt.Errorf("%w: %d words", ErrDictionaryFull, len(m.words))
	}
	m.words = append(m.words, entry{name: name, code: code})
	return len(m.words) - 1, nil
}

func (m *Machine) NextWordIndex() int {
	return len(m.words)
}

func (m *Machine) LookupWord(idx int) (link.Word, bool) {
	if idx < 0 || idx >= len(m.words) {
		return link.Word{}, false
	}
	e := m.words[idx]
	return link.Word{Index: idx, Name: e.name, Code: e.code}, true
}

// FindWord returns the newest word registered under name.
func (m *Machine) FindWord(name string) (link.Word, bool) {
	for i := len(m.words) - 1; i >= 0; i-- {
		if m.words[i].name == name && name != "" {
			return m.LookupWord(i)
		}
	}
	return link.Word{}, false
}

// Words lists the dictionary in index order.
func (m *Machine) Words() []link.Word {
	out := make([]link.Word, 0, len(m.words))
	for i := range m.words {
		w, _ := m.LookupWord(i)
		out = append(out, w)
	}
	return out
}

// Reset clears stacks, memory and the dictionary.
func (m *Machine) Reset() {
	m.ds = m.ds[:0]
	m.rs = m.rs[:0]
	clear(m.mem)
	m.words = nil
}

func (m *Machine) DataStackDepth() int   { return len(m.ds) }
func (m *Machine) ReturnStackDepth() int { return len(m.rs) }

// CopyDataStack returns up to max entries, bottom first.
func (m *Machine) CopyDataStack(max int) []int32 {
	return copyStack(m.ds, max)
}

// CopyReturnStack returns up to max entries, bottom first.
func (m *Machine) CopyReturnStack(max int) []int32 {
	return copyStack(m.rs, max)
}

func copyStack(s []int32, max int) []int32 {
	n := min(len(s), max)
	if n <= 0 {
		return nil
	}
	out := make([]int32, n)
	copy(out, s[:n])
	return out
}

// Push places v on the data stack.
func (m *Machine) Push(v int32) error {
	if len(m.ds) >= m.cfg.DataStackSize {
		return ErrStackOverflow
	}
	m.ds = append(m.ds, v)
	return nil
}

// Pop removes the top of the data stack.
func (m *Machine) Pop() (int32, error) {
	n := len(m.ds)
	if n == 0 {
		return 0, ErrStackUnderflow
	}
	v := m.ds[n-1]
	m.ds = m.ds[:n-1]
	return v, nil
}

// Peek returns the entry depth positions below the top.
func (m *Machine) Peek(depth int) (int32, error) {
	n := len(m.ds)
	if depth < 0 || depth >= n {
		return 0, ErrStackUnderflow
	}
	return m.ds[n-1-depth], nil
}

func (m *Machine) ReadMemoryWord(addr uint32) (uint32, error) {
	b, err := m.span(addr, 4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// WriteMemory copies data into memory at addr.
func (m *Machine) WriteMemory(addr uint32, data []byte) error {
	b, err := m.span(addr, len(data))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (m *Machine) span(addr uint32, n int) ([]byte, error) {
	if uint64(addr)+uint64(n) > uint64(len(m.mem)) {
		return nil, fmt.Errorf("%w: addr=0x%08x len=%d", ErrMemoryBounds, addr, n)
	}
	return m.mem[addr : int(addr)+n], nil
}
