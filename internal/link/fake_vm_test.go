package link

import (
	"errors"
	"fmt"
)

var errFakeRegister = errors.New("fake: register refused")

// fakeVM records calls and serves canned state.
type fakeVM struct {
	words     []Word
	executed  []int
	resets    int
	execErr   error
	failAfter int // refuse registrations once this many words exist; 0 disables
	skew      int

	ds, rs           []int32
	dsDepth, rsDepth *int
	mem              map[uint32]uint32
}

func newFakeVM() *fakeVM {
	return &fakeVM{mem: make(map[uint32]uint32)}
}

func (f *fakeVM) RegisterWord(name string, code []byte) (int, error) {
	if f.failAfter > 0 && len(f.words) >= f.failAfter {
		return 0, errFakeRegister
	}
	idx := len(f.words) + f.skew
	f.words = append(f.words, Word{Index: idx, Name: name, Code: code})
	return idx, nil
}

func (f *fakeVM) LookupWord(idx int) (Word, bool) {
	for _, w := range f.words {
		if w.Index == idx {
			return w, true
		}
	}
	return Word{}, false
}

func (f *fakeVM) Execute(idx int) error {
	f.executed = append(f.executed, idx)
	return f.execErr
}

func (f *fakeVM) Reset() {
	f.resets++
	f.words = nil
	f.ds = nil
	f.rs = nil
}

func (f *fakeVM) DataStackDepth() int {
	if f.dsDepth != nil {
		return *f.dsDepth
	}
	return len(f.ds)
}

func (f *fakeVM) ReturnStackDepth() int {
	if f.rsDepth != nil {
		return *f.rsDepth
	}
	return len(f.rs)
}

func (f *fakeVM) CopyDataStack(max int) []int32 {
	return append([]int32(nil), f.ds[:min(max, len(f.ds))]...)
}

func (f *fakeVM) CopyReturnStack(max int) []int32 {
	return append([]int32(nil), f.rs[:min(max, len(f.rs))]...)
}

func (f *fakeVM) ReadMemoryWord(addr uint32) (uint32, error) {
	v, ok := f.mem[addr]
	if !ok {
		return 0, fmt.Errorf("fake: no memory at 0x%08x", addr)
	}
	return v, nil
}
