package link

// Word describes one registered dictionary entry.
type Word struct {
	Index int
	Name  string
	Code  []byte
}

// VM is the capability set the link needs from a virtual machine.
//
// RegisterWord may retain code; the link passes buffers it owns and never
// mutates them afterwards. Depth methods report a negative value when the VM
// state is unusable.
type VM interface {
	RegisterWord(name string, code []byte) (int, error)
	LookupWord(idx int) (Word, bool)
	Execute(idx int) error
	Reset()
	DataStackDepth() int
	CopyDataStack(max int) []int32
	ReturnStackDepth() int
	CopyReturnStack(max int) []int32
	ReadMemoryWord(addr uint32) (uint32, error)
}

// IndexPredictor is implemented by VMs that can report the index the next
// RegisterWord call will assign.
type IndexPredictor interface {
	NextWordIndex() int
}
