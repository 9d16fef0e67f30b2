package link

// Store is the append-only arena that owns every registered code buffer.
// Slot i holds the code of the i-th registration since the last Clear.
type Store struct {
	slots [][]byte
	bytes int
}

func NewStore() *Store {
	return &Store{}
}

// Add copies code into the arena and returns the slot and the owned copy.
func (s *Store) Add(code []byte) (int, []byte) {
	owned := make([]byte, len(code))
	copy(owned, code)
	s.slots = append(s.slots, owned)
	s.bytes += len(owned)
	return len(s.slots) - 1, owned
}

// Get returns the owned buffer in slot i.
func (s *Store) Get(i int) ([]byte, bool) {
	if i < 0 || i >= len(s.slots) {
		return nil, false
	}
	return s.slots[i], true
}

func (s *Store) Len() int   { return len(s.slots) }
func (s *Store) Bytes() int { return s.bytes }

// Clear drops every buffer. Only a VM reset may call it.
func (s *Store) Clear() {
	s.slots = nil
	s.bytes = 0
}

// dropLast releases the newest slot after a registration the VM refused.
func (s *Store) dropLast() {
	if n := len(s.slots); n > 0 {
		s.bytes -= len(s.slots[n-1])
		s.slots = s.slots[:n-1]
	}
}
