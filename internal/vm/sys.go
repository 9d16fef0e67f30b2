package vm

import "fmt"

// Built-in SYS ids.
const (
	SysEmit  byte = 0x01 // c --      write one byte to Output
	SysPrint byte = 0x02 // n --      write n in decimal followed by a space
	SysDepth byte = 0x03 // -- depth
)

func (m *Machine) installSys() {
	m.sys[SysEmit] = func(m *Machine, _ []byte) error {
		v, err := m.Pop()
		if err != nil {
			return err
		}
		return m.emit([]byte{byte(v)})
	}
	m.sys[SysPrint] = func(m *Machine, _ []byte) error {
		v, err := m.Pop()
		if err != nil {
			return err
		}
		return m.emit(fmt.Appendf(nil, "%d ", v))
	}
	m.sys[SysDepth] = func(m *Machine, _ []byte) error {
		return m.Push(int32(len(m.ds)))
	}
}

func (m *Machine) emit(p []byte) error {
	if m.cfg.Output == nil {
		return nil
	}
	_, err := m.cfg.Output.Write(p)
	return err
}
