package protocol

import "fmt"

const (
	// StartMarker opens every frame in both directions.
	StartMarker byte = 0xA5

	// MaxPayloadSize bounds the DATA field of a command frame.
	MaxPayloadSize = 512

	// FrameOverhead is marker + two length bytes + command + checksum.
	FrameOverhead = 5
)

// Command identifies a host request.
type Command byte

const (
	// CmdExec registers and executes raw bytecode or a V4BC container.
	CmdExec Command = 0x10

	// CmdPing checks that the device is responsive. DATA is ignored.
	CmdPing Command = 0x20

	// CmdQueryStack returns the data and return stack contents.
	CmdQueryStack Command = 0x30

	// CmdQueryMemory returns a VM memory range: [addr u32][len u16].
	CmdQueryMemory Command = 0x31

	// CmdQueryWord returns one word's name and code: [index u16].
	CmdQueryWord Command = 0x32

	// CmdReset resets the VM and releases all loaded bytecode.
	CmdReset Command = 0xFF
)

func (c Command) String() string {
	switch c {
	case CmdExec:
		return "exec"
	case CmdPing:
		return "ping"
	case CmdQueryStack:
		return "query_stack"
	case CmdQueryMemory:
		return "query_memory"
	case CmdQueryWord:
		return "query_word"
	case CmdReset:
		return "reset"
	default:
		return fmt.Sprintf("cmd_0x%02x", byte(c))
	}
}

// Known reports whether c is an assigned command code.
func (c Command) Known() bool {
	switch c {
	case CmdExec, CmdPing, CmdQueryStack, CmdQueryMemory, CmdQueryWord, CmdReset:
		return true
	default:
		return false
	}
}

// Status is the first byte of every acknowledgement.
type Status byte

const (
	StatusOK           Status = 0x00
	StatusError        Status = 0x01
	StatusInvalidFrame Status = 0x02
	StatusBufferFull   Status = 0x03
	StatusVMError      Status = 0x04
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusInvalidFrame:
		return "invalid_frame"
	case StatusBufferFull:
		return "buffer_full"
	case StatusVMError:
		return "vm_error"
	default:
		return fmt.Sprintf("status_0x%02x", byte(s))
	}
}
