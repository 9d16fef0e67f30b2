package frame

import (
	"github.com/danmuck/v4link/internal/protocol"
)

// Kind selects which frame grammar a Receiver assembles.
type Kind uint8

const (
	// KindCommand assembles host->device frames: DATA is LEN bytes.
	KindCommand Kind = iota
	// KindAck assembles device->host frames: LEN counts the status byte.
	KindAck
)

// Stage is the receiver's position in the frame grammar.
type Stage uint8

const (
	AwaitStart Stage = iota
	AwaitLenLo
	AwaitLenHi
	AwaitCommand
	AwaitPayload
	AwaitChecksum
)

func (s Stage) String() string {
	switch s {
	case AwaitStart:
		return "await_start"
	case AwaitLenLo:
		return "await_len_lo"
	case AwaitLenHi:
		return "await_len_hi"
	case AwaitCommand:
		return "await_command"
	case AwaitPayload:
		return "await_payload"
	case AwaitChecksum:
		return "await_checksum"
	default:
		return "unknown"
	}
}

// Event is the outcome of feeding one byte.
type Event uint8

const (
	// EventNone means the byte was consumed (or discarded) and no frame finished.
	EventNone Event = iota
	// EventFrame means a frame finished and its checksum is valid.
	EventFrame
	// EventBadChecksum means a frame finished and its checksum did not match.
	EventBadChecksum
	// EventOverflow means the declared length exceeds the receiver capacity.
	EventOverflow
)

// Receiver reassembles frames from a byte stream, one byte per Feed call.
//
// It never blocks and never allocates after construction for frames within
// capacity. After EventFrame or EventBadChecksum, Raw/Code/Payload describe the
// finished frame until the next Feed.
type Receiver struct {
	kind      Kind
	capacity  int
	stage     Stage
	buf       []byte
	declared  int
	code      byte
	remaining int
}

// NewReceiver returns a receiver accepting declared lengths up to capacity.
func NewReceiver(kind Kind, capacity int) *Receiver {
	if capacity < 0 {
		capacity = 0
	}
	size := capacity
	if size > protocol.MaxPayloadSize {
		size = protocol.MaxPayloadSize
	}
	return &Receiver{
		kind:     kind,
		capacity: capacity,
		buf:      make([]byte, 0, size+protocol.FrameOverhead),
	}
}

// Feed consumes one byte.
func (r *Receiver) Feed(b byte) Event {
	switch r.stage {
	case AwaitStart:
		if b == protocol.StartMarker {
			r.begin()
		}

	case AwaitLenLo:
		r.buf = append(r.buf, b)
		r.declared = int(b)
		r.stage = AwaitLenHi

	case AwaitLenHi:
		r.buf = append(r.buf, b)
		r.declared |= int(b) << 8
		if r.declared > r.capacity {
			r.stage = AwaitStart
			return EventOverflow
		}
		r.stage = AwaitCommand

	case AwaitCommand:
		// 0xA5 is neither a command nor a status code, so a marker here means the
		// partial frame was cut short and a new one is starting.
		if b == protocol.StartMarker {
			r.begin()
			return EventNone
		}
		r.buf = append(r.buf, b)
		r.code = b
		r.remaining = r.declared
		if r.kind == KindAck && r.remaining > 0 {
			r.remaining--
		}
		if r.remaining == 0 {
			r.stage = AwaitChecksum
		} else {
			r.stage = AwaitPayload
		}

	case AwaitPayload:
		r.buf = append(r.buf, b)
		r.remaining--
		if r.remaining == 0 {
			r.stage = AwaitChecksum
		}

	case AwaitChecksum:
		r.buf = append(r.buf, b)
		r.stage = AwaitStart
		if !VerifyChecksum(r.buf) {
			return EventBadChecksum
		}
		return EventFrame
	}
	return EventNone
}

func (r *Receiver) begin() {
	r.buf = append(r.buf[:0], protocol.StartMarker)
	r.declared = 0
	r.code = 0
	r.remaining = 0
	r.stage = AwaitLenLo
}

// Reset drops any partial frame.
func (r *Receiver) Reset() {
	r.buf = r.buf[:0]
	r.declared = 0
	r.code = 0
	r.remaining = 0
	r.stage = AwaitStart
}

// Stage returns the receiver's current position in the frame grammar.
func (r *Receiver) Stage() Stage { return r.stage }

// Capacity returns the largest declared length the receiver accepts.
func (r *Receiver) Capacity() int { return r.capacity }

// Declared returns the length field of the frame in progress or last finished.
func (r *Receiver) Declared() int { return r.declared }

// Code returns the command or status byte of the last finished frame.
func (r *Receiver) Code() byte { return r.code }

// Buffered returns how many bytes of the current frame have been collected.
func (r *Receiver) Buffered() int { return len(r.buf) }

// Raw returns the collected frame bytes. The slice aliases the receive buffer.
func (r *Receiver) Raw() []byte { return r.buf }

// Payload returns the bytes between the command/status byte and the checksum
// of the last finished frame. The slice aliases the receive buffer.
func (r *Receiver) Payload() []byte {
	if len(r.buf) < protocol.FrameOverhead {
		return nil
	}
	return r.buf[HeaderLen : len(r.buf)-1]
}
