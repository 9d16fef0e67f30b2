package frame

import (
	"encoding/binary"
	"errors"

	"github.com/danmuck/v4link/internal/protocol"
	"github.com/danmuck/v4link/internal/protocol/crc8"
)

const (
	// HeaderLen is marker + LEN_L + LEN_H + CMD.
	HeaderLen = 4

	// MinLen is the smallest well-formed frame: an empty command frame.
	MinLen = protocol.FrameOverhead

	// MaxAckBody bounds an acknowledgement reply body by the u16 length field.
	MaxAckBody = 0xFFFF - 1
)

var (
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrShortFrame      = errors.New("frame: shorter than minimum frame")
	ErrBadMarker       = errors.New("frame: missing start marker")
	ErrLengthMismatch  = errors.New("frame: declared length does not match frame size")
	ErrBadChecksum     = errors.New("frame: checksum mismatch")
)

// Frame is one decoded host command.
type Frame struct {
	Command protocol.Command
	Payload []byte
}

// Ack is one decoded device acknowledgement.
type Ack struct {
	Status protocol.Status
	Body   []byte
}

// Encode builds a command frame. The payload is limited to MaxPayloadSize bytes.
func Encode(cmd protocol.Command, payload []byte) ([]byte, error) {
	if len(payload) > protocol.MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	return build(byte(cmd), len(payload), payload), nil
}

// EncodeAck builds an acknowledgement frame. LEN counts the status byte plus body.
func EncodeAck(status protocol.Status, body []byte) ([]byte, error) {
	if len(body) > MaxAckBody {
		return nil, ErrPayloadTooLarge
	}
	return build(byte(status), 1+len(body), body), nil
}

func build(code byte, declared int, data []byte) []byte {
	out := make([]byte, HeaderLen, HeaderLen+len(data)+1)
	out[0] = protocol.StartMarker
	binary.LittleEndian.PutUint16(out[1:3], uint16(declared))
	out[3] = code
	out = append(out, data...)
	return append(out, crc8.Checksum(out[1:]))
}

// VerifyChecksum reports whether the trailing byte of raw matches the CRC-8
// of everything between the start marker and the checksum.
func VerifyChecksum(raw []byte) bool {
	if len(raw) < MinLen {
		return false
	}
	return crc8.Checksum(raw[1:len(raw)-1]) == raw[len(raw)-1]
}

// Decode parses one complete command frame.
func Decode(raw []byte) (Frame, error) {
	declared, err := checkEnvelope(raw)
	if err != nil {
		return Frame{}, err
	}
	if declared > protocol.MaxPayloadSize {
		return Frame{}, ErrPayloadTooLarge
	}
	if len(raw) != protocol.FrameOverhead+declared {
		return Frame{}, ErrLengthMismatch
	}
	return Frame{
		Command: protocol.Command(raw[3]),
		Payload: clone(raw[HeaderLen : len(raw)-1]),
	}, nil
}

// DecodeAck parses one complete acknowledgement frame.
func DecodeAck(raw []byte) (Ack, error) {
	declared, err := checkEnvelope(raw)
	if err != nil {
		return Ack{}, err
	}
	if declared < 1 || len(raw) != HeaderLen+declared {
		return Ack{}, ErrLengthMismatch
	}
	return Ack{
		Status: protocol.Status(raw[3]),
		Body:   clone(raw[HeaderLen : len(raw)-1]),
	}, nil
}

func checkEnvelope(raw []byte) (int, error) {
	if len(raw) < MinLen {
		return 0, ErrShortFrame
	}
	if raw[0] != protocol.StartMarker {
		return 0, ErrBadMarker
	}
	if !VerifyChecksum(raw) {
		return 0, ErrBadChecksum
	}
	return int(binary.LittleEndian.Uint16(raw[1:3])), nil
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
