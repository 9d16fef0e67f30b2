package frame

import (
	"io"

	"github.com/danmuck/v4link/internal/protocol"
)

// ReadAck reads bytes from r until rx completes an acknowledgement.
//
// Noise before the start marker is discarded. A finished frame with a bad
// checksum returns ErrBadChecksum; an oversize declared length returns
// ErrPayloadTooLarge. In both cases rx is ready for the next frame.
func ReadAck(r io.ByteReader, rx *Receiver) (Ack, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return Ack{}, err
		}
		switch rx.Feed(b) {
		case EventFrame:
			return Ack{Status: protocol.Status(rx.Code()), Body: clone(rx.Payload())}, nil
		case EventBadChecksum:
			return Ack{}, ErrBadChecksum
		case EventOverflow:
			return Ack{}, ErrPayloadTooLarge
		}
	}
}

// ReadFrame is the command-frame counterpart of ReadAck.
func ReadFrame(r io.ByteReader, rx *Receiver) (Frame, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		switch rx.Feed(b) {
		case EventFrame:
			return Frame{Command: protocol.Command(rx.Code()), Payload: clone(rx.Payload())}, nil
		case EventBadChecksum:
			return Frame{}, ErrBadChecksum
		case EventOverflow:
			return Frame{}, ErrPayloadTooLarge
		}
	}
}
