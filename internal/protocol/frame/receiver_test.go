package frame

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/v4link/internal/protocol"
)

type feedResult struct {
	frames   []Frame
	badCRC   int
	overflow int
}

func feedAll(rx *Receiver, data []byte) feedResult {
	var out feedResult
	for _, b := range data {
		switch rx.Feed(b) {
		case EventFrame:
			out.frames = append(out.frames, Frame{
				Command: protocol.Command(rx.Code()),
				Payload: append([]byte(nil), rx.Payload()...),
			})
		case EventBadChecksum:
			out.badCRC++
		case EventOverflow:
			out.overflow++
		}
	}
	return out
}

func mustEncode(t *testing.T, cmd protocol.Command, payload []byte) []byte {
	t.Helper()
	raw, err := Encode(cmd, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}

func TestReceiverAssemblesFrame(t *testing.T) {
	rx := NewReceiver(KindCommand, protocol.MaxPayloadSize)
	raw := mustEncode(t, protocol.CmdExec, []byte{0x00, 0x2A, 0x00, 0x00, 0x00, 0x51})

	for i, b := range raw[:len(raw)-1] {
		if ev := rx.Feed(b); ev != EventNone {
			t.Fatalf("byte %d: unexpected event %d before checksum", i, ev)
		}
	}
	if ev := rx.Feed(raw[len(raw)-1]); ev != EventFrame {
		t.Fatalf("expected EventFrame on checksum byte, got %d", ev)
	}
	if rx.Stage() != AwaitStart {
		t.Fatalf("expected AwaitStart after frame, got %s", rx.Stage())
	}
	if !bytes.Equal(rx.Raw(), raw) {
		t.Fatalf("raw mismatch: got=% x want=% x", rx.Raw(), raw)
	}
	if !bytes.Equal(rx.Payload(), raw[4:len(raw)-1]) {
		t.Fatalf("payload mismatch")
	}
}

func TestReceiverEmptyFrameSkipsPayloadStage(t *testing.T) {
	rx := NewReceiver(KindCommand, protocol.MaxPayloadSize)
	raw := mustEncode(t, protocol.CmdPing, nil)
	for _, b := range raw[:4] {
		rx.Feed(b)
	}
	if rx.Stage() != AwaitChecksum {
		t.Fatalf("expected AwaitChecksum after command of empty frame, got %s", rx.Stage())
	}
	if ev := rx.Feed(raw[4]); ev != EventFrame {
		t.Fatalf("expected EventFrame, got %d", ev)
	}
}

func TestReceiverDiscardsGarbageBeforeFrame(t *testing.T) {
	rx := NewReceiver(KindCommand, protocol.MaxPayloadSize)
	stream := append([]byte{0xFF, 0x12, 0x34, 0x00, 0x20}, mustEncode(t, protocol.CmdPing, nil)...)
	res := feedAll(rx, stream)
	if len(res.frames) != 1 || res.badCRC != 0 || res.overflow != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.frames[0].Command != protocol.CmdPing {
		t.Fatalf("unexpected command: %v", res.frames[0].Command)
	}
}

func TestReceiverOverflowAtLengthHeader(t *testing.T) {
	rx := NewReceiver(KindCommand, protocol.MaxPayloadSize)
	n := protocol.MaxPayloadSize + 1
	if ev := rx.Feed(protocol.StartMarker); ev != EventNone {
		t.Fatalf("unexpected event on marker: %d", ev)
	}
	if ev := rx.Feed(byte(n)); ev != EventNone {
		t.Fatalf("unexpected event on len_lo: %d", ev)
	}
	if ev := rx.Feed(byte(n >> 8)); ev != EventOverflow {
		t.Fatalf("expected EventOverflow on len_hi, got %d", ev)
	}
	if rx.Stage() != AwaitStart {
		t.Fatalf("expected AwaitStart after overflow, got %s", rx.Stage())
	}

	// The remainder of the oversize frame is noise; a following frame still arrives.
	res := feedAll(rx, append(bytes.Repeat([]byte{0x11}, 32), mustEncode(t, protocol.CmdPing, nil)...))
	if len(res.frames) != 1 {
		t.Fatalf("expected recovery after overflow, got %+v", res)
	}
}

func TestReceiverSmallCapacity(t *testing.T) {
	rx := NewReceiver(KindCommand, 8)
	res := feedAll(rx, mustEncode(t, protocol.CmdExec, make([]byte, 9)))
	if res.overflow != 1 || len(res.frames) != 0 {
		t.Fatalf("expected one overflow, got %+v", res)
	}
	res = feedAll(rx, mustEncode(t, protocol.CmdExec, make([]byte, 8)))
	if len(res.frames) != 1 {
		t.Fatalf("expected frame at capacity, got %+v", res)
	}
}

func TestReceiverMarkerRestartsAtCommandStage(t *testing.T) {
	rx := NewReceiver(KindCommand, protocol.MaxPayloadSize)
	// Truncated header: marker + 3-byte length, then a complete ping.
	stream := append([]byte{protocol.StartMarker, 0x03, 0x00}, mustEncode(t, protocol.CmdPing, nil)...)
	res := feedAll(rx, stream)
	if len(res.frames) != 1 || res.badCRC != 0 {
		t.Fatalf("expected a clean ping, got %+v", res)
	}
	if res.frames[0].Command != protocol.CmdPing || len(res.frames[0].Payload) != 0 {
		t.Fatalf("partial frame leaked into new frame: %+v", res.frames[0])
	}
}

func TestReceiverMarkerAtLengthHighOverflows(t *testing.T) {
	rx := NewReceiver(KindCommand, protocol.MaxPayloadSize)
	res := feedAll(rx, []byte{protocol.StartMarker, 0x07, protocol.StartMarker})
	if res.overflow != 1 || len(res.frames) != 0 {
		t.Fatalf("expected one overflow for a 0xA507 length, got %+v", res)
	}
	if rx.Stage() != AwaitStart {
		t.Fatalf("expected AwaitStart after overflow, got %s", rx.Stage())
	}
	res = feedAll(rx, mustEncode(t, protocol.CmdPing, []byte{0x01}))
	if len(res.frames) != 1 || !bytes.Equal(res.frames[0].Payload, []byte{0x01}) {
		t.Fatalf("expected recovery after overflow, got %+v", res)
	}
}

func TestReceiverAckModeAcceptsMarkerAsLengthHigh(t *testing.T) {
	rx := NewReceiver(KindAck, 0xFFFF)
	for _, b := range []byte{protocol.StartMarker, 0x00, protocol.StartMarker} {
		if ev := rx.Feed(b); ev != EventNone {
			t.Fatalf("unexpected event %d", ev)
		}
	}
	if rx.Stage() != AwaitCommand || rx.Declared() != 0xA500 {
		t.Fatalf("stage=%s declared=%#x", rx.Stage(), rx.Declared())
	}
}

func TestReceiverAcceptsMarkerInsidePayload(t *testing.T) {
	rx := NewReceiver(KindCommand, protocol.MaxPayloadSize)
	payload := make([]byte, 0xA5)
	for i := range payload {
		payload[i] = protocol.StartMarker
	}
	res := feedAll(rx, mustEncode(t, protocol.CmdExec, payload))
	if len(res.frames) != 1 {
		t.Fatalf("expected one frame, got %+v", res)
	}
	if !bytes.Equal(res.frames[0].Payload, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestReceiverBadChecksum(t *testing.T) {
	rx := NewReceiver(KindCommand, protocol.MaxPayloadSize)
	raw := mustEncode(t, protocol.CmdExec, []byte{1, 2, 3})
	raw[5] ^= 0x40
	res := feedAll(rx, raw)
	if res.badCRC != 1 || len(res.frames) != 0 {
		t.Fatalf("expected one bad checksum, got %+v", res)
	}
	if rx.Stage() != AwaitStart {
		t.Fatalf("expected AwaitStart, got %s", rx.Stage())
	}
}

func TestReceiverAckGrammar(t *testing.T) {
	rx := NewReceiver(KindAck, 0xFFFF)
	status, _ := EncodeAck(protocol.StatusBufferFull, nil)
	reply, _ := EncodeAck(protocol.StatusOK, []byte{0x01, 0x07, 0x00})

	var got []Ack
	for _, b := range append(status, reply...) {
		if rx.Feed(b) == EventFrame {
			got = append(got, Ack{Status: protocol.Status(rx.Code()), Body: append([]byte(nil), rx.Payload()...)})
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 acks, got %d", len(got))
	}
	if got[0].Status != protocol.StatusBufferFull || len(got[0].Body) != 0 {
		t.Fatalf("unexpected first ack: %+v", got[0])
	}
	if got[1].Status != protocol.StatusOK || !bytes.Equal(got[1].Body, []byte{0x01, 0x07, 0x00}) {
		t.Fatalf("unexpected second ack: %+v", got[1])
	}
}

func TestReadAckSkipsNoise(t *testing.T) {
	ack, _ := EncodeAck(protocol.StatusVMError, []byte{0xAA})
	stream := append([]byte{0x00, 0x13, 0x37}, ack...)
	rx := NewReceiver(KindAck, 0xFFFF)

	got, err := ReadAck(bufio.NewReader(bytes.NewReader(stream)), rx)
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if got.Status != protocol.StatusVMError || !bytes.Equal(got.Body, []byte{0xAA}) {
		t.Fatalf("unexpected ack: %+v", got)
	}
}

func TestReadAckErrors(t *testing.T) {
	ack, _ := EncodeAck(protocol.StatusOK, nil)
	ack[len(ack)-1] ^= 0xFF
	rx := NewReceiver(KindAck, 0xFFFF)
	if _, err := ReadAck(bytes.NewReader(ack), rx); !errors.Is(err, ErrBadChecksum) {
		t.Fatalf("expected ErrBadChecksum, got %v", err)
	}
	if _, err := ReadAck(bytes.NewReader([]byte{protocol.StartMarker, 0x01}), rx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadFrame(t *testing.T) {
	raw := mustEncode(t, protocol.CmdQueryWord, []byte{0x02, 0x00})
	rx := NewReceiver(KindCommand, protocol.MaxPayloadSize)
	f, err := ReadFrame(bytes.NewReader(raw), rx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if f.Command != protocol.CmdQueryWord || !bytes.Equal(f.Payload, []byte{0x02, 0x00}) {
		t.Fatalf("unexpected frame: %+v", f)
	}
}
