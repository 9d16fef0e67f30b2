package link_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/danmuck/v4link/internal/isa"
	"github.com/danmuck/v4link/internal/link"
	"github.com/danmuck/v4link/internal/protocol"
	"github.com/danmuck/v4link/internal/protocol/frame"
	"github.com/danmuck/v4link/internal/protocol/v4bc"
	"github.com/danmuck/v4link/internal/testutil/testlog"
	"github.com/danmuck/v4link/internal/vm"
)

func exchange(t *testing.T, l *link.Link, out *bytes.Buffer, cmd protocol.Command, payload []byte) frame.Ack {
	t.Helper()
	raw, err := frame.Encode(cmd, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := l.Write(raw); err != nil {
		t.Fatalf("feed: %v", err)
	}
	ack, err := frame.DecodeAck(out.Bytes())
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	out.Reset()
	return ack
}

func TestBundleRunsOnReferenceVM(t *testing.T) {
	testlog.Start(t)
	machine := vm.New(vm.Config{})
	out := &bytes.Buffer{}
	l, err := link.New(machine, out, link.DefaultConfig())
	if err != nil {
		t.Fatalf("new link: %v", err)
	}

	// Two unrelated words first so the bundle lands at a non-zero base.
	exchange(t, l, out, protocol.CmdExec, []byte{byte(isa.OpRet)})
	exchange(t, l, out, protocol.CmdExec, []byte{byte(isa.OpRet)})

	payload, err := v4bc.Encode(v4bc.Container{
		Main: []byte{byte(isa.OpLitU8), 3, byte(isa.OpCall), 1, 0},
		Words: []v4bc.Word{
			{Name: "SQ", Code: []byte{byte(isa.OpDup), byte(isa.OpMul), byte(isa.OpRet)}},
			{Name: "QUAD", Code: []byte{byte(isa.OpCall), 0, 0, byte(isa.OpCall), 0, 0, byte(isa.OpRet)}},
		},
	})
	if err != nil {
		t.Fatalf("encode bundle: %v", err)
	}
	ack := exchange(t, l, out, protocol.CmdExec, payload)
	if ack.Status != protocol.StatusOK || !bytes.Equal(ack.Body, []byte{3, 2, 0, 3, 0, 4, 0}) {
		t.Fatalf("ack=%s body=% x", ack.Status, ack.Body)
	}

	ack = exchange(t, l, out, protocol.CmdQueryStack, nil)
	want := []byte{1, 81, 0, 0, 0, 0}
	if ack.Status != protocol.StatusOK || !bytes.Equal(ack.Body, want) {
		t.Fatalf("stack body=% x want=% x", ack.Body, want)
	}

	ack = exchange(t, l, out, protocol.CmdQueryWord, binary.LittleEndian.AppendUint16(nil, 3))
	wantWord := []byte{4, 'Q', 'U', 'A', 'D', 7, 0, byte(isa.OpCall), 2, 0, byte(isa.OpCall), 2, 0, byte(isa.OpRet)}
	if !bytes.Equal(ack.Body, wantWord) {
		t.Fatalf("word body=% x want=% x", ack.Body, wantWord)
	}

	exchange(t, l, out, protocol.CmdReset, nil)
	if machine.NextWordIndex() != 0 || l.Store().Len() != 0 || machine.DataStackDepth() != 0 {
		t.Fatalf("reset left state behind")
	}
}

func TestMemoryQueryOnReferenceVM(t *testing.T) {
	testlog.Start(t)
	machine := vm.New(vm.Config{MemorySize: 16})
	if err := machine.WriteMemory(4, []byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatalf("write memory: %v", err)
	}
	out := &bytes.Buffer{}
	l, err := link.New(machine, out, link.DefaultConfig())
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	req := append(binary.LittleEndian.AppendUint32(nil, 4), 0x10, 0x00)
	ack := exchange(t, l, out, protocol.CmdQueryMemory, req)
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(ack.Body, want) {
		t.Fatalf("memory body=% x want=% x", ack.Body, want)
	}
}
