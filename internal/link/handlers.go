package link

import (
	"encoding/binary"

	"github.com/danmuck/v4link/internal/protocol"
)

const (
	// MaxDataStackReply is the data-stack copy limit; the one-byte depth
	// field lowers the effective limit to 255.
	MaxDataStackReply   = 256
	MaxReturnStackReply = 64
	MaxMemoryReply      = 256
	MaxWordNameReply    = 63

	memoryRequestLen = 6
	wordRequestLen   = 2
)

func (l *Link) handleReset() (protocol.Status, []byte) {
	l.vm.Reset()
	l.store.Clear()
	l.log.Info().Msg("link.Link.handleReset vm and store cleared")
	return protocol.StatusOK, nil
}

func (l *Link) handleQueryStack() (protocol.Status, []byte) {
	ds := l.vm.DataStackDepth()
	rs := l.vm.ReturnStackDepth()
	if ds < 0 || rs < 0 {
		l.log.Warn().Msgf("link.Link.handleQueryStack bad depth ds=%d rs=%d", ds, rs)
		return protocol.StatusVMError, nil
	}
	data := l.vm.CopyDataStack(min(ds, MaxDataStackReply, 0xFF))
	if len(data) > 0xFF {
		data = data[:0xFF]
	}
	ret := l.vm.CopyReturnStack(min(rs, MaxReturnStackReply))
	if len(ret) > MaxReturnStackReply {
		ret = ret[:MaxReturnStackReply]
	}

	body := make([]byte, 0, 2+4*(len(data)+len(ret)))
	body = append(body, byte(len(data)))
	for _, v := range data {
		body = binary.LittleEndian.AppendUint32(body, uint32(v))
	}
	body = append(body, byte(len(ret)))
	for _, v := range ret {
		body = binary.LittleEndian.AppendUint32(body, uint32(v))
	}
	return protocol.StatusOK, body
}

func (l *Link) handleQueryMemory(payload []byte) (protocol.Status, []byte) {
	if len(payload) < memoryRequestLen {
		return protocol.StatusInvalidFrame, nil
	}
	addr := binary.LittleEndian.Uint32(payload[0:4])
	n := min(int(binary.LittleEndian.Uint16(payload[4:6])), MaxMemoryReply)

	body := make([]byte, 0, n)
	var word [4]byte
	for off := 0; off < n; off += 4 {
		v, err := l.vm.ReadMemoryWord(addr + uint32(off))
		if err != nil {
			v = 0
		}
		binary.LittleEndian.PutUint32(word[:], v)
		body = append(body, word[:min(4, n-off)]...)
	}
	return protocol.StatusOK, body
}

func (l *Link) handleQueryWord(payload []byte) (protocol.Status, []byte) {
	if len(payload) < wordRequestLen {
		return protocol.StatusInvalidFrame, nil
	}
	idx := int(binary.LittleEndian.Uint16(payload[0:2]))
	w, ok := l.vm.LookupWord(idx)
	if !ok {
		return protocol.StatusVMError, nil
	}
	name := w.Name
	if len(name) > MaxWordNameReply {
		name = name[:MaxWordNameReply]
	}
	// status + name_len + name + code_len must leave room inside one frame.
	room := protocol.MaxPayloadSize - 1 - 1 - len(name) - 2
	code := w.Code
	if len(code) > room {
		code = code[:room]
	}

	body := make([]byte, 0, 1+len(name)+2+len(code))
	body = append(body, byte(len(name)))
	body = append(body, name...)
	body = binary.LittleEndian.AppendUint16(body, uint16(len(code)))
	body = append(body, code...)
	return protocol.StatusOK, body
}
