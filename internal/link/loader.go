package link

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/v4link/internal/protocol"
	"github.com/danmuck/v4link/internal/protocol/v4bc"
	"github.com/danmuck/v4link/internal/reloc"
)

var (
	ErrIndexMismatch  = errors.New("link: vm assigned an unexpected word index")
	ErrBundleTooLarge = errors.New("link: bundle registers more than 255 words")
)

// maxBundleEntries is bounded by the one-byte count in the Exec reply.
const maxBundleEntries = 0xFF

func (l *Link) handleExec(payload []byte) (protocol.Status, []byte) {
	if v4bc.Detect(payload) {
		return l.execContainer(payload)
	}
	return l.execRaw(payload)
}

func (l *Link) execRaw(code []byte) (protocol.Status, []byte) {
	idx, err := l.register("", code, -1)
	if err != nil {
		l.log.Warn().Msgf("link.Link.execRaw register len=%d err=%v", len(code), err)
		return protocol.StatusVMError, nil
	}
	l.run(idx)
	return protocol.StatusOK, indexReply([]int{idx})
}

func (l *Link) execContainer(payload []byte) (protocol.Status, []byte) {
	bundle, err := v4bc.Parse(payload)
	if err != nil {
		l.log.Warn().Msgf("link.Link.execContainer parse err=%v", err)
		return protocol.StatusError, nil
	}
	entries := len(bundle.Words)
	if len(bundle.Main) > 0 {
		entries++
	}
	if entries > maxBundleEntries {
		l.log.Warn().Msgf("link.Link.execContainer err=%v entries=%d", ErrBundleTooLarge, entries)
		return protocol.StatusError, nil
	}

	base := l.nextIndex()
	// Parse already copied every code slice; relocate them all before the
	// first registration so a bad stream registers nothing.
	for i := range bundle.Words {
		if _, err := reloc.Calls(bundle.Words[i].Code, base); err != nil {
			l.log.Warn().Msgf("link.Link.execContainer relocate word=%q err=%v", bundle.Words[i].Name, err)
			return protocol.StatusError, nil
		}
	}
	if _, err := reloc.Calls(bundle.Main, base); err != nil {
		l.log.Warn().Msgf("link.Link.execContainer relocate main err=%v", err)
		return protocol.StatusError, nil
	}

	indices := make([]int, 0, entries)
	for i, w := range bundle.Words {
		idx, err := l.register(w.Name, w.Code, base+i)
		if err != nil {
			l.log.Warn().Msgf("link.Link.execContainer register word=%q registered=%d err=%v", w.Name, len(indices), err)
			return protocol.StatusVMError, nil
		}
		indices = append(indices, idx)
	}
	if len(bundle.Main) > 0 {
		idx, err := l.register("", bundle.Main, base+len(bundle.Words))
		if err != nil {
			l.log.Warn().Msgf("link.Link.execContainer register main err=%v", err)
			return protocol.StatusVMError, nil
		}
		indices = append(indices, idx)
		l.run(idx)
	}
	l.log.Debug().Msgf("link.Link.execContainer loaded words=%d base=%d", len(indices), base)
	return protocol.StatusOK, indexReply(indices)
}

// register persists code and hands the owned copy to the VM. want < 0 accepts
// any index.
func (l *Link) register(name string, code []byte, want int) (int, error) {
	_, owned := l.store.Add(code)
	idx, err := l.vm.RegisterWord(name, owned)
	if err != nil {
		l.store.dropLast()
		return 0, fmt.Errorf("link: register %q: %w", name, err)
	}
	if want >= 0 && idx != want {
		// The VM accepted the word, so the persisted copy stays owned by the store.
		return idx, fmt.Errorf("%w: got %d want %d", ErrIndexMismatch, idx, want)
	}
	l.registered = append(l.registered, idx)
	return idx, nil
}

func (l *Link) nextIndex() int {
	if p, ok := l.vm.(IndexPredictor); ok {
		return p.NextWordIndex()
	}
	return l.store.Len()
}

func (l *Link) run(idx int) {
	if err := l.vm.Execute(idx); err != nil {
		l.log.Debug().Msgf("link.Link.run word=%d err=%v", idx, err)
	}
}

func indexReply(indices []int) []byte {
	body := make([]byte, 0, 1+2*len(indices))
	body = append(body, byte(len(indices)))
	for _, idx := range indices {
		body = binary.LittleEndian.AppendUint16(body, uint16(idx))
	}
	return body
}
