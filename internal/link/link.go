package link

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/v4link/internal/protocol"
	"github.com/danmuck/v4link/internal/protocol/frame"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNilVM           = errors.New("link: vm is nil")
	ErrNilWriter       = errors.New("link: writer is nil")
	ErrInvalidCapacity = errors.New("link: invalid buffer capacity")
)

// Outcome classifies how a reception attempt ended.
type Outcome string

const (
	OutcomeFrame       Outcome = "frame"
	OutcomeBadChecksum Outcome = "bad_checksum"
	OutcomeOverflow    Outcome = "overflow"
)

// Record describes one answered frame. Payload and Reply are only valid for
// the duration of the Observe call.
type Record struct {
	Outcome    Outcome
	Command    protocol.Command
	Status     protocol.Status
	Payload    []byte
	Reply      []byte
	RxBytes    int
	TxBytes    int
	Registered []int
}

// Observer receives a Record after each ack is written.
type Observer interface {
	Observe(rec Record)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Record)

func (f ObserverFunc) Observe(rec Record) { f(rec) }

// Config is fixed at construction.
type Config struct {
	// Capacity is the largest payload length the link accepts (1..512).
	Capacity int
	Observer Observer
}

func DefaultConfig() Config {
	return Config{Capacity: protocol.MaxPayloadSize}
}

// Validate checks capacity bounds.
func (c Config) Validate() error {
	if c.Capacity < 1 || c.Capacity > protocol.MaxPayloadSize {
		return fmt.Errorf("%w: %d not in 1..%d", ErrInvalidCapacity, c.Capacity, protocol.MaxPayloadSize)
	}
	return nil
}

// Link is one device-side protocol session.
type Link struct {
	cfg   Config
	vm    VM
	out   io.Writer
	rx    *frame.Receiver
	store *Store
	log   zerolog.Logger

	registered []int
}

// New builds a link that answers on out. A zero Capacity selects the default.
func New(vm VM, out io.Writer, cfg Config) (*Link, error) {
	if vm == nil {
		return nil, ErrNilVM
	}
	if out == nil {
		return nil, ErrNilWriter
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Link{
		cfg:   cfg,
		vm:    vm,
		out:   out,
		rx:    frame.NewReceiver(frame.KindCommand, cfg.Capacity),
		store: NewStore(),
		log:   log.Logger.With().Str("component", "link").Logger(),
	}, nil
}

func (l *Link) Capacity() int      { return l.cfg.Capacity }
func (l *Link) Stage() frame.Stage { return l.rx.Stage() }
func (l *Link) Store() *Store      { return l.store }
func (l *Link) VM() VM             { return l.vm }

// Feed consumes one byte. Completed frames are dispatched and acknowledged
// before Feed returns. The only error is a failed ack write.
func (l *Link) Feed(b byte) error {
	switch l.rx.Feed(b) {
	case frame.EventOverflow:
		l.log.Debug().Msgf("link.Link.Feed overflow declared=%d capacity=%d", l.rx.Declared(), l.cfg.Capacity)
		return l.reply(Record{
			Outcome: OutcomeOverflow,
			Status:  protocol.StatusBufferFull,
			RxBytes: l.rx.Buffered(),
		})

	case frame.EventBadChecksum:
		l.log.Debug().Msgf("link.Link.Feed bad checksum cmd=0x%02x len=%d", l.rx.Code(), l.rx.Declared())
		return l.reply(Record{
			Outcome: OutcomeBadChecksum,
			Command: protocol.Command(l.rx.Code()),
			Status:  protocol.StatusInvalidFrame,
			RxBytes: l.rx.Buffered(),
		})

	case frame.EventFrame:
		cmd := protocol.Command(l.rx.Code())
		payload := l.rx.Payload()
		l.registered = l.registered[:0]
		status, body := l.dispatch(cmd, payload)
		return l.reply(Record{
			Outcome:    OutcomeFrame,
			Command:    cmd,
			Status:     status,
			Payload:    payload,
			Reply:      body,
			RxBytes:    l.rx.Buffered(),
			Registered: l.registered,
		})
	}
	return nil
}

// Write feeds p one byte at a time so a Link can sit behind io.Copy.
func (l *Link) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := l.Feed(b); err != nil {
			return i + 1, err
		}
	}
	return len(p), nil
}

func (l *Link) reply(rec Record) error {
	raw, err := frame.EncodeAck(rec.Status, rec.Reply)
	if err != nil {
		// Only reachable with a reply body beyond the u16 length field.
		l.log.Error().Msgf("link.Link.reply encode cmd=%s err=%v", rec.Command, err)
		rec.Status = protocol.StatusError
		rec.Reply = nil
		raw, _ = frame.EncodeAck(rec.Status, nil)
	}
	rec.TxBytes = len(raw)
	_, werr := l.out.Write(raw)
	if l.cfg.Observer != nil {
		l.cfg.Observer.Observe(rec)
	}
	if werr != nil {
		return fmt.Errorf("link: write ack: %w", werr)
	}
	return nil
}

func (l *Link) dispatch(cmd protocol.Command, payload []byte) (protocol.Status, []byte) {
	switch cmd {
	case protocol.CmdPing:
		return protocol.StatusOK, nil
	case protocol.CmdReset:
		return l.handleReset()
	case protocol.CmdExec:
		return l.handleExec(payload)
	case protocol.CmdQueryStack:
		return l.handleQueryStack()
	case protocol.CmdQueryMemory:
		return l.handleQueryMemory(payload)
	case protocol.CmdQueryWord:
		return l.handleQueryWord(payload)
	default:
		l.log.Debug().Msgf("link.Link.dispatch unknown cmd=%s len=%d", cmd, len(payload))
		return protocol.StatusError, nil
	}
}
