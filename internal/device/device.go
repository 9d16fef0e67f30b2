// Package device runs a link and its VM as a simulated target: it pumps bytes
// from a transport into the link and serializes every access to VM state.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/danmuck/v4link/internal/link"
	"github.com/danmuck/v4link/internal/vm"
	"github.com/rs/zerolog/log"
)

var ErrBusy = errors.New("device: already serving a connection")

const readChunk = 256

// Device owns one VM and one link. All methods are safe for concurrent use.
type Device struct {
	mu      sync.Mutex
	machine *vm.Machine
	link    *link.Link
	out     *swapWriter
	serving atomic.Bool
}

// New wires machine behind a link configured by cfg.
func New(machine *vm.Machine, cfg link.Config) (*Device, error) {
	if machine == nil {
		return nil, link.ErrNilVM
	}
	out := &swapWriter{}
	l, err := link.New(machine, out, cfg)
	if err != nil {
		return nil, err
	}
	return &Device{machine: machine, link: l, out: out}, nil
}

// Serve feeds bytes read from rw into the link and writes acks back to rw
// until rw reports EOF or ctx is cancelled. Cancellation closes rw when it
// implements io.Closer. Only one connection is served at a time.
func (d *Device) Serve(ctx context.Context, rw io.ReadWriter) error {
	if !d.serving.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer d.serving.Store(false)

	d.mu.Lock()
	d.out.set(rw)
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.out.set(nil)
		d.mu.Unlock()
	}()

	stop := make(chan struct{})
	defer close(stop)
	if c, ok := rw.(io.Closer); ok {
		go func() {
			select {
			case <-ctx.Done():
				_ = c.Close()
			case <-stop:
			}
		}()
	}

	buf := make([]byte, readChunk)
	for {
		n, rerr := rw.Read(buf)
		if n > 0 {
			d.mu.Lock()
			_, werr := d.link.Write(buf[:n])
			d.mu.Unlock()
			if werr != nil {
				return werr
			}
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return fmt.Errorf("device: read: %w", rerr)
		}
	}
}

// Feed pushes bytes into the link outside of Serve, with acks going to w.
func (d *Device) Feed(p []byte, w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.out.w
	d.out.set(w)
	defer d.out.set(prev)
	_, err := d.link.Write(p)
	return err
}

// Snapshot is a consistent view of device state for the admin surface.
type Snapshot struct {
	Words       int     `json:"words"`
	StoreBytes  int     `json:"store_bytes"`
	DataStack   []int32 `json:"data_stack"`
	ReturnStack []int32 `json:"return_stack"`
	Stage       string  `json:"rx_stage"`
	Capacity    int     `json:"capacity"`
	Serving     bool    `json:"serving"`
}

func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		Words:       d.machine.NextWordIndex(),
		StoreBytes:  d.link.Store().Bytes(),
		DataStack:   d.machine.CopyDataStack(d.machine.DataStackDepth()),
		ReturnStack: d.machine.CopyReturnStack(d.machine.ReturnStackDepth()),
		Stage:       d.link.Stage().String(),
		Capacity:    d.link.Capacity(),
		Serving:     d.serving.Load(),
	}
}

// Words lists the dictionary in index order.
func (d *Device) Words() []link.Word {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.machine.Words()
}

// Word returns one dictionary entry.
func (d *Device) Word(idx int) (link.Word, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.machine.LookupWord(idx)
}

// Reset clears the VM and the bytecode store, as the Reset command does.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.machine.Reset()
	d.link.Store().Clear()
	log.Info().Msg("device.Device.Reset cleared by admin")
}

// swapWriter forwards to the current connection; acks with no connection are dropped.
type swapWriter struct {
	w io.Writer
}

func (s *swapWriter) set(w io.Writer) { s.w = w }

func (s *swapWriter) Write(p []byte) (int, error) {
	if s.w == nil {
		return len(p), nil
	}
	return s.w.Write(p)
}
