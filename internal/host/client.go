// Package host is the controller side of the link: it sends command frames
// and decodes the device's acks.
package host

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/danmuck/v4link/internal/protocol"
	"github.com/danmuck/v4link/internal/protocol/frame"
	"github.com/danmuck/v4link/internal/protocol/v4bc"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrMalformedReply = errors.New("host: malformed reply")

// StatusError reports a device ack whose status is not Ok.
type StatusError struct {
	Command protocol.Command
	Status  protocol.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("host: %s: device replied %s", e.Command, e.Status)
}

// IsStatus reports whether err is a StatusError carrying status.
func IsStatus(err error, status protocol.Status) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Client issues one request at a time over rw.
type Client struct {
	mu  sync.Mutex
	rw  io.ReadWriter
	r   *bufio.Reader
	rx  *frame.Receiver
	log zerolog.Logger
}

func NewClient(rw io.ReadWriter) *Client {
	return &Client{
		rw:  rw,
		r:   bufio.NewReader(rw),
		rx:  frame.NewReceiver(frame.KindAck, 0xFFFF),
		log: log.Logger.With().Str("component", "host").Logger(),
	}
}

// Do sends one frame and waits for its ack. A context deadline is applied to
// connections that support SetDeadline.
func (c *Client) Do(ctx context.Context, cmd protocol.Command, payload []byte) (frame.Ack, error) {
	raw, err := frame.Encode(cmd, payload)
	if err != nil {
		return frame.Ack{}, err
	}
	if err := ctx.Err(); err != nil {
		return frame.Ack{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.rw.(deadliner); ok {
		deadline, _ := ctx.Deadline()
		if err := d.SetDeadline(deadline); err != nil {
			return frame.Ack{}, fmt.Errorf("host: set deadline: %w", err)
		}
	}
	if _, err := c.rw.Write(raw); err != nil {
		return frame.Ack{}, fmt.Errorf("host: write %s: %w", cmd, err)
	}
	c.rx.Reset()
	ack, err := frame.ReadAck(c.r, c.rx)
	if err != nil {
		return frame.Ack{}, fmt.Errorf("host: read %s ack: %w", cmd, err)
	}
	c.log.Debug().Msgf("host.Client.Do cmd=%s tx=%d status=%s body=%d", cmd, len(raw), ack.Status, len(ack.Body))
	if ack.Status != protocol.StatusOK {
		return ack, &StatusError{Command: cmd, Status: ack.Status}
	}
	return ack, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, protocol.CmdPing, nil)
	return err
}

func (c *Client) Reset(ctx context.Context) error {
	_, err := c.Do(ctx, protocol.CmdReset, nil)
	return err
}

// Exec sends raw bytecode or an encoded container and returns the word
// indices the device assigned.
func (c *Client) Exec(ctx context.Context, code []byte) ([]int, error) {
	ack, err := c.Do(ctx, protocol.CmdExec, code)
	if err != nil {
		return nil, err
	}
	return parseIndices(ack.Body)
}

// ExecBundle encodes b and sends it as one Exec frame.
func (c *Client) ExecBundle(ctx context.Context, b v4bc.Container) ([]int, error) {
	raw, err := v4bc.Encode(b)
	if err != nil {
		return nil, err
	}
	return c.Exec(ctx, raw)
}

func parseIndices(body []byte) ([]int, error) {
	if len(body) < 1 || len(body) != 1+2*int(body[0]) {
		return nil, fmt.Errorf("%w: exec reply of %d bytes", ErrMalformedReply, len(body))
	}
	out := make([]int, body[0])
	for i := range out {
		out[i] = int(binary.LittleEndian.Uint16(body[1+2*i:]))
	}
	return out, nil
}

// Stacks is a QueryStack snapshot, bottom entries first.
type Stacks struct {
	Data   []int32
	Return []int32
}

func (c *Client) QueryStack(ctx context.Context) (Stacks, error) {
	ack, err := c.Do(ctx, protocol.CmdQueryStack, nil)
	if err != nil {
		return Stacks{}, err
	}
	body := ack.Body
	data, body, err := takeStack(body)
	if err != nil {
		return Stacks{}, err
	}
	ret, body, err := takeStack(body)
	if err != nil {
		return Stacks{}, err
	}
	if len(body) != 0 {
		return Stacks{}, fmt.Errorf("%w: %d trailing stack bytes", ErrMalformedReply, len(body))
	}
	return Stacks{Data: data, Return: ret}, nil
}

func takeStack(body []byte) ([]int32, []byte, error) {
	if len(body) < 1 {
		return nil, nil, fmt.Errorf("%w: missing stack depth", ErrMalformedReply)
	}
	n := int(body[0])
	body = body[1:]
	if len(body) < 4*n {
		return nil, nil, fmt.Errorf("%w: stack of %d needs %d bytes, have %d", ErrMalformedReply, n, 4*n, len(body))
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(body[4*i:]))
	}
	return out, body[4*n:], nil
}

// QueryMemory reads n bytes at addr. The device clamps n to 256.
func (c *Client) QueryMemory(ctx context.Context, addr uint32, n uint16) ([]byte, error) {
	req := binary.LittleEndian.AppendUint32(make([]byte, 0, 6), addr)
	req = binary.LittleEndian.AppendUint16(req, n)
	ack, err := c.Do(ctx, protocol.CmdQueryMemory, req)
	if err != nil {
		return nil, err
	}
	return ack.Body, nil
}

// WordInfo is a QueryWord reply. Code may be truncated by the device.
type WordInfo struct {
	Name string
	Code []byte
}

func (c *Client) QueryWord(ctx context.Context, idx uint16) (WordInfo, error) {
	ack, err := c.Do(ctx, protocol.CmdQueryWord, binary.LittleEndian.AppendUint16(nil, idx))
	if err != nil {
		return WordInfo{}, err
	}
	body := ack.Body
	if len(body) < 1 || len(body) < 1+int(body[0])+2 {
		return WordInfo{}, fmt.Errorf("%w: word reply of %d bytes", ErrMalformedReply, len(body))
	}
	nameLen := int(body[0])
	name := string(body[1 : 1+nameLen])
	codeLen := int(binary.LittleEndian.Uint16(body[1+nameLen:]))
	code := body[1+nameLen+2:]
	if len(code) != codeLen {
		return WordInfo{}, fmt.Errorf("%w: code_len %d but %d bytes follow", ErrMalformedReply, codeLen, len(code))
	}
	return WordInfo{Name: name, Code: code}, nil
}
