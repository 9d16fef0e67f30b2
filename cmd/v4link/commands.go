package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/v4link/internal/bundle"
	"github.com/danmuck/v4link/internal/host"
	"github.com/danmuck/v4link/internal/isa"
	"github.com/danmuck/v4link/internal/protocol/v4bc"
	"github.com/danmuck/v4link/internal/transport"
)

var errUsage = errors.New("bad arguments, see -h")

type cli struct {
	out     io.Writer
	timeout time.Duration
	dial    func(ctx context.Context) (io.ReadWriteCloser, error)
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "pack":
		return c.pack(rest)
	case "disasm":
		return c.disasm(rest)
	case "ports":
		return c.ports()
	case "ping", "reset", "exec", "stack", "mem", "word":
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	client := host.NewClient(conn)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	switch cmd {
	case "ping":
		start := time.Now()
		if err := client.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "ok %s\n", time.Since(start).Round(time.Microsecond))
	case "reset":
		if err := client.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "ok")
	case "exec":
		return c.exec(ctx, client, rest)
	case "stack":
		return c.stack(ctx, client)
	case "mem":
		return c.mem(ctx, client, rest)
	case "word":
		return c.word(ctx, client, rest)
	}
	return nil
}

func (c *cli) exec(ctx context.Context, client *host.Client, args []string) error {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	hexCode := fs.String("x", "", "bytecode as hex")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	var payload []byte
	var err error
	switch {
	case *hexCode != "":
		payload, err = parseHex(*hexCode)
	case fs.NArg() == 1:
		payload, err = loadCode(fs.Arg(0))
	default:
		return fmt.Errorf("exec: %w", errUsage)
	}
	if err != nil {
		return err
	}

	indices, err := client.Exec(ctx, payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "registered %d word(s):", len(indices))
	for _, idx := range indices {
		fmt.Fprintf(c.out, " %d", idx)
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *cli) stack(ctx context.Context, client *host.Client) error {
	s, err := client.QueryStack(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "ds (%d): %s\n", len(s.Data), formatStack(s.Data))
	fmt.Fprintf(c.out, "rs (%d): %s\n", len(s.Return), formatStack(s.Return))
	return nil
}

func (c *cli) mem(ctx context.Context, client *host.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("mem: %w", errUsage)
	}
	addr, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("mem: address: %w", err)
	}
	n, err := strconv.ParseUint(args[1], 0, 16)
	if err != nil {
		return fmt.Errorf("mem: length: %w", err)
	}
	data, err := client.QueryMemory(ctx, uint32(addr), uint16(n))
	if err != nil {
		return err
	}
	for off := 0; off < len(data); off += 16 {
		end := min(off+16, len(data))
		fmt.Fprintf(c.out, "%08x  % x\n", uint32(addr)+uint32(off), data[off:end])
	}
	return nil
}

func (c *cli) word(ctx context.Context, client *host.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("word: %w", errUsage)
	}
	idx, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		return fmt.Errorf("word: index: %w", err)
	}
	w, err := client.QueryWord(ctx, uint16(idx))
	if err != nil {
		return err
	}
	name := w.Name
	if name == "" {
		name = "(anonymous)"
	}
	fmt.Fprintf(c.out, "word %d %s, %d byte(s)\n", idx, name, len(w.Code))
	fmt.Fprint(c.out, isa.Disassemble(w.Code))
	return nil
}

func (c *cli) pack(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("pack: %w", errUsage)
	}
	raw, err := bundle.Pack(args[0])
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], raw, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "wrote %s (%d bytes)\n", args[1], len(raw))
	return nil
}

func (c *cli) disasm(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("disasm: %w", errUsage)
	}
	code, err := loadCode(args[0])
	if err != nil {
		return err
	}
	if !v4bc.Detect(code) {
		fmt.Fprint(c.out, isa.Disassemble(code))
		return nil
	}
	b, err := v4bc.Parse(code)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "; V4BC %d.%d, %d word(s)\n", b.Major, b.Minor, len(b.Words))
	for i, w := range b.Words {
		fmt.Fprintf(c.out, "\n; word %d %s\n", i, w.Name)
		fmt.Fprint(c.out, isa.Disassemble(w.Code))
	}
	if len(b.Main) > 0 {
		fmt.Fprintln(c.out, "\n; main")
		fmt.Fprint(c.out, isa.Disassemble(b.Main))
	}
	return nil
}

func (c *cli) ports() error {
	ports, err := transport.ListSerialPorts()
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Fprintln(c.out, p)
	}
	return nil
}

// loadCode reads a bundle manifest (.toml) as a packed container and any
// other file as raw bytes.
func loadCode(path string) ([]byte, error) {
	if strings.HasSuffix(strings.ToLower(path), ".toml") {
		return bundle.Pack(path)
	}
	return os.ReadFile(path)
}

func parseHex(s string) ([]byte, error) {
	clean := strings.Join(strings.Fields(s), "")
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("bad hex: %w", err)
	}
	return b, nil
}

func formatStack(vals []int32) string {
	if len(vals) == 0 {
		return "<empty>"
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, " ")
}
