package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danmuck/v4link/internal/logging"
	"github.com/danmuck/v4link/internal/transport"
)

const usage = `usage: v4link [flags] <command> [args]

commands:
  ping                       check the device answers
  reset                      reset the VM and drop every word
  exec FILE | -x HEX         run raw bytecode, a .v4bc container or a .toml bundle manifest
  stack                      print the data and return stacks
  mem ADDR LEN               dump LEN bytes at ADDR
  word IDX                   print a word and its disassembly
  pack MANIFEST OUT          write a .v4bc container from a bundle manifest
  disasm FILE                disassemble raw bytecode or a .v4bc container
  ports                      list serial ports

flags:
`

func main() {
	addr := flag.String("addr", "127.0.0.1:7400", "simulator tcp address")
	port := flag.String("port", "", "serial port (overrides -addr)")
	baud := flag.Int("baud", 115200, "serial baud rate")
	timeout := flag.Duration("timeout", 3*time.Second, "per-command timeout")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	logging.ConfigureRuntime()

	c := &cli{
		out:     os.Stdout,
		timeout: *timeout,
		dial: func(ctx context.Context) (io.ReadWriteCloser, error) {
			if *port != "" {
				return transport.OpenSerial(transport.SerialConfig{Port: *port, BaudRate: *baud})
			}
			return transport.DialTCP(ctx, *addr)
		},
	}
	if err := c.run(context.Background(), flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "v4link: %v\n", err)
		os.Exit(1)
	}
}
