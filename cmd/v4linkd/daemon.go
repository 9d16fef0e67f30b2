package main

import (
	"context"
	"errors"
	"io"
	"net"
	"os"

	"github.com/danmuck/v4link/internal/config"
	"github.com/danmuck/v4link/internal/device"
	"github.com/danmuck/v4link/internal/journal"
	"github.com/danmuck/v4link/internal/link"
	"github.com/danmuck/v4link/internal/observability"
	"github.com/danmuck/v4link/internal/server"
	"github.com/danmuck/v4link/internal/transport"
	"github.com/danmuck/v4link/internal/vm"
	"github.com/rs/zerolog/log"
)

// daemon is one simulated device plus its optional journal and admin server.
type daemon struct {
	cfg     config.DaemonConfig
	device  *device.Device
	journal *journal.Journal
	admin   *server.Server
}

func newDaemon(cfg config.DaemonConfig) (*daemon, error) {
	observers := observability.Observers{observability.LinkObserver()}

	d := &daemon{cfg: cfg}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		d.journal = j
		observers = append(observers, j)
	}

	machine := vm.New(vm.Config{
		MemorySize:      cfg.VM.MemorySize,
		DataStackSize:   cfg.VM.DataStack,
		ReturnStackSize: cfg.VM.ReturnStack,
		MaxSteps:        cfg.VM.MaxSteps,
	})
	dev, err := device.New(machine, link.Config{Capacity: cfg.Capacity, Observer: observers})
	if err != nil {
		d.close()
		return nil, err
	}
	d.device = dev

	if cfg.AdminAddr != "" {
		var frames server.FrameLog
		if d.journal != nil {
			frames = d.journal
		}
		d.admin = server.New(server.Config{
			Name:        cfg.Name,
			Addr:        cfg.AdminAddr,
			CORSOrigins: cfg.CorsOrigins,
		}, dev, frames)
	}
	return d, nil
}

// run serves the configured transport and the admin server until ctx ends
// or either of them fails.
func (d *daemon) run(ctx context.Context) error {
	defer d.close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	running := 1
	go func() { errCh <- d.serveLink(ctx) }()
	if d.admin != nil {
		running++
		go func() { errCh <- d.admin.Serve(ctx) }()
	}

	log.Info().Msgf("v4linkd.daemon.run started name=%q transport=%s capacity=%d", d.cfg.Name, d.cfg.Transport, d.cfg.Capacity)
	var first error
	for ; running > 0; running-- {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && first == nil {
			first = err
		}
		cancel()
	}
	log.Info().Msgf("v4linkd.daemon.run stopped name=%q", d.cfg.Name)
	return first
}

func (d *daemon) serveLink(ctx context.Context) error {
	switch d.cfg.Transport {
	case config.TransportSerial:
		port, err := transport.OpenSerial(transport.SerialConfig{
			Port:     d.cfg.Serial.Port,
			BaudRate: d.cfg.Serial.BaudRate,
		})
		if err != nil {
			return err
		}
		defer port.Close()
		log.Info().Msgf("v4linkd.daemon.serveLink serial port=%q baud=%d", port.Name(), d.cfg.Serial.BaudRate)
		return d.device.Serve(ctx, port)

	case config.TransportStdio:
		return d.device.Serve(ctx, stdio{Reader: os.Stdin, Writer: os.Stdout})

	default:
		return transport.ListenTCP(ctx, d.cfg.ListenAddr, func(ctx context.Context, conn net.Conn) {
			if err := d.device.Serve(ctx, conn); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Msgf("v4linkd.daemon.serveLink remote=%q err=%v", conn.RemoteAddr().String(), err)
			}
		})
	}
}

func (d *daemon) close() {
	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			log.Warn().Msgf("v4linkd.daemon.close journal err=%v", err)
		}
	}
}

type stdio struct {
	io.Reader
	io.Writer
}
