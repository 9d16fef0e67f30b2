// Package transport carries link bytes over a UART or TCP.
package transport

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ConnHandler serves one accepted connection and returns when it is done.
type ConnHandler func(ctx context.Context, conn net.Conn)

// ListenTCP accepts connections on addr until ctx is cancelled. Each
// connection is handled on its own goroutine and closed when the handler
// returns. ListenTCP waits for running handlers before it returns.
func ListenTCP(ctx context.Context, addr string, handle ConnHandler) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	return ServeListener(ctx, ln, handle)
}

// ServeListener is ListenTCP over an existing listener, which it closes.
func ServeListener(ctx context.Context, ln net.Listener, handle ConnHandler) error {
	defer ln.Close()
	log.Info().Msgf("transport.ListenTCP listening addr=%q", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			remote := conn.RemoteAddr().String()
			log.Info().Msgf("transport.ListenTCP client connected remote=%q", remote)
			handle(ctx, conn)
			log.Info().Msgf("transport.ListenTCP client disconnected remote=%q", remote)
		}()
	}
}

// DialTCP connects to a simulator listening on addr.
func DialTCP(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", strings.TrimSpace(addr))
}
