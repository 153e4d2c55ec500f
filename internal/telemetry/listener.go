package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Listen binds the telemetry TCP endpoint.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return ln, nil
}

// Serve accepts connections on ln and runs h.ServeConn for each in its own
// goroutine. It returns after ctx is cancelled and every connection has
// finished.
func Serve(ctx context.Context, ln net.Listener, h *Handler, logger *slog.Logger) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logger.Info("telemetry listening", "addr", ln.Addr().String())

	var active sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			logger.Error("accept failed", "error", err)
			continue
		}

		active.Add(1)
		go func() {
			defer active.Done()
			h.ServeConn(ctx, conn)
		}()
	}

	active.Wait()
	return nil
}
