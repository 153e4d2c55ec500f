package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
)

// Listen binds the unix control socket at path, removing a stale socket
// file left by a previous run.
func Listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	return ln, nil
}

// Serve accepts firmware connections on ln until ctx is cancelled and
// installs each one into ch. Accept failures are logged and the loop
// keeps going.
func Serve(ctx context.Context, ln net.Listener, ch *Channel, logger *slog.Logger) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logger.Info("command socket listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			logger.Error("accept failed", "error", err)
			continue
		}

		logger.Info("firmware connected to command socket")
		ch.Install(conn)
	}

	ch.Close()
	return nil
}
