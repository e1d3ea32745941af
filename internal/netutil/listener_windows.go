//go:build windows

package netutil

import (
	"context"
	"log/slog"
	"net"
	"syscall"

	"golang.org/x/sys/windows"
)

func control(logger *slog.Logger) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		return c.Control(func(fd uintptr) {
			if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil && logger != nil {
				logger.Warn("could not set SO_REUSEADDR", "error", err)
			}
		})
	}
}

// Listen creates a TCP listener on addr with SO_REUSEADDR set.
func Listen(ctx context.Context, addr string, logger *slog.Logger) (net.Listener, error) {
	lc := net.ListenConfig{Control: control(logger)}
	return lc.Listen(ctx, "tcp", addr)
}
