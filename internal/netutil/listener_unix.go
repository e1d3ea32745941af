//go:build !windows

// Package netutil provides the HTTP-listener helpers the Prometheus sink
// and its service-discovery endpoint depend on: a SO_REUSEADDR/REUSEPORT
// listener and external-interface address discovery.
package netutil

import (
	"context"
	"log/slog"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// control sets SO_REUSEADDR and SO_REUSEPORT on the listening socket so a
// restarted daemon can rebind immediately.
func control(logger *slog.Logger) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		return c.Control(func(fd uintptr) {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil && logger != nil {
				logger.Warn("could not set SO_REUSEADDR", "error", err)
			}
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil && logger != nil {
				logger.Warn("could not set SO_REUSEPORT", "error", err)
			}
		})
	}
}

// Listen creates a TCP listener on addr with SO_REUSEADDR/REUSEPORT set.
func Listen(ctx context.Context, addr string, logger *slog.Logger) (net.Listener, error) {
	lc := net.ListenConfig{Control: control(logger)}
	return lc.Listen(ctx, "tcp", addr)
}
