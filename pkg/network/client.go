package network

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"meridian-hq/janus/pkg/event"
)

// NewClientConnection starts a non-blocking connect to address
// ("host:port"). The returned connection is in the connecting state until
// the first write-ready event, at which point Connected is raised (or
// RemoteClose if the connect failed).
func NewClientConnection(dispatcher *event.Dispatcher, address string, logger *slog.Logger) (*Connection, error) {
	sa, err := resolveTCPSockaddr(address)
	if err != nil {
		return nil, err
	}
	domain := unix.AF_INET
	if _, isV6 := sa.(*unix.SockaddrInet6); isV6 {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("network: socket: %w", err)
	}

	switch err = unix.Connect(fd, sa); err {
	case nil, unix.EINPROGRESS:
		// Localhost connects can complete immediately; either way the
		// Connected event is raised from the first write-ready dispatch.
	default:
		unix.Close(fd)
		return nil, fmt.Errorf("network: connect %s: %w", address, err)
	}

	conn, err := newConnection(dispatcher, fd, address, true, logger)
	if err != nil {
		return nil, err
	}
	conn.NoDelay(true)
	return conn, nil
}
