package network

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"meridian-hq/janus/pkg/event"
)

// ListenerCallbacks receives each accepted connection. The listener owns
// nothing beyond the accept; ownership of the connection passes to the
// callback.
type ListenerCallbacks interface {
	OnNewConnection(conn *Connection)
}

// Listener accepts TCP connections on a dispatcher.
type Listener struct {
	dispatcher *event.Dispatcher
	fd         int
	fileEvent  *event.FileEvent
	callbacks  ListenerCallbacks
	logger     *slog.Logger
}

// NewListener binds and listens on address ("host:port") and registers the
// accepting socket with the dispatcher.
func NewListener(dispatcher *event.Dispatcher, address string, callbacks ListenerCallbacks, logger *slog.Logger) (*Listener, error) {
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
	unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("network: bind %s: %w", address, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("network: listen %s: %w", address, err)
	}

	l := &Listener{
		dispatcher: dispatcher,
		fd:         fd,
		callbacks:  callbacks,
		logger:     logger.With("listener", address),
	}
	fe, err := dispatcher.CreateFileEvent(fd, l.onAccept, nil)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	l.fileEvent = fe
	return l, nil
}

// LocalAddress returns the bound address, including any kernel-assigned
// port.
func (l *Listener) LocalAddress() string {
	sa, err := unix.Getsockname(l.fd)
	if err != nil {
		return ""
	}
	return sockaddrToString(sa)
}

// Close stops accepting and releases the listening socket.
func (l *Listener) Close() {
	if l.fd == -1 {
		return
	}
	l.fileEvent.Close()
	unix.Close(l.fd)
	l.fd = -1
}

// onAccept drains the accept queue until EAGAIN.
func (l *Listener) onAccept() {
	for {
		fd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				return
			}
			l.logger.Warn("accept failed", "err", err)
			return
		}
		remote := sockaddrToString(sa)
		conn, err := NewServerConnection(l.dispatcher, fd, remote, l.logger)
		if err != nil {
			l.logger.Warn("connection setup failed", "remote", remote, "err", err)
			continue
		}
		conn.NoDelay(true)
		l.logger.Debug("new connection", "remote", remote, "cid", conn.ID())
		l.callbacks.OnNewConnection(conn)
	}
}
