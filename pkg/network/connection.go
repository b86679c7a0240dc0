package network

import (
	"log/slog"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"meridian-hq/janus/pkg/buffer"
	"meridian-hq/janus/pkg/event"
)

// ConnectionEvent identifies a lifecycle transition observable by
// connection callbacks.
type ConnectionEvent int

const (
	// Connected fires once on client connections when the non-blocking
	// connect completes.
	Connected ConnectionEvent = iota
	// RemoteClose fires when the peer closes or a fatal socket error
	// occurs.
	RemoteClose
	// LocalClose fires when this side closes the connection.
	LocalClose
)

// CloseType selects how Close treats buffered output.
type CloseType int

const (
	// FlushWrite drains the write buffer before releasing the socket.
	FlushWrite CloseType = iota
	// NoFlush discards buffered output and closes immediately.
	NoFlush
)

// State is the connection lifecycle state.
type State int

const (
	// Open is the state from construction until close begins.
	Open State = iota
	// Closing means Close(FlushWrite) was called and buffered output is
	// still draining.
	Closing
	// Closed means the fd has been released.
	Closed
)

// ConnectionCallbacks observes connection lifecycle events. Events are
// delivered synchronously on the loop goroutine in registration order.
type ConnectionCallbacks interface {
	OnEvent(ev ConnectionEvent)
}

// readChunkSize is how much one read iteration asks the socket for.
const readChunkSize = 4096

// nextConnectionID is the process-wide monotone connection id counter.
var nextConnectionID atomic.Uint64

// Connection is a non-blocking socket with buffered reads and writes and a
// filter pipeline. It exclusively owns its fd and buffers and must only be
// used from its dispatcher's goroutine.
type Connection struct {
	dispatcher    *event.Dispatcher
	fd            int
	id            uint64
	remoteAddress string
	logger        *slog.Logger

	readBuffer  *buffer.Buffer
	writeBuffer *buffer.Buffer
	// currentWriteData aliases the caller's buffer while the write filter
	// chain runs; it is never retained.
	currentWriteData *buffer.Buffer

	filterManager *FilterManager
	callbacks     []ConnectionCallbacks

	fileEvent           *event.FileEvent
	redispatchReadTimer *event.Timer
	doWriteTimer        *event.Timer

	readEnabled      bool
	connecting       bool
	closingWithFlush bool
	closeEventRaised bool
}

// newConnection wires a connection around an open non-blocking fd.
func newConnection(dispatcher *event.Dispatcher, fd int, remoteAddress string, connecting bool, logger *slog.Logger) (*Connection, error) {
	c := &Connection{
		dispatcher:    dispatcher,
		fd:            fd,
		id:            nextConnectionID.Add(1),
		remoteAddress: remoteAddress,
		readBuffer:    buffer.New(),
		writeBuffer:   buffer.New(),
		readEnabled:   true,
		connecting:    connecting,
	}
	c.logger = logger.With("cid", c.id)
	c.filterManager = newFilterManager(c)
	c.redispatchReadTimer = dispatcher.CreateTimer(c.onRead)
	c.doWriteTimer = dispatcher.CreateTimer(c.onDoWrite)

	fe, err := dispatcher.CreateFileEvent(fd, c.onReadReady, c.onWriteReady)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	c.fileEvent = fe
	return c, nil
}

// NewServerConnection wraps an accepted socket.
func NewServerConnection(dispatcher *event.Dispatcher, fd int, remoteAddress string, logger *slog.Logger) (*Connection, error) {
	return newConnection(dispatcher, fd, remoteAddress, false, logger)
}

// ID returns the process-wide connection id.
func (c *Connection) ID() uint64 { return c.id }

// RemoteAddress returns the peer address string.
func (c *Connection) RemoteAddress() string { return c.remoteAddress }

// Dispatcher returns the loop this connection lives on.
func (c *Connection) Dispatcher() *event.Dispatcher { return c.dispatcher }

// Logger returns the connection-scoped logger.
func (c *Connection) Logger() *slog.Logger { return c.logger }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	switch {
	case c.fd == -1:
		return Closed
	case c.closingWithFlush:
		return Closing
	default:
		return Open
	}
}

// AddReadFilter appends a read filter to the connection's chain.
func (c *Connection) AddReadFilter(filter ReadFilter) { c.filterManager.AddReadFilter(filter) }

// AddWriteFilter appends a write filter to the connection's chain.
func (c *Connection) AddWriteFilter(filter WriteFilter) { c.filterManager.AddWriteFilter(filter) }

// AddFilter appends a combined filter to both chains.
func (c *Connection) AddFilter(filter Filter) { c.filterManager.AddFilter(filter) }

// AddConnectionCallbacks registers a lifecycle observer.
func (c *Connection) AddConnectionCallbacks(cb ConnectionCallbacks) {
	c.callbacks = append(c.callbacks, cb)
}

// ReadEnabled reports whether read filter dispatch is active.
func (c *Connection) ReadEnabled() bool { return c.readEnabled }

// ReadDisable suppresses or resumes read filter dispatch. The socket stays
// registered either way so remote close is detected promptly; bytes keep
// accumulating in the read buffer while disabled. Re-enabling with buffered
// bytes arms a zero-delay timer to re-run the chain, since no network event
// may arrive to trigger it.
func (c *Connection) ReadDisable(disable bool) {
	c.logger.Debug("readDisable", "enabled", c.readEnabled, "disable", disable)
	if disable {
		c.readEnabled = false
		return
	}
	c.readEnabled = true
	if c.readBuffer.Length() > 0 {
		c.redispatchReadTimer.EnableTimer(0)
	}
}

// NoDelay toggles TCP_NODELAY. Ignored for closed fds and non-TCP sockets.
func (c *Connection) NoDelay(enable bool) {
	if c.fd == -1 {
		return
	}
	sa, err := unix.Getsockname(c.fd)
	if err != nil {
		return
	}
	if _, isUnix := sa.(*unix.SockaddrUnix); isUnix {
		return
	}
	value := 0
	if enable {
		value = 1
	}
	unix.SetsockoptInt(c.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, value)
}

// Write runs the write filter chain over data and, unless a filter stopped
// iteration, moves the remainder into the write buffer and schedules a
// write attempt on the next loop pass.
func (c *Connection) Write(data *buffer.Buffer) {
	if c.fd == -1 {
		return
	}
	c.currentWriteData = data
	status := c.filterManager.OnWrite()
	c.currentWriteData = nil

	if status == StopIteration {
		return
	}
	if data.Length() > 0 {
		c.logger.Debug("writing", "bytes", data.Length())
		c.writeBuffer.Move(data)
		c.doWriteTimer.EnableTimer(0)
	}
}

// Close begins closing the connection. With FlushWrite and pending output
// the connection enters Closing and releases the socket once the write
// buffer drains; otherwise it closes immediately and raises LocalClose.
func (c *Connection) Close(closeType CloseType) {
	if c.fd == -1 {
		return
	}
	dataToWrite := c.writeBuffer.Length()
	c.logger.Debug("closing", "data_to_write", dataToWrite)
	if dataToWrite == 0 || closeType == NoFlush {
		c.closeNow()
		return
	}
	c.closingWithFlush = true
	c.readEnabled = false
}

func (c *Connection) closeNow() {
	c.closeSocket()
	// The owner frees us in whatever way makes sense; the event kicks that
	// off.
	c.raiseEvent(LocalClose)
}

// closeSocket releases the fd and cancels pending timers. It does not raise
// an event.
func (c *Connection) closeSocket() {
	if c.fd == -1 {
		return
	}
	c.logger.Debug("releasing socket")
	c.fileEvent.Close()
	unix.Close(c.fd)
	c.fd = -1
	c.redispatchReadTimer.DisableTimer()
	c.doWriteTimer.DisableTimer()
}

func (c *Connection) raiseEvent(ev ConnectionEvent) {
	if ev == RemoteClose || ev == LocalClose {
		if c.closeEventRaised {
			return
		}
		c.closeEventRaised = true
	}
	for _, cb := range c.callbacks {
		cb.OnEvent(ev)
	}
}

// onRead dispatches buffered bytes through the read filter chain. Invoked
// after socket reads and by the readDisable(false) redispatch timer.
func (c *Connection) onRead() {
	// Cancel the redispatch timer in case we raced with a network event.
	c.redispatchReadTimer.DisableTimer()
	if !c.readEnabled || c.readBuffer.Length() == 0 {
		return
	}
	c.filterManager.OnRead()
}

func (c *Connection) onReadReady() {
	if c.connecting {
		return
	}
	raiseClose := false
	fatal := false
	for {
		n, err := c.readBuffer.ReadFrom(c.fd, readChunkSize)
		c.logger.Debug("read returns", "bytes", n, "err", err)
		if err != nil {
			if err == buffer.ErrAgain {
				break
			}
			fatal = true
			break
		}
		if n == 0 {
			raiseClose = true
			break
		}
	}

	c.onRead()

	if (raiseClose || fatal) && c.fd != -1 {
		c.logger.Debug("remote close")
		c.closeSocket()
		c.raiseEvent(RemoteClose)
	}
}

// onDoWrite is the zero-delay timer target scheduled by Write.
func (c *Connection) onDoWrite() {
	if !c.connecting {
		c.onWriteReady()
	}
}

func (c *Connection) onWriteReady() {
	if c.fd == -1 {
		return
	}
	if c.connecting {
		soErr, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err == nil && soErr != 0 {
			c.logger.Debug("connect failure", "errno", soErr)
			c.closeSocket()
			c.raiseEvent(RemoteClose)
			return
		}
		c.logger.Debug("connected")
		c.connecting = false
		c.raiseEvent(Connected)
		if c.fd == -1 {
			return
		}
	}

	for {
		if c.writeBuffer.Length() == 0 {
			if c.closingWithFlush {
				c.logger.Debug("write flush complete")
				c.closeNow()
			}
			return
		}
		n, err := c.writeBuffer.WriteTo(c.fd)
		c.logger.Debug("write returns", "bytes", n, "err", err)
		if err != nil {
			if err == buffer.ErrAgain {
				return
			}
			c.closeSocket()
			c.raiseEvent(RemoteClose)
			return
		}
	}
}
