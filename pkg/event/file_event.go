package event

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FileEvent delivers read/write readiness for one fd. Registration is
// edge-triggered: callbacks fire on readiness transitions and the owner must
// drain (loop until EAGAIN) before returning to the loop.
type FileEvent struct {
	d       *Dispatcher
	fd      int
	readCb  func()
	writeCb func()
}

// CreateFileEvent registers fd for read and write readiness. The fd must be
// non-blocking.
func (d *Dispatcher) CreateFileEvent(fd int, readCb, writeCb func()) (*FileEvent, error) {
	fe := &FileEvent{d: d, fd: fd, readCb: readCb, writeCb: writeCb}
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(d.epollFd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return nil, fmt.Errorf("event: register fd %d: %w", fd, err)
	}
	d.fileEvents[fd] = fe
	return fe, nil
}

// Close unregisters the event. The fd itself belongs to the caller.
func (fe *FileEvent) Close() {
	if fe.fd == -1 {
		return
	}
	delete(fe.d.fileEvents, fe.fd)
	unix.EpollCtl(fe.d.epollFd, unix.EPOLL_CTL_DEL, fe.fd, nil)
	fe.fd = -1
}

// dispatch runs the callbacks matching the readiness mask. Errors and
// hangups surface as read readiness so the owner observes EOF from its read
// loop.
func (fe *FileEvent) dispatch(events uint32) {
	if events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLERR|unix.EPOLLHUP) != 0 && fe.readCb != nil {
		fe.readCb()
	}
	// The read callback may have closed the connection and unregistered us.
	if fe.fd == -1 {
		return
	}
	if events&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 && fe.writeCb != nil {
		fe.writeCb()
	}
}
