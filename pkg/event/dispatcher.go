package event

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// RunType selects how long Run drives the loop.
type RunType int

const (
	// Block runs the loop until Exit is called.
	Block RunType = iota
	// NonBlock processes pending posts, ready file events and due timers
	// once, then returns. Used by tests to pump the loop deterministically.
	NonBlock
)

// Dispatcher is a single-threaded event loop: epoll-backed file readiness,
// a timer heap, a cross-goroutine post queue and a deferred-cleanup list.
// All methods except Post and Exit must be called from the loop goroutine
// (or before Run is started).
type Dispatcher struct {
	epollFd int
	wakeFd  int

	fileEvents map[int]*FileEvent
	timers     timerHeap

	postMu        sync.Mutex
	postCallbacks []func()

	deferredCleanup []func()
	cleanupTimer    *Timer

	exiting atomic.Bool
}

// NewDispatcher creates a dispatcher with its epoll instance and wakeup fd.
func NewDispatcher() (*Dispatcher, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("event: epoll_create1: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("event: eventfd: %w", err)
	}
	d := &Dispatcher{
		epollFd:    epfd,
		wakeFd:     wakeFd,
		fileEvents: make(map[int]*FileEvent),
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		unix.Close(epfd)
		unix.Close(wakeFd)
		return nil, fmt.Errorf("event: register wakeup fd: %w", err)
	}
	d.cleanupTimer = d.CreateTimer(d.runDeferredCleanup)
	return d, nil
}

// Close releases the dispatcher's file descriptors. The loop must not be
// running.
func (d *Dispatcher) Close() error {
	unix.Close(d.wakeFd)
	return unix.Close(d.epollFd)
}

// Post hands a callback to the loop goroutine. Safe to call from any
// goroutine; callbacks run in post order before the next poll.
func (d *Dispatcher) Post(cb func()) {
	d.postMu.Lock()
	needWake := len(d.postCallbacks) == 0
	d.postCallbacks = append(d.postCallbacks, cb)
	d.postMu.Unlock()
	if needWake {
		d.wake()
	}
}

// DeferredClose queues cleanup to run after the current callstack unwinds,
// via a zero-delay timer. Connections use this to release resources without
// destroying state mid-callback.
func (d *Dispatcher) DeferredClose(cleanup func()) {
	d.deferredCleanup = append(d.deferredCleanup, cleanup)
	if len(d.deferredCleanup) == 1 {
		d.cleanupTimer.EnableTimer(0)
	}
}

// Exit stops a blocking Run loop. Safe to call from any goroutine.
func (d *Dispatcher) Exit() {
	d.exiting.Store(true)
	d.wake()
}

// Run drives the loop. With Block it returns only after Exit; with NonBlock
// it performs a single non-waiting pass.
func (d *Dispatcher) Run(t RunType) {
	// Post callbacks queued before the loop starts must run first; epoll
	// gives no ordering guarantee between the wakeup fd and other events.
	d.runPostCallbacks()
	for {
		d.poll(d.pollTimeout(t))
		d.runPostCallbacks()
		d.fireTimers()
		if t == NonBlock || d.exiting.Load() {
			return
		}
	}
}

func (d *Dispatcher) pollTimeout(t RunType) int {
	if t == NonBlock {
		return 0
	}
	next, ok := d.timers.nextDeadline()
	if !ok {
		return -1
	}
	ms := time.Until(next).Milliseconds()
	if ms < 0 {
		return 0
	}
	// Round up so we do not spin on a sub-millisecond remainder.
	return int(ms) + 1
}

func (d *Dispatcher) poll(timeoutMs int) {
	events := make([]unix.EpollEvent, 32)
	n, err := unix.EpollWait(d.epollFd, events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return
		}
		panic(fmt.Sprintf("event: epoll_wait: %v", err))
	}
	for i := 0; i < n; i++ {
		ev := events[i]
		if int(ev.Fd) == d.wakeFd {
			d.drainWake()
			continue
		}
		fe, ok := d.fileEvents[int(ev.Fd)]
		if !ok {
			continue
		}
		fe.dispatch(ev.Events)
	}
}

func (d *Dispatcher) fireTimers() {
	now := time.Now()
	for {
		entry, ok := d.timers.popDue(now)
		if !ok {
			return
		}
		if entry.timer.armed && entry.gen == entry.timer.gen {
			entry.timer.armed = false
			entry.timer.cb()
		}
	}
}

func (d *Dispatcher) runPostCallbacks() {
	for {
		d.postMu.Lock()
		if len(d.postCallbacks) == 0 {
			d.postMu.Unlock()
			return
		}
		cb := d.postCallbacks[0]
		d.postCallbacks = d.postCallbacks[1:]
		d.postMu.Unlock()
		cb()
	}
}

func (d *Dispatcher) runDeferredCleanup() {
	// A cleanup callback may queue further cleanup; loop until quiescent.
	index := 0
	for index < len(d.deferredCleanup) {
		d.deferredCleanup[index]()
		index++
	}
	d.deferredCleanup = d.deferredCleanup[:0]
}

func (d *Dispatcher) wake() {
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	unix.Write(d.wakeFd, one[:])
}

func (d *Dispatcher) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(d.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

// scheduleTimer (re)arms t for deadline. Loop-thread only.
func (d *Dispatcher) scheduleTimer(t *Timer, deadline time.Time) {
	t.gen++
	t.armed = true
	heap.Push(&d.timers, &timerEntry{timer: t, deadline: deadline, gen: t.gen})
}
