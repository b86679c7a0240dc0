package event

import (
	"container/heap"
	"time"
)

// Timer is a one-shot timer owned by a dispatcher. Enabling an armed timer
// replaces its deadline. Not safe for use off the loop goroutine.
type Timer struct {
	d     *Dispatcher
	cb    func()
	armed bool
	gen   uint64
}

// CreateTimer returns a disarmed timer that invokes cb on the loop
// goroutine when it fires.
func (d *Dispatcher) CreateTimer(cb func()) *Timer {
	return &Timer{d: d, cb: cb}
}

// EnableTimer arms the timer to fire after delay. A zero delay fires on the
// next loop iteration.
func (t *Timer) EnableTimer(delay time.Duration) {
	t.d.scheduleTimer(t, time.Now().Add(delay))
}

// DisableTimer cancels a pending fire. Disabling a disarmed timer is a
// no-op.
func (t *Timer) DisableTimer() {
	t.gen++
	t.armed = false
}

// Enabled reports whether the timer is armed.
func (t *Timer) Enabled() bool { return t.armed }

// timerEntry is a heap node. Stale entries (generation mismatch) are
// discarded lazily when popped.
type timerEntry struct {
	timer    *Timer
	deadline time.Time
	gen      uint64
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) { *h = append(*h, x.(*timerEntry)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}

// nextDeadline returns the earliest live deadline, skipping stale entries.
func (h *timerHeap) nextDeadline() (time.Time, bool) {
	for len(*h) > 0 {
		top := (*h)[0]
		if top.timer.armed && top.gen == top.timer.gen {
			return top.deadline, true
		}
		heap.Pop(h)
	}
	return time.Time{}, false
}

// popDue removes and returns the earliest entry whose deadline has passed.
func (h *timerHeap) popDue(now time.Time) (*timerEntry, bool) {
	for len(*h) > 0 {
		top := (*h)[0]
		if top.timer.armed && top.gen == top.timer.gen {
			if top.deadline.After(now) {
				return nil, false
			}
		}
		return heap.Pop(h).(*timerEntry), true
	}
	return nil, false
}
