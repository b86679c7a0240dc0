package network

import (
	"testing"

	"meridian-hq/janus/pkg/buffer"
	"meridian-hq/janus/pkg/event"
)

// stopOnceFilter stops the chain on its first data event and resumes when
// told to.
type stopOnceFilter struct {
	callbacks ReadFilterCallbacks
	stopped   bool
	seen      int
}

func (f *stopOnceFilter) OnNewConnection() FilterStatus { return Continue }

func (f *stopOnceFilter) OnData(data *buffer.Buffer) FilterStatus {
	f.seen++
	if !f.stopped {
		f.stopped = true
		return StopIteration
	}
	return Continue
}

func (f *stopOnceFilter) InitializeReadFilterCallbacks(cb ReadFilterCallbacks) { f.callbacks = cb }

func TestStopIterationHaltsChain(t *testing.T) {
	d := newTestDispatcher(t)
	conn, peer := newConnectionPair(t, d)

	stopper := &stopOnceFilter{}
	tail := &captureFilter{}
	conn.AddReadFilter(stopper)
	conn.AddReadFilter(tail)

	peer.write(t, "payload")
	pump(t, d, func() bool { return stopper.seen == 1 })

	if len(tail.data) != 0 {
		t.Fatalf("downstream filter ran past StopIteration: %q", tail.data)
	}

	// Resuming starts with the next filter; the buffered bytes flow on.
	stopper.callbacks.ContinueReading()
	if string(tail.data) != "payload" {
		t.Fatalf("after ContinueReading tail saw %q, want %q", tail.data, "payload")
	}
}

// appendingFilter installs another filter mid-iteration.
type appendingFilter struct {
	callbacks ReadFilterCallbacks
	appended  *captureFilter
	added     bool
}

func (f *appendingFilter) OnNewConnection() FilterStatus { return Continue }

func (f *appendingFilter) OnData(data *buffer.Buffer) FilterStatus {
	if !f.added {
		f.added = true
		f.callbacks.Connection().AddReadFilter(f.appended)
	}
	return Continue
}

func (f *appendingFilter) InitializeReadFilterCallbacks(cb ReadFilterCallbacks) { f.callbacks = cb }

func TestFilterAddedDuringIterationSkipsInFlightEvent(t *testing.T) {
	d := newTestDispatcher(t)
	conn, peer := newConnectionPair(t, d)

	late := &captureFilter{}
	adder := &appendingFilter{appended: late}
	conn.AddReadFilter(adder)

	peer.write(t, "first")
	pump(t, d, func() bool { return adder.added })

	// The freshly added filter must not see the in-flight event...
	if len(late.data) != 0 {
		t.Fatalf("late filter saw in-flight event: %q", late.data)
	}

	// ...but does see the next one.
	peer.write(t, "second")
	pump(t, d, func() bool { return len(late.data) > 0 })
	if string(late.data) != "firstsecond" {
		t.Fatalf("late filter saw %q, want %q", late.data, "firstsecond")
	}
}

// blockingWriteFilter stops all writes.
type blockingWriteFilter struct{}

func (blockingWriteFilter) OnWrite(data *buffer.Buffer) FilterStatus { return StopIteration }

func TestWriteFilterStopsWrite(t *testing.T) {
	d := newTestDispatcher(t)
	conn, peer := newConnectionPair(t, d)

	conn.AddWriteFilter(blockingWriteFilter{})
	conn.Write(buffer.NewString("never sent"))

	for i := 0; i < 10; i++ {
		d.Run(event.NonBlock)
	}
	if got := peer.read(t); got != "" {
		t.Fatalf("peer received %q despite StopIteration", got)
	}
}
