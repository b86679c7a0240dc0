package network

import (
	"log/slog"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"meridian-hq/janus/pkg/buffer"
	"meridian-hq/janus/pkg/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestDispatcher(t *testing.T) *event.Dispatcher {
	t.Helper()
	d, err := event.NewDispatcher()
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func pump(t *testing.T, d *event.Dispatcher, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !done() {
		if time.Now().After(deadline) {
			t.Fatal("dispatcher did not reach expected state")
		}
		d.Run(event.NonBlock)
	}
}

// testPeer is the raw far side of a connection under test.
type testPeer struct {
	fd int
}

func newConnectionPair(t *testing.T, d *event.Dispatcher) (*Connection, *testPeer) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		unix.SetNonblock(fd, true)
	}
	conn, err := NewServerConnection(d, fds[0], "peer", testLogger())
	if err != nil {
		t.Fatalf("NewServerConnection: %v", err)
	}
	peer := &testPeer{fd: fds[1]}
	t.Cleanup(func() {
		if conn.State() != Closed {
			conn.Close(NoFlush)
		}
		if peer.fd != -1 {
			unix.Close(peer.fd)
		}
	})
	return conn, peer
}

func (p *testPeer) write(t *testing.T, data string) {
	t.Helper()
	if _, err := unix.Write(p.fd, []byte(data)); err != nil {
		t.Fatalf("peer write: %v", err)
	}
}

func (p *testPeer) read(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 4096)
	n, err := unix.Read(p.fd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return ""
		}
		t.Fatalf("peer read: %v", err)
	}
	return string(buf[:n])
}

func (p *testPeer) close() {
	unix.Close(p.fd)
	p.fd = -1
}

// captureFilter records bytes it sees and optionally stops iteration.
type captureFilter struct {
	callbacks ReadFilterCallbacks
	data      []byte
	newConn   int
	status    FilterStatus
}

func (f *captureFilter) OnNewConnection() FilterStatus {
	f.newConn++
	return Continue
}

func (f *captureFilter) OnData(data *buffer.Buffer) FilterStatus {
	f.data = append(f.data, data.Bytes()...)
	if f.status == Continue {
		data.Drain(data.Length())
	}
	return f.status
}

func (f *captureFilter) InitializeReadFilterCallbacks(cb ReadFilterCallbacks) {
	f.callbacks = cb
}

// eventRecorder collects connection lifecycle events.
type eventRecorder struct {
	events []ConnectionEvent
}

func (r *eventRecorder) OnEvent(ev ConnectionEvent) { r.events = append(r.events, ev) }

func TestReadPathDeliversBytesToFilter(t *testing.T) {
	d := newTestDispatcher(t)
	conn, peer := newConnectionPair(t, d)

	filter := &captureFilter{}
	conn.AddReadFilter(filter)

	peer.write(t, "hello")
	pump(t, d, func() bool { return len(filter.data) == 5 })

	if string(filter.data) != "hello" {
		t.Fatalf("filter saw %q, want %q", filter.data, "hello")
	}
	if filter.newConn != 1 {
		t.Fatalf("OnNewConnection called %d times, want 1", filter.newConn)
	}
}

func TestWritePathFlushesToSocket(t *testing.T) {
	d := newTestDispatcher(t)
	conn, peer := newConnectionPair(t, d)

	conn.Write(buffer.NewString("response"))
	pump(t, d, func() bool { return peer.read(t) == "response" })
}

func TestReadDisableBuffersAndRedispatches(t *testing.T) {
	d := newTestDispatcher(t)
	conn, peer := newConnectionPair(t, d)

	filter := &captureFilter{}
	conn.AddReadFilter(filter)
	conn.ReadDisable(true)

	peer.write(t, "held")
	// Bytes accumulate but the filter chain must stay quiet.
	for i := 0; i < 10; i++ {
		d.Run(event.NonBlock)
	}
	if len(filter.data) != 0 {
		t.Fatalf("filter dispatched while read disabled: %q", filter.data)
	}

	// Re-enabling must re-run the chain via the deferred timer even though
	// no new bytes arrive.
	conn.ReadDisable(false)
	pump(t, d, func() bool { return string(filter.data) == "held" })
}

func TestPeerEOFRaisesRemoteCloseOnce(t *testing.T) {
	d := newTestDispatcher(t)
	conn, peer := newConnectionPair(t, d)

	filter := &captureFilter{}
	conn.AddReadFilter(filter)
	recorder := &eventRecorder{}
	conn.AddConnectionCallbacks(recorder)

	peer.write(t, "partial request")
	peer.close()

	pump(t, d, func() bool { return len(recorder.events) > 0 })

	if len(recorder.events) != 1 || recorder.events[0] != RemoteClose {
		t.Fatalf("events = %v, want exactly [RemoteClose]", recorder.events)
	}
	if conn.State() != Closed {
		t.Fatalf("state = %v, want Closed", conn.State())
	}
	// Buffered bytes are still delivered before the close event.
	if string(filter.data) != "partial request" {
		t.Fatalf("filter saw %q, want %q", filter.data, "partial request")
	}

	// No further events after close.
	for i := 0; i < 5; i++ {
		d.Run(event.NonBlock)
	}
	if len(recorder.events) != 1 {
		t.Fatalf("extra events after close: %v", recorder.events)
	}
}

func TestCloseFlushWriteDrainsThenCloses(t *testing.T) {
	d := newTestDispatcher(t)
	conn, peer := newConnectionPair(t, d)

	recorder := &eventRecorder{}
	conn.AddConnectionCallbacks(recorder)

	conn.Write(buffer.NewString("last words"))
	conn.Close(FlushWrite)

	if conn.State() != Closing {
		t.Fatalf("state after Close(FlushWrite) = %v, want Closing", conn.State())
	}

	var got string
	pump(t, d, func() bool {
		got += peer.read(t)
		return conn.State() == Closed
	})

	if got != "last words" {
		t.Fatalf("peer read %q, want %q", got, "last words")
	}
	if len(recorder.events) != 1 || recorder.events[0] != LocalClose {
		t.Fatalf("events = %v, want [LocalClose]", recorder.events)
	}
}

func TestCloseNoFlushDiscardsOutput(t *testing.T) {
	d := newTestDispatcher(t)
	conn, _ := newConnectionPair(t, d)

	recorder := &eventRecorder{}
	conn.AddConnectionCallbacks(recorder)

	conn.Write(buffer.NewString("dropped"))
	conn.Close(NoFlush)

	if conn.State() != Closed {
		t.Fatalf("state = %v, want Closed", conn.State())
	}
	if len(recorder.events) != 1 || recorder.events[0] != LocalClose {
		t.Fatalf("events = %v, want [LocalClose]", recorder.events)
	}
}

func TestConnectionIDsAreMonotone(t *testing.T) {
	d := newTestDispatcher(t)
	a, _ := newConnectionPair(t, d)
	b, _ := newConnectionPair(t, d)

	if b.ID() <= a.ID() {
		t.Fatalf("ids not monotone: %d then %d", a.ID(), b.ID())
	}
}

func TestClientConnectionRaisesConnected(t *testing.T) {
	d := newTestDispatcher(t)

	listenerCb := &acceptRecorder{}
	listener, err := NewListener(d, "127.0.0.1:0", listenerCb, testLogger())
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer listener.Close()

	client, err := NewClientConnection(d, listener.LocalAddress(), testLogger())
	if err != nil {
		t.Fatalf("NewClientConnection: %v", err)
	}
	recorder := &eventRecorder{}
	client.AddConnectionCallbacks(recorder)
	defer client.Close(NoFlush)

	pump(t, d, func() bool {
		return len(recorder.events) > 0 && len(listenerCb.conns) > 0
	})

	if recorder.events[0] != Connected {
		t.Fatalf("first client event = %v, want Connected", recorder.events[0])
	}
	for _, conn := range listenerCb.conns {
		defer conn.Close(NoFlush)
	}
}

type acceptRecorder struct {
	conns []*Connection
}

func (r *acceptRecorder) OnNewConnection(conn *Connection) { r.conns = append(r.conns, conn) }
