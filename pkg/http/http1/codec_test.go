package http1

import (
	"log/slog"

	"meridian-hq/janus/pkg/buffer"
	"meridian-hq/janus/pkg/http"
	"meridian-hq/janus/pkg/network"
)

// fakeConn captures codec output without a socket.
type fakeConn struct {
	written *buffer.Buffer
	state   network.State
}

func newFakeConn() *fakeConn {
	return &fakeConn{written: buffer.New(), state: network.Open}
}

func (f *fakeConn) Write(data *buffer.Buffer) { f.written.Move(data) }

func (f *fakeConn) State() network.State { return f.state }

func (f *fakeConn) Logger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func (f *fakeConn) take() string {
	out := f.written.String()
	f.written.Drain(f.written.Length())
	return out
}

// recordingDecoder records what the codec delivers for one stream.
type recordingDecoder struct {
	headers      *http.HeaderMap
	headersEnd   bool
	headersCalls int
	body         []byte
	sawEndStream bool
	dataCalls    int
}

func (d *recordingDecoder) DecodeHeaders(headers *http.HeaderMap, endStream bool) {
	d.headers = headers
	d.headersEnd = endStream
	d.headersCalls++
	if endStream {
		d.sawEndStream = true
	}
}

func (d *recordingDecoder) DecodeData(data *buffer.Buffer, endStream bool) {
	d.body = append(d.body, data.Bytes()...)
	d.dataCalls++
	if endStream {
		d.sawEndStream = true
	}
}

// serverHarness collects the per-stream decoders and encoders handed out by
// the codec.
type serverHarness struct {
	decoders []*recordingDecoder
	encoders []StreamEncoder
}

func (h *serverHarness) NewStream(responseEncoder StreamEncoder) StreamDecoder {
	decoder := &recordingDecoder{}
	h.decoders = append(h.decoders, decoder)
	h.encoders = append(h.encoders, responseEncoder)
	return decoder
}

func (h *serverHarness) last() *recordingDecoder { return h.decoders[len(h.decoders)-1] }

func newServerHarness() (*ServerConnection, *serverHarness, *fakeConn) {
	conn := newFakeConn()
	harness := &serverHarness{}
	codec := NewServerConnection(conn, harness)
	return codec, harness, conn
}
