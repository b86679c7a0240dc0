package proxy

import (
	"strconv"
	"time"

	"meridian-hq/janus/pkg/buffer"
	"meridian-hq/janus/pkg/http"
	"meridian-hq/janus/pkg/http/http1"
	"meridian-hq/janus/pkg/network"
	"meridian-hq/janus/pkg/upstream"
)

// activeStream is one request/response exchange in flight on a downstream
// connection. It decodes the request from the server codec, forwards it
// upstream, and encodes the upstream's response back down.
type activeStream struct {
	cm              *ConnectionManager
	responseEncoder http1.StreamEncoder

	requestHeaders *http.HeaderMap

	upstreamConn    *network.Connection
	upstreamCodec   *http1.ClientConnection
	upstreamEncoder http1.StreamEncoder
	host            *upstream.Host
	upstreamAddress string

	// Access log fields.
	startTime     time.Time
	requestID     string
	method        string
	path          string
	protocol      string
	responseCode  int
	bytesReceived int64
	bytesSent     int64
	failureReason string

	requestComplete  bool
	responseStarted  bool
	responseComplete bool
	finished         bool
}

// http1.StreamDecoder (request direction, from the downstream codec)

func (s *activeStream) DecodeHeaders(headers *http.HeaderMap, endStream bool) {
	s.requestHeaders = headers
	s.method = headers.Get(http.HeaderMethod)
	s.path = headers.Get(http.HeaderPath)
	s.protocol = headers.Get(http.HeaderVersion)
	s.requestComplete = endStream

	conn := s.cm.callbacks.Connection()
	factory := s.cm.factory

	http.MutateRequestHeaders(headers, conn.RemoteAddress(), false,
		&factory.Config.Mutation, factory.Random, factory.FailedRequestID)
	s.requestID = headers.Get(http.HeaderRequestID)

	handle := s.cm.routeFor(s.path)
	if handle == nil {
		s.sendLocalReply(404)
		return
	}

	host := handle.LoadBalancer.ChooseHost()
	if host == nil {
		s.sendLocalReply(503)
		return
	}
	s.host = host
	s.upstreamAddress = host.Address()
	host.Stats().RqActive.Add(1)
	host.Stats().RqTotal.Add(1)

	upstreamConn, err := network.NewClientConnection(factory.Dispatcher, host.Address(), conn.Logger())
	if err != nil {
		conn.Logger().Debug("upstream connect failed", "host", host.Address(), "err", err)
		s.failureReason = "UF"
		s.sendLocalReply(503)
		return
	}
	s.upstreamConn = upstreamConn
	s.upstreamCodec = http1.NewClientConnection(upstreamConn)
	upstreamConn.AddReadFilter(&upstreamReadFilter{stream: s})
	upstreamConn.AddConnectionCallbacks(&upstreamCallbacks{stream: s})

	encoder, err := s.upstreamCodec.NewStream(&upstreamResponseDecoder{stream: s})
	if err != nil {
		s.failureReason = "UF"
		s.sendLocalReply(503)
		return
	}
	s.upstreamEncoder = encoder
	encoder.SetResetCallback(func(http1.StreamResetReason) { s.onUpstreamReset() })

	if err := encoder.EncodeHeaders(headers, endStream); err != nil {
		conn.Logger().Debug("upstream encode failed", "err", err)
		s.failureReason = "UF"
		s.sendLocalReply(503)
	}
}

func (s *activeStream) DecodeData(data *buffer.Buffer, endStream bool) {
	s.bytesReceived += int64(data.Length())
	if endStream {
		s.requestComplete = true
	}
	if s.upstreamEncoder != nil && !s.finished {
		s.upstreamEncoder.EncodeData(data, endStream)
	}
}

// Response direction.

// encodeResponseHeaders mutates and forwards the upstream's response
// prelude downstream.
func (s *activeStream) encodeResponseHeaders(headers *http.HeaderMap, endStream bool) {
	cfg := &s.cm.factory.Config.Mutation
	http.MutateResponseHeaders(headers, s.requestHeaders, cfg)
	if name := s.cm.factory.Config.ServerName; name != "" {
		headers.Set(http.HeaderServer, name)
	}

	s.responseStarted = true
	s.responseCode = http.ResponseStatus(headers)
	if err := s.responseEncoder.EncodeHeaders(headers, endStream); err != nil {
		s.cm.callbacks.Connection().Logger().Debug("response encode failed", "err", err)
	}
	if endStream {
		s.onResponseComplete()
	}
}

func (s *activeStream) encodeResponseData(data *buffer.Buffer, endStream bool) {
	s.bytesSent += int64(data.Length())
	s.responseEncoder.EncodeData(data, endStream)
	if endStream {
		s.onResponseComplete()
	}
}

func (s *activeStream) onResponseComplete() {
	s.responseComplete = true
	s.cm.finishStream(s)
}

// onUpstreamReset handles the upstream going away before the response
// completed.
func (s *activeStream) onUpstreamReset() {
	if s.finished || s.responseComplete {
		return
	}
	s.failureReason = "UC"
	if !s.responseStarted {
		s.sendLocalReply(503)
		return
	}
	// Mid-response there is nothing coherent left to send; drop the
	// downstream connection.
	s.cm.finishStream(s)
	s.cm.callbacks.Connection().Close(network.NoFlush)
}

// sendLocalReply answers the request from the proxy itself.
func (s *activeStream) sendLocalReply(code int) {
	if s.responseStarted {
		return
	}
	body := statusBody(code)
	headers := http.NewHeaderMapFromPairs(
		http.HeaderStatus, strconv.Itoa(code),
		http.HeaderContentType, "text/plain",
		http.HeaderContentLength, strconv.Itoa(len(body)),
	)
	if name := s.cm.factory.Config.ServerName; name != "" {
		headers.Set(http.HeaderServer, name)
	}

	s.responseStarted = true
	s.responseCode = code
	if err := s.responseEncoder.EncodeHeaders(headers, false); err != nil {
		return
	}
	s.bytesSent += int64(len(body))
	s.responseEncoder.EncodeData(buffer.NewString(body), true)
	s.onResponseComplete()
}

// upstreamReadFilter feeds upstream bytes into the client codec.
type upstreamReadFilter struct {
	stream    *activeStream
	callbacks network.ReadFilterCallbacks
}

func (f *upstreamReadFilter) OnNewConnection() network.FilterStatus { return network.Continue }

func (f *upstreamReadFilter) OnData(data *buffer.Buffer) network.FilterStatus {
	if err := f.stream.upstreamCodec.Dispatch(data); err != nil {
		f.callbacks.Connection().Logger().Debug("upstream codec error", "err", err)
		f.stream.onUpstreamReset()
		f.callbacks.Connection().Close(network.NoFlush)
	}
	return network.StopIteration
}

func (f *upstreamReadFilter) InitializeReadFilterCallbacks(callbacks network.ReadFilterCallbacks) {
	f.callbacks = callbacks
}

// upstreamCallbacks watches the upstream connection's lifecycle.
type upstreamCallbacks struct {
	stream *activeStream
}

func (u *upstreamCallbacks) OnEvent(ev network.ConnectionEvent) {
	if ev == network.RemoteClose {
		u.stream.onUpstreamReset()
	}
}

// upstreamResponseDecoder receives the upstream response stream.
type upstreamResponseDecoder struct {
	stream *activeStream
}

func (d *upstreamResponseDecoder) DecodeHeaders(headers *http.HeaderMap, endStream bool) {
	d.stream.encodeResponseHeaders(headers, endStream)
}

func (d *upstreamResponseDecoder) DecodeData(data *buffer.Buffer, endStream bool) {
	d.stream.encodeResponseData(data, endStream)
}
