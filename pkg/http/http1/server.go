package http1

import (
	"strings"

	"meridian-hq/janus/pkg/buffer"
	"meridian-hq/janus/pkg/http"
	"meridian-hq/janus/pkg/network"
)

const (
	continueResponse   = "HTTP/1.1 100 Continue\r\n\r\n"
	badRequestResponse = "HTTP/1.1 400 Bad Request\r\n" +
		"content-length: 0\r\n" +
		"connection: close\r\n\r\n"
)

// ServerCallbacks is implemented by the connection manager sitting above a
// server codec.
type ServerCallbacks interface {
	// NewStream is invoked at the start of every request. The returned
	// decoder receives the request; responseEncoder emits the response.
	NewStream(responseEncoder StreamEncoder) StreamDecoder
}

// ServerConnection decodes requests from a downstream connection and
// encodes responses back onto it, one request at a time.
type ServerConnection struct {
	connectionBase
	callbacks ServerCallbacks

	activeRequest *activeRequest

	// deferredEndStreamHeaders holds body-less request headers back so the
	// upper layer sees headers and end-of-stream together.
	deferredEndStreamHeaders *http.HeaderMap
}

type activeRequest struct {
	decoder        StreamDecoder
	encoder        *responseEncoder
	requestURL     []byte
	remoteComplete bool
}

// NewServerConnection wires a server codec onto conn, delivering streams to
// callbacks.
func NewServerConnection(conn Connection, callbacks ServerCallbacks) *ServerConnection {
	s := &ServerConnection{callbacks: callbacks}
	s.init(conn, parseRequest, s)
	return s
}

// role

func (s *ServerConnection) onMessageBegin() {
	if s.resetStreamCalled {
		return
	}
	s.activeRequest = &activeRequest{encoder: newResponseEncoder(&s.connectionBase)}
	s.activeRequest.decoder = s.callbacks.NewStream(s.activeRequest.encoder)
}

func (s *ServerConnection) onURL(fragment []byte) {
	if s.activeRequest != nil {
		s.activeRequest.requestURL = append(s.activeRequest.requestURL, fragment...)
	}
}

func (s *ServerConnection) onHeadersComplete(headers *http.HeaderMap) (headersAction, error) {
	// A response may have completed before the request did; upper layers
	// will disconnect, so fire no further events.
	if s.activeRequest == nil {
		return proceed, nil
	}

	headers.Set(http.HeaderPath, string(s.activeRequest.requestURL))
	headers.Set(http.HeaderMethod, s.parser.method)

	// Expect: 100-continue is answered here. Only HTTP/1.1 carries it, and
	// the only sensible answer is to continue, since the response can be
	// sent before the request completes anyway.
	if expect := headers.Get(http.HeaderExpect); expect != "" &&
		strings.EqualFold(expect, http.Expect100Continue) {
		s.conn.Write(buffer.NewString(continueResponse))
		headers.Remove(http.HeaderExpect)
	}

	if s.parser.HasBody() {
		s.activeRequest.decoder.DecodeHeaders(headers, false)

		// If decoding the headers closed (or started closing) the
		// connection, pause so control returns to the caller.
		if s.conn.State() != network.Open {
			s.parser.Pause()
		}
	} else {
		// No body: hold the headers until message complete so headers and
		// end-of-stream arrive together, as they would on HTTP/2.
		s.deferredEndStreamHeaders = headers
	}
	return proceed, nil
}

func (s *ServerConnection) onBody(data []byte) {
	if s.activeRequest != nil {
		s.conn.Logger().Debug("body", "size", len(data))
		s.activeRequest.decoder.DecodeData(buffer.NewBytes(data), false)
	}
}

func (s *ServerConnection) onMessageComplete() {
	if s.activeRequest != nil {
		s.conn.Logger().Debug("message complete")
		s.activeRequest.remoteComplete = true

		if s.deferredEndStreamHeaders != nil {
			headers := s.deferredEndStreamHeaders
			s.deferredEndStreamHeaders = nil
			s.activeRequest.decoder.DecodeHeaders(headers, true)
		} else {
			s.activeRequest.decoder.DecodeData(buffer.New(), true)
		}
	}

	// Always pause after a complete request so the caller processes one
	// request at a time and can apply backpressure. The caller re-checks
	// the dispatch buffer and re-dispatches when ready.
	s.parser.Pause()
}

func (s *ServerConnection) onEncodeComplete() {
	if s.activeRequest == nil {
		return
	}
	// Only retire the request if the remote side finished it. A response
	// sent before that means upper layers are about to reset or close, and
	// the request must stay around for its reset callbacks.
	if s.activeRequest.remoteComplete {
		s.activeRequest = nil
	}
}

func (s *ServerConnection) onResetStream(reason StreamResetReason) {
	if s.activeRequest != nil {
		s.activeRequest.encoder.runResetCallbacks(reason)
		s.activeRequest = nil
	}
}

// sendProtocolError answers malformed bytes with a minimal 400, out of band
// relative to the per-stream abstraction: a protocol error can precede any
// logical stream, and this keeps HTTP/1.1 looking like HTTP/2 to the upper
// layers.
func (s *ServerConnection) sendProtocolError() {
	if s.activeRequest == nil || !s.activeRequest.encoder.startedResponse {
		s.conn.Write(buffer.NewString(badRequestResponse))
	}
}
