package http1

import (
	"fmt"
	"strconv"

	"meridian-hq/janus/pkg/buffer"
	"meridian-hq/janus/pkg/http"
)

// ClientConnection encodes requests onto an upstream connection and
// decodes the responses, matching them to pending requests in FIFO order.
type ClientConnection struct {
	connectionBase

	pendingResponses []pendingResponse
	requestEncoder   *requestEncoder

	deferredEndStreamHeaders *http.HeaderMap
}

type pendingResponse struct {
	decoder StreamDecoder
	// headRequest suppresses the response body: the upstream may frame one
	// but it must not be delivered.
	headRequest bool
}

// NewClientConnection wires a client codec onto conn.
func NewClientConnection(conn Connection) *ClientConnection {
	c := &ClientConnection{}
	c.init(conn, parseResponse, c)
	return c
}

// NewStream registers responseDecoder for the next response and returns the
// encoder for the matching request.
func (c *ClientConnection) NewStream(responseDecoder StreamDecoder) (StreamEncoder, error) {
	if c.resetStreamCalled {
		return nil, fmt.Errorf("%w: cannot create new streams after a reset", ErrCodecClient)
	}
	c.requestEncoder = newRequestEncoder(&c.connectionBase)
	c.pendingResponses = append(c.pendingResponses, pendingResponse{decoder: responseDecoder})
	return c.requestEncoder, nil
}

// cannotHaveBody reports whether the in-flight response must not carry a
// body regardless of its framing headers: HEAD responses, 204 and 304.
func (c *ClientConnection) cannotHaveBody() bool {
	if len(c.pendingResponses) > 0 && c.pendingResponses[0].headRequest {
		return true
	}
	return c.parser.statusCode == 204 || c.parser.statusCode == 304
}

// role

func (c *ClientConnection) onMessageBegin() {}

func (c *ClientConnection) onURL([]byte) {}

func (c *ClientConnection) onHeadersComplete(headers *http.HeaderMap) (headersAction, error) {
	headers.Set(http.HeaderStatus, strconv.Itoa(c.parser.statusCode))

	if len(c.pendingResponses) == 0 {
		if c.resetStreamCalled {
			// The stream is gone; drain the bytes quietly. A keep-alive
			// peer shutting down (408 with connection: close) lands here.
			return proceed, nil
		}
		return proceed, &PrematureResponseError{Headers: headers}
	}

	if c.cannotHaveBody() {
		// Hold the headers so they are delivered with end-of-stream.
		c.deferredEndStreamHeaders = headers
		return skipBody, nil
	}
	c.pendingResponses[0].decoder.DecodeHeaders(headers, false)
	return proceed, nil
}

func (c *ClientConnection) onBody(data []byte) {
	if len(c.pendingResponses) > 0 {
		c.pendingResponses[0].decoder.DecodeData(buffer.NewBytes(data), false)
	}
}

func (c *ClientConnection) onMessageComplete() {
	if len(c.pendingResponses) == 0 {
		return
	}
	// Once end-of-stream is delivered the stream can no longer be reset;
	// pop first.
	response := c.pendingResponses[0]
	c.pendingResponses = c.pendingResponses[1:]

	if c.deferredEndStreamHeaders != nil {
		headers := c.deferredEndStreamHeaders
		c.deferredEndStreamHeaders = nil
		response.decoder.DecodeHeaders(headers, true)
	} else {
		response.decoder.DecodeData(buffer.New(), true)
	}
}

func (c *ClientConnection) onEncodeComplete() {
	// Carry the head-request flag into the pending response before the
	// encoder is reused. The pending entry is gone if the stream was reset
	// mid-encode.
	if len(c.pendingResponses) > 0 {
		c.pendingResponses[len(c.pendingResponses)-1].headRequest = c.requestEncoder.headRequest
	}
}

func (c *ClientConnection) onResetStream(reason StreamResetReason) {
	// Only raise the reset if a complete response was not already
	// dispatched.
	if len(c.pendingResponses) > 0 {
		c.pendingResponses = c.pendingResponses[:0]
		c.requestEncoder.runResetCallbacks(reason)
	}
}

func (c *ClientConnection) sendProtocolError() {}
