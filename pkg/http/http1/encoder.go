package http1

import (
	"fmt"
	"strconv"

	"meridian-hq/janus/pkg/buffer"
	"meridian-hq/janus/pkg/http"
)

const (
	crlf      = "\r\n"
	lastChunk = "0\r\n\r\n"
)

// streamEncoderBase frames one message onto the shared output path. The
// concrete request/response encoders prepend their start line and delegate
// here.
type streamEncoderBase struct {
	conn          *connectionBase
	chunkEncoding bool
	resetCallback func(StreamResetReason)
}

// SetResetCallback implements StreamEncoder.
func (e *streamEncoderBase) SetResetCallback(cb func(StreamResetReason)) {
	e.resetCallback = cb
}

// ResetStream implements StreamEncoder.
func (e *streamEncoderBase) ResetStream(reason StreamResetReason) {
	e.conn.onResetStreamBase(reason)
}

func (e *streamEncoderBase) runResetCallbacks(reason StreamResetReason) {
	if e.resetCallback != nil {
		e.resetCallback(reason)
	}
}

func (e *streamEncoderBase) encodeHeader(key, value string) {
	e.conn.appendOutput(key)
	e.conn.appendOutput(": ")
	e.conn.appendOutput(value)
	e.conn.appendOutput(crlf)
}

// encodeHeadersBase writes the header block after the start line and
// decides the body framing: an explicit content-length means identity, a
// header-only message gets "content-length: 0", anything else is chunked.
func (e *streamEncoderBase) encodeHeadersBase(headers *http.HeaderMap, endStream bool) {
	// Upper layers strip transfer-encoding; the codec owns framing.
	if headers.Has(http.HeaderTransferEncoding) {
		panic("http1: transfer-encoding must not be present on encode")
	}

	sawContentLength := false
	headers.Iterate(func(key, value string) {
		// Translate :authority back to a legacy host line; any other
		// pseudo-header stays off the wire.
		if key == http.HeaderAuthority {
			key = http.HeaderHostLegacy
		}
		if key[0] == ':' {
			return
		}
		if key == http.HeaderContentLength {
			sawContentLength = true
		}
		e.encodeHeader(key, value)
	})

	if sawContentLength {
		e.chunkEncoding = false
	} else if endStream {
		e.encodeHeader(http.HeaderContentLength, "0")
		e.chunkEncoding = false
	} else {
		e.encodeHeader(http.HeaderTransferEncoding, http.TransferEncodingChunked)
		e.chunkEncoding = true
	}

	e.conn.appendOutput(crlf)

	if endStream {
		e.endEncode()
	} else {
		e.conn.flushOutput()
	}
}

// EncodeData implements StreamEncoder.
func (e *streamEncoderBase) EncodeData(data *buffer.Buffer, endStream bool) {
	// End of stream may arrive with an empty buffer; nothing goes on the
	// wire for it.
	if data.Length() > 0 {
		e.conn.commitReserved()
		if e.chunkEncoding {
			e.conn.outputBuffer.AddString(strconv.FormatInt(int64(data.Length()), 16) + crlf)
		}
		e.conn.outputBuffer.Move(data)
		if e.chunkEncoding {
			e.conn.outputBuffer.AddString(crlf)
		}
	}

	if endStream {
		e.endEncode()
	} else {
		e.conn.flushOutput()
	}
}

func (e *streamEncoderBase) endEncode() {
	if e.chunkEncoding {
		e.conn.commitReserved()
		e.conn.outputBuffer.AddString(lastChunk)
	}
	e.conn.flushOutput()
	e.conn.role.onEncodeComplete()
}

// responseEncoder emits responses on a server codec.
type responseEncoder struct {
	streamEncoderBase
	startedResponse bool
}

func newResponseEncoder(conn *connectionBase) *responseEncoder {
	return &responseEncoder{streamEncoderBase: streamEncoderBase{conn: conn}}
}

// EncodeHeaders implements StreamEncoder. The status line is built from
// :status; the reason phrase is looked up from the code.
func (e *responseEncoder) EncodeHeaders(headers *http.HeaderMap, endStream bool) error {
	status := http.ResponseStatus(headers)
	if status == 0 {
		return fmt.Errorf("%w: :status must be specified", ErrCodecClient)
	}
	e.startedResponse = true

	e.conn.reserveOutput(outputReserveSize)
	e.conn.appendOutput("HTTP/1.1 ")
	e.conn.appendOutput(strconv.Itoa(status))
	e.conn.appendOutput(" ")
	e.conn.appendOutput(http.StatusText(status))
	e.conn.appendOutput(crlf)

	e.encodeHeadersBase(headers, endStream)
	return nil
}

// requestEncoder emits requests on a client codec.
type requestEncoder struct {
	streamEncoderBase
	headRequest bool
}

func newRequestEncoder(conn *connectionBase) *requestEncoder {
	return &requestEncoder{streamEncoderBase: streamEncoderBase{conn: conn}}
}

// EncodeHeaders implements StreamEncoder. :method and :path are required.
func (e *requestEncoder) EncodeHeaders(headers *http.HeaderMap, endStream bool) error {
	method := headers.Get(http.HeaderMethod)
	path := headers.Get(http.HeaderPath)
	if method == "" || path == "" {
		return fmt.Errorf("%w: :method and :path must be specified", ErrCodecClient)
	}
	if method == http.MethodHead {
		e.headRequest = true
	}

	e.conn.reserveOutput(outputReserveSize)
	e.conn.appendOutput(method)
	e.conn.appendOutput(" ")
	e.conn.appendOutput(path)
	e.conn.appendOutput(" HTTP/1.1")
	e.conn.appendOutput(crlf)

	e.encodeHeadersBase(headers, endStream)
	return nil
}
