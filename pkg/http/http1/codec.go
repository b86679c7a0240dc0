package http1

import (
	"errors"
	"fmt"
	"log/slog"

	"meridian-hq/janus/pkg/buffer"
	"meridian-hq/janus/pkg/http"
	"meridian-hq/janus/pkg/network"
)

// ErrCodecProtocol reports malformed HTTP/1.x bytes. The server side emits
// a best-effort 400 before surfacing it; the owner closes the connection.
var ErrCodecProtocol = errors.New("http1: protocol error")

// ErrCodecClient reports misuse of the client codec, such as encoding a
// request without :method and :path.
var ErrCodecClient = errors.New("http1: codec client error")

// PrematureResponseError reports a response that arrived with no pending
// request.
type PrematureResponseError struct {
	// Headers are the parsed response headers, available to the caller for
	// logging.
	Headers *http.HeaderMap
}

func (e *PrematureResponseError) Error() string {
	return fmt.Sprintf("http1: premature response (status %q)", e.Headers.Get(http.HeaderStatus))
}

// StreamResetReason describes why a stream was torn down.
type StreamResetReason int

const (
	// LocalReset means this side abandoned the stream.
	LocalReset StreamResetReason = iota
	// RemoteReset means the peer connection failed or terminated under the
	// stream.
	RemoteReset
)

// StreamDecoder is the upper layer receiving one decoded message. Exactly
// one callback carries endStream=true per message.
type StreamDecoder interface {
	// DecodeHeaders delivers the message headers. With endStream the
	// message has no body.
	DecodeHeaders(headers *http.HeaderMap, endStream bool)

	// DecodeData delivers a chunk of body. The buffer is owned by the
	// callee.
	DecodeData(data *buffer.Buffer, endStream bool)
}

// StreamEncoder emits one message toward the wire.
type StreamEncoder interface {
	// EncodeHeaders writes the message prelude and decides the body
	// framing. With endStream the message is complete.
	EncodeHeaders(headers *http.HeaderMap, endStream bool) error

	// EncodeData writes body bytes using the framing chosen by
	// EncodeHeaders, draining data.
	EncodeData(data *buffer.Buffer, endStream bool)

	// ResetStream abandons the stream and runs reset callbacks.
	ResetStream(reason StreamResetReason)

	// SetResetCallback registers the observer notified on stream reset.
	SetResetCallback(cb func(StreamResetReason))
}

// Connection is the slice of the network connection the codec needs: the
// buffered write path, the lifecycle state, and a scoped logger.
// *network.Connection satisfies it.
type Connection interface {
	Write(data *buffer.Buffer)
	State() network.State
	Logger() *slog.Logger
}

// role carries the callbacks that differ between the server and client
// codecs. Both roles share the connection base, which owns the parser and
// the header accumulation state.
type role interface {
	onMessageBegin()
	onURL(fragment []byte)
	onHeadersComplete(headers *http.HeaderMap) (headersAction, error)
	onBody(data []byte)
	onMessageComplete()
	onEncodeComplete()
	onResetStream(reason StreamResetReason)
	sendProtocolError()
}

type headerParsingState int

const (
	headerField headerParsingState = iota
	headerValue
	headerDone
)

// outputReserveSize is the default reservation for prelude encoding.
const outputReserveSize = 4096

// connectionBase is the codec state shared by both roles: the parser, the
// in-progress header accumulation, and the reserve/commit output path.
type connectionBase struct {
	conn   Connection
	parser *parser
	role   role

	currentHeaderMap   *http.HeaderMap
	headerState        headerParsingState
	currentHeaderField []byte
	currentHeaderValue []byte

	outputBuffer *buffer.Buffer
	reservedIov  [1]buffer.RawSlice
	reservedUsed int
	hasReserved  bool

	resetStreamCalled bool
}

func (cb *connectionBase) init(conn Connection, typ parserType, r role) {
	cb.conn = conn
	cb.role = r
	cb.parser = newParser(typ, cb)
	cb.outputBuffer = buffer.New()
}

// Dispatch feeds buffered wire bytes through the parser, draining what was
// consumed. The parser pauses between complete server requests; the caller
// re-dispatches when the buffer still has bytes after the response
// finishes.
func (cb *connectionBase) Dispatch(data *buffer.Buffer) error {
	cb.conn.Logger().Debug("parsing", "bytes", data.Length())

	// Always unpause before dispatch.
	cb.parser.Unpause()

	totalParsed := 0
	if data.Length() > 0 {
		needed := data.RawSlices(nil)
		slices := make([]buffer.RawSlice, needed)
		data.RawSlices(slices)
		for _, slice := range slices {
			parsed, err := cb.parser.Execute(slice.Data)
			totalParsed += parsed
			if err != nil {
				data.Drain(totalParsed)
				if errors.Is(err, ErrCodecProtocol) {
					cb.role.sendProtocolError()
				}
				return err
			}
			if parsed < len(slice.Data) {
				// Parser paused mid-slice.
				break
			}
		}
	}

	cb.conn.Logger().Debug("parsed", "bytes", totalParsed)
	return data.Drain(totalParsed)
}

// onResetStreamBase funnels every stream reset through one place.
func (cb *connectionBase) onResetStreamBase(reason StreamResetReason) {
	if cb.resetStreamCalled {
		return
	}
	cb.resetStreamCalled = true
	cb.role.onResetStream(reason)
}

// parserCallbacks

func (cb *connectionBase) onMessageBegin() {
	cb.currentHeaderMap = http.NewHeaderMap()
	cb.headerState = headerField
	cb.role.onMessageBegin()
}

func (cb *connectionBase) onURL(fragment []byte) { cb.role.onURL(fragment) }

func (cb *connectionBase) onHeaderField(fragment []byte) {
	if cb.headerState == headerDone {
		// Trailers arrive after the map was delivered; ignore.
		return
	}
	if cb.headerState == headerValue {
		cb.completeLastHeader()
	}
	cb.currentHeaderField = append(cb.currentHeaderField, fragment...)
}

func (cb *connectionBase) onHeaderValue(fragment []byte) {
	if cb.headerState == headerDone {
		return
	}
	cb.headerState = headerValue
	cb.currentHeaderValue = append(cb.currentHeaderValue, fragment...)
}

func (cb *connectionBase) onHeadersComplete() (headersAction, error) {
	cb.completeLastHeader()

	// Higher layers only care whether this is HTTP/1.1; everything else
	// collapses to 1.0.
	version := "HTTP/1.0"
	if cb.parser.httpMajor == 1 && cb.parser.httpMinor == 1 {
		version = "HTTP/1.1"
	}
	cb.currentHeaderMap.Set(http.HeaderVersion, version)

	headers := cb.currentHeaderMap
	cb.currentHeaderMap = nil
	cb.headerState = headerDone
	return cb.role.onHeadersComplete(headers)
}

func (cb *connectionBase) onBody(data []byte) { cb.role.onBody(data) }

func (cb *connectionBase) onMessageComplete() { cb.role.onMessageComplete() }

// completeLastHeader lowercases the accumulated name and moves the pair
// into the current map.
func (cb *connectionBase) completeLastHeader() {
	if len(cb.currentHeaderField) > 0 {
		lowercase(cb.currentHeaderField)
		cb.currentHeaderMap.AddLowerCase(string(cb.currentHeaderField), string(cb.currentHeaderValue))
	}
	cb.headerState = headerField
	cb.currentHeaderField = cb.currentHeaderField[:0]
	cb.currentHeaderValue = cb.currentHeaderValue[:0]
}

// Output path. The encoders build preludes byte-by-byte into a reserved
// region and commit only what was used.

func (cb *connectionBase) reserveOutput(size int) {
	if cb.hasReserved && len(cb.reservedIov[0].Data)-cb.reservedUsed >= size {
		return
	}
	if cb.hasReserved {
		cb.commitReserved()
	}
	cb.outputBuffer.Reserve(max(outputReserveSize, size), cb.reservedIov[:])
	cb.reservedUsed = 0
	cb.hasReserved = true
}

func (cb *connectionBase) appendOutput(data string) {
	cb.reserveOutput(len(data))
	copy(cb.reservedIov[0].Data[cb.reservedUsed:], data)
	cb.reservedUsed += len(data)
}

func (cb *connectionBase) commitReserved() {
	if !cb.hasReserved {
		return
	}
	iov := cb.reservedIov[0]
	iov.Data = iov.Data[:cb.reservedUsed]
	cb.outputBuffer.Commit([]buffer.RawSlice{iov})
	cb.hasReserved = false
	cb.reservedUsed = 0
}

func (cb *connectionBase) flushOutput() {
	cb.commitReserved()
	cb.conn.Write(cb.outputBuffer)
}

func lowercase(text []byte) {
	for i, ch := range text {
		if ch >= 'A' && ch <= 'Z' {
			text[i] |= 0x20
		}
	}
}
