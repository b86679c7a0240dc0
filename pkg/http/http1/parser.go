package http1

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// parserType selects which start-line grammar the parser expects.
type parserType int

const (
	parseRequest parserType = iota
	parseResponse
)

// headersAction is returned by the onHeadersComplete callback.
type headersAction int

const (
	// proceed parses the body according to the message's framing.
	proceed headersAction = iota
	// skipBody forces message completion after the headers. The client
	// role uses it for responses that cannot have a body (HEAD, 204, 304).
	skipBody
)

// parserCallbacks is the push interface between the parser and a codec
// role. Byte slices borrow the dispatch buffer and must be copied if
// retained.
type parserCallbacks interface {
	onMessageBegin()
	onURL(fragment []byte)
	onHeaderField(fragment []byte)
	onHeaderValue(fragment []byte)
	onHeadersComplete() (headersAction, error)
	onBody(data []byte)
	onMessageComplete()
}

type parserState int

const (
	stateStartLine parserState = iota
	stateHeaders
	stateBody
	stateChunkSize
	stateChunkData
	stateChunkDataEnd
	stateTrailers
)

// maxLineLength bounds start lines and header lines; anything longer is a
// protocol error.
const maxLineLength = 16384

// parser is an incremental HTTP/1.x message parser. It consumes byte slices
// of arbitrary fragmentation and pushes message events to its callbacks.
// An explicit pause bit lets the owner stop consumption between messages.
type parser struct {
	typ      parserType
	cb       parserCallbacks
	state    parserState
	line     []byte
	paused   bool
	skipBody bool

	method     string
	statusCode int
	httpMajor  int
	httpMinor  int

	contentLength int64 // -1 when absent
	chunked       bool
	bodyRemaining int64
	// discardBody consumes framed body bytes without delivering them, for
	// responses that must not have a body even though the peer framed one.
	discardBody bool
}

func newParser(typ parserType, cb parserCallbacks) *parser {
	return &parser{typ: typ, cb: cb, contentLength: -1}
}

// Pause stops consumption at the current position; Execute returns the
// bytes consumed so far.
func (p *parser) Pause() { p.paused = true }

// Unpause resumes consumption on the next Execute.
func (p *parser) Unpause() { p.paused = false }

// HasBody reports whether the current message carries a body under the RFC
// rule: chunked transfer encoding, or a positive content-length.
func (p *parser) HasBody() bool {
	return p.chunked || p.contentLength > 0
}

// Execute consumes as much of data as the current state allows and returns
// the number of bytes consumed. It stops early when paused.
func (p *parser) Execute(data []byte) (int, error) {
	consumed := 0
	for consumed < len(data) && !p.paused {
		switch p.state {
		case stateStartLine, stateHeaders, stateChunkSize, stateChunkDataEnd, stateTrailers:
			n, complete, err := p.takeLine(data[consumed:])
			consumed += n
			if err != nil {
				return consumed, err
			}
			if !complete {
				return consumed, nil
			}
			line := p.line
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			err = p.processLine(line)
			p.line = p.line[:0]
			if err != nil {
				return consumed, err
			}

		case stateBody:
			n := int(min(int64(len(data)-consumed), p.bodyRemaining))
			if !p.discardBody {
				p.cb.onBody(data[consumed : consumed+n])
			}
			consumed += n
			p.bodyRemaining -= int64(n)
			if p.bodyRemaining == 0 {
				p.messageComplete()
			}

		case stateChunkData:
			n := int(min(int64(len(data)-consumed), p.bodyRemaining))
			if !p.discardBody {
				p.cb.onBody(data[consumed : consumed+n])
			}
			consumed += n
			p.bodyRemaining -= int64(n)
			if p.bodyRemaining == 0 {
				p.state = stateChunkDataEnd
			}
		}
	}
	return consumed, nil
}

// takeLine accumulates bytes into the line buffer up to and including the
// next LF. complete is false when the line continues in a later dispatch.
func (p *parser) takeLine(data []byte) (n int, complete bool, err error) {
	nl := bytes.IndexByte(data, '\n')
	if nl == -1 {
		p.line = append(p.line, data...)
		if len(p.line) > maxLineLength {
			return len(data), false, fmt.Errorf("%w: line exceeds %d bytes", ErrCodecProtocol, maxLineLength)
		}
		return len(data), false, nil
	}
	p.line = append(p.line, data[:nl]...)
	if len(p.line) > maxLineLength {
		return nl + 1, false, fmt.Errorf("%w: line exceeds %d bytes", ErrCodecProtocol, maxLineLength)
	}
	return nl + 1, true, nil
}

func (p *parser) processLine(line []byte) error {
	switch p.state {
	case stateStartLine:
		if len(line) == 0 {
			// Tolerate blank lines between messages.
			return nil
		}
		return p.processStartLine(line)

	case stateHeaders:
		if len(line) == 0 {
			return p.headersComplete()
		}
		return p.processHeaderLine(line, true)

	case stateChunkSize:
		size, err := parseChunkSize(line)
		if err != nil {
			return err
		}
		if size == 0 {
			p.state = stateTrailers
			return nil
		}
		p.bodyRemaining = size
		p.state = stateChunkData
		return nil

	case stateChunkDataEnd:
		if len(line) != 0 {
			return fmt.Errorf("%w: malformed chunk terminator", ErrCodecProtocol)
		}
		p.state = stateChunkSize
		return nil

	case stateTrailers:
		if len(line) == 0 {
			p.messageComplete()
			return nil
		}
		return p.processHeaderLine(line, false)
	}
	return nil
}

func (p *parser) processStartLine(line []byte) error {
	p.cb.onMessageBegin()
	p.contentLength = -1
	p.chunked = false
	p.skipBody = false
	p.discardBody = false

	text := string(line)
	if p.typ == parseRequest {
		first := strings.IndexByte(text, ' ')
		last := strings.LastIndexByte(text, ' ')
		if first <= 0 || last <= first {
			return fmt.Errorf("%w: malformed request line", ErrCodecProtocol)
		}
		p.method = text[:first]
		if err := p.parseVersion(text[last+1:]); err != nil {
			return err
		}
		p.cb.onURL(line[first+1 : last])
		p.state = stateHeaders
		return nil
	}

	// Status line: HTTP/x.y SP code [SP reason].
	space := strings.IndexByte(text, ' ')
	if space <= 0 {
		return fmt.Errorf("%w: malformed status line", ErrCodecProtocol)
	}
	if err := p.parseVersion(text[:space]); err != nil {
		return err
	}
	rest := text[space+1:]
	codeText := rest
	if idx := strings.IndexByte(rest, ' '); idx >= 0 {
		codeText = rest[:idx]
	}
	code, err := strconv.Atoi(codeText)
	if err != nil || code < 100 || code > 999 {
		return fmt.Errorf("%w: malformed status code %q", ErrCodecProtocol, codeText)
	}
	p.statusCode = code
	p.state = stateHeaders
	return nil
}

func (p *parser) parseVersion(text string) error {
	if len(text) != 8 || !strings.HasPrefix(text, "HTTP/") || text[6] != '.' {
		return fmt.Errorf("%w: malformed version %q", ErrCodecProtocol, text)
	}
	major := int(text[5] - '0')
	minor := int(text[7] - '0')
	if major < 0 || major > 9 || minor < 0 || minor > 9 {
		return fmt.Errorf("%w: malformed version %q", ErrCodecProtocol, text)
	}
	p.httpMajor = major
	p.httpMinor = minor
	return nil
}

// processHeaderLine splits one header line and pushes name and value. When
// sniff is set the parser also tracks the framing headers it needs for body
// detection.
func (p *parser) processHeaderLine(line []byte, sniff bool) error {
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return fmt.Errorf("%w: malformed header line", ErrCodecProtocol)
	}
	name := line[:colon]
	if bytes.IndexByte(name, ' ') >= 0 || bytes.IndexByte(name, '\t') >= 0 {
		return fmt.Errorf("%w: whitespace in header name", ErrCodecProtocol)
	}
	value := bytes.TrimLeft(line[colon+1:], " \t")
	value = bytes.TrimRight(value, " \t")

	if sniff {
		if err := p.sniffFramingHeader(name, value); err != nil {
			return err
		}
	}
	p.cb.onHeaderField(name)
	p.cb.onHeaderValue(value)
	return nil
}

func (p *parser) sniffFramingHeader(name, value []byte) error {
	if asciiEqualFold(name, "content-length") {
		length, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil || length < 0 {
			return fmt.Errorf("%w: malformed content-length %q", ErrCodecProtocol, value)
		}
		p.contentLength = length
	} else if asciiEqualFold(name, "transfer-encoding") {
		if strings.Contains(strings.ToLower(string(value)), "chunked") {
			p.chunked = true
		}
	}
	return nil
}

func (p *parser) headersComplete() error {
	action, err := p.cb.onHeadersComplete()
	if err != nil {
		return err
	}
	if action == skipBody {
		p.skipBody = true
	}
	switch {
	case p.skipBody:
		// If the peer framed a body anyway, consume and discard it so the
		// connection stays usable.
		switch {
		case p.chunked:
			p.discardBody = true
			p.state = stateChunkSize
		case p.contentLength > 0:
			p.discardBody = true
			p.bodyRemaining = p.contentLength
			p.state = stateBody
		default:
			p.messageComplete()
		}
	case p.chunked:
		p.state = stateChunkSize
	case p.contentLength > 0:
		p.bodyRemaining = p.contentLength
		p.state = stateBody
	default:
		p.messageComplete()
	}
	return nil
}

func (p *parser) messageComplete() {
	p.state = stateStartLine
	p.cb.onMessageComplete()
}

func parseChunkSize(line []byte) (int64, error) {
	text := string(line)
	// Chunk extensions are tolerated and ignored.
	if idx := strings.IndexByte(text, ';'); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	size, err := strconv.ParseInt(text, 16, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: malformed chunk size %q", ErrCodecProtocol, line)
	}
	return size, nil
}

// asciiEqualFold compares an ASCII name case-insensitively against a
// lowercase reference without allocating.
func asciiEqualFold(name []byte, lower string) bool {
	if len(name) != len(lower) {
		return false
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch >= 'A' && ch <= 'Z' {
			ch |= 0x20
		}
		if ch != lower[i] {
			return false
		}
	}
	return true
}
