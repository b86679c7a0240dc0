// Package http1 implements the HTTP/1.1 codec: an incremental push parser
// feeding a server or client connection role, and stream encoders that emit
// request and response preludes with correct framing.
//
// Bytes arrive through Dispatch. The server role pauses the parser after
// every complete request so the caller can process one request at a time
// and apply backpressure; if the dispatch buffer still has bytes after the
// response completes, the caller re-dispatches them. Header names are
// lowercased as they enter the HeaderMap. Messages without a body (no
// content-length, not chunked) have their headers held back and delivered
// together with end-of-stream, so the upper layer sees HTTP/2-like
// semantics.
//
// The encoders frame from the headers alone: an explicit content-length
// means identity framing, end-stream on headers means "content-length: 0",
// anything else switches to chunked transfer encoding. Pseudo-headers are
// never written to the wire; ":authority" becomes a legacy "host" line.
//
// Both roles share one connection base that owns the parser and the header
// accumulation state; the role supplies the message callbacks.
package http1
