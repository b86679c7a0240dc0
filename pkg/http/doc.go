// Package http holds the HTTP-generic pieces of the data plane: the header
// map shared by both codec directions, the well-known header names, and the
// connection-manager header mutation applied at request ingress and
// response egress.
//
// HeaderMap is an ordered multimap from lowercase name to value. Well-known
// names ("inline headers") resolve to fixed slots in O(1); everything else
// lives in the insertion-ordered list only. Pseudo-headers (":method",
// ":path", ":scheme", ":status", ":authority", ":version") are kept in the
// map for the upper layers but are never emitted on the HTTP/1.1 wire; the
// codec translates ":authority" back to a legacy "host" line.
//
// The package is wire-format agnostic: framing and parsing live in the
// http1 subpackage.
package http
