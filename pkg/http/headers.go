package http

// Well-known header names. All names in a HeaderMap are lowercase; these
// constants are the canonical spellings used across the codec, the
// connection manager and the router. Names beginning with ':' are
// pseudo-headers that never appear on the HTTP/1.1 wire.
const (
	HeaderAuthority = ":authority"
	HeaderMethod    = ":method"
	HeaderPath      = ":path"
	HeaderScheme    = ":scheme"
	HeaderStatus    = ":status"
	HeaderVersion   = ":version"

	HeaderAuthorization    = "authorization"
	HeaderConnection       = "connection"
	HeaderContentLength    = "content-length"
	HeaderContentType      = "content-type"
	HeaderCookie           = "cookie"
	HeaderDate             = "date"
	HeaderExpect           = "expect"
	HeaderGrpcMessage      = "grpc-message"
	HeaderGrpcStatus       = "grpc-status"
	HeaderHostLegacy       = "host"
	HeaderKeepAlive        = "keep-alive"
	HeaderProxyConnection  = "proxy-connection"
	HeaderServer           = "server"
	HeaderTransferEncoding = "transfer-encoding"
	HeaderUpgrade          = "upgrade"
	HeaderUserAgent        = "user-agent"

	HeaderForwardedFor   = "x-forwarded-for"
	HeaderForwardedProto = "x-forwarded-proto"
	HeaderRequestID      = "x-request-id"

	// The proxy's own control-header family. Internal services may set
	// these; external (non-internal) requests have them stripped at ingress.
	HeaderDownstreamServiceCluster = "x-janus-downstream-service-cluster"
	HeaderExpectedRequestTimeout   = "x-janus-expected-rq-timeout-ms"
	HeaderExternalAddress          = "x-janus-external-address"
	HeaderForceTrace               = "x-janus-force-trace"
	HeaderInternalRequest          = "x-janus-internal"
	HeaderMaxRetries               = "x-janus-max-retries"
	HeaderOriginalPath             = "x-janus-original-path"
	HeaderRetryOn                  = "x-janus-retry-on"
	HeaderUpstreamAltStatName      = "x-janus-upstream-alt-stat-name"
	HeaderUpstreamCanary           = "x-janus-upstream-canary"
	HeaderUpstreamPerTryTimeout    = "x-janus-upstream-rq-per-try-timeout-ms"
	HeaderUpstreamRequestTimeout   = "x-janus-upstream-rq-timeout-ms"
	HeaderUpstreamServiceTime      = "x-janus-upstream-service-time"
)

// Common header values.
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"

	MethodGet  = "GET"
	MethodHead = "HEAD"
	MethodPost = "POST"

	TransferEncodingChunked = "chunked"
	Expect100Continue       = "100-continue"
	HeaderValueTrue         = "true"
	ConnectionClose         = "close"
)

// controlHeaderPrefix marks the proxy-private header family stripped from
// external requests.
const controlHeaderPrefix = "x-janus-"

// inlineHeaderNames is the fixed set of names with O(1) slots. The legacy
// "host" name aliases the ":authority" slot.
var inlineHeaderNames = []string{
	HeaderAuthority,
	HeaderMethod,
	HeaderPath,
	HeaderScheme,
	HeaderStatus,
	HeaderVersion,
	HeaderAuthorization,
	HeaderConnection,
	HeaderContentLength,
	HeaderContentType,
	HeaderCookie,
	HeaderDate,
	HeaderExpect,
	HeaderGrpcMessage,
	HeaderGrpcStatus,
	HeaderKeepAlive,
	HeaderProxyConnection,
	HeaderServer,
	HeaderTransferEncoding,
	HeaderUpgrade,
	HeaderUserAgent,
	HeaderForwardedFor,
	HeaderForwardedProto,
	HeaderRequestID,
	HeaderDownstreamServiceCluster,
	HeaderExpectedRequestTimeout,
	HeaderExternalAddress,
	HeaderForceTrace,
	HeaderInternalRequest,
	HeaderMaxRetries,
	HeaderOriginalPath,
	HeaderRetryOn,
	HeaderUpstreamAltStatName,
	HeaderUpstreamCanary,
	HeaderUpstreamPerTryTimeout,
	HeaderUpstreamRequestTimeout,
	HeaderUpstreamServiceTime,
}

// inlineSlots maps a name onto its canonical inline slot name.
var inlineSlots = buildInlineSlots()

func buildInlineSlots() map[string]string {
	slots := make(map[string]string, len(inlineHeaderNames)+1)
	for _, name := range inlineHeaderNames {
		slots[name] = name
	}
	// A legacy host line lands in the :authority slot.
	slots[HeaderHostLegacy] = HeaderAuthority
	return slots
}
