package http

import (
	"strings"

	"meridian-hq/janus/pkg/network"
	"meridian-hq/janus/pkg/runtime"
	"meridian-hq/janus/pkg/stats"
)

// HeaderValue is one configured name/value pair.
type HeaderValue struct {
	Name  string
	Value string
}

// MutationConfig carries the connection-manager settings that drive header
// mutation.
type MutationConfig struct {
	// UseRemoteAddress means we are the first proxy in the trust boundary
	// and create/append x-forwarded-for from the immediate peer rather than
	// trusting what arrived.
	UseRemoteAddress bool

	// LocalAddress replaces loopback peers in x-forwarded-for.
	LocalAddress string

	// UserAgent, when set, names this deployment in
	// x-janus-downstream-service-cluster and fills a missing user-agent.
	UserAgent string

	// GenerateRequestID enables x-request-id creation.
	GenerateRequestID bool

	// InternalOnlyHeaders are additionally stripped from external requests.
	InternalOnlyHeaders []string

	// ResponseHeadersToRemove / ResponseHeadersToAdd are applied in order
	// on the response path.
	ResponseHeadersToRemove []string
	ResponseHeadersToAdd    []HeaderValue
}

// MutateRequestHeaders normalizes request headers at ingress: strips
// hop-by-hop and proxy-private headers, establishes x-forwarded-for and
// x-forwarded-proto, classifies the request as internal or edge, and
// assigns a request id.
func MutateRequestHeaders(headers *HeaderMap, remoteAddress string, ssl bool, cfg *MutationConfig, random runtime.RandomGenerator, failedRequestID *stats.Counter) {
	// Clean proxy headers.
	headers.Remove(HeaderConnection)
	headers.Remove(HeaderInternalRequest)
	headers.Remove(HeaderKeepAlive)
	headers.Remove(HeaderProxyConnection)
	headers.Remove(HeaderTransferEncoding)
	headers.Remove(HeaderUpgrade)
	headers.Remove(HeaderVersion)

	scheme := SchemeHTTP
	if ssl {
		scheme = SchemeHTTPS
	}

	// When using the remote address we create/append XFF from the immediate
	// peer. A trusted double proxy is expected to have set XFF already.
	if cfg.UseRemoteAddress {
		if network.IsLoopbackAddress(remoteAddress) {
			AppendXff(headers, cfg.LocalAddress)
		} else {
			AppendXff(headers, remoteAddress)
		}
		headers.Set(HeaderForwardedProto, scheme)
	}

	// If the remote did not set x-forwarded-proto and we did not replace it
	// above, set it now; :scheme mirrors it either way.
	if !headers.Has(HeaderForwardedProto) {
		headers.Set(HeaderForwardedProto, scheme)
	}
	headers.Set(HeaderScheme, headers.Get(HeaderForwardedProto))

	internal := IsInternalRequest(headers)
	// An edge request comes from an external client to the first proxy in
	// the trust boundary; proxy-to-service hops are not edge.
	edge := !internal && cfg.UseRemoteAddress

	if internal {
		headers.Set(HeaderInternalRequest, HeaderValueTrue)
	} else {
		if edge {
			headers.Remove(HeaderDownstreamServiceCluster)
		}
		headers.Remove(HeaderRetryOn)
		headers.Remove(HeaderMaxRetries)
		headers.Remove(HeaderUpstreamAltStatName)
		headers.Remove(HeaderUpstreamRequestTimeout)
		headers.Remove(HeaderUpstreamPerTryTimeout)
		headers.Remove(HeaderExpectedRequestTimeout)
		headers.Remove(HeaderForceTrace)

		// Anything else in the control-header family goes too.
		var control []string
		headers.Iterate(func(key, _ string) {
			if strings.HasPrefix(key, controlHeaderPrefix) {
				control = append(control, key)
			}
		})
		for _, name := range control {
			headers.Remove(name)
		}

		for _, name := range cfg.InternalOnlyHeaders {
			headers.Remove(strings.ToLower(name))
		}
	}

	if cfg.UserAgent != "" {
		headers.Set(HeaderDownstreamServiceCluster, cfg.UserAgent)
		if !headers.Has(HeaderUserAgent) {
			headers.Set(HeaderUserAgent, cfg.UserAgent)
		}
	}

	// First ingress into the trusted network records the external address.
	if edge {
		headers.Set(HeaderExternalAddress, network.HostFromAddress(remoteAddress))
	}

	// Generate x-request-id for all edge requests, or when there is none.
	if cfg.GenerateRequestID && (edge || !headers.Has(HeaderRequestID)) {
		id, err := random.UUID()
		if err != nil {
			// Not fatal; the request proceeds without an id.
			if failedRequestID != nil {
				failedRequestID.Inc()
			}
			return
		}
		headers.Set(HeaderRequestID, id)
	}
}

// MutateResponseHeaders normalizes response headers at egress and applies
// the configured removals and additions in order.
func MutateResponseHeaders(responseHeaders, requestHeaders *HeaderMap, cfg *MutationConfig) {
	responseHeaders.Remove(HeaderConnection)
	responseHeaders.Remove(HeaderTransferEncoding)
	responseHeaders.Remove(HeaderVersion)

	for _, name := range cfg.ResponseHeadersToRemove {
		responseHeaders.Remove(strings.ToLower(name))
	}
	for _, hv := range cfg.ResponseHeadersToAdd {
		responseHeaders.AddLowerCase(strings.ToLower(hv.Name), hv.Value)
	}

	if requestHeaders.Has(HeaderForceTrace) {
		responseHeaders.Set(HeaderRequestID, requestHeaders.Get(HeaderRequestID))
	}
}
