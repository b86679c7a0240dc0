package http

import (
	stdhttp "net/http"
	"strconv"
	"strings"

	"meridian-hq/janus/pkg/network"
)

// AppendXff appends the peer address (host only) to x-forwarded-for.
func AppendXff(headers *HeaderMap, remoteAddress string) {
	host := network.HostFromAddress(remoteAddress)
	if existing := headers.Get(HeaderForwardedFor); existing != "" {
		headers.Set(HeaderForwardedFor, existing+","+host)
		return
	}
	headers.Set(HeaderForwardedFor, host)
}

// IsInternalRequest reports whether the request originated inside the trust
// boundary: the most recent x-forwarded-for entry is an RFC1918 address.
func IsInternalRequest(headers *HeaderMap) bool {
	xff := headers.Get(HeaderForwardedFor)
	if xff == "" {
		return false
	}
	if idx := strings.LastIndexByte(xff, ','); idx >= 0 {
		xff = xff[idx+1:]
	}
	return network.IsInternalAddress(strings.TrimSpace(xff))
}

// ResponseStatus returns the numeric :status of a response header map, or 0
// when absent or malformed.
func ResponseStatus(headers *HeaderMap) int {
	code, err := strconv.Atoi(headers.Get(HeaderStatus))
	if err != nil {
		return 0
	}
	return code
}

// StatusText returns the reason phrase for an HTTP status code.
func StatusText(code int) string {
	if text := stdhttp.StatusText(code); text != "" {
		return text
	}
	return "Unknown"
}
