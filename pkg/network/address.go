package network

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// rfc1918Blocks are the private IPv4 ranges that mark a request as
// originating inside the trust boundary.
var rfc1918Blocks = []*net.IPNet{
	mustCIDR("10.0.0.0/8"),
	mustCIDR("172.16.0.0/12"),
	mustCIDR("192.168.0.0/16"),
}

func mustCIDR(s string) *net.IPNet {
	_, block, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return block
}

// IsLoopbackAddress reports whether address (an IP, optionally host:port)
// is a loopback address.
func IsLoopbackAddress(address string) bool {
	ip := parseIPMaybePort(address)
	return ip != nil && ip.IsLoopback()
}

// IsInternalAddress reports whether address is an RFC1918 private address.
func IsInternalAddress(address string) bool {
	ip := parseIPMaybePort(address)
	if ip == nil {
		return false
	}
	for _, block := range rfc1918Blocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func parseIPMaybePort(address string) net.IP {
	if host, _, err := net.SplitHostPort(address); err == nil {
		address = host
	}
	return net.ParseIP(address)
}

// HostFromAddress returns the host portion of a host:port string, or the
// string itself when it carries no port.
func HostFromAddress(address string) string {
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	return address
}

// resolveTCPSockaddr resolves a host:port string to a sockaddr for
// connect/bind.
func resolveTCPSockaddr(address string) (unix.Sockaddr, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("network: malformed address %q: %w", address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("network: malformed port in %q", address)
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("network: resolve %q: %w", host, err)
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			sa := &unix.SockaddrInet4{Port: port}
			copy(sa.Addr[:], v4)
			return sa, nil
		}
	}
	for _, ip := range ips {
		if v6 := ip.To16(); v6 != nil {
			sa := &unix.SockaddrInet6{Port: port}
			copy(sa.Addr[:], v6)
			return sa, nil
		}
	}
	return nil, fmt.Errorf("network: no usable address for %q", host)
}

// sockaddrToString formats a peer sockaddr as host:port.
func sockaddrToString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrUnix:
		return a.Name
	default:
		return ""
	}
}
