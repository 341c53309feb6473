// Package netutil discovers the address peers should dial to reach
// this install on the local network.
package netutil

import (
	"net"
	"strings"
)

// LocalIP returns the LAN IPv4 address of this machine, or 127.0.0.1
// when none can be determined.
//
// The primary probe dials a UDP socket toward a public address, which
// selects the interface holding the default route without sending any
// packets. Benchmarking ranges (198.18.0.0/15) and link-local
// (169.254.0.0/16) addresses are rejected; VPN and test harness
// interfaces sometimes win the route selection with those.
func LocalIP() string {
	if ip := defaultRouteIP(); ip != "" && isUsable(ip) {
		return ip
	}

	// Fall back to scanning interfaces for a private address.
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		s := ip4.String()
		if isUsable(s) && isPrivate(s) {
			return s
		}
	}

	return "127.0.0.1"
}

func defaultRouteIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer func() { _ = conn.Close() }()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || local.IP == nil {
		return ""
	}
	ip4 := local.IP.To4()
	if ip4 == nil {
		return ""
	}
	return ip4.String()
}

func isUsable(ip string) bool {
	if strings.HasPrefix(ip, "198.18.") || strings.HasPrefix(ip, "198.19.") {
		return false
	}
	if strings.HasPrefix(ip, "169.254.") {
		return false
	}
	return ip != "" && ip != "0.0.0.0"
}

func isPrivate(ip string) bool {
	return strings.HasPrefix(ip, "192.168.") ||
		strings.HasPrefix(ip, "10.") ||
		strings.HasPrefix(ip, "172.")
}
