// Package netutil holds small address helpers shared by the transport and
// the command-line front ends.
package netutil

import (
	"fmt"
	"net"
)

func ValidatePort(port uint16) error {
	if port == 0 {
		return fmt.Errorf("port cannot be 0")
	}
	return nil
}

func FormatAddress(host string, port uint16) string {
	return net.JoinHostPort(host, fmt.Sprintf("%d", port))
}

// ResolveUDP4Addr resolves host:port as an IPv4 UDP endpoint.
func ResolveUDP4Addr(host string, port uint16) (*net.UDPAddr, error) {
	if err := ValidatePort(port); err != nil {
		return nil, err
	}
	addr, err := net.ResolveUDPAddr("udp4", FormatAddress(host, port))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", FormatAddress(host, port), err)
	}
	return addr, nil
}
