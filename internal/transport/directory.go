// Package transport provides the unreliable point-to-point plumbing under
// the multicast engine: a static peer directory and a UDP datagram
// transport. The transport is best effort only; datagrams may be lost,
// duplicated, or reordered, and the layers above are built to tolerate that.
package transport

import (
	"fmt"
	"net"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/netutil"
	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/protocol"
)

// Directory is the static peer-id to endpoint mapping for one run. Every
// member is configured with the same directory; it never changes while the
// run is alive.
type Directory struct {
	addrs map[protocol.PeerID]*net.UDPAddr
}

// NewDirectory assigns peer i, for i in 0..n-1, the endpoint
// host:basePort+i.
func NewDirectory(host string, basePort uint16, n int) (*Directory, error) {
	if n <= 0 {
		return nil, fmt.Errorf("peer count must be positive, got %d", n)
	}
	if int(basePort)+n-1 > 65535 {
		return nil, fmt.Errorf("base port %d leaves no room for %d peers", basePort, n)
	}

	addrs := make(map[protocol.PeerID]*net.UDPAddr, n)
	for i := 0; i < n; i++ {
		addr, err := netutil.ResolveUDP4Addr(host, basePort+uint16(i))
		if err != nil {
			return nil, fmt.Errorf("failed to build directory entry for peer %d: %w", i, err)
		}
		addrs[protocol.PeerID(i)] = addr
	}
	return &Directory{addrs: addrs}, nil
}

// Addr returns the endpoint of a peer.
func (d *Directory) Addr(id protocol.PeerID) (*net.UDPAddr, bool) {
	addr, ok := d.addrs[id]
	return addr, ok
}

// Peers returns all peer ids in ascending order.
func (d *Directory) Peers() []protocol.PeerID {
	ids := maps.Keys(d.addrs)
	slices.Sort(ids)
	return ids
}

func (d *Directory) Len() int {
	return len(d.addrs)
}
