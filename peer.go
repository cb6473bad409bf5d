package sharprudp

import (
	"net"
	"strconv"
)

// Peer identifies the far side of a conversation by address and port.
// Two peers compare equal iff both fields match; the zero value is never
// a valid peer. Peer is comparable, but the sequence/client/reset tables
// key by Peer.String() per the design note on avoiding cyclic endpoint
// references.
type Peer struct {
	Host string
	Port int
}

func (p Peer) String() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// PeerFromUDPAddr normalizes a *net.UDPAddr into a Peer.
func PeerFromUDPAddr(addr *net.UDPAddr) Peer {
	return Peer{Host: addr.IP.String(), Port: addr.Port}
}

// UDPAddr resolves the peer back into a *net.UDPAddr for sending.
func (p Peer) UDPAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", p.String())
}
