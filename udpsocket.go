package sharprudp

import (
	"net"

	"github.com/sirupsen/logrus"
)

// ReceiveFunc is the contract the datagram I/O adapter drives the core
// with: one call per inbound datagram, already carrying its source peer.
type ReceiveFunc func(peer Peer, data []byte)

// UDPSocket is the datagram I/O adapter of spec.md §4.2: single-socket,
// binding/accepting from many peers in server mode or dialing one pinned
// remote in client mode. It is "reliable w.r.t. local delivery" — loss
// and reordering are strictly a wire phenomenon the engine above handles.
type UDPSocket struct {
	conn     *net.UDPConn
	remote   *net.UDPAddr // non-nil when pinned to a single peer (client mode)
	log      *logrus.Entry
	isServer bool
}

// ListenUDPSocket binds addr and accepts datagrams from any peer.
func ListenUDPSocket(addr string, log *logrus.Entry) (*UDPSocket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &UDPSocket{conn: conn, log: log, isServer: true}, nil
}

// DialUDPSocket binds ephemerally and pins the socket to remote.
func DialUDPSocket(remote string, log *logrus.Entry) (*UDPSocket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, err
	}
	return &UDPSocket{conn: conn, remote: udpAddr, log: log}, nil
}

// RemotePeer reports the pinned remote of a client-mode socket.
func (s *UDPSocket) RemotePeer() Peer {
	return PeerFromUDPAddr(s.remote)
}

// SendTo transmits b to peer. In client mode, peer is expected to be the
// pinned remote; the underlying conn is already connected to it.
func (s *UDPSocket) SendTo(peer Peer, b []byte) error {
	if s.remote != nil {
		_, err := s.conn.Write(b)
		return err
	}
	addr, err := peer.UDPAddr()
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDP(b, addr)
	return err
}

// Close closes the underlying socket.
func (s *UDPSocket) Close() error {
	return s.conn.Close()
}

// Serve reads datagrams until stop is closed, normalizing the source
// address (client mode substitutes the single pinned remote, per
// spec.md §4.5) and invoking handler for each one. It returns once a read
// finishes (with data or an error) after stop has closed; a read error
// while stop is open is logged and reading continues.
func (s *UDPSocket) Serve(handler ReceiveFunc, stop <-chan struct{}) {
	buf := make([]byte, 65535)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-stop:
				return
			default:
				s.log.WithError(err).Debug("udp read failed")
				continue
			}
		}

		peer := PeerFromUDPAddr(from)
		if s.remote != nil {
			peer = s.RemotePeer()
		}

		data := append([]byte(nil), buf[:n]...)
		handler(peer, data)
	}
}
