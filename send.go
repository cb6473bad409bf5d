package sharprudp

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Send enqueues data (possibly fragmented) as the given packet type to
// peer. It implements spec.md §4.4 steps 1–3: a sequence record for peer
// is created if this is the first interaction with it, the payload is
// split into max_mtu chunks sharing one packet id when it is too large
// for a single packet, and the per-peer packet-id counter advances (and
// wraps at PacketIDLimit) once per call regardless of fragment count.
func (c *Conn) Send(peer Peer, typ PacketType, data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.sequences.initSequence(peer, c.isServer, c.cfg)

	var id uint32
	var chunks [][]byte
	c.sequences.withLocked(peer, func(sq *sequenceRecord) {
		id = sq.nextPacketID(c.cfg.PacketIDLimit)
	})

	if len(data) < c.cfg.MaxMTU {
		chunks = [][]byte{data}
	} else {
		for offset := 0; offset < len(data); offset += c.cfg.MaxMTU {
			end := offset + c.cfg.MaxMTU
			if end > len(data) {
				end = len(data)
			}
			chunk := data[offset:end]
			if len(chunk) > c.cfg.MaxMTU {
				// Unreachable: the loop bound above guarantees every
				// chunk is at most MaxMTU bytes.
				panic("sharprudp: fragment exceeds max_mtu after split")
			}
			chunks = append(chunks, chunk)
		}
	}

	qty := uint32(0)
	if len(chunks) > 1 {
		qty = uint32(len(chunks))
	}

	c.sendMu.Lock()
	for _, chunk := range chunks {
		c.sendQueue.PushBack(&Packet{
			Dst:  peer,
			Type: typ,
			ID:   id,
			Qty:  qty,
			Data: chunk,
		})
	}
	c.sendMu.Unlock()

	return nil
}

// sendLoop drains the send queue every SendFrequencyMs, stamping each
// packet's sequence number and piggy-backed acknowledgements before
// transmission (spec.md §4.4).
func (c *Conn) sendLoop() {
	ticker := time.NewTicker(c.cfg.sendTick())
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSend:
			return
		case <-ticker.C:
			c.drainSendQueue()
		}
	}
}

func (c *Conn) drainSendQueue() {
	for {
		c.sendMu.Lock()
		front := c.sendQueue.Front()
		if front == nil {
			c.sendMu.Unlock()
			return
		}
		c.sendQueue.Remove(front)
		c.sendMu.Unlock()

		pkt := front.Value.(*Packet)
		c.transmit(pkt)
	}
}

// transmit assigns a sequence number, attaches pending acknowledgements,
// applies the server-side pending-reset marker, retains an unconfirmed
// copy, and hands the packet to the socket.
func (c *Conn) transmit(pkt *Packet) {
	peer := pkt.Dst

	c.sequences.initSequence(peer, c.isServer, c.cfg)
	c.sequences.withLocked(peer, func(sq *sequenceRecord) {
		pkt.Seq = sq.local
		sq.local++
	})

	pkt.Ack = c.drainConfirmed(peer)

	if c.isServer && c.isPendingReset(peer) {
		pkt.Flags |= FlagRST
		c.sequences.delete(peer)
		c.resetCount.Add(1)
		c.metrics.incReset("server")
		c.clearPendingReset(peer)
	}

	c.retainUnconfirmed(peer, pkt)

	if pkt.Type == PacketRST {
		c.sequences.delete(peer)
	}

	raw := Encode(c.cfg.MagicHeader, pkt)
	if err := c.socket.SendTo(peer, raw); err != nil {
		c.log.WithError(ErrSendFailed).WithField("peer", peer.String()).WithField("cause", err).Warn("send failed")
		return
	}
	c.sentCount.Add(1)
	c.metrics.incSent()
	c.logf(peer, "sent packet", logrus.Fields{"seq": pkt.Seq, "type": pkt.Type.String()})
}

// drainConfirmed returns and clears every sequence number peer's receive
// path has confirmed since the last transmission to it.
func (c *Conn) drainConfirmed(peer Peer) []uint32 {
	c.ackMu.Lock()
	defer c.ackMu.Unlock()
	key := peer.String()
	acks := c.confirmedBy[key]
	delete(c.confirmedBy, key)
	return acks
}

// retainUnconfirmed appends a clone of pkt to peer's unconfirmed
// retention list, used to resend after a client-side reset.
func (c *Conn) retainUnconfirmed(peer Peer, pkt *Packet) {
	c.ackMu.Lock()
	defer c.ackMu.Unlock()
	key := peer.String()
	c.unconfirmed[key] = append(c.unconfirmed[key], pkt.clone())
	c.metrics.setUnconfirmed(key, len(c.unconfirmed[key]))
}

// confirmPacket implements spec.md §4.6. p is a *received* packet: its
// own Seq is appended to the confirmed set so it gets piggy-backed on the
// next outbound packet to its source, and its Ack array (set by the
// remote) is used to purge our unconfirmed list of everything the remote
// says it has now seen. These are two different directions of the same
// exchange and must not be confused.
func (c *Conn) confirmPacket(p *Packet) {
	c.ackMu.Lock()
	defer c.ackMu.Unlock()

	key := p.Src.String()
	c.confirmedBy[key] = append(c.confirmedBy[key], p.Seq)

	if len(p.Ack) == 0 {
		return
	}
	acked := make(map[uint32]struct{}, len(p.Ack))
	for _, seq := range p.Ack {
		acked[seq] = struct{}{}
	}

	remaining := c.unconfirmed[key][:0]
	for _, pending := range c.unconfirmed[key] {
		if _, ok := acked[pending.Seq]; ok {
			continue
		}
		remaining = append(remaining, pending)
	}
	c.unconfirmed[key] = remaining
	c.metrics.setUnconfirmed(key, len(remaining))
}

// sendHandshakeAck enqueues the server's SYN|ACK reply that completes a
// client's handshake (SPEC_FULL.md §4.7 / Known Source Ambiguity #4). It
// bypasses the public Send API only to set FlagACK, which applications
// have no wire-level reason to set themselves.
func (c *Conn) sendHandshakeAck(peer Peer) {
	var id uint32
	c.sequences.withLocked(peer, func(sq *sequenceRecord) {
		id = sq.nextPacketID(c.cfg.PacketIDLimit)
	})
	c.sendMu.Lock()
	c.sendQueue.PushBack(&Packet{Dst: peer, Type: PacketSYN, Flags: FlagACK, ID: id})
	c.sendMu.Unlock()
}

func (c *Conn) unconfirmedSnapshot(peer Peer) []*Packet {
	c.ackMu.Lock()
	defer c.ackMu.Unlock()
	src := c.unconfirmed[peer.String()]
	out := make([]*Packet, len(src))
	copy(out, src)
	return out
}
