package sharprudp

import (
	"errors"
	"sort"
	"time"
)

// recvDrainLimit is the "drains up to 50 packets" bound of spec.md §4.5.
const recvDrainLimit = 50

// handleDatagram is the UDPSocket's ReceiveFunc. It decodes the wire
// frame, stamps local bookkeeping fields, and either raises the client
// reset flag (for an inbound RST while we are a client) or enqueues the
// packet for the recv loop.
func (c *Conn) handleDatagram(peer Peer, raw []byte) {
	p, err := Decode(c.cfg.MagicHeader, raw)
	if err != nil {
		c.droppedCount.Add(1)
		if errors.Is(err, ErrBadMagic) {
			c.metrics.incDropped("bad_magic")
			c.log.WithField("peer", peer.String()).Warn("dropped datagram with bad magic header")
		} else {
			c.metrics.incDropped("decode_error")
			c.log.WithError(err).WithField("peer", peer.String()).Warn("dropped malformed datagram")
		}
		return
	}
	p.Src = peer
	p.ReceivedAt = time.Now()

	c.recvCount.Add(1)
	c.metrics.incReceived()

	if p.Type == PacketRST && !c.isServer {
		c.log.WithError(ErrPeerReset).WithField("peer", peer.String()).Warn("resynchronizing")
		c.resetFlag.Store(true)
		go c.clientSelfHeal()
		return
	}

	c.recvMu.Lock()
	c.recvQueue.PushBack(p)
	c.recvMu.Unlock()
}

// recvLoop wakes every RecvFrequencyMs, drains up to recvDrainLimit
// packets, groups them by source peer, and processes each group in
// ascending sequence order (spec.md §4.5).
func (c *Conn) recvLoop() {
	ticker := time.NewTicker(c.cfg.recvTick())
	defer ticker.Stop()

	for {
		select {
		case <-c.stopRecv:
			return
		case <-ticker.C:
			c.drainRecvQueue()
		}
	}
}

func (c *Conn) drainRecvQueue() {
	batch := c.dequeueBatch()
	if len(batch) == 0 {
		return
	}

	groups := make(map[string][]*Packet)
	order := make([]string, 0)
	for _, p := range batch {
		key := p.Src.String()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}

	for _, key := range order {
		group := groups[key]
		sort.Slice(group, func(i, j int) bool { return group[i].Seq < group[j].Seq })
		c.processGroup(group[0].Src, group)
	}
}

func (c *Conn) dequeueBatch() []*Packet {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	batch := make([]*Packet, 0, recvDrainLimit)
	for len(batch) < recvDrainLimit {
		front := c.recvQueue.Front()
		if front == nil {
			break
		}
		c.recvQueue.Remove(front)
		batch = append(batch, front.Value.(*Packet))
	}
	return batch
}

func (c *Conn) requeue(packets []*Packet) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	for _, p := range packets {
		c.recvQueue.PushBack(p)
	}
}

// processGroup implements the per-group body of spec.md §4.5.
func (c *Conn) processGroup(peer Peer, group []*Packet) {
	_, isNewSequence := c.sequences.initSequence(peer, c.isServer, c.cfg)

	if !isNewSequence && c.isPendingReset(peer) {
		return
	}

	var dispatchedNonAckNul bool
	var lastSeq uint32

	for i, p := range group {
		var skip bool
		c.sequences.withLocked(peer, func(sq *sequenceRecord) {
			skip = sq.isSkipped(p.Seq)
		})
		if skip {
			continue
		}

		accepted := c.sequences.mutate(peer, func(sq *sequenceRecord) bool {
			if p.Seq != sq.remote {
				return false
			}
			sq.remote++
			return true
		})

		if !accepted {
			if isNewSequence {
				c.droppedCount.Add(1)
				c.metrics.incDropped("out_of_order_fresh")
				c.requestReset(peer)
			} else {
				c.requeue(group[i:])
			}
			return
		}

		if isNewSequence && c.isServer && p.Type != PacketSYN {
			c.droppedCount.Add(1)
			c.metrics.incDropped("non_syn_first")
			c.log.WithError(ErrUnknownClientFirstPacket).WithField("peer", peer.String()).Debug("dropping packet")
			c.sequences.delete(peer)
			return
		}

		c.confirmPacket(p)
		lastSeq = p.Seq
		if p.Type != PacketACK && p.Type != PacketNUL {
			dispatchedNonAckNul = true
		}

		if p.Type == PacketSYN && c.isServer && !c.peerKnownAsClient(peer) {
			c.dropStaleQueuedPackets(peer)
			c.addClient(peer)
			c.events.clientConnect(peer)
			if c.autoSynAck {
				c.sendHandshakeAck(peer)
			}
		}

		if p.Qty > 0 && p.Type == PacketDAT {
			c.bufferFragment(peer, p)
		} else {
			c.events.packetReceived(p)
		}

		if !c.isServer && p.Type == PacketSYN && p.isFlaggedAs(FlagACK) {
			c.state.Store(int32(StateOpen))
			c.events.connected(peer)
		}

		if !c.isServer && p.isFlaggedAs(FlagRST) {
			c.resetFlag.Store(true)
			go c.clientSelfHeal()
			return
		}

		isNewSequence = false
	}

	if dispatchedNonAckNul {
		if err := c.Send(peer, PacketACK, nil); err != nil {
			c.log.WithError(err).WithField("peer", peer.String()).Warn("failed to send ack")
		}
	}

	if c.isServer && lastSeq > c.cfg.SequenceLimit {
		c.log.WithError(ErrSequenceOverflow).WithField("peer", peer.String()).Info("scheduling reset")
		c.markPendingReset(peer)
	}
}

// bufferFragment implements the fragmentation/reassembly half of
// spec.md §4.5, pinned per SPEC_FULL.md §4.5 / §9 ambiguity #3: a
// partial set is confirmed (already done by the caller) but not
// dispatched; only a completed set produces exactly one synthetic
// dispatch.
func (c *Conn) bufferFragment(peer Peer, p *Packet) {
	c.reassemblyMu.Lock()
	key := peer.String()
	if c.reassembly[key] == nil {
		c.reassembly[key] = make(map[uint32][]*Packet)
	}
	c.reassembly[key][p.ID] = append(c.reassembly[key][p.ID], p)
	fragments := c.reassembly[key][p.ID]
	complete := uint32(len(fragments)) == p.Qty
	if complete {
		delete(c.reassembly[key], p.ID)
	}
	c.reassemblyMu.Unlock()

	if !complete {
		return
	}

	sort.Slice(fragments, func(i, j int) bool { return fragments[i].Seq < fragments[j].Seq })

	var maxSeq uint32
	var data []byte
	for _, frag := range fragments {
		c.sequences.withLocked(peer, func(sq *sequenceRecord) { sq.markSkipped(frag.Seq) })
		data = append(data, frag.Data...)
		if frag.Seq > maxSeq {
			maxSeq = frag.Seq
		}
	}

	c.sequences.mutate(peer, func(sq *sequenceRecord) bool {
		if maxSeq+1 > sq.remote {
			sq.remote = maxSeq + 1
		}
		return true
	})

	c.metrics.incReassembled()

	synthetic := &Packet{
		Src:        peer,
		Type:       PacketDAT,
		Seq:        fragments[0].Seq,
		ID:         p.ID,
		Qty:        p.Qty,
		Data:       data,
		Confirmed:  true,
		ReceivedAt: fragments[0].ReceivedAt,
	}
	c.events.packetReceived(synthetic)
}

// dropStaleQueuedPackets removes any packet already sitting in the recv
// queue from a peer that has just completed its SYN handshake — leftover
// traffic from before the connection was recognized as a client.
func (c *Conn) dropStaleQueuedPackets(peer Peer) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	for e := c.recvQueue.Front(); e != nil; {
		next := e.Next()
		if e.Value.(*Packet).Src == peer {
			c.recvQueue.Remove(e)
		}
		e = next
	}
}

// requestReset sends a RST to peer and, on the server, removes it from
// the known-clients map and fires OnClientDisconnect. On the client it
// also raises the self-heal reset flag so the connection resynchronizes
// rather than staying permanently desynchronized.
func (c *Conn) requestReset(peer Peer) {
	c.log.WithError(ErrOutOfOrderFresh).WithField("peer", peer.String()).Warn("resetting peer")
	if c.isServer {
		_ = c.RequestConnectionReset(peer)
		return
	}
	_ = c.Send(peer, PacketRST, nil)
	c.resetFlag.Store(true)
	go c.clientSelfHeal()
}
