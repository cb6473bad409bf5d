package sharprudp

import "time"

// clientSelfHeal implements the client side of spec.md §4.7's reset
// handling. An inbound RST, whether carried as PacketRST or as the RST
// flag piggy-backed on some other packet, desynchronizes the connection:
// after a short delay the client tears down its loops, starts a fresh
// sequence with the server, and replays everything it had sent but not
// yet seen acknowledged.
func (c *Conn) clientSelfHeal() {
	if !c.healing.CompareAndSwap(false, true) {
		return // a heal is already in flight for this connection
	}
	defer c.healing.Store(false)

	time.Sleep(time.Second)

	if c.closed.Load() {
		return
	}

	c.teardownLoops()

	pending := c.unconfirmedSnapshot(c.remote)
	c.sequences.delete(c.remote)

	key := c.remote.String()
	c.ackMu.Lock()
	delete(c.unconfirmed, key)
	delete(c.confirmedBy, key)
	c.ackMu.Unlock()

	c.resetMu.Lock()
	delete(c.pendingReset, key)
	c.resetMu.Unlock()

	c.stopSend = make(chan struct{})
	c.stopRecv = make(chan struct{})
	c.state.Store(int32(StateOpening))
	c.resetFlag.Store(false)
	c.startLoops()

	if err := c.Send(c.remote, PacketSYN, nil); err != nil {
		c.log.WithError(err).Warn("self-heal: failed to resend SYN")
	}
	// Re-enqueue the cloned packets directly rather than through Send:
	// Send would mint a fresh id and re-run its own fragmentation logic
	// over each already-fragmented chunk's Data, dropping the original
	// ID/Qty pairing a partially-acknowledged multi-fragment message
	// depends on for reassembly on the far end.
	c.sendMu.Lock()
	for _, pkt := range pending {
		c.sendQueue.PushBack(&Packet{Dst: c.remote, Type: pkt.Type, ID: pkt.ID, Qty: pkt.Qty, Data: pkt.Data})
	}
	c.sendMu.Unlock()
	c.retransmitCount.Add(uint64(len(pending)))
	c.metrics.incReset("client")
	c.log.WithField("peer", key).Info("self-heal complete, resynchronizing with server")
}

// teardownLoops stops the send/recv goroutines without closing the
// socket, so startLoops can start a fresh set against the same dialed
// connection.
func (c *Conn) teardownLoops() {
	close(c.stopSend)
	close(c.stopRecv)
	// Wake the socket reader blocked in ReadFromUDP so Serve sees stopRecv.
	_ = c.socket.conn.SetReadDeadline(time.Now())
	c.wg.Wait()
	_ = c.socket.conn.SetReadDeadline(time.Time{})
}
