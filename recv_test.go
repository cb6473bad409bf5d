package sharprudp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessGroup_ServerDropsNonSynFirstPacket(t *testing.T) {
	c := newTestConn(true)
	c.autoSynAck = false
	peer := testPeer()

	var received []*Packet
	c.events = newEventDispatcher(Events{OnPacketReceived: func(p *Packet) { received = append(received, p) }})

	c.processGroup(peer, []*Packet{{Src: peer, Type: PacketDAT, Seq: c.cfg.ClientStartSeq}})

	assert.Empty(t, received)
	_, ok := c.sequences.get(peer)
	assert.False(t, ok, "no sequence record should survive the non-SYN-first gate")
}

func TestProcessGroup_ServerAcceptsSynAndAddsClient(t *testing.T) {
	c := newTestConn(true)
	c.autoSynAck = false
	peer := testPeer()

	var connected []Peer
	c.events = newEventDispatcher(Events{OnClientConnect: func(p Peer) { connected = append(connected, p) }})

	c.processGroup(peer, []*Packet{{Src: peer, Type: PacketSYN, Seq: c.cfg.ClientStartSeq}})

	assert.Equal(t, []Peer{peer}, connected)
	assert.True(t, c.peerKnownAsClient(peer))

	sq, ok := c.sequences.get(peer)
	assert.True(t, ok)
	assert.Equal(t, c.cfg.ClientStartSeq+1, sq.remote)
}

func TestProcessGroup_OutOfOrderOnKnownSequenceRequeuesRemainder(t *testing.T) {
	c := newTestConn(true)
	c.autoSynAck = false
	peer := testPeer()
	c.sequences.initSequence(peer, true, c.cfg)
	start := c.cfg.ClientStartSeq

	c.processGroup(peer, []*Packet{
		{Src: peer, Type: PacketDAT, Seq: start + 5}, // not the expected next seq
	})

	requeued := c.dequeueBatch()
	assert.Len(t, requeued, 1)
	assert.Equal(t, start+5, requeued[0].Seq)
}

func TestProcessGroup_OutOfOrderOnFreshSequenceRequestsReset(t *testing.T) {
	c := newTestConn(false) // client: requestReset sends RST instead of removing a client
	peer := testPeer()

	c.processGroup(peer, []*Packet{
		{Src: peer, Type: PacketSYN, Seq: c.cfg.ServerStartSeq + 9},
	})

	queued := drainSendQueueForTest(c)
	assert.Len(t, queued, 1)
	assert.Equal(t, PacketRST, queued[0].Type)
}

func TestBufferFragment_PartialSetIsConfirmedButNotDispatched(t *testing.T) {
	c := newTestConn(true)
	c.autoSynAck = false
	peer := testPeer()
	c.sequences.initSequence(peer, true, c.cfg)
	start := c.cfg.ClientStartSeq

	var received []*Packet
	c.events = newEventDispatcher(Events{OnPacketReceived: func(p *Packet) { received = append(received, p) }})

	c.processGroup(peer, []*Packet{
		{Src: peer, Type: PacketSYN, Seq: start},
		{Src: peer, Type: PacketDAT, Seq: start + 1, ID: 1, Qty: 3, Data: []byte("AAA")},
		{Src: peer, Type: PacketDAT, Seq: start + 2, ID: 1, Qty: 3, Data: []byte("BBB")},
	})

	// Only the SYN is dispatched; neither buffered fragment is.
	assert.Len(t, received, 1)
	assert.Equal(t, PacketSYN, received[0].Type)

	acks := c.drainConfirmed(peer)
	assert.ElementsMatch(t, []uint32{start, start + 1, start + 2}, acks)
}

func TestBufferFragment_CompleteSetDispatchesOnceReassembled(t *testing.T) {
	c := newTestConn(true)
	c.autoSynAck = false
	peer := testPeer()
	c.sequences.initSequence(peer, true, c.cfg)
	start := c.cfg.ClientStartSeq

	var received []*Packet
	c.events = newEventDispatcher(Events{OnPacketReceived: func(p *Packet) { received = append(received, p) }})

	c.processGroup(peer, []*Packet{
		{Src: peer, Type: PacketSYN, Seq: start},
		{Src: peer, Type: PacketDAT, Seq: start + 1, ID: 1, Qty: 3, Data: []byte("AAA")},
		{Src: peer, Type: PacketDAT, Seq: start + 2, ID: 1, Qty: 3, Data: []byte("BBB")},
		{Src: peer, Type: PacketDAT, Seq: start + 3, ID: 1, Qty: 3, Data: []byte("CCC")},
	})

	// The SYN is dispatched first, then exactly one reassembled message.
	assert.Len(t, received, 2)
	assert.Equal(t, PacketSYN, received[0].Type)
	assert.Equal(t, "AAABBBCCC", string(received[1].Data))

	sq, ok := c.sequences.get(peer)
	assert.True(t, ok)
	assert.Equal(t, start+4, sq.remote)
}
