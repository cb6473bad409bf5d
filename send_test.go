package sharprudp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestConn(isServer bool) *Conn {
	cfg := DefaultConfig()
	cfg.MaxMTU = 10
	return newConn(cfg, isServer, Events{})
}

func drainSendQueueForTest(c *Conn) []*Packet {
	var out []*Packet
	c.sendMu.Lock()
	for e := c.sendQueue.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Packet))
	}
	c.sendMu.Unlock()
	return out
}

func TestSend_SmallPayloadIsSingleUnfragmentedPacket(t *testing.T) {
	c := newTestConn(true)
	peer := testPeer()

	assert.NoError(t, c.Send(peer, PacketDAT, []byte("short")))

	queued := drainSendQueueForTest(c)
	assert.Len(t, queued, 1)
	assert.Equal(t, uint32(0), queued[0].Qty)
	assert.Equal(t, []byte("short"), queued[0].Data)
}

func TestSend_LargePayloadFragmentsWithSharedID(t *testing.T) {
	c := newTestConn(true)
	peer := testPeer()

	payload := strings.Repeat("x", 25) // 3 chunks at MaxMTU=10
	assert.NoError(t, c.Send(peer, PacketDAT, []byte(payload)))

	queued := drainSendQueueForTest(c)
	assert.Len(t, queued, 3)
	for _, p := range queued {
		assert.LessOrEqual(t, len(p.Data), c.cfg.MaxMTU)
		assert.Equal(t, uint32(3), p.Qty)
		assert.Equal(t, queued[0].ID, p.ID)
	}

	var reassembled []byte
	for _, p := range queued {
		reassembled = append(reassembled, p.Data...)
	}
	assert.Equal(t, payload, string(reassembled))
}

func TestSend_ClosedConnectionReturnsErrClosed(t *testing.T) {
	c := newTestConn(true)
	c.closed.Store(true)

	err := c.Send(testPeer(), PacketDAT, []byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConfirmPacket_RecordsReceivedSeqAndFiltersUnconfirmedByIncomingAck(t *testing.T) {
	c := newTestConn(true)
	peer := testPeer()

	c.retainUnconfirmed(peer, &Packet{Dst: peer, Seq: 1})
	c.retainUnconfirmed(peer, &Packet{Dst: peer, Seq: 2})
	c.retainUnconfirmed(peer, &Packet{Dst: peer, Seq: 3})

	c.confirmPacket(&Packet{Src: peer, Seq: 55, Ack: []uint32{1, 3}})

	remaining := c.unconfirmedSnapshot(peer)
	assert.Len(t, remaining, 1)
	assert.Equal(t, uint32(2), remaining[0].Seq)

	acks := c.drainConfirmed(peer)
	assert.Equal(t, []uint32{55}, acks)

	assert.Empty(t, c.drainConfirmed(peer))
}
