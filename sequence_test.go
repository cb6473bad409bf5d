package sharprudp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testPeer() Peer {
	return Peer{Host: "127.0.0.1", Port: 4000}
}

func TestSequenceTable_InitSequence_ServerClientRoles(t *testing.T) {
	cfg := DefaultConfig()
	peer := testPeer()

	serverTable := newSequenceTable()
	sq, created := serverTable.initSequence(peer, true, cfg)
	assert.True(t, created)
	assert.Equal(t, cfg.ServerStartSeq, sq.local)
	assert.Equal(t, cfg.ClientStartSeq, sq.remote)

	clientTable := newSequenceTable()
	sq, created = clientTable.initSequence(peer, false, cfg)
	assert.True(t, created)
	assert.Equal(t, cfg.ClientStartSeq, sq.local)
	assert.Equal(t, cfg.ServerStartSeq, sq.remote)
}

func TestSequenceTable_InitSequence_OnlyCreatesOnce(t *testing.T) {
	cfg := DefaultConfig()
	peer := testPeer()
	table := newSequenceTable()

	_, created := table.initSequence(peer, true, cfg)
	assert.True(t, created)

	_, created = table.initSequence(peer, true, cfg)
	assert.False(t, created)
}

func TestSequenceRecord_NextPacketID_WrapsAtLimit(t *testing.T) {
	sq := newSequenceRecord(testPeer(), 0, 0)
	sq.packetID = 5

	id := sq.nextPacketID(5)
	assert.Equal(t, uint32(5), id)
	assert.Equal(t, uint32(0), sq.packetID)
}

func TestSequenceRecord_SkippedSet(t *testing.T) {
	sq := newSequenceRecord(testPeer(), 0, 0)
	assert.False(t, sq.isSkipped(10))
	sq.markSkipped(10)
	assert.True(t, sq.isSkipped(10))
}

func TestSequenceTable_Mutate_NoRecordReturnsFalse(t *testing.T) {
	table := newSequenceTable()
	ok := table.mutate(testPeer(), func(sq *sequenceRecord) bool {
		t.Fatal("fn should not be called without a record")
		return true
	})
	assert.False(t, ok)
}

func TestSequenceTable_Mutate_GatesOnExpectedSeq(t *testing.T) {
	cfg := DefaultConfig()
	peer := testPeer()
	table := newSequenceTable()
	table.initSequence(peer, true, cfg)

	accepted := table.mutate(peer, func(sq *sequenceRecord) bool {
		if cfg.ClientStartSeq != sq.remote {
			return false
		}
		sq.remote++
		return true
	})
	assert.True(t, accepted)

	rejected := table.mutate(peer, func(sq *sequenceRecord) bool {
		if cfg.ClientStartSeq != sq.remote {
			return false
		}
		sq.remote++
		return true
	})
	assert.False(t, rejected)
}

func TestSequenceTable_Delete(t *testing.T) {
	cfg := DefaultConfig()
	peer := testPeer()
	table := newSequenceTable()
	table.initSequence(peer, true, cfg)

	table.delete(peer)

	_, ok := table.get(peer)
	assert.False(t, ok)
}
