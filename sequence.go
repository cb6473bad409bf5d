package sharprudp

import "sync"

// sequenceRecord is the per-peer counter state described in spec.md §3.
// It is created lazily on first send to or receive from a peer, destroyed
// on RST, and recreated on the next interaction.
type sequenceRecord struct {
	peer     Peer
	local    uint32 // next outbound seq
	remote   uint32 // next expected inbound seq
	packetID uint32 // next user-message id for fragmentation
	skipped  map[uint32]struct{}
}

func newSequenceRecord(peer Peer, local, remote uint32) *sequenceRecord {
	return &sequenceRecord{
		peer:    peer,
		local:   local,
		remote:  remote,
		skipped: make(map[uint32]struct{}),
	}
}

func (sq *sequenceRecord) markSkipped(seq uint32) {
	sq.skipped[seq] = struct{}{}
}

func (sq *sequenceRecord) isSkipped(seq uint32) bool {
	_, ok := sq.skipped[seq]
	return ok
}

func (sq *sequenceRecord) nextPacketID(limit uint32) uint32 {
	id := sq.packetID
	sq.packetID++
	if sq.packetID > limit {
		sq.packetID = 0
	}
	return id
}

// sequenceTable is the value-keyed map of known peers' sequence records,
// guarded by a single mutex (the "sequence-lock" in spec.md §5). Keying
// by the stringified peer avoids the cyclic endpoint references the
// design notes warn about.
type sequenceTable struct {
	mu      sync.Mutex
	records map[string]*sequenceRecord
}

func newSequenceTable() *sequenceTable {
	return &sequenceTable{records: make(map[string]*sequenceRecord)}
}

// initSequence returns the record for peer, creating it with role-
// appropriate start sequences if absent, and reports whether it created
// a new record (spec.md §4.3: "init_sequence(peer) returns true iff a new
// record was created").
func (t *sequenceTable) initSequence(peer Peer, isServer bool, cfg Config) (*sequenceRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sq, ok := t.records[peer.String()]; ok {
		return sq, false
	}

	var local, remote uint32
	if isServer {
		local, remote = cfg.ServerStartSeq, cfg.ClientStartSeq
	} else {
		local, remote = cfg.ClientStartSeq, cfg.ServerStartSeq
	}
	sq := newSequenceRecord(peer, local, remote)
	t.records[peer.String()] = sq
	return sq, true
}

func (t *sequenceTable) get(peer Peer) (*sequenceRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sq, ok := t.records[peer.String()]
	return sq, ok
}

func (t *sequenceTable) delete(peer Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, peer.String())
}

// withLocked runs fn with the table's lock held and the peer's record
// passed in, for the rare operations (seq assignment, accept-advance)
// that must be atomic with respect to concurrent sends/receives for the
// same peer.
func (t *sequenceTable) withLocked(peer Peer, fn func(sq *sequenceRecord)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sq, ok := t.records[peer.String()]; ok {
		fn(sq)
	}
}

// mutate is withLocked's counterpart for decisions that must read and
// write a record atomically (the out-of-order gate's compare-then-accept
// in recv.go). fn's return value is propagated; mutate reports false
// without calling fn if peer has no record.
func (t *sequenceTable) mutate(peer Peer, fn func(sq *sequenceRecord) bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	sq, ok := t.records[peer.String()]
	if !ok {
		return false
	}
	return fn(sq)
}
