package sharprudp

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// ConnState is the connection-lifecycle state machine of spec.md §4.7.
type ConnState int32

const (
	StateClosed ConnState = iota
	StateOpening
	StateOpen
	StateListen
)

func (s ConnState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpening:
		return "OPENING"
	case StateOpen:
		return "OPEN"
	case StateListen:
		return "LISTEN"
	default:
		return "UNKNOWN"
	}
}

// Stats is a read-only snapshot of engine counters, used by the
// diagnostics server without depending on Prometheus directly.
type Stats struct {
	PacketsSent          uint64
	PacketsReceived      uint64
	PacketsDropped       uint64
	PacketsRetransmitted uint64
	Resets               uint64
}

// Option configures optional collaborators of a Conn.
type Option func(*Conn)

// WithLogger overrides the default logrus entry.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Conn) { c.log = log }
}

// WithMetricsRegisterer registers the engine's Prometheus collectors
// against reg instead of the default registry.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(c *Conn) { c.metrics = NewMetrics(c.cfg.MetricsNamespace, reg) }
}

// WithoutHandshakeAck disables the server's default SYN|ACK responder
// (SPEC_FULL.md §4.7, Known Source Ambiguity #4). The public Send API
// cannot set FlagACK, so with this option a client's handshake does not
// reach StateOpen.
func WithoutHandshakeAck() Option {
	return func(c *Conn) { c.autoSynAck = false }
}

// Conn is a single RUDP connection: a server listening for many peers, or
// a client pinned to one remote. It owns the send/recv loops and every
// guarded resource in spec.md §5's concurrency table.
type Conn struct {
	id       string // correlation id, stamped on every log line and diag event
	cfg      Config
	isServer bool
	socket   *UDPSocket
	log      *logrus.Entry
	metrics  *Metrics
	events   *eventDispatcher

	state atomic.Int32

	remote Peer // client mode: the pinned remote

	sequences *sequenceTable

	sendMu    sync.Mutex
	sendQueue *list.List // *Packet

	recvMu    sync.Mutex
	recvQueue *list.List // *Packet

	ackMu       sync.Mutex
	confirmedBy map[string][]uint32  // peer -> seqs to piggyback on next outbound
	unconfirmed map[string][]*Packet // peer -> sent, not yet acked

	clientMu sync.Mutex
	clients  map[string]Peer

	resetMu      sync.Mutex
	pendingReset map[string]struct{}

	reassemblyMu sync.Mutex
	reassembly   map[string]map[uint32][]*Packet // peer -> id -> partial fragments

	stopSend chan struct{}
	stopRecv chan struct{}
	wg       sync.WaitGroup

	resetFlag  atomic.Bool
	closed     atomic.Bool
	healing    atomic.Bool
	autoSynAck bool

	sentCount, recvCount, droppedCount, retransmitCount, resetCount atomic.Uint64
}

func newConn(cfg Config, isServer bool, events Events, opts ...Option) *Conn {
	cfg = cfg.withDefaults()
	c := &Conn{
		id:           uuid.NewString(),
		cfg:          cfg,
		isServer:     isServer,
		sequences:    newSequenceTable(),
		sendQueue:    list.New(),
		recvQueue:    list.New(),
		confirmedBy:  make(map[string][]uint32),
		unconfirmed:  make(map[string][]*Packet),
		clients:      make(map[string]Peer),
		pendingReset: make(map[string]struct{}),
		reassembly:   make(map[string]map[uint32][]*Packet),
		stopSend:     make(chan struct{}),
		stopRecv:     make(chan struct{}),
		events:       newEventDispatcher(events),
		autoSynAck:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = newLogger(cfg.LogLevel)
	}
	if c.metrics == nil {
		c.metrics = defaultMetricsFor(cfg.MetricsNamespace)
	}
	c.log = c.log.WithField("conn_id", c.id)
	return c
}

// Listen starts a server bound to addr. The server remains in StateListen
// for its lifetime; per-peer state lives in the sequence table and
// clients map (spec.md §4.7).
func Listen(addr string, cfg Config, events Events, opts ...Option) (*Conn, error) {
	c := newConn(cfg, true, events, opts...)
	sock, err := ListenUDPSocket(addr, c.log)
	if err != nil {
		return nil, err
	}
	c.socket = sock
	c.state.Store(int32(StateListen))
	c.startLoops()
	c.log.WithField("addr", addr).Info("listening")
	return c, nil
}

// Connect dials a server at addr, transitions to OPENING and sends the
// initial SYN.
func Connect(addr string, cfg Config, events Events, opts ...Option) (*Conn, error) {
	c := newConn(cfg, false, events, opts...)
	sock, err := DialUDPSocket(addr, c.log)
	if err != nil {
		return nil, err
	}
	c.socket = sock
	c.remote = sock.RemotePeer()
	c.state.Store(int32(StateOpening))
	c.startLoops()
	if err := c.Send(c.remote, PacketSYN, nil); err != nil {
		return nil, err
	}
	c.log.WithField("addr", addr).Info("connecting")
	return c, nil
}

func (c *Conn) startLoops() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.sendLoop()
	}()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.socket.Serve(c.handleDatagram, c.stopRecv)
	}()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.recvLoop()
	}()
}

// State reports the current connection-lifecycle state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// Stats returns a snapshot of the engine's operating counters.
func (c *Conn) Stats() Stats {
	return Stats{
		PacketsSent:          c.sentCount.Load(),
		PacketsReceived:      c.recvCount.Load(),
		PacketsDropped:       c.droppedCount.Load(),
		PacketsRetransmitted: c.retransmitCount.Load(),
		Resets:               c.resetCount.Load(),
	}
}

// Disconnect clears the alive flag, shuts both loops and closes the
// socket (in server and client mode alike). Pending unconfirmed packets are left in memory; a
// fresh Connect after a client-side Disconnect does not carry them over
// (only the in-process reset action in reset.go does).
func (c *Conn) Disconnect() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	close(c.stopSend)
	close(c.stopRecv)
	var errs *multierror.Error
	if err := c.socket.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	c.wg.Wait()
	c.state.Store(int32(StateClosed))
	return errs.ErrorOrNil()
}

func (c *Conn) peerKnownAsClient(peer Peer) bool {
	c.clientMu.Lock()
	defer c.clientMu.Unlock()
	_, ok := c.clients[peer.String()]
	return ok
}

func (c *Conn) addClient(peer Peer) {
	c.clientMu.Lock()
	c.clients[peer.String()] = peer
	c.clientMu.Unlock()
}

func (c *Conn) removeClient(peer Peer) {
	c.clientMu.Lock()
	delete(c.clients, peer.String())
	c.clientMu.Unlock()
}

func (c *Conn) knownClients() []Peer {
	c.clientMu.Lock()
	defer c.clientMu.Unlock()
	peers := make([]Peer, 0, len(c.clients))
	for _, p := range c.clients {
		peers = append(peers, p)
	}
	return peers
}

func (c *Conn) isPendingReset(peer Peer) bool {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()
	_, ok := c.pendingReset[peer.String()]
	return ok
}

func (c *Conn) markPendingReset(peer Peer) {
	c.resetMu.Lock()
	c.pendingReset[peer.String()] = struct{}{}
	c.resetMu.Unlock()
}

func (c *Conn) clearPendingReset(peer Peer) {
	c.resetMu.Lock()
	delete(c.pendingReset, peer.String())
	c.resetMu.Unlock()
}

// RequestConnectionReset is the server-side operation of spec.md §4.7:
// remove peer from the known clients, send it a RST, and fire
// OnClientDisconnect.
func (c *Conn) RequestConnectionReset(peer Peer) error {
	if !c.isServer {
		return ErrNotServer
	}
	c.removeClient(peer)
	err := c.Send(peer, PacketRST, nil)
	c.events.clientDisconnect(peer)
	return err
}

// SendKeepAlive sends a NUL packet to every known client (server mode).
func (c *Conn) SendKeepAlive() error {
	if !c.isServer {
		return ErrNotServer
	}
	var errs *multierror.Error
	for _, peer := range c.knownClients() {
		if err := c.Send(peer, PacketNUL, nil); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// SendText is a client convenience that sends text as DAT to the pinned
// remote.
func (c *Conn) SendText(text string) error {
	if c.isServer {
		return ErrNotClient
	}
	return c.Send(c.remote, PacketDAT, []byte(text))
}

// KnownPeers returns the string form of every peer currently known to
// this connection (server: its clients; client: its pinned remote, in
// every state but StateClosed). It exists for internal/diag's /peers endpoint.
func (c *Conn) KnownPeers() []string {
	if !c.isServer {
		if c.State() == StateClosed {
			return nil
		}
		return []string{c.remote.String()}
	}
	peers := c.knownClients()
	out := make([]string, len(peers))
	for i, p := range peers {
		out[i] = p.String()
	}
	return out
}

// ConnID returns the connection's correlation id, used to tag its log
// lines and tie diagnostics events back to a specific engine instance.
func (c *Conn) ConnID() string {
	return c.id
}

// EngineStats satisfies internal/diag's Engine interface with an
// interface{}-typed view of Stats, avoiding a dependency from diag on
// this package's concrete types.
func (c *Conn) EngineStats() interface{} {
	return c.Stats()
}

// Subscribe registers fn to be called alongside every event the engine
// dispatches, for internal/diag's websocket feed.
func (c *Conn) Subscribe(fn func(name string, payload interface{})) (unsubscribe func()) {
	return c.events.Subscribe(fn)
}

func (c *Conn) logf(peer Peer, msg string, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["peer"] = peer.String()
	c.log.WithFields(fields).Debug(msg)
}
