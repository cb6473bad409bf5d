package sharprudp

import "sync"

// Events holds the user-facing callbacks the engine invokes as it
// processes packets. Any field left nil is simply not called.
type Events struct {
	OnClientConnect    func(peer Peer)
	OnClientDisconnect func(peer Peer)
	OnConnected        func(peer Peer)
	OnPacketReceived   func(packet *Packet)
}

// eventDispatcher invokes the user's Events callbacks and, in addition,
// fans every event out to any diagnostics subscribers (internal/diag's
// websocket feed). Subscribers are purely observational: nothing they do
// can affect the protocol engine.
type eventDispatcher struct {
	events Events

	mu          sync.Mutex
	subscribers []func(name string, payload interface{})
}

func newEventDispatcher(events Events) *eventDispatcher {
	return &eventDispatcher{events: events}
}

// Subscribe registers fn to be called alongside every dispatched event.
// It returns an unsubscribe function.
func (d *eventDispatcher) Subscribe(fn func(name string, payload interface{})) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, fn)
	idx := len(d.subscribers) - 1
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.subscribers[idx] = nil
	}
}

func (d *eventDispatcher) notify(name string, payload interface{}) {
	d.mu.Lock()
	subs := append([]func(string, interface{}){}, d.subscribers...)
	d.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(name, payload)
		}
	}
}

func (d *eventDispatcher) clientConnect(peer Peer) {
	if d.events.OnClientConnect != nil {
		d.events.OnClientConnect(peer)
	}
	d.notify("client_connect", peer)
}

func (d *eventDispatcher) clientDisconnect(peer Peer) {
	if d.events.OnClientDisconnect != nil {
		d.events.OnClientDisconnect(peer)
	}
	d.notify("client_disconnect", peer)
}

func (d *eventDispatcher) connected(peer Peer) {
	if d.events.OnConnected != nil {
		d.events.OnConnected(peer)
	}
	d.notify("connected", peer)
}

func (d *eventDispatcher) packetReceived(p *Packet) {
	if d.events.OnPacketReceived != nil {
		d.events.OnPacketReceived(p)
	}
	d.notify("packet", p)
}
