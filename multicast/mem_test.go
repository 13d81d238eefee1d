package multicast

import (
	"sync"

	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/protocol"
)

// memNetwork wires engines together in-process for tests. Its intercept
// hook decides how many copies of a datagram reach the destination (0 drops
// it, 2 duplicates it), which is how the tests simulate the lossy,
// duplicating network the protocol must tolerate.
type memNetwork struct {
	mu        sync.Mutex
	handlers  map[protocol.PeerID]func([]byte)
	intercept func(from, to protocol.PeerID, env protocol.Envelope) int
}

func newMemNetwork() *memNetwork {
	return &memNetwork{handlers: make(map[protocol.PeerID]func([]byte))}
}

func (n *memNetwork) setIntercept(f func(from, to protocol.PeerID, env protocol.Envelope) int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.intercept = f
}

func (n *memNetwork) transport(self protocol.PeerID) *memTransport {
	return &memTransport{net: n, self: self}
}

// inject delivers raw bytes straight to a peer's handler, bypassing any
// sender. Used to replay duplicates and feed malformed input.
func (n *memNetwork) inject(to protocol.PeerID, data []byte) {
	n.mu.Lock()
	handler := n.handlers[to]
	n.mu.Unlock()
	if handler != nil {
		handler(data)
	}
}

func (n *memNetwork) deliver(from, to protocol.PeerID, data []byte) {
	n.mu.Lock()
	intercept := n.intercept
	handler := n.handlers[to]
	n.mu.Unlock()

	copies := 1
	if intercept != nil {
		if env, err := protocol.Unmarshal(data); err == nil {
			copies = intercept(from, to, env)
		}
	}
	if handler == nil {
		return
	}
	for i := 0; i < copies; i++ {
		handler(data)
	}
}

type memTransport struct {
	net  *memNetwork
	self protocol.PeerID
}

func (t *memTransport) Start(handler func(data []byte)) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	t.net.handlers[t.self] = handler
	return nil
}

func (t *memTransport) Send(data []byte, to protocol.PeerID) error {
	t.net.deliver(t.self, to, data)
	return nil
}

func (t *memTransport) Stop() {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	delete(t.net.handlers, t.self)
}
