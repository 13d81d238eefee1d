// Package multicast implements reliable causal multicast over an unreliable
// datagram transport.
//
// Every member of a fixed peer set runs one Engine. Multicast stamps the
// payload with the sender's Lamport clock and sends it to every peer, the
// sender included, so self-delivery follows the same path as everything
// else. Receivers deliver each distinct message exactly once, acknowledge
// every copy back to the origin, and the origin re-sends until every peer
// has acknowledged. Delivery order respects Lamport causality: clocks
// advance on every send, receive, and ack, so causally related messages
// carry strictly increasing timestamps.
package multicast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/clock"
	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/logger"
	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/protocol"
)

// Transport is the point-to-point plumbing the engine runs on. It is best
// effort: datagrams may be dropped, duplicated, or reordered, but arrive
// uncorrupted and at the addressed peer only. The receive handler may be
// invoked concurrently with Send and with the application's Multicast calls.
type Transport interface {
	Send(data []byte, to protocol.PeerID) error
	Start(handler func(data []byte)) error
	Stop()
}

// DeliverFunc receives each distinct message exactly once, in an order
// consistent with Lamport causality. It is invoked outside the engine's
// lock and may call Multicast.
type DeliverFunc func(payload []byte, origin protocol.PeerID, timestamp uint64)

// DefaultRetransmitInterval is how often unacknowledged messages are
// re-sent when the config does not say otherwise.
const DefaultRetransmitInterval = 2 * time.Second

// ackWaitPoll is the polling granularity of WaitFullyAcked.
const ackWaitPoll = 50 * time.Millisecond

// Config describes one engine. Peers is the full, fixed membership of the
// run and must contain Self.
type Config struct {
	Self    protocol.PeerID
	Peers   []protocol.PeerID
	Cluster uuid.UUID

	// RetransmitInterval is the period of the retransmission scan;
	// zero means DefaultRetransmitInterval.
	RetransmitInterval time.Duration

	// Retransmitter overrides the default AckRetransmitter.
	Retransmitter Retransmitter

	// OnFullyAcked, when set, is called once per message this engine
	// originated, at the moment the last peer acknowledges it.
	// Informational only.
	OnFullyAcked func(protocol.MessageID)

	Logger *logger.Logger
}

// Engine is one peer's protocol instance. All shared state (clock, ledger,
// pending table) is guarded by a single mutex so that clock advances,
// ledger check-and-insert, and pending-set mutations are each atomic with
// respect to the receive path, the retransmission loop, and Multicast.
type Engine struct {
	mu sync.Mutex

	self     protocol.PeerID
	peers    []protocol.PeerID
	cluster  uuid.UUID
	interval time.Duration

	clock   clock.Clock
	ledger  *DeliveryLedger
	pending *PendingAckTable

	tr            Transport
	deliver       DeliverFunc
	retransmitter Retransmitter
	onFullyAcked  func(protocol.MessageID)
	log           *logger.Logger

	running  bool
	stopChan chan struct{}
}

// New builds an engine. It does not touch the network until Start.
func New(cfg Config, tr Transport, deliver DeliverFunc) (*Engine, error) {
	if tr == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if deliver == nil {
		return nil, fmt.Errorf("delivery callback is required")
	}
	if len(cfg.Peers) == 0 {
		return nil, fmt.Errorf("peer set is empty")
	}

	seen := make(map[protocol.PeerID]struct{}, len(cfg.Peers))
	selfIncluded := false
	for _, p := range cfg.Peers {
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("duplicate peer %d in peer set", p)
		}
		seen[p] = struct{}{}
		if p == cfg.Self {
			selfIncluded = true
		}
	}
	if !selfIncluded {
		return nil, fmt.Errorf("peer set does not contain self (%d)", cfg.Self)
	}

	interval := cfg.RetransmitInterval
	if interval <= 0 {
		interval = DefaultRetransmitInterval
	}

	log := cfg.Logger.WithTag(fmt.Sprintf("engine %d", cfg.Self))

	retransmitter := cfg.Retransmitter
	if retransmitter == nil {
		retransmitter = NewAckRetransmitter(tr, cfg.Logger)
	}

	peers := make([]protocol.PeerID, len(cfg.Peers))
	copy(peers, cfg.Peers)

	return &Engine{
		self:          cfg.Self,
		peers:         peers,
		cluster:       cfg.Cluster,
		interval:      interval,
		ledger:        NewDeliveryLedger(),
		pending:       NewPendingAckTable(),
		tr:            tr,
		deliver:       deliver,
		retransmitter: retransmitter,
		onFullyAcked:  cfg.OnFullyAcked,
		log:           log,
		stopChan:      make(chan struct{}),
	}, nil
}

// Start begins receiving and starts the retransmission loop.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.running = true
	e.mu.Unlock()

	if err := e.tr.Start(e.handleDatagram); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return fmt.Errorf("failed to start transport: %w", err)
	}

	go e.retransmitLoop()

	e.log.Info("started with %d peers, retransmit interval %s", len(e.peers), e.interval)
	return nil
}

// Stop rejects further Multicast calls, terminates the receive and
// retransmission activities within one poll/timer interval, and releases
// the transport. In-flight acks and retransmissions are abandoned.
// Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopChan)
	e.tr.Stop()
	e.log.Info("stopped")
}

// Multicast sends payload to every peer, self included, and returns the
// message's identity. It is fire and forget: delivery and acknowledgement
// happen asynchronously, and per-peer send failures are left to the
// retransmission loop. The returned id can be watched with FullyAcked or
// WaitFullyAcked.
func (e *Engine) Multicast(payload []byte) (protocol.MessageID, error) {
	if len(payload) > protocol.MaxPayloadSize {
		return protocol.MessageID{}, fmt.Errorf("payload of %d bytes exceeds limit of %d", len(payload), protocol.MaxPayloadSize)
	}

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return protocol.MessageID{}, fmt.Errorf("engine is not running")
	}

	ts := e.clock.Tick()
	env := protocol.Envelope{
		Kind:      protocol.KindData,
		Cluster:   e.cluster,
		Origin:    e.self,
		Sender:    e.self,
		Timestamp: ts,
		Payload:   payload,
	}
	e.pending.Register(env, e.peers)
	e.mu.Unlock()

	id := env.ID()
	data, err := env.Marshal()
	if err != nil {
		// cannot happen for a size-checked payload, but do not leave a
		// pending entry that nothing will ever send
		e.mu.Lock()
		for _, p := range e.peers {
			e.pending.Ack(id, p)
		}
		e.mu.Unlock()
		return protocol.MessageID{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	for _, p := range e.peers {
		if err := e.tr.Send(data, p); err != nil {
			e.log.Warn("initial send of %s to peer %d failed: %v", id, p, err)
		}
	}

	e.log.Info("multicast %s to %d peers", protocol.DisplayLabel(id, payload), len(e.peers))
	return id, nil
}

// handleDatagram is the transport receive handler.
func (e *Engine) handleDatagram(data []byte) {
	env, err := protocol.Unmarshal(data)
	if err != nil {
		e.log.Warn("dropping malformed datagram: %v", err)
		return
	}
	if env.Cluster != e.cluster {
		e.log.Debug("dropping %s envelope from foreign cluster %s", env.Kind, env.Cluster)
		return
	}

	switch env.Kind {
	case protocol.KindData:
		e.handleData(env)
	case protocol.KindAck:
		e.handleAck(env)
	}
}

// handleData advances the clock, delivers the message unless it is a
// duplicate, and acknowledges the copy either way: the origin may have lost
// our first ack, and re-acking is what lets it stop retransmitting.
func (e *Engine) handleData(env protocol.Envelope) {
	id := env.ID()

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.clock.Advance(env.Timestamp)
	fresh := e.ledger.MarkDelivered(id)
	e.mu.Unlock()

	if fresh {
		e.log.Info("delivered %s from peer %d", protocol.DisplayLabel(id, env.Payload), env.Origin)
		e.deliver(env.Payload, env.Origin, env.Timestamp)
	} else {
		e.log.Debug("duplicate %s from peer %d, re-acking", id, env.Sender)
	}

	e.sendAck(id, env.Origin)
}

func (e *Engine) sendAck(id protocol.MessageID, origin protocol.PeerID) {
	ack := protocol.Envelope{
		Kind:      protocol.KindAck,
		Cluster:   e.cluster,
		Origin:    id.Origin,
		Sender:    e.self,
		Timestamp: id.Timestamp,
		AckClock:  e.clock.Tick(),
	}
	data, err := ack.Marshal()
	if err != nil {
		e.log.Error("failed to marshal ack for %s: %v", id, err)
		return
	}
	if err := e.tr.Send(data, origin); err != nil {
		e.log.Warn("failed to ack %s to peer %d: %v", id, origin, err)
	}
}

// handleAck advances the clock by the acker's piggybacked value and clears
// the acker from the pending set. Acks for unknown ids (already complete,
// or never ours) are ignored.
func (e *Engine) handleAck(env protocol.Envelope) {
	id := env.ID()

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.clock.Advance(env.AckClock)
	done, known := e.pending.Ack(id, env.Sender)
	e.mu.Unlock()

	if !known {
		e.log.Debug("ignoring ack for unknown message %s from peer %d", id, env.Sender)
		return
	}

	e.log.Debug("ack for %s from peer %d", id, env.Sender)
	if done {
		e.log.Info("message %s fully acknowledged", id)
		if e.onFullyAcked != nil {
			e.onFullyAcked(id)
		}
	}
}

// retransmitLoop periodically re-offers every still-pending message to the
// configured strategy. The snapshot is taken under the lock; the sending is
// not. There is no retry ceiling: a silent peer is retried until it answers
// or the engine stops.
func (e *Engine) retransmitLoop() {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.mu.Lock()
			batch := e.pending.Snapshot()
			e.mu.Unlock()

			for _, u := range batch {
				e.log.Debug("retransmitting %s, %d peers pending", u.Envelope.ID(), len(u.Pending))
				e.retransmitter.NotifyUnacknowledged(u.Envelope, u.Pending)
			}
		}
	}
}

// FullyAcked reports whether id has no pending entry. Meaningful for ids
// returned by this engine's Multicast; an id never multicast here is
// trivially "fully acked".
func (e *Engine) FullyAcked(id protocol.MessageID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending.PendingPeers(id)) == 0
}

// PendingPeers returns the peers that have not yet acknowledged id.
func (e *Engine) PendingPeers(id protocol.MessageID) []protocol.PeerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.PendingPeers(id)
}

// WaitFullyAcked blocks until every peer has acknowledged id or ctx ends.
func (e *Engine) WaitFullyAcked(ctx context.Context, id protocol.MessageID) error {
	ticker := time.NewTicker(ackWaitPoll)
	defer ticker.Stop()

	for {
		if e.FullyAcked(id) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ClockNow returns the engine's current Lamport value without recording an
// event.
func (e *Engine) ClockNow() uint64 {
	return e.clock.Now()
}

// DeliveredCount returns how many distinct messages this engine has
// delivered.
func (e *Engine) DeliveredCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Len()
}
