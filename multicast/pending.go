package multicast

import (
	"golang.org/x/exp/slices"

	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/protocol"
)

// Unacknowledged is one retransmission work item: a stored DATA envelope and
// the peers that have not yet confirmed it.
type Unacknowledged struct {
	Envelope protocol.Envelope
	Pending  []protocol.PeerID
}

type pendingEntry struct {
	env     protocol.Envelope
	waiting map[protocol.PeerID]struct{}
}

// PendingAckTable tracks, per message this process originated, which peers
// still owe an acknowledgement. An entry is created with the full peer set
// when the message is multicast and removed the moment its set empties;
// absence of an entry is the "fully disseminated" terminal state, and there
// is no transition out of it.
//
// Like DeliveryLedger, the table relies on the engine's mutex for
// serialization.
type PendingAckTable struct {
	entries map[protocol.MessageID]*pendingEntry
}

func NewPendingAckTable() *PendingAckTable {
	return &PendingAckTable{entries: make(map[protocol.MessageID]*pendingEntry)}
}

// Register stores env and starts waiting for an ack from every peer in
// peers. Registering with no peers is a no-op.
func (t *PendingAckTable) Register(env protocol.Envelope, peers []protocol.PeerID) {
	if len(peers) == 0 {
		return
	}
	waiting := make(map[protocol.PeerID]struct{}, len(peers))
	for _, p := range peers {
		waiting[p] = struct{}{}
	}
	t.entries[env.ID()] = &pendingEntry{env: env, waiting: waiting}
}

// Ack removes peer from the waiting set of id. known is false when no entry
// exists (a late, duplicate, or foreign ack); done is true exactly once,
// when the waiting set transitions to empty and the entry is removed.
func (t *PendingAckTable) Ack(id protocol.MessageID, peer protocol.PeerID) (done, known bool) {
	entry, ok := t.entries[id]
	if !ok {
		return false, false
	}
	delete(entry.waiting, peer)
	if len(entry.waiting) == 0 {
		delete(t.entries, id)
		return true, true
	}
	return false, true
}

// PendingPeers returns the peers still owing an ack for id, in ascending
// order. Nil when the entry is complete or unknown.
func (t *PendingAckTable) PendingPeers(id protocol.MessageID) []protocol.PeerID {
	entry, ok := t.entries[id]
	if !ok {
		return nil
	}
	return sortedPeers(entry.waiting)
}

// Snapshot returns a copy of every live entry for the retransmission pass,
// so the caller can release its lock before doing network I/O.
func (t *PendingAckTable) Snapshot() []Unacknowledged {
	if len(t.entries) == 0 {
		return nil
	}
	out := make([]Unacknowledged, 0, len(t.entries))
	for _, entry := range t.entries {
		out = append(out, Unacknowledged{
			Envelope: entry.env,
			Pending:  sortedPeers(entry.waiting),
		})
	}
	return out
}

func (t *PendingAckTable) Len() int {
	return len(t.entries)
}

func sortedPeers(set map[protocol.PeerID]struct{}) []protocol.PeerID {
	peers := make([]protocol.PeerID, 0, len(set))
	for p := range set {
		peers = append(peers, p)
	}
	slices.Sort(peers)
	return peers
}
