package multicast

import (
	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/logger"
	"github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/protocol"
)

// Retransmitter is the strategy the retransmission loop hands stale entries
// to. The envelope is the stored original; re-encoding it keeps the message
// identity and timestamp of every copy identical, which is what lets
// receivers deduplicate.
type Retransmitter interface {
	NotifyUnacknowledged(env protocol.Envelope, pending []protocol.PeerID)
}

// AckRetransmitter re-sends the envelope only to the peers that have not
// acknowledged it. This is the default strategy: bandwidth proportional to
// the number of silent peers.
type AckRetransmitter struct {
	tr  Transport
	log *logger.Logger
}

func NewAckRetransmitter(tr Transport, log *logger.Logger) *AckRetransmitter {
	return &AckRetransmitter{tr: tr, log: log.WithTag("retransmit")}
}

func (r *AckRetransmitter) NotifyUnacknowledged(env protocol.Envelope, pending []protocol.PeerID) {
	data, err := env.Marshal()
	if err != nil {
		r.log.Error("failed to marshal %s for retransmission: %v", env.ID(), err)
		return
	}
	for _, p := range pending {
		if err := r.tr.Send(data, p); err != nil {
			r.log.Warn("failed to retransmit %s to peer %d: %v", env.ID(), p, err)
			continue
		}
		r.log.Debug("retransmitted %s to peer %d", env.ID(), p)
	}
}

// GossipRetransmitter floods the envelope to the entire peer set regardless
// of who has acknowledged it. An alternative to AckRetransmitter for runs
// where re-offering the message to everyone is preferred over targeting the
// silent peers; receivers discard the extra copies through their ledgers.
type GossipRetransmitter struct {
	tr    Transport
	peers []protocol.PeerID
	log   *logger.Logger
}

func NewGossipRetransmitter(tr Transport, peers []protocol.PeerID, log *logger.Logger) *GossipRetransmitter {
	return &GossipRetransmitter{tr: tr, peers: peers, log: log.WithTag("retransmit")}
}

func (r *GossipRetransmitter) NotifyUnacknowledged(env protocol.Envelope, _ []protocol.PeerID) {
	data, err := env.Marshal()
	if err != nil {
		r.log.Error("failed to marshal %s for retransmission: %v", env.ID(), err)
		return
	}
	for _, p := range r.peers {
		if err := r.tr.Send(data, p); err != nil {
			r.log.Warn("failed to retransmit %s to peer %d: %v", env.ID(), p, err)
		}
	}
}
