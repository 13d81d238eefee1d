package multicast

import "github.com/delysilva/Lamport-Clock-on-Reliable-Multicast/internal/protocol"

// DeliveryLedger records which message identities this process has already
// delivered to the application. It only grows for the process's lifetime;
// that is what makes retransmitted copies idempotent at the receiver.
//
// The ledger is not locked internally: the engine serializes every
// check-and-insert under its own mutex so that the deliver/ignore decision
// is atomic even when duplicates arrive concurrently.
type DeliveryLedger struct {
	delivered map[protocol.MessageID]struct{}
}

func NewDeliveryLedger() *DeliveryLedger {
	return &DeliveryLedger{delivered: make(map[protocol.MessageID]struct{})}
}

// MarkDelivered inserts id and reports whether it was new. A false return
// means the message was delivered before and must not reach the application
// again.
func (l *DeliveryLedger) MarkDelivered(id protocol.MessageID) bool {
	if _, ok := l.delivered[id]; ok {
		return false
	}
	l.delivered[id] = struct{}{}
	return true
}

// Delivered reports whether id has been delivered.
func (l *DeliveryLedger) Delivered(id protocol.MessageID) bool {
	_, ok := l.delivered[id]
	return ok
}

func (l *DeliveryLedger) Len() int {
	return len(l.delivered)
}
