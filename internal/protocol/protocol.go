// Package protocol defines the peer and message identities and the wire
// envelope exchanged between peers, together with its binary codec.
package protocol

import (
	"fmt"

	"github.com/cespare/xxhash"
)

// PeerID identifies a member of the fixed peer set. Peers are dense
// indices 0..n-1 assigned by the run configuration.
type PeerID uint32

// MessageID is the canonical identity of a multicast operation. Two
// envelopes carry the same message exactly when their MessageIDs are equal;
// payload contents never participate in identity.
type MessageID struct {
	Origin    PeerID
	Timestamp uint64
}

// String renders the id as "<origin>-<timestamp>". The string form is for
// display; identity comparisons use the struct directly.
func (id MessageID) String() string {
	return fmt.Sprintf("%d-%d", id.Origin, id.Timestamp)
}

// DisplayLabel returns the id's string form with a short payload digest
// appended, e.g. "0-1#9c56d33e71f5c1ac". The digest helps correlate log
// lines across peers and must never be parsed back into anything.
func DisplayLabel(id MessageID, payload []byte) string {
	if len(payload) == 0 {
		return id.String()
	}
	return fmt.Sprintf("%s#%016x", id.String(), xxhash.Sum64(payload))
}
