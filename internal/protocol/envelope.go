package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Kind discriminates envelope types on the wire. It is the first byte of
// every datagram.
type Kind byte

const (
	// KindData carries an application payload from its origin to a peer.
	KindData Kind = 0x01
	// KindAck confirms delivery of one DATA message back to its origin.
	KindAck Kind = 0x02
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindAck:
		return "ACK"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(k))
	}
}

const (
	// MaxDatagramSize is the largest datagram the protocol will emit or
	// accept.
	MaxDatagramSize = 8192

	// header: kind(1) + cluster(16) + origin(4) + sender(4) + timestamp(8)
	commonHeaderSize = 1 + 16 + 4 + 4 + 8
	dataHeaderSize   = commonHeaderSize + 4 // + payload length
	ackSize          = commonHeaderSize + 8 // + ack clock

	// MaxPayloadSize is the largest application payload that fits in one
	// DATA datagram.
	MaxPayloadSize = MaxDatagramSize - dataHeaderSize
)

// Envelope is the single wire unit of the protocol.
//
// For DATA: Origin is the multicasting process, Sender the transmitting one
// (equal to Origin unless a gossip relay forwarded it), Timestamp the
// origin's Lamport value at send time, Payload the application content.
// Retransmissions reuse the original envelope verbatim, so Origin and
// Timestamp, and with them the message identity, are stable across copies.
//
// For ACK: Origin and Timestamp name the acknowledged message, Sender is the
// acknowledging peer and AckClock its Lamport value when the ack was sent.
//
// Cluster isolates independent runs sharing an address range: envelopes
// stamped with a different cluster id are discarded on receipt.
type Envelope struct {
	Kind      Kind
	Cluster   uuid.UUID
	Origin    PeerID
	Sender    PeerID
	Timestamp uint64
	AckClock  uint64
	Payload   []byte
}

// ID returns the identity of the message the envelope carries or confirms.
func (e *Envelope) ID() MessageID {
	return MessageID{Origin: e.Origin, Timestamp: e.Timestamp}
}

// Marshal serializes the envelope into a single datagram.
func (e *Envelope) Marshal() ([]byte, error) {
	switch e.Kind {
	case KindData:
		if len(e.Payload) > MaxPayloadSize {
			return nil, fmt.Errorf("payload of %d bytes exceeds limit of %d", len(e.Payload), MaxPayloadSize)
		}
	case KindAck:
		if len(e.Payload) != 0 {
			return nil, fmt.Errorf("ack envelopes carry no payload")
		}
	default:
		return nil, fmt.Errorf("cannot marshal envelope of kind 0x%02x", byte(e.Kind))
	}

	buf := &bytes.Buffer{}
	buf.WriteByte(byte(e.Kind))
	buf.Write(e.Cluster[:])
	if err := binary.Write(buf, binary.BigEndian, uint32(e.Origin)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(e.Sender)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, e.Timestamp); err != nil {
		return nil, err
	}

	switch e.Kind {
	case KindData:
		if err := binary.Write(buf, binary.BigEndian, uint32(len(e.Payload))); err != nil {
			return nil, err
		}
		buf.Write(e.Payload)
	case KindAck:
		if err := binary.Write(buf, binary.BigEndian, e.AckClock); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Unmarshal decodes one datagram. Truncated, oversized, or unknown-kind
// input is rejected; the receive path treats any error here as a malformed
// datagram to be dropped.
func Unmarshal(data []byte) (Envelope, error) {
	if len(data) > MaxDatagramSize {
		return Envelope{}, fmt.Errorf("datagram of %d bytes exceeds limit of %d", len(data), MaxDatagramSize)
	}

	r := bytes.NewReader(data)

	var kindByte byte
	if err := binary.Read(r, binary.BigEndian, &kindByte); err != nil {
		return Envelope{}, fmt.Errorf("failed to read kind: %w", err)
	}
	kind := Kind(kindByte)
	if kind != KindData && kind != KindAck {
		return Envelope{}, fmt.Errorf("unknown envelope kind 0x%02x", kindByte)
	}

	env := Envelope{Kind: kind}

	if _, err := io.ReadFull(r, env.Cluster[:]); err != nil {
		return Envelope{}, fmt.Errorf("failed to read cluster id: %w", err)
	}

	var origin, sender uint32
	if err := binary.Read(r, binary.BigEndian, &origin); err != nil {
		return Envelope{}, fmt.Errorf("failed to read origin: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &sender); err != nil {
		return Envelope{}, fmt.Errorf("failed to read sender: %w", err)
	}
	env.Origin = PeerID(origin)
	env.Sender = PeerID(sender)

	if err := binary.Read(r, binary.BigEndian, &env.Timestamp); err != nil {
		return Envelope{}, fmt.Errorf("failed to read timestamp: %w", err)
	}

	switch kind {
	case KindData:
		var payloadLen uint32
		if err := binary.Read(r, binary.BigEndian, &payloadLen); err != nil {
			return Envelope{}, fmt.Errorf("failed to read payload length: %w", err)
		}
		if int(payloadLen) != r.Len() {
			return Envelope{}, fmt.Errorf("payload length %d does not match remaining %d bytes", payloadLen, r.Len())
		}
		env.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, env.Payload); err != nil {
			return Envelope{}, fmt.Errorf("failed to read payload: %w", err)
		}
	case KindAck:
		if err := binary.Read(r, binary.BigEndian, &env.AckClock); err != nil {
			return Envelope{}, fmt.Errorf("failed to read ack clock: %w", err)
		}
		if r.Len() != 0 {
			return Envelope{}, fmt.Errorf("%d trailing bytes after ack", r.Len())
		}
	}

	return env, nil
}
