package protocol

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataEnvelopeRoundTrip(t *testing.T) {
	in := Envelope{
		Kind:      KindData,
		Cluster:   uuid.MustParse("5f8c7e2a-9d14-4b0e-8f31-6a2d9c0e4b17"),
		Origin:    2,
		Sender:    2,
		Timestamp: 7,
		Payload:   []byte("hello"),
	}

	data, err := in.Marshal()
	require.NoError(t, err)
	assert.Equal(t, byte(KindData), data[0])

	out, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, MessageID{Origin: 2, Timestamp: 7}, out.ID())
}

func TestAckEnvelopeRoundTrip(t *testing.T) {
	in := Envelope{
		Kind:      KindAck,
		Origin:    0,
		Sender:    1,
		Timestamp: 1,
		AckClock:  3,
	}

	data, err := in.Marshal()
	require.NoError(t, err)

	out, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, KindAck, out.Kind)
	assert.Equal(t, PeerID(1), out.Sender)
	assert.Equal(t, uint64(3), out.AckClock)
	assert.Empty(t, out.Payload)
	assert.Equal(t, "0-1", out.ID().String())
}

func TestMarshalRejectsOversizedPayload(t *testing.T) {
	in := Envelope{
		Kind:    KindData,
		Payload: make([]byte, MaxPayloadSize+1),
	}
	_, err := in.Marshal()
	assert.Error(t, err)
}

func TestMarshalRejectsAckWithPayload(t *testing.T) {
	in := Envelope{Kind: KindAck, Payload: []byte("x")}
	_, err := in.Marshal()
	assert.Error(t, err)
}

func TestUnmarshalRejectsMalformedInput(t *testing.T) {
	valid, err := (&Envelope{
		Kind:      KindData,
		Origin:    1,
		Sender:    1,
		Timestamp: 4,
		Payload:   []byte("payload"),
	}).Marshal()
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":             {},
		"unknown kind":      {0x7f, 0, 0, 0},
		"truncated header":  valid[:10],
		"truncated payload": valid[:len(valid)-3],
		"trailing garbage":  append(append([]byte{}, valid...), 0xde, 0xad),
	}
	for name, data := range cases {
		_, err := Unmarshal(data)
		assert.Error(t, err, name)
	}
}

func TestMessageIDString(t *testing.T) {
	assert.Equal(t, "0-1", MessageID{Origin: 0, Timestamp: 1}.String())
	assert.Equal(t, "12-3456", MessageID{Origin: 12, Timestamp: 3456}.String())
}

func TestDisplayLabel(t *testing.T) {
	id := MessageID{Origin: 0, Timestamp: 1}

	// no payload: plain id
	assert.Equal(t, "0-1", DisplayLabel(id, nil))

	// digest is stable for equal payloads and differs across payloads
	a := DisplayLabel(id, []byte("hello"))
	b := DisplayLabel(id, []byte("hello"))
	c := DisplayLabel(id, []byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	// label is the id plus a '#'-separated suffix, never the payload itself
	assert.Contains(t, a, "0-1#")
	assert.NotContains(t, a, "hello")
}
