package sharprudp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	p := &Packet{
		Type:  PacketDAT,
		Flags: FlagACK,
		Seq:   42,
		ID:    7,
		Qty:   3,
		Data:  []byte("hello world"),
		Ack:   []uint32{1, 2, 3},
	}

	raw := Encode(DefaultMagicHeader, p)
	decoded, err := Decode(DefaultMagicHeader, raw)

	assert.NoError(t, err)
	assert.Equal(t, p.Type, decoded.Type)
	assert.Equal(t, p.Flags, decoded.Flags)
	assert.Equal(t, p.Seq, decoded.Seq)
	assert.Equal(t, p.ID, decoded.ID)
	assert.Equal(t, p.Qty, decoded.Qty)
	assert.Equal(t, p.Data, decoded.Data)
	assert.Equal(t, p.Ack, decoded.Ack)
}

func TestEncodeDecode_EmptyPayloadAndAck(t *testing.T) {
	p := &Packet{Type: PacketSYN, Seq: 100}

	raw := Encode(DefaultMagicHeader, p)
	decoded, err := Decode(DefaultMagicHeader, raw)

	assert.NoError(t, err)
	assert.Equal(t, PacketSYN, decoded.Type)
	assert.Empty(t, decoded.Data)
	assert.Empty(t, decoded.Ack)
}

func TestDecode_BadMagic(t *testing.T) {
	raw := Encode(DefaultMagicHeader, &Packet{Type: PacketNUL})
	raw[0] ^= 0xFF

	_, err := Decode(DefaultMagicHeader, raw)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecode_Truncated(t *testing.T) {
	raw := Encode(DefaultMagicHeader, &Packet{Type: PacketDAT, Data: []byte("payload")})

	_, err := Decode(DefaultMagicHeader, raw[:len(raw)-2])
	assert.ErrorIs(t, err, ErrDecode)
}

func TestPacketType_String(t *testing.T) {
	assert.Equal(t, "SYN", PacketSYN.String())
	assert.Equal(t, "ACK", PacketACK.String())
	assert.Equal(t, "DAT", PacketDAT.String())
	assert.Equal(t, "NUL", PacketNUL.String())
	assert.Equal(t, "RST", PacketRST.String())
}
