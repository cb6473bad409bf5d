package sharprudp

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DefaultMagicHeader is the 4-byte prefix every wire datagram carries
// ahead of its encoded body. A receiver whose leading bytes do not match
// its configured magic header drops the datagram without decoding it.
var DefaultMagicHeader = []byte{0xDE, 0xAD, 0xBE, 0xEF}

// bodyHeaderLength is the size of the fixed-width portion of an encoded
// body: type(1) + flags(1) + seq(4) + id(4) + qty(4) + ackCount(2).
const bodyHeaderLength = 1 + 1 + 4 + 4 + 4 + 2

// Encode frames a packet's wire-visible fields behind the magic header.
// Src, Dst, ReceivedAt and Confirmed are local bookkeeping and are never
// written to the wire.
func Encode(magic []byte, p *Packet) []byte {
	buf := make([]byte, 0, len(magic)+bodyHeaderLength+4*len(p.Ack)+4+len(p.Data))
	buf = append(buf, magic...)

	var fixed [bodyHeaderLength]byte
	fixed[0] = byte(p.Type)
	fixed[1] = byte(p.Flags)
	binary.BigEndian.PutUint32(fixed[2:6], p.Seq)
	binary.BigEndian.PutUint32(fixed[6:10], p.ID)
	binary.BigEndian.PutUint32(fixed[10:14], p.Qty)
	binary.BigEndian.PutUint16(fixed[14:16], uint16(len(p.Ack)))
	buf = append(buf, fixed[:]...)

	for _, seq := range p.Ack {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], seq)
		buf = append(buf, b[:]...)
	}

	var dataLen [4]byte
	binary.BigEndian.PutUint32(dataLen[:], uint32(len(p.Data)))
	buf = append(buf, dataLen[:]...)
	buf = append(buf, p.Data...)

	return buf
}

// Decode validates the magic prefix and parses the remaining bytes into a
// Packet. Src, Dst, ReceivedAt and Confirmed are left at their zero value;
// the caller stamps them from the receive path.
func Decode(magic []byte, raw []byte) (*Packet, error) {
	if len(raw) < len(magic) || !bytes.Equal(raw[:len(magic)], magic) {
		return nil, ErrBadMagic
	}
	body := raw[len(magic):]
	if len(body) < bodyHeaderLength {
		return nil, fmt.Errorf("%w: body shorter than fixed header", ErrDecode)
	}

	p := &Packet{
		Type:  PacketType(body[0]),
		Flags: PacketFlags(body[1]),
		Seq:   binary.BigEndian.Uint32(body[2:6]),
		ID:    binary.BigEndian.Uint32(body[6:10]),
		Qty:   binary.BigEndian.Uint32(body[10:14]),
	}
	ackCount := int(binary.BigEndian.Uint16(body[14:16]))
	offset := bodyHeaderLength

	if len(body) < offset+4*ackCount {
		return nil, fmt.Errorf("%w: ack list truncated", ErrDecode)
	}
	if ackCount > 0 {
		p.Ack = make([]uint32, ackCount)
		for i := 0; i < ackCount; i++ {
			p.Ack[i] = binary.BigEndian.Uint32(body[offset : offset+4])
			offset += 4
		}
	}

	if len(body) < offset+4 {
		return nil, fmt.Errorf("%w: data length truncated", ErrDecode)
	}
	dataLen := int(binary.BigEndian.Uint32(body[offset : offset+4]))
	offset += 4
	if len(body) < offset+dataLen {
		return nil, fmt.Errorf("%w: data truncated", ErrDecode)
	}
	if dataLen > 0 {
		p.Data = append([]byte(nil), body[offset:offset+dataLen]...)
	}

	return p, nil
}
