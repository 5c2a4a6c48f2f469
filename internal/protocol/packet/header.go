package packet

import "encoding/binary"

// HeaderSize is the fixed datagram header: type id, session id, sequence.
const HeaderSize = 12

// Header is the fixed wire header carried by every datagram.
type Header struct {
	TypeID    int32
	SessionID int32
	Sequence  uint32
}

// EncodeHeader writes h into a fresh buffer sized for a payload of hint bytes.
func EncodeHeader(h Header, hint int) *Buffer {
	b := NewBuffer(HeaderSize + hint)
	b.WriteInt32(h.TypeID)
	b.WriteInt32(h.SessionID)
	b.WriteUint32(h.Sequence)
	return b
}

// DecodeHeader reads the header and leaves the cursor at the first payload byte.
func DecodeHeader(b *Buffer) (Header, error) {
	if b.Remaining() < HeaderSize {
		return Header{}, ErrShortHeader
	}
	p, _ := b.next(HeaderSize)
	return Header{
		TypeID:    int32(binary.BigEndian.Uint32(p[0:4])),
		SessionID: int32(binary.BigEndian.Uint32(p[4:8])),
		Sequence:  binary.BigEndian.Uint32(p[8:12]),
	}, nil
}
