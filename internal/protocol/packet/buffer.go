package packet

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Buffer is a growable byte sequence with a read cursor.
// Writes always append; reads advance the cursor and never pass the written length.
type Buffer struct {
	data []byte
	off  int
}

// NewBuffer returns an empty buffer with room for n bytes.
func NewBuffer(n int) *Buffer {
	return &Buffer{data: make([]byte, 0, n)}
}

// FromBytes wraps b for reading. The buffer takes ownership of b.
func FromBytes(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Bytes returns the written bytes. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the number of written bytes.
func (b *Buffer) Len() int { return len(b.data) }

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int { return len(b.data) - b.off }

// Offset returns the read cursor.
func (b *Buffer) Offset() int { return b.off }

// ResetReader moves the read cursor back to the start.
func (b *Buffer) ResetReader() { b.off = 0 }

// Append writes raw bytes with no prefix.
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Grab copies length bytes starting at offset into a new buffer.
func (b *Buffer) Grab(offset, length int) (*Buffer, error) {
	if offset < 0 || length < 0 {
		return nil, ErrInvalidLength
	}
	if offset+length > len(b.data) {
		return nil, ErrTruncated
	}
	out := make([]byte, length)
	copy(out, b.data[offset:offset+length])
	return FromBytes(out), nil
}

// Pack returns the contents prefixed with the total length as a 4-byte integer.
// Datagrams are sent without it.
func (b *Buffer) Pack() []byte {
	out := make([]byte, 4+len(b.data))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(b.data)))
	copy(out[4:], b.data)
	return out
}

func (b *Buffer) WriteInt32(v int32) {
	b.data = binary.BigEndian.AppendUint32(b.data, uint32(v))
}

func (b *Buffer) WriteUint32(v uint32) {
	b.data = binary.BigEndian.AppendUint32(b.data, v)
}

func (b *Buffer) WriteFloat32(v float32) {
	b.data = binary.BigEndian.AppendUint32(b.data, math.Float32bits(v))
}

func (b *Buffer) WriteBool(v bool) {
	if v {
		b.data = append(b.data, 1)
		return
	}
	b.data = append(b.data, 0)
}

// WriteString writes a 4-byte byte-length prefix followed by the raw bytes.
func (b *Buffer) WriteString(v string) {
	b.WriteInt32(int32(len(v)))
	b.data = append(b.data, v...)
}

// WriteStringArray writes a 4-byte count followed by each string.
func (b *Buffer) WriteStringArray(v []string) {
	b.WriteInt32(int32(len(v)))
	for _, s := range v {
		b.WriteString(s)
	}
}

// WriteBitSet writes a 4-byte bit count followed by the packed bits, LSB first.
func (b *Buffer) WriteBitSet(v BitSet) {
	b.WriteInt32(int32(len(v)))
	b.data = append(b.data, v.pack()...)
}

// Write encodes v using the codec for its dynamic type.
// Unsupported types are a caller bug and are reported as ErrUnsupportedType.
func (b *Buffer) Write(v any) error {
	switch x := v.(type) {
	case int32:
		b.WriteInt32(x)
	case uint32:
		b.WriteUint32(x)
	case float32:
		b.WriteFloat32(x)
	case bool:
		b.WriteBool(x)
	case string:
		b.WriteString(x)
	case []string:
		b.WriteStringArray(x)
	case BitSet:
		b.WriteBitSet(x)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	return nil
}

func (b *Buffer) next(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrInvalidLength
	}
	if b.Remaining() < n {
		return nil, ErrTruncated
	}
	p := b.data[b.off : b.off+n]
	b.off += n
	return p, nil
}

func (b *Buffer) ReadInt32() (int32, error) {
	p, err := b.next(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(p)), nil
}

func (b *Buffer) ReadUint32() (uint32, error) {
	p, err := b.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

func (b *Buffer) ReadFloat32() (float32, error) {
	p, err := b.next(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(p)), nil
}

func (b *Buffer) ReadBool() (bool, error) {
	p, err := b.next(1)
	if err != nil {
		return false, err
	}
	switch p[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrInvalidBool
	}
}

func (b *Buffer) ReadString() (string, error) {
	n, err := b.readLength()
	if err != nil {
		return "", err
	}
	p, err := b.next(n)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

func (b *Buffer) ReadStringArray() ([]string, error) {
	n, err := b.readLength()
	if err != nil {
		return nil, err
	}
	// every element carries at least its own 4-byte prefix
	if n > b.Remaining()/4 {
		return nil, ErrTruncated
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, err := b.ReadString()
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (b *Buffer) ReadBitSet() (BitSet, error) {
	n, err := b.readLength()
	if err != nil {
		return nil, err
	}
	p, err := b.next((n + 7) / 8)
	if err != nil {
		return nil, err
	}
	return unpackBits(p, n), nil
}

// Read decodes into dst, which must point at a supported type.
func (b *Buffer) Read(dst any) error {
	var err error
	switch x := dst.(type) {
	case *int32:
		*x, err = b.ReadInt32()
	case *uint32:
		*x, err = b.ReadUint32()
	case *float32:
		*x, err = b.ReadFloat32()
	case *bool:
		*x, err = b.ReadBool()
	case *string:
		*x, err = b.ReadString()
	case *[]string:
		*x, err = b.ReadStringArray()
	case *BitSet:
		*x, err = b.ReadBitSet()
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, dst)
	}
	return err
}

func (b *Buffer) readLength() (int, error) {
	n, err := b.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrInvalidLength
	}
	return int(n), nil
}
