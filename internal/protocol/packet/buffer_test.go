package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	b := NewBuffer(64)
	b.WriteInt32(-42)
	b.WriteInt32(math.MaxInt32)
	b.WriteUint32(math.MaxUint32)
	b.WriteFloat32(3.5)
	b.WriteBool(true)
	b.WriteBool(false)
	b.WriteString("")
	b.WriteString("héllo")
	b.WriteStringArray([]string{"a", "", "ccc"})
	b.WriteBitSet(BitSet{true, false, true, true, false, false, false, false, true})

	if v, err := b.ReadInt32(); err != nil || v != -42 {
		t.Fatalf("int32 got=%d err=%v", v, err)
	}
	if v, err := b.ReadInt32(); err != nil || v != math.MaxInt32 {
		t.Fatalf("int32 max got=%d err=%v", v, err)
	}
	if v, err := b.ReadUint32(); err != nil || v != math.MaxUint32 {
		t.Fatalf("uint32 got=%d err=%v", v, err)
	}
	if v, err := b.ReadFloat32(); err != nil || v != 3.5 {
		t.Fatalf("float32 got=%v err=%v", v, err)
	}
	if v, err := b.ReadBool(); err != nil || !v {
		t.Fatalf("bool true got=%v err=%v", v, err)
	}
	if v, err := b.ReadBool(); err != nil || v {
		t.Fatalf("bool false got=%v err=%v", v, err)
	}
	if v, err := b.ReadString(); err != nil || v != "" {
		t.Fatalf("empty string got=%q err=%v", v, err)
	}
	if v, err := b.ReadString(); err != nil || v != "héllo" {
		t.Fatalf("string got=%q err=%v", v, err)
	}
	arr, err := b.ReadStringArray()
	if err != nil || len(arr) != 3 || arr[0] != "a" || arr[1] != "" || arr[2] != "ccc" {
		t.Fatalf("string array got=%v err=%v", arr, err)
	}
	bits, err := b.ReadBitSet()
	if err != nil || len(bits) != 9 || !bits.Get(0) || bits.Get(1) || !bits.Get(3) || !bits.Get(8) {
		t.Fatalf("bitset got=%v err=%v", bits, err)
	}
	if b.Remaining() != 0 {
		t.Fatalf("unexpected trailing bytes: %d", b.Remaining())
	}
}

func TestGenericWriteReadRoundTrip(t *testing.T) {
	values := []any{int32(7), uint32(9), float32(-1.25), true, "x", []string{"p", "q"}, BitSet{true}}
	b := NewBuffer(0)
	for _, v := range values {
		if err := b.Write(v); err != nil {
			t.Fatalf("write %T: %v", v, err)
		}
	}

	var (
		i  int32
		u  uint32
		f  float32
		ok bool
		s  string
		sa []string
		bs BitSet
	)
	for _, dst := range []any{&i, &u, &f, &ok, &s, &sa, &bs} {
		if err := b.Read(dst); err != nil {
			t.Fatalf("read %T: %v", dst, err)
		}
	}
	if i != 7 || u != 9 || f != -1.25 || !ok || s != "x" || len(sa) != 2 || sa[1] != "q" || !bs.Get(0) {
		t.Fatalf("unexpected values: %v %v %v %v %q %v %v", i, u, f, ok, s, sa, bs)
	}
}

func TestWriteUnsupportedTypeIsReported(t *testing.T) {
	b := NewBuffer(0)
	if err := b.Write(int64(1)); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if b.Len() != 0 {
		t.Fatalf("unsupported write must not append bytes")
	}
	var x int64
	if err := b.Read(&x); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType on read, got %v", err)
	}
}

func TestReadPastEndIsDecodeError(t *testing.T) {
	b := NewBuffer(0)
	b.WriteString("abcdef")
	raw := b.Bytes()[:6]

	r := FromBytes(raw)
	if _, err := r.ReadString(); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if r.Offset() > r.Len() {
		t.Fatalf("cursor passed written length: off=%d len=%d", r.Offset(), r.Len())
	}

	neg := NewBuffer(0)
	neg.WriteInt32(-1)
	if _, err := neg.ReadString(); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestReadBoolRejectsGarbage(t *testing.T) {
	b := FromBytes([]byte{7})
	if _, err := b.ReadBool(); !errors.Is(err, ErrInvalidBool) {
		t.Fatalf("expected ErrInvalidBool, got %v", err)
	}
}

func TestResetReaderRereads(t *testing.T) {
	b := NewBuffer(0)
	b.WriteUint32(5)
	if _, err := b.ReadUint32(); err != nil {
		t.Fatalf("read: %v", err)
	}
	b.ResetReader()
	if v, err := b.ReadUint32(); err != nil || v != 5 {
		t.Fatalf("reread got=%d err=%v", v, err)
	}
}

func TestGrabSlicesSubPacket(t *testing.T) {
	b := NewBuffer(0)
	b.WriteUint32(1)
	b.WriteString("inner")
	sub, err := b.Grab(4, b.Len()-4)
	if err != nil {
		t.Fatalf("grab: %v", err)
	}
	if v, err := sub.ReadString(); err != nil || v != "inner" {
		t.Fatalf("sub read got=%q err=%v", v, err)
	}
	if _, err := b.Grab(2, b.Len()); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{TypeID: -12345, SessionID: 77, Sequence: 4000000000}
	b := EncodeHeader(h, 0)
	b.WriteString("payload")

	r := FromBytes(b.Bytes())
	got, err := DecodeHeader(r)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if got != h {
		t.Fatalf("header mismatch: got=%+v want=%+v", got, h)
	}
	if s, err := r.ReadString(); err != nil || s != "payload" {
		t.Fatalf("payload got=%q err=%v", s, err)
	}

	if _, err := DecodeHeader(FromBytes([]byte{1, 2, 3})); !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestPackPrefixesLength(t *testing.T) {
	b := NewBuffer(0)
	b.WriteString("framed")
	packed := b.Pack()
	if len(packed) != b.Len()+4 {
		t.Fatalf("unexpected packed length: %d", len(packed))
	}
	if n := binary.BigEndian.Uint32(packed[:4]); int(n) != b.Len() {
		t.Fatalf("length prefix=%d want %d", n, b.Len())
	}
	if !bytes.Equal(packed[4:], b.Bytes()) {
		t.Fatalf("packed body differs from buffer bytes")
	}
}
