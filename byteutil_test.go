package revdb

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
)

func TestBytesBuilder_Basics(t *testing.T) {
	var bb bytesBuilder
	off := bb.Grow(3)
	copy(bb.Buf[off:], []byte{1, 2, 3})
	_ = bb.WriteByte(4)
	bb.AppendFixedUint64(0x0102030405060708)
	_, _ = bb.Write([]byte{9, 8})

	want := []byte{1, 2, 3, 4}
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], 0x0102030405060708)
	want = append(want, u64[:]...)
	want = append(want, 9, 8)

	if !reflect.DeepEqual(bb.Buf, want) {
		t.Fatalf("bb.Buf = %x, wanted %x", bb.Buf, want)
	}
}

func TestSeqKey_SortsNumerically(t *testing.T) {
	prev := seqKey(0)
	for _, seq := range []uint64{1, 2, 255, 256, 1 << 32, 1<<63 + 1} {
		k := seqKey(seq)
		if string(prev) >= string(k) {
			t.Fatalf("seqKey(%d) = %x doesn't sort after %x", seq, k, prev)
		}
		prev = k
	}
}

func TestByteDecoder(t *testing.T) {
	var bb bytesBuilder
	bb.AppendFixedUint64(42)
	_, _ = bb.Write([]byte("abc"))

	d := makeByteDecoder(bb.Buf)
	v, err := d.FixedUint64()
	if err != nil || v != 42 {
		t.Fatalf("FixedUint64() = %d, %v, wanted 42, nil", v, err)
	}
	raw, err := d.Raw(3)
	if err != nil || string(raw) != "abc" {
		t.Fatalf("Raw(3) = %q, %v, wanted abc, nil", raw, err)
	}
	if d.Off() != 11 {
		t.Fatalf("Off() = %d, wanted 11", d.Off())
	}

	_, err = d.Raw(1)
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("Raw past end: err = %v, wanted *DataError", err)
	}
	if de.Off != 11 {
		t.Fatalf("DataError.Off = %d, wanted 11", de.Off)
	}
}
