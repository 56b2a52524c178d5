package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestReaderBoundsChecks(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03})
	v16, err := r.U16()
	if err != nil || v16 != 0x0102 {
		t.Errorf("U16 = %#x, %v", v16, err)
	}
	if _, err := r.U16(); !errors.Is(err, ErrMalformed) {
		t.Errorf("short read should be ErrMalformed, got %v", err)
	}
	if r.Remaining() != 1 {
		t.Errorf("failed read must not consume, remaining = %d", r.Remaining())
	}
}

func TestReaderNarrow(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5})
	sub, err := r.Narrow(3)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Remaining() != 3 || r.Remaining() != 2 {
		t.Errorf("narrow split wrong: %d/%d", sub.Remaining(), r.Remaining())
	}
	if _, err := sub.U32(); !errors.Is(err, ErrMalformed) {
		t.Error("sub-reader must not reach past its region")
	}
}

func TestReaderEndianness(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x01, 0x02})
	be, _ := r.U16()
	le, _ := r.U16LE()
	if be != 0x0102 || le != 0x0201 {
		t.Errorf("be = %#x, le = %#x", be, le)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	w := NewWriter(buf)
	if err := w.U16(0xbeef); err != nil {
		t.Fatal(err)
	}
	if err := w.U32(0x01020304); err != nil {
		t.Fatal(err)
	}
	if err := w.Fill(2, 0xaa); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte{0xbe, 0xef, 1, 2, 3, 4, 0xaa, 0xaa}) {
		t.Errorf("buf = %x", buf)
	}
	if err := w.U8(0); !errors.Is(err, ErrShortWrite) {
		t.Errorf("full writer should fail, got %v", err)
	}
}

func TestChecksumKnownValue(t *testing.T) {
	// classic RFC 1071 example
	data := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}
	if got := InternetChecksum(data); got != 0x220d {
		t.Errorf("checksum = %#x", got)
	}
	// appending the inverted checksum folds to 0xffff
	data = append(data, 0x22, 0x0d)
	if got := Checksum(data); got != 0xffff {
		t.Errorf("self check = %#x", got)
	}
}

func BenchmarkChecksum(b *testing.B) {
	data := make([]byte, 1500)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Checksum(data)
	}
}
