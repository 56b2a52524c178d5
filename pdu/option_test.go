package pdu

import (
	"bytes"
	"errors"
	"testing"
)

func TestOptionSmallBufferStorage(t *testing.T) {
	for size := 0; size <= 8; size++ {
		o, err := NewOption(1, make([]byte, size))
		if err != nil {
			t.Fatalf("size %d: %v", size, err)
		}
		if !o.Inline() {
			t.Errorf("size %d should be stored inline", size)
		}
	}
	for _, size := range []int{9, 16, 1024, 65535} {
		o, err := NewOption(1, make([]byte, size))
		if err != nil {
			t.Fatalf("size %d: %v", size, err)
		}
		if o.Inline() {
			t.Errorf("size %d should be heap allocated", size)
		}
		if o.DataSize() != size {
			t.Errorf("size %d: DataSize = %d", size, o.DataSize())
		}
	}
}

func TestOptionTooLarge(t *testing.T) {
	if _, err := NewOption(1, make([]byte, 65536)); !errors.Is(err, ErrOptionTooLarge) {
		t.Errorf("expected ErrOptionTooLarge, got %v", err)
	}
}

func TestOptionDecoders(t *testing.T) {
	o := MustOption(5, []byte{0x12, 0x34})
	v, err := o.U16()
	if err != nil || v != 0x1234 {
		t.Errorf("U16 = %#x, %v", v, err)
	}
	if _, err := o.U32(); !errors.Is(err, ErrMalformedOption) {
		t.Errorf("U32 on 2 bytes should be malformed, got %v", err)
	}

	addrs := MustOption(3, []byte{192, 168, 0, 1, 192, 168, 0, 2})
	list, err := addrs.IPv4List()
	if err != nil || len(list) != 2 || list[1].String() != "192.168.0.2" {
		t.Errorf("IPv4List = %v, %v", list, err)
	}

	odd := MustOption(3, []byte{1, 2, 3})
	if _, err := odd.U16List(); !errors.Is(err, ErrMalformedOption) {
		t.Errorf("leftover bytes should be malformed, got %v", err)
	}
}

func TestOptionLengthField(t *testing.T) {
	o, err := NewOptionWithLength(1, 3, []byte{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}
	if o.LengthField() != 3 {
		t.Errorf("LengthField = %d", o.LengthField())
	}
	if o.DataSize() != 6 {
		t.Errorf("DataSize = %d", o.DataSize())
	}
}

func TestOptionsSearchRemove(t *testing.T) {
	var opts Options
	opts = append(opts, MustOption(1, []byte{1}), MustOption(2, []byte{2}), MustOption(1, []byte{3}))
	o, err := opts.Search(1)
	if err != nil || !bytes.Equal(o.Data(), []byte{1}) {
		t.Errorf("Search = %v, %v", o, err)
	}
	if !opts.Remove(1) {
		t.Error("Remove should report success")
	}
	o, err = opts.Search(1)
	if err != nil || !bytes.Equal(o.Data(), []byte{3}) {
		t.Error("Remove should only drop the first match")
	}
	if _, err := opts.Search(9); !errors.Is(err, ErrOptionNotFound) {
		t.Errorf("missing tag should be ErrOptionNotFound, got %v", err)
	}
}

func TestOptionCloneIsDeep(t *testing.T) {
	big := make([]byte, 32)
	var opts Options
	opts = append(opts, MustOption(7, big))
	clone := opts.Clone()
	clone[0].Data()[0] = 0xff
	if opts[0].Data()[0] == 0xff {
		t.Error("clone shares backing storage")
	}
}
