package pdu

import (
	"bytes"
	"errors"
	"testing"
)

func TestRawRoundTrip(t *testing.T) {
	r := NewRaw([]byte("abcdef"))
	buf, err := Serialize(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte("abcdef")) {
		t.Errorf("serialized %q", buf)
	}
	if Size(r) != 6 {
		t.Errorf("Size = %d", Size(r))
	}
}

func TestStackAppendsClones(t *testing.T) {
	a := NewRaw([]byte("aa"))
	b := NewRaw([]byte("bb"))
	head := Stack(a, b)
	if head != PDU(a) {
		t.Fatal("head should be the first pdu")
	}
	if a.Inner() == PDU(b) {
		t.Error("stack should append a clone, not the original")
	}
	inner, ok := a.Inner().(*Raw)
	if !ok || !bytes.Equal(inner.Payload(), []byte("bb")) {
		t.Fatalf("inner = %#v", a.Inner())
	}
	if inner.Parent() != PDU(a) {
		t.Error("parent link not set")
	}
	if Size(head) != 4 {
		t.Errorf("Size = %d", Size(head))
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := NewRaw([]byte("aa"))
	Chain(a, NewRaw([]byte("bb")))
	c := a.Clone().(*Raw)
	c.Inner().(*Raw).Payload()[0] = 'x'
	if a.Inner().(*Raw).Payload()[0] == 'x' {
		t.Error("clone shares payload with original")
	}
}

func TestReleaseInner(t *testing.T) {
	a := NewRaw([]byte("aa"))
	b := NewRaw([]byte("bb"))
	Chain(a, b)
	got := ReleaseInner(a)
	if got != PDU(b) || a.Inner() != nil || b.Parent() != nil {
		t.Error("ReleaseInner should detach and return the tail")
	}
}

func TestFind(t *testing.T) {
	a := NewRaw([]byte("aa"))
	Chain(a, NewRaw([]byte("bb")))
	first, err := Find[*Raw](a)
	if err != nil || !bytes.Equal(first.Payload(), []byte("aa")) {
		t.Errorf("Find = %v, %v", first, err)
	}
	last, err := RFind[*Raw](a)
	if err != nil || !bytes.Equal(last.Payload(), []byte("bb")) {
		t.Errorf("RFind = %v, %v", last, err)
	}
}

func TestDispatchUnknownTagFallsBackToRaw(t *testing.T) {
	p, err := FromEtherType(0xfffe, []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	raw, ok := p.(*Raw)
	if !ok || !bytes.Equal(raw.Payload(), []byte{1, 2, 3}) {
		t.Errorf("unknown tag should produce Raw, got %#v", p)
	}
	p, err = FromEtherType(0xfffe, nil)
	if err != nil || p != nil {
		t.Errorf("empty buffer should produce no PDU, got %#v, %v", p, err)
	}
}

func TestFindMissingLayer(t *testing.T) {
	if _, err := Find[*Raw](&stub{}); !errors.Is(err, ErrPDUNotFound) {
		t.Errorf("expected ErrPDUNotFound, got %v", err)
	}
}

type stub struct{ Base }

func (s *stub) Type() Type                                  { return Type(999) }
func (s *stub) HeaderSize() int                             { return 0 }
func (s *stub) WriteHeader([]byte, *SerializeContext) error { return nil }
func (s *stub) Clone() PDU                                  { c := *s; c.ResetLinks(); return &c }
