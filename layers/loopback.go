package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// BSD loopback protocol families.
const (
	LoopbackFamilyInet  uint32 = 2
	LoopbackFamilyInet6 uint32 = 24
)

// Loopback is the 4-byte null/loopback encapsulation. Captures carry the
// family field in the capturing host's byte order, so both orders are
// accepted on parse; WriteHeader always writes it little-endian.
type Loopback struct {
	pdu.Base
	Family uint32
}

func NewLoopback() *Loopback {
	return &Loopback{Family: LoopbackFamilyInet}
}

func ParseLoopback(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	l := &Loopback{}
	family, err := r.U32LE()
	if err != nil {
		return nil, fmt.Errorf("loopback: %w", err)
	}
	if family&0xffff0000 != 0 {
		// big-endian writer
		family = family<<24 | family>>24 | family<<8&0xff0000 | family>>8&0xff00
	}
	l.Family = family
	var inner pdu.PDU
	switch family {
	case LoopbackFamilyInet:
		inner, err = ParseIP(r.Rest())
	case LoopbackFamilyInet6:
		inner, err = ParseIPv6(r.Rest())
	default:
		if r.Remaining() > 0 {
			inner = pdu.NewRaw(r.Rest())
		}
	}
	if err != nil {
		return nil, err
	}
	if inner != nil {
		pdu.Chain(l, inner)
	}
	return l, nil
}

func (l *Loopback) Type() pdu.Type { return pdu.TypeLoopback }

func (l *Loopback) HeaderSize() int { return 4 }

func (l *Loopback) UpdateContext(ctx *pdu.SerializeContext) {
	ctx.HasLinkLayer = true
}

func (l *Loopback) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	if inner := l.Inner(); inner != nil {
		switch inner.Type() {
		case pdu.TypeIP:
			l.Family = LoopbackFamilyInet
		case pdu.TypeIPv6:
			l.Family = LoopbackFamilyInet6
		}
	}
	return wire.NewWriter(buf).U32LE(l.Family)
}

func (l *Loopback) Clone() pdu.PDU {
	c := *l
	c.ResetLinks()
	if inner := l.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
