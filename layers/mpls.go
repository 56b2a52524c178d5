package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// MPLS is one label stack entry. Stacked labels parse into chained MPLS
// PDUs; the bottom-of-stack bit is derived from the chain on serialize.
type MPLS struct {
	pdu.Base
	Label        uint32 // 20 bits
	TrafficClass uint8  // 3 bits
	TTL          uint8

	bottom bool
}

func NewMPLS(label uint32) *MPLS {
	return &MPLS{Label: label & 0xfffff, TTL: 64}
}

func ParseMPLS(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	m := &MPLS{}
	entry, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("mpls: %w", err)
	}
	m.Label = entry >> 12
	m.TrafficClass = uint8(entry >> 9 & 0x07)
	m.bottom = entry&0x100 != 0
	m.TTL = uint8(entry)
	rest := r.Rest()
	if len(rest) == 0 {
		return m, nil
	}
	var inner pdu.PDU
	if !m.bottom {
		inner, err = ParseMPLS(rest)
	} else {
		// the payload type is not self-describing; sniff the IP version
		switch rest[0] >> 4 {
		case 4:
			inner, err = ParseIP(rest)
		case 6:
			inner, err = ParseIPv6(rest)
		default:
			inner = pdu.NewRaw(rest)
		}
	}
	if err != nil {
		return nil, err
	}
	pdu.Chain(m, inner)
	return m, nil
}

func (m *MPLS) Type() pdu.Type { return pdu.TypeMPLS }

// BottomOfStack reports whether this entry ends the label stack.
func (m *MPLS) BottomOfStack() bool { return m.bottom }

func (m *MPLS) HeaderSize() int { return 4 }

func (m *MPLS) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	inner := m.Inner()
	m.bottom = inner == nil || inner.Type() != pdu.TypeMPLS
	entry := m.Label&0xfffff<<12 | uint32(m.TrafficClass&0x07)<<9 | uint32(m.TTL)
	if m.bottom {
		entry |= 0x100
	}
	return wire.NewWriter(buf).U32(entry)
}

func (m *MPLS) Clone() pdu.PDU {
	c := *m
	c.ResetLinks()
	if inner := m.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
