package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// Dot1Q is an 802.1Q VLAN tag. QinQ outer tags parse into the same layer.
type Dot1Q struct {
	pdu.Base
	Priority uint8 // 3 bits
	CFI      bool
	ID       uint16 // 12 bits

	etherType uint16
}

func NewDot1Q(id uint16) *Dot1Q {
	return &Dot1Q{ID: id & 0x0fff}
}

func ParseDot1Q(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	q := &Dot1Q{}
	tci, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("802.1q: %w", err)
	}
	q.Priority = uint8(tci >> 13)
	q.CFI = tci&0x1000 != 0
	q.ID = tci & 0x0fff
	if q.etherType, err = r.U16(); err != nil {
		return nil, fmt.Errorf("802.1q: %w", err)
	}
	inner, err := pdu.FromEtherType(q.etherType, r.Rest())
	if err != nil {
		return nil, err
	}
	if inner != nil {
		pdu.Chain(q, inner)
	}
	return q, nil
}

func (q *Dot1Q) Type() pdu.Type { return pdu.TypeDot1Q }

func (q *Dot1Q) EtherType() uint16 { return q.etherType }

func (q *Dot1Q) HeaderSize() int { return 4 }

func (q *Dot1Q) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	if inner := q.Inner(); inner != nil {
		if et, ok := pdu.EtherTypeOf(inner.Type()); ok {
			q.etherType = et
		}
	}
	tci := uint16(q.Priority)<<13 | q.ID&0x0fff
	if q.CFI {
		tci |= 0x1000
	}
	w := wire.NewWriter(buf)
	if err := w.U16(tci); err != nil {
		return err
	}
	return w.U16(q.etherType)
}

func (q *Dot1Q) Clone() pdu.PDU {
	c := *q
	c.ResetLinks()
	if inner := q.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
