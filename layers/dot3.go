package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// Dot3 is an IEEE 802.3 frame. The third header field is a length, not an
// EtherType, and must equal the size of the inner PDU.
type Dot3 struct {
	pdu.Base
	Dst addr.MAC
	Src addr.MAC

	length uint16
}

func NewDot3(dst, src addr.MAC) *Dot3 {
	return &Dot3{Dst: dst, Src: src}
}

func ParseDot3(data []byte) (*Dot3, error) {
	r := wire.NewReader(data)
	d := &Dot3{}
	if err := r.Array(d.Dst[:]); err != nil {
		return nil, fmt.Errorf("802.3: %w", err)
	}
	if err := r.Array(d.Src[:]); err != nil {
		return nil, fmt.Errorf("802.3: %w", err)
	}
	length, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("802.3: %w", err)
	}
	d.length = length
	if r.Remaining() > 0 {
		inner, err := ParseLLC(r.Rest())
		if err != nil {
			return nil, err
		}
		pdu.Chain(d, inner)
	}
	return d, nil
}

func (d *Dot3) Type() pdu.Type { return pdu.TypeIEEE8023 }

func (d *Dot3) Length() uint16 { return d.length }

func (d *Dot3) HeaderSize() int { return 14 }

func (d *Dot3) UpdateContext(ctx *pdu.SerializeContext) {
	ctx.HasLinkLayer = true
}

func (d *Dot3) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	d.length = uint16(pdu.Size(d.Inner()))
	w := wire.NewWriter(buf)
	if err := w.Bytes(d.Dst[:]); err != nil {
		return err
	}
	if err := w.Bytes(d.Src[:]); err != nil {
		return err
	}
	return w.U16(d.length)
}

func (d *Dot3) Clone() pdu.PDU {
	c := *d
	c.ResetLinks()
	if inner := d.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
