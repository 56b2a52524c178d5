package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// PPPoE codes.
const (
	PPPoESession uint8 = 0x00
	PPPoEPADI    uint8 = 0x09
	PPPoEPADO    uint8 = 0x07
	PPPoEPADR    uint8 = 0x19
	PPPoEPADS    uint8 = 0x65
	PPPoEPADT    uint8 = 0xa7
)

// PPPoE discovery tag types.
const (
	PPPoETagEndOfList   uint16 = 0x0000
	PPPoETagServiceName uint16 = 0x0101
	PPPoETagACName      uint16 = 0x0102
	PPPoETagHostUniq    uint16 = 0x0103
	PPPoETagACCookie    uint16 = 0x0104
)

// PPPoE covers both discovery and session stages. Discovery payloads are
// a TLV tag list; session payloads are opaque PPP frames kept raw.
type PPPoE struct {
	pdu.Base
	Version   uint8 // 4 bits
	PType     uint8 // 4 bits
	Code      uint8
	SessionID uint16

	tags pdu.Options
}

func NewPPPoE() *PPPoE {
	return &PPPoE{Version: 1, PType: 1}
}

func ParsePPPoE(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	p := &PPPoE{}
	vt, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("pppoe: %w", err)
	}
	p.Version = vt >> 4
	p.PType = vt & 0x0f
	if p.Code, err = r.U8(); err != nil {
		return nil, fmt.Errorf("pppoe: %w", err)
	}
	if p.SessionID, err = r.U16(); err != nil {
		return nil, fmt.Errorf("pppoe: %w", err)
	}
	length, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("pppoe: %w", err)
	}
	body, err := r.Narrow(min(int(length), r.Remaining()))
	if err != nil {
		return nil, fmt.Errorf("pppoe: %w", err)
	}
	if p.Code == PPPoESession {
		if body.Remaining() > 0 {
			pdu.Chain(p, pdu.NewRaw(body.Rest()))
		}
		return p, nil
	}
	for body.Remaining() > 0 {
		tag, err := body.U16()
		if err != nil {
			return nil, fmt.Errorf("pppoe tag: %w", err)
		}
		tlen, err := body.U16()
		if err != nil {
			return nil, fmt.Errorf("pppoe tag %#x: %w", tag, err)
		}
		payload, err := body.Bytes(int(tlen))
		if err != nil {
			return nil, fmt.Errorf("pppoe tag %#x: %w", tag, err)
		}
		opt, err := pdu.NewOption(tag, payload)
		if err != nil {
			return nil, err
		}
		p.tags = append(p.tags, opt)
		if tag == PPPoETagEndOfList {
			break
		}
	}
	return p, nil
}

func (p *PPPoE) Type() pdu.Type { return pdu.TypePPPoE }

func (p *PPPoE) AddTag(o pdu.Option) { p.tags = append(p.tags, o) }

func (p *PPPoE) SearchTag(tag uint16) (*pdu.Option, error) { return p.tags.Search(tag) }

func (p *PPPoE) RemoveTag(tag uint16) bool { return p.tags.Remove(tag) }

func (p *PPPoE) Tags() pdu.Options { return p.tags }

func (p *PPPoE) tagsSize() int {
	n := 0
	for i := range p.tags {
		n += 4 + p.tags[i].DataSize()
	}
	return n
}

func (p *PPPoE) HeaderSize() int { return 6 + p.tagsSize() }

func (p *PPPoE) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	w := wire.NewWriter(buf)
	if err := w.U8(p.Version<<4 | p.PType&0x0f); err != nil {
		return err
	}
	if err := w.U8(p.Code); err != nil {
		return err
	}
	if err := w.U16(p.SessionID); err != nil {
		return err
	}
	if err := w.U16(uint16(len(buf) - 6)); err != nil {
		return err
	}
	for i := range p.tags {
		o := &p.tags[i]
		if err := w.U16(o.Tag()); err != nil {
			return err
		}
		if err := w.U16(uint16(o.DataSize())); err != nil {
			return err
		}
		if err := w.Bytes(o.Data()); err != nil {
			return err
		}
	}
	return nil
}

func (p *PPPoE) Clone() pdu.PDU {
	c := *p
	c.ResetLinks()
	c.tags = p.tags.Clone()
	if inner := p.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
