package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// Hop-by-hop / destination option TLV types.
const (
	IPv6OptPad1 uint8 = 0
	IPv6OptPadN uint8 = 1
)

// isIPv6ExtHeader reports whether an IP protocol number is an extension
// header this layer absorbs.
func isIPv6ExtHeader(proto uint8) bool {
	switch proto {
	case pdu.IPProtoHopByHop, pdu.IPProtoRouting, pdu.IPProtoFragment, pdu.IPProtoDstOpts:
		return true
	}
	return false
}

// IPv6ExtHeader is one extension header: its protocol number and the body
// after the common (next header, length) prefix. The body is kept padded
// to the wire's 8-byte granularity.
type IPv6ExtHeader struct {
	Proto uint8
	Data  []byte
}

func (h *IPv6ExtHeader) size() int { return 2 + len(h.Data) }

// IPv6 is an IPv6 fixed header plus its ordered extension header list.
type IPv6 struct {
	pdu.Base
	TrafficClass uint8
	FlowLabel    uint32
	HopLimit     uint8
	Src          addr.IPv6
	Dst          addr.IPv6

	nextHeader uint8
	ext        []IPv6ExtHeader
}

func NewIPv6(dst, src addr.IPv6) *IPv6 {
	return &IPv6{HopLimit: 64, Dst: dst, Src: src}
}

func ParseIPv6(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	ip := &IPv6{}
	first, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("ipv6: %w", err)
	}
	if first>>28 != 6 {
		return nil, fmt.Errorf("%w: ipv6 version %d", pdu.ErrMalformedPacket, first>>28)
	}
	ip.TrafficClass = uint8(first >> 20)
	ip.FlowLabel = first & 0xfffff
	payloadLen, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("ipv6: %w", err)
	}
	if ip.nextHeader, err = r.U8(); err != nil {
		return nil, fmt.Errorf("ipv6: %w", err)
	}
	if ip.HopLimit, err = r.U8(); err != nil {
		return nil, fmt.Errorf("ipv6: %w", err)
	}
	if err = r.Array(ip.Src[:]); err != nil {
		return nil, fmt.Errorf("ipv6: %w", err)
	}
	if err = r.Array(ip.Dst[:]); err != nil {
		return nil, fmt.Errorf("ipv6: %w", err)
	}
	payload := r.Rest()
	if int(payloadLen) < len(payload) {
		payload = payload[:payloadLen]
	}

	// absorb extension headers into the layer
	pr := wire.NewReader(payload)
	next := ip.nextHeader
	for isIPv6ExtHeader(next) {
		this := next
		if next, err = pr.U8(); err != nil {
			return nil, fmt.Errorf("ipv6 extension: %w", err)
		}
		units, err := pr.U8()
		if err != nil {
			return nil, fmt.Errorf("ipv6 extension: %w", err)
		}
		body, err := pr.Bytes(int(units)*8 + 6)
		if err != nil {
			return nil, fmt.Errorf("ipv6 extension: %w", err)
		}
		cp := make([]byte, len(body))
		copy(cp, body)
		ip.ext = append(ip.ext, IPv6ExtHeader{Proto: this, Data: cp})
	}
	inner, err := pdu.FromIPProto(next, pr.Rest())
	if err != nil {
		return nil, err
	}
	if inner != nil {
		pdu.Chain(ip, inner)
	}
	return ip, nil
}

func (ip *IPv6) Type() pdu.Type { return pdu.TypeIPv6 }

func (ip *IPv6) NextHeader() uint8 { return ip.nextHeader }

// AddExtHeader appends an extension header; body must already be 8-byte
// aligned minus the 2-byte prefix.
func (ip *IPv6) AddExtHeader(proto uint8, body []byte) {
	cp := make([]byte, len(body))
	copy(cp, body)
	ip.ext = append(ip.ext, IPv6ExtHeader{Proto: proto, Data: cp})
}

// AddHopByHopOptions builds a hop-by-hop header from raw TLV bytes,
// PadN-padding the block to the 8-byte wire unit.
func (ip *IPv6) AddHopByHopOptions(tlvs []byte) {
	body := make([]byte, 0, len(tlvs)+8)
	body = append(body, tlvs...)
	// the 2-byte prefix plus body must total a multiple of 8
	for (2+len(body))%8 != 0 {
		pad := 8 - (2+len(body))%8
		if pad == 1 {
			body = append(body, IPv6OptPad1)
		} else {
			body = append(body, IPv6OptPadN, byte(pad-2))
			for i := 0; i < pad-2; i++ {
				body = append(body, 0)
			}
		}
	}
	ip.ext = append(ip.ext, IPv6ExtHeader{Proto: pdu.IPProtoHopByHop, Data: body})
}

func (ip *IPv6) ExtHeaders() []IPv6ExtHeader { return ip.ext }

func (ip *IPv6) extSize() int {
	n := 0
	for i := range ip.ext {
		n += ip.ext[i].size()
	}
	return n
}

func (ip *IPv6) HeaderSize() int { return 40 + ip.extSize() }

func (ip *IPv6) UpdateContext(ctx *pdu.SerializeContext) {
	ctx.Src = ip.Src[:]
	ctx.Dst = ip.Dst[:]
	ctx.IsIPv6 = true
	ctx.HasNetworkLayer = true
}

func (ip *IPv6) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	innerProto := uint8(59) // no next header
	if inner := ip.Inner(); inner != nil {
		if proto, ok := pdu.IPProtoOf(inner.Type()); ok {
			innerProto = proto
		}
	}
	// chain the next-header fields through the extension list
	if len(ip.ext) > 0 {
		ip.nextHeader = ip.ext[0].Proto
	} else {
		ip.nextHeader = innerProto
	}
	w := wire.NewWriter(buf)
	if err := w.U32(6<<28 | uint32(ip.TrafficClass)<<20 | ip.FlowLabel&0xfffff); err != nil {
		return err
	}
	if err := w.U16(uint16(len(buf) - 40)); err != nil {
		return err
	}
	if err := w.U8(ip.nextHeader); err != nil {
		return err
	}
	if err := w.U8(ip.HopLimit); err != nil {
		return err
	}
	if err := w.Bytes(ip.Src[:]); err != nil {
		return err
	}
	if err := w.Bytes(ip.Dst[:]); err != nil {
		return err
	}
	for i := range ip.ext {
		next := innerProto
		if i+1 < len(ip.ext) {
			next = ip.ext[i+1].Proto
		}
		if err := w.U8(next); err != nil {
			return err
		}
		// length is in 8-byte units, not counting the first 8
		if err := w.U8(uint8((2+len(ip.ext[i].Data))/8 - 1)); err != nil {
			return err
		}
		if err := w.Bytes(ip.ext[i].Data); err != nil {
			return err
		}
	}
	return nil
}

func (ip *IPv6) MatchesResponse(resp []byte) bool {
	if len(resp) < 40 {
		return false
	}
	var src, dst addr.IPv6
	copy(src[:], resp[8:24])
	copy(dst[:], resp[24:40])
	if src != ip.Dst || dst != ip.Src {
		return false
	}
	if inner := ip.Inner(); inner != nil {
		return inner.MatchesResponse(resp[40+ip.extSize():])
	}
	return true
}

func (ip *IPv6) Clone() pdu.PDU {
	c := *ip
	c.ResetLinks()
	if ip.ext != nil {
		c.ext = make([]IPv6ExtHeader, len(ip.ext))
		for i, e := range ip.ext {
			e.Data = append([]byte(nil), e.Data...)
			c.ext[i] = e
		}
	}
	if inner := ip.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
