// Package layers holds the concrete protocol implementations. Every layer
// parses itself through a wire.Reader, hands the remaining bytes to the
// pdu registries to build its inner PDU, and serializes through the
// inner-first walk in package pdu.
package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// minimum Ethernet frame size excluding the FCS
const ethernetMinFrame = 60

// EthernetII is a DIX Ethernet frame.
//
//	0              6             12       14
//	.----------------------------------------.
//	|   Dst MAC    |   Src MAC    | EtherType|
//	`----------------------------------------'
type EthernetII struct {
	pdu.Base
	Dst addr.MAC
	Src addr.MAC

	// etherType as seen on the wire; rewritten from the inner PDU's type
	// during serialization.
	etherType uint16
}

// NewEthernetII builds an empty frame addressed dst <- src.
func NewEthernetII(dst, src addr.MAC) *EthernetII {
	return &EthernetII{Dst: dst, Src: src}
}

// ParseEthernetFrame applies the DIX/802.3 heuristic: a type field below
// 0x0600 is a length, so the frame is 802.3.
func ParseEthernetFrame(data []byte) (pdu.PDU, error) {
	if len(data) >= 14 {
		if et := uint16(data[12])<<8 | uint16(data[13]); et < 0x0600 {
			return ParseDot3(data)
		}
	}
	return ParseEthernetII(data)
}

func ParseEthernetII(data []byte) (*EthernetII, error) {
	r := wire.NewReader(data)
	e := &EthernetII{}
	if err := r.Array(e.Dst[:]); err != nil {
		return nil, fmt.Errorf("ethernet: %w", err)
	}
	if err := r.Array(e.Src[:]); err != nil {
		return nil, fmt.Errorf("ethernet: %w", err)
	}
	et, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("ethernet: %w", err)
	}
	e.etherType = et
	inner, err := pdu.FromEtherType(et, r.Rest())
	if err != nil {
		return nil, err
	}
	if inner != nil {
		pdu.Chain(e, inner)
	}
	return e, nil
}

func (e *EthernetII) Type() pdu.Type { return pdu.TypeEthernetII }

// EtherType returns the type field as parsed or last serialized.
func (e *EthernetII) EtherType() uint16 { return e.etherType }

func (e *EthernetII) HeaderSize() int { return 14 }

// TrailerSize pads the frame to the 60-byte Ethernet minimum.
func (e *EthernetII) TrailerSize() int {
	content := 14 + pdu.Size(e.Inner())
	if content < ethernetMinFrame {
		return ethernetMinFrame - content
	}
	return 0
}

func (e *EthernetII) UpdateContext(ctx *pdu.SerializeContext) {
	ctx.HasLinkLayer = true
}

func (e *EthernetII) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	if inner := e.Inner(); inner != nil {
		if et, ok := pdu.EtherTypeOf(inner.Type()); ok {
			e.etherType = et
		}
	}
	w := wire.NewWriter(buf)
	if err := w.Bytes(e.Dst[:]); err != nil {
		return err
	}
	if err := w.Bytes(e.Src[:]); err != nil {
		return err
	}
	if err := w.U16(e.etherType); err != nil {
		return err
	}
	if ts := e.TrailerSize(); ts > 0 {
		return wire.NewWriter(buf[len(buf)-ts:]).Fill(ts, 0)
	}
	return nil
}

// MatchesResponse pairs frames whose addresses are swapped, or whose
// destination was broadcast.
func (e *EthernetII) MatchesResponse(resp []byte) bool {
	if len(resp) < 14 {
		return false
	}
	var dst, src addr.MAC
	copy(dst[:], resp[0:6])
	copy(src[:], resp[6:12])
	if dst != e.Src {
		return false
	}
	if src != e.Dst && !e.Dst.IsBroadcast() {
		return false
	}
	if inner := e.Inner(); inner != nil {
		return inner.MatchesResponse(resp[14:])
	}
	return true
}

func (e *EthernetII) Clone() pdu.PDU {
	c := *e
	c.ResetLinks()
	if inner := e.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
