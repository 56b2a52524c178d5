package layers

import (
	"encoding/binary"
	"fmt"

	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// UDP is a user datagram header. Fixed 8 bytes; the length field covers
// the header plus payload.
type UDP struct {
	pdu.Base
	SrcPort uint16
	DstPort uint16

	length   uint16
	checksum uint16
}

func NewUDP(dport, sport uint16) *UDP {
	return &UDP{SrcPort: sport, DstPort: dport}
}

func ParseUDP(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	u := &UDP{}
	var err error
	if u.SrcPort, err = r.U16(); err != nil {
		return nil, fmt.Errorf("udp: %w", err)
	}
	if u.DstPort, err = r.U16(); err != nil {
		return nil, fmt.Errorf("udp: %w", err)
	}
	if u.length, err = r.U16(); err != nil {
		return nil, fmt.Errorf("udp: %w", err)
	}
	if u.checksum, err = r.U16(); err != nil {
		return nil, fmt.Errorf("udp: %w", err)
	}
	if r.Remaining() > 0 {
		payload := r.Rest()
		var inner pdu.PDU
		// BootP/DHCP and DNS ride on well-known ports
		switch {
		case u.SrcPort == 67 || u.DstPort == 67 || u.SrcPort == 68 || u.DstPort == 68:
			inner, err = ParseDHCP(payload)
		case u.SrcPort == 53 || u.DstPort == 53:
			inner, err = ParseDNS(payload)
		case u.SrcPort == 546 || u.DstPort == 546 || u.SrcPort == 547 || u.DstPort == 547:
			inner, err = ParseDHCPv6(payload)
		default:
			inner = pdu.NewRaw(payload)
		}
		if err != nil {
			return nil, err
		}
		pdu.Chain(u, inner)
	}
	return u, nil
}

func (u *UDP) Type() pdu.Type { return pdu.TypeUDP }

func (u *UDP) Length() uint16   { return u.length }
func (u *UDP) Checksum() uint16 { return u.checksum }

func (u *UDP) HeaderSize() int { return 8 }

func (u *UDP) WriteHeader(buf []byte, ctx *pdu.SerializeContext) error {
	u.length = uint16(len(buf))
	w := wire.NewWriter(buf)
	if err := w.U16(u.SrcPort); err != nil {
		return err
	}
	if err := w.U16(u.DstPort); err != nil {
		return err
	}
	if err := w.U16(u.length); err != nil {
		return err
	}
	if err := w.U16(0); err != nil { // checksum, fixed up below
		return err
	}
	if ctx.HasNetworkLayer {
		sum := transportChecksum(buf, ctx, pdu.IPProtoUDP)
		// a computed zero means "no checksum" on the wire; send all-ones
		if sum == 0 {
			sum = 0xffff
		}
		u.checksum = sum
		binary.BigEndian.PutUint16(buf[6:8], sum)
	}
	return nil
}

func (u *UDP) MatchesResponse(resp []byte) bool {
	if len(resp) < 8 {
		return false
	}
	sport := binary.BigEndian.Uint16(resp[0:2])
	dport := binary.BigEndian.Uint16(resp[2:4])
	return sport == u.DstPort && dport == u.SrcPort
}

func (u *UDP) Clone() pdu.PDU {
	c := *u
	c.ResetLinks()
	if inner := u.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
