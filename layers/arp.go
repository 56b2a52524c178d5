package layers

import (
	"encoding/binary"
	"fmt"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// ARP opcodes.
const (
	ARPRequest uint16 = 1
	ARPReply   uint16 = 2
)

// ARP is an address resolution PDU for Ethernet/IPv4.
//
//	0       2       4    5    6       8      14        18     24        28
//	| HWType | Proto |HLen|PLen|  Op   | SndHW | SndProto| TgtHW| TgtProto|
type ARP struct {
	pdu.Base
	HWType    uint16
	ProtoType uint16
	HWLen     uint8
	ProtoLen  uint8
	Opcode    uint16
	SenderHW  addr.MAC
	SenderIP  addr.IPv4
	TargetHW  addr.MAC
	TargetIP  addr.IPv4
}

func NewARP() *ARP {
	return &ARP{HWType: 1, ProtoType: pdu.EtherTypeIP, HWLen: 6, ProtoLen: 4}
}

// NewARPRequest builds a who-has request for target sent from sender.
func NewARPRequest(target, sender addr.IPv4, senderHW addr.MAC) *ARP {
	a := NewARP()
	a.Opcode = ARPRequest
	a.SenderIP = sender
	a.SenderHW = senderHW
	a.TargetIP = target
	return a
}

// NewARPReply builds an is-at reply.
func NewARPReply(target addr.IPv4, targetHW addr.MAC, sender addr.IPv4, senderHW addr.MAC) *ARP {
	a := NewARP()
	a.Opcode = ARPReply
	a.SenderIP = sender
	a.SenderHW = senderHW
	a.TargetIP = target
	a.TargetHW = targetHW
	return a
}

func ParseARP(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	a := &ARP{}
	var err error
	if a.HWType, err = r.U16(); err != nil {
		return nil, fmt.Errorf("arp: %w", err)
	}
	if a.ProtoType, err = r.U16(); err != nil {
		return nil, fmt.Errorf("arp: %w", err)
	}
	if a.HWLen, err = r.U8(); err != nil {
		return nil, fmt.Errorf("arp: %w", err)
	}
	if a.ProtoLen, err = r.U8(); err != nil {
		return nil, fmt.Errorf("arp: %w", err)
	}
	if a.Opcode, err = r.U16(); err != nil {
		return nil, fmt.Errorf("arp: %w", err)
	}
	if err = r.Array(a.SenderHW[:]); err != nil {
		return nil, fmt.Errorf("arp: %w", err)
	}
	if err = r.Array(a.SenderIP[:]); err != nil {
		return nil, fmt.Errorf("arp: %w", err)
	}
	if err = r.Array(a.TargetHW[:]); err != nil {
		return nil, fmt.Errorf("arp: %w", err)
	}
	if err = r.Array(a.TargetIP[:]); err != nil {
		return nil, fmt.Errorf("arp: %w", err)
	}
	if r.Remaining() > 0 {
		pdu.Chain(a, pdu.NewRaw(r.Rest()))
	}
	return a, nil
}

func (a *ARP) Type() pdu.Type { return pdu.TypeARP }

func (a *ARP) HeaderSize() int { return 28 }

func (a *ARP) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	w := wire.NewWriter(buf)
	if err := w.U16(a.HWType); err != nil {
		return err
	}
	if err := w.U16(a.ProtoType); err != nil {
		return err
	}
	if err := w.U8(a.HWLen); err != nil {
		return err
	}
	if err := w.U8(a.ProtoLen); err != nil {
		return err
	}
	if err := w.U16(a.Opcode); err != nil {
		return err
	}
	if err := w.Bytes(a.SenderHW[:]); err != nil {
		return err
	}
	if err := w.Bytes(a.SenderIP[:]); err != nil {
		return err
	}
	if err := w.Bytes(a.TargetHW[:]); err != nil {
		return err
	}
	return w.Bytes(a.TargetIP[:])
}

// MatchesResponse pairs a request with a reply answering for the same
// target address.
func (a *ARP) MatchesResponse(resp []byte) bool {
	if len(resp) < 28 {
		return false
	}
	op := binary.BigEndian.Uint16(resp[6:8])
	if a.Opcode != ARPRequest || op != ARPReply {
		return false
	}
	var sender addr.IPv4
	copy(sender[:], resp[14:18])
	return sender == a.TargetIP
}

func (a *ARP) Clone() pdu.PDU {
	c := *a
	c.ResetLinks()
	if inner := a.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
