package layers

import (
	"encoding/binary"
	"fmt"

	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// ICMP message types.
const (
	ICMPEchoReply      uint8 = 0
	ICMPDestUnreach    uint8 = 3
	ICMPSourceQuench   uint8 = 4
	ICMPRedirect       uint8 = 5
	ICMPEchoRequest    uint8 = 8
	ICMPTimeExceeded   uint8 = 11
	ICMPParamProblem   uint8 = 12
	ICMPTimestampReq   uint8 = 13
	ICMPTimestampReply uint8 = 14
)

// ICMP is an IPv4 ICMP header. The second header word is a union whose
// meaning depends on the message type; it is exposed through typed
// accessors and stored raw.
type ICMP struct {
	pdu.Base
	MsgType uint8
	Code    uint8

	checksum uint16
	union    [4]byte
	// number of 32-bit words of original datagram, non-zero only when an
	// extension structure follows (RFC 4884)
	length     uint8
	Extensions *ICMPExtensions
}

func NewICMP(msgType uint8) *ICMP {
	return &ICMP{MsgType: msgType}
}

// NewICMPEcho builds an echo request with the given id and sequence.
func NewICMPEcho(id, seq uint16) *ICMP {
	i := NewICMP(ICMPEchoRequest)
	i.SetID(id)
	i.SetSequence(seq)
	return i
}

func ParseICMP(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	i := &ICMP{}
	var err error
	if i.MsgType, err = r.U8(); err != nil {
		return nil, fmt.Errorf("icmp: %w", err)
	}
	if i.Code, err = r.U8(); err != nil {
		return nil, fmt.Errorf("icmp: %w", err)
	}
	if i.checksum, err = r.U16(); err != nil {
		return nil, fmt.Errorf("icmp: %w", err)
	}
	if err = r.Array(i.union[:]); err != nil {
		return nil, fmt.Errorf("icmp: %w", err)
	}
	payload := r.Rest()
	if i.hasExtensions() {
		i.length = i.union[1]
		words := int(i.length) * 4
		if words > 0 && words <= len(payload) {
			if ext, err := ParseICMPExtensions(payload[words:]); err == nil {
				i.Extensions = ext
				payload = payload[:words]
			}
		}
	}
	if len(payload) > 0 {
		pdu.Chain(i, pdu.NewRaw(payload))
	}
	return i, nil
}

// hasExtensions reports whether this message type may carry an RFC 4884
// extension structure.
func (i *ICMP) hasExtensions() bool {
	switch i.MsgType {
	case ICMPDestUnreach, ICMPTimeExceeded, ICMPParamProblem:
		return true
	}
	return false
}

func (i *ICMP) Type() pdu.Type { return pdu.TypeICMP }

func (i *ICMP) Checksum() uint16 { return i.checksum }

// ID and Sequence view the union word for echo messages.
func (i *ICMP) ID() uint16       { return binary.BigEndian.Uint16(i.union[0:2]) }
func (i *ICMP) Sequence() uint16 { return binary.BigEndian.Uint16(i.union[2:4]) }

func (i *ICMP) SetID(v uint16)       { binary.BigEndian.PutUint16(i.union[0:2], v) }
func (i *ICMP) SetSequence(v uint16) { binary.BigEndian.PutUint16(i.union[2:4], v) }

// Gateway views the union word for redirect messages.
func (i *ICMP) Gateway() uint32     { return binary.BigEndian.Uint32(i.union[:]) }
func (i *ICMP) SetGateway(v uint32) { binary.BigEndian.PutUint32(i.union[:], v) }

// MTU views the low half of the union word for fragmentation-needed
// messages.
func (i *ICMP) MTU() uint16     { return binary.BigEndian.Uint16(i.union[2:4]) }
func (i *ICMP) SetMTU(v uint16) { binary.BigEndian.PutUint16(i.union[2:4], v) }

// Pointer views the first union byte for parameter-problem messages.
func (i *ICMP) Pointer() uint8     { return i.union[0] }
func (i *ICMP) SetPointer(v uint8) { i.union[0] = v }

func (i *ICMP) HeaderSize() int { return 8 }

func (i *ICMP) TrailerSize() int {
	if i.Extensions == nil {
		return 0
	}
	return i.Extensions.Size()
}

func (i *ICMP) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	if i.Extensions != nil && i.hasExtensions() {
		// the length field records the original datagram in 32-bit words
		i.length = uint8(pdu.Size(i.Inner()) / 4)
		i.union[1] = i.length
	}
	w := wire.NewWriter(buf)
	if err := w.U8(i.MsgType); err != nil {
		return err
	}
	if err := w.U8(i.Code); err != nil {
		return err
	}
	if err := w.U16(0); err != nil { // checksum, fixed up below
		return err
	}
	if err := w.Bytes(i.union[:]); err != nil {
		return err
	}
	if i.Extensions != nil {
		ts := i.Extensions.Size()
		if err := i.Extensions.WriteTo(buf[len(buf)-ts:]); err != nil {
			return err
		}
	}
	i.checksum = wire.InternetChecksum(buf)
	binary.BigEndian.PutUint16(buf[2:4], i.checksum)
	return nil
}

// MatchesResponse pairs echo requests with replies sharing id and
// sequence.
func (i *ICMP) MatchesResponse(resp []byte) bool {
	if len(resp) < 8 {
		return false
	}
	if i.MsgType == ICMPEchoRequest && resp[0] == ICMPEchoReply {
		return binary.BigEndian.Uint16(resp[4:6]) == i.ID() &&
			binary.BigEndian.Uint16(resp[6:8]) == i.Sequence()
	}
	return false
}

func (i *ICMP) Clone() pdu.PDU {
	c := *i
	c.ResetLinks()
	if i.Extensions != nil {
		ext := &ICMPExtensions{Version: i.Extensions.Version}
		for _, o := range i.Extensions.Objects {
			p := make([]byte, len(o.Payload))
			copy(p, o.Payload)
			ext.Objects = append(ext.Objects, ICMPExtensionObject{Class: o.Class, ObjType: o.ObjType, Payload: p})
		}
		c.Extensions = ext
	}
	if inner := i.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
