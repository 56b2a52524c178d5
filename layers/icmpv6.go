package layers

import (
	"encoding/binary"
	"fmt"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// ICMPv6 message types.
const (
	ICMPv6DestUnreach   uint8 = 1
	ICMPv6PacketTooBig  uint8 = 2
	ICMPv6TimeExceeded  uint8 = 3
	ICMPv6ParamProblem  uint8 = 4
	ICMPv6EchoRequest   uint8 = 128
	ICMPv6EchoReply     uint8 = 129
	ICMPv6MLDQuery      uint8 = 130
	ICMPv6RouterSolicit uint8 = 133
	ICMPv6RouterAdvert  uint8 = 134
	ICMPv6NeighSolicit  uint8 = 135
	ICMPv6NeighAdvert   uint8 = 136
	ICMPv6Redirect      uint8 = 137
	ICMPv6MLDv2Report   uint8 = 143
)

// Neighbor discovery option types.
const (
	NDOptSourceLinkAddr uint16 = 1
	NDOptTargetLinkAddr uint16 = 2
	NDOptPrefixInfo     uint16 = 3
	NDOptRedirectHeader uint16 = 4
	NDOptMTU            uint16 = 5
)

// MLDv2Record is one multicast address record in a version 2 report.
type MLDv2Record struct {
	RecordType uint8
	Multicast  addr.IPv6
	Sources    []addr.IPv6
	AuxData    []byte
}

func (r *MLDv2Record) size() int {
	return 4 + 16 + 16*len(r.Sources) + len(r.AuxData)
}

// MLDv2Query carries the query-specific fields of an MLD version 2
// general or group query: the group address, the packed resv/S/QRV byte,
// QQIC and the source list.
type MLDv2Query struct {
	Group    addr.IPv6
	Suppress bool
	QRV      uint8 // 3 bits
	QQIC     uint8
	Sources  []addr.IPv6
}

func (q *MLDv2Query) size() int {
	return 16 + 4 + 16*len(q.Sources)
}

// ICMPv6 is an ICMP for IPv6 header, covering error messages, echo,
// neighbor discovery and MLD.
type ICMPv6 struct {
	pdu.Base
	MsgType uint8
	Code    uint8

	checksum uint16
	union    [4]byte

	// router advertisement trailer fields
	ReachableTime uint32
	RetransTimer  uint32

	targetAddr addr.IPv6
	destAddr   addr.IPv6

	options pdu.Options

	// MLD bodies, present only for the corresponding message types
	Query   *MLDv2Query
	Records []MLDv2Record
}

func NewICMPv6(msgType uint8) *ICMPv6 {
	return &ICMPv6{MsgType: msgType}
}

func ParseICMPv6(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	i := &ICMPv6{}
	var err error
	if i.MsgType, err = r.U8(); err != nil {
		return nil, fmt.Errorf("icmpv6: %w", err)
	}
	if i.Code, err = r.U8(); err != nil {
		return nil, fmt.Errorf("icmpv6: %w", err)
	}
	if i.checksum, err = r.U16(); err != nil {
		return nil, fmt.Errorf("icmpv6: %w", err)
	}
	if err = r.Array(i.union[:]); err != nil {
		return nil, fmt.Errorf("icmpv6: %w", err)
	}
	switch i.MsgType {
	case ICMPv6RouterAdvert:
		if i.ReachableTime, err = r.U32(); err != nil {
			return nil, fmt.Errorf("icmpv6 ra: %w", err)
		}
		if i.RetransTimer, err = r.U32(); err != nil {
			return nil, fmt.Errorf("icmpv6 ra: %w", err)
		}
	case ICMPv6NeighSolicit, ICMPv6NeighAdvert, ICMPv6Redirect:
		if err = r.Array(i.targetAddr[:]); err != nil {
			return nil, fmt.Errorf("icmpv6 nd: %w", err)
		}
		if i.MsgType == ICMPv6Redirect {
			if err = r.Array(i.destAddr[:]); err != nil {
				return nil, fmt.Errorf("icmpv6 redirect: %w", err)
			}
		}
	case ICMPv6MLDQuery:
		// only version 2 queries carry a body beyond the first word
		if r.Remaining() > 0 {
			if i.Query, err = parseMLDv2Query(r); err != nil {
				return nil, err
			}
		}
	case ICMPv6MLDv2Report:
		if i.Records, err = parseMLDv2Records(r, binary.BigEndian.Uint16(i.union[2:4])); err != nil {
			return nil, err
		}
	}
	if i.hasOptions() {
		if i.options, err = parseNDOptions(r); err != nil {
			return nil, err
		}
	}
	if r.Remaining() > 0 {
		pdu.Chain(i, pdu.NewRaw(r.Rest()))
	}
	return i, nil
}

func parseMLDv2Query(r *wire.Reader) (*MLDv2Query, error) {
	q := &MLDv2Query{}
	if err := r.Array(q.Group[:]); err != nil {
		return nil, fmt.Errorf("mld query: %w", err)
	}
	sqrv, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("mld query: %w", err)
	}
	q.Suppress = sqrv&0x08 != 0
	q.QRV = sqrv & 0x07
	if q.QQIC, err = r.U8(); err != nil {
		return nil, fmt.Errorf("mld query: %w", err)
	}
	n, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("mld query: %w", err)
	}
	for j := 0; j < int(n); j++ {
		var src addr.IPv6
		if err := r.Array(src[:]); err != nil {
			return nil, fmt.Errorf("mld query source %d: %w", j, err)
		}
		q.Sources = append(q.Sources, src)
	}
	return q, nil
}

func parseMLDv2Records(r *wire.Reader, count uint16) ([]MLDv2Record, error) {
	var out []MLDv2Record
	for j := 0; j < int(count); j++ {
		var rec MLDv2Record
		var err error
		if rec.RecordType, err = r.U8(); err != nil {
			return nil, fmt.Errorf("mld record %d: %w", j, err)
		}
		auxLen, err := r.U8()
		if err != nil {
			return nil, fmt.Errorf("mld record %d: %w", j, err)
		}
		nsrc, err := r.U16()
		if err != nil {
			return nil, fmt.Errorf("mld record %d: %w", j, err)
		}
		if err = r.Array(rec.Multicast[:]); err != nil {
			return nil, fmt.Errorf("mld record %d: %w", j, err)
		}
		for s := 0; s < int(nsrc); s++ {
			var src addr.IPv6
			if err := r.Array(src[:]); err != nil {
				return nil, fmt.Errorf("mld record %d source %d: %w", j, s, err)
			}
			rec.Sources = append(rec.Sources, src)
		}
		if auxLen > 0 {
			aux, err := r.Bytes(int(auxLen) * 4)
			if err != nil {
				return nil, fmt.Errorf("mld record %d aux: %w", j, err)
			}
			rec.AuxData = make([]byte, len(aux))
			copy(rec.AuxData, aux)
		}
		out = append(out, rec)
	}
	return out, nil
}

// parseNDOptions reads neighbor discovery options, whose length byte is
// in 8-byte units and covers the type and length bytes.
func parseNDOptions(r *wire.Reader) (pdu.Options, error) {
	var opts pdu.Options
	for r.Remaining() >= 2 {
		typ, _ := r.U8()
		units, _ := r.U8()
		if units == 0 {
			return nil, fmt.Errorf("%w: nd option %d with zero length", pdu.ErrMalformedPacket, typ)
		}
		payload, err := r.Bytes(int(units)*8 - 2)
		if err != nil {
			return nil, fmt.Errorf("nd option %d: %w", typ, err)
		}
		opt, err := pdu.NewOptionWithLength(uint16(typ), int(units), payload)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after nd options", pdu.ErrMalformedPacket, r.Remaining())
	}
	return opts, nil
}

func (i *ICMPv6) Type() pdu.Type { return pdu.TypeICMPv6 }

func (i *ICMPv6) Checksum() uint16 { return i.checksum }

func (i *ICMPv6) ID() uint16       { return binary.BigEndian.Uint16(i.union[0:2]) }
func (i *ICMPv6) Sequence() uint16 { return binary.BigEndian.Uint16(i.union[2:4]) }

func (i *ICMPv6) SetID(v uint16)       { binary.BigEndian.PutUint16(i.union[0:2], v) }
func (i *ICMPv6) SetSequence(v uint16) { binary.BigEndian.PutUint16(i.union[2:4], v) }

// HasTargetAddr reports whether this message type carries a target
// address field.
func (i *ICMPv6) HasTargetAddr() bool {
	switch i.MsgType {
	case ICMPv6NeighSolicit, ICMPv6NeighAdvert, ICMPv6Redirect:
		return true
	}
	return false
}

func (i *ICMPv6) TargetAddr() (addr.IPv6, error) {
	if !i.HasTargetAddr() {
		return addr.IPv6{}, fmt.Errorf("%w: target address on type %d", pdu.ErrFieldNotPresent, i.MsgType)
	}
	return i.targetAddr, nil
}

func (i *ICMPv6) SetTargetAddr(a addr.IPv6) { i.targetAddr = a }

func (i *ICMPv6) DestAddr() (addr.IPv6, error) {
	if i.MsgType != ICMPv6Redirect {
		return addr.IPv6{}, fmt.Errorf("%w: destination address on type %d", pdu.ErrFieldNotPresent, i.MsgType)
	}
	return i.destAddr, nil
}

func (i *ICMPv6) SetDestAddr(a addr.IPv6) { i.destAddr = a }

// hasOptions reports whether the type carries ND options.
func (i *ICMPv6) hasOptions() bool {
	switch i.MsgType {
	case ICMPv6RouterSolicit, ICMPv6RouterAdvert, ICMPv6NeighSolicit, ICMPv6NeighAdvert, ICMPv6Redirect:
		return true
	}
	return false
}

func (i *ICMPv6) AddOption(o pdu.Option) { i.options = append(i.options, o) }

func (i *ICMPv6) SearchOption(tag uint16) (*pdu.Option, error) { return i.options.Search(tag) }

func (i *ICMPv6) RemoveOption(tag uint16) bool { return i.options.Remove(tag) }

func (i *ICMPv6) Options() pdu.Options { return i.options }

func (i *ICMPv6) optionsSize() int {
	n := 0
	for j := range i.options {
		n += (2 + i.options[j].DataSize() + 7) &^ 7
	}
	return n
}

func (i *ICMPv6) HeaderSize() int {
	n := 8
	switch i.MsgType {
	case ICMPv6RouterAdvert:
		n += 8
	case ICMPv6NeighSolicit, ICMPv6NeighAdvert:
		n += 16
	case ICMPv6Redirect:
		n += 32
	case ICMPv6MLDQuery:
		if i.Query != nil {
			n += i.Query.size()
		}
	case ICMPv6MLDv2Report:
		for j := range i.Records {
			n += i.Records[j].size()
		}
	}
	if i.hasOptions() {
		n += i.optionsSize()
	}
	return n
}

func (i *ICMPv6) WriteHeader(buf []byte, ctx *pdu.SerializeContext) error {
	if i.MsgType == ICMPv6MLDv2Report {
		binary.BigEndian.PutUint16(i.union[2:4], uint16(len(i.Records)))
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
	switch i.MsgType {
	case ICMPv6RouterAdvert:
		if err := w.U32(i.ReachableTime); err != nil {
			return err
		}
		if err := w.U32(i.RetransTimer); err != nil {
			return err
		}
	case ICMPv6NeighSolicit, ICMPv6NeighAdvert:
		if err := w.Bytes(i.targetAddr[:]); err != nil {
			return err
		}
	case ICMPv6Redirect:
		if err := w.Bytes(i.targetAddr[:]); err != nil {
			return err
		}
		if err := w.Bytes(i.destAddr[:]); err != nil {
			return err
		}
	case ICMPv6MLDQuery:
		if i.Query != nil {
			if err := writeMLDv2Query(w, i.Query); err != nil {
				return err
			}
		}
	case ICMPv6MLDv2Report:
		for j := range i.Records {
			if err := writeMLDv2Record(w, &i.Records[j]); err != nil {
				return err
			}
		}
	}
	if i.hasOptions() {
		for j := range i.options {
			o := &i.options[j]
			units := (2 + o.DataSize() + 7) / 8
			if err := w.U8(uint8(o.Tag())); err != nil {
				return err
			}
			if err := w.U8(uint8(units)); err != nil {
				return err
			}
			if err := w.Bytes(o.Data()); err != nil {
				return err
			}
			if pad := units*8 - 2 - o.DataSize(); pad > 0 {
				if err := w.Fill(pad, 0); err != nil {
					return err
				}
			}
		}
	}
	if ctx.HasNetworkLayer && ctx.IsIPv6 {
		i.checksum = transportChecksum(buf, ctx, pdu.IPProtoICMPv6)
		binary.BigEndian.PutUint16(buf[2:4], i.checksum)
	}
	return nil
}

func writeMLDv2Query(w *wire.Writer, q *MLDv2Query) error {
	if err := w.Bytes(q.Group[:]); err != nil {
		return err
	}
	sqrv := q.QRV & 0x07
	if q.Suppress {
		sqrv |= 0x08
	}
	if err := w.U8(sqrv); err != nil {
		return err
	}
	if err := w.U8(q.QQIC); err != nil {
		return err
	}
	if err := w.U16(uint16(len(q.Sources))); err != nil {
		return err
	}
	for _, s := range q.Sources {
		if err := w.Bytes(s[:]); err != nil {
			return err
		}
	}
	return nil
}

func writeMLDv2Record(w *wire.Writer, rec *MLDv2Record) error {
	if err := w.U8(rec.RecordType); err != nil {
		return err
	}
	if err := w.U8(uint8(len(rec.AuxData) / 4)); err != nil {
		return err
	}
	if err := w.U16(uint16(len(rec.Sources))); err != nil {
		return err
	}
	if err := w.Bytes(rec.Multicast[:]); err != nil {
		return err
	}
	for _, s := range rec.Sources {
		if err := w.Bytes(s[:]); err != nil {
			return err
		}
	}
	return w.Bytes(rec.AuxData)
}

func (i *ICMPv6) MatchesResponse(resp []byte) bool {
	if len(resp) < 8 {
		return false
	}
	if i.MsgType == ICMPv6EchoRequest && resp[0] == ICMPv6EchoReply {
		return binary.BigEndian.Uint16(resp[4:6]) == i.ID() &&
			binary.BigEndian.Uint16(resp[6:8]) == i.Sequence()
	}
	return false
}

func (i *ICMPv6) Clone() pdu.PDU {
	c := *i
	c.ResetLinks()
	c.options = i.options.Clone()
	if i.Query != nil {
		q := *i.Query
		q.Sources = append([]addr.IPv6(nil), i.Query.Sources...)
		c.Query = &q
	}
	if i.Records != nil {
		c.Records = make([]MLDv2Record, len(i.Records))
		for j, rec := range i.Records {
			rec.Sources = append([]addr.IPv6(nil), rec.Sources...)
			rec.AuxData = append([]byte(nil), rec.AuxData...)
			c.Records[j] = rec
		}
	}
	if inner := i.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
