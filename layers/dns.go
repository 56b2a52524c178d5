package layers

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// DNS record types.
const (
	DNSTypeA     uint16 = 1
	DNSTypeNS    uint16 = 2
	DNSTypeCNAME uint16 = 5
	DNSTypeSOA   uint16 = 6
	DNSTypePTR   uint16 = 12
	DNSTypeMX    uint16 = 15
	DNSTypeTXT   uint16 = 16
	DNSTypeAAAA  uint16 = 28
)

// DNS class.
const DNSClassIN uint16 = 1

// Values of the QR header bit.
const (
	DNSQueryMsg    uint8 = 0
	DNSResponseMsg uint8 = 1
)

// DNS header flag masks.
const (
	dnsFlagQR uint16 = 1 << 15
	dnsFlagAA uint16 = 1 << 10
	dnsFlagTC uint16 = 1 << 9
	dnsFlagRD uint16 = 1 << 8
	dnsFlagRA uint16 = 1 << 7
)

// DNSQuery is one entry of the question section.
type DNSQuery struct {
	Name   string
	QType  uint16
	QClass uint16
}

// DNSResource is one resource record. Data holds the RDATA in
// uncompressed wire form; typed accessors decode it per record type.
type DNSResource struct {
	Name   string
	RType  uint16
	RClass uint16
	TTL    uint32
	Data   []byte
}

// DNSSOA is the structured payload of an SOA record.
type DNSSOA struct {
	MName      string
	RName      string
	Serial     uint32
	Refresh    uint32
	Retry      uint32
	Expire     uint32
	MinimumTTL uint32
}

// DNS is a domain name system message.
type DNS struct {
	pdu.Base
	ID uint16

	flags      uint16
	queries    []DNSQuery
	answers    []DNSResource
	authority  []DNSResource
	additional []DNSResource
}

func NewDNS() *DNS {
	return &DNS{}
}

func ParseDNS(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	d := &DNS{}
	var err error
	if d.ID, err = r.U16(); err != nil {
		return nil, fmt.Errorf("dns: %w", err)
	}
	if d.flags, err = r.U16(); err != nil {
		return nil, fmt.Errorf("dns: %w", err)
	}
	var counts [4]uint16
	for i := range counts {
		if counts[i], err = r.U16(); err != nil {
			return nil, fmt.Errorf("dns: %w", err)
		}
	}
	for i := 0; i < int(counts[0]); i++ {
		var q DNSQuery
		if q.Name, err = decodeDomainName(data, r); err != nil {
			return nil, err
		}
		if q.QType, err = r.U16(); err != nil {
			return nil, fmt.Errorf("dns query: %w", err)
		}
		if q.QClass, err = r.U16(); err != nil {
			return nil, fmt.Errorf("dns query: %w", err)
		}
		d.queries = append(d.queries, q)
	}
	sections := []*[]DNSResource{&d.answers, &d.authority, &d.additional}
	for s, section := range sections {
		for i := 0; i < int(counts[s+1]); i++ {
			rec, err := parseDNSResource(data, r)
			if err != nil {
				return nil, err
			}
			*section = append(*section, rec)
		}
	}
	return d, nil
}

func parseDNSResource(msg []byte, r *wire.Reader) (DNSResource, error) {
	var rec DNSResource
	var err error
	if rec.Name, err = decodeDomainName(msg, r); err != nil {
		return rec, err
	}
	if rec.RType, err = r.U16(); err != nil {
		return rec, fmt.Errorf("dns record: %w", err)
	}
	if rec.RClass, err = r.U16(); err != nil {
		return rec, fmt.Errorf("dns record: %w", err)
	}
	if rec.TTL, err = r.U32(); err != nil {
		return rec, fmt.Errorf("dns record: %w", err)
	}
	rdLen, err := r.U16()
	if err != nil {
		return rec, fmt.Errorf("dns record: %w", err)
	}
	rdStart := r.Pos()
	rd, err := r.Bytes(int(rdLen))
	if err != nil {
		return rec, fmt.Errorf("dns rdata: %w", err)
	}
	// normalize name-bearing RDATA so pointers do not escape the record
	switch rec.RType {
	case DNSTypeCNAME, DNSTypeNS, DNSTypePTR:
		name, err := decodeDomainName(msg, wire.NewReader(msg[rdStart:rdStart+int(rdLen)]))
		if err != nil {
			return rec, err
		}
		rec.Data = encodeDomainName(name)
	case DNSTypeMX:
		if len(rd) < 2 {
			return rec, fmt.Errorf("%w: mx rdata", pdu.ErrMalformedPacket)
		}
		name, err := decodeDomainName(msg, wire.NewReader(msg[rdStart+2:rdStart+int(rdLen)]))
		if err != nil {
			return rec, err
		}
		rec.Data = append(append([]byte(nil), rd[:2]...), encodeDomainName(name)...)
	case DNSTypeSOA:
		sub := wire.NewReader(msg[rdStart : rdStart+int(rdLen)])
		mname, err := decodeDomainName(msg, sub)
		if err != nil {
			return rec, err
		}
		rname, err := decodeDomainName(msg, sub)
		if err != nil {
			return rec, err
		}
		tail, err := sub.Bytes(20)
		if err != nil {
			return rec, fmt.Errorf("%w: soa rdata", pdu.ErrMalformedPacket)
		}
		data := append(encodeDomainName(mname), encodeDomainName(rname)...)
		rec.Data = append(data, tail...)
	default:
		rec.Data = append([]byte(nil), rd...)
	}
	return rec, nil
}

// decodeDomainName reads a possibly compressed name. msg is the whole
// message, for resolving pointer offsets.
func decodeDomainName(msg []byte, r *wire.Reader) (string, error) {
	var labels []string
	jumps := 0
	cur := r
	for {
		length, err := cur.U8()
		if err != nil {
			return "", fmt.Errorf("%w: truncated label", pdu.ErrInvalidDomain)
		}
		switch {
		case length == 0:
			return strings.Join(labels, "."), nil
		case length&0xc0 == 0xc0:
			lo, err := cur.U8()
			if err != nil {
				return "", fmt.Errorf("%w: truncated pointer", pdu.ErrInvalidDomain)
			}
			offset := int(length&0x3f)<<8 | int(lo)
			if offset >= len(msg) {
				return "", fmt.Errorf("%w: pointer offset %d", pdu.ErrInvalidDomain, offset)
			}
			jumps++
			if jumps > 32 {
				return "", fmt.Errorf("%w: pointer loop", pdu.ErrInvalidDomain)
			}
			cur = wire.NewReader(msg[offset:])
		case length&0xc0 != 0:
			return "", fmt.Errorf("%w: label length 0x%02x", pdu.ErrInvalidDomain, length)
		default:
			label, err := cur.Bytes(int(length))
			if err != nil {
				return "", fmt.Errorf("%w: truncated label", pdu.ErrInvalidDomain)
			}
			labels = append(labels, string(label))
		}
	}
}

// encodeDomainName produces the uncompressed wire form.
func encodeDomainName(name string) []byte {
	out := make([]byte, 0, len(name)+2)
	if name != "" {
		for _, label := range strings.Split(strings.TrimSuffix(name, "."), ".") {
			out = append(out, byte(len(label)))
			out = append(out, label...)
		}
	}
	return append(out, 0)
}

func (d *DNS) Type() pdu.Type { return pdu.TypeDNS }

// MessageType is the QR bit: query or response.
func (d *DNS) MessageType() uint8 {
	if d.flags&dnsFlagQR != 0 {
		return DNSResponseMsg
	}
	return DNSQueryMsg
}

func (d *DNS) SetMessageType(t uint8) {
	if t == DNSResponseMsg {
		d.flags |= dnsFlagQR
	} else {
		d.flags &^= dnsFlagQR
	}
}

func (d *DNS) Opcode() uint8     { return uint8(d.flags >> 11 & 0x0f) }
func (d *DNS) RCode() uint8      { return uint8(d.flags & 0x0f) }
func (d *DNS) Flags() uint16     { return d.flags }
func (d *DNS) SetFlags(f uint16) { d.flags = f }

func (d *DNS) AuthoritativeAnswer() bool { return d.flags&dnsFlagAA != 0 }
func (d *DNS) Truncated() bool           { return d.flags&dnsFlagTC != 0 }
func (d *DNS) RecursionDesired() bool    { return d.flags&dnsFlagRD != 0 }
func (d *DNS) RecursionAvailable() bool  { return d.flags&dnsFlagRA != 0 }

func (d *DNS) QuestionsCount() int  { return len(d.queries) }
func (d *DNS) AnswersCount() int    { return len(d.answers) }
func (d *DNS) AuthorityCount() int  { return len(d.authority) }
func (d *DNS) AdditionalCount() int { return len(d.additional) }

func (d *DNS) Queries() []DNSQuery       { return d.queries }
func (d *DNS) Answers() []DNSResource    { return d.answers }
func (d *DNS) Authority() []DNSResource  { return d.authority }
func (d *DNS) Additional() []DNSResource { return d.additional }

func (d *DNS) AddQuery(q DNSQuery) { d.queries = append(d.queries, q) }

func (d *DNS) AddAnswer(r DNSResource)     { d.answers = append(d.answers, r) }
func (d *DNS) AddAuthority(r DNSResource)  { d.authority = append(d.authority, r) }
func (d *DNS) AddAdditional(r DNSResource) { d.additional = append(d.additional, r) }

// NewDNSAddressRecord builds an A or AAAA record from address text.
func NewDNSAddressRecord(name, address string, ttl uint32) (DNSResource, error) {
	if v4, err := addr.ParseIPv4(address); err == nil && strings.Contains(address, ".") {
		return DNSResource{Name: name, RType: DNSTypeA, RClass: DNSClassIN, TTL: ttl, Data: v4[:]}, nil
	}
	v6, err := addr.ParseIPv6(address)
	if err != nil {
		return DNSResource{}, err
	}
	return DNSResource{Name: name, RType: DNSTypeAAAA, RClass: DNSClassIN, TTL: ttl, Data: v6[:]}, nil
}

// AddressData decodes A/AAAA RDATA to address text.
func (r *DNSResource) AddressData() (string, error) {
	switch r.RType {
	case DNSTypeA:
		if len(r.Data) != 4 {
			return "", fmt.Errorf("%w: a rdata %d bytes", pdu.ErrMalformedPacket, len(r.Data))
		}
		var a addr.IPv4
		copy(a[:], r.Data)
		return a.String(), nil
	case DNSTypeAAAA:
		if len(r.Data) != 16 {
			return "", fmt.Errorf("%w: aaaa rdata %d bytes", pdu.ErrMalformedPacket, len(r.Data))
		}
		var a addr.IPv6
		copy(a[:], r.Data)
		return a.String(), nil
	}
	return "", fmt.Errorf("%w: address data on type %d", pdu.ErrFieldNotPresent, r.RType)
}

// DomainData decodes CNAME/NS/PTR RDATA.
func (r *DNSResource) DomainData() (string, error) {
	switch r.RType {
	case DNSTypeCNAME, DNSTypeNS, DNSTypePTR:
		return decodeDomainName(r.Data, wire.NewReader(r.Data))
	}
	return "", fmt.Errorf("%w: domain data on type %d", pdu.ErrFieldNotPresent, r.RType)
}

// MXData decodes the preference and exchange of an MX record.
func (r *DNSResource) MXData() (uint16, string, error) {
	if r.RType != DNSTypeMX || len(r.Data) < 3 {
		return 0, "", fmt.Errorf("%w: mx data on type %d", pdu.ErrFieldNotPresent, r.RType)
	}
	name, err := decodeDomainName(r.Data[2:], wire.NewReader(r.Data[2:]))
	if err != nil {
		return 0, "", err
	}
	return binary.BigEndian.Uint16(r.Data[:2]), name, nil
}

// SOAData decodes the seven-field SOA payload.
func (r *DNSResource) SOAData() (DNSSOA, error) {
	var soa DNSSOA
	if r.RType != DNSTypeSOA {
		return soa, fmt.Errorf("%w: soa data on type %d", pdu.ErrFieldNotPresent, r.RType)
	}
	sub := wire.NewReader(r.Data)
	var err error
	if soa.MName, err = decodeDomainName(r.Data, sub); err != nil {
		return soa, err
	}
	if soa.RName, err = decodeDomainName(r.Data, sub); err != nil {
		return soa, err
	}
	for _, f := range []*uint32{&soa.Serial, &soa.Refresh, &soa.Retry, &soa.Expire, &soa.MinimumTTL} {
		if *f, err = sub.U32(); err != nil {
			return soa, fmt.Errorf("%w: soa rdata", pdu.ErrMalformedPacket)
		}
	}
	return soa, nil
}

func (d *DNS) queriesSize() int {
	n := 0
	for i := range d.queries {
		n += len(encodeDomainName(d.queries[i].Name)) + 4
	}
	return n
}

func resourcesSize(rs []DNSResource) int {
	n := 0
	for i := range rs {
		n += len(encodeDomainName(rs[i].Name)) + 10 + len(rs[i].Data)
	}
	return n
}

func (d *DNS) HeaderSize() int {
	return 12 + d.queriesSize() + resourcesSize(d.answers) +
		resourcesSize(d.authority) + resourcesSize(d.additional)
}

func (d *DNS) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	w := wire.NewWriter(buf)
	if err := w.U16(d.ID); err != nil {
		return err
	}
	if err := w.U16(d.flags); err != nil {
		return err
	}
	for _, c := range []int{len(d.queries), len(d.answers), len(d.authority), len(d.additional)} {
		if err := w.U16(uint16(c)); err != nil {
			return err
		}
	}
	for i := range d.queries {
		q := &d.queries[i]
		if err := w.Bytes(encodeDomainName(q.Name)); err != nil {
			return err
		}
		if err := w.U16(q.QType); err != nil {
			return err
		}
		if err := w.U16(q.QClass); err != nil {
			return err
		}
	}
	for _, section := range [][]DNSResource{d.answers, d.authority, d.additional} {
		for i := range section {
			rec := &section[i]
			if err := w.Bytes(encodeDomainName(rec.Name)); err != nil {
				return err
			}
			if err := w.U16(rec.RType); err != nil {
				return err
			}
			if err := w.U16(rec.RClass); err != nil {
				return err
			}
			if err := w.U32(rec.TTL); err != nil {
				return err
			}
			if err := w.U16(uint16(len(rec.Data))); err != nil {
				return err
			}
			if err := w.Bytes(rec.Data); err != nil {
				return err
			}
		}
	}
	return nil
}

// MatchesResponse pairs messages by id, requiring the response bit.
func (d *DNS) MatchesResponse(resp []byte) bool {
	if len(resp) < 12 {
		return false
	}
	return binary.BigEndian.Uint16(resp[0:2]) == d.ID && resp[2]&0x80 != 0
}

func (d *DNS) Clone() pdu.PDU {
	c := *d
	c.ResetLinks()
	c.queries = append([]DNSQuery(nil), d.queries...)
	cloneSection := func(rs []DNSResource) []DNSResource {
		out := make([]DNSResource, len(rs))
		for i, r := range rs {
			r.Data = append([]byte(nil), r.Data...)
			out[i] = r
		}
		return out
	}
	c.answers = cloneSection(d.answers)
	c.authority = cloneSection(d.authority)
	c.additional = cloneSection(d.additional)
	if inner := d.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
