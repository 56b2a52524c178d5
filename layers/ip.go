package layers

import (
	"encoding/binary"
	"fmt"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// IPv4 option numbers with no length byte.
const (
	IPOptionEOL uint16 = 0
	IPOptionNOP uint16 = 1
)

// IPv4 fragment flags.
const (
	IPFlagMoreFragments uint16 = 1 << 13
	IPFlagDontFragment  uint16 = 1 << 14
)

// SourceAddressResolver is consulted when an IP PDU is serialized with a
// zero source address and no link-layer parent. The default leaves the
// address zero; callers with routing-table access plug their own in.
var SourceAddressResolver func(dst addr.IPv4) (addr.IPv4, bool)

// IP is an IPv4 header.
type IP struct {
	pdu.Base
	TOS      uint8
	ID       uint16
	FragInfo uint16 // flags in the top 3 bits, offset in the lower 13
	TTL      uint8
	Src      addr.IPv4
	Dst      addr.IPv4

	protocol uint8
	checksum uint16
	options  pdu.Options
}

// NewIP builds a dst <- src header with common defaults.
func NewIP(dst, src addr.IPv4) *IP {
	return &IP{TTL: 128, Dst: dst, Src: src}
}

// NewIPFor parses dotted-quad text addresses.
func NewIPFor(dst, src string) (*IP, error) {
	d, err := addr.ParseIPv4(dst)
	if err != nil {
		return nil, err
	}
	s, err := addr.ParseIPv4(src)
	if err != nil {
		return nil, err
	}
	return NewIP(d, s), nil
}

func ParseIP(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	ip := &IP{}
	verIHL, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("ip: %w", err)
	}
	if verIHL>>4 != 4 {
		return nil, fmt.Errorf("%w: ip version %d", pdu.ErrMalformedPacket, verIHL>>4)
	}
	ihl := int(verIHL&0x0f) * 4
	if ihl < 20 {
		return nil, fmt.Errorf("%w: ihl %d", pdu.ErrMalformedPacket, ihl)
	}
	if ip.TOS, err = r.U8(); err != nil {
		return nil, fmt.Errorf("ip: %w", err)
	}
	totalLen, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("ip: %w", err)
	}
	if ip.ID, err = r.U16(); err != nil {
		return nil, fmt.Errorf("ip: %w", err)
	}
	if ip.FragInfo, err = r.U16(); err != nil {
		return nil, fmt.Errorf("ip: %w", err)
	}
	if ip.TTL, err = r.U8(); err != nil {
		return nil, fmt.Errorf("ip: %w", err)
	}
	if ip.protocol, err = r.U8(); err != nil {
		return nil, fmt.Errorf("ip: %w", err)
	}
	if ip.checksum, err = r.U16(); err != nil {
		return nil, fmt.Errorf("ip: %w", err)
	}
	if err = r.Array(ip.Src[:]); err != nil {
		return nil, fmt.Errorf("ip: %w", err)
	}
	if err = r.Array(ip.Dst[:]); err != nil {
		return nil, fmt.Errorf("ip: %w", err)
	}
	if ihl > 20 {
		opts, err := r.Narrow(ihl - 20)
		if err != nil {
			return nil, fmt.Errorf("ip options: %w", err)
		}
		if ip.options, err = parseIPOptions(opts); err != nil {
			return nil, err
		}
	}

	// the total length field bounds the payload; trailing link-layer pad
	// bytes are not part of this PDU
	payload := r.Rest()
	if int(totalLen) >= ihl && int(totalLen)-ihl < len(payload) {
		payload = payload[:int(totalLen)-ihl]
	}
	// a fragment with a nonzero offset carries a partial transport header;
	// keep it raw
	var inner pdu.PDU
	if ip.IsFragmented() && ip.FragmentOffset() != 0 {
		if len(payload) > 0 {
			inner = pdu.NewRaw(payload)
		}
	} else if inner, err = pdu.FromIPProto(ip.protocol, payload); err != nil {
		return nil, err
	}
	if inner != nil {
		pdu.Chain(ip, inner)
	}
	return ip, nil
}

func parseIPOptions(r *wire.Reader) (pdu.Options, error) {
	var opts pdu.Options
	for r.Remaining() > 0 {
		kind, _ := r.U8()
		switch uint16(kind) {
		case IPOptionEOL:
			return opts, nil
		case IPOptionNOP:
			opt, _ := pdu.NewOption(IPOptionNOP, nil)
			opts = append(opts, opt)
		default:
			length, err := r.U8()
			if err != nil {
				return nil, fmt.Errorf("ip option %d: %w", kind, err)
			}
			if length < 2 {
				return nil, fmt.Errorf("%w: ip option %d length %d", pdu.ErrMalformedPacket, kind, length)
			}
			payload, err := r.Bytes(int(length) - 2)
			if err != nil {
				return nil, fmt.Errorf("ip option %d: %w", kind, err)
			}
			opt, err := pdu.NewOption(uint16(kind), payload)
			if err != nil {
				return nil, err
			}
			opts = append(opts, opt)
		}
	}
	return opts, nil
}

func (ip *IP) Type() pdu.Type { return pdu.TypeIP }

func (ip *IP) Protocol() uint8  { return ip.protocol }
func (ip *IP) Checksum() uint16 { return ip.checksum }

func (ip *IP) IsFragmented() bool {
	return ip.FragInfo&IPFlagMoreFragments != 0 || ip.FragmentOffset() != 0
}

// FragmentOffset is in units of 8 bytes.
func (ip *IP) FragmentOffset() uint16 { return ip.FragInfo & 0x1fff }

func (ip *IP) optionsSize() int {
	n := 0
	for i := range ip.options {
		switch ip.options[i].Tag() {
		case IPOptionEOL, IPOptionNOP:
			n++
		default:
			n += 2 + ip.options[i].DataSize()
		}
	}
	return n
}

// HeaderSize is 20 plus the options, padded to a 4-byte boundary.
func (ip *IP) HeaderSize() int {
	return 20 + (ip.optionsSize()+3)&^3
}

func (ip *IP) AddOption(o pdu.Option) { ip.options = append(ip.options, o) }

func (ip *IP) SearchOption(tag uint16) (*pdu.Option, error) { return ip.options.Search(tag) }

func (ip *IP) RemoveOption(tag uint16) bool { return ip.options.Remove(tag) }

func (ip *IP) Options() pdu.Options { return ip.options }

// PrepareForSerialize fills in a zero source address through the external
// routing resolver, when one is installed.
func (ip *IP) PrepareForSerialize() {
	if ip.Src.IsZero() && SourceAddressResolver != nil {
		if src, ok := SourceAddressResolver(ip.Dst); ok {
			ip.Src = src
		}
	}
}

// UpdateContext publishes the pseudo-header for enclosed transports.
func (ip *IP) UpdateContext(ctx *pdu.SerializeContext) {
	ctx.Src = ip.Src[:]
	ctx.Dst = ip.Dst[:]
	ctx.IsIPv6 = false
	ctx.HasNetworkLayer = true
}

func (ip *IP) WriteHeader(buf []byte, ctx *pdu.SerializeContext) error {
	if inner := ip.Inner(); inner != nil {
		if proto, ok := pdu.IPProtoOf(inner.Type()); ok {
			ip.protocol = proto
		}
	}
	hs := ip.HeaderSize()
	w := wire.NewWriter(buf)
	if err := w.U8(0x40 | uint8(hs/4)); err != nil {
		return err
	}
	if err := w.U8(ip.TOS); err != nil {
		return err
	}
	if err := w.U16(uint16(len(buf))); err != nil {
		return err
	}
	if err := w.U16(ip.ID); err != nil {
		return err
	}
	if err := w.U16(ip.FragInfo); err != nil {
		return err
	}
	if err := w.U8(ip.TTL); err != nil {
		return err
	}
	if err := w.U8(ip.protocol); err != nil {
		return err
	}
	if err := w.U16(0); err != nil { // checksum, fixed up below
		return err
	}
	if err := w.Bytes(ip.Src[:]); err != nil {
		return err
	}
	if err := w.Bytes(ip.Dst[:]); err != nil {
		return err
	}
	if err := writeIPOptions(w, ip.options, hs-20); err != nil {
		return err
	}
	ip.checksum = wire.InternetChecksum(buf[:hs])
	binary.BigEndian.PutUint16(buf[10:12], ip.checksum)
	return nil
}

// writeIPOptions serializes options in the order added and pads the region
// to regionSize with EOL bytes.
func writeIPOptions(w *wire.Writer, opts pdu.Options, regionSize int) error {
	written := 0
	for i := range opts {
		tag := opts[i].Tag()
		if err := w.U8(uint8(tag)); err != nil {
			return err
		}
		written++
		if tag == IPOptionEOL || tag == IPOptionNOP {
			continue
		}
		if err := w.U8(uint8(2 + opts[i].DataSize())); err != nil {
			return err
		}
		if err := w.Bytes(opts[i].Data()); err != nil {
			return err
		}
		written += 1 + opts[i].DataSize()
	}
	if written < regionSize {
		return w.Fill(regionSize-written, byte(IPOptionEOL))
	}
	return nil
}

// MatchesResponse pairs packets whose addresses are mirrored, tolerating a
// request sent from the zero address.
func (ip *IP) MatchesResponse(resp []byte) bool {
	if len(resp) < 20 {
		return false
	}
	var src, dst addr.IPv4
	copy(src[:], resp[12:16])
	copy(dst[:], resp[16:20])
	if src != ip.Dst && !ip.Dst.IsBroadcast() {
		return false
	}
	if dst != ip.Src && !ip.Src.IsZero() {
		return false
	}
	if inner := ip.Inner(); inner != nil {
		ihl := int(resp[0]&0x0f) * 4
		if ihl > len(resp) {
			return false
		}
		return inner.MatchesResponse(resp[ihl:])
	}
	return true
}

func (ip *IP) Clone() pdu.PDU {
	c := *ip
	c.ResetLinks()
	c.options = ip.options.Clone()
	if inner := ip.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
