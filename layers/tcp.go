package layers

import (
	"encoding/binary"
	"fmt"

	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// TCP flags.
const (
	TCPFlagFIN uint16 = 1 << iota
	TCPFlagSYN
	TCPFlagRST
	TCPFlagPSH
	TCPFlagACK
	TCPFlagURG
	TCPFlagECE
	TCPFlagCWR
)

// TCP option kinds.
const (
	TCPOptionEOL       uint16 = 0
	TCPOptionNOP       uint16 = 1
	TCPOptionMSS       uint16 = 2
	TCPOptionWScale    uint16 = 3
	TCPOptionSACKOK    uint16 = 4
	TCPOptionSACK      uint16 = 5
	TCPOptionTimestamp uint16 = 8
)

// TCP is a transmission control protocol segment header.
type TCP struct {
	pdu.Base
	SrcPort uint16
	DstPort uint16
	Seq     uint32
	AckSeq  uint32
	Flags   uint16
	Window  uint16
	UrgPtr  uint16

	checksum uint16
	options  pdu.Options
}

func NewTCP(dport, sport uint16) *TCP {
	return &TCP{SrcPort: sport, DstPort: dport, Window: 32678}
}

func ParseTCP(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	t := &TCP{}
	var err error
	if t.SrcPort, err = r.U16(); err != nil {
		return nil, fmt.Errorf("tcp: %w", err)
	}
	if t.DstPort, err = r.U16(); err != nil {
		return nil, fmt.Errorf("tcp: %w", err)
	}
	if t.Seq, err = r.U32(); err != nil {
		return nil, fmt.Errorf("tcp: %w", err)
	}
	if t.AckSeq, err = r.U32(); err != nil {
		return nil, fmt.Errorf("tcp: %w", err)
	}
	offFlags, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("tcp: %w", err)
	}
	dataOffset := int(offFlags>>12) * 4
	t.Flags = offFlags & 0x0fff
	if t.Window, err = r.U16(); err != nil {
		return nil, fmt.Errorf("tcp: %w", err)
	}
	if t.checksum, err = r.U16(); err != nil {
		return nil, fmt.Errorf("tcp: %w", err)
	}
	if t.UrgPtr, err = r.U16(); err != nil {
		return nil, fmt.Errorf("tcp: %w", err)
	}
	if dataOffset < 20 || dataOffset > len(data) {
		return nil, fmt.Errorf("%w: tcp data offset %d", pdu.ErrMalformedPacket, dataOffset)
	}
	if dataOffset > 20 {
		opts, err := r.Narrow(dataOffset - 20)
		if err != nil {
			return nil, fmt.Errorf("tcp options: %w", err)
		}
		if t.options, err = parseTCPOptions(opts); err != nil {
			return nil, err
		}
	}
	if r.Remaining() > 0 {
		pdu.Chain(t, pdu.NewRaw(r.Rest()))
	}
	return t, nil
}

func parseTCPOptions(r *wire.Reader) (pdu.Options, error) {
	var opts pdu.Options
	for r.Remaining() > 0 {
		kind, _ := r.U8()
		switch uint16(kind) {
		case TCPOptionEOL:
			return opts, nil
		case TCPOptionNOP:
			// alignment only, not retained
		default:
			length, err := r.U8()
			if err != nil {
				return nil, fmt.Errorf("tcp option %d: %w", kind, err)
			}
			// the length byte counts the kind and length bytes too
			if length < 2 {
				return nil, fmt.Errorf("%w: tcp option %d length %d", pdu.ErrMalformedPacket, kind, length)
			}
			payload, err := r.Bytes(int(length) - 2)
			if err != nil {
				return nil, fmt.Errorf("tcp option %d: %w", kind, err)
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

func (t *TCP) Type() pdu.Type { return pdu.TypeTCP }

func (t *TCP) Checksum() uint16 { return t.checksum }

func (t *TCP) HasFlag(f uint16) bool { return t.Flags&f != 0 }

func (t *TCP) SetFlag(f uint16) { t.Flags |= f }

func (t *TCP) optionsSize() int {
	n := 0
	for i := range t.options {
		n += 2 + t.options[i].DataSize()
	}
	return n
}

// HeaderSize is 20 plus options, NOP-padded to a 4-byte boundary.
func (t *TCP) HeaderSize() int {
	return 20 + (t.optionsSize()+3)&^3
}

func (t *TCP) AddOption(o pdu.Option) { t.options = append(t.options, o) }

func (t *TCP) SearchOption(tag uint16) (*pdu.Option, error) { return t.options.Search(tag) }

func (t *TCP) RemoveOption(tag uint16) bool { return t.options.Remove(tag) }

func (t *TCP) Options() pdu.Options { return t.options }

// MSS reads the maximum segment size option.
func (t *TCP) MSS() (uint16, error) {
	o, err := t.options.Search(TCPOptionMSS)
	if err != nil {
		return 0, err
	}
	return o.U16()
}

func (t *TCP) WriteHeader(buf []byte, ctx *pdu.SerializeContext) error {
	hs := t.HeaderSize()
	w := wire.NewWriter(buf)
	if err := w.U16(t.SrcPort); err != nil {
		return err
	}
	if err := w.U16(t.DstPort); err != nil {
		return err
	}
	if err := w.U32(t.Seq); err != nil {
		return err
	}
	if err := w.U32(t.AckSeq); err != nil {
		return err
	}
	if err := w.U16(uint16(hs/4)<<12 | t.Flags&0x0fff); err != nil {
		return err
	}
	if err := w.U16(t.Window); err != nil {
		return err
	}
	if err := w.U16(0); err != nil { // checksum, fixed up below
		return err
	}
	if err := w.U16(t.UrgPtr); err != nil {
		return err
	}
	written := 0
	for i := range t.options {
		if err := w.U8(uint8(t.options[i].Tag())); err != nil {
			return err
		}
		if err := w.U8(uint8(2 + t.options[i].DataSize())); err != nil {
			return err
		}
		if err := w.Bytes(t.options[i].Data()); err != nil {
			return err
		}
		written += 2 + t.options[i].DataSize()
	}
	if pad := hs - 20 - written; pad > 0 {
		if err := w.Fill(pad, byte(TCPOptionNOP)); err != nil {
			return err
		}
	}
	if ctx.HasNetworkLayer {
		t.checksum = transportChecksum(buf, ctx, pdu.IPProtoTCP)
		binary.BigEndian.PutUint16(buf[16:18], t.checksum)
	}
	return nil
}

// transportChecksum folds the IPv4/IPv6 pseudo-header with the transport
// header and payload in buf.
func transportChecksum(buf []byte, ctx *pdu.SerializeContext, proto uint8) uint16 {
	var pseudo []byte
	if ctx.IsIPv6 {
		pseudo = make([]byte, 40)
		copy(pseudo[0:16], ctx.Src)
		copy(pseudo[16:32], ctx.Dst)
		binary.BigEndian.PutUint32(pseudo[32:36], uint32(len(buf)))
		pseudo[39] = proto
	} else {
		pseudo = make([]byte, 12)
		copy(pseudo[0:4], ctx.Src)
		copy(pseudo[4:8], ctx.Dst)
		pseudo[9] = proto
		binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(buf)))
	}
	sum := wire.Checksum(pseudo) + wire.Checksum(buf)
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + sum>>16
	}
	return ^uint16(sum)
}

// MatchesResponse pairs segments with mirrored ports.
func (t *TCP) MatchesResponse(resp []byte) bool {
	if len(resp) < 20 {
		return false
	}
	sport := binary.BigEndian.Uint16(resp[0:2])
	dport := binary.BigEndian.Uint16(resp[2:4])
	return sport == t.DstPort && dport == t.SrcPort
}

func (t *TCP) Clone() pdu.PDU {
	c := *t
	c.ResetLinks()
	c.options = t.options.Clone()
	if inner := t.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
