package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// BootP opcodes.
const (
	BootPRequest uint8 = 1
	BootPReply   uint8 = 2
)

// BootP is the bootstrap protocol fixed header. DHCP extends it by
// structuring the vend field.
type BootP struct {
	pdu.Base
	Opcode uint8
	HType  uint8
	HLen   uint8
	Hops   uint8
	XID    uint32
	Secs   uint16
	Flags  uint16
	CIAddr addr.IPv4
	YIAddr addr.IPv4
	SIAddr addr.IPv4
	GIAddr addr.IPv4
	CHAddr [16]byte
	SName  [64]byte
	File   [128]byte

	vend []byte
}

func NewBootP() *BootP {
	return &BootP{Opcode: BootPRequest, HType: 1, HLen: 6}
}

// ClientHW views the hardware address portion of chaddr.
func (b *BootP) ClientHW() addr.MAC {
	var m addr.MAC
	copy(m[:], b.CHAddr[:6])
	return m
}

func (b *BootP) SetClientHW(m addr.MAC) {
	copy(b.CHAddr[:6], m[:])
}

// Vend is the raw vendor field; DHCP interprets it.
func (b *BootP) Vend() []byte { return b.vend }

func (b *BootP) SetVend(v []byte) {
	b.vend = append([]byte(nil), v...)
}

func parseBootPHeader(r *wire.Reader, b *BootP) error {
	var err error
	if b.Opcode, err = r.U8(); err != nil {
		return fmt.Errorf("bootp: %w", err)
	}
	if b.HType, err = r.U8(); err != nil {
		return fmt.Errorf("bootp: %w", err)
	}
	if b.HLen, err = r.U8(); err != nil {
		return fmt.Errorf("bootp: %w", err)
	}
	if b.Hops, err = r.U8(); err != nil {
		return fmt.Errorf("bootp: %w", err)
	}
	if b.XID, err = r.U32(); err != nil {
		return fmt.Errorf("bootp: %w", err)
	}
	if b.Secs, err = r.U16(); err != nil {
		return fmt.Errorf("bootp: %w", err)
	}
	if b.Flags, err = r.U16(); err != nil {
		return fmt.Errorf("bootp: %w", err)
	}
	if err = r.Array(b.CIAddr[:]); err != nil {
		return fmt.Errorf("bootp: %w", err)
	}
	if err = r.Array(b.YIAddr[:]); err != nil {
		return fmt.Errorf("bootp: %w", err)
	}
	if err = r.Array(b.SIAddr[:]); err != nil {
		return fmt.Errorf("bootp: %w", err)
	}
	if err = r.Array(b.GIAddr[:]); err != nil {
		return fmt.Errorf("bootp: %w", err)
	}
	if err = r.Array(b.CHAddr[:]); err != nil {
		return fmt.Errorf("bootp: %w", err)
	}
	if err = r.Array(b.SName[:]); err != nil {
		return fmt.Errorf("bootp: %w", err)
	}
	if err = r.Array(b.File[:]); err != nil {
		return fmt.Errorf("bootp: %w", err)
	}
	return nil
}

func ParseBootP(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	b := &BootP{}
	if err := parseBootPHeader(r, b); err != nil {
		return nil, err
	}
	b.vend = append([]byte(nil), r.Rest()...)
	return b, nil
}

func (b *BootP) Type() pdu.Type { return pdu.TypeBootP }

func (b *BootP) HeaderSize() int { return 236 + len(b.vend) }

func (b *BootP) writeFixed(w *wire.Writer) error {
	if err := w.U8(b.Opcode); err != nil {
		return err
	}
	if err := w.U8(b.HType); err != nil {
		return err
	}
	if err := w.U8(b.HLen); err != nil {
		return err
	}
	if err := w.U8(b.Hops); err != nil {
		return err
	}
	if err := w.U32(b.XID); err != nil {
		return err
	}
	if err := w.U16(b.Secs); err != nil {
		return err
	}
	if err := w.U16(b.Flags); err != nil {
		return err
	}
	if err := w.Bytes(b.CIAddr[:]); err != nil {
		return err
	}
	if err := w.Bytes(b.YIAddr[:]); err != nil {
		return err
	}
	if err := w.Bytes(b.SIAddr[:]); err != nil {
		return err
	}
	if err := w.Bytes(b.GIAddr[:]); err != nil {
		return err
	}
	if err := w.Bytes(b.CHAddr[:]); err != nil {
		return err
	}
	if err := w.Bytes(b.SName[:]); err != nil {
		return err
	}
	return w.Bytes(b.File[:])
}

func (b *BootP) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	w := wire.NewWriter(buf)
	if err := b.writeFixed(w); err != nil {
		return err
	}
	return w.Bytes(b.vend)
}

func (b *BootP) MatchesResponse(resp []byte) bool {
	if len(resp) < 236 {
		return false
	}
	other := &BootP{}
	if err := parseBootPHeader(wire.NewReader(resp), other); err != nil {
		return false
	}
	return other.Opcode == BootPReply && other.XID == b.XID
}

func (b *BootP) Clone() pdu.PDU {
	c := *b
	c.ResetLinks()
	c.vend = append([]byte(nil), b.vend...)
	if inner := b.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
