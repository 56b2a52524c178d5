package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// LLC control value for unnumbered information frames.
const LLCUnnumberedInfo = 0x03

// SNAP DSAP/SSAP value.
const llcSNAPSAP = 0xaa

// LLC is an IEEE 802.2 logical link control header. Only the one-byte
// control format (U-frames) is modeled; that is the form SNAP and STP
// ride on.
type LLC struct {
	pdu.Base
	DSAP    uint8
	SSAP    uint8
	Control uint8
}

func NewLLC() *LLC {
	return &LLC{DSAP: llcSNAPSAP, SSAP: llcSNAPSAP, Control: LLCUnnumberedInfo}
}

func ParseLLC(data []byte) (*LLC, error) {
	r := wire.NewReader(data)
	l := &LLC{}
	var err error
	if l.DSAP, err = r.U8(); err != nil {
		return nil, fmt.Errorf("llc: %w", err)
	}
	if l.SSAP, err = r.U8(); err != nil {
		return nil, fmt.Errorf("llc: %w", err)
	}
	if l.Control, err = r.U8(); err != nil {
		return nil, fmt.Errorf("llc: %w", err)
	}
	rest := r.Rest()
	if len(rest) == 0 {
		return l, nil
	}
	var inner pdu.PDU
	switch {
	case l.DSAP == llcSNAPSAP && l.SSAP == llcSNAPSAP:
		inner, err = ParseSNAP(rest)
	case l.DSAP == 0x42 && l.SSAP == 0x42:
		inner, err = ParseSTP(rest)
	default:
		inner = pdu.NewRaw(rest)
	}
	if err != nil {
		return nil, err
	}
	pdu.Chain(l, inner)
	return l, nil
}

func (l *LLC) Type() pdu.Type { return pdu.TypeLLC }

func (l *LLC) HeaderSize() int { return 3 }

func (l *LLC) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	w := wire.NewWriter(buf)
	if err := w.U8(l.DSAP); err != nil {
		return err
	}
	if err := w.U8(l.SSAP); err != nil {
		return err
	}
	return w.U8(l.Control)
}

func (l *LLC) Clone() pdu.PDU {
	c := *l
	c.ResetLinks()
	if inner := l.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}

// SNAP is the 5-byte subnetwork access protocol extension on LLC,
// carrying an OUI and the EtherType of the payload.
type SNAP struct {
	pdu.Base
	OUI [3]byte

	etherType uint16
}

func NewSNAP() *SNAP {
	return &SNAP{}
}

func ParseSNAP(data []byte) (*SNAP, error) {
	r := wire.NewReader(data)
	s := &SNAP{}
	if err := r.Array(s.OUI[:]); err != nil {
		return nil, fmt.Errorf("snap: %w", err)
	}
	et, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("snap: %w", err)
	}
	s.etherType = et
	inner, err := pdu.FromEtherType(et, r.Rest())
	if err != nil {
		return nil, err
	}
	if inner != nil {
		pdu.Chain(s, inner)
	}
	return s, nil
}

func (s *SNAP) Type() pdu.Type { return pdu.TypeSNAP }

func (s *SNAP) EtherType() uint16 { return s.etherType }

func (s *SNAP) HeaderSize() int { return 5 }

func (s *SNAP) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	if inner := s.Inner(); inner != nil {
		if et, ok := pdu.EtherTypeOf(inner.Type()); ok {
			s.etherType = et
		}
	}
	w := wire.NewWriter(buf)
	if err := w.Bytes(s.OUI[:]); err != nil {
		return err
	}
	return w.U16(s.etherType)
}

func (s *SNAP) Clone() pdu.PDU {
	c := *s
	c.ResetLinks()
	if inner := s.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
