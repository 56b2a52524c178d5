package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// SLL is the Linux cooked capture pseudo-header. The link address slot is
// 8 bytes on the wire regardless of the real address length.
type SLL struct {
	pdu.Base
	PacketType uint16
	LLAType    uint16
	LLALen     uint16
	Address    [8]byte

	protocol uint16
}

func NewSLL() *SLL {
	return &SLL{LLAType: 1, LLALen: 6}
}

func ParseSLL(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	s := &SLL{}
	var err error
	if s.PacketType, err = r.U16(); err != nil {
		return nil, fmt.Errorf("sll: %w", err)
	}
	if s.LLAType, err = r.U16(); err != nil {
		return nil, fmt.Errorf("sll: %w", err)
	}
	if s.LLALen, err = r.U16(); err != nil {
		return nil, fmt.Errorf("sll: %w", err)
	}
	if err = r.Array(s.Address[:]); err != nil {
		return nil, fmt.Errorf("sll: %w", err)
	}
	if s.protocol, err = r.U16(); err != nil {
		return nil, fmt.Errorf("sll: %w", err)
	}
	inner, err := pdu.FromEtherType(s.protocol, r.Rest())
	if err != nil {
		return nil, err
	}
	if inner != nil {
		pdu.Chain(s, inner)
	}
	return s, nil
}

func (s *SLL) Type() pdu.Type { return pdu.TypeSLL }

func (s *SLL) Protocol() uint16 { return s.protocol }

func (s *SLL) HeaderSize() int { return 16 }

func (s *SLL) UpdateContext(ctx *pdu.SerializeContext) {
	ctx.HasLinkLayer = true
}

func (s *SLL) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	if inner := s.Inner(); inner != nil {
		if et, ok := pdu.EtherTypeOf(inner.Type()); ok {
			s.protocol = et
		}
	}
	w := wire.NewWriter(buf)
	if err := w.U16(s.PacketType); err != nil {
		return err
	}
	if err := w.U16(s.LLAType); err != nil {
		return err
	}
	if err := w.U16(s.LLALen); err != nil {
		return err
	}
	if err := w.Bytes(s.Address[:]); err != nil {
		return err
	}
	return w.U16(s.protocol)
}

// MatchesResponse delegates to the inner PDU; the cooked header itself
// has no pairing semantics.
func (s *SLL) MatchesResponse(resp []byte) bool {
	if len(resp) < 16 {
		return false
	}
	if inner := s.Inner(); inner != nil {
		return inner.MatchesResponse(resp[16:])
	}
	return true
}

func (s *SLL) Clone() pdu.PDU {
	c := *s
	c.ResetLinks()
	if inner := s.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
