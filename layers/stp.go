package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// STPBridgeID splits the 8-byte bridge identifier into its priority,
// system id extension and address views.
type STPBridgeID struct {
	Priority uint8 // top 4 bits
	ExtID    uint16
	Addr     addr.MAC
}

func parseBridgeID(b []byte) STPBridgeID {
	return STPBridgeID{
		Priority: b[0] >> 4,
		ExtID:    uint16(b[0]&0x0f)<<8 | uint16(b[1]),
		Addr:     addr.MAC{b[2], b[3], b[4], b[5], b[6], b[7]},
	}
}

func (id STPBridgeID) bytes() [8]byte {
	var out [8]byte
	out[0] = id.Priority<<4 | uint8(id.ExtID>>8)
	out[1] = uint8(id.ExtID)
	copy(out[2:], id.Addr[:])
	return out
}

// STP is a spanning tree configuration BPDU, as carried over LLC.
type STP struct {
	pdu.Base
	ProtoID   uint16
	ProtoVer  uint8
	BPDUType  uint8
	Flags     uint8
	RootID    STPBridgeID
	RootCost  uint32
	BridgeID  STPBridgeID
	PortID    uint16
	MsgAge    uint16
	MaxAge    uint16
	HelloTime uint16
	FwdDelay  uint16
}

func NewSTP() *STP {
	return &STP{}
}

func ParseSTP(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	s := &STP{}
	var err error
	if s.ProtoID, err = r.U16(); err != nil {
		return nil, fmt.Errorf("stp: %w", err)
	}
	if s.ProtoVer, err = r.U8(); err != nil {
		return nil, fmt.Errorf("stp: %w", err)
	}
	if s.BPDUType, err = r.U8(); err != nil {
		return nil, fmt.Errorf("stp: %w", err)
	}
	if s.Flags, err = r.U8(); err != nil {
		return nil, fmt.Errorf("stp: %w", err)
	}
	var id [8]byte
	if err = r.Array(id[:]); err != nil {
		return nil, fmt.Errorf("stp: %w", err)
	}
	s.RootID = parseBridgeID(id[:])
	if s.RootCost, err = r.U32(); err != nil {
		return nil, fmt.Errorf("stp: %w", err)
	}
	if err = r.Array(id[:]); err != nil {
		return nil, fmt.Errorf("stp: %w", err)
	}
	s.BridgeID = parseBridgeID(id[:])
	if s.PortID, err = r.U16(); err != nil {
		return nil, fmt.Errorf("stp: %w", err)
	}
	if s.MsgAge, err = r.U16(); err != nil {
		return nil, fmt.Errorf("stp: %w", err)
	}
	if s.MaxAge, err = r.U16(); err != nil {
		return nil, fmt.Errorf("stp: %w", err)
	}
	if s.HelloTime, err = r.U16(); err != nil {
		return nil, fmt.Errorf("stp: %w", err)
	}
	if s.FwdDelay, err = r.U16(); err != nil {
		return nil, fmt.Errorf("stp: %w", err)
	}
	if r.Remaining() > 0 {
		pdu.Chain(s, pdu.NewRaw(r.Rest()))
	}
	return s, nil
}

func (s *STP) Type() pdu.Type { return pdu.TypeSTP }

func (s *STP) HeaderSize() int { return 35 }

func (s *STP) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	w := wire.NewWriter(buf)
	if err := w.U16(s.ProtoID); err != nil {
		return err
	}
	if err := w.U8(s.ProtoVer); err != nil {
		return err
	}
	if err := w.U8(s.BPDUType); err != nil {
		return err
	}
	if err := w.U8(s.Flags); err != nil {
		return err
	}
	root := s.RootID.bytes()
	if err := w.Bytes(root[:]); err != nil {
		return err
	}
	if err := w.U32(s.RootCost); err != nil {
		return err
	}
	bridge := s.BridgeID.bytes()
	if err := w.Bytes(bridge[:]); err != nil {
		return err
	}
	if err := w.U16(s.PortID); err != nil {
		return err
	}
	if err := w.U16(s.MsgAge); err != nil {
		return err
	}
	if err := w.U16(s.MaxAge); err != nil {
		return err
	}
	if err := w.U16(s.HelloTime); err != nil {
		return err
	}
	return w.U16(s.FwdDelay)
}

func (s *STP) Clone() pdu.PDU {
	c := *s
	c.ResetLinks()
	if inner := s.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
