package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// IPSecAH is an authentication header: a fixed 12-byte prefix followed by
// a variable-length integrity check value. The payload length field is in
// 32-bit words minus 2.
type IPSecAH struct {
	pdu.Base
	SPI uint32
	Seq uint32
	ICV []byte

	nextHeader uint8
}

func NewIPSecAH() *IPSecAH {
	return &IPSecAH{ICV: make([]byte, 4)}
}

func ParseIPSecAH(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	a := &IPSecAH{}
	var err error
	if a.nextHeader, err = r.U8(); err != nil {
		return nil, fmt.Errorf("ah: %w", err)
	}
	length, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("ah: %w", err)
	}
	if err = r.Skip(2); err != nil {
		return nil, fmt.Errorf("ah: %w", err)
	}
	if a.SPI, err = r.U32(); err != nil {
		return nil, fmt.Errorf("ah: %w", err)
	}
	if a.Seq, err = r.U32(); err != nil {
		return nil, fmt.Errorf("ah: %w", err)
	}
	icvLen := (int(length)+2)*4 - 12
	if icvLen < 0 {
		return nil, fmt.Errorf("%w: ah payload length %d", pdu.ErrMalformedPacket, length)
	}
	icv, err := r.Bytes(icvLen)
	if err != nil {
		return nil, fmt.Errorf("ah icv: %w", err)
	}
	a.ICV = append([]byte(nil), icv...)
	inner, err := pdu.FromIPProto(a.nextHeader, r.Rest())
	if err != nil {
		return nil, err
	}
	if inner != nil {
		pdu.Chain(a, inner)
	}
	return a, nil
}

func (a *IPSecAH) Type() pdu.Type { return pdu.TypeIPSecAH }

func (a *IPSecAH) NextHeader() uint8 { return a.nextHeader }

func (a *IPSecAH) HeaderSize() int { return 12 + len(a.ICV) }

func (a *IPSecAH) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	if inner := a.Inner(); inner != nil {
		if proto, ok := pdu.IPProtoOf(inner.Type()); ok {
			a.nextHeader = proto
		}
	}
	w := wire.NewWriter(buf)
	if err := w.U8(a.nextHeader); err != nil {
		return err
	}
	if err := w.U8(uint8(a.HeaderSize()/4 - 2)); err != nil {
		return err
	}
	if err := w.U16(0); err != nil {
		return err
	}
	if err := w.U32(a.SPI); err != nil {
		return err
	}
	if err := w.U32(a.Seq); err != nil {
		return err
	}
	return w.Bytes(a.ICV)
}

func (a *IPSecAH) Clone() pdu.PDU {
	c := *a
	c.ResetLinks()
	c.ICV = append([]byte(nil), a.ICV...)
	if inner := a.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}

// IPSecESP is an encapsulating security payload header. The body is
// opaque; no decryption is attempted here.
type IPSecESP struct {
	pdu.Base
	SPI uint32
	Seq uint32
}

func NewIPSecESP() *IPSecESP {
	return &IPSecESP{}
}

func ParseIPSecESP(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	e := &IPSecESP{}
	var err error
	if e.SPI, err = r.U32(); err != nil {
		return nil, fmt.Errorf("esp: %w", err)
	}
	if e.Seq, err = r.U32(); err != nil {
		return nil, fmt.Errorf("esp: %w", err)
	}
	if r.Remaining() > 0 {
		pdu.Chain(e, pdu.NewRaw(r.Rest()))
	}
	return e, nil
}

func (e *IPSecESP) Type() pdu.Type { return pdu.TypeIPSecESP }

func (e *IPSecESP) HeaderSize() int { return 8 }

func (e *IPSecESP) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	w := wire.NewWriter(buf)
	if err := w.U32(e.SPI); err != nil {
		return err
	}
	return w.U32(e.Seq)
}

func (e *IPSecESP) Clone() pdu.PDU {
	c := *e
	c.ResetLinks()
	if inner := e.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
