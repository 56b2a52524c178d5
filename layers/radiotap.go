package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// RadioTap is the capture-time radio metadata header preceding 802.11
// frames. The present-flags word and per-field payloads are kept opaque;
// only the length framing is interpreted, which is all that is needed to
// reach the frame behind it.
type RadioTap struct {
	pdu.Base
	Version uint8

	fields []byte // everything between the fixed prefix and the frame
}

func ParseRadioTap(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	rt := &RadioTap{}
	var err error
	if rt.Version, err = r.U8(); err != nil {
		return nil, fmt.Errorf("radiotap: %w", err)
	}
	if err = r.Skip(1); err != nil { // pad
		return nil, fmt.Errorf("radiotap: %w", err)
	}
	length, err := r.U16LE()
	if err != nil {
		return nil, fmt.Errorf("radiotap: %w", err)
	}
	if int(length) < 4 || int(length) > len(data) {
		return nil, fmt.Errorf("%w: radiotap length %d", pdu.ErrMalformedPacket, length)
	}
	fields, err := r.Bytes(int(length) - 4)
	if err != nil {
		return nil, fmt.Errorf("radiotap fields: %w", err)
	}
	rt.fields = append([]byte(nil), fields...)
	if r.Remaining() > 0 {
		inner, err := ParseDot11(r.Rest())
		if err != nil {
			return nil, err
		}
		pdu.Chain(rt, inner)
	}
	return rt, nil
}

func (rt *RadioTap) Type() pdu.Type { return pdu.TypeRadioTap }

func (rt *RadioTap) HeaderSize() int { return 4 + len(rt.fields) }

func (rt *RadioTap) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	w := wire.NewWriter(buf)
	if err := w.U8(rt.Version); err != nil {
		return err
	}
	if err := w.U8(0); err != nil {
		return err
	}
	if err := w.U16LE(uint16(4 + len(rt.fields))); err != nil {
		return err
	}
	return w.Bytes(rt.fields)
}

func (rt *RadioTap) Clone() pdu.PDU {
	c := *rt
	c.ResetLinks()
	c.fields = append([]byte(nil), rt.fields...)
	if inner := rt.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
