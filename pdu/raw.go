package pdu

import "github.com/mellowdrifter/packetforge/wire"

// Raw is the fallback PDU: an opaque payload with no structure. Unknown
// next-protocol tags and trailing bytes end up here.
type Raw struct {
	Base
	payload []byte
}

// NewRaw copies data into a Raw PDU.
func NewRaw(data []byte) *Raw {
	p := make([]byte, len(data))
	copy(p, data)
	return &Raw{payload: p}
}

func (r *Raw) Type() Type { return TypeRaw }

func (r *Raw) Payload() []byte { return r.payload }

func (r *Raw) SetPayload(data []byte) {
	r.payload = make([]byte, len(data))
	copy(r.payload, data)
}

func (r *Raw) HeaderSize() int { return len(r.payload) }

func (r *Raw) WriteHeader(buf []byte, _ *SerializeContext) error {
	return wire.NewWriter(buf).Bytes(r.payload)
}

func (r *Raw) Clone() PDU {
	c := NewRaw(r.payload)
	if inner := r.Inner(); inner != nil {
		Chain(c, inner.Clone())
	}
	return c
}
