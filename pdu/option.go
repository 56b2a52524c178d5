package pdu

import (
	"encoding/binary"
	"fmt"

	"github.com/mellowdrifter/packetforge/addr"
)

const optionInlineSize = 8

// Option is one TLV from an option-bearing header. Payloads of up to 8
// bytes are stored inline; larger ones are heap-allocated. The length
// field may differ from the payload size for protocols whose wire length
// is expressed in custom units.
type Option struct {
	big      []byte
	tag      uint16
	lenField int32 // -1 means "same as data size"
	n        uint8 // inline bytes used, valid when big == nil
	small    [optionInlineSize]byte
}

// NewOption builds an option from a tag and payload copy.
func NewOption(tag uint16, data []byte) (Option, error) {
	return NewOptionWithLength(tag, -1, data)
}

// NewOptionWithLength additionally fixes the on-wire length field, for
// protocols where it is not simply the payload size.
func NewOptionWithLength(tag uint16, length int, data []byte) (Option, error) {
	o := Option{tag: tag, lenField: int32(length)}
	if len(data) > 0xffff {
		return o, fmt.Errorf("%w: %d bytes", ErrOptionTooLarge, len(data))
	}
	if len(data) <= optionInlineSize {
		o.n = uint8(copy(o.small[:], data))
	} else {
		o.big = make([]byte, len(data))
		copy(o.big, data)
	}
	return o, nil
}

// MustOption is NewOption for in-code construction of small options.
func MustOption(tag uint16, data []byte) Option {
	o, err := NewOption(tag, data)
	if err != nil {
		panic(err)
	}
	return o
}

func (o *Option) Tag() uint16 { return o.tag }

// Data returns a view of the payload.
func (o *Option) Data() []byte {
	if o.big != nil {
		return o.big
	}
	return o.small[:o.n]
}

func (o *Option) DataSize() int {
	if o.big != nil {
		return len(o.big)
	}
	return int(o.n)
}

// LengthField is the length as written on the wire.
func (o *Option) LengthField() int {
	if o.lenField >= 0 {
		return int(o.lenField)
	}
	return o.DataSize()
}

// Inline reports whether the payload lives in the option itself rather
// than on the heap.
func (o *Option) Inline() bool { return o.big == nil }

func (o *Option) sized(n int) ([]byte, error) {
	d := o.Data()
	if len(d) != n {
		return nil, fmt.Errorf("%w: tag %d has %d bytes, want %d", ErrMalformedOption, o.tag, len(d), n)
	}
	return d, nil
}

// Typed decoders. Each fails with ErrMalformedOption unless the payload
// length matches the target exactly.

func (o *Option) U8() (uint8, error) {
	d, err := o.sized(1)
	if err != nil {
		return 0, err
	}
	return d[0], nil
}

func (o *Option) U16() (uint16, error) {
	d, err := o.sized(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(d), nil
}

func (o *Option) U32() (uint32, error) {
	d, err := o.sized(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(d), nil
}

func (o *Option) U64() (uint64, error) {
	d, err := o.sized(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(d), nil
}

func (o *Option) IPv4() (addr.IPv4, error) {
	var a addr.IPv4
	d, err := o.sized(4)
	if err != nil {
		return a, err
	}
	copy(a[:], d)
	return a, nil
}

func (o *Option) IPv6() (addr.IPv6, error) {
	var a addr.IPv6
	d, err := o.sized(16)
	if err != nil {
		return a, err
	}
	copy(a[:], d)
	return a, nil
}

func (o *Option) MAC() (addr.MAC, error) {
	var a addr.MAC
	d, err := o.sized(6)
	if err != nil {
		return a, err
	}
	copy(a[:], d)
	return a, nil
}

func (o *Option) String() (string, error) {
	return string(o.Data()), nil
}

// U16List reads consecutive big-endian 16-bit values until the payload is
// exhausted; leftover bytes are a malformed option.
func (o *Option) U16List() ([]uint16, error) {
	d := o.Data()
	if len(d)%2 != 0 {
		return nil, fmt.Errorf("%w: tag %d has %d leftover bytes", ErrMalformedOption, o.tag, len(d)%2)
	}
	out := make([]uint16, 0, len(d)/2)
	for i := 0; i < len(d); i += 2 {
		out = append(out, binary.BigEndian.Uint16(d[i:]))
	}
	return out, nil
}

func (o *Option) U32List() ([]uint32, error) {
	d := o.Data()
	if len(d)%4 != 0 {
		return nil, fmt.Errorf("%w: tag %d has %d leftover bytes", ErrMalformedOption, o.tag, len(d)%4)
	}
	out := make([]uint32, 0, len(d)/4)
	for i := 0; i < len(d); i += 4 {
		out = append(out, binary.BigEndian.Uint32(d[i:]))
	}
	return out, nil
}

func (o *Option) IPv4List() ([]addr.IPv4, error) {
	d := o.Data()
	if len(d)%4 != 0 {
		return nil, fmt.Errorf("%w: tag %d has %d leftover bytes", ErrMalformedOption, o.tag, len(d)%4)
	}
	out := make([]addr.IPv4, 0, len(d)/4)
	for i := 0; i < len(d); i += 4 {
		var a addr.IPv4
		copy(a[:], d[i:i+4])
		out = append(out, a)
	}
	return out, nil
}

func (o *Option) IPv6List() ([]addr.IPv6, error) {
	d := o.Data()
	if len(d)%16 != 0 {
		return nil, fmt.Errorf("%w: tag %d has %d leftover bytes", ErrMalformedOption, o.tag, len(d)%16)
	}
	out := make([]addr.IPv6, 0, len(d)/16)
	for i := 0; i < len(d); i += 16 {
		var a addr.IPv6
		copy(a[:], d[i:i+16])
		out = append(out, a)
	}
	return out, nil
}

// IPv4Pair decodes two consecutive IPv4 addresses (DHCP policy/static
// route shapes).
func (o *Option) IPv4Pair() (first, second addr.IPv4, err error) {
	d, err := o.sized(8)
	if err != nil {
		return first, second, err
	}
	copy(first[:], d[:4])
	copy(second[:], d[4:])
	return first, second, nil
}

// Options is the list every option-bearing header holds.
type Options []Option

// Search returns the first option with the given tag.
func (os Options) Search(tag uint16) (*Option, error) {
	for i := range os {
		if os[i].tag == tag {
			return &os[i], nil
		}
	}
	return nil, fmt.Errorf("%w: tag %d", ErrOptionNotFound, tag)
}

// Remove deletes the first option with the given tag, reporting whether
// one was found.
func (os *Options) Remove(tag uint16) bool {
	for i := range *os {
		if (*os)[i].tag == tag {
			*os = append((*os)[:i], (*os)[i+1:]...)
			return true
		}
	}
	return false
}

// Clone deep-copies the list.
func (os Options) Clone() Options {
	if os == nil {
		return nil
	}
	out := make(Options, len(os))
	copy(out, os)
	for i := range out {
		if out[i].big != nil {
			b := make([]byte, len(out[i].big))
			copy(b, out[i].big)
			out[i].big = b
		}
	}
	return out
}
