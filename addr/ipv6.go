package addr

import (
	"bytes"
	"fmt"
	"net/netip"
)

// IPv6 is a 16-byte IPv6 address in network byte order.
type IPv6 [16]byte

// ParseIPv6 parses RFC 5952 text, including "::" compression.
func ParseIPv6(s string) (IPv6, error) {
	var a IPv6
	if s == "" {
		return a, nil
	}
	p, err := netip.ParseAddr(s)
	if err != nil || !p.Is6() && !p.Is4In6() {
		if err == nil {
			return a, fmt.Errorf("%w: %q is not IPv6", ErrInvalidAddress, s)
		}
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if p.Zone() != "" {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return IPv6(p.As16()), nil
}

func MustIPv6(s string) IPv6 {
	a, err := ParseIPv6(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IPv6FromPrefixLen returns a netmask with the top n bits set.
func IPv6FromPrefixLen(n int) IPv6 {
	if n < 0 {
		n = 0
	}
	if n > 128 {
		n = 128
	}
	var a IPv6
	for i := 0; i < len(a) && n > 0; i++ {
		if n >= 8 {
			a[i] = 0xff
			n -= 8
		} else {
			a[i] = byte(0xff << (8 - n))
			n = 0
		}
	}
	return a
}

func (a IPv6) String() string {
	return netip.AddrFrom16(a).String()
}

func (a IPv6) Compare(b IPv6) int {
	return bytes.Compare(a[:], b[:])
}

func (a IPv6) And(b IPv6) IPv6 {
	for i := range a {
		a[i] &= b[i]
	}
	return a
}

func (a IPv6) Or(b IPv6) IPv6 {
	for i := range a {
		a[i] |= b[i]
	}
	return a
}

func (a IPv6) Not() IPv6 {
	for i := range a {
		a[i] = ^a[i]
	}
	return a
}

func (a IPv6) Inc() (next IPv6, ok bool) {
	for i := len(a) - 1; i >= 0; i-- {
		a[i]++
		if a[i] != 0 {
			return a, true
		}
	}
	return a, false
}

func (a IPv6) IsLoopback() bool {
	return a == IPv6{15: 1}
}

func (a IPv6) IsMulticast() bool {
	return a[0] == 0xff
}

func (a IPv6) IsZero() bool {
	return a == IPv6{}
}
