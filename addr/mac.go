package addr

import (
	"bytes"
	"fmt"
	"strings"
)

// MAC is a 6-byte hardware address.
type MAC [6]byte

// Broadcast is the all-ones hardware address.
var Broadcast = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMAC parses "xx:xx:xx:xx:xx:xx" (also accepts '-' separators).
func ParseMAC(s string) (MAC, error) {
	var a MAC
	if s == "" {
		return a, nil
	}
	b, err := parseHWBytes(s, len(a))
	if err != nil {
		return a, err
	}
	copy(a[:], b)
	return a, nil
}

func MustMAC(s string) MAC {
	a, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return a
}

func parseHWBytes(s string, n int) ([]byte, error) {
	sep := ":"
	if strings.Contains(s, "-") {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != n {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	out := make([]byte, n)
	for i, p := range parts {
		var v byte
		if _, err := fmt.Sscanf(p, "%02x", &v); err != nil || len(p) > 2 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		out[i] = v
	}
	return out, nil
}

func (a MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

func (a MAC) Compare(b MAC) int {
	return bytes.Compare(a[:], b[:])
}

func (a MAC) And(b MAC) MAC {
	for i := range a {
		a[i] &= b[i]
	}
	return a
}

func (a MAC) Or(b MAC) MAC {
	for i := range a {
		a[i] |= b[i]
	}
	return a
}

func (a MAC) Not() MAC {
	for i := range a {
		a[i] = ^a[i]
	}
	return a
}

func (a MAC) Inc() (next MAC, ok bool) {
	for i := len(a) - 1; i >= 0; i-- {
		a[i]++
		if a[i] != 0 {
			return a, true
		}
	}
	return a, false
}

func (a MAC) IsBroadcast() bool {
	return a == Broadcast
}

// IsMulticast reports whether the group bit of the first octet is set.
func (a MAC) IsMulticast() bool {
	return a[0]&0x01 != 0
}

func (a MAC) IsUnicast() bool {
	return !a.IsMulticast()
}

func (a MAC) IsZero() bool {
	return a == MAC{}
}
