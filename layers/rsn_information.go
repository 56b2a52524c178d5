package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// RSN cipher suite selectors (OUI 00-0f-ac plus suite type).
const (
	RSNCipherWEP40  uint32 = 0x000fac01
	RSNCipherTKIP   uint32 = 0x000fac02
	RSNCipherCCMP   uint32 = 0x000fac04
	RSNCipherWEP104 uint32 = 0x000fac05
)

// RSN AKM suite selectors.
const (
	RSNAKM8021X uint32 = 0x000fac01
	RSNAKMPSK   uint32 = 0x000fac02
)

// RSNInformation is the robust security network element carried in
// beacons, association frames and EAPOL key data.
type RSNInformation struct {
	Version      uint16
	GroupSuite   uint32
	Pairwise     []uint32
	AKM          []uint32
	Capabilities uint16
}

// NewRSNInformationWPA2 returns the element a CCMP/PSK network
// advertises.
func NewRSNInformationWPA2() RSNInformation {
	return RSNInformation{
		Version:    1,
		GroupSuite: RSNCipherCCMP,
		Pairwise:   []uint32{RSNCipherCCMP},
		AKM:        []uint32{RSNAKMPSK},
	}
}

// ParseRSNInformation decodes the element body (after the tag and length
// bytes). Counts are little-endian; suite selectors big-endian.
func ParseRSNInformation(data []byte) (RSNInformation, error) {
	var info RSNInformation
	r := wire.NewReader(data)
	var err error
	if info.Version, err = r.U16LE(); err != nil {
		return info, fmt.Errorf("rsn element: %w", err)
	}
	if info.GroupSuite, err = r.U32(); err != nil {
		return info, fmt.Errorf("rsn element: %w", err)
	}
	pc, err := r.U16LE()
	if err != nil {
		return info, fmt.Errorf("rsn element: %w", err)
	}
	for i := 0; i < int(pc); i++ {
		s, err := r.U32()
		if err != nil {
			return info, fmt.Errorf("rsn pairwise suite %d: %w", i, err)
		}
		info.Pairwise = append(info.Pairwise, s)
	}
	ac, err := r.U16LE()
	if err != nil {
		return info, fmt.Errorf("rsn element: %w", err)
	}
	for i := 0; i < int(ac); i++ {
		s, err := r.U32()
		if err != nil {
			return info, fmt.Errorf("rsn akm suite %d: %w", i, err)
		}
		info.AKM = append(info.AKM, s)
	}
	if r.Remaining() >= 2 {
		if info.Capabilities, err = r.U16LE(); err != nil {
			return info, err
		}
	}
	return info, nil
}

// Serialize renders the element body.
func (info RSNInformation) Serialize() []byte {
	buf := make([]byte, 2+4+2+4*len(info.Pairwise)+2+4*len(info.AKM)+2)
	w := wire.NewWriter(buf)
	_ = w.U16LE(info.Version)
	_ = w.U32(info.GroupSuite)
	_ = w.U16LE(uint16(len(info.Pairwise)))
	for _, s := range info.Pairwise {
		_ = w.U32(s)
	}
	_ = w.U16LE(uint16(len(info.AKM)))
	for _, s := range info.AKM {
		_ = w.U32(s)
	}
	_ = w.U16LE(info.Capabilities)
	return buf
}

// UsesCCMP reports whether the pairwise set selects CCMP over TKIP.
func (info RSNInformation) UsesCCMP() bool {
	for _, s := range info.Pairwise {
		if s == RSNCipherCCMP {
			return true
		}
	}
	return false
}

// RSNInformationFromOption decodes a tagged RSN option.
func RSNInformationFromOption(o *pdu.Option) (RSNInformation, error) {
	return ParseRSNInformation(o.Data())
}
