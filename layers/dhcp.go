package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// DHCPMagicCookie precedes the options in the BootP vend field.
const DHCPMagicCookie uint32 = 0x63825363

// DHCP option tags.
const (
	DHCPOptPad          uint16 = 0
	DHCPOptSubnetMask   uint16 = 1
	DHCPOptRouters      uint16 = 3
	DHCPOptDNSServers   uint16 = 6
	DHCPOptHostname     uint16 = 12
	DHCPOptDomainName   uint16 = 15
	DHCPOptBroadcast    uint16 = 28
	DHCPOptRequestedIP  uint16 = 50
	DHCPOptLeaseTime    uint16 = 51
	DHCPOptMessageType  uint16 = 53
	DHCPOptServerID     uint16 = 54
	DHCPOptParamReqList uint16 = 55
	DHCPOptRenewalTime  uint16 = 58
	DHCPOptRebindTime   uint16 = 59
	DHCPOptEnd          uint16 = 255
)

// DHCP message types.
const (
	DHCPDiscover uint8 = 1
	DHCPOffer    uint8 = 2
	DHCPRequest  uint8 = 3
	DHCPDecline  uint8 = 4
	DHCPAck      uint8 = 5
	DHCPNak      uint8 = 6
	DHCPRelease  uint8 = 7
	DHCPInform   uint8 = 8
)

// DHCP structures the BootP vend field into magic cookie plus options.
type DHCP struct {
	BootP
	options pdu.Options
}

func NewDHCP() *DHCP {
	d := &DHCP{}
	d.BootP = *NewBootP()
	return d
}

func ParseDHCP(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	d := &DHCP{}
	if err := parseBootPHeader(r, &d.BootP); err != nil {
		return nil, err
	}
	if r.Remaining() < 4 {
		// no cookie: plain BootP
		return ParseBootP(data)
	}
	cookie, err := r.U32()
	if err != nil || cookie != DHCPMagicCookie {
		return ParseBootP(data)
	}
	for r.Remaining() > 0 {
		tag, _ := r.U8()
		switch uint16(tag) {
		case DHCPOptPad:
			continue
		case DHCPOptEnd:
			return d, nil
		}
		length, err := r.U8()
		if err != nil {
			return nil, fmt.Errorf("dhcp option %d: %w", tag, err)
		}
		payload, err := r.Bytes(int(length))
		if err != nil {
			return nil, fmt.Errorf("dhcp option %d: %w", tag, err)
		}
		opt, err := pdu.NewOption(uint16(tag), payload)
		if err != nil {
			return nil, err
		}
		d.options = append(d.options, opt)
	}
	return d, nil
}

func (d *DHCP) Type() pdu.Type { return pdu.TypeDHCP }

func (d *DHCP) AddOption(o pdu.Option) { d.options = append(d.options, o) }

func (d *DHCP) SearchOption(tag uint16) (*pdu.Option, error) { return d.options.Search(tag) }

func (d *DHCP) RemoveOption(tag uint16) bool { return d.options.Remove(tag) }

func (d *DHCP) Options() pdu.Options { return d.options }

func (d *DHCP) optionsSize() int {
	n := 0
	for i := range d.options {
		n += 2 + d.options[i].DataSize()
	}
	return n
}

// HeaderSize covers the BootP fixed part, the cookie, the options and the
// END marker.
func (d *DHCP) HeaderSize() int { return 236 + 4 + d.optionsSize() + 1 }

func (d *DHCP) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	w := wire.NewWriter(buf)
	if err := d.writeFixed(w); err != nil {
		return err
	}
	if err := w.U32(DHCPMagicCookie); err != nil {
		return err
	}
	for i := range d.options {
		o := &d.options[i]
		if err := w.U8(uint8(o.Tag())); err != nil {
			return err
		}
		if err := w.U8(uint8(o.DataSize())); err != nil {
			return err
		}
		if err := w.Bytes(o.Data()); err != nil {
			return err
		}
	}
	return w.U8(uint8(DHCPOptEnd))
}

// Typed convenience accessors over the option list.

func (d *DHCP) MessageType() (uint8, error) {
	o, err := d.options.Search(DHCPOptMessageType)
	if err != nil {
		return 0, err
	}
	return o.U8()
}

func (d *DHCP) SetMessageType(t uint8) {
	d.options.Remove(DHCPOptMessageType)
	d.options = append(d.options, pdu.MustOption(DHCPOptMessageType, []byte{t}))
}

func (d *DHCP) LeaseTime() (uint32, error) {
	o, err := d.options.Search(DHCPOptLeaseTime)
	if err != nil {
		return 0, err
	}
	return o.U32()
}

func (d *DHCP) ServerIdentifier() (addr.IPv4, error) {
	o, err := d.options.Search(DHCPOptServerID)
	if err != nil {
		return addr.IPv4{}, err
	}
	return o.IPv4()
}

func (d *DHCP) Routers() ([]addr.IPv4, error) {
	o, err := d.options.Search(DHCPOptRouters)
	if err != nil {
		return nil, err
	}
	return o.IPv4List()
}

func (d *DHCP) DNSServers() ([]addr.IPv4, error) {
	o, err := d.options.Search(DHCPOptDNSServers)
	if err != nil {
		return nil, err
	}
	return o.IPv4List()
}

func (d *DHCP) SubnetMask() (addr.IPv4, error) {
	o, err := d.options.Search(DHCPOptSubnetMask)
	if err != nil {
		return addr.IPv4{}, err
	}
	return o.IPv4()
}

func (d *DHCP) RequestedIP() (addr.IPv4, error) {
	o, err := d.options.Search(DHCPOptRequestedIP)
	if err != nil {
		return addr.IPv4{}, err
	}
	return o.IPv4()
}

func (d *DHCP) Hostname() (string, error) {
	o, err := d.options.Search(DHCPOptHostname)
	if err != nil {
		return "", err
	}
	return o.String()
}

func (d *DHCP) DomainName() (string, error) {
	o, err := d.options.Search(DHCPOptDomainName)
	if err != nil {
		return "", err
	}
	return o.String()
}

func (d *DHCP) Clone() pdu.PDU {
	c := *d
	c.ResetLinks()
	c.vend = append([]byte(nil), d.vend...)
	c.options = d.options.Clone()
	if inner := d.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
