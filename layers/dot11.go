package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// 802.11 frame types.
const (
	Dot11TypeManagement uint8 = 0
	Dot11TypeControl    uint8 = 1
	Dot11TypeData       uint8 = 2
)

// Management subtypes.
const (
	Dot11SubtypeAssocReq  uint8 = 0
	Dot11SubtypeAssocResp uint8 = 1
	Dot11SubtypeProbeReq  uint8 = 4
	Dot11SubtypeProbeResp uint8 = 5
	Dot11SubtypeBeacon    uint8 = 8
	Dot11SubtypeDisassoc  uint8 = 10
	Dot11SubtypeAuth      uint8 = 11
	Dot11SubtypeDeauth    uint8 = 12
)

// Data subtypes.
const (
	Dot11SubtypeData    uint8 = 0
	Dot11SubtypeQoSData uint8 = 8
)

// Frame control flag bits (second FC byte).
const (
	Dot11FlagToDS      uint8 = 0x01
	Dot11FlagFromDS    uint8 = 0x02
	Dot11FlagMoreFrag  uint8 = 0x04
	Dot11FlagRetry     uint8 = 0x08
	Dot11FlagPowerMgmt uint8 = 0x10
	Dot11FlagMoreData  uint8 = 0x20
	Dot11FlagProtected uint8 = 0x40
	Dot11FlagOrder     uint8 = 0x80
)

// Management frame tagged option types.
const (
	Dot11OptSSID    uint16 = 0
	Dot11OptRates   uint16 = 1
	Dot11OptChannel uint16 = 3
	Dot11OptTIM     uint16 = 5
	Dot11OptRSN     uint16 = 48
)

// dot11Header is the generic MAC header shared by the family. All
// multi-byte fields are little-endian on the wire.
type dot11Header struct {
	pdu.Base
	Subtype    uint8
	FrameType  uint8
	Flags      uint8
	Duration   uint16
	Addr1      addr.MAC
	Addr2      addr.MAC
	Addr3      addr.MAC
	SeqControl uint16
}

func (h *dot11Header) parse(r *wire.Reader) error {
	fc0, err := r.U8()
	if err != nil {
		return fmt.Errorf("802.11: %w", err)
	}
	if fc0&0x03 != 0 {
		return fmt.Errorf("%w: 802.11 protocol version %d", pdu.ErrMalformedPacket, fc0&0x03)
	}
	h.FrameType = fc0 >> 2 & 0x03
	h.Subtype = fc0 >> 4
	if h.Flags, err = r.U8(); err != nil {
		return fmt.Errorf("802.11: %w", err)
	}
	if h.Duration, err = r.U16LE(); err != nil {
		return fmt.Errorf("802.11: %w", err)
	}
	if err = r.Array(h.Addr1[:]); err != nil {
		return fmt.Errorf("802.11: %w", err)
	}
	if err = r.Array(h.Addr2[:]); err != nil {
		return fmt.Errorf("802.11: %w", err)
	}
	if err = r.Array(h.Addr3[:]); err != nil {
		return fmt.Errorf("802.11: %w", err)
	}
	if h.SeqControl, err = r.U16LE(); err != nil {
		return fmt.Errorf("802.11: %w", err)
	}
	return nil
}

func (h *dot11Header) write(w *wire.Writer) error {
	if err := w.U8(h.Subtype<<4 | h.FrameType<<2); err != nil {
		return err
	}
	if err := w.U8(h.Flags); err != nil {
		return err
	}
	if err := w.U16LE(h.Duration); err != nil {
		return err
	}
	if err := w.Bytes(h.Addr1[:]); err != nil {
		return err
	}
	if err := w.Bytes(h.Addr2[:]); err != nil {
		return err
	}
	if err := w.Bytes(h.Addr3[:]); err != nil {
		return err
	}
	return w.U16LE(h.SeqControl)
}

func (h *dot11Header) HasFlag(f uint8) bool { return h.Flags&f != 0 }

// ParseDot11 dispatches a raw 802.11 frame by its type field.
func ParseDot11(data []byte) (pdu.PDU, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: 802.11 frame control", pdu.ErrMalformedPacket)
	}
	switch data[0] >> 2 & 0x03 {
	case Dot11TypeManagement:
		return ParseDot11Mgmt(data)
	case Dot11TypeData:
		return ParseDot11Data(data)
	}
	// control frames carry no payload of interest; keep the raw bytes
	return pdu.NewRaw(data), nil
}

// Dot11Mgmt is any management frame. The fixed parameters that apply
// depend on the subtype; the rest of the body is the tagged option list.
type Dot11Mgmt struct {
	dot11Header

	// beacon / probe response
	Timestamp uint64
	Interval  uint16
	CapInfo   uint16

	// association / authentication
	ListenInterval uint16
	StatusCode     uint16
	AuthAlg        uint16
	AuthSeq        uint16

	// deauthentication / disassociation
	ReasonCode uint16

	options pdu.Options
}

// NewDot11Beacon builds a beacon advertising ssid from the given BSSID.
func NewDot11Beacon(bssid addr.MAC, ssid string) *Dot11Mgmt {
	m := &Dot11Mgmt{}
	m.FrameType = Dot11TypeManagement
	m.Subtype = Dot11SubtypeBeacon
	m.Addr1 = addr.Broadcast
	m.Addr2 = bssid
	m.Addr3 = bssid
	m.options = append(m.options, pdu.MustOption(Dot11OptSSID, []byte(ssid)))
	return m
}

func ParseDot11Mgmt(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	m := &Dot11Mgmt{}
	if err := m.dot11Header.parse(r); err != nil {
		return nil, err
	}
	var err error
	switch m.Subtype {
	case Dot11SubtypeBeacon, Dot11SubtypeProbeResp:
		if m.Timestamp, err = r.U64LE(); err != nil {
			return nil, fmt.Errorf("802.11 beacon: %w", err)
		}
		if m.Interval, err = r.U16LE(); err != nil {
			return nil, fmt.Errorf("802.11 beacon: %w", err)
		}
		if m.CapInfo, err = r.U16LE(); err != nil {
			return nil, fmt.Errorf("802.11 beacon: %w", err)
		}
	case Dot11SubtypeAssocReq:
		if m.CapInfo, err = r.U16LE(); err != nil {
			return nil, fmt.Errorf("802.11 assoc: %w", err)
		}
		if m.ListenInterval, err = r.U16LE(); err != nil {
			return nil, fmt.Errorf("802.11 assoc: %w", err)
		}
	case Dot11SubtypeAssocResp:
		if m.CapInfo, err = r.U16LE(); err != nil {
			return nil, fmt.Errorf("802.11 assoc: %w", err)
		}
		if m.StatusCode, err = r.U16LE(); err != nil {
			return nil, fmt.Errorf("802.11 assoc: %w", err)
		}
		if _, err = r.U16LE(); err != nil { // association id
			return nil, fmt.Errorf("802.11 assoc: %w", err)
		}
	case Dot11SubtypeAuth:
		if m.AuthAlg, err = r.U16LE(); err != nil {
			return nil, fmt.Errorf("802.11 auth: %w", err)
		}
		if m.AuthSeq, err = r.U16LE(); err != nil {
			return nil, fmt.Errorf("802.11 auth: %w", err)
		}
		if m.StatusCode, err = r.U16LE(); err != nil {
			return nil, fmt.Errorf("802.11 auth: %w", err)
		}
	case Dot11SubtypeDeauth, Dot11SubtypeDisassoc:
		if m.ReasonCode, err = r.U16LE(); err != nil {
			return nil, fmt.Errorf("802.11 deauth: %w", err)
		}
	}
	for r.Remaining() >= 2 {
		tag, _ := r.U8()
		length, _ := r.U8()
		payload, err := r.Bytes(int(length))
		if err != nil {
			return nil, fmt.Errorf("802.11 option %d: %w", tag, err)
		}
		opt, err := pdu.NewOption(uint16(tag), payload)
		if err != nil {
			return nil, err
		}
		m.options = append(m.options, opt)
	}
	return m, nil
}

func (m *Dot11Mgmt) Type() pdu.Type {
	switch m.Subtype {
	case Dot11SubtypeBeacon:
		return pdu.TypeDot11Beacon
	case Dot11SubtypeProbeReq:
		return pdu.TypeDot11ProbeReq
	case Dot11SubtypeProbeResp:
		return pdu.TypeDot11ProbeResp
	case Dot11SubtypeAssocReq:
		return pdu.TypeDot11AssocReq
	case Dot11SubtypeAssocResp:
		return pdu.TypeDot11AssocResp
	case Dot11SubtypeAuth:
		return pdu.TypeDot11Auth
	case Dot11SubtypeDeauth:
		return pdu.TypeDot11Deauth
	case Dot11SubtypeDisassoc:
		return pdu.TypeDot11Disassoc
	}
	return pdu.TypeDot11
}

// BSSID of a management frame is address 3.
func (m *Dot11Mgmt) BSSID() addr.MAC { return m.Addr3 }

// SSID reads the SSID tagged option.
func (m *Dot11Mgmt) SSID() (string, error) {
	o, err := m.options.Search(Dot11OptSSID)
	if err != nil {
		return "", err
	}
	return o.String()
}

// RSNInfo reads and decodes the RSN element, when present.
func (m *Dot11Mgmt) RSNInfo() (RSNInformation, error) {
	o, err := m.options.Search(Dot11OptRSN)
	if err != nil {
		return RSNInformation{}, err
	}
	return RSNInformationFromOption(o)
}

func (m *Dot11Mgmt) AddOption(o pdu.Option) { m.options = append(m.options, o) }

func (m *Dot11Mgmt) SearchOption(tag uint16) (*pdu.Option, error) { return m.options.Search(tag) }

func (m *Dot11Mgmt) RemoveOption(tag uint16) bool { return m.options.Remove(tag) }

func (m *Dot11Mgmt) Options() pdu.Options { return m.options }

func (m *Dot11Mgmt) fixedSize() int {
	switch m.Subtype {
	case Dot11SubtypeBeacon, Dot11SubtypeProbeResp:
		return 12
	case Dot11SubtypeAssocReq:
		return 4
	case Dot11SubtypeAssocResp, Dot11SubtypeAuth:
		return 6
	case Dot11SubtypeDeauth, Dot11SubtypeDisassoc:
		return 2
	}
	return 0
}

func (m *Dot11Mgmt) optionsSize() int {
	n := 0
	for i := range m.options {
		n += 2 + m.options[i].DataSize()
	}
	return n
}

func (m *Dot11Mgmt) HeaderSize() int { return 24 + m.fixedSize() + m.optionsSize() }

func (m *Dot11Mgmt) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	w := wire.NewWriter(buf)
	if err := m.dot11Header.write(w); err != nil {
		return err
	}
	switch m.Subtype {
	case Dot11SubtypeBeacon, Dot11SubtypeProbeResp:
		if err := w.U64LE(m.Timestamp); err != nil {
			return err
		}
		if err := w.U16LE(m.Interval); err != nil {
			return err
		}
		if err := w.U16LE(m.CapInfo); err != nil {
			return err
		}
	case Dot11SubtypeAssocReq:
		if err := w.U16LE(m.CapInfo); err != nil {
			return err
		}
		if err := w.U16LE(m.ListenInterval); err != nil {
			return err
		}
	case Dot11SubtypeAssocResp:
		if err := w.U16LE(m.CapInfo); err != nil {
			return err
		}
		if err := w.U16LE(m.StatusCode); err != nil {
			return err
		}
		if err := w.U16LE(0); err != nil {
			return err
		}
	case Dot11SubtypeAuth:
		if err := w.U16LE(m.AuthAlg); err != nil {
			return err
		}
		if err := w.U16LE(m.AuthSeq); err != nil {
			return err
		}
		if err := w.U16LE(m.StatusCode); err != nil {
			return err
		}
	case Dot11SubtypeDeauth, Dot11SubtypeDisassoc:
		if err := w.U16LE(m.ReasonCode); err != nil {
			return err
		}
	}
	for i := range m.options {
		o := &m.options[i]
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
	return nil
}

func (m *Dot11Mgmt) Clone() pdu.PDU {
	c := *m
	c.ResetLinks()
	c.options = m.options.Clone()
	if inner := m.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}

// Dot11Data is a data or QoS-data frame. A protected frame keeps its
// encrypted body as a Raw inner PDU until a decrypter replaces it.
type Dot11Data struct {
	dot11Header
	Addr4      addr.MAC // present when both DS flags are set
	QoSControl uint16   // present on QoS subtypes
}

func NewDot11Data(dst, src addr.MAC) *Dot11Data {
	d := &Dot11Data{}
	d.FrameType = Dot11TypeData
	d.Addr1 = dst
	d.Addr2 = src
	return d
}

func ParseDot11Data(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	d := &Dot11Data{}
	if err := d.dot11Header.parse(r); err != nil {
		return nil, err
	}
	var err error
	if d.hasAddr4() {
		if err = r.Array(d.Addr4[:]); err != nil {
			return nil, fmt.Errorf("802.11 data: %w", err)
		}
	}
	if d.IsQoS() {
		if d.QoSControl, err = r.U16LE(); err != nil {
			return nil, fmt.Errorf("802.11 qos: %w", err)
		}
	}
	if r.Remaining() > 0 {
		body := r.Rest()
		var inner pdu.PDU
		if d.HasFlag(Dot11FlagProtected) {
			inner = pdu.NewRaw(body)
		} else if inner, err = ParseLLC(body); err != nil {
			return nil, err
		}
		pdu.Chain(d, inner)
	}
	return d, nil
}

func (d *Dot11Data) hasAddr4() bool {
	return d.Flags&(Dot11FlagToDS|Dot11FlagFromDS) == Dot11FlagToDS|Dot11FlagFromDS
}

func (d *Dot11Data) IsQoS() bool { return d.Subtype&0x08 != 0 }

func (d *Dot11Data) Type() pdu.Type {
	if d.IsQoS() {
		return pdu.TypeDot11QoSData
	}
	return pdu.TypeDot11Data
}

// SrcAddr resolves the transmitter station address from the DS bits.
func (d *Dot11Data) SrcAddr() addr.MAC {
	if d.HasFlag(Dot11FlagFromDS) && !d.HasFlag(Dot11FlagToDS) {
		return d.Addr3
	}
	return d.Addr2
}

// DstAddr resolves the receiver station address from the DS bits.
func (d *Dot11Data) DstAddr() addr.MAC {
	if d.HasFlag(Dot11FlagToDS) && !d.HasFlag(Dot11FlagFromDS) {
		return d.Addr3
	}
	return d.Addr1
}

// BSSID resolves the access point address from the DS bits.
func (d *Dot11Data) BSSID() addr.MAC {
	switch {
	case d.HasFlag(Dot11FlagFromDS) && !d.HasFlag(Dot11FlagToDS):
		return d.Addr2
	case d.HasFlag(Dot11FlagToDS) && !d.HasFlag(Dot11FlagFromDS):
		return d.Addr1
	}
	return d.Addr3
}

// Priority is the traffic class of a QoS frame.
func (d *Dot11Data) Priority() uint8 { return uint8(d.QoSControl & 0x0f) }

func (d *Dot11Data) HeaderSize() int {
	n := 24
	if d.hasAddr4() {
		n += 6
	}
	if d.IsQoS() {
		n += 2
	}
	return n
}

func (d *Dot11Data) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	w := wire.NewWriter(buf)
	if err := d.dot11Header.write(w); err != nil {
		return err
	}
	if d.hasAddr4() {
		if err := w.Bytes(d.Addr4[:]); err != nil {
			return err
		}
	}
	if d.IsQoS() {
		return w.U16LE(d.QoSControl)
	}
	return nil
}

func (d *Dot11Data) Clone() pdu.PDU {
	c := *d
	c.ResetLinks()
	if inner := d.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
