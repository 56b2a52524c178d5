package layers

import (
	"encoding/binary"
	"fmt"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// DHCPv6 message types.
const (
	DHCPv6Solicit     uint8 = 1
	DHCPv6Advertise   uint8 = 2
	DHCPv6Request     uint8 = 3
	DHCPv6Confirm     uint8 = 4
	DHCPv6Renew       uint8 = 5
	DHCPv6Rebind      uint8 = 6
	DHCPv6Reply       uint8 = 7
	DHCPv6Release     uint8 = 8
	DHCPv6Decline     uint8 = 9
	DHCPv6Reconfigure uint8 = 10
	DHCPv6InfoRequest uint8 = 11
	DHCPv6RelayForwrd uint8 = 12
	DHCPv6RelayReply  uint8 = 13
)

// DHCPv6 option codes.
const (
	DHCPv6OptClientID    uint16 = 1
	DHCPv6OptServerID    uint16 = 2
	DHCPv6OptIANA        uint16 = 3
	DHCPv6OptIATA        uint16 = 4
	DHCPv6OptIAAddr      uint16 = 5
	DHCPv6OptOptionReq   uint16 = 6
	DHCPv6OptElapsedTime uint16 = 8
	DHCPv6OptRelayMsg    uint16 = 9
	DHCPv6OptAuth        uint16 = 11
	DHCPv6OptStatusCode  uint16 = 13
	DHCPv6OptUserClass   uint16 = 15
	DHCPv6OptVendorClass uint16 = 16
)

// DUID type codes.
const (
	DUIDTypeLLT uint16 = 1
	DUIDTypeEN  uint16 = 2
	DUIDTypeLL  uint16 = 3
)

// DHCPv6 is a client/server or relay message. Client/server messages
// carry a 3-byte transaction id; relay messages a hop count plus link and
// peer addresses.
type DHCPv6 struct {
	pdu.Base
	MsgType uint8

	// client/server form
	transactionID uint32 // low 24 bits

	// relay form
	HopCount uint8
	LinkAddr addr.IPv6
	PeerAddr addr.IPv6

	options pdu.Options
}

func NewDHCPv6(msgType uint8) *DHCPv6 {
	return &DHCPv6{MsgType: msgType}
}

// IsRelay reports whether the message uses the relay header form.
func (d *DHCPv6) IsRelay() bool {
	return d.MsgType == DHCPv6RelayForwrd || d.MsgType == DHCPv6RelayReply
}

func ParseDHCPv6(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	d := &DHCPv6{}
	var err error
	if d.MsgType, err = r.U8(); err != nil {
		return nil, fmt.Errorf("dhcpv6: %w", err)
	}
	if d.IsRelay() {
		if d.HopCount, err = r.U8(); err != nil {
			return nil, fmt.Errorf("dhcpv6 relay: %w", err)
		}
		if err = r.Array(d.LinkAddr[:]); err != nil {
			return nil, fmt.Errorf("dhcpv6 relay: %w", err)
		}
		if err = r.Array(d.PeerAddr[:]); err != nil {
			return nil, fmt.Errorf("dhcpv6 relay: %w", err)
		}
	} else {
		b, err := r.Bytes(3)
		if err != nil {
			return nil, fmt.Errorf("dhcpv6: %w", err)
		}
		d.transactionID = uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	}
	for r.Remaining() > 0 {
		code, err := r.U16()
		if err != nil {
			return nil, fmt.Errorf("dhcpv6 option: %w", err)
		}
		length, err := r.U16()
		if err != nil {
			return nil, fmt.Errorf("dhcpv6 option %d: %w", code, err)
		}
		payload, err := r.Bytes(int(length))
		if err != nil {
			return nil, fmt.Errorf("dhcpv6 option %d: %w", code, err)
		}
		opt, err := pdu.NewOption(code, payload)
		if err != nil {
			return nil, err
		}
		d.options = append(d.options, opt)
	}
	return d, nil
}

func (d *DHCPv6) Type() pdu.Type { return pdu.TypeDHCPv6 }

func (d *DHCPv6) TransactionID() (uint32, error) {
	if d.IsRelay() {
		return 0, fmt.Errorf("%w: transaction id on relay message", pdu.ErrFieldNotPresent)
	}
	return d.transactionID, nil
}

func (d *DHCPv6) SetTransactionID(id uint32) {
	d.transactionID = id & 0xffffff
}

func (d *DHCPv6) AddOption(o pdu.Option) { d.options = append(d.options, o) }

func (d *DHCPv6) SearchOption(tag uint16) (*pdu.Option, error) { return d.options.Search(tag) }

func (d *DHCPv6) RemoveOption(tag uint16) bool { return d.options.Remove(tag) }

func (d *DHCPv6) Options() pdu.Options { return d.options }

func (d *DHCPv6) optionsSize() int {
	n := 0
	for i := range d.options {
		n += 4 + d.options[i].DataSize()
	}
	return n
}

func (d *DHCPv6) HeaderSize() int {
	if d.IsRelay() {
		return 34 + d.optionsSize()
	}
	return 4 + d.optionsSize()
}

func (d *DHCPv6) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	w := wire.NewWriter(buf)
	if err := w.U8(d.MsgType); err != nil {
		return err
	}
	if d.IsRelay() {
		if err := w.U8(d.HopCount); err != nil {
			return err
		}
		if err := w.Bytes(d.LinkAddr[:]); err != nil {
			return err
		}
		if err := w.Bytes(d.PeerAddr[:]); err != nil {
			return err
		}
	} else {
		if err := w.U8(uint8(d.transactionID >> 16)); err != nil {
			return err
		}
		if err := w.U16(uint16(d.transactionID)); err != nil {
			return err
		}
	}
	for i := range d.options {
		o := &d.options[i]
		if err := w.U16(o.Tag()); err != nil {
			return err
		}
		if err := w.U16(uint16(o.DataSize())); err != nil {
			return err
		}
		if err := w.Bytes(o.Data()); err != nil {
			return err
		}
	}
	return nil
}

func (d *DHCPv6) MatchesResponse(resp []byte) bool {
	if d.IsRelay() || len(resp) < 4 {
		return false
	}
	id := uint32(resp[1])<<16 | uint32(resp[2])<<8 | uint32(resp[3])
	return id == d.transactionID
}

func (d *DHCPv6) Clone() pdu.PDU {
	c := *d
	c.ResetLinks()
	c.options = d.options.Clone()
	if inner := d.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}

// Structured option payloads. Each has a FromOption constructor and a
// ToOption serializer.

// DHCPv6IANA is a non-temporary address association.
type DHCPv6IANA struct {
	IAID    uint32
	T1      uint32
	T2      uint32
	Options []byte
}

func DHCPv6IANAFromOption(o *pdu.Option) (DHCPv6IANA, error) {
	var ia DHCPv6IANA
	d := o.Data()
	if len(d) < 12 {
		return ia, fmt.Errorf("%w: ia_na payload %d bytes", pdu.ErrMalformedOption, len(d))
	}
	ia.IAID = binary.BigEndian.Uint32(d[0:4])
	ia.T1 = binary.BigEndian.Uint32(d[4:8])
	ia.T2 = binary.BigEndian.Uint32(d[8:12])
	ia.Options = append([]byte(nil), d[12:]...)
	return ia, nil
}

func (ia DHCPv6IANA) ToOption() pdu.Option {
	b := make([]byte, 12+len(ia.Options))
	binary.BigEndian.PutUint32(b[0:4], ia.IAID)
	binary.BigEndian.PutUint32(b[4:8], ia.T1)
	binary.BigEndian.PutUint32(b[8:12], ia.T2)
	copy(b[12:], ia.Options)
	o, _ := pdu.NewOption(DHCPv6OptIANA, b)
	return o
}

// DHCPv6IATA is a temporary address association.
type DHCPv6IATA struct {
	IAID    uint32
	Options []byte
}

func DHCPv6IATAFromOption(o *pdu.Option) (DHCPv6IATA, error) {
	var ia DHCPv6IATA
	d := o.Data()
	if len(d) < 4 {
		return ia, fmt.Errorf("%w: ia_ta payload %d bytes", pdu.ErrMalformedOption, len(d))
	}
	ia.IAID = binary.BigEndian.Uint32(d[0:4])
	ia.Options = append([]byte(nil), d[4:]...)
	return ia, nil
}

func (ia DHCPv6IATA) ToOption() pdu.Option {
	b := make([]byte, 4+len(ia.Options))
	binary.BigEndian.PutUint32(b[0:4], ia.IAID)
	copy(b[4:], ia.Options)
	o, _ := pdu.NewOption(DHCPv6OptIATA, b)
	return o
}

// DHCPv6IAAddress is one address inside an IA.
type DHCPv6IAAddress struct {
	Address           addr.IPv6
	PreferredLifetime uint32
	ValidLifetime     uint32
	Options           []byte
}

func DHCPv6IAAddressFromOption(o *pdu.Option) (DHCPv6IAAddress, error) {
	var ia DHCPv6IAAddress
	d := o.Data()
	if len(d) < 24 {
		return ia, fmt.Errorf("%w: ia_addr payload %d bytes", pdu.ErrMalformedOption, len(d))
	}
	copy(ia.Address[:], d[0:16])
	ia.PreferredLifetime = binary.BigEndian.Uint32(d[16:20])
	ia.ValidLifetime = binary.BigEndian.Uint32(d[20:24])
	ia.Options = append([]byte(nil), d[24:]...)
	return ia, nil
}

func (ia DHCPv6IAAddress) ToOption() pdu.Option {
	b := make([]byte, 24+len(ia.Options))
	copy(b[0:16], ia.Address[:])
	binary.BigEndian.PutUint32(b[16:20], ia.PreferredLifetime)
	binary.BigEndian.PutUint32(b[20:24], ia.ValidLifetime)
	copy(b[24:], ia.Options)
	o, _ := pdu.NewOption(DHCPv6OptIAAddr, b)
	return o
}

// DHCPv6StatusCode is a status code plus message.
type DHCPv6StatusCode struct {
	Code    uint16
	Message string
}

func DHCPv6StatusCodeFromOption(o *pdu.Option) (DHCPv6StatusCode, error) {
	var sc DHCPv6StatusCode
	d := o.Data()
	if len(d) < 2 {
		return sc, fmt.Errorf("%w: status code payload %d bytes", pdu.ErrMalformedOption, len(d))
	}
	sc.Code = binary.BigEndian.Uint16(d[0:2])
	sc.Message = string(d[2:])
	return sc, nil
}

func (sc DHCPv6StatusCode) ToOption() pdu.Option {
	b := make([]byte, 2+len(sc.Message))
	binary.BigEndian.PutUint16(b[0:2], sc.Code)
	copy(b[2:], sc.Message)
	o, _ := pdu.NewOption(DHCPv6OptStatusCode, b)
	return o
}

// DHCPv6Auth is the authentication option.
type DHCPv6Auth struct {
	Protocol  uint8
	Algorithm uint8
	RDM       uint8
	ReplayDet uint64
	AuthInfo  []byte
}

func DHCPv6AuthFromOption(o *pdu.Option) (DHCPv6Auth, error) {
	var a DHCPv6Auth
	d := o.Data()
	if len(d) < 11 {
		return a, fmt.Errorf("%w: auth payload %d bytes", pdu.ErrMalformedOption, len(d))
	}
	a.Protocol = d[0]
	a.Algorithm = d[1]
	a.RDM = d[2]
	a.ReplayDet = binary.BigEndian.Uint64(d[3:11])
	a.AuthInfo = append([]byte(nil), d[11:]...)
	return a, nil
}

func (a DHCPv6Auth) ToOption() pdu.Option {
	b := make([]byte, 11+len(a.AuthInfo))
	b[0] = a.Protocol
	b[1] = a.Algorithm
	b[2] = a.RDM
	binary.BigEndian.PutUint64(b[3:11], a.ReplayDet)
	copy(b[11:], a.AuthInfo)
	o, _ := pdu.NewOption(DHCPv6OptAuth, b)
	return o
}

// DHCPv6DUID is a device unique identifier in LLT, EN or LL form. The
// body layout depends on the type code.
type DHCPv6DUID struct {
	DUIDType uint16
	Body     []byte
}

func DHCPv6DUIDFromOption(o *pdu.Option) (DHCPv6DUID, error) {
	var du DHCPv6DUID
	d := o.Data()
	if len(d) < 2 {
		return du, fmt.Errorf("%w: duid payload %d bytes", pdu.ErrMalformedOption, len(d))
	}
	du.DUIDType = binary.BigEndian.Uint16(d[0:2])
	du.Body = append([]byte(nil), d[2:]...)
	switch du.DUIDType {
	case DUIDTypeLLT:
		if len(du.Body) < 8 {
			return du, fmt.Errorf("%w: duid-llt body %d bytes", pdu.ErrMalformedOption, len(du.Body))
		}
	case DUIDTypeEN:
		if len(du.Body) < 4 {
			return du, fmt.Errorf("%w: duid-en body %d bytes", pdu.ErrMalformedOption, len(du.Body))
		}
	case DUIDTypeLL:
		if len(du.Body) < 2 {
			return du, fmt.Errorf("%w: duid-ll body %d bytes", pdu.ErrMalformedOption, len(du.Body))
		}
	}
	return du, nil
}

func (du DHCPv6DUID) ToOption(code uint16) pdu.Option {
	b := make([]byte, 2+len(du.Body))
	binary.BigEndian.PutUint16(b[0:2], du.DUIDType)
	copy(b[2:], du.Body)
	o, _ := pdu.NewOption(code, b)
	return o
}

// DHCPv6UserClass is a list of length-prefixed opaque chunks.
type DHCPv6UserClass struct {
	Data [][]byte
}

func DHCPv6UserClassFromOption(o *pdu.Option) (DHCPv6UserClass, error) {
	var uc DHCPv6UserClass
	r := wire.NewReader(o.Data())
	for r.Remaining() > 0 {
		n, err := r.U16()
		if err != nil {
			return uc, fmt.Errorf("%w: user class", pdu.ErrMalformedOption)
		}
		chunk, err := r.Bytes(int(n))
		if err != nil {
			return uc, fmt.Errorf("%w: user class chunk", pdu.ErrMalformedOption)
		}
		uc.Data = append(uc.Data, append([]byte(nil), chunk...))
	}
	return uc, nil
}

func (uc DHCPv6UserClass) ToOption() pdu.Option {
	var b []byte
	for _, chunk := range uc.Data {
		var n [2]byte
		binary.BigEndian.PutUint16(n[:], uint16(len(chunk)))
		b = append(b, n[:]...)
		b = append(b, chunk...)
	}
	o, _ := pdu.NewOption(DHCPv6OptUserClass, b)
	return o
}

// DHCPv6VendorClass carries an enterprise number plus chunks.
type DHCPv6VendorClass struct {
	EnterpriseNumber uint32
	Data             [][]byte
}

func DHCPv6VendorClassFromOption(o *pdu.Option) (DHCPv6VendorClass, error) {
	var vc DHCPv6VendorClass
	d := o.Data()
	if len(d) < 4 {
		return vc, fmt.Errorf("%w: vendor class payload %d bytes", pdu.ErrMalformedOption, len(d))
	}
	vc.EnterpriseNumber = binary.BigEndian.Uint32(d[0:4])
	r := wire.NewReader(d[4:])
	for r.Remaining() > 0 {
		n, err := r.U16()
		if err != nil {
			return vc, fmt.Errorf("%w: vendor class", pdu.ErrMalformedOption)
		}
		chunk, err := r.Bytes(int(n))
		if err != nil {
			return vc, fmt.Errorf("%w: vendor class chunk", pdu.ErrMalformedOption)
		}
		vc.Data = append(vc.Data, append([]byte(nil), chunk...))
	}
	return vc, nil
}

func (vc DHCPv6VendorClass) ToOption() pdu.Option {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, vc.EnterpriseNumber)
	for _, chunk := range vc.Data {
		var n [2]byte
		binary.BigEndian.PutUint16(n[:], uint16(len(chunk)))
		b = append(b, n[:]...)
		b = append(b, chunk...)
	}
	o, _ := pdu.NewOption(DHCPv6OptVendorClass, b)
	return o
}
