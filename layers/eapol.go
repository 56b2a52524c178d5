package layers

import (
	"fmt"

	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// EAPOL key descriptor types.
const (
	EAPOLDescRC4 uint8 = 1
	EAPOLDescRSN uint8 = 2
	EAPOLDescWPA uint8 = 254
)

// RSN EAPOL-Key key-info bits.
const (
	RSNKeyInfoKeyType   uint16 = 1 << 3 // pairwise when set
	RSNKeyInfoInstall   uint16 = 1 << 6
	RSNKeyInfoKeyAck    uint16 = 1 << 7
	RSNKeyInfoKeyMIC    uint16 = 1 << 8
	RSNKeyInfoSecure    uint16 = 1 << 9
	RSNKeyInfoError     uint16 = 1 << 10
	RSNKeyInfoRequest   uint16 = 1 << 11
	RSNKeyInfoEncrypted uint16 = 1 << 12
)

// ParseEAPOL dispatches on the key descriptor type shared by all EAPOL
// variants.
func ParseEAPOL(data []byte) (pdu.PDU, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: eapol header", pdu.ErrMalformedPacket)
	}
	switch data[4] {
	case EAPOLDescRC4:
		return ParseRC4EAPOL(data)
	case EAPOLDescRSN, EAPOLDescWPA:
		return ParseRSNEAPOL(data)
	}
	return nil, fmt.Errorf("%w: eapol descriptor type %d", pdu.ErrMalformedPacket, data[4])
}

// eapolHeader is the prefix shared by the RC4 and RSN variants.
type eapolHeader struct {
	Version    uint8
	PacketType uint8
	DescType   uint8

	length uint16
}

func (h *eapolHeader) parsePrefix(r *wire.Reader) error {
	var err error
	if h.Version, err = r.U8(); err != nil {
		return fmt.Errorf("eapol: %w", err)
	}
	if h.PacketType, err = r.U8(); err != nil {
		return fmt.Errorf("eapol: %w", err)
	}
	if h.length, err = r.U16(); err != nil {
		return fmt.Errorf("eapol: %w", err)
	}
	if h.DescType, err = r.U8(); err != nil {
		return fmt.Errorf("eapol: %w", err)
	}
	return nil
}

func (h *eapolHeader) writePrefix(w *wire.Writer, bodyLen int) error {
	h.length = uint16(bodyLen)
	if err := w.U8(h.Version); err != nil {
		return err
	}
	if err := w.U8(h.PacketType); err != nil {
		return err
	}
	if err := w.U16(h.length); err != nil {
		return err
	}
	return w.U8(h.DescType)
}

// RC4EAPOL is the legacy RC4 key descriptor frame.
type RC4EAPOL struct {
	pdu.Base
	eapolHeader
	KeyLength     uint16
	ReplayCounter uint64
	KeyIV         [16]byte
	KeyFlag       bool // broadcast/unicast bit
	KeyIndex      uint8
	Signature     [16]byte
	Key           []byte
}

func NewRC4EAPOL() *RC4EAPOL {
	e := &RC4EAPOL{}
	e.Version = 1
	e.PacketType = 3
	e.DescType = EAPOLDescRC4
	return e
}

func ParseRC4EAPOL(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	e := &RC4EAPOL{}
	if err := e.parsePrefix(r); err != nil {
		return nil, err
	}
	var err error
	if e.KeyLength, err = r.U16(); err != nil {
		return nil, fmt.Errorf("rc4 eapol: %w", err)
	}
	if e.ReplayCounter, err = r.U64(); err != nil {
		return nil, fmt.Errorf("rc4 eapol: %w", err)
	}
	if err = r.Array(e.KeyIV[:]); err != nil {
		return nil, fmt.Errorf("rc4 eapol: %w", err)
	}
	idx, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("rc4 eapol: %w", err)
	}
	e.KeyFlag = idx&0x80 != 0
	e.KeyIndex = idx & 0x7f
	if err = r.Array(e.Signature[:]); err != nil {
		return nil, fmt.Errorf("rc4 eapol: %w", err)
	}
	e.Key = append([]byte(nil), r.Rest()...)
	return e, nil
}

func (e *RC4EAPOL) Type() pdu.Type { return pdu.TypeRC4EAPOL }

func (e *RC4EAPOL) HeaderSize() int { return 4 + 1 + 2 + 8 + 16 + 1 + 16 + len(e.Key) }

func (e *RC4EAPOL) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	w := wire.NewWriter(buf)
	if err := e.writePrefix(w, len(buf)-4); err != nil {
		return err
	}
	if err := w.U16(e.KeyLength); err != nil {
		return err
	}
	if err := w.U64(e.ReplayCounter); err != nil {
		return err
	}
	if err := w.Bytes(e.KeyIV[:]); err != nil {
		return err
	}
	idx := e.KeyIndex & 0x7f
	if e.KeyFlag {
		idx |= 0x80
	}
	if err := w.U8(idx); err != nil {
		return err
	}
	if err := w.Bytes(e.Signature[:]); err != nil {
		return err
	}
	return w.Bytes(e.Key)
}

func (e *RC4EAPOL) Clone() pdu.PDU {
	c := *e
	c.ResetLinks()
	c.Key = append([]byte(nil), e.Key...)
	if inner := e.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}

// RSNEAPOL is the 802.11i EAPOL-Key frame driving the 4-way handshake.
type RSNEAPOL struct {
	pdu.Base
	eapolHeader
	KeyInfo       uint16
	KeyLength     uint16
	ReplayCounter uint64
	Nonce         [32]byte
	KeyIV         [16]byte
	RSC           uint64
	KeyID         uint64
	MIC           [16]byte
	KeyData       []byte
}

func NewRSNEAPOL() *RSNEAPOL {
	e := &RSNEAPOL{}
	e.Version = 1
	e.PacketType = 3
	e.DescType = EAPOLDescRSN
	return e
}

func ParseRSNEAPOL(data []byte) (pdu.PDU, error) {
	r := wire.NewReader(data)
	e := &RSNEAPOL{}
	if err := e.parsePrefix(r); err != nil {
		return nil, err
	}
	var err error
	if e.KeyInfo, err = r.U16(); err != nil {
		return nil, fmt.Errorf("rsn eapol: %w", err)
	}
	if e.KeyLength, err = r.U16(); err != nil {
		return nil, fmt.Errorf("rsn eapol: %w", err)
	}
	if e.ReplayCounter, err = r.U64(); err != nil {
		return nil, fmt.Errorf("rsn eapol: %w", err)
	}
	if err = r.Array(e.Nonce[:]); err != nil {
		return nil, fmt.Errorf("rsn eapol: %w", err)
	}
	if err = r.Array(e.KeyIV[:]); err != nil {
		return nil, fmt.Errorf("rsn eapol: %w", err)
	}
	if e.RSC, err = r.U64(); err != nil {
		return nil, fmt.Errorf("rsn eapol: %w", err)
	}
	if e.KeyID, err = r.U64(); err != nil {
		return nil, fmt.Errorf("rsn eapol: %w", err)
	}
	if err = r.Array(e.MIC[:]); err != nil {
		return nil, fmt.Errorf("rsn eapol: %w", err)
	}
	dataLen, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("rsn eapol: %w", err)
	}
	keyData, err := r.Bytes(int(dataLen))
	if err != nil {
		return nil, fmt.Errorf("rsn eapol key data: %w", err)
	}
	e.KeyData = append([]byte(nil), keyData...)
	return e, nil
}

func (e *RSNEAPOL) Type() pdu.Type { return pdu.TypeRSNEAPOL }

// Key-info bit accessors.
func (e *RSNEAPOL) KeyT() bool      { return e.KeyInfo&RSNKeyInfoKeyType != 0 }
func (e *RSNEAPOL) Install() bool   { return e.KeyInfo&RSNKeyInfoInstall != 0 }
func (e *RSNEAPOL) KeyAck() bool    { return e.KeyInfo&RSNKeyInfoKeyAck != 0 }
func (e *RSNEAPOL) KeyMIC() bool    { return e.KeyInfo&RSNKeyInfoKeyMIC != 0 }
func (e *RSNEAPOL) Secure() bool    { return e.KeyInfo&RSNKeyInfoSecure != 0 }
func (e *RSNEAPOL) Encrypted() bool { return e.KeyInfo&RSNKeyInfoEncrypted != 0 }

func (e *RSNEAPOL) HeaderSize() int { return 4 + 95 + len(e.KeyData) }

func (e *RSNEAPOL) WriteHeader(buf []byte, _ *pdu.SerializeContext) error {
	w := wire.NewWriter(buf)
	if err := e.writePrefix(w, len(buf)-4); err != nil {
		return err
	}
	if err := w.U16(e.KeyInfo); err != nil {
		return err
	}
	if err := w.U16(e.KeyLength); err != nil {
		return err
	}
	if err := w.U64(e.ReplayCounter); err != nil {
		return err
	}
	if err := w.Bytes(e.Nonce[:]); err != nil {
		return err
	}
	if err := w.Bytes(e.KeyIV[:]); err != nil {
		return err
	}
	if err := w.U64(e.RSC); err != nil {
		return err
	}
	if err := w.U64(e.KeyID); err != nil {
		return err
	}
	if err := w.Bytes(e.MIC[:]); err != nil {
		return err
	}
	if err := w.U16(uint16(len(e.KeyData))); err != nil {
		return err
	}
	return w.Bytes(e.KeyData)
}

func (e *RSNEAPOL) Clone() pdu.PDU {
	c := *e
	c.ResetLinks()
	c.KeyData = append([]byte(nil), e.KeyData...)
	if inner := e.Inner(); inner != nil {
		pdu.Chain(&c, inner.Clone())
	}
	return &c
}
