package wpa2

import (
	"crypto/aes"
	"fmt"

	"github.com/pion/dtls/v2/pkg/crypto/ccm"

	"github.com/mellowdrifter/packetforge/layers"
	"github.com/mellowdrifter/packetforge/pdu"
)

const (
	ccmpHeaderSize = 8
	ccmpMICSize    = 8
)

// ccmpPN extracts the 48-bit packet number from the CCMP header bytes
// (0, 1, 4, 5, 6, 7; byte 3 carries the key id and ext-IV flag).
func ccmpPN(hdr []byte) uint64 {
	return uint64(hdr[7])<<40 | uint64(hdr[6])<<32 | uint64(hdr[5])<<24 |
		uint64(hdr[4])<<16 | uint64(hdr[1])<<8 | uint64(hdr[0])
}

// ccmpNonce builds the 13-byte CCM nonce: priority, transmitter address,
// packet number big-endian.
func ccmpNonce(frame *layers.Dot11Data, pn uint64) [13]byte {
	var nonce [13]byte
	if frame.IsQoS() {
		nonce[0] = frame.Priority()
	}
	a2 := frame.Addr2
	copy(nonce[1:7], a2[:])
	for i := 0; i < 6; i++ {
		nonce[7+i] = byte(pn >> (40 - 8*i))
	}
	return nonce
}

// ccmpAAD builds the additional authenticated data from the 802.11
// header: frame control with the mutable bits masked, the addresses, the
// masked sequence control, and A4/QoS control when present.
func ccmpAAD(frame *layers.Dot11Data) []byte {
	fc0 := frame.Subtype<<4 | frame.FrameType<<2
	if frame.IsQoS() {
		// subtype bits are masked for QoS data frames
		fc0 &^= 0x70
	}
	fc1 := frame.Flags
	fc1 &^= layers.Dot11FlagRetry | layers.Dot11FlagPowerMgmt | layers.Dot11FlagMoreData
	fc1 |= layers.Dot11FlagProtected

	aad := make([]byte, 0, 30)
	aad = append(aad, fc0, fc1)
	aad = append(aad, frame.Addr1[:]...)
	aad = append(aad, frame.Addr2[:]...)
	aad = append(aad, frame.Addr3[:]...)
	// sequence control keeps only the fragment number
	aad = append(aad, byte(frame.SeqControl&0x0f), 0)
	if frame.Flags&(layers.Dot11FlagToDS|layers.Dot11FlagFromDS) == layers.Dot11FlagToDS|layers.Dot11FlagFromDS {
		aad = append(aad, frame.Addr4[:]...)
	}
	if frame.IsQoS() {
		aad = append(aad, byte(frame.QoSControl&0x0f), 0)
	}
	return aad
}

// decryptCCMP runs AES-CCM-128 over the frame body (CCMP header,
// ciphertext, 8-byte MIC) and returns the plaintext payload.
func decryptCCMP(tk [16]byte, frame *layers.Dot11Data, body []byte) ([]byte, uint64, error) {
	if len(body) < ccmpHeaderSize+ccmpMICSize {
		return nil, 0, fmt.Errorf("%w: ccmp body %d bytes", pdu.ErrMalformedPacket, len(body))
	}
	if body[3]&0x20 == 0 {
		return nil, 0, fmt.Errorf("%w: ccmp ext-iv clear", pdu.ErrMalformedPacket)
	}
	pn := ccmpPN(body[:ccmpHeaderSize])
	block, err := aes.NewCipher(tk[:])
	if err != nil {
		return nil, 0, err
	}
	// M = 8-byte tag, L = 2-byte length field, so the nonce is 13 bytes
	mode, err := ccm.NewCCM(block, ccmpMICSize, 13)
	if err != nil {
		return nil, 0, err
	}
	nonce := ccmpNonce(frame, pn)
	plain, err := mode.Open(nil, nonce[:], body[ccmpHeaderSize:], ccmpAAD(frame))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: ccmp mic", pdu.ErrInvalidHandshake)
	}
	return plain, pn, nil
}
