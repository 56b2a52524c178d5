package wpa2

import (
	"crypto/rc4"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/layers"
	"github.com/mellowdrifter/packetforge/pdu"
)

const tkipHeaderSize = 8

// tkipSbox is the S-box of the IEEE 802.11i TKIP key mixing function.
var tkipSbox = [256]uint16{
	0xC6A5, 0xF884, 0xEE99, 0xF68D, 0xFF0D, 0xD6BD, 0xDEB1, 0x9154,
	0x6050, 0x0203, 0xCEA9, 0x567D, 0xE719, 0xB562, 0x4DE6, 0xEC9A,
	0x8F45, 0x1F9D, 0x8940, 0xFA87, 0xEF15, 0xB2EB, 0x8EC9, 0xFB0B,
	0x41EC, 0xB367, 0x5FFD, 0x45EA, 0x23BF, 0x53F7, 0xE496, 0x9B5B,
	0x75C2, 0xE11C, 0x3DAE, 0x4C6A, 0x6C5A, 0x7E41, 0xF502, 0x834F,
	0x685C, 0x51F4, 0xD134, 0xF908, 0xE293, 0xAB73, 0x6253, 0x2A3F,
	0x080C, 0x9552, 0x4665, 0x9D5E, 0x3028, 0x37A1, 0x0A0F, 0x2FB5,
	0x0E09, 0x2436, 0x1B9B, 0xDF3D, 0xCD26, 0x4E69, 0x7FCD, 0xEA9F,
	0x121B, 0x1D9E, 0x5874, 0x342E, 0x362D, 0xDCB2, 0xB4EE, 0x5BFB,
	0xA4F6, 0x764D, 0xB761, 0x7DCE, 0x527B, 0xDD3E, 0x5E71, 0x1397,
	0xA6F5, 0xB968, 0x0000, 0xC12C, 0x4060, 0xE31F, 0x79C8, 0xB6ED,
	0xD4BE, 0x8D46, 0x67D9, 0x724B, 0x94DE, 0x98D4, 0xB0E8, 0x854A,
	0xBB6B, 0xC52A, 0x4FE5, 0xED16, 0x86C5, 0x9AD7, 0x6655, 0x1194,
	0x8ACF, 0xE910, 0x0406, 0xFE81, 0xA0F0, 0x7844, 0x25BA, 0x4BE3,
	0xA2F3, 0x5DFE, 0x80C0, 0x058A, 0x3FAD, 0x21BC, 0x7048, 0xF104,
	0x63DF, 0x77C1, 0xAF75, 0x4263, 0x2030, 0xE51A, 0xFD0E, 0xBF6D,
	0x814C, 0x1814, 0x2635, 0xC32F, 0xBEE1, 0x35A2, 0x88CC, 0x2E39,
	0x9357, 0x55F2, 0xFC82, 0x7A47, 0xC8AC, 0xBAE7, 0x322B, 0xE695,
	0xC0A0, 0x1998, 0x9ED1, 0xA37F, 0x4466, 0x547E, 0x3BAB, 0x0B83,
	0x8CCA, 0xC729, 0x6BD3, 0x283C, 0xA779, 0xBCE2, 0x161D, 0xAD76,
	0xDB3B, 0x6456, 0x744E, 0x141E, 0x92DB, 0x0C0A, 0x486C, 0xB8E4,
	0x9F5D, 0xBD6E, 0x43EF, 0xC4A6, 0x39A8, 0x31A4, 0xD337, 0xF28B,
	0xD532, 0x8B43, 0x6E59, 0xDAB7, 0x018C, 0xB164, 0x9CD2, 0x49E0,
	0xD8B4, 0xACFA, 0xF307, 0xCF25, 0xCAAF, 0xF48E, 0x47E9, 0x1018,
	0x6FD5, 0xF088, 0x4A6F, 0x5C72, 0x3824, 0x57F1, 0x73C7, 0x9751,
	0xCB23, 0xA17C, 0xE89C, 0x3E21, 0x96DD, 0x61DC, 0x0D86, 0x0F85,
	0xE090, 0x7C42, 0x71C4, 0xCCAA, 0x90D8, 0x0605, 0xF701, 0x1C12,
	0xC2A3, 0x6A5F, 0xAEF9, 0x69D0, 0x1791, 0x9958, 0x3A27, 0x27B9,
	0xD938, 0xEB13, 0x2BB3, 0x2233, 0xD2BB, 0xA970, 0x0789, 0x33A7,
	0x2DB6, 0x3C22, 0x1592, 0xC920, 0x8749, 0xAAFF, 0x5078, 0xA57A,
	0x038F, 0x59F8, 0x0980, 0x1A17, 0x65DA, 0xD731, 0x84C6, 0xD0B8,
	0x82C3, 0x29B0, 0x5A77, 0x1E11, 0x7BCB, 0xA8FC, 0x6DD6, 0x2C3A,
}

func tkipS(v uint16) uint16 {
	return tkipSbox[v&0xff] ^ (tkipSbox[v>>8]<<8 | tkipSbox[v>>8]>>8)
}

func rotr1(v uint16) uint16 {
	return v>>1 | v<<15
}

// tkipPhase1 mixes the temporal key with the transmitter address and the
// upper 32 bits of the TKIP sequence counter.
func tkipPhase1(tk [16]byte, ta addr.MAC, tscHigh uint32) [5]uint16 {
	var p1 [5]uint16
	p1[0] = uint16(tscHigh)
	p1[1] = uint16(tscHigh >> 16)
	p1[2] = binary.LittleEndian.Uint16(ta[0:2])
	p1[3] = binary.LittleEndian.Uint16(ta[2:4])
	p1[4] = binary.LittleEndian.Uint16(ta[4:6])
	for i := 0; i < 8; i++ {
		j := uint16(2 * (i & 1))
		p1[0] += tkipS(p1[4] ^ binary.LittleEndian.Uint16(tk[j:j+2]))
		p1[1] += tkipS(p1[0] ^ binary.LittleEndian.Uint16(tk[4+j:6+j]))
		p1[2] += tkipS(p1[1] ^ binary.LittleEndian.Uint16(tk[8+j:10+j]))
		p1[3] += tkipS(p1[2] ^ binary.LittleEndian.Uint16(tk[12+j:14+j]))
		p1[4] += tkipS(p1[3]^binary.LittleEndian.Uint16(tk[j:j+2])) + uint16(i)
	}
	return p1
}

// tkipPhase2 produces the 16-byte per-packet RC4 key.
func tkipPhase2(tk [16]byte, p1 [5]uint16, tscLow uint16) [16]byte {
	var ppk [6]uint16
	copy(ppk[:], p1[:])
	ppk[5] = p1[4] + tscLow

	tk16 := func(i int) uint16 { return binary.LittleEndian.Uint16(tk[2*i : 2*i+2]) }
	ppk[0] += tkipS(ppk[5] ^ tk16(0))
	ppk[1] += tkipS(ppk[0] ^ tk16(1))
	ppk[2] += tkipS(ppk[1] ^ tk16(2))
	ppk[3] += tkipS(ppk[2] ^ tk16(3))
	ppk[4] += tkipS(ppk[3] ^ tk16(4))
	ppk[5] += tkipS(ppk[4] ^ tk16(5))
	ppk[0] += rotr1(ppk[5] ^ tk16(6))
	ppk[1] += rotr1(ppk[0] ^ tk16(7))
	ppk[2] += rotr1(ppk[1])
	ppk[3] += rotr1(ppk[2])
	ppk[4] += rotr1(ppk[3])
	ppk[5] += rotr1(ppk[4])

	var key [16]byte
	key[0] = byte(tscLow >> 8)
	key[1] = (byte(tscLow>>8) | 0x20) & 0x7f
	key[2] = byte(tscLow)
	key[3] = byte((ppk[5] ^ tk16(0)) >> 1)
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint16(key[4+2*i:], ppk[i])
	}
	return key
}

// michael computes the Michael MIC over the DA/SA/priority header and
// the plaintext payload.
func michael(key [8]byte, da, sa addr.MAC, priority uint8, data []byte) [8]byte {
	l := binary.LittleEndian.Uint32(key[0:4])
	r := binary.LittleEndian.Uint32(key[4:8])

	block := func(v uint32) {
		l ^= v
		r ^= l<<17 | l>>15
		l += r
		r ^= ((l & 0xff00ff00) >> 8) | ((l & 0x00ff00ff) << 8)
		l += r
		r ^= l<<3 | l>>29
		l += r
		r ^= l>>2 | l<<30
		l += r
	}

	hdr := make([]byte, 0, 16+len(data)+8)
	hdr = append(hdr, da[:]...)
	hdr = append(hdr, sa[:]...)
	hdr = append(hdr, priority, 0, 0, 0)
	hdr = append(hdr, data...)
	hdr = append(hdr, 0x5a, 0, 0, 0)
	for len(hdr)%4 != 0 {
		hdr = append(hdr, 0)
	}
	for i := 0; i < len(hdr); i += 4 {
		block(binary.LittleEndian.Uint32(hdr[i:]))
	}
	var mic [8]byte
	binary.LittleEndian.PutUint32(mic[0:4], l)
	binary.LittleEndian.PutUint32(mic[4:8], r)
	return mic
}

// decryptTKIP decrypts a TKIP-protected frame body (IV/key-id header,
// RC4 ciphertext ending in the Michael MIC and ICV) and verifies both
// integrity values.
func decryptTKIP(km KeyMaterial, frame *layers.Dot11Data, body []byte) ([]byte, uint64, error) {
	if len(body) < tkipHeaderSize+12 {
		return nil, 0, fmt.Errorf("%w: tkip body %d bytes", pdu.ErrMalformedPacket, len(body))
	}
	if body[3]&0x20 == 0 {
		return nil, 0, fmt.Errorf("%w: tkip ext-iv clear", pdu.ErrMalformedPacket)
	}
	tsc := uint64(binary.LittleEndian.Uint32(body[4:8]))<<16 |
		uint64(body[0])<<8 | uint64(body[2])
	p1 := tkipPhase1(km.TK, frame.Addr2, uint32(tsc>>16))
	key := tkipPhase2(km.TK, p1, uint16(tsc))

	cipher, err := rc4.NewCipher(key[:])
	if err != nil {
		return nil, 0, err
	}
	plain := make([]byte, len(body)-tkipHeaderSize)
	cipher.XORKeyStream(plain, body[tkipHeaderSize:])

	// trailing 4 bytes are the WEP-style ICV over everything before them
	icv := binary.LittleEndian.Uint32(plain[len(plain)-4:])
	if crc32.ChecksumIEEE(plain[:len(plain)-4]) != icv {
		return nil, 0, fmt.Errorf("%w: tkip icv", pdu.ErrInvalidHandshake)
	}
	plain = plain[:len(plain)-4]

	// the Michael MIC precedes the ICV
	if len(plain) < 8 {
		return nil, 0, fmt.Errorf("%w: tkip payload too short", pdu.ErrMalformedPacket)
	}
	payload := plain[:len(plain)-8]
	var mic [8]byte
	copy(mic[:], plain[len(plain)-8:])
	var priority uint8
	if frame.IsQoS() {
		priority = frame.Priority()
	}
	want := michael(km.MICRx, frame.DstAddr(), frame.SrcAddr(), priority, payload)
	if mic != want {
		return nil, 0, fmt.Errorf("%w: michael mic", pdu.ErrInvalidHandshake)
	}
	return payload, tsc, nil
}
