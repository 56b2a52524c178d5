package wpa2

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha1"
	"testing"

	"github.com/pion/dtls/v2/pkg/crypto/ccm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/layers"
	"github.com/mellowdrifter/packetforge/pdu"
)

const (
	testSSID       = "Coherer"
	testPassphrase = "Induction"
)

var (
	testBSSID  = addr.MustMAC("00:0c:41:82:b2:55")
	testClient = addr.MustMAC("00:0d:93:82:36:3a")
)

func testNonces() (anonce, snonce [32]byte) {
	for i := range anonce {
		anonce[i] = byte(i + 1)
		snonce[i] = byte(200 - i)
	}
	return anonce, snonce
}

func beaconFrame() pdu.PDU {
	b := layers.NewDot11Beacon(testBSSID, testSSID)
	b.AddOption(pdu.MustOption(layers.Dot11OptRSN, layers.NewRSNInformationWPA2().Serialize()))
	return b
}

// eapolDataFrame wraps an EAPOL-Key frame into an unprotected data frame
// in the given direction.
func eapolDataFrame(fromAP bool, eapol *layers.RSNEAPOL) *layers.Dot11Data {
	var d *layers.Dot11Data
	if fromAP {
		d = layers.NewDot11Data(testClient, testBSSID)
		d.Flags |= layers.Dot11FlagFromDS
		d.Addr3 = testBSSID
	} else {
		d = layers.NewDot11Data(testBSSID, testClient)
		d.Flags |= layers.Dot11FlagToDS
		d.Addr3 = testBSSID
	}
	llc := layers.NewLLC()
	snap := layers.NewSNAP()
	pdu.Chain(snap, eapol)
	pdu.Chain(llc, snap)
	pdu.Chain(d, llc)
	return d
}

func handshakeFrames(t *testing.T) []pdu.PDU {
	t.Helper()
	anonce, snonce := testNonces()
	pmk := PMK(testPassphrase, testSSID)
	ptk := PTK(pmk, testBSSID, testClient, anonce, snonce)
	km := splitPTK(ptk, true)

	msg1 := layers.NewRSNEAPOL()
	msg1.KeyInfo = layers.RSNKeyInfoKeyType | layers.RSNKeyInfoKeyAck
	msg1.Nonce = anonce

	msg2 := layers.NewRSNEAPOL()
	msg2.KeyInfo = layers.RSNKeyInfoKeyType | layers.RSNKeyInfoKeyMIC
	msg2.Nonce = snonce
	// the MIC is HMAC-SHA1 over the frame with the MIC field zeroed
	frame, err := pdu.Serialize(msg2)
	require.NoError(t, err)
	mac := hmac.New(sha1.New, km.KCK[:])
	mac.Write(frame)
	copy(msg2.MIC[:], mac.Sum(nil)[:16])

	msg3 := layers.NewRSNEAPOL()
	msg3.KeyInfo = layers.RSNKeyInfoKeyType | layers.RSNKeyInfoKeyAck | layers.RSNKeyInfoKeyMIC | layers.RSNKeyInfoInstall
	msg3.Nonce = anonce

	msg4 := layers.NewRSNEAPOL()
	msg4.KeyInfo = layers.RSNKeyInfoKeyType | layers.RSNKeyInfoKeyMIC

	return []pdu.PDU{
		eapolDataFrame(true, msg1),
		eapolDataFrame(false, msg2),
		eapolDataFrame(true, msg3),
		eapolDataFrame(false, msg4),
	}
}

// encryptedFrame CCMP-protects the given plaintext as a frame from the
// AP to the client.
func encryptedFrame(t *testing.T, tk [16]byte, pn uint64, plaintext []byte) *layers.Dot11Data {
	t.Helper()
	d := layers.NewDot11Data(testClient, testBSSID)
	d.Subtype = layers.Dot11SubtypeQoSData
	d.Flags |= layers.Dot11FlagFromDS | layers.Dot11FlagProtected
	d.Addr3 = testBSSID

	hdr := make([]byte, ccmpHeaderSize)
	hdr[0] = byte(pn)
	hdr[1] = byte(pn >> 8)
	hdr[3] = 0x20 // ext iv
	hdr[4] = byte(pn >> 16)
	hdr[5] = byte(pn >> 24)
	hdr[6] = byte(pn >> 32)
	hdr[7] = byte(pn >> 40)

	block, err := aes.NewCipher(tk[:])
	require.NoError(t, err)
	mode, err := ccm.NewCCM(block, ccmpMICSize, 13)
	require.NoError(t, err)
	nonce := ccmpNonce(d, pn)
	body := append(hdr, mode.Seal(nil, nonce[:], plaintext, ccmpAAD(d))...)
	pdu.Chain(d, pdu.NewRaw(body))
	return d
}

// plaintextPayload builds the LLC/SNAP/IP/UDP/DHCP stack that hides
// inside the encrypted frames. UDP ports 67/68 parse as DHCP, so the
// payload is a DHCP message.
func plaintextPayload(t *testing.T, sport, dport uint16) []byte {
	t.Helper()
	llc := layers.NewLLC()
	snap := layers.NewSNAP()
	ip, err := layers.NewIPFor("255.255.255.255", "0.0.0.0")
	require.NoError(t, err)
	udp := layers.NewUDP(dport, sport)
	pdu.Chain(udp, layers.NewDHCP())
	pdu.Chain(ip, udp)
	pdu.Chain(snap, ip)
	pdu.Chain(llc, snap)
	buf, err := pdu.Serialize(llc)
	require.NoError(t, err)
	return buf
}

func TestDecrypterFullExchange(t *testing.T) {
	d := NewDecrypter(nil)
	d.AddAPData(testPassphrase, testSSID)

	var foundSSID string
	d.OnAPFound = func(ssid string, bssid addr.MAC) { foundSSID = ssid }
	captured := false
	d.OnHandshakeCaptured = func(ssid string, bssid, client addr.MAC) {
		captured = true
		assert.Equal(t, testSSID, ssid)
		assert.Equal(t, testBSSID, bssid)
		assert.Equal(t, testClient, client)
	}

	d.ProcessPacket(beaconFrame())
	assert.Equal(t, testSSID, foundSSID)

	for _, f := range handshakeFrames(t) {
		d.ProcessPacket(f)
	}
	require.True(t, captured, "handshake should complete")

	km, err := d.ExportKeys(testBSSID, testClient)
	require.NoError(t, err)

	// decrypting frame 5 yields the client-to-server datagram, frame 6
	// the reverse direction
	frame := encryptedFrame(t, km.TK, 1, plaintextPayload(t, 68, 67))
	require.True(t, d.ProcessPacket(frame))
	udp, err := pdu.Find[*layers.UDP](frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(68), udp.SrcPort)
	assert.Equal(t, uint16(67), udp.DstPort)

	frame = encryptedFrame(t, km.TK, 2, plaintextPayload(t, 67, 68))
	require.True(t, d.ProcessPacket(frame))
	udp, err = pdu.Find[*layers.UDP](frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(67), udp.SrcPort)
	assert.Equal(t, uint16(68), udp.DstPort)
}

func TestDecrypterRejectsBadMIC(t *testing.T) {
	d := NewDecrypter(nil)
	d.AddAPData(testPassphrase, testSSID)
	d.ProcessPacket(beaconFrame())

	frames := handshakeFrames(t)
	// corrupt message 2's MIC
	eapol, err := pdu.Find[*layers.RSNEAPOL](frames[1])
	require.NoError(t, err)
	eapol.MIC[0] ^= 0xff

	captured := false
	d.OnHandshakeCaptured = func(string, addr.MAC, addr.MAC) { captured = true }
	for _, f := range frames {
		d.ProcessPacket(f)
	}
	assert.False(t, captured, "handshake with a bad MIC must be rejected")
	_, err = d.ExportKeys(testBSSID, testClient)
	assert.ErrorIs(t, err, pdu.ErrInvalidHandshake)
}

func TestDecrypterReplayDropped(t *testing.T) {
	d := NewDecrypter(nil)
	d.AddAPData(testPassphrase, testSSID)
	d.ProcessPacket(beaconFrame())
	for _, f := range handshakeFrames(t) {
		d.ProcessPacket(f)
	}
	km, err := d.ExportKeys(testBSSID, testClient)
	require.NoError(t, err)

	require.True(t, d.ProcessPacket(encryptedFrame(t, km.TK, 5, plaintextPayload(t, 68, 67))))
	// an equal or lower packet number is a replay
	assert.False(t, d.ProcessPacket(encryptedFrame(t, km.TK, 5, plaintextPayload(t, 68, 67))))
	assert.False(t, d.ProcessPacket(encryptedFrame(t, km.TK, 4, plaintextPayload(t, 68, 67))))
	assert.True(t, d.ProcessPacket(encryptedFrame(t, km.TK, 6, plaintextPayload(t, 68, 67))))
}

func TestKeyImportSkipsHandshake(t *testing.T) {
	d1 := NewDecrypter(nil)
	d1.AddAPData(testPassphrase, testSSID)
	d1.ProcessPacket(beaconFrame())
	for _, f := range handshakeFrames(t) {
		d1.ProcessPacket(f)
	}
	km, err := d1.ExportKeys(testBSSID, testClient)
	require.NoError(t, err)

	// a fresh decrypter with imported keys decrypts without a handshake
	d2 := NewDecrypter(nil)
	d2.ImportKeys(testBSSID, testClient, km)
	frame := encryptedFrame(t, km.TK, 9, plaintextPayload(t, 68, 67))
	assert.True(t, d2.ProcessPacket(frame))
}

func TestCCMPTamperedFrameDropped(t *testing.T) {
	d := NewDecrypter(nil)
	km := KeyMaterial{CCMP: true}
	for i := range km.TK {
		km.TK[i] = byte(i)
	}
	d.ImportKeys(testBSSID, testClient, km)
	frame := encryptedFrame(t, km.TK, 1, plaintextPayload(t, 68, 67))
	raw, err := pdu.Find[*pdu.Raw](frame)
	require.NoError(t, err)
	raw.Payload()[ccmpHeaderSize] ^= 0xff
	assert.False(t, d.ProcessPacket(frame))
}
