// Package wpa2 decrypts WPA2-protected 802.11 traffic: it captures 4-way
// handshakes, derives pairwise transient keys, and replaces encrypted
// frame bodies with their decrypted payload inside the PDU stack.
package wpa2

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"

	"golang.org/x/crypto/pbkdf2"

	"github.com/mellowdrifter/packetforge/addr"
)

// PMK derives the pairwise master key from a passphrase and SSID:
// PBKDF2-HMAC-SHA1 with 4096 iterations, 32 bytes.
func PMK(passphrase, ssid string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(ssid), 4096, 32, sha1.New)
}

// prf512 is the IEEE 802.11i PRF producing 64 bytes from HMAC-SHA1
// blocks over label || 0x00 || data || counter.
func prf512(key []byte, label string, data []byte) []byte {
	out := make([]byte, 0, 80)
	for i := byte(0); len(out) < 64; i++ {
		mac := hmac.New(sha1.New, key)
		mac.Write([]byte(label))
		mac.Write([]byte{0})
		mac.Write(data)
		mac.Write([]byte{i})
		out = mac.Sum(out)
	}
	return out[:64]
}

// PTK derives the 64-byte pairwise transient key. The MAC addresses and
// nonces enter in canonical (min, max) order.
func PTK(pmk []byte, aa, sa addr.MAC, anonce, snonce [32]byte) [64]byte {
	b := make([]byte, 0, 12+64)
	if aa.Compare(sa) <= 0 {
		b = append(b, aa[:]...)
		b = append(b, sa[:]...)
	} else {
		b = append(b, sa[:]...)
		b = append(b, aa[:]...)
	}
	if bytes.Compare(anonce[:], snonce[:]) <= 0 {
		b = append(b, anonce[:]...)
		b = append(b, snonce[:]...)
	} else {
		b = append(b, snonce[:]...)
		b = append(b, anonce[:]...)
	}
	var ptk [64]byte
	copy(ptk[:], prf512(pmk, "Pairwise key expansion", b))
	return ptk
}

// KeyMaterial is the per-association key split consumers can export and
// import to resume decryption without re-capturing a handshake.
type KeyMaterial struct {
	KCK   [16]byte
	KEK   [16]byte
	TK    [16]byte
	MICTx [8]byte // TKIP only
	MICRx [8]byte // TKIP only
	CCMP  bool
}

func splitPTK(ptk [64]byte, ccmp bool) KeyMaterial {
	var km KeyMaterial
	copy(km.KCK[:], ptk[0:16])
	copy(km.KEK[:], ptk[16:32])
	copy(km.TK[:], ptk[32:48])
	copy(km.MICTx[:], ptk[48:56])
	copy(km.MICRx[:], ptk[56:64])
	km.CCMP = ccmp
	return km
}

// verifyMIC checks an EAPOL-Key MIC under the KCK. frame is the whole
// EAPOL frame with the MIC field zeroed. CCMP associations use HMAC-SHA1,
// TKIP associations HMAC-MD5.
func verifyMIC(kck [16]byte, frame []byte, mic [16]byte, ccmp bool) bool {
	var sum []byte
	if ccmp {
		mac := hmac.New(sha1.New, kck[:])
		mac.Write(frame)
		sum = mac.Sum(nil)[:16]
	} else {
		mac := hmac.New(md5.New, kck[:])
		mac.Write(frame)
		sum = mac.Sum(nil)
	}
	return hmac.Equal(sum, mic[:])
}
