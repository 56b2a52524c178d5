package wpa2

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mellowdrifter/packetforge/addr"
)

// Reference vector from IEEE Std 802.11i, Annex H: passphrase "password",
// SSID "IEEE".
func TestPMKReferenceVector(t *testing.T) {
	want, _ := hex.DecodeString("f42c6fc52df0ebef9ebb4b90b38a5f902e83fe1b135a70e23aed762e9710a12e")
	assert.Equal(t, want, PMK("password", "IEEE"))
}

func TestPRF512Length(t *testing.T) {
	out := prf512([]byte("key"), "Pairwise key expansion", []byte("data"))
	assert.Len(t, out, 64)
	// deterministic
	assert.Equal(t, out, prf512([]byte("key"), "Pairwise key expansion", []byte("data")))
}

func TestPTKSymmetricInAddressOrder(t *testing.T) {
	pmk := PMK("Induction", "Coherer")
	aa := addr.MustMAC("00:0c:41:82:b2:55")
	sa := addr.MustMAC("00:0d:93:82:36:3a")
	var anonce, snonce [32]byte
	for i := range anonce {
		anonce[i] = byte(i)
		snonce[i] = byte(255 - i)
	}
	// the derivation canonicalizes address and nonce order, so swapping
	// the roles yields the same PTK
	ptk1 := PTK(pmk, aa, sa, anonce, snonce)
	ptk2 := PTK(pmk, sa, aa, snonce, anonce)
	assert.Equal(t, ptk1, ptk2)

	// and different nonces yield a different key
	snonce[0] ^= 1
	assert.NotEqual(t, ptk1, PTK(pmk, aa, sa, anonce, snonce))
}

func TestSplitPTKLayout(t *testing.T) {
	var ptk [64]byte
	for i := range ptk {
		ptk[i] = byte(i)
	}
	km := splitPTK(ptk, true)
	assert.Equal(t, byte(0), km.KCK[0])
	assert.Equal(t, byte(16), km.KEK[0])
	assert.Equal(t, byte(32), km.TK[0])
	assert.Equal(t, byte(48), km.MICTx[0])
	assert.Equal(t, byte(56), km.MICRx[0])
	assert.True(t, km.CCMP)
}
