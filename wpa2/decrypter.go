package wpa2

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/layers"
	"github.com/mellowdrifter/packetforge/metrics"
	"github.com/mellowdrifter/packetforge/pdu"
)

// sessionKey identifies an association.
type sessionKey struct {
	bssid  addr.MAC
	client addr.MAC
}

// handshake message presence bits.
const (
	sawMsg1 = 1 << iota
	sawMsg2
	sawMsg3
	sawMsg4
)

// session tracks one (BSSID, client) association through its 4-way
// handshake and, once reconciled, holds the keys for frame decryption.
type session struct {
	anonce  [32]byte
	snonce  [32]byte
	seen    uint8
	msg2    []byte // serialized msg 2 with the MIC zeroed
	msg2mic [16]byte

	keys   KeyMaterial
	ready  bool
	lastPN uint64
	hasPN  bool
}

// Decrypter captures WPA2 handshakes and decrypts CCMP and TKIP data
// frames for the networks it has credentials for. Drive it from a single
// goroutine.
type Decrypter struct {
	logger *zap.SugaredLogger

	// ssid -> passphrase
	passphrases map[string]string
	// bssid -> ssid, learned from beacons or supplied with the passphrase
	networks map[addr.MAC]string
	// bssid -> the AP advertises CCMP (false means TKIP)
	ciphers  map[addr.MAC]bool
	sessions map[sessionKey]*session

	// OnAPFound fires on the first beacon seen for each BSSID.
	OnAPFound func(ssid string, bssid addr.MAC)

	// OnHandshakeCaptured fires when message 4 completes a handshake.
	OnHandshakeCaptured func(ssid string, bssid, client addr.MAC)
}

func NewDecrypter(logger *zap.SugaredLogger) *Decrypter {
	return &Decrypter{
		logger:      logger,
		passphrases: make(map[string]string),
		networks:    make(map[addr.MAC]string),
		ciphers:     make(map[addr.MAC]bool),
		sessions:    make(map[sessionKey]*session),
	}
}

// AddAPData registers the credentials for a network. The BSSID is
// optional; without it the decrypter learns it from beacons.
func (d *Decrypter) AddAPData(passphrase, ssid string, bssid ...addr.MAC) {
	d.passphrases[ssid] = passphrase
	for _, b := range bssid {
		d.networks[b] = ssid
	}
}

// ExportKeys returns the derived key material for an association, for
// resuming later without the handshake.
func (d *Decrypter) ExportKeys(bssid, client addr.MAC) (KeyMaterial, error) {
	s, ok := d.sessions[sessionKey{bssid: bssid, client: client}]
	if !ok || !s.ready {
		return KeyMaterial{}, fmt.Errorf("%w: no keys for %s/%s", pdu.ErrInvalidHandshake, bssid, client)
	}
	return s.keys, nil
}

// ImportKeys seeds an association with previously exported keys.
func (d *Decrypter) ImportKeys(bssid, client addr.MAC, km KeyMaterial) {
	d.sessions[sessionKey{bssid: bssid, client: client}] = &session{keys: km, ready: true}
}

// ProcessPacket observes one parsed 802.11 stack. It returns true when
// the packet was an encrypted data frame that is now decrypted in place;
// false for everything else, including frames that failed decryption.
func (d *Decrypter) ProcessPacket(p pdu.PDU) bool {
	if mgmt, err := pdu.Find[*layers.Dot11Mgmt](p); err == nil {
		d.processManagement(mgmt)
		return false
	}
	data, err := pdu.Find[*layers.Dot11Data](p)
	if err != nil {
		return false
	}
	if !data.HasFlag(layers.Dot11FlagProtected) {
		d.processHandshake(data)
		return false
	}
	return d.decryptData(data)
}

func (d *Decrypter) processManagement(m *layers.Dot11Mgmt) {
	if m.Subtype != layers.Dot11SubtypeBeacon && m.Subtype != layers.Dot11SubtypeProbeResp {
		return
	}
	bssid := m.BSSID()
	if _, known := d.networks[bssid]; known {
		return
	}
	ssid, err := m.SSID()
	if err != nil {
		return
	}
	d.networks[bssid] = ssid
	if info, err := m.RSNInfo(); err == nil {
		d.ciphers[bssid] = info.UsesCCMP()
	} else {
		d.ciphers[bssid] = true
	}
	if d.logger != nil {
		d.logger.Debugf("access point %q at %s", ssid, bssid)
	}
	if d.OnAPFound != nil {
		d.OnAPFound(ssid, bssid)
	}
}

// processHandshake tracks EAPOL-Key messages riding on unprotected data
// frames.
func (d *Decrypter) processHandshake(data *layers.Dot11Data) {
	eapol, err := pdu.Find[*layers.RSNEAPOL](data)
	if err != nil {
		return
	}
	bssid := data.BSSID()
	ssid, known := d.networks[bssid]
	if !known {
		return
	}
	if _, have := d.passphrases[ssid]; !have {
		return
	}

	var client addr.MAC
	switch {
	case eapol.KeyAck():
		client = data.DstAddr() // AP to client: msgs 1 and 3
	default:
		client = data.SrcAddr() // client to AP: msgs 2 and 4
	}
	key := sessionKey{bssid: bssid, client: client}
	s := d.sessions[key]
	if s == nil {
		s = &session{}
		d.sessions[key] = s
	}

	switch {
	case eapol.KeyAck() && !eapol.KeyMIC():
		// message 1: ANonce
		s.anonce = eapol.Nonce
		s.seen = sawMsg1
	case eapol.KeyAck() && eapol.KeyMIC() && eapol.Install():
		// message 3: ANonce again
		if s.seen&sawMsg2 != 0 {
			s.anonce = eapol.Nonce
			s.seen |= sawMsg3
		}
	case !eapol.KeyAck() && eapol.KeyMIC() && !eapol.Install():
		if eapol.Nonce != [32]byte{} {
			// message 2: SNonce plus the MIC we verify the PTK against
			if s.seen&sawMsg1 == 0 {
				return
			}
			s.snonce = eapol.Nonce
			s.msg2mic = eapol.MIC
			s.msg2 = serializeZeroMIC(eapol)
			s.seen |= sawMsg2
		} else if s.seen&sawMsg3 != 0 {
			// message 4 completes the handshake
			s.seen |= sawMsg4
			d.reconcile(ssid, bssid, client, s)
		}
	}
}

// serializeZeroMIC renders an EAPOL frame with its MIC field zeroed, the
// form the key MIC is computed over.
func serializeZeroMIC(e *layers.RSNEAPOL) []byte {
	c, ok := e.Clone().(*layers.RSNEAPOL)
	if !ok {
		return nil
	}
	c.MIC = [16]byte{}
	pdu.Chain(c, nil)
	buf, err := pdu.Serialize(c)
	if err != nil {
		return nil
	}
	return buf
}

// reconcile derives the PTK and accepts the session only if the MIC of
// message 2 verifies under the derived KCK.
func (d *Decrypter) reconcile(ssid string, bssid, client addr.MAC, s *session) {
	if s.seen != sawMsg1|sawMsg2|sawMsg3|sawMsg4 || s.msg2 == nil {
		return
	}
	ccmp := d.ciphers[bssid]
	pmk := PMK(d.passphrases[ssid], ssid)
	ptk := PTK(pmk, bssid, client, s.anonce, s.snonce)
	km := splitPTK(ptk, ccmp)
	if !verifyMIC(km.KCK, s.msg2, s.msg2mic, ccmp) {
		if d.logger != nil {
			d.logger.Warnf("handshake for %s/%s rejected: key mic mismatch", bssid, client)
		}
		s.seen = 0
		return
	}
	s.keys = km
	s.ready = true
	metrics.HandshakesCaptured.Inc()
	if d.logger != nil {
		d.logger.Infof("handshake captured for %q client %s", ssid, client)
	}
	if d.OnHandshakeCaptured != nil {
		d.OnHandshakeCaptured(ssid, bssid, client)
	}
}

// decryptData replaces the encrypted body of a data frame with its
// decrypted, re-parsed payload.
func (d *Decrypter) decryptData(data *layers.Dot11Data) bool {
	raw, err := pdu.Find[*pdu.Raw](data)
	if err != nil {
		return false
	}
	client := data.SrcAddr()
	if client == data.BSSID() {
		client = data.DstAddr()
	}
	s, ok := d.sessions[sessionKey{bssid: data.BSSID(), client: client}]
	if !ok || !s.ready {
		return false
	}

	var plain []byte
	var counter uint64
	if s.keys.CCMP {
		plain, counter, err = decryptCCMP(s.keys.TK, data, raw.Payload())
	} else {
		plain, counter, err = decryptTKIP(s.keys, data, raw.Payload())
	}
	if err != nil {
		metrics.FramesDropped.Inc()
		if d.logger != nil {
			d.logger.Debugf("frame from %s dropped: %v", data.Addr2, err)
		}
		return false
	}
	// replay protection: the packet number must advance
	if s.hasPN && counter <= s.lastPN {
		metrics.FramesDropped.Inc()
		return false
	}
	s.lastPN = counter
	s.hasPN = true

	inner, err := layers.ParseLLC(plain)
	if err != nil {
		metrics.FramesDropped.Inc()
		return false
	}
	data.Flags &^= layers.Dot11FlagProtected
	pdu.Chain(data, inner)
	metrics.FramesDecrypted.Inc()
	return true
}
