package sniffer

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/layers"
	"github.com/mellowdrifter/packetforge/pdu"
)

// buildPcap renders a microsecond little-endian savefile around the
// given frames.
func buildPcap(t *testing.T, linkType uint32, frames ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	hdr := make([]byte, 24)
	binary.LittleEndian.PutUint32(hdr[0:4], pcapMagicMicro)
	binary.LittleEndian.PutUint16(hdr[4:6], 2)
	binary.LittleEndian.PutUint16(hdr[6:8], 4)
	binary.LittleEndian.PutUint32(hdr[16:20], 65535)
	binary.LittleEndian.PutUint32(hdr[20:24], linkType)
	buf.Write(hdr)
	for i, frame := range frames {
		rec := make([]byte, 16)
		binary.LittleEndian.PutUint32(rec[0:4], uint32(1700000000+i))
		binary.LittleEndian.PutUint32(rec[4:8], 250000)
		binary.LittleEndian.PutUint32(rec[8:12], uint32(len(frame)))
		binary.LittleEndian.PutUint32(rec[12:16], uint32(len(frame)))
		buf.Write(rec)
		buf.Write(frame)
	}
	return buf.Bytes()
}

func udpFrame(t *testing.T) []byte {
	t.Helper()
	eth := layers.NewEthernetII(addr.MustMAC("ff:ff:ff:ff:ff:ff"), addr.MustMAC("00:01:02:03:04:05"))
	ip, err := layers.NewIPFor("10.0.0.2", "10.0.0.1")
	require.NoError(t, err)
	udp := layers.NewUDP(9000, 9001)
	pdu.Chain(udp, pdu.NewRaw([]byte("hello")))
	pdu.Chain(ip, udp)
	pdu.Chain(eth, ip)
	buf, err := pdu.Serialize(eth)
	require.NoError(t, err)
	return buf
}

func TestSnifferReadsPcap(t *testing.T) {
	data := buildPcap(t, uint32(pdu.DLTEn10MB), udpFrame(t))
	src, err := NewFileSource(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, pdu.DLTEn10MB, src.LinkType())

	s := New(src, DefaultConfig(), nil)
	p, err := s.NextPacket()
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 250000000).UTC(), p.Timestamp().UTC())

	udp, err := pdu.Find[*layers.UDP](p.PDU())
	require.NoError(t, err)
	assert.Equal(t, uint16(9001), udp.SrcPort)

	_, err = s.NextPacket()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSnifferSkipsMalformed(t *testing.T) {
	// the first frame is a truncated IP header under an ethernet header
	bad := append(udpFrame(t)[:14], 0x45)
	data := buildPcap(t, uint32(pdu.DLTEn10MB), bad, udpFrame(t))
	src, err := NewFileSource(bytes.NewReader(data))
	require.NoError(t, err)

	s := New(src, DefaultConfig(), nil)
	p, err := s.NextPacket()
	require.NoError(t, err)
	if _, err := pdu.Find[*layers.UDP](p.PDU()); err != nil {
		t.Error("the good frame should come through")
	}
}

func TestSnifferObserversAndEach(t *testing.T) {
	data := buildPcap(t, uint32(pdu.DLTEn10MB), udpFrame(t), udpFrame(t))
	src, err := NewFileSource(bytes.NewReader(data))
	require.NoError(t, err)

	s := New(src, DefaultConfig(), nil)
	observed := 0
	s.AddObserver(func(pdu.PDU) { observed++ })
	seen := 0
	require.NoError(t, s.Each(func(Packet) bool {
		seen++
		return true
	}))
	assert.Equal(t, 2, seen)
	assert.Equal(t, 2, observed)
}

func TestFileSourceRejectsGarbage(t *testing.T) {
	_, err := NewFileSource(bytes.NewReader(make([]byte, 24)))
	assert.Error(t, err)
}
