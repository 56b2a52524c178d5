package layers

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// verifyTransportChecksum folds the pseudo-header and segment; a valid
// checksum folds to 0xffff.
func verifyTransportChecksum(t *testing.T, src, dst addr.IPv4, proto uint8, segment []byte) {
	t.Helper()
	pseudo := make([]byte, 12)
	copy(pseudo[0:4], src[:])
	copy(pseudo[4:8], dst[:])
	pseudo[9] = proto
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(segment)))
	sum := wire.Checksum(pseudo) + wire.Checksum(segment)
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + sum>>16
	}
	if sum != 0xffff {
		t.Errorf("transport checksum folds to %#x", sum)
	}
}

func TestIPTCPChecksumClosure(t *testing.T) {
	ip, err := NewIPFor("1.2.3.4", "5.6.7.8")
	if err != nil {
		t.Fatal(err)
	}
	tcp := NewTCP(1234, 80)
	tcp.Seq = 0x11223344
	tcp.SetFlag(TCPFlagSYN)
	pdu.Chain(tcp, pdu.NewRaw([]byte("abcdef")))
	pdu.Chain(ip, tcp)

	buf, err := pdu.Serialize(ip)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != pdu.Size(ip) {
		t.Error("length closure violated")
	}

	// IP header checksum folds to 0xffff over the header
	if got := wire.Checksum(buf[:20]); got != 0xffff {
		t.Errorf("ip checksum folds to %#x", got)
	}
	// total length must cover the whole stack
	if got := binary.BigEndian.Uint16(buf[2:4]); int(got) != len(buf) {
		t.Errorf("total length = %d, want %d", got, len(buf))
	}
	verifyTransportChecksum(t, ip.Src, ip.Dst, pdu.IPProtoTCP, buf[20:])

	parsed, err := ParseIP(buf)
	if err != nil {
		t.Fatal(err)
	}
	ip2 := parsed.(*IP)
	if ip2.Src != ip.Src || ip2.Dst != ip.Dst || ip2.Protocol() != pdu.IPProtoTCP {
		t.Error("ip fields mismatch after reparse")
	}
	tcp2, err := pdu.Find[*TCP](parsed)
	if err != nil {
		t.Fatal(err)
	}
	if tcp2.SrcPort != 80 || tcp2.DstPort != 1234 || tcp2.Seq != tcp.Seq || !tcp2.HasFlag(TCPFlagSYN) {
		t.Error("tcp fields mismatch after reparse")
	}
	raw, err := pdu.RFind[*pdu.Raw](parsed)
	if err != nil || !bytes.Equal(raw.Payload(), []byte("abcdef")) {
		t.Error("payload mismatch after reparse")
	}
}

func TestUDPChecksum(t *testing.T) {
	ip, _ := NewIPFor("192.168.0.1", "192.168.0.2")
	udp := NewUDP(53, 4321)
	pdu.Chain(udp, pdu.NewRaw([]byte{0xde, 0xad}))
	pdu.Chain(ip, udp)

	buf, err := pdu.Serialize(ip)
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.BigEndian.Uint16(buf[24:26]); int(got) != len(buf)-20 {
		t.Errorf("udp length = %d", got)
	}
	verifyTransportChecksum(t, ip.Src, ip.Dst, pdu.IPProtoUDP, buf[20:])
}

func TestTCPOptionsAlignment(t *testing.T) {
	tcp := NewTCP(443, 55555)
	mss := make([]byte, 2)
	binary.BigEndian.PutUint16(mss, 1460)
	tcp.AddOption(pdu.MustOption(TCPOptionMSS, mss))

	buf, err := pdu.Serialize(tcp)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf)%4 != 0 {
		t.Errorf("header not 4-byte aligned: %d", len(buf))
	}
	if off := int(buf[12]>>4) * 4; off != len(buf) {
		t.Errorf("data offset %d does not cover options", off)
	}

	parsed, err := ParseTCP(buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := parsed.(*TCP).MSS()
	if err != nil || got != 1460 {
		t.Errorf("MSS = %d, %v", got, err)
	}
}

func TestIPOptionsHeaderLength(t *testing.T) {
	ip, _ := NewIPFor("1.1.1.1", "2.2.2.2")
	ip.AddOption(pdu.MustOption(148, []byte{0, 0})) // router alert
	pdu.Chain(ip, pdu.NewRaw([]byte("x")))

	buf, err := pdu.Serialize(ip)
	if err != nil {
		t.Fatal(err)
	}
	ihl := int(buf[0]&0x0f) * 4
	if ihl != 24 {
		t.Errorf("ihl = %d, want 24", ihl)
	}
	parsed, err := ParseIP(buf)
	if err != nil {
		t.Fatal(err)
	}
	o, err := parsed.(*IP).SearchOption(148)
	if err != nil || o.DataSize() != 2 {
		t.Errorf("option lost in round trip: %v", err)
	}
}

func TestIPFragmentKeepsRawPayload(t *testing.T) {
	ip, _ := NewIPFor("1.1.1.1", "2.2.2.2")
	ip.FragInfo = 0x2000 | 10 // more fragments, offset 80
	tcpish := []byte{0xab, 0xcd, 0xef, 0x01}
	pdu.Chain(ip, pdu.NewRaw(tcpish))
	buf, err := pdu.Serialize(ip)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseIP(buf)
	if err != nil {
		t.Fatal(err)
	}
	inner := parsed.Inner()
	if inner == nil || inner.Type() != pdu.TypeRaw {
		t.Errorf("fragment payload should stay raw, got %v", inner)
	}
}

func TestIPv6ExtensionHeaderChaining(t *testing.T) {
	ip6 := NewIPv6(addr.MustIPv6("2001:db8::2"), addr.MustIPv6("2001:db8::1"))
	ip6.AddHopByHopOptions([]byte{5, 2, 0, 0}) // router alert TLV
	udp := NewUDP(9999, 1111)
	pdu.Chain(udp, pdu.NewRaw([]byte("hi")))
	pdu.Chain(ip6, udp)

	buf, err := pdu.Serialize(ip6)
	if err != nil {
		t.Fatal(err)
	}
	if buf[6] != pdu.IPProtoHopByHop {
		t.Errorf("next header = %d", buf[6])
	}
	// the extension header chains to UDP
	if buf[40] != pdu.IPProtoUDP {
		t.Errorf("extension next header = %d", buf[40])
	}
	// payload length covers extensions plus payload
	if got := binary.BigEndian.Uint16(buf[4:6]); int(got) != len(buf)-40 {
		t.Errorf("payload length = %d", got)
	}

	parsed, err := ParseIPv6(buf)
	if err != nil {
		t.Fatal(err)
	}
	ip62 := parsed.(*IPv6)
	if len(ip62.ExtHeaders()) != 1 || ip62.ExtHeaders()[0].Proto != pdu.IPProtoHopByHop {
		t.Fatalf("extension headers = %+v", ip62.ExtHeaders())
	}
	if _, err := pdu.Find[*UDP](parsed); err != nil {
		t.Error("udp not found past extension header")
	}
}
