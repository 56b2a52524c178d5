package layers

import (
	"bytes"
	"testing"

	"github.com/mellowdrifter/packetforge/pdu"
)

// dnsResponsePacket is a response for "www.example.com" A IN with one
// answer using label compression for the record name.
func dnsResponsePacket() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{
		0x00, 0x13, // id
		0x81, 0x80, // response, recursion desired+available
		0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00,
	})
	buf.Write([]byte{3, 'w', 'w', 'w', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0})
	buf.Write([]byte{0x00, 0x01, 0x00, 0x01}) // A IN
	buf.Write([]byte{0xc0, 0x0c})             // compressed pointer to the query name
	buf.Write([]byte{0x00, 0x01, 0x00, 0x01})
	buf.Write([]byte{0x00, 0x00, 0x12, 0x34}) // ttl
	buf.Write([]byte{0x00, 0x04, 192, 168, 0, 1})
	return buf.Bytes()
}

func TestDNSParse(t *testing.T) {
	parsed, err := ParseDNS(dnsResponsePacket())
	if err != nil {
		t.Fatal(err)
	}
	d := parsed.(*DNS)
	if d.ID != 0x13 {
		t.Errorf("id = %#x", d.ID)
	}
	if d.MessageType() != DNSResponseMsg {
		t.Error("expected a response")
	}
	if d.QuestionsCount() != 1 || d.AnswersCount() != 1 {
		t.Errorf("counts = %d/%d", d.QuestionsCount(), d.AnswersCount())
	}
	q := d.Queries()[0]
	if q.Name != "www.example.com" || q.QType != DNSTypeA || q.QClass != DNSClassIN {
		t.Errorf("query = %+v", q)
	}
	ans := d.Answers()[0]
	if ans.Name != "www.example.com" || ans.TTL != 0x1234 {
		t.Errorf("answer = %+v", ans)
	}
	ip, err := ans.AddressData()
	if err != nil || ip != "192.168.0.1" {
		t.Errorf("address = %q, %v", ip, err)
	}
}

func TestDNSSerializeReparse(t *testing.T) {
	parsed, err := ParseDNS(dnsResponsePacket())
	if err != nil {
		t.Fatal(err)
	}
	d := parsed.(*DNS)
	buf, err := pdu.Serialize(d)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != pdu.Size(d) {
		t.Error("length closure violated")
	}
	again, err := ParseDNS(buf)
	if err != nil {
		t.Fatal(err)
	}
	d2 := again.(*DNS)
	if d2.ID != d.ID || d2.Flags() != d.Flags() {
		t.Error("header mismatch after round trip")
	}
	if d2.Queries()[0] != d.Queries()[0] {
		t.Error("query mismatch after round trip")
	}
	a1, a2 := d.Answers()[0], d2.Answers()[0]
	if a1.Name != a2.Name || a1.TTL != a2.TTL || !bytes.Equal(a1.Data, a2.Data) {
		t.Error("answer mismatch after round trip")
	}
}

func TestDNSConstructedRoundTripsBytes(t *testing.T) {
	d := NewDNS()
	d.ID = 0x4242
	d.SetMessageType(DNSResponseMsg)
	d.AddQuery(DNSQuery{Name: "example.org", QType: DNSTypeA, QClass: DNSClassIN})
	rec, err := NewDNSAddressRecord("example.org", "10.0.0.1", 300)
	if err != nil {
		t.Fatal(err)
	}
	d.AddAnswer(rec)

	buf, err := pdu.Serialize(d)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseDNS(buf)
	if err != nil {
		t.Fatal(err)
	}
	buf2, err := pdu.Serialize(parsed.(*DNS))
	if err != nil {
		t.Fatal(err)
	}
	// without compression in the input, the round trip is byte exact
	if !bytes.Equal(buf, buf2) {
		t.Error("uncompressed message should round trip byte for byte")
	}
}

func TestDNSSOA(t *testing.T) {
	data := append(encodeDomainName("ns1.example.org"), encodeDomainName("admin.example.org")...)
	data = append(data, []byte{
		0, 0, 0, 1, // serial
		0, 0, 0x0e, 0x10, // refresh
		0, 0, 0x02, 0x58, // retry
		0, 0x09, 0x3a, 0x80, // expire
		0, 0, 0x0e, 0x10, // minimum
	}...)
	rec := DNSResource{Name: "example.org", RType: DNSTypeSOA, RClass: DNSClassIN, TTL: 60, Data: data}
	soa, err := rec.SOAData()
	if err != nil {
		t.Fatal(err)
	}
	if soa.MName != "ns1.example.org" || soa.RName != "admin.example.org" {
		t.Errorf("names = %q / %q", soa.MName, soa.RName)
	}
	if soa.Serial != 1 || soa.Refresh != 3600 || soa.Retry != 600 || soa.Expire != 604800 || soa.MinimumTTL != 3600 {
		t.Errorf("fields = %+v", soa)
	}
}

func TestDNSMalformedPointerLoop(t *testing.T) {
	msg := []byte{
		0x00, 0x01, 0x00, 0x00,
		0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0xc0, 0x0c, // pointer to itself
		0x00, 0x01, 0x00, 0x01,
	}
	if _, err := ParseDNS(msg); err == nil {
		t.Error("pointer loop should fail to parse")
	}
}
