package addr

import "testing"

func TestIPv4Parse(t *testing.T) {
	a, err := ParseIPv4("192.168.0.1")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if a.String() != "192.168.0.1" {
		t.Errorf("round trip mismatch: %s", a)
	}
	for _, bad := range []string{"1.2.3", "1.2.3.4.5", "256.1.1.1", "a.b.c.d", "1..2.3", "1.2.3.-4"} {
		if _, err := ParseIPv4(bad); err == nil {
			t.Errorf("expected %q to fail", bad)
		}
	}
}

func TestIPv4Predicates(t *testing.T) {
	if !MustIPv4("10.1.2.3").IsPrivate() || !MustIPv4("172.16.0.1").IsPrivate() || !MustIPv4("192.168.1.1").IsPrivate() {
		t.Error("private ranges not detected")
	}
	if MustIPv4("8.8.8.8").IsPrivate() {
		t.Error("8.8.8.8 reported private")
	}
	if !MustIPv4("127.0.0.1").IsLoopback() {
		t.Error("loopback not detected")
	}
	if !MustIPv4("224.0.0.1").IsMulticast() {
		t.Error("multicast not detected")
	}
	if !MustIPv4("255.255.255.255").IsBroadcast() {
		t.Error("broadcast not detected")
	}
}

func TestIPv4FromPrefixLen(t *testing.T) {
	if got := IPv4FromPrefixLen(24); got != MustIPv4("255.255.255.0") {
		t.Errorf("/24 mask = %s", got)
	}
	if got := IPv4FromPrefixLen(0); got != MustIPv4("0.0.0.0") {
		t.Errorf("/0 mask = %s", got)
	}
	if got := IPv4FromPrefixLen(32); got != MustIPv4("255.255.255.255") {
		t.Errorf("/32 mask = %s", got)
	}
}

func TestRangeFromMaskSlash24(t *testing.T) {
	r := RangeFromMask(MustIPv4("192.168.0.0"), MustIPv4("255.255.255.0"))
	if !r.Contains(MustIPv4("192.168.0.255")) {
		t.Error("broadcast endpoint should be a member")
	}
	if r.Contains(MustIPv4("192.168.1.0")) {
		t.Error("next network should not be a member")
	}
	it := r.Iterator()
	first, ok := it.Next()
	if !ok || first != MustIPv4("192.168.0.1") {
		t.Fatalf("first = %s", first)
	}
	last := first
	count := 1
	for {
		a, ok := it.Next()
		if !ok {
			break
		}
		if a.Compare(last) <= 0 {
			t.Fatalf("iteration not strictly increasing at %s", a)
		}
		last = a
		count++
	}
	if last != MustIPv4("192.168.0.254") {
		t.Errorf("last = %s", last)
	}
	if count != 254 {
		t.Errorf("count = %d", count)
	}
}

func TestRangeIterationMatchesContains(t *testing.T) {
	r := NewRange(MustIPv4("10.0.0.250"), MustIPv4("10.0.1.5"))
	count := 0
	for it := r.Iterator(); ; {
		a, ok := it.Next()
		if !ok {
			break
		}
		if !r.Contains(a) {
			t.Fatalf("iterated %s outside the range", a)
		}
		count++
	}
	if count != 12 {
		t.Errorf("count = %d, want 12", count)
	}
	if r.Count() != count {
		t.Errorf("Count() = %d", r.Count())
	}
}

func TestRangeNotIterable(t *testing.T) {
	// a /31 has no hosts
	r := RangeFromMask(MustIPv4("192.168.0.0"), MustIPv4("255.255.255.254"))
	if r.IsIterable() {
		t.Error("/31 host range should not be iterable")
	}
	if r.Count() != 0 {
		t.Errorf("/31 yielded %d addresses", r.Count())
	}
	// a /32 neither
	r = RangeFromMask(MustIPv4("192.168.0.1"), MustIPv4("255.255.255.255"))
	if r.IsIterable() {
		t.Error("/32 host range should not be iterable")
	}
}

func TestRangeSwappedEndpoints(t *testing.T) {
	r := NewRange(MustIPv4("10.0.0.5"), MustIPv4("10.0.0.1"))
	if r.First() != MustIPv4("10.0.0.1") || r.Last() != MustIPv4("10.0.0.5") {
		t.Errorf("endpoints not normalized: [%s, %s]", r.First(), r.Last())
	}
}

func TestIPv6Range(t *testing.T) {
	r := RangeFromMask(MustIPv6("dead::"), IPv6FromPrefixLen(120))
	if !r.Contains(MustIPv6("dead::ff")) {
		t.Error("dead::ff should be a member")
	}
	if r.Contains(MustIPv6("dead::1:0")) {
		t.Error("dead::1:0 should not be a member")
	}
	it := r.Iterator()
	first, ok := it.Next()
	if !ok || first != MustIPv6("dead::1") {
		t.Fatalf("first = %s", first)
	}
}

func TestIPv6Parse(t *testing.T) {
	a, err := ParseIPv6("2001:db8::1")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if a.String() != "2001:db8::1" {
		t.Errorf("round trip mismatch: %s", a)
	}
	if _, err := ParseIPv6("not-an-address"); err == nil {
		t.Error("expected garbage to fail")
	}
	if !MustIPv6("::1").IsLoopback() {
		t.Error("::1 not loopback")
	}
	if !MustIPv6("ff02::1").IsMulticast() {
		t.Error("ff02::1 not multicast")
	}
}

func TestMAC(t *testing.T) {
	m, err := ParseMAC("00:01:02:03:04:05")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if m.String() != "00:01:02:03:04:05" {
		t.Errorf("round trip mismatch: %s", m)
	}
	if !Broadcast.IsBroadcast() || !Broadcast.IsMulticast() {
		t.Error("broadcast predicates wrong")
	}
	if !m.IsUnicast() {
		t.Error("unicast predicate wrong")
	}
	if _, err := ParseMAC("00:01:02"); err == nil {
		t.Error("short MAC should fail")
	}
}

func TestMaskingOperators(t *testing.T) {
	a := MustIPv4("192.168.1.77")
	mask := MustIPv4("255.255.255.0")
	if a.And(mask) != MustIPv4("192.168.1.0") {
		t.Error("and mask broken")
	}
	if a.Or(mask.Not()) != MustIPv4("192.168.1.255") {
		t.Error("or/not broken")
	}
}
