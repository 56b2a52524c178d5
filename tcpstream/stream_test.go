package tcpstream

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/layers"
	"github.com/mellowdrifter/packetforge/pdu"
)

func tcpPacket(t *testing.T, src, dst string, sport, dport uint16, seq uint32, flags uint16, payload []byte) pdu.PDU {
	t.Helper()
	eth := layers.NewEthernetII(addr.MustMAC("05:04:03:02:01:00"), addr.MustMAC("00:01:02:03:04:05"))
	ip, err := layers.NewIPFor(dst, src)
	require.NoError(t, err)
	tcp := layers.NewTCP(dport, sport)
	tcp.Seq = seq
	tcp.Flags = flags
	if len(payload) > 0 {
		pdu.Chain(tcp, pdu.NewRaw(payload))
	}
	pdu.Chain(ip, tcp)
	pdu.Chain(eth, ip)
	return eth
}

// handshake emits SYN, SYN+ACK, ACK for client 1.2.3.4:22 -> 4.3.2.1:25.
func handshake(t *testing.T, clientSeq, serverSeq uint32) []pdu.PDU {
	return []pdu.PDU{
		tcpPacket(t, "1.2.3.4", "4.3.2.1", 22, 25, clientSeq, layers.TCPFlagSYN, nil),
		tcpPacket(t, "4.3.2.1", "1.2.3.4", 25, 22, serverSeq, layers.TCPFlagSYN|layers.TCPFlagACK, nil),
		tcpPacket(t, "1.2.3.4", "4.3.2.1", 22, 25, clientSeq+1, layers.TCPFlagACK, nil),
	}
}

func TestFollowerThreeWayHandshake(t *testing.T) {
	follower := NewFollower(nil)
	created := 0
	follower.OnNewStream = func(*Stream) { created++ }
	for _, p := range handshake(t, 29, 60) {
		follower.ProcessPacket(p)
	}
	require.Equal(t, 1, created)

	s, err := follower.FindStream(netip.MustParseAddr("1.2.3.4"), 22, netip.MustParseAddr("4.3.2.1"), 25)
	require.NoError(t, err)
	assert.Equal(t, StreamEstablished, s.State())
	assert.Equal(t, netip.MustParseAddr("1.2.3.4"), s.ClientAddr())
	assert.Equal(t, netip.MustParseAddr("4.3.2.1"), s.ServerAddr())
	assert.Equal(t, uint16(22), s.ClientPort())
	assert.Equal(t, uint16(25), s.ServerPort())
	assert.Equal(t, uint32(30), s.ClientFlow().Sequence())
	assert.Equal(t, uint32(61), s.ServerFlow().Sequence())
	assert.Equal(t, netip.MustParseAddr("4.3.2.1"), s.ClientFlow().DstAddr())
	assert.Equal(t, uint16(25), s.ClientFlow().DstPort())
	assert.Equal(t, addr.MustMAC("00:01:02:03:04:05"), s.ClientHW())
	assert.Equal(t, addr.MustMAC("05:04:03:02:01:00"), s.ServerHW())

	// the lookup works with the endpoints swapped too
	_, err = follower.FindStream(netip.MustParseAddr("4.3.2.1"), 25, netip.MustParseAddr("1.2.3.4"), 22)
	assert.NoError(t, err)
}

func TestFollowerStreamNotFound(t *testing.T) {
	follower := NewFollower(nil)
	_, err := follower.FindStream(netip.MustParseAddr("9.9.9.9"), 1, netip.MustParseAddr("8.8.8.8"), 2)
	assert.ErrorIs(t, err, pdu.ErrStreamNotFound)
}

func TestFollowerIgnoresMidStreamPackets(t *testing.T) {
	follower := NewFollower(nil)
	follower.ProcessPacket(tcpPacket(t, "1.2.3.4", "4.3.2.1", 22, 25, 100, layers.TCPFlagACK, []byte("data")))
	assert.Equal(t, 0, follower.Streams())
}

func TestFollowerDataBothDirections(t *testing.T) {
	follower := NewFollower(nil)
	var clientData, serverData []byte
	follower.OnNewStream = func(s *Stream) {
		s.ClientFlow().OnData = func(f *Flow) {
			clientData = append(clientData, f.Payload()...)
			f.ClearPayload()
		}
		s.ServerFlow().OnData = func(f *Flow) {
			serverData = append(serverData, f.Payload()...)
			f.ClearPayload()
		}
	}
	for _, p := range handshake(t, 0, 1000) {
		follower.ProcessPacket(p)
	}
	follower.ProcessPacket(tcpPacket(t, "1.2.3.4", "4.3.2.1", 22, 25, 1, layers.TCPFlagACK|layers.TCPFlagPSH, []byte("GET / HTTP/1.1\r\n")))
	follower.ProcessPacket(tcpPacket(t, "4.3.2.1", "1.2.3.4", 25, 22, 1001, layers.TCPFlagACK|layers.TCPFlagPSH, []byte("HTTP/1.1 200 OK\r\n")))

	assert.Equal(t, "GET / HTTP/1.1\r\n", string(clientData))
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", string(serverData))
}

func TestRSTClosesStream(t *testing.T) {
	follower := NewFollower(nil)
	closed := 0
	follower.OnStreamClosed = func(*Stream) { closed++ }
	for _, p := range handshake(t, 10, 20) {
		follower.ProcessPacket(p)
	}
	require.Equal(t, 1, follower.Streams())
	follower.ProcessPacket(tcpPacket(t, "4.3.2.1", "1.2.3.4", 25, 22, 21, layers.TCPFlagRST, nil))
	assert.Equal(t, 0, follower.Streams())
	assert.Equal(t, 1, closed)
}

func TestFINSequenceClosesStream(t *testing.T) {
	follower := NewFollower(nil)
	for _, p := range handshake(t, 10, 20) {
		follower.ProcessPacket(p)
	}
	s, err := follower.FindStream(netip.MustParseAddr("1.2.3.4"), 22, netip.MustParseAddr("4.3.2.1"), 25)
	require.NoError(t, err)

	follower.ProcessPacket(tcpPacket(t, "1.2.3.4", "4.3.2.1", 22, 25, 11, layers.TCPFlagFIN|layers.TCPFlagACK, nil))
	assert.Equal(t, StreamFinWait1, s.State())
	follower.ProcessPacket(tcpPacket(t, "4.3.2.1", "1.2.3.4", 25, 22, 21, layers.TCPFlagFIN|layers.TCPFlagACK, nil))
	assert.True(t, s.IsFinished())
	// the finished stream is reaped
	assert.Equal(t, 0, follower.Streams())
}
