package tcpstream

import (
	"fmt"
	"net/netip"

	"go.uber.org/zap"

	"github.com/mellowdrifter/packetforge/layers"
	"github.com/mellowdrifter/packetforge/metrics"
	"github.com/mellowdrifter/packetforge/pdu"
)

// streamKey canonicalizes a 4-tuple so both directions hash alike.
type streamKey struct {
	loAddr netip.Addr
	hiAddr netip.Addr
	loPort uint16
	hiPort uint16
}

func makeKey(a netip.Addr, ap uint16, b netip.Addr, bp uint16) streamKey {
	if a.Compare(b) > 0 || (a.Compare(b) == 0 && ap > bp) {
		a, b = b, a
		ap, bp = bp, ap
	}
	return streamKey{loAddr: a, hiAddr: b, loPort: ap, hiPort: bp}
}

// Follower watches a packet feed and maintains every TCP stream in it.
// Drive it with ProcessPacket from a single goroutine; there is no
// internal locking.
type Follower struct {
	streams map[streamKey]*Stream
	logger  *zap.SugaredLogger

	// OnNewStream fires when an opening SYN creates a stream. Attach the
	// per-flow data callbacks here.
	OnNewStream func(*Stream)

	// OnStreamClosed fires just before a finished stream is dropped.
	OnStreamClosed func(*Stream)
}

func NewFollower(logger *zap.SugaredLogger) *Follower {
	return &Follower{
		streams: make(map[streamKey]*Stream),
		logger:  logger,
	}
}

// ProcessPacket inspects one parsed stack. Non-TCP packets are ignored.
func (f *Follower) ProcessPacket(p pdu.PDU) {
	t, err := pdu.Find[*layers.TCP](p)
	if err != nil {
		return
	}
	src, dst, ok := endpoints(p)
	if !ok {
		return
	}
	key := makeKey(src, t.SrcPort, dst, t.DstPort)
	s, tracked := f.streams[key]
	if !tracked {
		// only an opening SYN starts tracking
		if !t.HasFlag(layers.TCPFlagSYN) || t.HasFlag(layers.TCPFlagACK) {
			return
		}
		s = newStream(src, t.SrcPort, dst, t.DstPort, t.Seq)
		f.streams[key] = s
		metrics.StreamsCreated.Inc()
		if f.logger != nil {
			f.logger.Debugf("new stream %s:%d -> %s:%d", src, t.SrcPort, dst, t.DstPort)
		}
		if f.OnNewStream != nil {
			f.OnNewStream(s)
		}
	}
	s.processPacket(p, t, src)
	if s.IsFinished() {
		if f.OnStreamClosed != nil {
			f.OnStreamClosed(s)
		}
		delete(f.streams, key)
		metrics.StreamsFinished.Inc()
		if f.logger != nil {
			f.logger.Debugf("stream %s:%d -> %s:%d finished", src, t.SrcPort, dst, t.DstPort)
		}
	}
}

// endpoints pulls the network-layer addresses out of a stack.
func endpoints(p pdu.PDU) (src, dst netip.Addr, ok bool) {
	if ip, err := pdu.Find[*layers.IP](p); err == nil {
		return netip.AddrFrom4([4]byte(ip.Src)), netip.AddrFrom4([4]byte(ip.Dst)), true
	}
	if ip6, err := pdu.Find[*layers.IPv6](p); err == nil {
		return netip.AddrFrom16([16]byte(ip6.Src)), netip.AddrFrom16([16]byte(ip6.Dst)), true
	}
	return src, dst, false
}

// FindStream looks up a live stream by its client and server endpoints.
func (f *Follower) FindStream(client netip.Addr, clientPort uint16, server netip.Addr, serverPort uint16) (*Stream, error) {
	s, ok := f.streams[makeKey(client, clientPort, server, serverPort)]
	if !ok {
		return nil, fmt.Errorf("%w: %s:%d <-> %s:%d", pdu.ErrStreamNotFound, client, clientPort, server, serverPort)
	}
	return s, nil
}

// Streams reports the number of live streams.
func (f *Follower) Streams() int { return len(f.streams) }
