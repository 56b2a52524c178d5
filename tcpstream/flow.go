package tcpstream

import (
	"net/netip"

	"github.com/mellowdrifter/packetforge/layers"
	"github.com/mellowdrifter/packetforge/pdu"
)

// FlowState tracks one direction of a conversation.
type FlowState int

const (
	FlowUnknown FlowState = iota
	FlowSynSent
	FlowEstablished
	FlowFinSent
	FlowRstSent
)

// segment is one out-of-order chunk waiting for its gap to fill.
type segment struct {
	seq  uint32
	data []byte
}

// Flow is one direction of a TCP conversation, identified by the
// destination endpoint. It accumulates in-order payload and buffers
// whatever arrives ahead of the expected sequence number. Overlapping
// ranges keep the bytes that were stored first.
type Flow struct {
	dst     netip.Addr
	dstPort uint16

	state       FlowState
	seq         uint32    // next byte the consumer has not seen
	payload     []byte    // in-order bytes since the last callback drain
	buffered    []segment // out-of-order, sorted by wrap-aware seq
	OnData      func(*Flow)
	OnBuffering func(*Flow)
}

// NewFlow builds a flow toward the given destination endpoint, expecting
// data to start at seq. A SYN seen later overrides the expectation.
func NewFlow(dst netip.Addr, dstPort uint16, seq uint32) *Flow {
	return &Flow{dst: dst, dstPort: dstPort, seq: seq}
}

func (f *Flow) DstAddr() netip.Addr { return f.dst }
func (f *Flow) DstPort() uint16     { return f.dstPort }
func (f *Flow) State() FlowState    { return f.state }

// Sequence is the next expected sequence number.
func (f *Flow) Sequence() uint32 { return f.seq }

// Payload is the contiguous in-order buffer accumulated so far. Consumers
// typically read it from the OnData callback and then ClearPayload.
func (f *Flow) Payload() []byte { return f.payload }

func (f *Flow) ClearPayload() { f.payload = nil }

// BufferedSegments reports how many out-of-order chunks are waiting.
func (f *Flow) BufferedSegments() int { return len(f.buffered) }

// ProcessPacket feeds one segment heading toward this flow's endpoint.
func (f *Flow) ProcessPacket(t *layers.TCP) {
	f.updateState(t)
	seq := t.Seq
	if t.HasFlag(layers.TCPFlagSYN) {
		// data begins after the SYN
		f.seq = seq + 1
		return
	}
	var data []byte
	if raw, err := pdu.Find[*pdu.Raw](t); err == nil {
		data = raw.Payload()
	}
	if len(data) == 0 {
		return
	}
	f.processPayload(seq, data)
}

func (f *Flow) updateState(t *layers.TCP) {
	switch {
	case t.HasFlag(layers.TCPFlagRST):
		f.state = FlowRstSent
	case t.HasFlag(layers.TCPFlagFIN):
		f.state = FlowFinSent
	case t.HasFlag(layers.TCPFlagSYN):
		if f.state == FlowUnknown {
			f.state = FlowSynSent
		}
	case f.state == FlowSynSent && t.HasFlag(layers.TCPFlagACK):
		f.state = FlowEstablished
	}
}

func (f *Flow) processPayload(seq uint32, data []byte) {
	switch {
	case seq == f.seq:
		f.appendInOrder(data)
	case seqCompare(seq, f.seq) > 0:
		f.bufferSegment(seq, data)
		if f.OnBuffering != nil {
			f.OnBuffering(f)
		}
		return
	default:
		// seq is behind; a pure retransmission is dropped, a partial one
		// contributes its unseen suffix
		end := seq + uint32(len(data))
		if seqCompare(end, f.seq) <= 0 {
			return
		}
		f.appendInOrder(data[f.seq-seq:])
	}
	if f.OnData != nil {
		f.OnData(f)
	}
}

// appendInOrder delivers data that starts at the expected sequence number.
// It passes through the out-of-order buffer so bytes already held there
// keep precedence over the part of data that overlaps them.
func (f *Flow) appendInOrder(data []byte) {
	f.bufferSegment(f.seq, data)
	f.drainBuffered()
}

// drainBuffered promotes buffered segments that became contiguous.
func (f *Flow) drainBuffered() {
	for len(f.buffered) > 0 {
		s := f.buffered[0]
		if seqCompare(s.seq, f.seq) > 0 {
			return
		}
		f.buffered = f.buffered[1:]
		end := s.seq + uint32(len(s.data))
		if seqCompare(end, f.seq) <= 0 {
			continue // fully consumed already
		}
		f.payload = append(f.payload, s.data[f.seq-s.seq:]...)
		f.seq = end
	}
}

// bufferSegment stores an out-of-order chunk, keeping earlier-stored
// bytes for any overlapping range.
func (f *Flow) bufferSegment(seq uint32, data []byte) {
	pieces := []segment{{seq: seq, data: append([]byte(nil), data...)}}
	for _, held := range f.buffered {
		hStart, hEnd := held.seq, held.seq+uint32(len(held.data))
		var next []segment
		for _, p := range pieces {
			pStart, pEnd := p.seq, p.seq+uint32(len(p.data))
			if seqCompare(pEnd, hStart) <= 0 || seqCompare(pStart, hEnd) >= 0 {
				next = append(next, p)
				continue
			}
			// the held segment wins the overlapping range; keep what
			// sticks out on either side
			if seqCompare(pStart, hStart) < 0 {
				next = append(next, segment{seq: pStart, data: p.data[:hStart-pStart]})
			}
			if seqCompare(pEnd, hEnd) > 0 {
				next = append(next, segment{seq: hEnd, data: p.data[hEnd-pStart:]})
			}
		}
		pieces = next
		if len(pieces) == 0 {
			return
		}
	}
	f.buffered = append(f.buffered, pieces...)
	f.sortBuffered()
}

func (f *Flow) sortBuffered() {
	// insertion sort under wrap-aware order; the list stays tiny
	for i := 1; i < len(f.buffered); i++ {
		for j := i; j > 0 && seqCompare(f.buffered[j].seq, f.buffered[j-1].seq) < 0; j-- {
			f.buffered[j], f.buffered[j-1] = f.buffered[j-1], f.buffered[j]
		}
	}
}
