package tcpstream

import (
	"math"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mellowdrifter/packetforge/layers"
	"github.com/mellowdrifter/packetforge/pdu"
)

// chunk is (offset into payload, length).
type chunk struct {
	off int
	n   int
}

func segmentFor(t *testing.T, seq uint32, data []byte) *layers.TCP {
	t.Helper()
	tcp := layers.NewTCP(25, 22)
	tcp.Seq = seq
	if len(data) > 0 {
		pdu.Chain(tcp, pdu.NewRaw(data))
	}
	return tcp
}

// runReassembly feeds the payload chunks in the given order and returns
// the concatenation of the data callbacks.
func runReassembly(t *testing.T, initialSeq uint32, payload string, chunks []chunk) string {
	t.Helper()
	flow := NewFlow(netip.MustParseAddr("4.3.2.1"), 25, initialSeq)
	var got []byte
	flow.OnData = func(f *Flow) {
		got = append(got, f.Payload()...)
		f.ClearPayload()
	}
	for _, c := range chunks {
		seq := initialSeq + uint32(c.off)
		flow.ProcessPacket(segmentFor(t, seq, []byte(payload[c.off:c.off+c.n])))
	}
	return string(got)
}

func splitPayload(payload string, size int) []chunk {
	var out []chunk
	for off := 0; off < len(payload); off += size {
		n := size
		if off+n > len(payload) {
			n = len(payload) - off
		}
		out = append(out, chunk{off: off, n: n})
	}
	return out
}

const loremPayload = "Lorem ipsum dolor sit amet, consectetur adipiscing elit."

func TestReassembleInOrder(t *testing.T) {
	chunks := splitPayload(loremPayload, 5)
	assert.Equal(t, loremPayload, runReassembly(t, 0, loremPayload, chunks))
}

func TestReassembleReversed(t *testing.T) {
	chunks := splitPayload(loremPayload, 5)
	for i, j := 0, len(chunks)-1; i < j; i, j = i+1, j-1 {
		chunks[i], chunks[j] = chunks[j], chunks[i]
	}
	for _, isn := range []uint32{0, 20, math.MaxUint32 / 2, math.MaxUint32 - 2, math.MaxUint32 - 5, math.MaxUint32 - 31} {
		assert.Equalf(t, loremPayload, runReassembly(t, isn, loremPayload, chunks), "isn %d", isn)
	}
}

func TestReassembleShuffled(t *testing.T) {
	chunks := splitPayload(loremPayload, 5)
	for i := 0; i+2 < len(chunks); i += 4 {
		chunks[i], chunks[i+2] = chunks[i+2], chunks[i]
	}
	assert.Equal(t, loremPayload, runReassembly(t, 0, loremPayload, chunks))
}

// Sequence numbers that wrap through zero must reassemble the same way.
func TestSequenceWrap(t *testing.T) {
	payload := "Lorem ipsum"
	chunks := []chunk{{7, 4}, {4, 3}, {0, 4}} // sizes 4, 3, 4 delivered reversed
	assert.Equal(t, payload, runReassembly(t, math.MaxUint32-4, payload, chunks))

	for k := uint32(1); k <= 40; k++ {
		ordered := splitPayload(payload, 3)
		assert.Equalf(t, payload, runReassembly(t, math.MaxUint32-k+1, payload, ordered), "isn 2^32-%d", k)
	}
}

// Overlapping chunks must resolve to first-writer-wins per byte.
func TestOverlapping(t *testing.T) {
	payload := "Hello world. This is a payload"
	chunks := []chunk{
		{0, 6}, // "Hello "
		{1, 7}, // overlaps the first chunk
		{3, 8}, // overlaps both
		{10, len(payload) - 10},
		{9, 1},
	}
	assert.Equal(t, payload, runReassembly(t, 0, payload, chunks))

	reversed := make([]chunk, len(chunks))
	for i := range chunks {
		reversed[i] = chunks[len(chunks)-1-i]
	}
	assert.Equal(t, payload, runReassembly(t, 0, payload, reversed))
}

func TestRetransmissionDropped(t *testing.T) {
	flow := NewFlow(netip.MustParseAddr("4.3.2.1"), 25, 0)
	var got []byte
	flow.OnData = func(f *Flow) {
		got = append(got, f.Payload()...)
		f.ClearPayload()
	}
	flow.ProcessPacket(segmentFor(t, 0, []byte("abcde")))
	flow.ProcessPacket(segmentFor(t, 0, []byte("abcde"))) // pure retransmission
	flow.ProcessPacket(segmentFor(t, 5, []byte("fgh")))
	assert.Equal(t, "abcdefgh", string(got))
}

func TestBufferingCallback(t *testing.T) {
	flow := NewFlow(netip.MustParseAddr("4.3.2.1"), 25, 0)
	buffering := 0
	flow.OnBuffering = func(*Flow) { buffering++ }
	flow.ProcessPacket(segmentFor(t, 10, []byte("later")))
	require.Equal(t, 1, buffering)
	assert.Equal(t, 1, flow.BufferedSegments())
}

func TestSeqCompare(t *testing.T) {
	assert.Equal(t, -1, seqCompare(1, 2))
	assert.Equal(t, 1, seqCompare(2, 1))
	assert.Equal(t, 0, seqCompare(7, 7))
	// wrap-aware: just past the wrap point is "greater"
	assert.Equal(t, -1, seqCompare(math.MaxUint32, 2))
	assert.Equal(t, 1, seqCompare(2, math.MaxUint32))
	assert.Equal(t, uint32(math.MaxUint32), seqMin(math.MaxUint32, 2))
}
