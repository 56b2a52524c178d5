// Package metrics defines prometheus metrics for the library. Counters
// are registered through promauto; callers expose them by mounting the
// default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsParsed counts packets successfully parsed into a PDU stack.
	PacketsParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packetforge_packets_parsed_total",
		Help: "Number of packets parsed into PDU stacks.",
	})

	// MalformedPackets counts packets the parser rejected.
	MalformedPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packetforge_packets_malformed_total",
		Help: "Number of packets dropped as malformed.",
	})

	// StreamsCreated counts TCP streams the follower started tracking.
	StreamsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packetforge_tcp_streams_created_total",
		Help: "Number of TCP streams created from an opening SYN.",
	})

	// StreamsFinished counts TCP streams that closed or reset.
	StreamsFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packetforge_tcp_streams_finished_total",
		Help: "Number of TCP streams that finished and were dropped.",
	})

	// FramesDecrypted counts 802.11 frames decrypted successfully.
	FramesDecrypted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packetforge_wpa2_frames_decrypted_total",
		Help: "Number of 802.11 data frames decrypted.",
	})

	// FramesDropped counts encrypted frames dropped on MIC or replay
	// failures.
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packetforge_wpa2_frames_dropped_total",
		Help: "Number of 802.11 data frames dropped by the decrypter.",
	})

	// HandshakesCaptured counts completed 4-way handshakes.
	HandshakesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packetforge_wpa2_handshakes_total",
		Help: "Number of complete WPA2 4-way handshakes captured.",
	})
)
