// Package sniffer wraps a packet source into an iterator of parsed PDU
// stacks. Live capture handles are out of scope; any Source that yields
// (timestamp, bytes, link-type) plugs in, and a pcap savefile reader is
// provided.
package sniffer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/mellowdrifter/packetforge/metrics"
	"github.com/mellowdrifter/packetforge/pdu"
)

// Direction filters, mirroring the capture library's values.
const (
	DirectionInOut = iota
	DirectionIn
	DirectionOut
)

// Config is the capture configuration surface. The sniffer stores it and
// reports it through Config; no field is handed to the Source, and none of
// them changes parsing semantics.
type Config struct {
	SnapLen            int
	BufferSize         int
	Promisc            bool
	RFMon              bool
	Filter             string
	Timeout            time.Duration
	Direction          int
	ImmediateMode      bool
	TimestampPrecision int
}

// DefaultConfig mirrors the defaults of the underlying capture library.
func DefaultConfig() Config {
	return Config{
		SnapLen:    65535,
		BufferSize: 1 << 20,
		Timeout:    time.Second,
	}
}

// Packet is one captured, parsed packet.
type Packet struct {
	pdu       pdu.PDU
	timestamp time.Time
}

func (p Packet) PDU() pdu.PDU         { return p.pdu }
func (p Packet) Timestamp() time.Time { return p.timestamp }

// Source yields raw packets. Next returns io.EOF when exhausted.
type Source interface {
	Next() (ts time.Time, data []byte, linkType int, err error)
}

// Sniffer parses packets from a source and feeds them to any registered
// observers. Malformed packets are counted and skipped, so consumers
// never see a partial stack.
type Sniffer struct {
	src       Source
	cfg       Config
	logger    *zap.SugaredLogger
	observers []func(pdu.PDU)
}

func New(src Source, cfg Config, logger *zap.SugaredLogger) *Sniffer {
	return &Sniffer{src: src, cfg: cfg, logger: logger}
}

func (s *Sniffer) Config() Config { return s.cfg }

// AddObserver registers a callback run on every parsed stack before it
// is handed to the consumer. The TCP follower and the WPA2 decrypter
// attach here.
func (s *Sniffer) AddObserver(fn func(pdu.PDU)) {
	s.observers = append(s.observers, fn)
}

// NextPacket returns the next parseable packet, skipping malformed ones.
// io.EOF reports the end of the source.
func (s *Sniffer) NextPacket() (Packet, error) {
	for {
		ts, data, linkType, err := s.src.Next()
		if err != nil {
			return Packet{}, err
		}
		p, err := pdu.FromDLT(linkType, data)
		if err != nil || p == nil {
			metrics.MalformedPackets.Inc()
			if s.logger != nil && err != nil {
				s.logger.Debugf("dropping malformed packet: %v", err)
			}
			continue
		}
		metrics.PacketsParsed.Inc()
		for _, fn := range s.observers {
			fn(p)
		}
		return Packet{pdu: p, timestamp: ts}, nil
	}
}

// Each iterates the whole source, stopping early if fn returns false.
func (s *Sniffer) Each(fn func(Packet) bool) error {
	for {
		p, err := s.NextPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("sniffer: %w", err)
		}
		if !fn(p) {
			return nil
		}
	}
}
