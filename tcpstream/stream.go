package tcpstream

import (
	"net/netip"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/layers"
	"github.com/mellowdrifter/packetforge/pdu"
)

// StreamState is the observer-side RFC 793 connection state.
type StreamState int

const (
	StreamSynSent StreamState = iota
	StreamSynRcvd
	StreamEstablished
	StreamCloseWait
	StreamFinWait1
	StreamFinWait2
	StreamTimeWait
	StreamClosed
)

// Stream pairs the two directions of a TCP conversation and tracks the
// connection state as seen on the wire.
type Stream struct {
	client *Flow // data sent by the client, toward the server
	server *Flow // data sent by the server, toward the client

	clientAddr netip.Addr
	serverAddr netip.Addr
	clientPort uint16
	serverPort uint16

	clientHW addr.MAC
	serverHW addr.MAC
	hwValid  bool

	state     StreamState
	clientFIN bool
	serverFIN bool
	sawRST    bool
}

// newStream builds a stream from the opening SYN: src is the client.
func newStream(clientAddr netip.Addr, clientPort uint16, serverAddr netip.Addr, serverPort uint16, isn uint32) *Stream {
	return &Stream{
		client:     NewFlow(serverAddr, serverPort, isn+1),
		server:     NewFlow(clientAddr, clientPort, 0),
		clientAddr: clientAddr,
		serverAddr: serverAddr,
		clientPort: clientPort,
		serverPort: serverPort,
		state:      StreamSynSent,
	}
}

func (s *Stream) ClientFlow() *Flow { return s.client }
func (s *Stream) ServerFlow() *Flow { return s.server }

func (s *Stream) ClientAddr() netip.Addr { return s.clientAddr }
func (s *Stream) ServerAddr() netip.Addr { return s.serverAddr }
func (s *Stream) ClientPort() uint16     { return s.clientPort }
func (s *Stream) ServerPort() uint16     { return s.serverPort }

// ClientHW and ServerHW are the link-layer addresses captured from the
// handshake, when the capture included a link layer.
func (s *Stream) ClientHW() addr.MAC { return s.clientHW }
func (s *Stream) ServerHW() addr.MAC { return s.serverHW }

func (s *Stream) State() StreamState { return s.state }

// IsFinished reports whether both directions closed or either reset.
func (s *Stream) IsFinished() bool {
	return s.state == StreamClosed || s.state == StreamTimeWait || s.sawRST
}

// processPacket routes one segment into the right flow and advances the
// connection state.
func (s *Stream) processPacket(p pdu.PDU, t *layers.TCP, srcAddr netip.Addr) {
	fromClient := srcAddr == s.clientAddr && t.SrcPort == s.clientPort
	if s.state == StreamSynSent && !s.hwValid && fromClient {
		if eth, err := pdu.Find[*layers.EthernetII](p); err == nil {
			s.clientHW = eth.Src
			s.serverHW = eth.Dst
			s.hwValid = true
		}
	}
	s.advanceState(t, fromClient)
	if fromClient {
		s.client.ProcessPacket(t)
	} else {
		s.server.ProcessPacket(t)
	}
}

func (s *Stream) advanceState(t *layers.TCP, fromClient bool) {
	if t.HasFlag(layers.TCPFlagRST) {
		s.sawRST = true
		s.state = StreamClosed
		return
	}
	syn := t.HasFlag(layers.TCPFlagSYN)
	ack := t.HasFlag(layers.TCPFlagACK)
	fin := t.HasFlag(layers.TCPFlagFIN)

	switch s.state {
	case StreamSynSent:
		if !fromClient && syn && ack {
			s.state = StreamSynRcvd
		}
	case StreamSynRcvd:
		if fromClient && ack && !syn {
			s.state = StreamEstablished
		}
	case StreamEstablished:
		if fin {
			if fromClient {
				s.clientFIN = true
				s.state = StreamFinWait1
			} else {
				s.serverFIN = true
				s.state = StreamCloseWait
			}
		}
	case StreamFinWait1:
		if !fromClient {
			if fin {
				s.serverFIN = true
				s.state = StreamTimeWait
			} else if ack {
				s.state = StreamFinWait2
			}
		}
	case StreamFinWait2:
		if !fromClient && fin {
			s.serverFIN = true
			s.state = StreamTimeWait
		}
	case StreamCloseWait:
		if fromClient && fin {
			s.clientFIN = true
			s.state = StreamTimeWait
		}
	case StreamTimeWait:
		if s.clientFIN && s.serverFIN && ack {
			s.state = StreamClosed
		}
	}
}
