package pdu

import (
	"errors"

	"github.com/mellowdrifter/packetforge/addr"
	"github.com/mellowdrifter/packetforge/wire"
)

// The closed error set of the library. Parse failures share identity with
// the wire-level sentinels so errors.Is works no matter which layer wrapped
// the failure.
var (
	ErrMalformedPacket  = wire.ErrMalformed
	ErrSerialization    = wire.ErrShortWrite
	ErrInvalidAddress   = addr.ErrInvalidAddress
	ErrMalformedOption  = errors.New("malformed option")
	ErrOptionNotFound   = errors.New("option not found")
	ErrOptionTooLarge   = errors.New("option payload too large")
	ErrFieldNotPresent  = errors.New("field not present")
	ErrInvalidDomain    = errors.New("invalid domain name")
	ErrBadCast          = errors.New("bad PDU cast")
	ErrStreamNotFound   = errors.New("stream not found")
	ErrPDUNotFound      = errors.New("PDU not found")
	ErrInvalidHandshake = errors.New("invalid handshake")
)
