package layers

import (
	"encoding/binary"
	"fmt"

	"github.com/mellowdrifter/packetforge/pdu"
	"github.com/mellowdrifter/packetforge/wire"
)

// RFC 4884 extension structure version.
const icmpExtensionVersion = 2

// MPLS label stack object identifiers (RFC 4950).
const (
	ICMPExtClassMPLS = 1
	ICMPExtTypeMPLS  = 1
)

// ICMPExtensionObject is one object in an RFC 4884 extension structure:
// a (length, class, type) header and an opaque payload.
type ICMPExtensionObject struct {
	Class   uint8
	ObjType uint8
	Payload []byte
}

// Size includes the 4-byte object header.
func (o *ICMPExtensionObject) Size() int { return 4 + len(o.Payload) }

// MPLSLabels decodes the payload as 4-byte MPLS label stack entries.
func (o *ICMPExtensionObject) MPLSLabels() ([]uint32, error) {
	if o.Class != ICMPExtClassMPLS || o.ObjType != ICMPExtTypeMPLS {
		return nil, fmt.Errorf("%w: object class %d type %d is not MPLS", pdu.ErrMalformedPacket, o.Class, o.ObjType)
	}
	if len(o.Payload)%4 != 0 {
		return nil, fmt.Errorf("%w: mpls object payload %d bytes", pdu.ErrMalformedPacket, len(o.Payload))
	}
	out := make([]uint32, 0, len(o.Payload)/4)
	for i := 0; i < len(o.Payload); i += 4 {
		out = append(out, binary.BigEndian.Uint32(o.Payload[i:]))
	}
	return out, nil
}

// ICMPExtensions is the RFC 4884 extension structure: a 4-byte header
// (version, reserved, checksum over the whole structure) and one or more
// objects.
type ICMPExtensions struct {
	Version uint8
	Objects []ICMPExtensionObject
}

func NewICMPExtensions() *ICMPExtensions {
	return &ICMPExtensions{Version: icmpExtensionVersion}
}

// AddMPLSObject appends an MPLS label stack object.
func (e *ICMPExtensions) AddMPLSObject(labels ...uint32) {
	payload := make([]byte, 4*len(labels))
	for i, l := range labels {
		binary.BigEndian.PutUint32(payload[i*4:], l)
	}
	e.Objects = append(e.Objects, ICMPExtensionObject{
		Class:   ICMPExtClassMPLS,
		ObjType: ICMPExtTypeMPLS,
		Payload: payload,
	})
}

func (e *ICMPExtensions) Size() int {
	n := 4
	for i := range e.Objects {
		n += e.Objects[i].Size()
	}
	return n
}

// WriteTo serializes the structure into buf, computing the checksum over
// the finished bytes.
func (e *ICMPExtensions) WriteTo(buf []byte) error {
	w := wire.NewWriter(buf)
	if err := w.U8(e.Version << 4); err != nil {
		return err
	}
	if err := w.U8(0); err != nil {
		return err
	}
	if err := w.U16(0); err != nil { // checksum, fixed up below
		return err
	}
	for i := range e.Objects {
		o := &e.Objects[i]
		if err := w.U16(uint16(o.Size())); err != nil {
			return err
		}
		if err := w.U8(o.Class); err != nil {
			return err
		}
		if err := w.U8(o.ObjType); err != nil {
			return err
		}
		if err := w.Bytes(o.Payload); err != nil {
			return err
		}
	}
	binary.BigEndian.PutUint16(buf[2:4], wire.InternetChecksum(buf[:e.Size()]))
	return nil
}

// ValidateExtensions checks the structure checksum over buf without
// parsing it.
func ValidateExtensions(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}
	return wire.Checksum(buf) == 0xffff
}

// ParseICMPExtensions verifies the checksum and decodes the objects.
func ParseICMPExtensions(data []byte) (*ICMPExtensions, error) {
	if !ValidateExtensions(data) {
		return nil, fmt.Errorf("%w: icmp extension checksum", pdu.ErrMalformedPacket)
	}
	r := wire.NewReader(data)
	e := &ICMPExtensions{}
	verRes, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("icmp extensions: %w", err)
	}
	e.Version = verRes >> 4
	if err := r.Skip(3); err != nil { // reserved + checksum
		return nil, fmt.Errorf("icmp extensions: %w", err)
	}
	for r.Remaining() >= 4 {
		length, _ := r.U16()
		class, _ := r.U8()
		typ, _ := r.U8()
		if length < 4 {
			return nil, fmt.Errorf("%w: icmp extension object length %d", pdu.ErrMalformedPacket, length)
		}
		payload, err := r.Bytes(int(length) - 4)
		if err != nil {
			return nil, fmt.Errorf("icmp extension object: %w", err)
		}
		cp := make([]byte, len(payload))
		copy(cp, payload)
		e.Objects = append(e.Objects, ICMPExtensionObject{Class: class, ObjType: typ, Payload: cp})
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after icmp extensions", pdu.ErrMalformedPacket, r.Remaining())
	}
	return e, nil
}
