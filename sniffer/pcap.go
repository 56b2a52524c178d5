package sniffer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// pcap savefile magic numbers, both byte orders, microsecond and
// nanosecond flavors.
const (
	pcapMagicMicro        = 0xa1b2c3d4
	pcapMagicMicroSwapped = 0xd4c3b2a1
	pcapMagicNano         = 0xa1b23c4d
	pcapMagicNanoSwapped  = 0x4d3cb2a1
)

// FileSource reads a pcap savefile and yields its records.
type FileSource struct {
	r        *bufio.Reader
	order    binary.ByteOrder
	nano     bool
	linkType int
	snapLen  uint32
}

// NewFileSource reads the global header and prepares record iteration.
func NewFileSource(r io.Reader) (*FileSource, error) {
	br := bufio.NewReader(r)
	var hdr [24]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("pcap header: %w", err)
	}
	f := &FileSource{r: br}
	switch binary.LittleEndian.Uint32(hdr[0:4]) {
	case pcapMagicMicro:
		f.order = binary.LittleEndian
	case pcapMagicNano:
		f.order = binary.LittleEndian
		f.nano = true
	case pcapMagicMicroSwapped:
		f.order = binary.BigEndian
	case pcapMagicNanoSwapped:
		f.order = binary.BigEndian
		f.nano = true
	default:
		return nil, fmt.Errorf("pcap: bad magic %#x", binary.LittleEndian.Uint32(hdr[0:4]))
	}
	f.snapLen = f.order.Uint32(hdr[16:20])
	f.linkType = int(f.order.Uint32(hdr[20:24]))
	return f, nil
}

// LinkType is the DLT of every record in the file.
func (f *FileSource) LinkType() int { return f.linkType }

// Next yields one record; io.EOF at the end of the file.
func (f *FileSource) Next() (time.Time, []byte, int, error) {
	var rec [16]byte
	if _, err := io.ReadFull(f.r, rec[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return time.Time{}, nil, 0, err
	}
	sec := f.order.Uint32(rec[0:4])
	sub := f.order.Uint32(rec[4:8])
	inclLen := f.order.Uint32(rec[8:12])
	if inclLen > f.snapLen && f.snapLen != 0 {
		return time.Time{}, nil, 0, fmt.Errorf("pcap: record length %d exceeds snaplen %d", inclLen, f.snapLen)
	}
	data := make([]byte, inclLen)
	if _, err := io.ReadFull(f.r, data); err != nil {
		return time.Time{}, nil, 0, fmt.Errorf("pcap record: %w", err)
	}
	nsec := int64(sub)
	if !f.nano {
		nsec *= 1000
	}
	return time.Unix(int64(sec), nsec), data, f.linkType, nil
}
