package flowpacket

import (
	"encoding/binary"
	"fmt"
)

// Header is the decoded 8-byte datagram header common to data and stats
// datagrams.
type Header struct {
	Version        uint8
	SetsCount      uint8
	Flags          uint16
	SequenceNumber uint32
}

// IsStats reports whether the header's flags mark this as a StatsFrame.
func (h Header) IsStats() bool { return h.Flags&0x0001 != 0 }

// Set is a decoded FlowSet: the client address plus its raw name and IP
// byte regions (still concatenated wire-format names, still 4-byte-aligned
// IPs — callers that need individual names should split on wire-format
// label lengths themselves).
type Set struct {
	ClientIP   [4]byte
	NamesCount uint8
	IPsCount   uint8
	NamesLen   uint16
	NamesRaw   []byte
	IPs        [][4]byte
}

// Parse decodes a data datagram produced by Builder.Flush, verifying
// invariant 1 from spec.md §8: parsing consumes exactly sets_count sets and
// all bytes.
func Parse(data []byte) (Header, []Set, error) {
	if len(data) < 8 {
		return Header{}, nil, fmt.Errorf("flowpacket: short header, %d bytes", len(data))
	}
	hdr := Header{
		Version:        data[0],
		SetsCount:      data[1],
		Flags:          binary.BigEndian.Uint16(data[2:4]),
		SequenceNumber: binary.BigEndian.Uint32(data[4:8]),
	}

	if hdr.IsStats() {
		return hdr, nil, nil
	}

	sets := make([]Set, 0, hdr.SetsCount)
	off := 8
	for i := 0; i < int(hdr.SetsCount); i++ {
		if off+8 > len(data) {
			return hdr, nil, fmt.Errorf("flowpacket: truncated set header at offset %d", off)
		}
		var s Set
		copy(s.ClientIP[:], data[off:off+4])
		s.NamesCount = data[off+4]
		s.IPsCount = data[off+5]
		s.NamesLen = binary.BigEndian.Uint16(data[off+6 : off+8])
		off += 8

		if s.NamesLen%4 != 0 {
			return hdr, nil, fmt.Errorf("flowpacket: names_len %d not 4-byte aligned", s.NamesLen)
		}
		if off+int(s.NamesLen) > len(data) {
			return hdr, nil, fmt.Errorf("flowpacket: truncated names region at offset %d", off)
		}
		s.NamesRaw = data[off : off+int(s.NamesLen)]
		off += int(s.NamesLen)

		ipsBytes := int(s.IPsCount) * 4
		if off+ipsBytes > len(data) {
			return hdr, nil, fmt.Errorf("flowpacket: truncated ips region at offset %d", off)
		}
		s.IPs = make([][4]byte, s.IPsCount)
		for j := 0; j < int(s.IPsCount); j++ {
			copy(s.IPs[j][:], data[off:off+4])
			off += 4
		}

		sets = append(sets, s)
	}

	if off != len(data) {
		return hdr, sets, fmt.Errorf("flowpacket: %d trailing bytes after %d sets", len(data)-off, hdr.SetsCount)
	}

	return hdr, sets, nil
}

// ParseStats decodes a StatsFrame (Header.IsStats() == true).
func ParseStats(data []byte) (Header, Counters, error) {
	hdr, _, err := Parse(data)
	if err != nil {
		return hdr, Counters{}, err
	}
	if !hdr.IsStats() {
		return hdr, Counters{}, fmt.Errorf("flowpacket: not a stats frame")
	}
	if len(data) < statsFrameLen {
		return hdr, Counters{}, fmt.Errorf("flowpacket: short stats frame, %d bytes", len(data))
	}
	return hdr, Counters{
		Captured:   binary.BigEndian.Uint32(data[8:12]),
		Received:   binary.BigEndian.Uint32(data[12:16]),
		Dropped:    binary.BigEndian.Uint32(data[16:20]),
		IfDropped:  binary.BigEndian.Uint32(data[20:24]),
		SampleRate: binary.BigEndian.Uint32(data[24:28]),
	}, nil
}
