// Package headers bounds-checks IPv4/UDP headers ahead of DNS decoding.
package headers

import "encoding/binary"

const udpProtocolNumber = 17

// Result is the set of offsets recovered by Validate from a well-formed
// IPv4/UDP header pair.
type Result struct {
	IPHeaderLen   int
	TotalLen      int
	UDPOffset     int
	UDPLength     int
	PayloadOffset int
}

// Validate checks b, which must be positioned at the start of an IPv4
// header, against the eight bounds checks of the wire contract and returns
// the derived offsets. Every failure is silent: the caller drops the
// packet without logging (PacketDropSilent in the error taxonomy).
func Validate(b []byte) (Result, bool) {
	pktLen := len(b)
	if pktLen < 20 {
		return Result{}, false
	}

	version := b[0] >> 4
	if version != 4 {
		return Result{}, false
	}

	ihl := int(b[0] & 0x0F)
	ipHeaderLen := ihl * 4
	if pktLen < ipHeaderLen {
		return Result{}, false
	}

	totalLen := int(binary.BigEndian.Uint16(b[2:4]))
	if pktLen < totalLen {
		return Result{}, false
	}
	if totalLen < ipHeaderLen {
		return Result{}, false
	}

	if b[9] != udpProtocolNumber {
		return Result{}, false
	}

	if pktLen < ipHeaderLen+8 {
		return Result{}, false
	}
	udpOffset := ipHeaderLen
	udpLength := int(binary.BigEndian.Uint16(b[udpOffset+4 : udpOffset+6]))

	// The UDP length field covers the UDP header itself, so anything below
	// 8 is malformed and would otherwise underflow PayloadOffset below
	// TotalLen's upper bound.
	if udpLength < 8 {
		return Result{}, false
	}
	if pktLen < ipHeaderLen+udpLength {
		return Result{}, false
	}

	return Result{
		IPHeaderLen:   ipHeaderLen,
		TotalLen:      totalLen,
		UDPOffset:     udpOffset,
		UDPLength:     udpLength,
		PayloadOffset: udpOffset + 8,
	}, true
}

// DestPort reads the UDP destination port, assuming b has already passed
// Validate and r was derived from it.
func DestPort(b []byte, r Result) uint16 {
	return binary.BigEndian.Uint16(b[r.UDPOffset+2 : r.UDPOffset+4])
}

// DestIP reads the IPv4 destination address, assuming b has already passed
// Validate. This is the client (resolver-requester) address the flow
// summarizer keys records on, mirroring the original's use of ip_dst as
// the client address of a response packet.
func DestIP(b []byte) [4]byte {
	var ip [4]byte
	copy(ip[:], b[16:20])
	return ip
}
