package dnsflow

import (
	"dnsflow/internal/pkg/encap"
	"dnsflow/internal/pkg/headers"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Process runs the full per-packet pipeline C1 (header validators) through
// C4 (DNS extractor) over a captured IPv4 frame. ipBytes must be positioned
// at the start of an IPv4 header. stripper configures the optional
// single-level encapsulation peel (C2); a zero-value Stripper disables it.
//
// It returns the resolved client IP address and the extracted record, or
// ok=false if the packet was dropped at any gate. A non-nil decodeErr means
// the drop was a DNSDecodeWarn (malformed DNS payload) rather than a
// PacketDropSilent header/gate failure; callers should log decodeErr at
// warn level and otherwise must not log on a false return.
func Process(ipBytes []byte, stripper encap.Stripper) (clientIP [4]byte, rec Record, ok bool, decodeErr error) {
	r, valid := headers.Validate(ipBytes)
	if !valid {
		return clientIP, rec, false, nil
	}

	payload := ipBytes[r.PayloadOffset : r.IPHeaderLen+r.UDPLength]

	if stripper.Enabled() {
		destPort := headers.DestPort(ipBytes, r)
		inner, innerResult, strippedOK := stripper.Strip(payload, destPort)
		if !strippedOK {
			return clientIP, rec, false, nil
		}
		ipBytes = inner
		r = innerResult
		payload = ipBytes[r.PayloadOffset : r.IPHeaderLen+r.UDPLength]
	}

	var dns layers.DNS
	if err := dns.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return clientIP, rec, false, err
	}

	if !Accept(&dns) {
		return clientIP, rec, false, nil
	}

	rec, extracted := Extract(&dns)
	if !extracted {
		return clientIP, rec, false, nil
	}

	return headers.DestIP(ipBytes), rec, true, nil
}
