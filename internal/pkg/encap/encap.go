// Package encap strips one level of UDP-carried encapsulation (a
// pcap-record+ethernet wrapper or a JMirror wrapper) ahead of revalidating
// the inner IPv4/UDP header.
package encap

import "dnsflow/internal/pkg/headers"

// pcapRecordHeaderLen is sizeof(pcap_sf_pkthdr) + sizeof(ether_header): 16 + 14.
const pcapRecordHeaderLen = 30

// jmirrorHeaderLen is two 32-bit fields: intercept_id, session_id.
const jmirrorHeaderLen = 8

// Stripper configures the two recognized encapsulation ports. A zero value
// for either field disables that encap path.
type Stripper struct {
	PcapRecordPort uint16
	JMirrorPort    uint16
}

// Enabled reports whether either encap path is configured.
func (s Stripper) Enabled() bool {
	return s.PcapRecordPort != 0 || s.JMirrorPort != 0
}

// Strip peels the wrapper matching destPort, the outer UDP packet's
// destination port, and revalidates the residual bytes as an IPv4/UDP
// packet. It strips exactly one level; if destPort matches neither
// configured port, or the residual is too short or fails revalidation,
// it returns ok=false.
func (s Stripper) Strip(outerPayload []byte, destPort uint16) (inner []byte, r headers.Result, ok bool) {
	var skip int
	switch {
	case s.PcapRecordPort != 0 && destPort == s.PcapRecordPort:
		skip = pcapRecordHeaderLen
	case s.JMirrorPort != 0 && destPort == s.JMirrorPort:
		skip = jmirrorHeaderLen
	default:
		return nil, headers.Result{}, false
	}

	if len(outerPayload) < skip {
		return nil, headers.Result{}, false
	}

	inner = outerPayload[skip:]
	r, ok = headers.Validate(inner)
	return inner, r, ok
}
