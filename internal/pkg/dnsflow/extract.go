package dnsflow

import (
	"bytes"

	"dnsflow/internal/pkg/constants"

	"github.com/google/gopacket/layers"
)

// Extract implements the DNS extractor (C4). It builds a Record from a
// decode that has already passed Accept: the question owner name, the
// CNAME chain, and the A rdata, each bounded by constants.MaxNamesPerSet /
// constants.MaxIPsPerSet / constants.MaxNameLen. gopacket hands back names
// as dotted-decoded labels; encodeName re-wires them into the
// length-prefixed-label-plus-terminating-zero form the wire format and the
// original's ldns_rdf_data carry, so what the builder appends is already
// on-the-wire bytes, not a debug string.
func Extract(dns *layers.DNS) (Record, bool) {
	q := dns.Questions[0]
	qName, ok := encodeName(q.Name)
	if !ok {
		return Record{}, false
	}

	rec := Record{Names: [][]byte{qName}}

	for _, a := range dns.Answers {
		switch a.Type {
		case layers.DNSTypeCNAME:
			if len(rec.Names) >= constants.MaxNamesPerSet {
				continue
			}
			cname, ok := encodeName(a.CNAME)
			if !ok {
				continue
			}
			rec.Names = append(rec.Names, cname)
		case layers.DNSTypeA:
			if len(rec.IPs) >= constants.MaxIPsPerSet {
				continue
			}
			ip4 := a.IP.To4()
			if ip4 == nil {
				continue
			}
			var b [4]byte
			copy(b[:], ip4)
			rec.IPs = append(rec.IPs, b)
		default:
			// Other RR types are ignored.
		}
	}

	if len(rec.Names) == 0 || len(rec.IPs) == 0 {
		return Record{}, false
	}
	return rec, true
}

// encodeName re-wires a gopacket dotted-decoded name (e.g. "www.example.com",
// with no trailing dot and no escaping) into wire-format label sequence: one
// length-prefixed label per dot-separated component, terminated by a zero
// length byte. The root name decodes to an empty slice and encodes to just
// the terminating zero.
func encodeName(dotted []byte) ([]byte, bool) {
	if len(dotted) == 0 {
		return []byte{0}, true
	}
	if len(dotted) > constants.MaxNameLen-2 {
		return nil, false
	}

	labels := bytes.Split(dotted, []byte{'.'})
	out := make([]byte, 0, len(dotted)+2)
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return nil, false
		}
		out = append(out, byte(len(label)))
		out = append(out, label...)
	}
	out = append(out, 0)
	if len(out) > constants.MaxNameLen {
		return nil, false
	}
	return out, true
}
