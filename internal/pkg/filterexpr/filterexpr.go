// Package filterexpr generates the packet-filter expression (C7) that
// selects valid recursive A responses for a given encapsulation depth,
// worker shard, and mDNS setting, mirroring dnsflow.c's build_pcap_filter.
package filterexpr

import "fmt"

// sizeof(ip) and sizeof(udp) in the underlying IPv4/UDP headers.
const (
	ipHeaderLen  = 20
	udpHeaderLen = 8
)

// Offsets within udp/ip used by the generated filter, from build_pcap_filter.
const (
	srcPortOffset   = 0
	dnsFlagsOffset  = 10
	dstIPOffset     = 16
)

// Params configures filter generation. EncapOffset is the byte distance
// from the end of the outer UDP header to the inner IP header (0 if no
// outer encapsulation). WorkerIndex and NWorkers are 1-based; a NWorkers of
// 1 disables the shard clause.
type Params struct {
	EncapOffset int
	WorkerIndex int
	NWorkers    int
	EnableMDNS  bool
}

// Build produces the filter expression for p, wrapped to also match a
// single level of vlan tagging (SPEC_FULL.md §4.7's "(<F>) or (vlan and
// (<F>))").
func Build(p Params) string {
	udpBase := 0
	ipBase := 0
	if p.EncapOffset != 0 {
		udpBase = udpHeaderLen + p.EncapOffset + ipHeaderLen
		ipBase = ipHeaderLen + udpHeaderLen + p.EncapOffset
	}

	var portFilter string
	if p.EnableMDNS {
		portFilter = fmt.Sprintf("(udp[%d:2] == 53 or udp[%d:2] == 5353)",
			srcPortOffset+udpBase, srcPortOffset+udpBase)
	} else {
		portFilter = fmt.Sprintf("udp[%d:2] == 53", srcPortOffset+udpBase)
	}

	flagsFilter := fmt.Sprintf("udp[%d:2] & 0x8187 == 0x8180", dnsFlagsOffset+udpBase)

	base := fmt.Sprintf("udp and %s and %s", portFilter, flagsFilter)

	full := base
	if p.NWorkers > 1 {
		off := dstIPOffset + ipBase
		shard := fmt.Sprintf("(ip[%d:4] - ip[%d:4] / %d * %d) == %d",
			off, off, p.NWorkers, p.NWorkers, p.WorkerIndex-1)
		full = fmt.Sprintf("%s and %s", base, shard)
	}

	return fmt.Sprintf("(%s) or (vlan and (%s))", full, full)
}
