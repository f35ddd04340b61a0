// Package pcapsource implements the capture collaborator contract of
// SPEC_FULL.md §6 against gopacket/pcap: live and file sources, a uniform
// callback dispatcher, capture statistics, and the sampling hook.
package pcapsource

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Callback is delivered at most once per captured frame, in capture
// order: timestamp, ip_length, ip_bytes (positioned at the start of the
// IPv4 header).
type Callback func(ts time.Time, ipLen int, ipBytes []byte)

// Stats mirrors the capture-library snapshot flowpacket.Counters is built
// from: captured, received, dropped, ifdropped, and the currently
// configured sample rate.
type Stats struct {
	Captured   uint32
	Received   uint32
	Dropped    uint32
	IfDropped  uint32
	SampleRate uint32
}

// Source is the capture collaborator contract: a live interface or an
// offline file, each exposing the same filter/loop/stats surface and a
// settable sample rate consulted by the per-packet dispatcher before a
// frame ever reaches the header validators (C1).
type Source interface {
	// SetFilter installs a compiled packet-filter expression (C7's output).
	SetFilter(expr string) error

	// Loop registers cb and runs until the source is closed (live) or EOF
	// is reached (file, then it returns).
	Loop(cb Callback) error

	// Stats returns the current capture counters.
	Stats() (Stats, error)

	// Close releases the underlying handle.
	Close() error
}

// decodeIPv4 strips the datalink header off a captured frame so the
// callback contract's "positioned at the start of the IPv4 header"
// promise actually holds. Frames come off the wire at the handle's link
// type (Ethernet for most live interfaces and capture files, Linux SLL
// for "any", raw/null for some tunnel/loopback captures); dnsflow.c never
// faces this because dcap already strips the datalink layer before
// handing ip_pkt to dnsflow_dcap_cb. Non-IPv4 frames (ARP, IPv6, VLAN
// tags gopacket doesn't unwrap to an IPv4 network layer) are dropped,
// matching the teacher's pkt.NetworkLayer() pattern in
// capture/converter_shared.go.
func decodeIPv4(linkType layers.LinkType, data []byte) ([]byte, bool) {
	pkt := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	netLayer := pkt.NetworkLayer()
	if netLayer == nil {
		return nil, false
	}
	if _, ok := netLayer.(*layers.IPv4); !ok {
		return nil, false
	}
	// The IPv4 header starts after every layer decoded ahead of it; a
	// link-layer trailer (e.g. Ethernet minimum-frame padding) follows the
	// IPv4 total length and is excluded.
	off := 0
	for _, l := range pkt.Layers() {
		if l == netLayer {
			break
		}
		off += len(l.LayerContents())
	}
	n := len(netLayer.LayerContents()) + len(netLayer.LayerPayload())
	if off+n > len(data) {
		return nil, false
	}
	return data[off : off+n], true
}
