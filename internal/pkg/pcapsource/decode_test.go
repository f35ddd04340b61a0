package pcapsource

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ethernetIPv4UDP(t *testing.T, payload []byte) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xAA, 0xBB},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 0, 2, 10),
		DstIP:    net.IPv4(192, 0, 2, 1),
	}
	udp := &layers.UDP{SrcPort: 53, DstPort: 12345}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

// This is the exact bug the maintainer flagged: a frame captured off an
// Ethernet interface starts at the destination MAC, not the IP header.
func TestDecodeIPv4_StripsEthernetHeader(t *testing.T) {
	frame := ethernetIPv4UDP(t, []byte("dns-payload"))

	ipBytes, ok := decodeIPv4(layers.LinkTypeEthernet, frame)
	require.True(t, ok)
	assert.Equal(t, byte(0x45), ipBytes[0], "should start at the IPv4 version/IHL byte, not a MAC octet")
	assert.Equal(t, byte(17), ipBytes[9], "protocol field should read UDP")
}

func TestDecodeIPv4_RawLinkTypeIsPassthrough(t *testing.T) {
	frame := ethernetIPv4UDP(t, []byte("dns-payload"))
	ipOnly := frame[14:] // strip the 14-byte Ethernet header ourselves

	ipBytes, ok := decodeIPv4(layers.LinkTypeRaw, ipOnly)
	require.True(t, ok)
	assert.Equal(t, byte(0x45), ipBytes[0])
}

func TestDecodeIPv4_NonIPFrameDropped(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xAA, 0xBB},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		SourceProtAddress: []byte{192, 0, 2, 10},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{192, 0, 2, 1},
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp))

	_, ok := decodeIPv4(layers.LinkTypeEthernet, buf.Bytes())
	assert.False(t, ok)
}

func TestDecodeIPv4_TruncatedFrameDropped(t *testing.T) {
	_, ok := decodeIPv4(layers.LinkTypeEthernet, []byte{0x00, 0x11})
	assert.False(t, ok)
}
