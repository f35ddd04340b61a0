package dnsflow

import (
	"net"
	"testing"

	"dnsflow/internal/pkg/encap"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIPv4UDPDNS(t *testing.T, srcIP, dstIP net.IP, dstPort uint16, dns *layers.DNS) []byte {
	t.Helper()

	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	udp := &layers.UDP{SrcPort: 53, DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, udp, dns))
	return buf.Bytes()
}

func recursiveResponseDNS() *layers.DNS {
	return &layers.DNS{
		QR:           true,
		RD:           true,
		RA:           true,
		ResponseCode: layers.DNSResponseCodeNoErr,
		QDCount:      1,
		ANCount:      1,
		Questions: []layers.DNSQuestion{
			{Name: []byte("example.com"), Type: layers.DNSTypeA, Class: layers.DNSClassIN},
		},
		Answers: []layers.DNSResourceRecord{
			{Name: []byte("example.com"), Type: layers.DNSTypeA, Class: layers.DNSClassIN, TTL: 300, IP: net.IPv4(198, 51, 100, 5)},
		},
	}
}

func TestProcess_AcceptsRecursiveResponse(t *testing.T) {
	// The response travels from the resolver (192.0.2.1) to the client.
	pkt := buildIPv4UDPDNS(t, net.IPv4(192, 0, 2, 1), net.IPv4(192, 0, 2, 10), 12345, recursiveResponseDNS())

	clientIP, rec, ok, decodeErr := Process(pkt, encap.Stripper{})
	require.NoError(t, decodeErr)
	require.True(t, ok)
	assert.Equal(t, [4]byte{192, 0, 2, 10}, clientIP)
	assert.Equal(t, [][4]byte{{198, 51, 100, 5}}, rec.IPs)
}

func TestProcess_DropsNonRecursiveResponse(t *testing.T) {
	dns := recursiveResponseDNS()
	dns.ResponseCode = layers.DNSResponseCodeNXDomain
	pkt := buildIPv4UDPDNS(t, net.IPv4(192, 0, 2, 10), net.IPv4(192, 0, 2, 1), 53, dns)

	_, _, ok, decodeErr := Process(pkt, encap.Stripper{})
	assert.NoError(t, decodeErr)
	assert.False(t, ok)
}

func TestProcess_TooShortHeaderDrops(t *testing.T) {
	_, _, ok, decodeErr := Process(make([]byte, 5), encap.Stripper{})
	assert.NoError(t, decodeErr)
	assert.False(t, ok)
}

// S6 — encap strip: a JMirror-wrapped response is unwrapped and the inner
// client IP surfaces as the set's client_ip.
func TestProcess_JMirrorEncapStrip(t *testing.T) {
	inner := buildIPv4UDPDNS(t, net.IPv4(192, 0, 2, 1), net.IPv4(10, 9, 9, 9), 53, recursiveResponseDNS())
	jmirrorPayload := append(make([]byte, 8), inner...)
	outerIP := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IPv4(172, 16, 0, 1), DstIP: net.IPv4(172, 16, 0, 2)}
	outerUDP := &layers.UDP{SrcPort: 40000, DstPort: 30030}
	require.NoError(t, outerUDP.SetNetworkLayerForChecksum(outerIP))
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		outerIP, outerUDP, gopacket.Payload(jmirrorPayload)))

	stripper := encap.Stripper{JMirrorPort: 30030}
	clientIP, rec, ok, decodeErr := Process(buf.Bytes(), stripper)
	require.NoError(t, decodeErr)
	require.True(t, ok)
	assert.Equal(t, [4]byte{10, 9, 9, 9}, clientIP)
	assert.NotEmpty(t, rec.IPs)
}
