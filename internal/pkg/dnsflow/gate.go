package dnsflow

import "github.com/google/gopacket/layers"

// Accept implements the DNS gate (C3): only a recursive, successful,
// single-question A response is allowed through. Every other shape is
// rejected silently (PacketDropSilent).
func Accept(dns *layers.DNS) bool {
	if !dns.QR || !dns.RD || !dns.RA {
		return false
	}
	if dns.ResponseCode != layers.DNSResponseCodeNoErr {
		return false
	}
	if dns.QDCount != 1 || len(dns.Questions) != 1 {
		return false
	}
	if dns.Questions[0].Type != layers.DNSTypeA {
		return false
	}
	return true
}
