// Package dnsflow implements the DNS gate (C3) and extractor (C4): it
// decides which recursive A responses qualify for summarization and
// materializes the question/CNAME/A data out of the decode before the
// caller frees it.
package dnsflow

// Record is the transient per-packet extraction (ExtractedRecord in the
// data model). Names[0] is the question owner; Names[1:] is the CNAME
// chain in answer order. It must not be retained past the capture
// callback that produced it.
type Record struct {
	Names [][]byte
	IPs   [][4]byte
}
