package pcapsource

import (
	"fmt"
	"io"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// FileSource replays a capture file, implementing the "drain a file source
// then return" half of the capture collaborator contract (Loop returns on
// EOF rather than blocking forever as LiveSource does).
type FileSource struct {
	handle     *pcap.Handle
	linkType   layers.LinkType
	sampleRate uint32
	seen       uint64
}

// SetSampleRate configures the dispatcher to process only every Nth frame
// read from the file, the same client-side sampling LiveSource applies to
// a live interface (spec.md §6's -s flag is source-agnostic).
func (s *FileSource) SetSampleRate(rate uint32) { s.sampleRate = rate }

// OpenFile opens path for offline replay.
func OpenFile(path string) (*FileSource, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file %s: %w", path, err)
	}
	return &FileSource{handle: handle, linkType: handle.LinkType()}, nil
}

func (s *FileSource) SetFilter(expr string) error {
	return s.handle.SetBPFFilter(expr)
}

func (s *FileSource) Loop(cb Callback) error {
	for {
		data, ci, err := s.handle.ReadPacketData()
		if err == io.EOF || err == pcap.NextErrorNoMorePackets {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read packet: %w", err)
		}
		s.seen++
		if s.sampleRate > 1 && s.seen%uint64(s.sampleRate) != 0 {
			continue
		}

		ipBytes, ok := decodeIPv4(s.linkType, data)
		if !ok {
			continue
		}
		cb(ci.Timestamp, len(ipBytes), ipBytes)
	}
}

// Stats reports only the capture count; file sources have no
// kernel-dropped-packet notion, so Received/Dropped/IfDropped stay zero.
func (s *FileSource) Stats() (Stats, error) {
	return Stats{Captured: uint32(s.seen)}, nil
}

func (s *FileSource) Close() error {
	s.handle.Close()
	return nil
}
