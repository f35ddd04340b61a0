package flowpacket

import (
	"encoding/binary"

	"dnsflow/internal/pkg/constants"
)

// Counters is the capture-library snapshot C10 packs into a StatsFrame:
// (captured, received, dropped, ifdropped, sample_rate) from spec.md §4.10.
type Counters struct {
	Captured   uint32
	Received   uint32
	Dropped    uint32
	IfDropped  uint32
	SampleRate uint32
}

// statsFrameLen is the 8-byte header plus five 32-bit counters.
const statsFrameLen = 8 + 5*4

// EmitStats builds a StatsFrame (header flags=StatsFlag, sets_count=1,
// followed by the five counters) and sends it through the same sink and
// sequence-number namespace as data datagrams (C10 "does not interact
// with the data batch... shares only the sequence counter").
func (b *Builder) EmitStats(c Counters) error {
	var frame [statsFrameLen]byte

	frame[0] = constants.ProtocolVersion
	frame[1] = 1 // sets_count
	binary.BigEndian.PutUint16(frame[2:4], constants.StatsFlag)
	binary.BigEndian.PutUint32(frame[4:8], b.nextSequence())

	binary.BigEndian.PutUint32(frame[8:12], c.Captured)
	binary.BigEndian.PutUint32(frame[12:16], c.Received)
	binary.BigEndian.PutUint32(frame[16:20], c.Dropped)
	binary.BigEndian.PutUint32(frame[20:24], c.IfDropped)
	binary.BigEndian.PutUint32(frame[24:28], c.SampleRate)

	return b.sink.Send(frame[:])
}
