package flowpacket

import (
	"bytes"
	"net"
	"testing"

	"dnsflow/internal/pkg/dnsflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	sent [][]byte
}

func (s *fakeSink) Send(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.sent = append(s.sent, cp)
	return nil
}

func mustClientIP(t *testing.T, s string) [4]byte {
	t.Helper()
	ip4 := net.ParseIP(s).To4()
	require.NotNil(t, ip4)
	var ip [4]byte
	copy(ip[:], ip4)
	return ip
}

// S1 — minimal record.
func TestBuilder_S1_MinimalRecord(t *testing.T) {
	sink := &fakeSink{}
	b := NewBuilder(sink)

	client := mustClientIP(t, "192.0.2.10")
	rec := dnsflow.Record{
		Names: [][]byte{[]byte("\x07example\x03com\x00")},
		IPs:   [][4]byte{{198, 51, 100, 5}},
	}

	_, err := b.Append(client, rec)
	require.NoError(t, err)
	require.NoError(t, b.Flush())

	require.Len(t, sink.sent, 1)
	got := sink.sent[0]

	want := []byte{
		0x02, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, // header
		0xC0, 0x00, 0x02, 0x0A, 0x01, 0x01, 0x00, 0x10, // set_hdr
		0x07, 0x65, 0x78, 0x61, 0x6D, 0x70, 0x6C, 0x65, 0x03, 0x63, 0x6F, 0x6D, 0x00, 0x00, 0x00, 0x00, // name + pad
		0xC6, 0x33, 0x64, 0x05, // ip
	}
	assert.Equal(t, want, got)
	assert.Len(t, got, 36)
}

// S2 — size flush.
func TestBuilder_S2_SizeFlush(t *testing.T) {
	sink := &fakeSink{}
	b := NewBuilder(sink)

	client := mustClientIP(t, "192.0.2.10")
	longName := append([]byte{63}, bytes.Repeat([]byte("a"), 63)...)
	longName = append(longName, 0)
	rec := dnsflow.Record{
		Names: [][]byte{longName},
		IPs:   [][4]byte{{198, 51, 100, 5}},
	}

	flushedAt := -1
	for i := 0; i < 30; i++ {
		flushed, err := b.Append(client, rec)
		require.NoError(t, err)
		if flushed {
			flushedAt = i
			break
		}
	}
	require.NotEqual(t, -1, flushedAt, "expected a size-triggered flush")
	require.Len(t, sink.sent, 1)

	hdr, sets, err := Parse(sink.sent[0])
	require.NoError(t, err)
	assert.EqualValues(t, flushedAt+1, hdr.SetsCount)
	assert.Len(t, sets, flushedAt+1)
	assert.EqualValues(t, 1, hdr.SequenceNumber)

	// Next append starts a fresh batch with sequence incremented.
	_, err = b.Append(client, rec)
	require.NoError(t, err)
	require.NoError(t, b.Flush())
	require.Len(t, sink.sent, 2)
	hdr2, _, err := Parse(sink.sent[1])
	require.NoError(t, err)
	assert.EqualValues(t, 2, hdr2.SequenceNumber)
}

// S3 — count flush.
func TestBuilder_S3_CountFlush(t *testing.T) {
	sink := &fakeSink{}
	b := NewBuilder(sink)

	client := mustClientIP(t, "192.0.2.10")
	rec := dnsflow.Record{
		Names: [][]byte{[]byte("\x03foo\x00")},
		IPs:   [][4]byte{{10, 0, 0, 1}},
	}

	var flushed bool
	var err error
	for i := 0; i < 255; i++ {
		flushed, err = b.Append(client, rec)
		require.NoError(t, err)
	}
	assert.True(t, flushed, "255th append must flush")
	require.Len(t, sink.sent, 1)

	hdr, sets, err := Parse(sink.sent[0])
	require.NoError(t, err)
	assert.EqualValues(t, 255, hdr.SetsCount)
	assert.Len(t, sets, 255)

	// 256th append begins a new batch.
	flushed, err = b.Append(client, rec)
	require.NoError(t, err)
	assert.False(t, flushed)
	assert.Equal(t, 1, b.Sets())
}

func TestBuilder_FlushNoOpWhenEmpty(t *testing.T) {
	sink := &fakeSink{}
	b := NewBuilder(sink)
	require.NoError(t, b.Flush())
	assert.Empty(t, sink.sent)
}

func TestBuilder_RoundTrip(t *testing.T) {
	sink := &fakeSink{}
	b := NewBuilder(sink)

	client := mustClientIP(t, "203.0.113.7")
	rec := dnsflow.Record{
		Names: [][]byte{
			[]byte("\x07example\x03com\x00"),
			[]byte("\x01b\x00"),
			[]byte("\x01c\x00"),
		},
		IPs: [][4]byte{{203, 0, 113, 7}},
	}
	_, err := b.Append(client, rec)
	require.NoError(t, err)
	require.NoError(t, b.Flush())

	hdr, sets, err := Parse(sink.sent[0])
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, client, sets[0].ClientIP)
	assert.EqualValues(t, 3, sets[0].NamesCount)
	assert.EqualValues(t, 1, sets[0].IPsCount)
	assert.Zero(t, sets[0].NamesLen%4)
	assert.EqualValues(t, 2, hdr.Version)
	assert.Equal(t, [4]byte{203, 0, 113, 7}, sets[0].IPs[0])
}

func TestBuilder_OverflowDiscardsWholeBatch(t *testing.T) {
	sink := &fakeSink{}
	b := NewBuilder(sink)

	client := mustClientIP(t, "10.1.1.1")
	small := dnsflow.Record{Names: [][]byte{[]byte("\x03foo\x00")}, IPs: [][4]byte{{1, 2, 3, 4}}}
	_, err := b.Append(client, small)
	require.NoError(t, err)
	require.Equal(t, 1, b.Sets())

	huge := make([]byte, 70000)
	bad := dnsflow.Record{Names: [][]byte{huge}, IPs: [][4]byte{{1, 2, 3, 4}}}
	_, err = b.Append(client, bad)
	require.ErrorIs(t, err, ErrBuilderOverflow)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, b.Sets())
}
