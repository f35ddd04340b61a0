package encap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func innerIPv4UDP(payload []byte) []byte {
	udpLen := 8 + len(payload)
	totalLen := 20 + udpLen
	b := make([]byte, totalLen)
	b[0] = 0x45
	b[2] = byte(totalLen >> 8)
	b[3] = byte(totalLen)
	b[9] = 17
	b[12], b[13], b[14], b[15] = 10, 1, 1, 1
	b[16], b[17], b[18], b[19] = 10, 2, 2, 2
	b[24] = byte(udpLen >> 8)
	b[25] = byte(udpLen)
	copy(b[28:], payload)
	return b
}

func TestStripper_Enabled(t *testing.T) {
	assert.False(t, Stripper{}.Enabled())
	assert.True(t, Stripper{PcapRecordPort: 30030}.Enabled())
	assert.True(t, Stripper{JMirrorPort: 30031}.Enabled())
}

// S6 — JMirror encap strip.
func TestStrip_JMirror(t *testing.T) {
	s := Stripper{JMirrorPort: 30030}
	inner := innerIPv4UDP([]byte("dns-payload"))
	outer := append(make([]byte, jmirrorHeaderLen), inner...)

	got, r, ok := s.Strip(outer, 30030)
	require.True(t, ok)
	assert.Equal(t, inner, got)
	assert.Equal(t, 20, r.IPHeaderLen)
}

func TestStrip_PcapRecord(t *testing.T) {
	s := Stripper{PcapRecordPort: 9000}
	inner := innerIPv4UDP([]byte("dns-payload"))
	outer := append(make([]byte, pcapRecordHeaderLen), inner...)

	got, _, ok := s.Strip(outer, 9000)
	require.True(t, ok)
	assert.Equal(t, inner, got)
}

func TestStrip_PortMismatchDrops(t *testing.T) {
	s := Stripper{JMirrorPort: 30030}
	_, _, ok := s.Strip(make([]byte, 100), 12345)
	assert.False(t, ok)
}

func TestStrip_ResidualTooShort(t *testing.T) {
	s := Stripper{JMirrorPort: 30030}
	_, _, ok := s.Strip(make([]byte, 4), 30030)
	assert.False(t, ok)
}

func TestStrip_RevalidationFailureDrops(t *testing.T) {
	s := Stripper{JMirrorPort: 30030}
	garbage := make([]byte, jmirrorHeaderLen+10)
	_, _, ok := s.Strip(garbage, 30030)
	assert.False(t, ok)
}
