package metrics

import (
	"testing"

	"dnsflow/internal/pkg/pcapsource"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporter_ObserveAndGather(t *testing.T) {
	e := New(1)
	e.Observe(pcapsource.Stats{Captured: 10, Received: 12, Dropped: 2, IfDropped: 1, SampleRate: 4})
	e.AddSetsEmitted(3)
	e.SetSequence(7)

	families, err := e.registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["dnsflow_packets_captured"])
	assert.True(t, names["dnsflow_sets_emitted_total"])
	assert.True(t, names["dnsflow_sequence_number"])
}
