package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitter_WithinBounds(t *testing.T) {
	base := 1 * time.Second
	for i := 0; i < 50; i++ {
		j := jitter(base)
		assert.GreaterOrEqual(t, j, base)
		assert.Less(t, j, 2*base)
	}
}
