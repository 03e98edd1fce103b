package quote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanityCheckWithinBounds(t *testing.T) {
	// 3% deviation against a 50% ceiling passes.
	assert.False(t, SanityCheck("10300", "10000", 5000))
	assert.False(t, SanityCheck("9700", "10000", 5000))
	assert.False(t, SanityCheck("10000", "10000", 5000))
}

func TestSanityCheckFlagsLargeDeviation(t *testing.T) {
	assert.True(t, SanityCheck("20000", "10000", 5000))
	assert.True(t, SanityCheck("1", "10000", 5000))
}

func TestSanityCheckExactBoundary(t *testing.T) {
	// Exactly 50% deviation does not cross a 5000 bps ceiling.
	assert.False(t, SanityCheck("15000", "10000", 5000))
	assert.True(t, SanityCheck("15001", "10000", 5000))
}

func TestSanityCheckDegenerateInputsFail(t *testing.T) {
	assert.True(t, SanityCheck("notanumber", "10000", 5000))
	assert.True(t, SanityCheck("10000", "0", 5000))
	assert.True(t, SanityCheck("10000", "", 5000))
}
