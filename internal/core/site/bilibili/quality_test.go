package bilibili

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualities(t *testing.T) {
	all := Qualities()
	assert.Equal(t, Quality8K, all[0])
	assert.Equal(t, Quality360P, all[len(all)-1])

	assert.Equal(t, "1080P", QualityLabel(80))
	assert.False(t, QualityNeedsVIP(80))
	assert.True(t, QualityNeedsVIP(116))
	assert.True(t, IsKnownQuality(64))
	assert.False(t, IsKnownQuality(81))
	assert.Empty(t, QualityLabel(81))
}
