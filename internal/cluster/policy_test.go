package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()

	for _, zoom := range []int{-5, -1, 0} {
		assert.True(t, p.Collapsed(zoom))
		assert.Equal(t, RegionBadge, p.Family(zoom))
		assert.Equal(t, DefaultCollapsedRadius, p.Radius(zoom))
	}
	for _, zoom := range []int{1, 3, 6} {
		assert.False(t, p.Collapsed(zoom))
		assert.Equal(t, NumericCluster, p.Family(zoom))
		assert.Equal(t, float64(DefaultExpandedRadius), p.Radius(zoom))
	}
}

func TestPolicy_CustomThreshold(t *testing.T) {
	p := Policy{CollapseZoom: 2, CollapsedRadius: 500, ExpandedRadius: 10}
	assert.Equal(t, 500.0, p.Radius(2))
	assert.Equal(t, 10.0, p.Radius(3))
}

func TestIconFamilyText(t *testing.T) {
	b, err := RegionBadge.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "region_badge", string(b))
	assert.Equal(t, "numeric_cluster", NumericCluster.String())
}
