package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptions_Normalized(t *testing.T) {
	o := Options{}.normalized()
	assert.Equal(t, defaultServiceName, o.ServiceName)
	assert.Equal(t, 1.0, o.SampleRatio)

	o = Options{ServiceName: "edge", SampleRatio: 0.25}.normalized()
	assert.Equal(t, "edge", o.ServiceName)
	assert.Equal(t, 0.25, o.SampleRatio)

	o = Options{SampleRatio: 7}.normalized()
	assert.Equal(t, 1.0, o.SampleRatio)
}

func TestOptions_Sampler(t *testing.T) {
	assert.Contains(t, Options{SampleRatio: 1}.sampler().Description(), "AlwaysOnSampler")
	assert.Contains(t, Options{SampleRatio: 0.5}.sampler().Description(), "TraceIDRatioBased")
}
