package math

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClip(t *testing.T) {
	assert.Equal(t, float32(4), Clip(float32(10)))
	assert.Equal(t, float32(-4), Clip(float32(-4.5)))
	assert.Equal(t, 1.5, Clip(1.5))
}

func TestMaxValue(t *testing.T) {
	assert.Equal(t, float32(math.MaxFloat32), MaxValue[float32]())
	assert.Equal(t, math.MaxFloat64, MaxValue[float64]())
}
