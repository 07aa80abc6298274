package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity(a, c), 1e-9)
	assert.Zero(t, CosineSimilarity(a, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity(nil, nil))
	assert.Zero(t, CosineSimilarity(a, []float32{0, 0, 0}))
}

func TestCountTokens(t *testing.T) {
	assert.Greater(t, CountTokens("Hallo, wie geht es dir heute?"), 0)
	assert.Zero(t, CountTokens(""))
}
