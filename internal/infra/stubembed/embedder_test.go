package stubembed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbedder_IsDeterministicAndNormalized(t *testing.T) {
	e := NewEmbedder(64)

	a, err := e.Embed(context.Background(), "the unique token is UNICORN_42")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "the unique token is UNICORN_42")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, math.Sqrt(cosine(a, a)), 1e-5)
}

func TestEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := NewEmbedder(DefaultDimension)

	vs, err := e.BatchEmbed(context.Background(), []string{
		"how to configure the server",
		"configure the server with a config file",
		"bananas are yellow fruit",
	})
	require.NoError(t, err)
	require.Len(t, vs, 3)

	assert.Greater(t, cosine(vs[0], vs[1]), cosine(vs[0], vs[2]))
}
